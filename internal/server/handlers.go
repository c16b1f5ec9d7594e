package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/model"
	"github.com/matzehuels/npmscout/pkg/pipeline"
)

type searchResponse struct {
	RunID            string                  `json:"run_id"`
	State            string                  `json:"state"`
	Count            int                     `json:"count"`
	Partial          bool                    `json:"partial"`
	Pages            int                     `json:"pages"`
	FailedPages      int                     `json:"failed_pages"`
	RateLimitedPages int                     `json:"rate_limited_pages"`
	RetryAfter       int                     `json:"retry_after,omitempty"`
	Packages         []model.EnrichedPackage `json:"packages"`
}

type readmeResponse struct {
	Name    string `json:"name"`
	File    string `json:"file"`
	Content string `json:"content"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := pipeline.Request{
		Query:      q.Get("q"),
		MaxResults: pipeline.DefaultMaxResults,
	}
	var err error
	if v := q.Get("max"); v != "" {
		if req.MaxResults, err = strconv.Atoi(v); err != nil {
			s.writeError(w, r, npmerrors.New(npmerrors.ErrCodeInvalidInput, "max must be an integer"))
			return
		}
	}
	for name, dst := range map[string]*bool{"enrich": &req.Enrich, "refresh": &req.Refresh, "ordered": &req.Ordered} {
		if *dst, err = queryBool(q.Get(name)); err != nil {
			s.writeError(w, r, npmerrors.New(npmerrors.ErrCodeInvalidInput, "%s must be a boolean", name))
			return
		}
	}

	res, err := s.cfg.Searcher.Execute(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := searchResponse{
		RunID:    res.RunID,
		State:    string(res.State.Phase),
		Count:    len(res.Packages),
		Packages: res.Packages,
	}
	if resp.Packages == nil {
		resp.Packages = []model.EnrichedPackage{}
	}
	if sr := res.Search; sr != nil {
		resp.Partial = sr.Partial()
		resp.Pages = sr.Pages
		resp.FailedPages = sr.FailedPages
		resp.RateLimitedPages = sr.RateLimitedPages
		if sr.RateLimit != nil {
			resp.RetryAfter = sr.RateLimit.RetryAfter
			if resp.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
			}
		}
	}
	if res.Batch != nil && res.Batch.Partial() {
		resp.Partial = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) details(w http.ResponseWriter, r *http.Request) {
	name, ok := s.requireName(w, r)
	if !ok {
		return
	}
	refresh, err := queryBool(r.URL.Query().Get("refresh"))
	if err != nil {
		s.writeError(w, r, npmerrors.New(npmerrors.ErrCodeInvalidInput, "refresh must be a boolean"))
		return
	}
	p := s.cfg.Enricher
	if refresh {
		p = p.Derive(true, false)
	}
	pkg, err := p.Lookup(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) tree(w http.ResponseWriter, r *http.Request) {
	if !s.filesEnabled(w, r) {
		return
	}
	name, ok := s.requireName(w, r)
	if !ok {
		return
	}
	node, err := s.cfg.Files.FetchTree(r.Context(), name, r.URL.Query().Get("version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) readme(w http.ResponseWriter, r *http.Request) {
	if !s.filesEnabled(w, r) {
		return
	}
	name, ok := s.requireName(w, r)
	if !ok {
		return
	}
	file, content, err := s.cfg.Files.FetchReadme(r.Context(), name, r.URL.Query().Get("version"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, readmeResponse{Name: name, File: file, Content: content})
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Cache.Stats(r.Context()))
}

func (s *Server) requireName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := integrations.NormalizePkgName(r.URL.Query().Get("name"))
	if err := npmerrors.ValidateNpmPackageName(name); err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	return name, true
}

func (s *Server) filesEnabled(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.Files != nil {
		return true
	}
	s.writeError(w, r, npmerrors.New(npmerrors.ErrCodeConfig, "file listing is not configured"))
	return false
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	}
	if rl := npmerrors.AsRateLimited(err); rl != nil && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter))
	}
	writeJSON(w, status, map[string]errorBody{"error": {
		Code:      string(code),
		Message:   npmerrors.UserMessage(err),
		RequestID: middleware.GetReqID(r.Context()),
	}})
}

// classify maps an error to an HTTP status and error code.
func classify(err error) (int, npmerrors.Code) {
	switch {
	case errors.Is(err, integrations.ErrNotFound):
		return http.StatusNotFound, npmerrors.ErrCodeNotFound
	case npmerrors.IsRateLimited(err):
		return http.StatusTooManyRequests, npmerrors.ErrCodeRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, npmerrors.ErrCodeTimeout
	case errors.Is(err, integrations.ErrNetwork):
		return http.StatusBadGateway, npmerrors.ErrCodeNetwork
	}
	switch code := npmerrors.GetCode(err); code {
	case npmerrors.ErrCodeInvalidInput, npmerrors.ErrCodeInvalidPackage, npmerrors.ErrCodeInvalidPath:
		return http.StatusBadRequest, code
	case npmerrors.ErrCodeConfig:
		return http.StatusServiceUnavailable, code
	case npmerrors.ErrCodeNotFound, npmerrors.ErrCodePackageNotFound, npmerrors.ErrCodeFileNotFound:
		return http.StatusNotFound, code
	}
	return http.StatusInternalServerError, npmerrors.ErrCodeInternal
}

func queryBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
