// Package librariesio provides a client for the Libraries.io search API,
// restricted to the npm platform.
//
// Every request needs an API key. Results are parsed from an explicit schema
// and converted to [model.SearchResult] at this boundary, so nothing past the
// client sees provider field names such as latest_release_number.
package librariesio

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/model"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://libraries.io/api"

// Platform is the package manager searched.
const Platform = "NPM"

// Client searches Libraries.io.
type Client struct {
	*integrations.Client
	baseURL string
	apiKey  string
}

// NewClient returns a search client. An empty baseURL selects [DefaultBaseURL].
// A missing apiKey is reported as a configuration error on the first search.
func NewClient(hc *integrations.Client, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		Client:  hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// SearchPage fetches one page (1-based) of results for query.
func (c *Client) SearchPage(ctx context.Context, query string, page, perPage int) ([]model.SearchResult, error) {
	if c.apiKey == "" {
		return nil, npmerrors.New(npmerrors.ErrCodeConfig, "libraries.io API key is not set (LIBRARIES_IO_API_KEY)")
	}
	if page < 1 {
		return nil, npmerrors.New(npmerrors.ErrCodeInvalidInput, "page must be >= 1, got %d", page)
	}

	var raw []searchHit
	if err := c.Get(ctx, c.searchURL(query, page, perPage), &raw); err != nil {
		return nil, fmt.Errorf("search page %d: %w", page, err)
	}

	results := make([]model.SearchResult, 0, len(raw))
	for _, h := range raw {
		if h.Name == "" {
			continue
		}
		results = append(results, h.toResult())
	}
	return results, nil
}

func (c *Client) searchURL(query string, page, perPage int) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("platforms", Platform)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("api_key", c.apiKey)
	return c.baseURL + "/search?" + q.Encode()
}

// searchHit is the provider's schema for one result.
type searchHit struct {
	Name                     string   `json:"name"`
	Description              string   `json:"description"`
	LatestReleaseNumber      string   `json:"latest_release_number"`
	LatestVersion            string   `json:"latest_version"`
	LatestReleasePublishedAt string   `json:"latest_release_published_at"`
	Homepage                 string   `json:"homepage"`
	RepositoryURL            string   `json:"repository_url"`
	Stars                    int      `json:"stars"`
	DependentsCount          int      `json:"dependents_count"`
	Rank                     int      `json:"rank"`
	Keywords                 []string `json:"keywords"`
	Licenses                 string   `json:"licenses"`
	NormalizedLicenses       []string `json:"normalized_licenses"`
}

func (h searchHit) toResult() model.SearchResult {
	version := h.LatestReleaseNumber
	if version == "" {
		version = h.LatestVersion
	}
	licenses := h.Licenses
	if licenses == "" {
		licenses = strings.Join(h.NormalizedLicenses, ", ")
	}
	var published time.Time
	if h.LatestReleasePublishedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, h.LatestReleasePublishedAt); err == nil {
			published = t.UTC()
		}
	}
	return model.SearchResult{
		Name:            h.Name,
		Description:     h.Description,
		LatestVersion:   version,
		Homepage:        h.Homepage,
		RepositoryURL:   integrations.NormalizeRepoURL(h.RepositoryURL),
		Stars:           h.Stars,
		DependentsCount: h.DependentsCount,
		Rank:            h.Rank,
		Keywords:        h.Keywords,
		Licenses:        licenses,
		PublishedAt:     published,
	}
}
