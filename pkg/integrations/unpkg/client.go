// Package unpkg browses published package contents through unpkg.com.
//
// [Client.FetchTree] returns the file listing of a version, [Client.FetchFile]
// returns one file as text, and [Client.FetchReadme] returns the first README
// candidate that exists, using the [FirstOf] combinator.
package unpkg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	npmerrors "github.com/matzehuels/npmscout/pkg/errors"
	"github.com/matzehuels/npmscout/pkg/integrations"
	"github.com/matzehuels/npmscout/pkg/model"
)

// DefaultBaseURL is the public unpkg endpoint.
const DefaultBaseURL = "https://unpkg.com"

// ReadmeCandidates lists README file names in lookup order.
var ReadmeCandidates = []string{
	"README.md",
	"readme.md",
	"Readme.md",
	"README",
	"README.markdown",
	"README.txt",
}

type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient returns an unpkg client. An empty baseURL selects [DefaultBaseURL].
func NewClient(hc *integrations.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{Client: hc, baseURL: strings.TrimRight(baseURL, "/")}
}

// FetchTree returns the recursive file listing of pkg at version
// (empty = latest).
func (c *Client) FetchTree(ctx context.Context, pkg, version string) (*model.FileNode, error) {
	var root metaNode
	if err := c.Get(ctx, c.packageURL(pkg, version)+"/?meta", &root); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: files of %s", err, ref(pkg, version))
		}
		return nil, err
	}
	node := root.toNode()
	return &node, nil
}

// FetchFile returns the content of path inside pkg at version.
// path must be relative; see [npmerrors.ValidatePath].
func (c *Client) FetchFile(ctx context.Context, pkg, version, path string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if err := npmerrors.ValidatePath(path); err != nil {
		return "", err
	}
	text, err := c.GetText(ctx, c.packageURL(pkg, version)+"/"+path)
	if err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return "", fmt.Errorf("%w: %s in %s", err, path, ref(pkg, version))
		}
		return "", err
	}
	return text, nil
}

// FetchReadme returns the name and content of the first README candidate
// that exists. It returns [integrations.ErrNotFound] when none does.
func (c *Client) FetchReadme(ctx context.Context, pkg, version string) (string, string, error) {
	return FirstOf(ctx, ReadmeCandidates, func(ctx context.Context, name string) (string, error) {
		return c.FetchFile(ctx, pkg, version, name)
	})
}

// FirstOf calls fetch for each candidate in order and returns the first
// success. Not-found results move on to the next candidate; any other error
// is remembered and returned if no candidate succeeds. When every candidate
// is missing the result wraps [integrations.ErrNotFound].
func FirstOf[T any](ctx context.Context, candidates []string, fetch func(context.Context, string) (T, error)) (string, T, error) {
	var (
		zero     T
		firstErr error
	)
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return "", zero, err
		}
		v, err := fetch(ctx, name)
		if err == nil {
			return name, v, nil
		}
		if !errors.Is(err, integrations.ErrNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return "", zero, firstErr
	}
	return "", zero, fmt.Errorf("%w: none of %s", integrations.ErrNotFound, strings.Join(candidates, ", "))
}

func (c *Client) packageURL(pkg, version string) string {
	return c.baseURL + "/" + ref(integrations.NormalizePkgName(pkg), version)
}

func ref(pkg, version string) string {
	if version == "" {
		version = "latest"
	}
	return pkg + "@" + version
}

// metaNode is unpkg's ?meta schema.
type metaNode struct {
	Path  string     `json:"path"`
	Type  string     `json:"type"`
	Size  int64      `json:"size"`
	Files []metaNode `json:"files"`
}

func (m metaNode) toNode() model.FileNode {
	n := model.FileNode{Path: m.Path, Type: model.NodeFile, Size: m.Size}
	if m.Type == model.NodeDirectory {
		n.Type = model.NodeDirectory
		n.Size = 0
	}
	for _, f := range m.Files {
		n.Files = append(n.Files, f.toNode())
	}
	return n
}
