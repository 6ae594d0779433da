// Package release lists GitHub releases for runner and DXVK repositories and
// picks the downloadable asset for a requested version.
package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"vinestudio/internal/transport"
)

// Repository values that never map to a remote release listing.
const (
	RepoSystem     = "SYSTEM"
	RepoCustomPath = "CUSTOM_PATH"
	RepoCustom     = "CUSTOM"
)

const defaultAPIBase = "https://api.github.com"

// ErrRepoNotFound is returned by ValidateRepo when GitHub has no such repository.
var ErrRepoNotFound = errors.New("repository not found")

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
	Size int64  `json:"size"`
}

// Release is one tagged release and its assets.
type Release struct {
	Tag    string  `json:"tag_name"`
	Assets []Asset `json:"assets"`
}

// IsSentinel reports whether repo selects a local runtime rather than a
// GitHub repository.
func IsSentinel(repo string) bool {
	switch strings.TrimSpace(repo) {
	case "", RepoSystem, RepoCustomPath:
		return true
	}
	return false
}

// Fetcher is the subset of the transport client the release client needs.
type Fetcher interface {
	GetWithHeaders(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Client lists releases and remembers each repository's listing for its own
// lifetime. It is safe for concurrent use.
type Client struct {
	Fetcher Fetcher
	APIBase string

	mu    sync.Mutex
	cache map[string][]Release
}

// NewClient returns a client backed by fetcher.
func NewClient(fetcher Fetcher) *Client {
	return &Client{Fetcher: fetcher, APIBase: defaultAPIBase}
}

func (c *Client) base() string {
	if c.APIBase == "" {
		return defaultAPIBase
	}
	return strings.TrimRight(c.APIBase, "/")
}

var githubHeaders = map[string]string{"Accept": "application/vnd.github+json"}

// List returns the releases of repo, newest first as GitHub orders them.
// Sentinel repositories yield an empty list.
func (c *Client) List(ctx context.Context, repo string) ([]Release, error) {
	repo = strings.TrimSpace(repo)
	if IsSentinel(repo) || repo == RepoCustom {
		return nil, nil
	}

	c.mu.Lock()
	if cached, ok := c.cache[repo]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	body, err := c.Fetcher.GetWithHeaders(ctx, c.base()+"/repos/"+repo+"/releases", githubHeaders)
	if err != nil {
		return nil, fmt.Errorf("list releases for %s: %w", repo, err)
	}
	var releases []Release
	if err := json.Unmarshal(body, &releases); err != nil {
		return nil, fmt.Errorf("decode releases for %s: %w", repo, err)
	}

	c.mu.Lock()
	if c.cache == nil {
		c.cache = make(map[string][]Release)
	}
	c.cache[repo] = releases
	c.mu.Unlock()
	return releases, nil
}

// Forget drops the cached listing for repo.
func (c *Client) Forget(repo string) {
	c.mu.Lock()
	delete(c.cache, strings.TrimSpace(repo))
	c.mu.Unlock()
}

// ValidateRepo checks that repo has the user/repo form and exists remotely.
func (c *Client) ValidateRepo(ctx context.Context, repo string) error {
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return errors.New("repository cannot be empty")
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid repository %q (user/repo expected)", repo)
	}
	_, err := c.Fetcher.GetWithHeaders(ctx, c.base()+"/repos/"+repo, githubHeaders)
	var se *transport.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", repo, ErrRepoNotFound)
	}
	if err != nil {
		return fmt.Errorf("validate %s: %w", repo, err)
	}
	return nil
}
