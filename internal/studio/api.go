package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultCDNBase    = "https://setup.rbxcdn.com/"
	DefaultVersionAPI = "https://clientsettings.roblox.com/v2/client-version/WindowsStudio64"
)

// Fetcher returns the body of a GET request.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Client talks to the deployment CDN and the client-settings service.
type Client struct {
	Fetcher    Fetcher
	CDNBase    string
	VersionAPI string
}

// NewClient returns a client using the public endpoints unless cdnBase is set.
func NewClient(fetcher Fetcher, cdnBase string) *Client {
	return &Client{Fetcher: fetcher, CDNBase: cdnBase}
}

func (c *Client) cdn() string {
	base := strings.TrimSpace(c.CDNBase)
	if base == "" {
		base = DefaultCDNBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// ManifestURL is the package manifest location for version.
func (c *Client) ManifestURL(version string) string {
	return c.cdn() + version + "-rbxPkgManifest.txt"
}

// PackageURL is the download location of one package of version.
func (c *Client) PackageURL(version, name string) string {
	return c.cdn() + version + "-" + name
}

// Manifest fetches and parses the package list of version.
func (c *Client) Manifest(ctx context.Context, version string) ([]Package, error) {
	body, err := c.Fetcher.Get(ctx, c.ManifestURL(version))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestFetch, version, err)
	}
	return ParseManifest(bytes.NewReader(body))
}

type clientVersion struct {
	Version             string `json:"version"`
	ClientVersionUpload string `json:"clientVersionUpload"`
}

// LatestVersion asks the client-settings service for the newest upload on
// channel. The production channel is queried without a channel parameter.
func (c *Client) LatestVersion(ctx context.Context, channel string) (string, error) {
	endpoint := c.VersionAPI
	if endpoint == "" {
		endpoint = DefaultVersionAPI
	}
	channel = strings.TrimSpace(channel)
	if channel != "" && !strings.EqualFold(channel, "production") && channel != "LIVE" {
		endpoint += "?channel=" + url.QueryEscape(channel)
	}

	body, err := c.Fetcher.Get(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("query latest studio version: %w", err)
	}
	var cv clientVersion
	if err := json.Unmarshal(body, &cv); err != nil {
		return "", fmt.Errorf("decode client version: %w", err)
	}
	if cv.ClientVersionUpload == "" {
		return "", errors.New("client version response has no clientVersionUpload")
	}
	return cv.ClientVersionUpload, nil
}
