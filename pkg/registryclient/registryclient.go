// Package registryclient is the orchestrator-side HTTP client for another
// domain's Registry `/data/info`/`/data/info/{name}` endpoints, grounded
// on the same request/response shape pkg/checker.Client already uses to
// talk to a domain's local policy reasoner: a thin *http.Client wrapper,
// no generated transport code, since the wire format is plain JSON.
package registryclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/brane-project/brane/pkg/registry/assetstore"
)

// ErrNotFound is returned by Info when the named asset does not exist on
// the queried domain.
var ErrNotFound = errors.New("registryclient: asset not found")

// Client talks to one domain's Registry HTTP surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the Registry reachable at baseURL.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Info fetches one named asset's catalog entry, returning ErrNotFound if
// the domain doesn't hold it.
func (c *Client) Info(ctx context.Context, name string) (assetstore.AssetInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/info/"+name, nil)
	if err != nil {
		return assetstore.AssetInfo{}, fmt.Errorf("registryclient: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return assetstore.AssetInfo{}, fmt.Errorf("registryclient: request %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return assetstore.AssetInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return assetstore.AssetInfo{}, fmt.Errorf("registryclient: read response for %s: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return assetstore.AssetInfo{}, fmt.Errorf("registryclient: %s returned status %d", name, resp.StatusCode)
	}
	var info assetstore.AssetInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return assetstore.AssetInfo{}, fmt.Errorf("registryclient: decode response for %s: %w", name, err)
	}
	return info, nil
}

// List fetches every asset the domain's registry currently catalogs.
func (c *Client) List(ctx context.Context) ([]assetstore.AssetInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data/info", nil)
	if err != nil {
		return nil, fmt.Errorf("registryclient: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registryclient: list request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("registryclient: read list response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registryclient: list returned status %d", resp.StatusCode)
	}
	var list []assetstore.AssetInfo
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("registryclient: decode list response: %w", err)
	}
	return list, nil
}

// Has reports whether the domain's registry catalogs name, without
// surfacing ErrNotFound as an error a caller must special-case.
func (c *Client) Has(ctx context.Context, name string) (bool, error) {
	_, err := c.Info(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}
