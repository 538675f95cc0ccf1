package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPPackageFetcher implements PackageFetcher against a central node's
// static package distribution surface, the "central API" 
// step 3 names: a plain GET of `<name>-<version>.tar` under baseURL,
// mirroring the packages directory's own on-disk naming convention so a
// central node can serve that directory unmodified.
type HTTPPackageFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPackageFetcher builds a fetcher against the central node
// reachable at baseURL.
func NewHTTPPackageFetcher(baseURL string, httpClient *http.Client) *HTTPPackageFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPPackageFetcher{baseURL: baseURL, httpClient: httpClient}
}

// Download fetches name-version's container tarball. The caller (PackageCache.Ensure)
// is responsible for closing the returned ReadCloser.
func (f *HTTPPackageFetcher) Download(ctx context.Context, name, version string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/packages/%s-%s.tar", f.baseURL, name, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("packagefetcher: build request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("packagefetcher: request %s-%s: %w", name, version, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("packagefetcher: %s-%s returned status %d", name, version, resp.StatusCode)
	}
	return resp.Body, nil
}
