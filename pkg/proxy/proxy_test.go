package proxy_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/internal/config"
	"github.com/brane-project/brane/pkg/proxy"
)

func TestServer_RoutesByLongestMatchingPrefix(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	cfg := config.ProxyNodeConfig{Upstreams: []string{
		fmt.Sprintf("/registry=%s", upstream.URL),
	}}
	s, err := proxy.NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/registry/data/info/weather")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/data/info/weather", gotPath)
}

func TestServer_LongestPrefixWinsOnOverlap(t *testing.T) {
	var gotHost string
	general := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = "general"
		w.WriteHeader(http.StatusOK)
	}))
	defer general.Close()
	specific := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = "specific"
		w.WriteHeader(http.StatusOK)
	}))
	defer specific.Close()

	cfg := config.ProxyNodeConfig{Upstreams: []string{
		fmt.Sprintf("/data=%s", general.URL),
		fmt.Sprintf("/data/download=%s", specific.URL),
	}}
	s, err := proxy.NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/data/download/weather")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "specific", gotHost)
}

func TestServer_UnmatchedPathIs404(t *testing.T) {
	cfg := config.ProxyNodeConfig{Upstreams: []string{"/registry=http://127.0.0.1:1"}}
	s, err := proxy.NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(s)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RejectsMalformedUpstreamEntry(t *testing.T) {
	cfg := config.ProxyNodeConfig{Upstreams: []string{"no-equals-sign"}}
	_, err := proxy.NewServer(cfg)
	assert.Error(t, err)
}

func TestNewClient_EmptyAddressReturnsPlainClient(t *testing.T) {
	client, err := proxy.NewClient("")
	require.NoError(t, err)
	assert.Nil(t, client.Transport)
}

func TestNewClient_SetsProxyTransport(t *testing.T) {
	client, err := proxy.NewClient("http://127.0.0.1:9999")
	require.NoError(t, err)
	assert.NotNil(t, client.Transport)
}
