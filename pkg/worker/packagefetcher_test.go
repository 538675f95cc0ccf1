package worker_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/pkg/worker"
)

func TestHTTPPackageFetcher_DownloadFetchesExpectedPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/packages/analyze-1.2.0.tar", r.URL.Path)
		_, _ = w.Write([]byte("tarball-bytes"))
	}))
	defer srv.Close()

	f := worker.NewHTTPPackageFetcher(srv.URL, srv.Client())
	rc, err := f.Download(t.Context(), "analyze", "1.2.0")
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "tarball-bytes", string(body))
}

func TestHTTPPackageFetcher_DownloadPropagatesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := worker.NewHTTPPackageFetcher(srv.URL, srv.Client())
	_, err := f.Download(t.Context(), "missing", "0.0.1")
	require.Error(t, err)
}
