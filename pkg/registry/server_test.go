package registry_test

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/pkg/checker"
	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/registry"
	"github.com/brane-project/brane/pkg/registry/assetstore"
)

type fakeChecker struct {
	verdict checker.Verdict
	err     error
	lastReq checker.TransferRequest
}

func (f *fakeChecker) CheckTransfer(_ context.Context, req checker.TransferRequest) (checker.Verdict, error) {
	f.lastReq = req
	return f.verdict, f.err
}

func newTestAssets(t *testing.T) assetstore.Store {
	t.Helper()
	store := assetstore.NewFilesystemStore(t.TempDir())
	content := filepath.Join(t.TempDir(), "staged")
	require.NoError(t, os.MkdirAll(content, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(content, "weather.csv"), []byte("temp,1.0"), 0o644))
	require.NoError(t, store.Put(context.Background(), assetstore.AssetInfo{Name: "weather"}, content))
	return store
}

func downloadBody(t *testing.T, endUser string) []byte {
	t.Helper()
	wf, err := json.Marshal(ir.Workflow{EndUser: endUser})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]json.RawMessage{"workflow": wf})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	m["use_case"] = "uc-1"
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return out
}

func TestServer_DataInfoListAndGet(t *testing.T) {
	srv := registry.New("dom-a", newTestAssets(t), t.TempDir(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/data/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/data/info/weather")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	var info assetstore.AssetInfo
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&info))
	assert.Equal(t, "weather", info.Name)
}

func TestServer_DataInfoUnknownIs404(t *testing.T) {
	srv := registry.New("dom-a", newTestAssets(t), t.TempDir(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/data/info/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DataDownloadWithoutPrincipalIsUnauthorized(t *testing.T) {
	srv := registry.New("dom-a", newTestAssets(t), t.TempDir(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/data/download/weather", strings.NewReader(string(downloadBody(t, "alice"))))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_DataDownloadStreamsTarGzWhenAllowed(t *testing.T) {
	srv := registry.New("dom-a", newTestAssets(t), t.TempDir(), nil)
	srv.AllowHeaderPrincipal = true
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/data/download/weather", strings.NewReader(string(downloadBody(t, "alice"))))
	require.NoError(t, err)
	req.Header.Set("X-Brane-Principal", "domain-b")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/gzip", resp.Header.Get("Content-Type"))

	gz, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.Contains(t, names, "weather.csv")
}

func TestServer_DataDownloadDeniedByCheckerIs403(t *testing.T) {
	fc := &fakeChecker{verdict: checker.Verdict{Allowed: false, Reasons: []string{"no"}}}
	srv := registry.New("dom-a", newTestAssets(t), t.TempDir(), fc)
	srv.AllowHeaderPrincipal = true
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/data/download/weather", strings.NewReader(string(downloadBody(t, "alice"))))
	require.NoError(t, err)
	req.Header.Set("X-Brane-Principal", "domain-b")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "alice", fc.lastReq.EndUser)
	assert.Equal(t, "domain-b", fc.lastReq.ToDomain)
}

func TestServer_UnknownDatasetIs404(t *testing.T) {
	srv := registry.New("dom-a", newTestAssets(t), t.TempDir(), nil)
	srv.AllowHeaderPrincipal = true
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/data/download/nope", strings.NewReader(string(downloadBody(t, "alice"))))
	require.NoError(t, err)
	req.Header.Set("X-Brane-Principal", "domain-b")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ResultsDownloadStreamsFromResultsRoot(t *testing.T) {
	resultsRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(resultsRoot, "res1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resultsRoot, "res1", "out.bin"), []byte("data"), 0o644))

	srv := registry.New("dom-a", newTestAssets(t), resultsRoot, nil)
	srv.AllowHeaderPrincipal = true
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/results/download/res1", strings.NewReader(string(downloadBody(t, "alice"))))
	require.NoError(t, err)
	req.Header.Set("X-Brane-Principal", "domain-b")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
