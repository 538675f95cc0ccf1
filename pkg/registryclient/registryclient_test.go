package registryclient_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/pkg/registry/assetstore"
	"github.com/brane-project/brane/pkg/registryclient"
)

func TestClient_InfoReturnsAssetInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/info/weather", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"weather","size":1024}`))
	}))
	defer srv.Close()

	c := registryclient.New(srv.URL, srv.Client())
	info, err := c.Info(t.Context(), "weather")
	require.NoError(t, err)
	assert.Equal(t, "weather", info.Name)
	assert.Equal(t, int64(1024), info.Size)
}

func TestClient_InfoReturnsErrNotFoundOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := registryclient.New(srv.URL, srv.Client())
	_, err := c.Info(t.Context(), "missing")
	require.ErrorIs(t, err, registryclient.ErrNotFound)
}

func TestClient_HasTranslatesNotFoundToFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := registryclient.New(srv.URL, srv.Client())
	has, err := c.Has(t.Context(), "missing")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestClient_ListReturnsCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/info", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"a"},{"name":"b"}]`))
	}))
	defer srv.Close()

	c := registryclient.New(srv.URL, srv.Client())
	list, err := c.List(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []assetstore.AssetInfo{{Name: "a"}, {Name: "b"}}, list)
}

func TestClient_ListPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := registryclient.New(srv.URL, srv.Client())
	_, err := c.List(t.Context())
	require.Error(t, err)
}
