package checker_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/pkg/checker"
)

func TestCheckTask_Allow(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"allowed": true, "details": map[string]string{"domain": "worker-a"}})
	}))
	defer srv.Close()

	c := checker.New(srv.URL, "worker-a", []byte("test-signing-key-32-bytes-minimum"), 2*time.Second)
	v, err := c.CheckTask(t.Context(), checker.TaskRequest{TaskName: "double", Domain: "worker-a", EndUser: "alice"})
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.True(t, strings.HasPrefix(gotAuth, "Bearer "))

	tokenStr := strings.TrimPrefix(gotAuth, "Bearer ")
	token, _, err := jwt.NewParser().ParseUnverified(tokenStr, &checker.Claims{})
	require.NoError(t, err)
	claims := token.Claims.(*checker.Claims)
	assert.Equal(t, "worker-a", claims.Issuer)
	assert.Equal(t, "alice", claims.Subject)
}

func TestCheckTask_DenyWithReasons(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"allowed": false, "reasons": []string{"capability gpu not permitted"}})
	}))
	defer srv.Close()

	c := checker.New(srv.URL, "worker-a", []byte("test-signing-key-32-bytes-minimum"), 2*time.Second)
	v, err := c.CheckTask(t.Context(), checker.TaskRequest{TaskName: "train", Domain: "worker-a"})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reasons, "capability gpu not permitted")
	assert.ErrorIs(t, checker.Must(v, nil), checker.ErrDenied)
}

func TestCheckTask_FailsClosedOnUnreachable(t *testing.T) {
	c := checker.New("http://127.0.0.1:1", "worker-a", []byte("test-signing-key-32-bytes-minimum"), 200*time.Millisecond)
	v, err := c.CheckTask(t.Context(), checker.TaskRequest{TaskName: "double", Domain: "worker-a"})
	require.NoError(t, err) // network failure is surfaced as Deny, not error
	assert.False(t, v.Allowed)
	assert.NotEmpty(t, v.Reasons)
}

func TestCheckTask_FailsClosedOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := checker.New(srv.URL, "worker-a", []byte("test-signing-key-32-bytes-minimum"), 2*time.Second)
	v, err := c.CheckTask(t.Context(), checker.TaskRequest{TaskName: "double", Domain: "worker-a"})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
}

func TestDeriveSigningKey_Deterministic(t *testing.T) {
	k1, err := checker.DeriveSigningKey([]byte("master-secret"), "worker-a")
	require.NoError(t, err)
	k2, err := checker.DeriveSigningKey([]byte("master-secret"), "worker-a")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := checker.DeriveSigningKey([]byte("master-secret"), "worker-b")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}
