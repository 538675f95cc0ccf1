//go:build integration

package container_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brane-project/brane/internal/container"
)

// Exercises the real Docker daemon connection; compiled only when the
// "integration" build tag is set, and it fails if no daemon is reachable,
// the same opt-in pattern used for other tests that require a live Docker
// daemon.
func TestClient_HealthAgainstRealDaemon(t *testing.T) {
	c, err := container.New("")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Health(t.Context()))
}
