// Package container wraps the Docker Engine API client into the
// narrow operations the worker executor needs to materialize and run
// task containers: loading an image tarball, reading
// its manifest digest, and launching a container with a fixed argv.
package container

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// Client wraps the Docker SDK client: a thin constructor (which does not
// contact the daemon), pass-through methods for everything routine, and a
// Health check that pings the daemon for readiness probes.
type Client struct {
	cli *client.Client
}

// New connects to the Docker daemon at host (empty string uses the
// environment's default, e.g. DOCKER_HOST or the local socket).
func New(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return &Client{cli: cli}, nil
}

// Health pings the daemon to verify it is reachable.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.cli.Close()
}
