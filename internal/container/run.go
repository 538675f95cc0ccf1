package container

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// Bind is one host-path -> container-path volume mount, used to translate
// Data/IntermediateResult arguments and result directories into the
// container.
type Bind struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

func (b Bind) String() string {
	mode := "rw"
	if b.ReadOnly {
		mode = "ro"
	}
	return fmt.Sprintf("%s:%s:%s", b.HostPath, b.ContainerPath, mode)
}

// RunSpec describes one task container launch: the image reference
// (loaded via LoadImage), the fixed argv  requires
// (`-d --application-id … --location-id … --job-id … <kind> <task>
// <base64-json-args>`), and the volume binds for its inputs and result
// directory.
type RunSpec struct {
	Image string
	Argv  []string
	Env   []string
	Binds []Bind
}

// RunResult carries a finished container's exit status and captured
// output: the last non-empty stdout line is the
// task's Base64-encoded JSON return value.
type RunResult struct {
	ExitCode int64
	Stdout   string
	Stderr   string
}

// Run creates, starts, awaits and removes one task container. Containers
// are always removed whether they succeed or fail; the worker owns no
// long-lived container state beyond the image cache.
func (c *Client) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	binds := make([]string, len(spec.Binds))
	for i, b := range spec.Binds {
		binds[i] = b.String()
	}

	created, err := c.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Cmd:          spec.Argv,
			Env:          spec.Env,
			ExposedPorts: nat.PortSet{},
			Tty:          false,
		},
		&container.HostConfig{
			Binds:        binds,
			PortBindings: nat.PortMap{},
			AutoRemove:   false,
		},
		nil, nil, "",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreate, err)
	}
	containerID := created.ID
	defer c.removeQuietly(containerID)

	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStart, err)
	}

	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrWait, err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrWait, ctx.Err())
	}

	stdout, stderr, err := c.collectLogs(ctx, containerID)
	if err != nil {
		return nil, err
	}

	return &RunResult{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}, nil
}

func (c *Client) collectLogs(ctx context.Context, containerID string) (string, string, error) {
	rc, err := c.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: reading logs: %v", ErrInspect, err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", "", fmt.Errorf("%w: demuxing logs: %v", ErrInspect, err)
	}
	return stdout.String(), stderr.String(), nil
}

func (c *Client) removeQuietly(containerID string) {
	_ = c.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
}
