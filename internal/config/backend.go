package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrBackendUnsupported is returned when a worker's backend file names a
// method this build doesn't implement. Only Local is mandatory per
// ; Ssh/Kubernetes/Slurm are accepted by the YAML schema but
// not wired to a real container launcher yet.
var ErrBackendUnsupported = errors.New("backend method not supported")

// BackendMethod discriminates the four backend kinds .
type BackendMethod string

const (
	BackendLocal      BackendMethod = "local"
	BackendSsh        BackendMethod = "ssh"
	BackendKubernetes BackendMethod = "kubernetes"
	BackendSlurm      BackendMethod = "slurm"
)

// LocalBackend launches task containers on the worker's own Docker
// daemon — the only method internal/container
// actually implements.
type LocalBackend struct {
	DockerHost string `yaml:"docker_host"`
}

// SshBackend would launch containers on a remote host over SSH.
type SshBackend struct {
	Host string `yaml:"host"`
	User string `yaml:"user"`
	Key  string `yaml:"key_path"`
}

// KubernetesBackend would launch tasks as Kubernetes Jobs.
type KubernetesBackend struct {
	Kubeconfig string `yaml:"kubeconfig"`
	Namespace  string `yaml:"namespace"`
}

// SlurmBackend would submit tasks to a Slurm cluster.
type SlurmBackend struct {
	PartitionName string `yaml:"partition"`
}

// BackendFile is a worker's container-launch backend configuration.
type BackendFile struct {
	Method BackendMethod `yaml:"method"`

	Local      LocalBackend      `yaml:"local"`
	Ssh        SshBackend        `yaml:"ssh"`
	Kubernetes KubernetesBackend `yaml:"kubernetes"`
	Slurm      SlurmBackend      `yaml:"slurm"`
}

// LoadBackendFile reads a worker's backend YAML file.
func LoadBackendFile(path string) (*BackendFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backend file: %w", err)
	}
	bf := &BackendFile{Method: BackendLocal}
	if err := yaml.Unmarshal(raw, bf); err != nil {
		return nil, fmt.Errorf("parse backend file: %w", err)
	}
	if err := bf.Validate(); err != nil {
		return nil, err
	}
	return bf, nil
}

// Validate checks that the named method is implemented.
func (b *BackendFile) Validate() error {
	switch b.Method {
	case BackendLocal:
		return nil
	case BackendSsh, BackendKubernetes, BackendSlurm:
		return fmt.Errorf("%w: %q", ErrBackendUnsupported, b.Method)
	default:
		return fmt.Errorf("unknown backend method: %q", b.Method)
	}
}
