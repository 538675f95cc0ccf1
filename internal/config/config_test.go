package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadNodeConfig_Worker(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "node.yaml", `
kind: worker
name: worker-eu
checker:
  address: https://checker.eu.example:8443
worker:
  listen_address: 0.0.0.0:50051
  registry_url: https://registry.eu.example:8443
  data_path: /data/brane
  capabilities: ["gpu", "compute"]
`)
	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, NodeWorker, cfg.Kind)
	assert.Equal(t, "worker-eu", cfg.Name)
	assert.Equal(t, "json", cfg.Logging.Format) // default retained
	assert.Equal(t, "0.0.0.0:50051", cfg.Worker.ListenAddress)
	assert.Equal(t, []string{"gpu", "compute"}, cfg.Worker.Capabilities)
}

func TestLoadNodeConfig_WorkerRegistryListenAddressDistinctFromWorkerListen(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "node.yaml", `
kind: worker
name: worker-eu
worker:
  listen_address: 0.0.0.0:50051
  registry_listen_address: 0.0.0.0:8081
  registry_url: https://registry-eu.example:8081
  data_path: /data/brane
`)
	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:50051", cfg.Worker.ListenAddress)
	assert.Equal(t, "0.0.0.0:8081", cfg.Worker.RegistryListenAddress)
	assert.Equal(t, "https://registry-eu.example:8081", cfg.Worker.RegistryURL)
}

func TestLoadNodeConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "node.yaml", `
kind: central
name: central-1
central:
  listen_address: 0.0.0.0:9000
`)
	t.Setenv("BRANE_CENTRAL_LISTEN_ADDRESS", "0.0.0.0:9999")
	t.Setenv("BRANE_LOG_LEVEL", "debug")

	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Central.ListenAddress)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadNodeConfig_MissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "node.yaml", `
kind: worker
name: worker-eu
worker:
  listen_address: 0.0.0.0:50051
`)
	_, err := LoadNodeConfig(path)
	assert.ErrorContains(t, err, "data_path")
}

func TestLoadNodeConfig_UnknownKind(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "node.yaml", `
kind: bogus
name: x
`)
	_, err := LoadNodeConfig(path)
	assert.ErrorContains(t, err, "kind")
}

func TestLoadBackendFile_LocalOK(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "backend.yaml", `
method: local
local:
  docker_host: unix:///var/run/docker.sock
`)
	bf, err := LoadBackendFile(path)
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, bf.Method)
	assert.Equal(t, "unix:///var/run/docker.sock", bf.Local.DockerHost)
}

func TestLoadBackendFile_UnsupportedMethod(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "backend.yaml", `
method: kubernetes
kubernetes:
  namespace: brane
`)
	_, err := LoadBackendFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnsupported)
}

func TestLoadNodeConfig_CentralDomainsRequireNameAndAddress(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "node.yaml", `
kind: central
name: central-1
central:
  listen_address: 0.0.0.0:9000
  domains:
    - name: eu
      worker_address: worker-eu:50051
    - worker_address: worker-us:50051
`)
	_, err := LoadNodeConfig(path)
	assert.ErrorContains(t, err, "name")
}

func TestLoadNodeConfig_CentralDomainsAccepted(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "node.yaml", `
kind: central
name: central-1
central:
  listen_address: 0.0.0.0:9000
  domains:
    - name: eu
      worker_address: worker-eu:50051
      registry_url: https://registry-eu:8443
      capabilities: ["gpu"]
`)
	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Central.Domains, 1)
	assert.Equal(t, "eu", cfg.Central.Domains[0].Name)
}

func TestNodeConfigDefaultChecker(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, "node.yaml", `
kind: proxy
name: proxy-1
proxy:
  listen_address: 0.0.0.0:8080
`)
	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Checker.Timeout)
}
