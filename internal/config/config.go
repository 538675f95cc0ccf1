// Package config loads the node configuration and backend file that
// every brane binary (orchestrator/worker/registry/proxy) starts from:
// YAML is the primary source, with a handful of env vars layered on top
// as overrides for container/CI deployment, in the style the mbflow
// teacher repo's internal/config used for its own settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// NodeKind discriminates the three node configuration shapes 
// describes.
type NodeKind string

const (
	NodeCentral NodeKind = "central"
	NodeWorker  NodeKind = "worker"
	NodeProxy   NodeKind = "proxy"
)

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// TracingConfig controls the optional OpenTelemetry exporter every node
// kind may enable, feeding pkg/profile's Profiler its tracer.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// CheckerConfig is how a node reaches its local policy-reasoner.
// MasterSecret is never written to the config file in a real deployment
// (it comes from BRANE_CHECKER_MASTER_SECRET, typically sourced from a
// mounted secret file) — it is this domain's long-lived deliberation
// secret, expanded per signed-token scheme via
// checker.DeriveSigningKey before every outbound request is signed.
type CheckerConfig struct {
	Address      string        `yaml:"address"`
	Timeout      time.Duration `yaml:"timeout"`
	MasterSecret string        `yaml:"-"`
}

// DomainEntry is one federated domain the orchestrator's Planner may
// place a Node edge on: its reachable worker-gRPC address, its locally
// served Registry base URL, and the task capabilities it claims to
// support. Domain membership is static deployment configuration in this
// implementation — domain discovery itself is out of scope here; this
// describes only what the orchestrator does once it knows a domain.
type DomainEntry struct {
	Name         string   `yaml:"name" validate:"required"`
	WorkerAddr   string   `yaml:"worker_address" validate:"required"`
	RegistryURL  string   `yaml:"registry_url"`
	Capabilities []string `yaml:"capabilities"`
}

// CentralNodeConfig is the orchestrator/planner's configuration.
// PackagesPath, if set, is served read-only under /packages/ — the
// "central API" package distribution surface  has
// every worker's PackageCache download tarballs from on a cache miss.
type CentralNodeConfig struct {
	ListenAddress  string        `yaml:"listen_address"`
	RegistryURL    string        `yaml:"registry_url"`
	PackagesPath   string        `yaml:"packages_path"`
	DomainCacheTTL time.Duration `yaml:"domain_cache_ttl"`
	Domains        []DomainEntry `yaml:"domains" validate:"dive"`
}

// WorkerNodeConfig is a worker domain's configuration. A domain runs two
// processes off the same file: cmd/worker binds ListenAddress for the
// gRPC Worker service, and cmd/registry binds RegistryListenAddress for
// the HTTP Registry service described in Registry Service
// component — the two are deliberately separate addresses since they're
// separate listeners, often fronted by separate ingress rules.
// RegistryURL is the externally reachable base URL for this domain's own
// registry (what operators put in every *other* domain's
// central.domains[].registry_url entry); it is metadata this process
// advertises, not one it dials itself.
type WorkerNodeConfig struct {
	ListenAddress         string        `yaml:"listen_address"`
	RegistryListenAddress string        `yaml:"registry_listen_address"`
	RegistryURL           string        `yaml:"registry_url"`
	CentralAPI            string        `yaml:"central_api"`
	DataPath              string        `yaml:"data_path"`
	TempDataPath          string        `yaml:"temp_data_path"`
	TempResultsPath       string        `yaml:"temp_results_path"`
	TempTarsPath          string        `yaml:"temp_tars_path"`
	ResultsPath           string        `yaml:"results_path"`
	PackagesPath          string        `yaml:"packages_path"`
	HashContainers        bool          `yaml:"hash_containers"`
	DomainCacheTTL        time.Duration `yaml:"domain_cache_ttl"`
	Capabilities          []string      `yaml:"capabilities"`
	BackendFile           string        `yaml:"backend_file"`
	Domains               []DomainEntry `yaml:"domains" validate:"dive"`
}

// ProxyNodeConfig is an optional outbound-proxy node's configuration.
type ProxyNodeConfig struct {
	ListenAddress string   `yaml:"listen_address"`
	Upstreams     []string `yaml:"upstreams"`
}

// structValidator runs the struct-tag checks declared above, shared
// across every Validate call rather than constructing one per call.
var structValidator = validator.New()

// formatValidationError turns a validator.ValidationErrors into a
// one-message-per-field summary.
func formatValidationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		field := strings.ToLower(fe.Namespace())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return fmt.Errorf("invalid node config: %s", strings.Join(msgs, "; "))
}

// NodeConfig is the top-level node configuration file, one of Central,
// Worker, or Proxy, selected by Kind.
type NodeConfig struct {
	Kind    NodeKind      `yaml:"kind" validate:"oneof=central worker proxy"`
	Name    string        `yaml:"name" validate:"required"`
	Logging LoggingConfig `yaml:"logging"`
	Checker CheckerConfig `yaml:"checker"`
	Tracing TracingConfig `yaml:"tracing"`

	Central CentralNodeConfig `yaml:"central"`
	Worker  WorkerNodeConfig  `yaml:"worker"`
	Proxy   ProxyNodeConfig   `yaml:"proxy"`
}

// LoadNodeConfig reads a node configuration YAML file and layers the
// BRANE_*-prefixed environment variable overrides used for container
// deployment on top of it, then validates the result.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node config: %w", err)
	}
	cfg := &NodeConfig{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Checker: CheckerConfig{Timeout: 10 * time.Second},
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse node config: %w", err)
	}

	cfg.Logging.Level = getEnv("BRANE_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("BRANE_LOG_FORMAT", cfg.Logging.Format)
	cfg.Checker.Address = getEnv("BRANE_CHECKER_ADDRESS", cfg.Checker.Address)
	cfg.Checker.Timeout = getEnvAsDuration("BRANE_CHECKER_TIMEOUT", cfg.Checker.Timeout)
	cfg.Checker.MasterSecret = getEnv("BRANE_CHECKER_MASTER_SECRET", cfg.Checker.MasterSecret)

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "brane-" + string(cfg.Kind)
	}
	cfg.Tracing.Endpoint = getEnv("BRANE_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	if v := os.Getenv("BRANE_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = v == "true" || v == "1"
	}

	switch cfg.Kind {
	case NodeWorker:
		cfg.Worker.ListenAddress = getEnv("BRANE_WORKER_LISTEN_ADDRESS", cfg.Worker.ListenAddress)
		cfg.Worker.RegistryListenAddress = getEnv("BRANE_WORKER_REGISTRY_LISTEN_ADDRESS", cfg.Worker.RegistryListenAddress)
		cfg.Worker.RegistryURL = getEnv("BRANE_WORKER_REGISTRY_URL", cfg.Worker.RegistryURL)
		cfg.Worker.DataPath = getEnv("BRANE_WORKER_DATA_PATH", cfg.Worker.DataPath)
	case NodeCentral:
		cfg.Central.ListenAddress = getEnv("BRANE_CENTRAL_LISTEN_ADDRESS", cfg.Central.ListenAddress)
		cfg.Central.RegistryURL = getEnv("BRANE_CENTRAL_REGISTRY_URL", cfg.Central.RegistryURL)
	case NodeProxy:
		cfg.Proxy.ListenAddress = getEnv("BRANE_PROXY_LISTEN_ADDRESS", cfg.Proxy.ListenAddress)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}
	return cfg, nil
}

// Validate checks the invariants every node config must satisfy
// regardless of Kind, plus the kind-specific required fields. The
// uniform struct-tag checks (`required`, `oneof`, `dive` over
// Central.Domains) run through go-playground/validator first; the
// fields that depend on which Kind is active are checked by hand below,
// since validator scopes a `required_if` reference to its own struct and
// Kind lives one level up from Central/Worker/Proxy.
func (c *NodeConfig) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return formatValidationError(err)
	}

	switch c.Kind {
	case NodeCentral:
		if c.Central.ListenAddress == "" {
			return fmt.Errorf("central.listen_address is required")
		}
	case NodeWorker:
		if c.Worker.ListenAddress == "" {
			return fmt.Errorf("worker.listen_address is required")
		}
		if c.Worker.DataPath == "" {
			return fmt.Errorf("worker.data_path is required")
		}
	case NodeProxy:
		if c.Proxy.ListenAddress == "" {
			return fmt.Errorf("proxy.listen_address is required")
		}
	default:
		return fmt.Errorf("unknown node kind: %q (must be central, worker, or proxy)", c.Kind)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvAsInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
