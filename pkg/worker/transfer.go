package worker

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/brane-project/brane/pkg/cache"
	"github.com/brane-project/brane/pkg/ir"
)

// ErrDownloadRequestFailure, ErrDownloadStreamError, ErrTarWriteError,
// ErrDataExtractError and ErrLocationResolve are the Transfer layer's
// sentinel errors.
var (
	ErrDownloadRequestFailure = fmt.Errorf("registry download request failed")
	ErrDownloadStreamError    = fmt.Errorf("registry download stream error")
	ErrTarWriteError          = fmt.Errorf("writing downloaded tar failed")
	ErrDataExtractError       = fmt.Errorf("extracting downloaded tar failed")
	ErrLocationResolve        = fmt.Errorf("resolving source domain registry address failed")
)

// downloadRequestBody is the JSON body of a data/results download
// request.
type downloadRequestBody struct {
	UseCase  string              `json:"use_case"`
	Workflow json.RawMessage     `json:"workflow"`
	Task     *ir.ProgramCounter  `json:"task,omitempty"`
}

// Transferer implements the consumer side of Data
// Transfer Protocol: resolving a source domain's registry address,
// downloading a gzipped tar, and extracting it into the worker's
// temp-data/temp-results staging area.
type Transferer struct {
	domains        *cache.DomainRegistryCache
	httpClient     *http.Client
	tempDataDir    string
	tempResultsDir string
	tempTarsDir    string
}

// NewTransferer constructs a Transferer. httpClient should carry the
// worker's mutual-TLS client certificate configuration; a plain
// *http.Client is accepted so tests can substitute an httptest server.
func NewTransferer(domains *cache.DomainRegistryCache, httpClient *http.Client, tempDataDir, tempResultsDir, tempTarsDir string) *Transferer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Transferer{domains: domains, httpClient: httpClient, tempDataDir: tempDataDir, tempResultsDir: tempResultsDir, tempTarsDir: tempTarsDir}
}

// Preprocess resolves one Node input to a locally usable AccessKind,
// fetching it from its source domain if the planner marked it
// Unavailable. Per idempotence invariant, re-preprocessing
// the same datum returns the same path without re-downloading if the
// staging directory is already populated.
func (tr *Transferer) Preprocess(ctx context.Context, name ir.DataName, avail ir.AvailabilityKind, useCase string, workflowJSON json.RawMessage, task *ir.ProgramCounter) (ir.AccessKind, error) {
	if avail.Tag == ir.AvailabilityAvailable {
		return avail.How, nil
	}

	targetDir := tr.stageDir(name)
	if populated(targetDir) {
		return ir.FileAccess(targetDir), nil
	}

	info, err := tr.domains.Lookup(ctx, avail.Source)
	if err != nil {
		return ir.AccessKind{}, fmt.Errorf("%w: domain %q: %v", ErrLocationResolve, avail.Source, err)
	}

	body, err := json.Marshal(downloadRequestBody{UseCase: useCase, Workflow: workflowJSON, Task: task})
	if err != nil {
		return ir.AccessKind{}, fmt.Errorf("%w: encoding request body: %v", ErrDownloadRequestFailure, err)
	}

	url := fmt.Sprintf("%s%s/%s", info.Address, downloadPathPrefix(name), name.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, bytes.NewReader(body))
	if err != nil {
		return ir.AccessKind{}, fmt.Errorf("%w: building request: %v", ErrDownloadRequestFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tr.httpClient.Do(req)
	if err != nil {
		return ir.AccessKind{}, fmt.Errorf("%w: %v", ErrDownloadRequestFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ir.AccessKind{}, fmt.Errorf("%w: status %d", ErrDownloadRequestFailure, resp.StatusCode)
	}

	tarGzPath, err := tr.writeTarGz(name, resp.Body)
	if err != nil {
		return ir.AccessKind{}, err
	}

	if err := extractTarGz(tarGzPath, targetDir); err != nil {
		return ir.AccessKind{}, err
	}

	return ir.FileAccess(targetDir), nil
}

func downloadPathPrefix(name ir.DataName) string {
	if name.Kind == ir.DataNameIntermediateResult {
		return "/results/download"
	}
	return "/data/download"
}

func (tr *Transferer) stageDir(name ir.DataName) string {
	if name.Kind == ir.DataNameIntermediateResult {
		return filepath.Join(tr.tempResultsDir, name.Name)
	}
	return filepath.Join(tr.tempDataDir, name.Name)
}

func (tr *Transferer) writeTarGz(name ir.DataName, body io.Reader) (string, error) {
	kind := "data"
	if name.Kind == ir.DataNameIntermediateResult {
		kind = "res"
	}
	if err := os.MkdirAll(tr.tempTarsDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating tars dir: %v", ErrTarWriteError, err)
	}
	path := filepath.Join(tr.tempTarsDir, fmt.Sprintf("%s_%s.tar.gz", kind, name.Name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: creating %s: %v", ErrTarWriteError, path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", ErrDownloadStreamError, path, err)
	}
	return path, nil
}

func extractTarGz(tarGzPath, targetDir string) error {
	f, err := os.Open(tarGzPath)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrDataExtractError, tarGzPath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: gzip %s: %v", ErrDataExtractError, tarGzPath, err)
	}
	defer gz.Close()

	tmpDir := targetDir + ".partial"
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrDataExtractError, tmpDir, err)
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar entry: %v", ErrDataExtractError, err)
		}
		dest := filepath.Join(tmpDir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("%w: mkdir %s: %v", ErrDataExtractError, dest, err)
			}
		default:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("%w: mkdir %s: %v", ErrDataExtractError, dest, err)
			}
			out, err := os.Create(dest)
			if err != nil {
				return fmt.Errorf("%w: creating %s: %v", ErrDataExtractError, dest, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("%w: writing %s: %v", ErrDataExtractError, dest, err)
			}
			out.Close()
		}
	}

	return os.Rename(tmpDir, targetDir)
}

func populated(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
