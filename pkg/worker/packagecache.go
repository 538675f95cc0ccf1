package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"

	"github.com/brane-project/brane/internal/container"
)

// PackageFetcher downloads a package's container tarball from the
// central API when it is not yet present in the local cache.
type PackageFetcher interface {
	Download(ctx context.Context, name, version string) (io.ReadCloser, error)
}

// PackageCache materializes and caches container tarballs plus their two
// sibling digest files under the worker's package cache filesystem
// layout (`packages/<pkg>-<ver>.tar`, `-id.sha256`, `-hash.sha256`).
type PackageCache struct {
	dir           string
	fetch         PackageFetcher
	hashContainers bool
}

// NewPackageCache creates a PackageCache rooted at dir (the worker
// backend's packages directory). cmd/worker passes the node config's
// worker.hash_containers as hashContainers (the backend file has no such
// field): when false, ContentHash is never computed or cached.
func NewPackageCache(dir string, fetch PackageFetcher, hashContainers bool) *PackageCache {
	return &PackageCache{dir: dir, fetch: fetch, hashContainers: hashContainers}
}

// CachedPackage is the materialized tarball path plus its cached
// identifiers.
type CachedPackage struct {
	TarPath string
	ID      digest.Digest
	Hash     digest.Digest // zero value if hashing is disabled
}

// Ensure guarantees name-version's tarball is present locally, downloading
// it via the PackageFetcher if absent, and returns its cached Docker id
// and (if enabled) content hash, computing and caching either the first
// time they are needed.
func (c *PackageCache) Ensure(ctx context.Context, name, version string) (*CachedPackage, error) {
	base := filepath.Join(c.dir, fmt.Sprintf("%s-%s", name, version))
	tarPath := base + ".tar"

	if _, err := os.Stat(tarPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: stat %s: %v", ErrUnknownPackage, tarPath, err)
		}
		if err := c.download(ctx, name, version, tarPath); err != nil {
			return nil, err
		}
	}

	id, err := c.cachedDigest(base+"-id.sha256", tarPath, container.ManifestConfigDigest)
	if err != nil {
		return nil, err
	}

	result := &CachedPackage{TarPath: tarPath, ID: id}
	if c.hashContainers {
		hash, err := c.cachedDigest(base+"-hash.sha256", tarPath, container.ContentHash)
		if err != nil {
			return nil, err
		}
		result.Hash = hash
	}
	return result, nil
}

func (c *PackageCache) download(ctx context.Context, name, version, tarPath string) error {
	rc, err := c.fetch.Download(ctx, name, version)
	if err != nil {
		return fmt.Errorf("%w: %s-%s: %v", ErrUnknownPackage, name, version, err)
	}
	defer rc.Close()

	tmp := tarPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrUnknownPackage, tmp, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: writing %s: %v", ErrUnknownPackage, tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: closing %s: %v", ErrUnknownPackage, tmp, err)
	}
	return os.Rename(tmp, tarPath)
}

func (c *PackageCache) cachedDigest(sidecarPath, tarPath string, compute func(string) (digest.Digest, error)) (digest.Digest, error) {
	if b, err := os.ReadFile(sidecarPath); err == nil {
		return digest.Parse(string(b))
	}
	d, err := compute(tarPath)
	if err != nil {
		return "", err
	}
	_ = os.WriteFile(sidecarPath, []byte(d.String()), 0o644)
	return d, nil
}
