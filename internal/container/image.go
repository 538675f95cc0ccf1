package container

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	digest "github.com/opencontainers/go-digest"
)

// manifestEntry is the shape of one entry in a `docker save` tarball's
// top-level manifest.json: the config blob's filename plus repo tags and
// layer filenames.
type manifestEntry struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags"`
	Layers   []string `json:"Layers"`
}

// ManifestConfigDigest reads a package tarball's manifest.json without
// loading it into the daemon and returns the sha256 digest of its config
// blob — the Docker image id, cached alongside
// the tar as "<name>-<version>-id.sha256".
func ManifestConfigDigest(tarPath string) (digest.Digest, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", ErrDigest, tarPath, err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	var manifest []manifestEntry
	configBlobs := map[string][]byte{}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: reading tar %s: %v", ErrDigest, tarPath, err)
		}
		switch {
		case hdr.Name == "manifest.json":
			if err := json.NewDecoder(tr).Decode(&manifest); err != nil {
				return "", fmt.Errorf("%w: decoding manifest.json: %v", ErrDigest, err)
			}
		default:
			// Buffer every other top-level file; config blobs are
			// usually named "<sha256>.json" at the archive root, but we
			// don't know which one until manifest.json is parsed, which
			// may come before or after it in tar order.
			blob, err := io.ReadAll(tr)
			if err != nil {
				return "", fmt.Errorf("%w: reading %s: %v", ErrDigest, hdr.Name, err)
			}
			configBlobs[hdr.Name] = blob
		}
	}

	if len(manifest) == 0 {
		return "", fmt.Errorf("%w: %s has no manifest.json entries", ErrDigest, tarPath)
	}
	blob, ok := configBlobs[manifest[0].Config]
	if !ok {
		return "", fmt.Errorf("%w: config blob %q not found in %s", ErrDigest, manifest[0].Config, tarPath)
	}
	return digest.FromBytes(blob), nil
}

// ContentHash computes the cryptographic content hash of the tarball
// itself (not its unpacked contents), used when the backend's
// hash_containers flag is set , cached as
// "<name>-<version>-hash.sha256".
func ContentHash(tarPath string) (digest.Digest, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", ErrHash, tarPath, err)
	}
	defer f.Close()
	d, err := digest.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: hashing %s: %v", ErrHash, tarPath, err)
	}
	return d, nil
}

// LoadImage loads a package tarball into the Docker daemon so it can be
// referenced by the repo:tag recorded in its manifest.json. Returns that
// reference for use in a subsequent container create.
func (c *Client) LoadImage(ctx context.Context, tarPath string) (string, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", ErrLoad, tarPath, err)
	}
	defer f.Close()

	resp, err := c.cli.ImageLoad(ctx, f, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoad, err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return "", fmt.Errorf("%w: draining load response: %v", ErrLoad, err)
	}

	ref, err := repoTagFromManifest(tarPath)
	if err != nil {
		return "", err
	}
	return ref, nil
}

func repoTagFromManifest(tarPath string) (string, error) {
	f, err := os.Open(tarPath)
	if err != nil {
		return "", fmt.Errorf("%w: opening %s: %v", ErrLoad, tarPath, err)
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: reading tar %s: %v", ErrLoad, tarPath, err)
		}
		if hdr.Name != "manifest.json" {
			continue
		}
		var manifest []manifestEntry
		if err := json.NewDecoder(tr).Decode(&manifest); err != nil {
			return "", fmt.Errorf("%w: decoding manifest.json: %v", ErrLoad, err)
		}
		if len(manifest) == 0 || len(manifest[0].RepoTags) == 0 {
			return "", fmt.Errorf("%w: %s manifest has no repo tags", ErrLoad, tarPath)
		}
		return manifest[0].RepoTags[0], nil
	}
	return "", fmt.Errorf("%w: %s has no manifest.json", ErrLoad, tarPath)
}
