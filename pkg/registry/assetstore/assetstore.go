// Package assetstore implements a filesystem layout for first-class
// datasets: `data/<name>/data.yml` (an AssetInfo) alongside
// `data/<name>/data/…` (the dataset's contents), a narrow persistence
// interface (`Store` plus a concrete filesystem-backed store) rather than
// an ORM, since nothing here is a relational store of record.
package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a named asset has no data.yml on disk.
var ErrNotFound = errors.New("assetstore: asset not found")

// AssetInfo is a first-class dataset's metadata, served verbatim by the
// registry's `/data/info` and `/data/info/{name}` endpoints.
type AssetInfo struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Owner       string     `yaml:"owner,omitempty" json:"owner,omitempty"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	SourceDomain string   `yaml:"source_domain,omitempty" json:"source_domain,omitempty"`
	Size        int64     `yaml:"size" json:"size"`
}

// Store persists AssetInfo plus the dataset contents it describes.
type Store interface {
	// Put promotes contentDir's contents to the dataset named info.Name,
	// writing info as data.yml alongside it. contentDir is moved, not
	// copied, by the default FilesystemStore: callers must not reuse it
	// afterward.
	Put(ctx context.Context, info AssetInfo, contentDir string) error
	Get(ctx context.Context, name string) (AssetInfo, error)
	List(ctx context.Context) ([]AssetInfo, error)
	// Path returns the on-disk directory holding name's dataset contents,
	// valid whether or not the dataset currently exists.
	Path(name string) string
}

// FilesystemStore is the default Store, rooted at the worker's `data`
// directory from the node configuration.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{root: root}
}

func (s *FilesystemStore) assetDir(name string) string {
	return filepath.Join(s.root, name)
}

func (s *FilesystemStore) infoPath(name string) string {
	return filepath.Join(s.assetDir(name), "data.yml")
}

func (s *FilesystemStore) Path(name string) string {
	return filepath.Join(s.assetDir(name), "data")
}

func (s *FilesystemStore) Put(_ context.Context, info AssetInfo, contentDir string) error {
	if info.Name == "" {
		return fmt.Errorf("assetstore: empty asset name")
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = time.Now()
	}
	if size, err := dirSize(contentDir); err == nil {
		info.Size = size
	}

	if err := os.MkdirAll(s.assetDir(info.Name), 0o755); err != nil {
		return fmt.Errorf("assetstore: creating asset dir: %w", err)
	}

	target := s.Path(info.Name)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("assetstore: clearing existing contents: %w", err)
	}
	if err := os.Rename(contentDir, target); err != nil {
		return fmt.Errorf("assetstore: moving %s to %s: %w", contentDir, target, err)
	}

	raw, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("assetstore: marshaling data.yml: %w", err)
	}
	if err := os.WriteFile(s.infoPath(info.Name), raw, 0o644); err != nil {
		return fmt.Errorf("assetstore: writing data.yml: %w", err)
	}
	return nil
}

func (s *FilesystemStore) Get(_ context.Context, name string) (AssetInfo, error) {
	raw, err := os.ReadFile(s.infoPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return AssetInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return AssetInfo{}, fmt.Errorf("assetstore: reading data.yml: %w", err)
	}
	var info AssetInfo
	if err := yaml.Unmarshal(raw, &info); err != nil {
		return AssetInfo{}, fmt.Errorf("assetstore: decoding data.yml: %w", err)
	}
	return info, nil
}

func (s *FilesystemStore) List(ctx context.Context) ([]AssetInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("assetstore: reading %s: %w", s.root, err)
	}
	var out []AssetInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := s.Get(ctx, e.Name())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // a stray directory with no data.yml; warning-worthy, not fatal
			}
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
