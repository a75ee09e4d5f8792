package artifact

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/peterbourgon/diskv"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
)

// Store is a flat key/value blob store. Keys have the form
// "<model>.<component>"; Put must never expose a partially written value.
type Store interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, error)
	Has(key string) bool
	Delete(key string) error
	// Keys lists every key with the given prefix.
	Keys(prefix string) []string
}

// DiskStore keeps each model's components in <root>/<model>/ through diskv.
// Writes go to <root>/.tmp first and are renamed into place. Reads always
// go to disk so that several handles (or processes) on one root see each
// other's writes.
type DiskStore struct {
	root string
	d    *diskv.Diskv
}

// modelDir maps "churn-v1.encoder" to the directory "churn-v1".
func modelDir(key string) []string {
	name, _, _ := strings.Cut(key, ".")
	return []string{name}
}

// NewDiskStore opens (creating if needed) a store rooted at root.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, errors.NewConfigurationError("storage.root", "must not be empty")
	}
	tmp := filepath.Join(root, ".tmp")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create artifact store %s", root)
	}
	d := diskv.New(diskv.Options{
		BasePath:     root,
		TempDir:      tmp,
		Transform:    modelDir,
		CacheSizeMax: 0,
		FilePerm:     0o644,
		PathPerm:     0o755,
	})
	return &DiskStore{root: root, d: d}, nil
}

// Root returns the base directory.
func (s *DiskStore) Root() string { return s.root }

func (s *DiskStore) Put(key string, data []byte) error {
	if err := s.d.Write(key, data); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	return nil
}

func (s *DiskStore) Get(key string) ([]byte, error) {
	b, err := s.d.Read(key)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return b, nil
}

func (s *DiskStore) Has(key string) bool { return s.d.Has(key) }

func (s *DiskStore) Delete(key string) error {
	if err := s.d.Erase(key); err != nil {
		return errors.Wrapf(err, "erase %s", key)
	}
	return nil
}

func (s *DiskStore) Keys(prefix string) []string {
	cancel := make(chan struct{})
	defer close(cancel)
	var keys []string
	for k := range s.d.KeysPrefix(prefix, cancel) {
		keys = append(keys, k)
	}
	return keys
}
