// Package file is the file collaborator: read/write/list verbs over a Store
// interface, with a local-disk store and an SFTP store.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store abstracts file access for the runtime.
type Store interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	List(dir string) ([]string, error)
}

// Local is a Store rooted at a directory on local disk. Paths escaping the
// root are rejected.
type Local struct {
	Root string
}

// NewLocal creates a local store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{Root: dir}
}

func (l *Local) resolve(path string) (string, error) {
	full := filepath.Clean(filepath.Join(l.Root, path))
	root := filepath.Clean(l.Root)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes store root", path)
	}
	return full, nil
}

// Read implements Store.
func (l *Local) Read(path string) ([]byte, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Write implements Store.
func (l *Local) Write(path string, data []byte) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

// List implements Store.
func (l *Local) List(dir string) ([]string, error) {
	full, err := l.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
