package fsys

import (
	"fmt"
	"io/fs"
	"os"
)

// MemFileSystem keeps files in memory. WriteErrors and RemoveErrors
// inject failures for a given path
type MemFileSystem struct {
	Files        map[string][]byte
	WriteErrors  map[string]error
	RemoveErrors map[string]error
	Writes       int
	Removes      int
}

func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{
		Files:        make(map[string][]byte),
		WriteErrors:  make(map[string]error),
		RemoveErrors: make(map[string]error),
	}
}

func (m *MemFileSystem) ReadFile(path string) ([]byte, error) {
	data, ok := m.Files[path]

	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}

	return append([]byte(nil), data...), nil
}

func (m *MemFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err, ok := m.WriteErrors[path]; ok {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	m.Writes++
	m.Files[path] = append([]byte(nil), data...)
	return nil
}

func (m *MemFileSystem) Remove(path string) error {
	if err, ok := m.RemoveErrors[path]; ok {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	if _, ok := m.Files[path]; ok {
		m.Removes++
	}

	delete(m.Files, path)
	return nil
}

func (m *MemFileSystem) Exists(path string) bool {
	_, ok := m.Files[path]
	return ok
}
