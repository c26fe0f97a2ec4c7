// fsys abstracts the file writes khost performs on protected paths so
// they can be replaced in tests
package fsys

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	// WriteFile replaces the file as a whole. Readers never observe a
	// partially written file
	WriteFile(path string, data []byte, perm os.FileMode) error
	// Remove deletes the file. Removing a missing file is not an error
	Remove(path string) error
	Exists(path string) bool
}

// OsFileSystem writes through a temporary file in the target folder and
// renames it into place
type OsFileSystem struct {
	// writeTemp writes the temporary file, os.WriteFile when nil
	writeTemp func(name string, data []byte, perm os.FileMode) error
}

func (o *OsFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (o *OsFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	temp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	writeTemp := o.writeTemp

	if writeTemp == nil {
		writeTemp = os.WriteFile
	}

	if err := writeTemp(temp, data, perm); err != nil {
		os.Remove(temp)
		return fmt.Errorf("writing %s: %w", path, err)
	}

	// WriteFile honours the umask, the installed file must not
	if err := os.Chmod(temp, perm); err != nil {
		os.Remove(temp)
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if err := os.Rename(temp, path); err != nil {
		os.Remove(temp)
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

func (o *OsFileSystem) Remove(path string) error {
	err := os.Remove(path)

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}

	return nil
}

func (o *OsFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
