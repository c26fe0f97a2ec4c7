package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/tim-beatham/khost/pkg/fsys"
	logging "github.com/tim-beatham/khost/pkg/log"
)

// Store persists the desired state
type Store interface {
	Load() (*Config, error)
	Save(config *Config) error
}

// FileStore keeps the configuration as an indented JSON document
type FileStore struct {
	Path string
	Fs   fsys.FileSystem
}

func NewFileStore(path string, fs fsys.FileSystem) *FileStore {
	return &FileStore{Path: path, Fs: fs}
}

// Load reads the configuration. A missing file yields the defaults,
// which are saved. A migrated document is written back in the current
// schema
func (f *FileStore) Load() (*Config, error) {
	data, err := f.Fs.ReadFile(f.Path)

	if errors.Is(err, fs.ErrNotExist) {
		logging.Log.WriteInfof("no configuration at %s, creating defaults", f.Path)
		config := Default()
		return config, f.Save(config)
	}

	if err != nil {
		return nil, err
	}

	config, migrated, err := Parse(data)

	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}

	if migrated {
		if err := f.Save(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (f *FileStore) Save(config *Config) error {
	if err := Validate(config); err != nil {
		return fmt.Errorf("refusing to save invalid configuration: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "    ")

	if err != nil {
		return err
	}

	return f.Fs.WriteFile(f.Path, append(data, '\n'), 0644)
}

// Update applies fn to a copy of config and persists the result. The
// caller's config is only replaced when validation and the write both
// succeed
func Update(store Store, config *Config, fn func(*Config) error) error {
	next := config.Clone()

	if err := fn(next); err != nil {
		return err
	}

	if err := Validate(next); err != nil {
		return err
	}

	if err := store.Save(next); err != nil {
		return err
	}

	*config = *next
	return nil
}
