package nginx

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/tim-beatham/khost/pkg/cmd"
	"github.com/tim-beatham/khost/pkg/fsys"
	logging "github.com/tim-beatham/khost/pkg/log"
)

// RouteFileName is the single route file khost owns
const RouteFileName = "khost.conf"

// ConfigManager owns the route file and the nginx reload
type ConfigManager interface {
	Path() string
	// Read returns the current route file. A missing file yields
	// exists false
	Read() (content string, exists bool, err error)
	Write(content string) error
	Remove() error
	// Reload tests the configuration and then reloads nginx
	Reload(ctx context.Context) error
}

type NginxConfigManager struct {
	Folder string
	Runner cmd.CmdRunner
	Fs     fsys.FileSystem
}

func NewNginxConfigManager(folder string, runner cmd.CmdRunner, fs fsys.FileSystem) *NginxConfigManager {
	return &NginxConfigManager{Folder: folder, Runner: runner, Fs: fs}
}

func (n *NginxConfigManager) Path() string {
	return filepath.Join(n.Folder, "sites-enabled", RouteFileName)
}

func (n *NginxConfigManager) Read() (string, bool, error) {
	data, err := n.Fs.ReadFile(n.Path())

	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return string(data), true, nil
}

func (n *NginxConfigManager) Write(content string) error {
	logging.Log.WriteInfof("writing nginx routes %s", n.Path())
	return n.Fs.WriteFile(n.Path(), []byte(content), 0644)
}

func (n *NginxConfigManager) Remove() error {
	logging.Log.WriteInfof("removing nginx routes %s", n.Path())
	return n.Fs.Remove(n.Path())
}

func (n *NginxConfigManager) Reload(ctx context.Context) error {
	return cmd.RunCommands(ctx, n.Runner,
		[]string{"nginx", "-t"},
		[]string{"nginx", "-s", "reload"},
	)
}
