package systemd

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tim-beatham/khost/pkg/cmd"
	"github.com/tim-beatham/khost/pkg/fsys"
	logging "github.com/tim-beatham/khost/pkg/log"
)

// UnitManager controls units through the init system. Names are
// service names without the .service suffix
type UnitManager interface {
	Observe(ctx context.Context, name string) (Unit, error)
	// Write renders and writes the unit definition, replacing any
	// existing one
	Write(ctx context.Context, unit UnitConfig) error
	// Remove deletes the unit definition
	Remove(ctx context.Context, name string) error
	DaemonReload(ctx context.Context) error
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	// Status is the human readable systemctl status output
	Status(ctx context.Context, name string) (string, error)
	// Logs returns the last lines of the unit journal
	Logs(ctx context.Context, name string, lines int) (string, error)
}

// SystemctlUnitManager writes unit files into UnitFolder and shells out
// to systemctl and journalctl
type SystemctlUnitManager struct {
	UnitFolder string
	Runner     cmd.CmdRunner
	Fs         fsys.FileSystem
}

func NewSystemctlUnitManager(unitFolder string, runner cmd.CmdRunner, fs fsys.FileSystem) *SystemctlUnitManager {
	return &SystemctlUnitManager{UnitFolder: unitFolder, Runner: runner, Fs: fs}
}

// UnitPath is where the definition of the named unit lives
func (s *SystemctlUnitManager) UnitPath(name string) string {
	return filepath.Join(s.UnitFolder, FileName(name))
}

func (s *SystemctlUnitManager) systemctl(ctx context.Context, args ...string) (*cmd.Result, error) {
	return s.Runner.Run(ctx, "systemctl", args...)
}

// parseShow reads the key=value lines printed by systemctl show
func parseShow(output string) map[string]string {
	properties := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))

	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")

		if ok {
			properties[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}

	return properties
}

func (s *SystemctlUnitManager) Observe(ctx context.Context, name string) (Unit, error) {
	result, err := s.systemctl(ctx, "show", FileName(name), "--no-pager",
		"--property=LoadState,UnitFileState,ActiveState")

	if err != nil {
		return Unit{Name: name}, fmt.Errorf("observing %s: %w", name, err)
	}

	properties := parseShow(result.Output)

	unit := Unit{
		Name:   name,
		Exists: s.Fs.Exists(s.UnitPath(name)) || properties["LoadState"] == "loaded",
	}

	switch properties["UnitFileState"] {
	case "enabled", "enabled-runtime":
		unit.Enabled = true
	}

	switch properties["ActiveState"] {
	case "active", "reloading":
		unit.Active = true
	}

	logging.Log.WriteDebugf("observed %s: %+v", name, unit)
	return unit, nil
}

func (s *SystemctlUnitManager) Write(ctx context.Context, unit UnitConfig) error {
	content, err := unit.Render()

	if err != nil {
		return err
	}

	path := s.UnitPath(unit.ServiceName)
	logging.Log.WriteInfof("writing unit %s", path)
	return s.Fs.WriteFile(path, []byte(content), 0644)
}

func (s *SystemctlUnitManager) Remove(ctx context.Context, name string) error {
	path := s.UnitPath(name)
	logging.Log.WriteInfof("removing unit %s", path)
	return s.Fs.Remove(path)
}

func (s *SystemctlUnitManager) DaemonReload(ctx context.Context) error {
	_, err := s.systemctl(ctx, "daemon-reload")
	return err
}

func (s *SystemctlUnitManager) Enable(ctx context.Context, name string) error {
	_, err := s.systemctl(ctx, "enable", FileName(name))
	return err
}

func (s *SystemctlUnitManager) Disable(ctx context.Context, name string) error {
	_, err := s.systemctl(ctx, "disable", FileName(name))
	return err
}

func (s *SystemctlUnitManager) Start(ctx context.Context, name string) error {
	_, err := s.systemctl(ctx, "start", FileName(name))
	return err
}

func (s *SystemctlUnitManager) Stop(ctx context.Context, name string) error {
	_, err := s.systemctl(ctx, "stop", FileName(name))
	return err
}

func (s *SystemctlUnitManager) Restart(ctx context.Context, name string) error {
	_, err := s.systemctl(ctx, "restart", FileName(name))
	return err
}

// Status: systemctl status exits non-zero for inactive units, the
// output is still returned
func (s *SystemctlUnitManager) Status(ctx context.Context, name string) (string, error) {
	result, err := s.systemctl(ctx, "status", FileName(name), "--no-pager")

	if result != nil {
		return result.Output, nil
	}

	return "", err
}

func (s *SystemctlUnitManager) Logs(ctx context.Context, name string, lines int) (string, error) {
	if lines <= 0 {
		lines = 100
	}

	result, err := s.Runner.Run(ctx, "journalctl", "-u", FileName(name),
		"-n", strconv.Itoa(lines), "--no-pager")

	if err != nil {
		return "", err
	}

	return result.Output, nil
}
