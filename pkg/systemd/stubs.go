package systemd

import (
	"context"
	"fmt"
	"strings"
)

// UnitManagerStub keeps units in memory. Like systemd, a unit whose
// definition changed since the last daemon-reload cannot be enabled,
// started or restarted
type UnitManagerStub struct {
	Units map[string]*Unit
	// Definitions holds the last written definition per unit
	Definitions map[string]UnitConfig
	// Calls records every operation as "<op> <name>"
	Calls []string
	// Failures makes the operation keyed "<op> <name>" fail
	Failures map[string]error
	// OnCall is invoked for every recorded operation
	OnCall  func(call string)
	pending map[string]struct{}
}

func NewUnitManagerStub() *UnitManagerStub {
	return &UnitManagerStub{
		Units:       make(map[string]*Unit),
		Definitions: make(map[string]UnitConfig),
		Failures:    make(map[string]error),
		pending:     make(map[string]struct{}),
	}
}

// Install adds an existing unit to the host
func (s *UnitManagerStub) Install(name string, enabled, active bool) {
	s.Units[name] = &Unit{Name: name, Exists: true, Enabled: enabled, Active: active}
}

func (s *UnitManagerStub) unit(name string) *Unit {
	unit, ok := s.Units[name]

	if !ok {
		unit = &Unit{Name: name}
		s.Units[name] = unit
	}

	return unit
}

func (s *UnitManagerStub) call(op, name string) error {
	call := strings.TrimSpace(op + " " + name)
	s.Calls = append(s.Calls, call)

	if s.OnCall != nil {
		s.OnCall(call)
	}

	if err, ok := s.Failures[call]; ok {
		return err
	}

	return nil
}

func (s *UnitManagerStub) loadable(name string) error {
	if !s.unit(name).Exists {
		return fmt.Errorf("unit %s not found", FileName(name))
	}

	if _, ok := s.pending[name]; ok {
		return fmt.Errorf("unit %s changed on disk, daemon-reload required", FileName(name))
	}

	return nil
}

// Mutations returns the recorded calls that change host state
func (s *UnitManagerStub) Mutations() []string {
	mutations := make([]string, 0, len(s.Calls))

	for _, call := range s.Calls {
		if !strings.HasPrefix(call, "observe ") && !strings.HasPrefix(call, "status ") &&
			!strings.HasPrefix(call, "logs ") {
			mutations = append(mutations, call)
		}
	}

	return mutations
}

func (s *UnitManagerStub) Observe(ctx context.Context, name string) (Unit, error) {
	if err := s.call("observe", name); err != nil {
		return Unit{Name: name}, err
	}

	return *s.unit(name), nil
}

func (s *UnitManagerStub) Write(ctx context.Context, unit UnitConfig) error {
	if err := s.call("write", unit.ServiceName); err != nil {
		return err
	}

	if err := unit.Validate(); err != nil {
		return err
	}

	s.Definitions[unit.ServiceName] = unit
	s.unit(unit.ServiceName).Exists = true
	s.pending[unit.ServiceName] = struct{}{}
	return nil
}

func (s *UnitManagerStub) Remove(ctx context.Context, name string) error {
	if err := s.call("remove", name); err != nil {
		return err
	}

	delete(s.Definitions, name)
	s.unit(name).Exists = false
	s.pending[name] = struct{}{}
	return nil
}

func (s *UnitManagerStub) DaemonReload(ctx context.Context) error {
	if err := s.call("daemon-reload", ""); err != nil {
		return err
	}

	s.pending = make(map[string]struct{})
	return nil
}

func (s *UnitManagerStub) Enable(ctx context.Context, name string) error {
	if err := s.call("enable", name); err != nil {
		return err
	}

	if err := s.loadable(name); err != nil {
		return err
	}

	s.unit(name).Enabled = true
	return nil
}

func (s *UnitManagerStub) Disable(ctx context.Context, name string) error {
	if err := s.call("disable", name); err != nil {
		return err
	}

	s.unit(name).Enabled = false
	return nil
}

func (s *UnitManagerStub) Start(ctx context.Context, name string) error {
	if err := s.call("start", name); err != nil {
		return err
	}

	if err := s.loadable(name); err != nil {
		return err
	}

	s.unit(name).Active = true
	return nil
}

func (s *UnitManagerStub) Stop(ctx context.Context, name string) error {
	if err := s.call("stop", name); err != nil {
		return err
	}

	s.unit(name).Active = false
	return nil
}

func (s *UnitManagerStub) Restart(ctx context.Context, name string) error {
	if err := s.call("restart", name); err != nil {
		return err
	}

	if err := s.loadable(name); err != nil {
		return err
	}

	s.unit(name).Active = true
	return nil
}

func (s *UnitManagerStub) Status(ctx context.Context, name string) (string, error) {
	if err := s.call("status", name); err != nil {
		return "", err
	}

	unit := s.unit(name)
	return fmt.Sprintf("%s exists=%t enabled=%t active=%t", FileName(name),
		unit.Exists, unit.Enabled, unit.Active), nil
}

func (s *UnitManagerStub) Logs(ctx context.Context, name string, lines int) (string, error) {
	if err := s.call("logs", name); err != nil {
		return "", err
	}

	return fmt.Sprintf("-- logs of %s --\n", FileName(name)), nil
}
