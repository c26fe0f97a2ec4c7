// manager carries out the operator commands against the desired state
// and the host
package manager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/tim-beatham/khost/pkg/cmd"
	"github.com/tim-beatham/khost/pkg/conf"
	"github.com/tim-beatham/khost/pkg/fsys"
	"github.com/tim-beatham/khost/pkg/host"
	"github.com/tim-beatham/khost/pkg/lib"
	logging "github.com/tim-beatham/khost/pkg/log"
	"github.com/tim-beatham/khost/pkg/nginx"
	"github.com/tim-beatham/khost/pkg/reconcile"
	"github.com/tim-beatham/khost/pkg/service"
	"github.com/tim-beatham/khost/pkg/state"
	"github.com/tim-beatham/khost/pkg/status"
	"github.com/tim-beatham/khost/pkg/systemd"
)

// ResolverTarget selects the resolver in SetOrigin
const ResolverTarget = "resolver"

type HostManager interface {
	// Config returns a copy of the desired state
	Config() *state.Config
	Services() []service.Service
	Reconfigure(ctx context.Context, force bool) (*reconcile.Report, error)
	// ReconfigureIfNeeded runs a forced pass when the khost version
	// changed since the last one. ran reports whether it did. The
	// version is stamped even when the pass fails so that it runs once
	ReconfigureIfNeeded(ctx context.Context) (report *reconcile.Report, ran bool, err error)
	ConfigureNetworks(ctx context.Context, networks []state.Network) (*reconcile.Report, error)
	ConfigureResolver(ctx context.Context, enabled bool) (*reconcile.Report, error)
	ConfigureProxy(ctx context.Context, params ProxyParams) (*reconcile.Report, error)
	SetPublic(ctx context.Context, public bool) (*reconcile.Report, error)
	SetDomains(ctx context.Context, domains []string) (*reconcile.Report, error)
	SetOrigin(ctx context.Context, target, repository, branch string) (*reconcile.Report, error)
	StartAll(ctx context.Context) error
	StopAll(ctx context.Context) error
	RestartAll(ctx context.Context) error
	Logs(ctx context.Context, name string, lines int) (string, error)
	Status(ctx context.Context) (*status.Report, error)
	Uninstall(ctx context.Context) (*reconcile.Report, error)
	MarkBootstrapped() error
}

// ProxyParams changes the reverse proxy. Certificate and Key enable
// TLS, DisableTls turns it off. A nil Port keeps the current one
type ProxyParams struct {
	Enabled     bool
	Port        *uint16
	Certificate string
	Key         string
	DisableTls  bool
}

type HostManagerImpl struct {
	settings   *conf.Settings
	version    string
	store      state.Store
	config     *state.Config
	fs         fsys.FileSystem
	units      systemd.UnitManager
	proxy      nginx.ConfigManager
	reconciler *reconcile.Reconciler
	probe      status.ListenerProbe
	hostProbe  func(diskPath string) (*host.Info, error)
}

type NewHostManagerParams struct {
	Settings *conf.Settings
	// Verbose streams the output of every command khost runs
	Verbose bool
	// Version of khost, stamped after a forced pass
	Version   string
	Runner    cmd.CmdRunner
	Fs        fsys.FileSystem
	Memory    host.MemoryProbe
	Confirmer reconcile.Confirmer
	// Units, Proxy, Store, Probe and HostProbe default to the real
	// implementations when nil
	Units     systemd.UnitManager
	Proxy     nginx.ConfigManager
	Store     state.Store
	Probe     status.ListenerProbe
	HostProbe func(diskPath string) (*host.Info, error)
}

// NewHostManager loads the desired state and wires the host
// collaborators
func NewHostManager(params *NewHostManagerParams) (HostManager, error) {
	if params.Settings == nil {
		return nil, errors.New("settings are required")
	}

	m := &HostManagerImpl{
		settings:  params.Settings,
		version:   params.Version,
		fs:        params.Fs,
		units:     params.Units,
		proxy:     params.Proxy,
		store:     params.Store,
		probe:     params.Probe,
		hostProbe: params.HostProbe,
	}

	if m.fs == nil {
		m.fs = &fsys.OsFileSystem{}
	}

	runner := params.Runner

	if runner == nil {
		runner = &cmd.UnixCmdRunner{Verbose: params.Verbose, Stream: logging.Log.Writer()}
	}

	if m.units == nil {
		m.units = systemd.NewSystemctlUnitManager(params.Settings.UnitFolder, runner, m.fs)
	}

	if m.proxy == nil {
		m.proxy = nginx.NewNginxConfigManager(params.Settings.NginxFolder, runner, m.fs)
	}

	if m.store == nil {
		m.store = state.NewFileStore(params.Settings.StatePath(), m.fs)
	}

	if m.probe == nil {
		m.probe = status.NewDialProbe(time.Duration(params.Settings.ProbeTimeout) * time.Second)
	}

	if m.hostProbe == nil {
		m.hostProbe = host.Probe
	}

	memory := params.Memory

	if memory == nil {
		memory = host.SysinfoProbe{}
	}

	m.reconciler = reconcile.NewReconciler(&reconcile.NewReconcilerParams{
		Units:            m.units,
		Proxy:            m.proxy,
		Memory:           memory,
		Layout:           service.LayoutFromSettings(params.Settings),
		MinMemoryPerNode: params.Settings.MinMemoryPerNode(),
		Confirmer:        params.Confirmer,
	})

	config, err := m.store.Load()

	if err != nil {
		return nil, fmt.Errorf("loading desired state: %w", err)
	}

	m.config = config
	return m, nil
}

func (m *HostManagerImpl) Config() *state.Config {
	return m.config.Clone()
}

func (m *HostManagerImpl) Services() []service.Service {
	return service.FromConfig(m.config)
}

func (m *HostManagerImpl) reconcile(ctx context.Context, opts reconcile.Options) (*reconcile.Report, error) {
	report, err := m.reconciler.Reconcile(ctx, service.FromConfig(m.config), opts)

	if err != nil {
		return report, fmt.Errorf("reconciling host: %w", err)
	}

	return report, nil
}

// update persists the change and then reconciles
func (m *HostManagerImpl) update(ctx context.Context, opts reconcile.Options, fn func(*state.Config) error) (*reconcile.Report, error) {
	if err := state.Update(m.store, m.config, fn); err != nil {
		return nil, err
	}

	return m.reconcile(ctx, opts)
}

func (m *HostManagerImpl) Reconfigure(ctx context.Context, force bool) (*reconcile.Report, error) {
	return m.reconcile(ctx, reconcile.Options{Force: force})
}

func (m *HostManagerImpl) ReconfigureIfNeeded(ctx context.Context) (*reconcile.Report, bool, error) {
	path := m.settings.VersionPath()
	stamp, err := m.fs.ReadFile(path)

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	if err == nil && strings.TrimSpace(string(stamp)) == m.version {
		return nil, false, nil
	}

	logging.Log.WriteInfof("khost version changed to %s, rebuilding service configuration", m.version)

	report, err := m.reconcile(ctx, reconcile.Options{Force: true})

	if err != nil {
		logging.Log.WriteWarnf("rebuild incomplete, run reconcile --force once the cause is fixed")
	}

	if stampErr := m.fs.WriteFile(path, []byte(m.version+"\n"), 0644); stampErr != nil {
		err = errors.Join(err, fmt.Errorf("writing version stamp: %w", stampErr))
	}

	return report, true, err
}

// ConfigureNetworks enables exactly the given networks. The memory
// check runs before the change is persisted
func (m *HostManagerImpl) ConfigureNetworks(ctx context.Context, networks []state.Network) (*reconcile.Report, error) {
	networks = lib.Unique(networks)
	next := m.config.Clone()
	next.SetNetworks(networks)

	if err := m.reconciler.Admit(ctx, service.FromConfig(next), reconcile.Options{}); err != nil {
		return nil, err
	}

	return m.update(ctx, reconcile.Options{AllowLowMemory: true}, func(c *state.Config) error {
		c.SetNetworks(networks)
		return nil
	})
}

func (m *HostManagerImpl) ConfigureResolver(ctx context.Context, enabled bool) (*reconcile.Report, error) {
	return m.update(ctx, reconcile.Options{}, func(c *state.Config) error {
		c.Resolver.Enabled = enabled
		return nil
	})
}

func (m *HostManagerImpl) ConfigureProxy(ctx context.Context, params ProxyParams) (*reconcile.Report, error) {
	if (params.Certificate == "") != (params.Key == "") {
		return nil, errors.New("tls needs both a certificate and a key")
	}

	if params.DisableTls && params.Certificate != "" {
		return nil, errors.New("cannot configure and disable tls at the same time")
	}

	return m.update(ctx, reconcile.Options{}, func(c *state.Config) error {
		c.Nginx.Enabled = params.Enabled

		if params.Port != nil {
			port := *params.Port
			c.Nginx.Port = &port
		}

		switch {
		case params.Certificate != "":
			c.Nginx.Tls = state.TlsConfig{Enabled: true, Certificate: params.Certificate, Key: params.Key}
		case params.DisableTls:
			c.Nginx.Tls = state.TlsConfig{}
		}

		return nil
	})
}

func (m *HostManagerImpl) SetPublic(ctx context.Context, public bool) (*reconcile.Report, error) {
	return m.update(ctx, reconcile.Options{}, func(c *state.Config) error {
		c.Public = public
		return nil
	})
}

func (m *HostManagerImpl) SetDomains(ctx context.Context, domains []string) (*reconcile.Report, error) {
	normalized, err := state.NormalizeDomains(domains)

	if err != nil {
		return nil, err
	}

	return m.update(ctx, reconcile.Options{}, func(c *state.Config) error {
		c.Fqdn = normalized
		return nil
	})
}

// SetOrigin changes the upstream of a node network or of the resolver.
// Units embed the build path, so every unit is rewritten
func (m *HostManagerImpl) SetOrigin(ctx context.Context, target, repository, branch string) (*reconcile.Report, error) {
	origin, err := state.NewOrigin(repository, branch)

	if err != nil {
		return nil, err
	}

	var network *state.Network

	if target != ResolverTarget {
		parsed, err := state.ParseNetwork(target)

		if err != nil {
			return nil, fmt.Errorf("unknown origin target %q: expected %s or a network", target, ResolverTarget)
		}

		network = &parsed
	}

	return m.update(ctx, reconcile.Options{Force: true}, func(c *state.Config) error {
		if network == nil {
			c.Resolver.Origin = origin
			return nil
		}

		node := c.Node(*network)

		if node == nil {
			return fmt.Errorf("network %s is not configured", *network)
		}

		node.Origin = origin
		return nil
	})
}

type unitOperation func(ctx context.Context, name string) error

// each runs op on every enabled service selected by include whose
// unit exists, attempting all of them
func (m *HostManagerImpl) each(ctx context.Context, verb string, op unitOperation, include func(service.Service) bool) error {
	errs := make([]error, 0)

	for _, svc := range lib.Filter(service.FromConfig(m.config), include) {
		unit, err := m.units.Observe(ctx, svc.Name)

		if err != nil {
			errs = append(errs, err)
			continue
		}

		if !unit.Exists {
			logging.Log.WriteWarnf("%s has no unit, run reconcile", svc.Name)
			continue
		}

		logging.Log.WriteInfof("%s %s", verb, svc.Name)

		if err := op(ctx, svc.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", verb, svc.Name, err))
		}
	}

	return errors.Join(errs...)
}

func enabled(svc service.Service) bool {
	return svc.Enabled
}

func (m *HostManagerImpl) StartAll(ctx context.Context) error {
	return m.each(ctx, "starting", m.units.Start, enabled)
}

// StopAll stops the managed services. The proxy may serve other sites
// and keeps running
func (m *HostManagerImpl) StopAll(ctx context.Context) error {
	return m.each(ctx, "stopping", m.units.Stop, func(svc service.Service) bool {
		return svc.Enabled && svc.Managed
	})
}

func (m *HostManagerImpl) RestartAll(ctx context.Context) error {
	return m.each(ctx, "restarting", m.units.Restart, enabled)
}

func (m *HostManagerImpl) Logs(ctx context.Context, name string, lines int) (string, error) {
	if _, ok := service.Find(service.FromConfig(m.config), name); !ok {
		return "", fmt.Errorf("unknown service %q", name)
	}

	return m.units.Logs(ctx, name, lines)
}

func (m *HostManagerImpl) Status(ctx context.Context) (*status.Report, error) {
	info, err := m.hostProbe(m.settings.HomeFolder)

	if err != nil {
		logging.Log.WriteWarnf("probing host: %s", err.Error())
		info = nil
	}

	return status.Observe(ctx, status.ObserveParams{
		Units:    m.units,
		Services: service.FromConfig(m.config),
		Probe:    m.probe,
		Host:     info,
	}), nil
}

// Uninstall disables every service and removes their units and the
// route file
func (m *HostManagerImpl) Uninstall(ctx context.Context) (*reconcile.Report, error) {
	report, err := m.update(ctx, reconcile.Options{}, func(c *state.Config) error {
		c.SetNetworks(nil)
		c.Resolver.Enabled = false
		c.Nginx.Enabled = false
		return nil
	})

	if err != nil {
		return report, err
	}

	return report, m.fs.Remove(m.settings.VersionPath())
}

func (m *HostManagerImpl) MarkBootstrapped() error {
	return state.Update(m.store, m.config, func(c *state.Config) error {
		c.Bootstrap = true
		return nil
	})
}
