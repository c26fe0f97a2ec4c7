// reconcile converges the units and the proxy route file of the host
// to the desired service state
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/tim-beatham/khost/pkg/host"
	logging "github.com/tim-beatham/khost/pkg/log"
	"github.com/tim-beatham/khost/pkg/nginx"
	"github.com/tim-beatham/khost/pkg/service"
	"github.com/tim-beatham/khost/pkg/systemd"
)

var (
	ErrInsufficientMemory = errors.New("insufficient memory for the requested node instances")
	ErrUnitMissing        = errors.New("unit is not installed")
)

// systemdTarget is the service name used for global init system steps
const systemdTarget = "systemd"

// Confirmer asks the operator to approve running below the memory
// threshold
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

type Options struct {
	// Force rewrites every unit and the route file
	Force bool
	// AllowLowMemory skips the memory admission check
	AllowLowMemory bool
}

type Reconciler struct {
	Units  systemd.UnitManager
	Proxy  nginx.ConfigManager
	Memory host.MemoryProbe
	Layout service.Layout
	// MinMemoryPerNode is the memory in bytes each node instance needs
	// when more than one is enabled
	MinMemoryPerNode uint64
	// Confirmer may be nil, the admission check then refuses outright
	Confirmer Confirmer
}

type NewReconcilerParams struct {
	Units            systemd.UnitManager
	Proxy            nginx.ConfigManager
	Memory           host.MemoryProbe
	Layout           service.Layout
	MinMemoryPerNode uint64
	Confirmer        Confirmer
}

func NewReconciler(params *NewReconcilerParams) *Reconciler {
	return &Reconciler{
		Units:            params.Units,
		Proxy:            params.Proxy,
		Memory:           params.Memory,
		Layout:           params.Layout,
		MinMemoryPerNode: params.MinMemoryPerNode,
		Confirmer:        params.Confirmer,
	}
}

// pass carries the state of one reconciliation
type pass struct {
	ctx      context.Context
	desired  []service.Service
	opts     Options
	report   *Report
	observed map[string]systemd.Unit
	// rewritten units had their definition written in this pass
	rewritten     map[string]bool
	unitsChanged  bool
	routesChanged bool
	proxyStarted  bool
}

// Reconcile converges the host to desired, which lists every service
// including the disabled ones. Every step that can be attempted is
// attempted. The error joins every failed step
func (r *Reconciler) Reconcile(ctx context.Context, desired []service.Service, opts Options) (*Report, error) {
	report := &Report{}

	if err := r.Admit(ctx, desired, opts); err != nil {
		return report, err
	}

	p := &pass{
		ctx:       ctx,
		desired:   desired,
		opts:      opts,
		report:    report,
		observed:  make(map[string]systemd.Unit),
		rewritten: make(map[string]bool),
	}

	r.observe(p)
	r.teardown(p)
	r.activate(p)
	r.writeRoutes(p)
	r.apply(p)
	r.reloadProxy(p)

	if len(report.Actions) == 0 {
		logging.Log.WriteInfof("host already converged")
	}

	return report, report.Err()
}

// Admit runs the memory admission check. Reconcile runs it before
// anything is mutated
func (r *Reconciler) Admit(ctx context.Context, desired []service.Service, opts Options) error {
	instances := 0

	for _, svc := range desired {
		if svc.Kind == service.KindNode && svc.Enabled {
			instances++
		}
	}

	required := host.RequiredMemory(instances, r.MinMemoryPerNode)

	if required == 0 || opts.AllowLowMemory {
		return nil
	}

	total, err := r.Memory.TotalMemory()

	if err != nil {
		return fmt.Errorf("probing memory: %w", err)
	}

	if total >= required {
		return nil
	}

	message := fmt.Sprintf("%d node instances need %s of memory, the host has %s",
		instances, host.FormatBytes(required), host.FormatBytes(total))

	logging.Log.WriteWarnf("%s", message)

	if r.Confirmer != nil {
		confirmed, err := r.Confirmer.Confirm(ctx, message+". Continue anyway?")

		if err != nil {
			return err
		}

		if confirmed {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrInsufficientMemory, message)
}

func (r *Reconciler) observe(p *pass) {
	for _, svc := range p.desired {
		unit, err := r.Units.Observe(p.ctx, svc.Name)

		if err != nil {
			p.report.failed(svc.Name, StepObserve, err)
			continue
		}

		p.observed[svc.Name] = unit
	}
}

// run performs one step and records the outcome
func (r *Reconciler) run(p *pass, name string, step Step, fn func() error) bool {
	if err := fn(); err != nil {
		logging.Log.WriteErrorf("%s %s: %s", step, name, err.Error())
		p.report.failed(name, step, err)
		return false
	}

	logging.Log.WriteInfof("%s %s", step, name)
	p.report.performed(name, step)
	return true
}

// teardown stops, disables and removes the unit of every disabled
// managed service. Each step is attempted regardless of the others. A
// process still running after its unit file was removed is stopped
func (r *Reconciler) teardown(p *pass) {
	for _, svc := range p.desired {
		unit, ok := p.observed[svc.Name]

		if svc.Enabled || !svc.Managed || !ok || (!unit.Exists && !unit.Active) {
			continue
		}

		if unit.Active && r.run(p, svc.Name, StepStop, func() error { return r.Units.Stop(p.ctx, svc.Name) }) {
			unit.Active = false
		}

		if !unit.Exists {
			p.observed[svc.Name] = unit
			continue
		}

		if r.run(p, svc.Name, StepDisable, func() error { return r.Units.Disable(p.ctx, svc.Name) }) {
			unit.Enabled = false
		}

		if r.run(p, svc.Name, StepRemove, func() error { return r.Units.Remove(p.ctx, svc.Name) }) {
			unit.Exists = false
			p.unitsChanged = true
		}

		p.observed[svc.Name] = unit
	}
}

// activate writes the unit of every enabled managed service that has
// none, or all of them when forced
func (r *Reconciler) activate(p *pass) {
	for _, svc := range p.desired {
		unit, ok := p.observed[svc.Name]

		if !svc.Enabled || !svc.Managed || !ok || (unit.Exists && !p.opts.Force) {
			continue
		}

		definition, err := service.Unit(svc, r.Layout)

		if err != nil {
			p.report.failed(svc.Name, StepRender, err)
			continue
		}

		if r.run(p, svc.Name, StepWrite, func() error { return r.Units.Write(p.ctx, definition) }) {
			unit.Exists = true
			p.rewritten[svc.Name] = true
			p.unitsChanged = true
			p.observed[svc.Name] = unit
		}
	}
}

// writeRoutes regenerates the aggregated route file, or removes it when
// the proxy is disabled
func (r *Reconciler) writeRoutes(p *pass) {
	current, exists, err := r.Proxy.Read()

	if err != nil {
		p.report.failed(service.ProxyName, StepRoutes, err)
		return
	}

	routeFile, ok := service.RouteFile(p.desired)

	if !ok {
		if exists && r.run(p, service.ProxyName, StepRemove, r.Proxy.Remove) {
			p.routesChanged = true
		}

		return
	}

	content, err := routeFile.Render()

	if err != nil {
		p.report.failed(service.ProxyName, StepRoutes, err)
		return
	}

	if exists && content == current && !p.opts.Force {
		return
	}

	if r.run(p, service.ProxyName, StepRoutes, func() error { return r.Proxy.Write(content) }) {
		p.routesChanged = true
	}
}

// apply reloads the init system once and brings every enabled service
// to enabled and active
func (r *Reconciler) apply(p *pass) {
	reloaded := true

	if p.unitsChanged {
		reloaded = r.run(p, systemdTarget, StepDaemonReload, func() error { return r.Units.DaemonReload(p.ctx) })
	}

	for _, svc := range p.desired {
		unit, ok := p.observed[svc.Name]

		// a definition written in this pass is not loaded without the reload
		if !svc.Enabled || !ok || (p.rewritten[svc.Name] && !reloaded) {
			continue
		}

		if !unit.Exists {
			if !svc.Managed {
				p.report.failed(svc.Name, StepStart, ErrUnitMissing)
			}

			continue
		}

		if !unit.Enabled && r.run(p, svc.Name, StepEnable, func() error { return r.Units.Enable(p.ctx, svc.Name) }) {
			unit.Enabled = true
		}

		switch {
		case !unit.Active:
			if r.run(p, svc.Name, StepStart, func() error { return r.Units.Start(p.ctx, svc.Name) }) {
				unit.Active = true
				p.proxyStarted = p.proxyStarted || svc.Kind == service.KindProxy
			}
		case p.rewritten[svc.Name]:
			r.run(p, svc.Name, StepRestart, func() error { return r.Units.Restart(p.ctx, svc.Name) })
		}

		p.observed[svc.Name] = unit
	}
}

// reloadProxy reloads nginx once after every file mutation. A proxy
// started in this pass already read the new routes
func (r *Reconciler) reloadProxy(p *pass) {
	if !p.routesChanged || p.proxyStarted {
		return
	}

	proxy, ok := service.Find(p.desired, service.ProxyName)

	if !ok {
		return
	}

	if unit := p.observed[proxy.Name]; !unit.Active {
		return
	}

	r.run(p, proxy.Name, StepProxyReload, func() error { return r.Proxy.Reload(p.ctx) })
}
