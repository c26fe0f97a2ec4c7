// status reports the observed state of every service next to its
// desired state
package status

import (
	"context"
	"fmt"

	"github.com/tim-beatham/khost/pkg/host"
	"github.com/tim-beatham/khost/pkg/lib"
	"github.com/tim-beatham/khost/pkg/service"
	"github.com/tim-beatham/khost/pkg/systemd"
)

type Listener struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Reachable bool   `json:"reachable"`
}

type ServiceStatus struct {
	Name    string       `json:"name"`
	Caption string       `json:"caption"`
	Kind    string       `json:"kind"`
	Managed bool         `json:"managed"`
	Desired bool         `json:"desired"`
	Origin  string       `json:"origin,omitempty"`
	Unit    systemd.Unit `json:"unit"`
	// Listeners are probed only for active units
	Listeners []Listener `json:"listeners"`
	Error     string     `json:"error,omitempty"`
}

type Report struct {
	Host     *host.Info      `json:"host,omitempty"`
	Services []ServiceStatus `json:"services"`
}

type ObserveParams struct {
	Units    systemd.UnitManager
	Services []service.Service
	Probe    ListenerProbe
	Host     *host.Info
}

// Observe queries the unit of every service and probes the listeners
// of the running ones
func Observe(ctx context.Context, params ObserveParams) *Report {
	report := &Report{Host: params.Host, Services: make([]ServiceStatus, 0, len(params.Services))}

	for _, svc := range params.Services {
		status := ServiceStatus{
			Name:      svc.Name,
			Caption:   svc.Caption,
			Kind:      svc.Kind.String(),
			Managed:   svc.Managed,
			Desired:   svc.Enabled,
			Listeners: []Listener{},
		}

		if svc.Origin != nil {
			status.Origin = svc.Origin.String()
		}

		unit, err := params.Units.Observe(ctx, svc.Name)

		if err != nil {
			status.Error = err.Error()
			report.Services = append(report.Services, status)
			continue
		}

		status.Unit = unit

		if unit.Active && params.Probe != nil {
			listeners := service.Listeners(svc)

			for _, name := range lib.SortedKeys(listeners) {
				address := listeners[name].DialAddress()

				status.Listeners = append(status.Listeners, Listener{
					Name:      name,
					Address:   address,
					Reachable: params.Probe.Reachable(ctx, name, address),
				})
			}
		}

		report.Services = append(report.Services, status)
	}

	return report
}

// Conflicts lists services whose observed state disagrees with the
// desired state
func (r *Report) Conflicts() []string {
	conflicts := make([]string, 0)

	for _, svc := range r.Services {
		switch {
		case svc.Error != "":
			conflicts = append(conflicts, fmt.Sprintf("%s could not be observed: %s", svc.Name, svc.Error))
		case svc.Desired && !svc.Unit.Exists:
			conflicts = append(conflicts, fmt.Sprintf("%s is enabled but has no unit", svc.Name))
		case svc.Desired && !svc.Unit.Active:
			conflicts = append(conflicts, fmt.Sprintf("%s is enabled but not running", svc.Name))
		case !svc.Desired && svc.Managed && svc.Unit.Active:
			conflicts = append(conflicts, fmt.Sprintf("%s is disabled but still running", svc.Name))
		case !svc.Desired && svc.Managed && svc.Unit.Exists:
			conflicts = append(conflicts, fmt.Sprintf("%s is disabled but its unit is still installed", svc.Name))
		}
	}

	return conflicts
}
