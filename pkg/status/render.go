package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tim-beatham/khost/pkg/host"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

func pad(text string, width int) string {
	if gap := width - lipgloss.Width(text); gap > 0 {
		return text + strings.Repeat(" ", gap)
	}

	return text
}

func unitState(svc ServiceStatus) string {
	switch {
	case svc.Error != "":
		return failStyle.Render("error")
	case !svc.Unit.Exists:
		if svc.Desired {
			return failStyle.Render("missing")
		}

		return faintStyle.Render("absent")
	case svc.Unit.Active:
		return okStyle.Render("running")
	case svc.Desired:
		return failStyle.Render("stopped")
	default:
		return warnStyle.Render("stopped")
	}
}

func desiredState(svc ServiceStatus) string {
	if svc.Desired {
		return "enabled"
	}

	return faintStyle.Render("disabled")
}

func listenerSummary(svc ServiceStatus) string {
	parts := make([]string, 0, len(svc.Listeners))

	for _, listener := range svc.Listeners {
		text := fmt.Sprintf("%s %s", listener.Name, listener.Address)

		if listener.Reachable {
			parts = append(parts, okStyle.Render(text))
		} else {
			parts = append(parts, failStyle.Render(text))
		}
	}

	return strings.Join(parts, ", ")
}

func renderHost(b *strings.Builder, info *host.Info) {
	fmt.Fprintf(b, "%s %s (%s)\n", headingStyle.Render("Host"), info.Hostname, info.OS)
	fmt.Fprintf(b, "  cpus %d, memory %s", info.CPUs, host.FormatBytes(info.TotalMemory))

	if info.Disk != nil {
		fmt.Fprintf(b, ", disk %s free of %s", host.FormatBytes(info.Disk.Free), host.FormatBytes(info.Disk.Total))
	}

	b.WriteString("\n")

	if len(info.Addresses) > 0 {
		addresses := make([]string, len(info.Addresses))

		for i, address := range info.Addresses {
			addresses[i] = address.String()
		}

		fmt.Fprintf(b, "  addresses %s\n", strings.Join(addresses, " "))
	}

	b.WriteString("\n")
}

// Render formats the report as a table for the terminal
func Render(report *Report) string {
	var b strings.Builder

	if report.Host != nil {
		renderHost(&b, report.Host)
	}

	nameWidth := lipgloss.Width("SERVICE")

	for _, svc := range report.Services {
		nameWidth = max(nameWidth, lipgloss.Width(svc.Name))
	}

	nameWidth += 2

	b.WriteString(headingStyle.Render(pad("SERVICE", nameWidth) + pad("DESIRED", 10) + pad("UNIT", 10) + "LISTENERS"))
	b.WriteString("\n")

	for _, svc := range report.Services {
		b.WriteString(pad(svc.Name, nameWidth))
		b.WriteString(pad(desiredState(svc), 10))
		b.WriteString(pad(unitState(svc), 10))
		b.WriteString(listenerSummary(svc))
		b.WriteString("\n")
	}

	if conflicts := report.Conflicts(); len(conflicts) > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d services differ from the configuration, run reconcile:", len(conflicts))))
		b.WriteString("\n")

		for _, conflict := range conflicts {
			fmt.Fprintf(&b, "  - %s\n", conflict)
		}
	}

	return b.String()
}
