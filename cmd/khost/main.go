package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/tim-beatham/khost/pkg/api"
	"github.com/tim-beatham/khost/pkg/conf"
	"github.com/tim-beatham/khost/pkg/console"
	"github.com/tim-beatham/khost/pkg/host"
	logging "github.com/tim-beatham/khost/pkg/log"
	"github.com/tim-beatham/khost/pkg/manager"
	"github.com/tim-beatham/khost/pkg/query"
	"github.com/tim-beatham/khost/pkg/reconcile"
	"github.com/tim-beatham/khost/pkg/state"
	"github.com/tim-beatham/khost/pkg/status"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	exitFailure     = 1
	exitUnsupported = 2
	exitNotRoot     = 3
)

// toggle resolves an --enable/--disable pair
func toggle(enable, disable *bool) (bool, error) {
	if *enable == *disable {
		return false, errors.New("exactly one of --enable or --disable is required")
	}

	return *enable, nil
}

func printReport(out *console.Console, report *reconcile.Report) {
	if report == nil {
		return
	}

	for _, action := range report.Actions {
		out.Success("%s", action.String())
	}

	for _, failure := range report.Failures {
		out.Error("%s", failure.Error())
	}

	if len(report.Actions) == 0 && len(report.Failures) == 0 {
		out.Success("host already converged")
	}
}

func printStatus(ctx context.Context, out *console.Console, hostManager manager.HostManager) error {
	report, err := hostManager.Status(ctx)

	if err != nil {
		return err
	}

	out.Print(status.Render(report))
	return nil
}

func parseNetworks(names []string) ([]state.Network, error) {
	networks := make([]state.Network, 0, len(names))

	for _, name := range names {
		network, err := state.ParseNetwork(name)

		if err != nil {
			return nil, err
		}

		networks = append(networks, network)
	}

	return networks, nil
}

func main() {
	os.Exit(run(os.Args))
}

// run executes the command line and returns the exit code
func run(args []string) int {
	parser := argparse.NewParser("khost",
		"khost Deploy and manage Kaspa p2p nodes, the wRPC resolver and their nginx front end")

	configPath := parser.String("c", "config", &argparse.Options{
		Default: conf.DefaultSettingsPath,
		Help:    "Path of the khost settings file",
	})

	verbose := parser.Flag("V", "verbose", &argparse.Options{
		Help: "Log at debug level and stream the output of every command khost runs",
	})

	assumeYes := parser.Flag("y", "yes", &argparse.Options{
		Help: "Answer yes to every confirmation",
	})

	statusCmd := parser.NewCommand("status", "Show the desired and observed state of every service")
	reconcileCmd := parser.NewCommand("reconcile", "Converge the host to the desired state")
	networksCmd := parser.NewCommand("networks", "Select the networks to run p2p nodes for")
	resolverCmd := parser.NewCommand("resolver", "Enable or disable the wRPC resolver")
	proxyCmd := parser.NewCommand("proxy", "Configure the nginx reverse proxy")
	publicCmd := parser.NewCommand("public", "Expose the proxy on every address or on loopback only")
	domainsCmd := parser.NewCommand("domains", "Set the server names of the proxy")
	originCmd := parser.NewCommand("origin", "Set the upstream repository of a node network or the resolver")
	startCmd := parser.NewCommand("start", "Start every enabled service")
	stopCmd := parser.NewCommand("stop", "Stop every enabled managed service")
	restartCmd := parser.NewCommand("restart", "Restart every enabled service")
	logsCmd := parser.NewCommand("logs", "Show the journal of a service")
	queryCmd := parser.NewCommand("query", "Query the desired state using JMESPath")
	serveCmd := parser.NewCommand("serve", "Run the read-only status API")
	uninstallCmd := parser.NewCommand("uninstall", "Disable every service and remove their units")

	reconcileForce := reconcileCmd.Flag("f", "force", &argparse.Options{
		Help: "Rewrite every unit and the route file even when they exist",
	})

	networkNames := networksCmd.StringList("n", "network", &argparse.Options{
		Required: true,
		Help:     "Network to enable: mainnet, testnet-10 or testnet-11. May be repeated",
	})

	resolverEnable := resolverCmd.Flag("e", "enable", &argparse.Options{Help: "Enable the resolver"})
	resolverDisable := resolverCmd.Flag("d", "disable", &argparse.Options{Help: "Disable the resolver"})

	proxyEnable := proxyCmd.Flag("e", "enable", &argparse.Options{Help: "Enable the proxy"})
	proxyDisable := proxyCmd.Flag("d", "disable", &argparse.Options{Help: "Disable the proxy"})

	proxyCertificate := proxyCmd.String("t", "tls-cert", &argparse.Options{
		Help: "Certificate file nginx serves, requires --tls-key",
	})

	proxyKey := proxyCmd.String("k", "tls-key", &argparse.Options{
		Help: "Private key of the certificate",
	})

	proxyNoTls := proxyCmd.Flag("n", "no-tls", &argparse.Options{
		Help: "Serve plain HTTP",
	})

	proxyPort := proxyCmd.Int("p", "port", &argparse.Options{
		Default: 0,
		Help:    "Listen port. A value of 0 keeps the current port",
	})

	publicEnable := publicCmd.Flag("e", "enable", &argparse.Options{Help: "Listen on every address"})
	publicDisable := publicCmd.Flag("d", "disable", &argparse.Options{Help: "Listen on loopback only"})

	domainNames := domainsCmd.StringList("d", "domain", &argparse.Options{
		Required: true,
		Help:     "Server name of the proxy. May be repeated",
	})

	originService := originCmd.String("s", "service", &argparse.Options{
		Required: true,
		Help:     "Network name or resolver",
	})

	originRepository := originCmd.String("r", "repository", &argparse.Options{
		Required: true,
		Help:     "Repository URL, e.g. https://github.com/kaspanet/rusty-kaspa",
	})

	originBranch := originCmd.String("b", "branch", &argparse.Options{
		Help: "Branch to build. Defaults to master",
	})

	logsService := logsCmd.String("s", "service", &argparse.Options{
		Required: true,
		Help:     "Service to show the journal of",
	})

	logsLines := logsCmd.Int("n", "lines", &argparse.Options{
		Default: 100,
		Help:    "Number of journal lines",
	})

	queryExpression := queryCmd.String("e", "expression", &argparse.Options{
		Required: true,
		Help:     "JMESPath expression evaluated over {config, services}",
	})

	serveListen := serveCmd.String("l", "listen", &argparse.Options{
		Help: "Listen address, defaults to apiListen of the settings",
	})

	err := parser.Parse(args)

	if err != nil {
		fmt.Print(parser.Usage(err))
		return exitFailure
	}

	if err := host.CheckOS(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return exitUnsupported
	}

	if !host.IsRoot() {
		fmt.Fprintln(os.Stderr, "khost must be run as root")
		return exitNotRoot
	}

	settings, err := conf.ParseSettings(*configPath)

	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return exitFailure
	}

	level := settings.LogLevel

	if *verbose {
		level = conf.DEBUG
	}

	logging.SetLogger(logging.NewLogrusLogger(level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := console.NewConsole(*assumeYes)

	hostManager, err := manager.NewHostManager(&manager.NewHostManagerParams{
		Settings:  settings,
		Verbose:   *verbose,
		Version:   version,
		Confirmer: out,
	})

	if err != nil {
		logging.Log.WriteErrorf("%s", err.Error())
		return exitFailure
	}

	// a failed rebuild is reported and the requested command still runs
	if !uninstallCmd.Happened() {
		rebuild, ran, err := hostManager.ReconfigureIfNeeded(ctx)

		if ran {
			printReport(out, rebuild)
		}

		if err != nil {
			logging.Log.WriteErrorf("%s", err.Error())
		}

		if !hostManager.Config().Bootstrap {
			if err := hostManager.MarkBootstrapped(); err != nil {
				logging.Log.WriteWarnf("%s", err.Error())
			}
		}
	}

	var report *reconcile.Report

	switch {
	case statusCmd.Happened():
		err = printStatus(ctx, out, hostManager)
	case reconcileCmd.Happened():
		report, err = hostManager.Reconfigure(ctx, *reconcileForce)
	case networksCmd.Happened():
		var networks []state.Network
		networks, err = parseNetworks(*networkNames)

		if err == nil {
			report, err = hostManager.ConfigureNetworks(ctx, networks)
		}
	case resolverCmd.Happened():
		var enabled bool
		enabled, err = toggle(resolverEnable, resolverDisable)

		if err == nil {
			report, err = hostManager.ConfigureResolver(ctx, enabled)
		}
	case proxyCmd.Happened():
		var enabled bool
		enabled, err = toggle(proxyEnable, proxyDisable)

		if err == nil && (*proxyPort < 0 || *proxyPort > 65535) {
			err = fmt.Errorf("invalid port %d", *proxyPort)
		}

		if err == nil {
			params := manager.ProxyParams{
				Enabled:     enabled,
				Certificate: *proxyCertificate,
				Key:         *proxyKey,
				DisableTls:  *proxyNoTls,
			}

			if *proxyPort != 0 {
				port := uint16(*proxyPort)
				params.Port = &port
			}

			report, err = hostManager.ConfigureProxy(ctx, params)
		}
	case publicCmd.Happened():
		var public bool
		public, err = toggle(publicEnable, publicDisable)

		if err == nil {
			report, err = hostManager.SetPublic(ctx, public)
		}
	case domainsCmd.Happened():
		report, err = hostManager.SetDomains(ctx, *domainNames)
	case originCmd.Happened():
		report, err = hostManager.SetOrigin(ctx, *originService, *originRepository, *originBranch)
	case startCmd.Happened():
		err = hostManager.StartAll(ctx)
	case stopCmd.Happened():
		err = hostManager.StopAll(ctx)
	case restartCmd.Happened():
		err = hostManager.RestartAll(ctx)
	case logsCmd.Happened():
		var logs string
		logs, err = hostManager.Logs(ctx, *logsService, *logsLines)
		out.Print(logs)
	case queryCmd.Happened():
		var result []byte
		result, err = query.NewJmesQuerier(hostManager).Query(*queryExpression)

		if err == nil {
			fmt.Println(string(result))
		}
	case serveCmd.Happened():
		listen := settings.ApiListen

		if *serveListen != "" {
			listen = *serveListen
		}

		err = api.NewStatusServer(hostManager).Run(listen)
	case uninstallCmd.Happened():
		var confirmed bool
		confirmed, err = out.Confirm(ctx, "Disable every khost service and remove their units?")

		if err == nil && !confirmed {
			out.Print("uninstall aborted\n")
			return 0
		}

		if err == nil {
			report, err = hostManager.Uninstall(ctx)
		}
	}

	printReport(out, report)

	if err != nil {
		logging.Log.WriteErrorf("%s", err.Error())
		return exitFailure
	}

	return 0
}
