// service is the closed set of service kinds khost manages and the
// capabilities each kind provides
package service

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tim-beatham/khost/pkg/conf"
	"github.com/tim-beatham/khost/pkg/nginx"
	"github.com/tim-beatham/khost/pkg/state"
	"github.com/tim-beatham/khost/pkg/systemd"
)

type Kind int

const (
	KindNode Kind = iota
	KindResolver
	KindProxy
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindResolver:
		return "resolver"
	case KindProxy:
		return "proxy"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ProxyName is the unit of the distribution nginx package
const ProxyName = "nginx"

// Proxy holds the reverse proxy parameters
type Proxy struct {
	Nginx  state.NginxConfig
	Public bool
	Fqdns  []string
}

// Service is the desired state of one service instance. Exactly one of
// Node, Resolver and Proxy is set, matching Kind
type Service struct {
	Kind    Kind
	Name    string
	Caption string
	Enabled bool
	// Managed services have their unit created and removed by khost
	Managed  bool
	Origin   *state.Origin
	Node     *state.NodeConfig
	Resolver *state.ResolverConfig
	Proxy    *Proxy
}

// Layout is where binaries live and how units run them
type Layout struct {
	User       string
	RootFolder string
	RestartSec int
}

func LayoutFromSettings(settings *conf.Settings) Layout {
	return Layout{
		User:       settings.User,
		RootFolder: settings.RootFolder,
		RestartSec: settings.RestartSec,
	}
}

func NewNodeService(node state.NodeConfig) Service {
	origin := node.Origin

	return Service{
		Kind:    KindNode,
		Name:    node.ServiceName(),
		Caption: fmt.Sprintf("Kaspa p2p Node (%s)", node.Network),
		Enabled: node.Enabled,
		Managed: true,
		Origin:  &origin,
		Node:    &node,
	}
}

func NewResolverService(resolver state.ResolverConfig) Service {
	origin := resolver.Origin

	return Service{
		Kind:     KindResolver,
		Name:     state.ResolverServiceName,
		Caption:  "Kaspa wRPC Resolver",
		Enabled:  resolver.Enabled,
		Managed:  true,
		Origin:   &origin,
		Resolver: &resolver,
	}
}

func NewProxyService(proxy Proxy) Service {
	return Service{
		Kind:    KindProxy,
		Name:    ProxyName,
		Caption: "Nginx reverse proxy",
		Enabled: proxy.Nginx.Enabled,
		Proxy:   &proxy,
	}
}

// FromConfig lists every service of the desired state, disabled ones
// included: nodes in network order, then the resolver, then the proxy
func FromConfig(config *state.Config) []Service {
	services := make([]Service, 0, len(config.Kaspad)+2)

	for _, node := range config.Kaspad {
		services = append(services, NewNodeService(node))
	}

	services = append(services, NewResolverService(config.Resolver))
	services = append(services, NewProxyService(Proxy{
		Nginx:  config.Nginx,
		Public: config.Public,
		Fqdns:  append([]string(nil), config.Fqdn...),
	}))

	return services
}

// Binary is the release build path the unit executes
func Binary(svc Service, layout Layout) (string, error) {
	switch svc.Kind {
	case KindNode:
		return filepath.Join(layout.RootFolder, "rusty-kaspa", svc.Origin.Folder(),
			"target", "release", "kaspad"), nil
	case KindResolver:
		return filepath.Join(layout.RootFolder, "kaspa-resolver", svc.Origin.Folder(),
			"target", "release", "kaspa-resolver"), nil
	case KindProxy:
		return "", fmt.Errorf("%s is not built by khost", svc.Name)
	default:
		return "", fmt.Errorf("unknown service kind %s", svc.Kind)
	}
}

// Args are the command line flags of the service binary
func Args(svc Service) []string {
	switch svc.Kind {
	case KindNode:
		return svc.Node.Args()
	case KindResolver:
		return svc.Resolver.Args()
	case KindProxy:
		return nil
	default:
		return nil
	}
}

// Unit builds the unit definition of a managed service
func Unit(svc Service, layout Layout) (systemd.UnitConfig, error) {
	if !svc.Managed {
		return systemd.UnitConfig{}, fmt.Errorf("%s unit is not managed by khost", svc.Name)
	}

	binary, err := Binary(svc, layout)

	if err != nil {
		return systemd.UnitConfig{}, err
	}

	exec := append([]string{binary}, Args(svc)...)

	return systemd.UnitConfig{
		ServiceName: svc.Name,
		Description: svc.Caption,
		User:        layout.User,
		ExecStart:   strings.Join(exec, " "),
		RestartSec:  layout.RestartSec,
	}, nil
}

// Routes are the proxy locations the service needs
func Routes(svc Service) []nginx.Route {
	switch svc.Kind {
	case KindNode:
		routes := make([]nginx.Route, 0, 2)

		if svc.Node.WrpcBorsh != nil {
			routes = append(routes, nginx.Route{
				Caption: svc.Caption,
				Path:    fmt.Sprintf("/kaspa/%s/wrpc/borsh", svc.Node.Network),
				Port:    svc.Node.WrpcBorsh.Port,
				Kind:    nginx.ProxyUpgrade,
			})
		}

		if svc.Node.WrpcJson != nil {
			routes = append(routes, nginx.Route{
				Caption: svc.Caption,
				Path:    fmt.Sprintf("/kaspa/%s/wrpc/json", svc.Node.Network),
				Port:    svc.Node.WrpcJson.Port,
				Kind:    nginx.ProxyUpgrade,
			})
		}

		return routes
	case KindResolver:
		if svc.Resolver.Http == nil {
			return nil
		}

		return []nginx.Route{{
			Caption: svc.Caption,
			Path:    "/",
			Port:    svc.Resolver.Http.Port,
			Kind:    nginx.ProxyHttp,
		}}
	case KindProxy:
		return nil
	default:
		return nil
	}
}

// RouteFile aggregates the routes of every enabled service. ok is false
// when no enabled proxy is present
func RouteFile(services []Service) (config *nginx.Config, ok bool) {
	var proxy *Proxy
	routes := make([]nginx.Route, 0)

	for _, svc := range services {
		if !svc.Enabled {
			continue
		}

		if svc.Kind == KindProxy {
			proxy = svc.Proxy
			continue
		}

		routes = append(routes, Routes(svc)...)
	}

	if proxy == nil {
		return nil, false
	}

	server := nginx.Server{
		Public: proxy.Public,
		Fqdns:  proxy.Fqdns,
	}

	if proxy.Nginx.Port != nil {
		server.Port = *proxy.Nginx.Port
	}

	if proxy.Nginx.Tls.Enabled {
		server.TLS = &nginx.TLS{
			Certificate: proxy.Nginx.Tls.Certificate,
			Key:         proxy.Nginx.Tls.Key,
		}
	}

	return &nginx.Config{Name: "khost", Server: server, Routes: routes}, true
}

// Listeners are the local addresses the service accepts connections on
func Listeners(svc Service) map[string]*state.Interface {
	switch svc.Kind {
	case KindNode:
		listeners := make(map[string]*state.Interface)

		for name, iface := range map[string]*state.Interface{
			"grpc":       svc.Node.Grpc,
			"wrpc-borsh": svc.Node.WrpcBorsh,
			"wrpc-json":  svc.Node.WrpcJson,
		} {
			if iface != nil {
				listeners[name] = iface
			}
		}

		return listeners
	case KindResolver:
		if svc.Resolver.Http == nil {
			return map[string]*state.Interface{}
		}

		return map[string]*state.Interface{"http": svc.Resolver.Http}
	case KindProxy:
		return map[string]*state.Interface{
			"http": {Kind: state.LOCAL_INTERFACE, Port: svc.Proxy.Nginx.ListenPort()},
		}
	default:
		return map[string]*state.Interface{}
	}
}

// Find returns the service with the given name
func Find(services []Service, name string) (Service, bool) {
	for _, svc := range services {
		if svc.Name == name {
			return svc, true
		}
	}

	return Service{}, false
}
