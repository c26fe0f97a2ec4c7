// nginx renders the khost route file and asks nginx to load it
package nginx

import (
	"fmt"
	"strings"
	"text/template"
)

type ProxyKind int

const (
	// ProxyHttp forwards plain HTTP requests
	ProxyHttp ProxyKind = iota
	// ProxyUpgrade forwards connections that upgrade to websockets
	ProxyUpgrade
)

func (p ProxyKind) String() string {
	switch p {
	case ProxyUpgrade:
		return "upgrade"
	default:
		return "http"
	}
}

// Route maps a path prefix to a local backend port
type Route struct {
	Caption string    `json:"caption"`
	Path    string    `json:"path"`
	Port    uint16    `json:"port"`
	Kind    ProxyKind `json:"kind"`
}

type TLS struct {
	Certificate string
	Key         string
}

type Server struct {
	// Port zero means 443 with TLS and 80 without
	Port uint16
	// Public listens on every address, otherwise loopback only
	Public bool
	TLS    *TLS
	Fqdns  []string
}

// Config is the content of a single route file
type Config struct {
	Name   string
	Server Server
	Routes []Route
}

var routeFileTemplate = template.Must(template.New("route").Parse(
	`# {{.Name}}
server {
{{- range .Listen}}
	listen {{.}};
{{- end}}
{{- with .TLS}}
	ssl_certificate {{.Certificate}};
	ssl_certificate_key {{.Key}};
{{- end}}
	server_name {{.ServerName}};
	client_max_body_size 1m;
{{range .Routes}}
	# {{.Caption}}
	location {{.Path}} {
		proxy_http_version 1.1;
		proxy_set_header Host $host;
		proxy_set_header X-Real-IP $remote_addr;
{{- if .Upgrade}}
		proxy_set_header Upgrade $http_upgrade;
		proxy_set_header Connection "Upgrade";
{{- end}}
		proxy_pass http://127.0.0.1:{{.Port}}/;
	}
{{end}}}
`))

type renderedRoute struct {
	Route
	Upgrade bool
}

type renderedConfig struct {
	Name       string
	Listen     []string
	TLS        *TLS
	ServerName string
	Routes     []renderedRoute
}

func (s *Server) listenPort() uint16 {
	if s.Port != 0 {
		return s.Port
	}

	if s.TLS != nil {
		return 443
	}

	return 80
}

func (s *Server) listen() []string {
	port := s.listenPort()
	suffix := ""

	if s.TLS != nil {
		suffix = " ssl"
	}

	if s.Public {
		return []string{
			fmt.Sprintf("%d%s", port, suffix),
			fmt.Sprintf("[::]:%d%s", port, suffix),
		}
	}

	return []string{
		fmt.Sprintf("127.0.0.1:%d%s", port, suffix),
		fmt.Sprintf("[::1]:%d%s", port, suffix),
	}
}

func (c *Config) validate() error {
	if c.Server.TLS != nil && (c.Server.TLS.Certificate == "" || c.Server.TLS.Key == "") {
		return fmt.Errorf("tls requires a certificate and a key")
	}

	seen := make(map[string]struct{}, len(c.Routes))

	for _, route := range c.Routes {
		if !strings.HasPrefix(route.Path, "/") || strings.ContainsAny(route.Path, " ;{}\n") {
			return fmt.Errorf("invalid route path %q", route.Path)
		}

		if route.Port == 0 {
			return fmt.Errorf("route %s has no backend port", route.Path)
		}

		if _, ok := seen[route.Path]; ok {
			return fmt.Errorf("route %s defined more than once", route.Path)
		}

		seen[route.Path] = struct{}{}
	}

	return nil
}

// Render produces the route file text
func (c *Config) Render() (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}

	serverName := "_"

	if len(c.Server.Fqdns) > 0 {
		serverName = strings.Join(c.Server.Fqdns, " ")
	}

	rendered := renderedConfig{
		Name:       c.Name,
		Listen:     c.Server.listen(),
		TLS:        c.Server.TLS,
		ServerName: serverName,
	}

	for _, route := range c.Routes {
		rendered.Routes = append(rendered.Routes, renderedRoute{
			Route:   route,
			Upgrade: route.Kind == ProxyUpgrade,
		})
	}

	var b strings.Builder

	if err := routeFileTemplate.Execute(&b, rendered); err != nil {
		return "", err
	}

	return b.String(), nil
}
