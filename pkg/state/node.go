package state

import (
	"fmt"
	"strings"
	"unicode"
)

// NodeConfig is the desired configuration of one Kaspa p2p node
// instance. There is one record per network
type NodeConfig struct {
	Enabled          bool       `json:"enabled"`
	Network          Network    `json:"network"`
	Origin           Origin     `json:"origin"`
	// DataFolder is passed to kaspad through the unit ExecStart line
	DataFolder       *string    `json:"data_folder,omitempty" validate:"omitempty,unitarg"`
	EnableUpnp       bool       `json:"enable_upnp"`
	OutgoingPeers    *uint16    `json:"outgoing_peers,omitempty" validate:"omitempty,gte=1"`
	MaxIncomingPeers *uint16    `json:"max_incoming_peers,omitempty"`
	Grpc             *Interface `json:"grpc,omitempty" validate:"omitempty"`
	WrpcBorsh        *Interface `json:"wrpc_borsh,omitempty" validate:"omitempty"`
	WrpcJson         *Interface `json:"wrpc_json,omitempty" validate:"omitempty"`
}

func NewNodeConfig(network Network) NodeConfig {
	grpc, borsh, json := network.Ports()
	outgoing := uint16(32)
	incoming := uint16(256)

	return NodeConfig{
		Network:          network,
		Origin:           DefaultNodeOrigin(),
		OutgoingPeers:    &outgoing,
		MaxIncomingPeers: &incoming,
		Grpc:             LocalInterface(grpc),
		WrpcBorsh:        LocalInterface(borsh),
		WrpcJson:         LocalInterface(json),
	}
}

// isUnitArg: the value can be written as one ExecStart argument
// without quoting or specifier expansion
func isUnitArg(value string) bool {
	if value == "" || strings.ContainsAny(value, "\"'\\%$;") {
		return false
	}

	return strings.IndexFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}

func (n *NodeConfig) ServiceName() string {
	return fmt.Sprintf("kaspa-%s", n.Network)
}

// Args are the kaspad flags derived from the configuration
func (n *NodeConfig) Args() []string {
	args := make([]string, 0, 16)

	switch n.Network {
	case Testnet10:
		args = append(args, "--testnet", "--netsuffix=10")
	case Testnet11:
		args = append(args, "--testnet", "--netsuffix=11")
	}

	args = append(args,
		"--yes",
		"--perf-metrics",
		"--perf-metrics-interval-sec=1",
		"--utxoindex",
		"--loglevel=info,kaspad_lib::daemon=trace",
	)

	if !n.EnableUpnp {
		args = append(args, "--disable-upnp")
	}

	if n.OutgoingPeers != nil {
		args = append(args, fmt.Sprintf("--outpeers=%d", *n.OutgoingPeers))
	}

	if n.MaxIncomingPeers != nil {
		args = append(args, fmt.Sprintf("--maxinpeers=%d", *n.MaxIncomingPeers))
	}

	if n.Grpc != nil {
		args = append(args, fmt.Sprintf("--rpclisten=%s", n.Grpc))
	}

	if n.WrpcBorsh != nil {
		args = append(args, fmt.Sprintf("--rpclisten-borsh=%s", n.WrpcBorsh))
	}

	if n.WrpcJson != nil {
		args = append(args, fmt.Sprintf("--rpclisten-json=%s", n.WrpcJson))
	}

	if n.DataFolder != nil {
		args = append(args, fmt.Sprintf("--appdir=%s", *n.DataFolder))
	}

	return args
}

const ResolverServiceName = "kaspa-resolver"

// ResolverConfig is the desired configuration of the wRPC resolver
type ResolverConfig struct {
	Enabled bool       `json:"enabled"`
	Origin  Origin     `json:"origin"`
	Stats   bool       `json:"stats"`
	Http    *Interface `json:"http,omitempty" validate:"omitempty"`
}

func NewResolverConfig() ResolverConfig {
	return ResolverConfig{
		Origin: DefaultResolverOrigin(),
		Stats:  true,
		Http:   LocalInterface(8989),
	}
}

func (r *ResolverConfig) Args() []string {
	args := make([]string, 0, 2)

	if r.Stats {
		args = append(args, "--stats")
	}

	if r.Http != nil {
		args = append(args, fmt.Sprintf("--listen=%s", r.Http))
	}

	return args
}

// TlsConfig references the certificate nginx serves
type TlsConfig struct {
	Enabled     bool   `json:"enabled"`
	Certificate string `json:"certificate,omitempty" validate:"required_if=Enabled true"`
	Key         string `json:"key,omitempty" validate:"required_if=Enabled true"`
}

// NginxConfig is the desired configuration of the reverse proxy
type NginxConfig struct {
	Enabled bool      `json:"enabled"`
	Port    *uint16   `json:"port,omitempty" validate:"omitempty,gte=1"`
	Tls     TlsConfig `json:"tls"`
}

// ListenPort is the configured port or the protocol default
func (n *NginxConfig) ListenPort() uint16 {
	if n.Port != nil {
		return *n.Port
	}

	if n.Tls.Enabled {
		return 443
	}

	return 80
}
