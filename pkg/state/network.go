package state

import (
	"fmt"
	"strings"
)

// Network identifies the Kaspa network a p2p node instance joins
type Network int

const (
	Mainnet Network = iota
	Testnet10
	Testnet11
)

// Networks lists every supported network in display order
var Networks = []Network{Mainnet, Testnet10, Testnet11}

// String is the display form, also used in service names
func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet10:
		return "testnet-10"
	case Testnet11:
		return "testnet-11"
	default:
		return fmt.Sprintf("network(%d)", int(n))
	}
}

// key is the serialized form
func (n Network) key() string {
	return strings.ReplaceAll(n.String(), "-", "")
}

func (n Network) MarshalText() ([]byte, error) {
	if n < Mainnet || n > Testnet11 {
		return nil, fmt.Errorf("unknown network %d", int(n))
	}

	return []byte(n.key()), nil
}

func (n *Network) UnmarshalText(text []byte) error {
	network, err := ParseNetwork(string(text))

	if err != nil {
		return err
	}

	*n = network
	return nil
}

// ParseNetwork accepts both the serialized ("testnet10") and the
// display ("testnet-10") form
func ParseNetwork(s string) (Network, error) {
	value := strings.ToLower(strings.TrimSpace(s))

	for _, network := range Networks {
		if value == network.String() || value == network.key() {
			return network, nil
		}
	}

	return Mainnet, fmt.Errorf("unknown network %q", s)
}

// Ports returns the default gRPC, wRPC borsh and wRPC json ports
func (n Network) Ports() (grpc, borsh, json uint16) {
	switch n {
	case Testnet10:
		return 16210, 17210, 18210
	case Testnet11:
		return 16310, 17310, 18310
	default:
		return 16110, 17110, 18110
	}
}

type InterfaceKind string

const (
	LOCAL_INTERFACE  InterfaceKind = "local"
	PUBLIC_INTERFACE InterfaceKind = "public"
)

// Interface is a listening socket of a managed service
type Interface struct {
	Kind InterfaceKind `json:"interface" validate:"required,eq=local|eq=public"`
	Port uint16        `json:"port" validate:"required"`
}

func LocalInterface(port uint16) *Interface {
	return &Interface{Kind: LOCAL_INTERFACE, Port: port}
}

func PublicInterface(port uint16) *Interface {
	return &Interface{Kind: PUBLIC_INTERFACE, Port: port}
}

// String renders the interface as a listen address
func (i Interface) String() string {
	if i.Kind == PUBLIC_INTERFACE {
		return fmt.Sprintf("0.0.0.0:%d", i.Port)
	}

	return fmt.Sprintf("127.0.0.1:%d", i.Port)
}

// DialAddress is where a local client reaches the interface
func (i Interface) DialAddress() string {
	return fmt.Sprintf("127.0.0.1:%d", i.Port)
}
