package status

import (
	"context"
	"net"
	"time"

	logging "github.com/tim-beatham/khost/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ListenerProbe checks whether a listener accepts connections
type ListenerProbe interface {
	Reachable(ctx context.Context, protocol, address string) bool
}

// DialProbe dials listeners with a timeout. gRPC listeners are checked
// with a gRPC handshake, everything else with a TCP connect
type DialProbe struct {
	Timeout time.Duration
}

func NewDialProbe(timeout time.Duration) *DialProbe {
	return &DialProbe{Timeout: timeout}
}

func (d *DialProbe) Reachable(ctx context.Context, protocol, address string) bool {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	if protocol == "grpc" {
		return d.grpcReachable(ctx, address)
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)

	if err != nil {
		logging.Log.WriteDebugf("%s %s unreachable: %s", protocol, address, err.Error())
		return false
	}

	conn.Close()
	return true
}

func (d *DialProbe) grpcReachable(ctx context.Context, address string) bool {
	conn, err := grpc.DialContext(ctx, address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)

	if err != nil {
		logging.Log.WriteDebugf("grpc %s unreachable: %s", address, err.Error())
		return false
	}

	conn.Close()
	return true
}

// ProbeStub answers from a fixed set of reachable addresses
type ProbeStub struct {
	Up map[string]bool
}

func (p *ProbeStub) Reachable(ctx context.Context, protocol, address string) bool {
	return p.Up[address]
}
