// Package autopilot defines the link the control backend drives and a probe
// for the autopilot's gRPC endpoint.
package autopilot

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"dronectl/pkg/telemetry"
	"dronectl/pkg/vehicle"
)

// Link is a command channel to a flight controller.
type Link interface {
	Connect(ctx context.Context) error
	Arm(ctx context.Context) error
	Takeoff(ctx context.Context, altitude float64) error
	Land(ctx context.Context) error
	// WaitState blocks until the vehicle reaches state or ctx is done.
	WaitState(ctx context.Context, state string) error
	Telemetry() (telemetry.Sample, error)
	Vehicle() vehicle.VehicleDTO
}

// SplitAddress validates a host:port address.
func SplitAddress(addr string) (string, int, error) {
	host, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid autopilot address %q", addr)
	}
	if host == "" {
		return "", 0, errors.Errorf("invalid autopilot address %q: missing host", addr)
	}

	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, errors.Errorf("invalid autopilot address %q: bad port", addr)
	}

	return host, port, nil
}

// Probe dials the autopilot gRPC endpoint and reports whether the channel
// became ready within timeout.
func Probe(ctx context.Context, addr string, timeout time.Duration) (bool, error) {
	if _, _, err := SplitAddress(addr); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return false, errors.Wrap(err, "could not dial autopilot")
	}
	defer conn.Close()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return true, nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return false, nil
		}
	}
}
