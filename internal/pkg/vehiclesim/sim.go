// Package vehiclesim simulates a flight controller behind the autopilot link.
package vehiclesim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dronectl/pkg/autopilot"
	"dronectl/pkg/telemetry"
	"dronectl/pkg/vehicle"
)

var ErrNotConnected = errors.New("autopilot link is not connected")

// distance from home at which a return leg ends, in metres
const homeTolerance = 1.0

var _ autopilot.Link = (*Simulator)(nil)

type Options struct {
	Tick            time.Duration
	DrainPerMinute  float64 // battery points per minute while in the air
	MaxClimbRate    float64 // m/s
	MaxDescentRate  float64 // m/s
	MinDescentRate  float64 // m/s, keeps landings finite
	FailsafeBattery float64 // land below this level
	TimeScale       float64 // simulated seconds per real second, 0 means 1

	// LinkTimeout is how much simulated time may pass without a command or
	// heartbeat before the vehicle returns home, or holds its altitude when
	// there is no home. 0 disables the check.
	LinkTimeout  time.Duration
	Home         *orb.Point // return point as [lon, lat]
	KeepInRadius float64    // metres around Home, 0 disables the fence
	ReturnSpeed  float64    // m/s over ground on the way home
	WindNorth    float64    // m/s drift while in the air
	WindEast     float64    // m/s drift while in the air
}

func DefaultOptions() Options {
	return Options{
		Tick:            100 * time.Millisecond,
		DrainPerMinute:  2,
		MaxClimbRate:    3,
		MaxDescentRate:  1.5,
		MinDescentRate:  0.3,
		FailsafeBattery: 15,
		ReturnSpeed:     5,
	}
}

type Simulator struct {
	vehicle   *vehicle.Vehicle
	opts      Options
	pid       *PID
	log       *zap.SugaredLogger
	connected bool
	changed   chan struct{}

	sinceContact float64 // simulated seconds
	linkLost     bool
	mu        sync.Mutex
}

func New(v *vehicle.Vehicle, opts Options, log *zap.SugaredLogger) *Simulator {
	return &Simulator{
		vehicle: v,
		opts:    opts,
		pid: NewPID(1.2, 0.1, 0.2,
			Limits{Min: -opts.MaxDescentRate, Max: opts.MaxClimbRate},
			Limits{Min: -2, Max: 2}),
		log:     log,
		changed: make(chan struct{}),
	}
}

// Run steps the simulation every tick until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	dt := s.opts.Tick.Seconds()
	if s.opts.TimeScale > 0 {
		dt *= s.opts.TimeScale
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Step(dt)
		}
	}
}

// Step advances the vehicle by dt seconds.
func (s *Simulator) Step(dt float64) {

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.vehicle.GetState()
	if before == vehicle.StateDisarmed || before == vehicle.StateArmed {
		return
	}

	altitude := s.vehicle.GetAltitude()
	s.pid.SetSetpoint(s.vehicle.GetTargetAltitude())

	rate, err := s.pid.Update(altitude, dt)
	if err != nil {
		s.log.Errorw("altitude controller update failed", "error", err)
		return
	}
	if before == vehicle.StateLanding {
		rate = math.Min(rate, -s.opts.MinDescentRate)
	}

	s.vehicle.UpdateAltitude(altitude + rate*dt)
	s.vehicle.Drain(s.opts.DrainPerMinute * dt / 60)
	s.moveLocked(dt)
	s.sinceContact += dt

	s.failsafeLocked()

	if after := s.vehicle.GetState(); after != before {
		s.log.Infow("vehicle state changed", "from", before, "to", after, "altitude", s.vehicle.GetAltitude())
		s.notifyLocked()
	}
}

// moveLocked drifts the vehicle with the wind and flies the return leg.
func (s *Simulator) moveLocked(dt float64) {
	lat, lon := s.vehicle.GetPosition()
	pos := orb.Point{lon, lat}

	if speed := math.Hypot(s.opts.WindNorth, s.opts.WindEast); speed > 0 && s.vehicle.GetAltitude() > 0 {
		bearing := math.Atan2(s.opts.WindEast, s.opts.WindNorth) * 180 / math.Pi
		pos = geo.PointAtBearingAndDistance(pos, bearing, speed*dt)
	}

	arrived := false
	if s.vehicle.GetState() == vehicle.StateReturning {
		if s.opts.Home == nil {
			arrived = true
		} else {
			home := *s.opts.Home
			step := s.opts.ReturnSpeed * dt
			if geo.Distance(pos, home) <= step+homeTolerance {
				pos = home
				arrived = true
			} else {
				pos = geo.PointAtBearingAndDistance(pos, geo.Bearing(pos, home), step)
			}
		}
	}

	if err := s.vehicle.UpdatePosition(pos.Lat(), pos.Lon()); err != nil {
		s.log.Errorw("position update rejected", "error", err)
	}

	if arrived {
		s.log.Infow("home reached, landing", "latitude", pos.Lat(), "longitude", pos.Lon())
		s.landLocked()
	}
}

func (s *Simulator) failsafeLocked() {
	if s.vehicle.IsFlying() && s.vehicle.GetBatteryLevel() < s.opts.FailsafeBattery {
		s.log.Warnw("low battery failsafe, landing", "battery", s.vehicle.GetBatteryLevel())
		s.landLocked()
		return
	}

	state := s.vehicle.GetState()
	if state != vehicle.StateTakingOff && state != vehicle.StateAirborne {
		return
	}

	if s.opts.LinkTimeout > 0 && !s.linkLost && s.sinceContact > s.opts.LinkTimeout.Seconds() {
		s.linkLost = true
		if s.opts.Home != nil {
			s.log.Warnw("link lost, returning home", "silent_for_s", s.sinceContact)
			s.returnLocked()
		} else {
			s.log.Warnw("link lost, holding altitude", "silent_for_s", s.sinceContact, "altitude", s.vehicle.GetAltitude())
			if err := s.vehicle.HoldAltitude(); err != nil {
				s.log.Errorw("failsafe hold refused", "error", err)
			}
			s.pid.Reset()
		}
		return
	}

	if d, outside := s.outsideKeepIn(); outside {
		s.log.Warnw("left keep-in zone, returning home", "distance_m", d, "radius_m", s.opts.KeepInRadius)
		s.returnLocked()
	}
}

func (s *Simulator) outsideKeepIn() (float64, bool) {
	if s.opts.Home == nil || s.opts.KeepInRadius <= 0 {
		return 0, false
	}
	lat, lon := s.vehicle.GetPosition()
	d := geo.Distance(orb.Point{lon, lat}, *s.opts.Home)
	return d, d > s.opts.KeepInRadius
}

func (s *Simulator) returnLocked() {
	if err := s.vehicle.ReturnHome(); err != nil {
		s.log.Errorw("failsafe return refused", "error", err)
	}
}

func (s *Simulator) landLocked() {
	if err := s.vehicle.Land(); err != nil {
		s.log.Errorw("failsafe landing refused", "error", err)
	}
	s.pid.Reset()
}

// Touch records contact from the ground station, such as a heartbeat, and
// restarts the link-loss timer.
func (s *Simulator) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contactLocked()
}

func (s *Simulator) contactLocked() {
	if s.linkLost {
		s.log.Infow("link restored", "silent_for_s", s.sinceContact)
	}
	s.sinceContact = 0
	s.linkLost = false
}

func (s *Simulator) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		s.connected = true
		s.log.Infow("autopilot link connected", "serial_number", s.vehicle.GetSerialNumber())
	}
	s.contactLocked()
	return nil
}

func (s *Simulator) Arm(ctx context.Context) error {
	return s.command(ctx, func() error { return s.vehicle.Arm() })
}

func (s *Simulator) Takeoff(ctx context.Context, altitude float64) error {
	return s.command(ctx, func() error {
		if err := s.vehicle.Takeoff(altitude); err != nil {
			return err
		}
		s.pid.Reset()
		return nil
	})
}

func (s *Simulator) Land(ctx context.Context) error {
	return s.command(ctx, func() error {
		if err := s.vehicle.Land(); err != nil {
			return err
		}
		s.pid.Reset()
		return nil
	})
}

func (s *Simulator) command(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}
	s.contactLocked()

	if err := fn(); err != nil {
		return err
	}

	s.notifyLocked()
	return nil
}

func (s *Simulator) WaitState(ctx context.Context, state string) error {
	for {
		s.mu.Lock()
		if s.vehicle.GetState() == state {
			s.mu.Unlock()
			return nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Frame renders the vehicle's current radio telemetry frame.
func (s *Simulator) Frame() string {
	dto := s.vehicle.GetDTO()
	return telemetry.FormatRaw(telemetry.Sample{
		Latitude:  dto.Latitude,
		Longitude: dto.Longitude,
		Altitude:  dto.Altitude,
		Battery:   s.vehicle.GetBatteryLevel(),
		State:     dto.State,
	})
}

func (s *Simulator) Telemetry() (telemetry.Sample, error) {
	sample, err := telemetry.ParseRaw(s.Frame())
	if err != nil {
		return sample, errors.Wrap(err, "could not decode telemetry frame")
	}
	return sample, nil
}

func (s *Simulator) Vehicle() vehicle.VehicleDTO {
	return s.vehicle.GetDTO()
}

func (s *Simulator) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
