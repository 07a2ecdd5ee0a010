package vehiclesim

import (
	"math"

	"github.com/pkg/errors"
)

type (
	//limits of a controller term; NaN means unbounded
	Limits struct {
		Min float64
		Max float64
	}

	//PID controller with integral clamping and derivative on measurement
	PID struct {
		Kp, Ki, Kd     float64
		setpoint       float64
		output         Limits
		integralLimits Limits
		integral       float64
		prev           float64
		hasPrev        bool
	}
)

func Unbounded() Limits {
	return Limits{Min: math.NaN(), Max: math.NaN()}
}

func NewPID(kp, ki, kd float64, output, integral Limits) *PID {
	return &PID{Kp: kp, Ki: ki, Kd: kd, output: output, integralLimits: integral}
}

func (p *PID) SetSetpoint(sp float64) {
	p.setpoint = sp
}

func (p *PID) Setpoint() float64 {
	return p.setpoint
}

func (p *PID) Reset() {
	p.integral = 0
	p.hasPrev = false
}

// Update advances the controller by dt seconds and returns the control output.
func (p *PID) Update(measurement, dt float64) (float64, error) {

	if dt <= 0 {
		return 0, errors.New("dt must be > 0")
	}

	err := p.setpoint - measurement

	p.integral = clamp(p.integral+err*dt, p.integralLimits)

	// derivative of the measurement avoids a kick when the setpoint jumps
	dTerm := 0.0
	if p.hasPrev {
		dTerm = -(measurement - p.prev) / dt
	}
	p.prev = measurement
	p.hasPrev = true

	return clamp(p.Kp*err+p.Ki*p.integral+p.Kd*dTerm, p.output), nil
}

func clamp(v float64, l Limits) float64 {
	if !math.IsNaN(l.Min) && v < l.Min {
		return l.Min
	}
	if !math.IsNaN(l.Max) && v > l.Max {
		return l.Max
	}
	return v
}
