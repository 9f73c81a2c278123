package tailsitter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MaxKnots bounds the length of a pitch programme.
const MaxKnots = 32

const (
	maxLateralRoll  = 0.3  // rad
	backTransBand   = 0.01 // rad
	frontPitchRampT = 2.5  // s, end of the pitch-over ramp
	frontPitchHoldT = 50.0 // s, last knot of the default programme
)

// Knot is one breakpoint of a pitch programme: T seconds since the start of
// the programme and the pitch setpoint in degrees (negative is nose forward).
type Knot struct {
	T        float64 `json:"t"`
	PitchDeg float64 `json:"pitch_deg"`
}

// PitchSchedule is a piecewise-linear pitch programme.
type PitchSchedule struct {
	knots []Knot
}

// NewPitchSchedule validates the knots: at least one, at most MaxKnots, with
// strictly increasing times.
func NewPitchSchedule(knots []Knot) (*PitchSchedule, error) {
	if len(knots) == 0 {
		return nil, fmt.Errorf("pitch schedule needs at least one knot")
	}
	if len(knots) > MaxKnots {
		return nil, fmt.Errorf("pitch schedule has %d knots (max %d)", len(knots), MaxKnots)
	}
	for i := 1; i < len(knots); i++ {
		if knots[i].T <= knots[i-1].T {
			return nil, fmt.Errorf("pitch schedule knot %d: time %g not after %g", i, knots[i].T, knots[i-1].T)
		}
	}
	out := make([]Knot, len(knots))
	copy(out, knots)
	return &PitchSchedule{knots: out}, nil
}

// FrontTransitionSchedule is the default pitch-over programme: ramp from 0 to
// −p1 over 2.5 s and hold.
func FrontTransitionSchedule(p1 float64) *PitchSchedule {
	p1Deg := math.Abs(p1) * 180 / math.Pi
	return &PitchSchedule{knots: []Knot{
		{T: 0, PitchDeg: 0},
		{T: frontPitchRampT, PitchDeg: -p1Deg},
		{T: frontPitchHoldT, PitchDeg: -p1Deg},
	}}
}

// Knots returns a copy of the breakpoints.
func (s *PitchSchedule) Knots() []Knot {
	out := make([]Knot, len(s.knots))
	copy(out, s.knots)
	return out
}

// Pitch returns the programmed pitch in radians tau seconds after the start.
// Before the first knot the first value holds, after the last knot the last.
func (s *PitchSchedule) Pitch(tau float64) float64 {
	k := s.knots
	if tau <= k[0].T {
		return k[0].PitchDeg * math.Pi / 180
	}
	for i := 0; i < len(k)-1; i++ {
		if tau <= k[i+1].T {
			frac := (tau - k[i].T) / (k[i+1].T - k[i].T)
			return (k[i].PitchDeg + frac*(k[i+1].PitchDeg-k[i].PitchDeg)) * math.Pi / 180
		}
	}
	return k[len(k)-1].PitchDeg * math.Pi / 180
}

// lateralOffset projects the displacement (dx, dy) onto the axis
// perpendicular to heading yaw0; positive is to the right of the track.
func lateralOffset(dx, dy, yaw0 float64) float64 {
	return math.Hypot(dx, dy) * math.Sin(math.Atan2(dy, dx)-yaw0)
}

// lateralRollSetpoint runs the lateral-position PI and returns the roll
// command, clamped to ±0.3 rad. The raw output is handed back to the vy
// context so its integrator freezes while clamped.
func lateralRollSetpoint(tr *transitionState, vy *PIDContext, p Params, pos, vel r3.Vec, dt float64, st *VehicleStatus) float64 {
	latDist := lateralOffset(pos.X-tr.x0, pos.Y-tr.y0, tr.yaw0)
	latV := lateralOffset(vel.X, vel.Y, tr.yaw0)

	vCmd := -p.VtYDistKp * latDist
	// the context integrates I −= Ki·err·dt; the negated gain keeps the
	// integral acting in the same direction as the proportional term
	raw := vy.Step(vCmd-latV, dt, PIDGains{Kp: p.VtVyKp, Ki: -p.VtVyKi, IMax: maxLateralRoll})

	st.VyCmd = vCmd
	st.LatDist = latDist
	st.LateralV = latV
	return vy.Saturate(raw, -maxLateralRoll, maxLateralRoll)
}

// rampToZero moves cur toward zero at |start|/duration rad/s. The result is
// clamped between the current value and the ±0.01 rad band on start's side,
// so the ramp is monotonic and never crosses zero.
func rampToZero(cur, start, duration, dt float64) float64 {
	if duration <= 0 || dt <= 0 || math.Abs(cur) <= backTransBand {
		return cur
	}
	step := math.Abs(start) / duration * dt
	if cur < 0 {
		return clamp(cur+step, cur, -backTransBand)
	}
	return clamp(cur-step, backTransBand, cur)
}
