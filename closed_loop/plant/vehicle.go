package plant

import (
	"math"

	"tailsitter-core/closed_loop/attitude"
	"tailsitter-core/closed_loop/tailsitter"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// State is the simulated vehicle state. Pos and Vel are NED, Rates and
// SpecificForce are body frame.
type State struct {
	Pos           r3.Vec
	Vel           r3.Vec
	Att           quat.Number
	Rates         r3.Vec
	SpecificForce r3.Vec
	Airspeed      float64 // along the nose, never negative
	AOA           float64
	Landed        bool
}

// Vehicle integrates the tail-sitter rigid body: thrust along -Z, wing lift
// normal to the relative wind in the X-Z plane, first-order rate response to
// the virtual controls and elevon moments scaled by dynamic pressure. There is
// no wind.
type Vehicle struct {
	cfg  AirframeConfig
	lift *tailsitter.LiftCurve
	st   State
}

// NewVehicle places the airframe at init. A nil table selects the built-in
// lift table.
func NewVehicle(cfg AirframeConfig, table *tailsitter.LiftTable, init State) *Vehicle {
	lift := tailsitter.NewLiftCurve(table)
	lift.Select(cfg.LiftRow)
	if init.Att == (quat.Number{}) {
		init.Att = attitude.Identity
	}
	init.Att = attitude.Normalize(init.Att)
	v := &Vehicle{cfg: cfg, lift: lift, st: init}
	v.st.SpecificForce = attitude.RotateInverse(init.Att, r3.Vec{Z: -gravity})
	return v
}

// State returns the current state.
func (v *Vehicle) State() State { return v.st }

// aero returns the body-frame aerodynamic force and the angle of attack for
// body-frame velocity vb.
func (v *Vehicle) aero(vb r3.Vec) (r3.Vec, float64) {
	speed := r3.Norm(vb)
	if speed < 1e-3 {
		return r3.Vec{}, 0
	}
	// forward speed along the nose and the component along the wing normal
	fwd := -vb.Z
	normal := vb.X
	aoa := math.Atan2(normal, fwd)

	qbar := 0.5 * v.cfg.AirDensity * speed * speed
	qs := qbar * v.cfg.WingAreaM2
	sa, ca := math.Sincos(aoa)

	cl := v.lift.CL(aoa)
	cd := v.cfg.CD0 + v.cfg.CDPlate*sa*sa

	liftDir := r3.Vec{X: -ca, Z: -sa}
	dragDir := r3.Scale(-1/speed, vb)
	f := r3.Add(r3.Scale(qs*cl, liftDir), r3.Scale(qs*cd, dragDir))
	return f, aoa
}

// Step advances the state by dt under the actuator groups.
func (v *Vehicle) Step(act0 tailsitter.ActuatorOutputs, act1 tailsitter.ElevonOutputs, dt float64) {
	if dt <= 0 {
		return
	}
	cfg := v.cfg
	st := &v.st

	throttle := ClampFloat(act0.Control[tailsitter.IndexThrottle], 0, 1)
	u := [3]float64{
		ClampFloat(act0.Control[tailsitter.IndexRoll], -1, 1),
		ClampFloat(act0.Control[tailsitter.IndexPitch], -1, 1),
		ClampFloat(act0.Control[tailsitter.IndexYaw], -1, 1),
	}
	elevon := [2]float64{
		ClampFloat(act1.Control[0], -1, 1),
		ClampFloat(act1.Control[1], -1, 1),
	}

	vb := attitude.RotateInverse(st.Att, st.Vel)
	fAero, aoa := v.aero(vb)
	thrust := throttle * cfg.MaxThrustN
	fBody := r3.Add(r3.Vec{Z: -thrust}, fAero)

	// rotational
	speed := r3.Norm(st.Vel)
	qbar := 0.5 * cfg.AirDensity * speed * speed
	w := [3]float64{st.Rates.X, st.Rates.Y, st.Rates.Z}
	surf := [3]float64{0, -elevon[1], elevon[0]}
	for i := range w {
		wdot := cfg.TorqueGain[i]*u[i] + cfg.ElevonGain*qbar*surf[i] - cfg.RateDamping[i]*w[i]
		w[i] += wdot * dt
	}
	st.Rates = r3.Vec{X: w[0], Y: w[1], Z: w[2]}
	if rate := r3.Norm(st.Rates); rate > 0 {
		dq := attitude.AxisAngle(st.Rates, rate*dt)
		st.Att = attitude.Normalize(quat.Mul(st.Att, dq))
	}

	// translational
	fNED := attitude.Rotate(st.Att, fBody)
	acc := r3.Add(r3.Scale(1/cfg.MassKg, fNED), r3.Vec{Z: gravity})
	st.Vel = r3.Add(st.Vel, r3.Scale(dt, acc))
	st.Pos = r3.Add(st.Pos, r3.Scale(dt, st.Vel))
	st.SpecificForce = r3.Scale(1/cfg.MassKg, fBody)

	// ground contact
	st.Landed = false
	if st.Pos.Z >= 0 {
		st.Pos.Z = 0
		if st.Vel.Z > 0 {
			st.Vel.Z = 0
		}
		if thrust < cfg.MassKg*gravity {
			st.Vel = r3.Vec{}
			st.Rates = r3.Vec{}
			st.Landed = true
			st.SpecificForce = attitude.RotateInverse(st.Att, r3.Vec{Z: -gravity})
		}
	}

	st.AOA = aoa
	st.Airspeed = math.Max(-attitude.RotateInverse(st.Att, st.Vel).Z, 0)
}
