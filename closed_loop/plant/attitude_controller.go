package plant

import (
	"math"

	"tailsitter-core/closed_loop/attitude"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// AttitudeController tracks a quaternion setpoint with a P angle loop feeding
// three body-rate PIDs. Its output is the MC-frame torque demand
// (x, y, z) in [-1, 1].
type AttitudeController struct {
	cfg  AttitudeConfig
	rate [3]*RateController

	rateSp r3.Vec
}

// NewAttitudeController builds the angle and rate loops.
func NewAttitudeController(cfg AttitudeConfig) *AttitudeController {
	a := &AttitudeController{cfg: cfg}
	for i := range a.rate {
		a.rate[i] = NewRateController(cfg.Rate[i])
	}
	return a
}

// Reset clears the rate loop integrators.
func (a *AttitudeController) Reset() {
	for _, r := range a.rate {
		r.Reset()
	}
	a.rateSp = r3.Vec{}
}

// RateSetpoint returns the body-rate demand of the last Update.
func (a *AttitudeController) RateSetpoint() r3.Vec { return a.rateSp }

// attitudeError returns the body-frame rotation vector from q to sp, taking
// the short way round.
func attitudeError(q, sp quat.Number) r3.Vec {
	e := quat.Mul(quat.Conj(attitude.Normalize(q)), attitude.Normalize(sp))
	if e.Real < 0 {
		e = quat.Scale(-1, e)
	}
	v := r3.Vec{X: e.Imag, Y: e.Jmag, Z: e.Kmag}
	s := r3.Norm(v)
	if s < 1e-12 {
		return r3.Scale(2, v)
	}
	angle := 2 * math.Atan2(s, e.Real)
	return r3.Scale(angle/s, v)
}

// Update returns the torque demand for setpoint sp at attitude q and body
// rates w. ff maps the rate demand to a feed-forward control per axis; nil
// disables it.
func (a *AttitudeController) Update(sp, q quat.Number, w r3.Vec, dt float64, ff func(axis int, rate float64) float64) r3.Vec {
	e := attitudeError(q, sp)
	errs := [3]float64{e.X, e.Y, e.Z}
	meas := [3]float64{w.X, w.Y, w.Z}

	var rsp, out [3]float64
	for i := range errs {
		rsp[i] = ClampFloat(a.cfg.AngleKp[i]*errs[i], -a.cfg.MaxRate[i], a.cfg.MaxRate[i])
		var f float64
		if ff != nil {
			f = ff(i, rsp[i])
		}
		out[i] = a.rate[i].Update(rsp[i], meas[i], f, dt)
	}
	a.rateSp = r3.Vec{X: rsp[0], Y: rsp[1], Z: rsp[2]}
	return r3.Vec{X: out[0], Y: out[1], Z: out[2]}
}

// Diagnostics returns the three rate loops' internals.
func (a *AttitudeController) Diagnostics() [3]RateDiagnostics {
	var d [3]RateDiagnostics
	for i, r := range a.rate {
		d[i] = r.GetDiagnostics()
	}
	return d
}
