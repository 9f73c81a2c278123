package plant

import (
	"tailsitter-core/closed_loop/tailsitter"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// FWAttitudeController is the fixed-wing attitude loop: the shared angle and
// rate PIDs plus a feed-forward that cancels the airframe's rate damping,
// scheduled on dynamic pressure because the elevons add authority with speed.
//
// Outputs are packed in the FW axis convention the mixer expects:
// roll about the nose (-Z), pitch about Y, yaw about X.
type FWAttitudeController struct {
	att      *AttitudeController
	airframe AirframeConfig
	trimQbar float64

	// Last feed-forward per axis, for diagnostics
	lastFF [3]float64
}

// NewFWAttitudeController builds the loop for the given airframe. trimAirspeed
// bounds the scheduling below so the feed-forward stays finite at rest.
func NewFWAttitudeController(cfg AttitudeConfig, airframe AirframeConfig, trimAirspeed float64) *FWAttitudeController {
	return &FWAttitudeController{
		att:      NewAttitudeController(cfg),
		airframe: airframe,
		trimQbar: 0.5 * airframe.AirDensity * trimAirspeed * trimAirspeed,
	}
}

// Reset clears the loop state
func (fw *FWAttitudeController) Reset() {
	fw.att.Reset()
	fw.lastFF = [3]float64{}
}

// Update returns the FW virtual controls for tracking sp. throttle is passed
// through unchanged.
func (fw *FWAttitudeController) Update(sp, q quat.Number, w r3.Vec, airspeed, throttle, dt float64) tailsitter.ActuatorControls {
	qbar := 0.5 * fw.airframe.AirDensity * airspeed * airspeed
	u := fw.att.Update(sp, q, w, dt, func(axis int, rate float64) float64 {
		f := fw.computeFeedforward(axis, rate, qbar)
		fw.lastFF[axis] = f
		return f
	})

	var c tailsitter.ActuatorControls
	c[tailsitter.IndexRoll] = -u.Z
	c[tailsitter.IndexPitch] = u.Y
	c[tailsitter.IndexYaw] = u.X
	c[tailsitter.IndexThrottle] = ClampFloat(throttle, 0, 1)
	return c
}

// computeFeedforward returns the control that holds rate against the
// airframe's damping: u = d·rate / (k + k_e·q̄) on the elevon axes.
func (fw *FWAttitudeController) computeFeedforward(axis int, rate, qbar float64) float64 {
	a := fw.airframe
	gain := a.TorqueGain[axis]
	if axis != 0 {
		gain += a.ElevonGain * max(qbar, fw.trimQbar)
	}
	if gain <= 0 {
		return 0
	}
	return a.RateDamping[axis] * rate / gain
}

// GetDiagnostics returns the rate loops and the last feed-forward terms.
func (fw *FWAttitudeController) GetDiagnostics() FWDiagnostics {
	return FWDiagnostics{Rate: fw.att.Diagnostics(), Feedforward: fw.lastFF}
}

// FWDiagnostics contains internal state
type FWDiagnostics struct {
	Rate        [3]RateDiagnostics
	Feedforward [3]float64
}
