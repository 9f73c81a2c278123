package plant

import (
	"math"

	"tailsitter-core/closed_loop/attitude"
	"tailsitter-core/closed_loop/tailsitter"

	"gonum.org/v1/gonum/spatial/r3"
)

// HoverHold is the stand-in MC position controller: it holds a captured NED
// point and heading and emits the MC attitude setpoint the supervisor passes
// through in hover.
type HoverHold struct {
	cfg HoverConfig
	vz  *RateController

	hold    r3.Vec
	yaw     float64
	holding bool
}

// NewHoverHold creates an unarmed hold; the first Setpoint captures the
// current position.
func NewHoverHold(cfg HoverConfig) *HoverHold {
	return &HoverHold{
		cfg: cfg,
		vz: NewRateController(RateLoopConfig{
			Kp:            cfg.VzKp,
			Ki:            cfg.VzKi,
			IntegralLimit: cfg.VzIntegralLimit,
			OutputLimit:   0.95,
		}),
	}
}

// Capture re-arms the hold at pos with heading yaw.
func (h *HoverHold) Capture(pos r3.Vec, yaw float64) {
	h.hold = pos
	h.yaw = yaw
	h.holding = true
	h.vz.Reset()
}

// Release drops the hold point; the next Setpoint captures again.
func (h *HoverHold) Release() { h.holding = false }

// Hold returns the held point and heading.
func (h *HoverHold) Hold() (r3.Vec, float64) { return h.hold, h.yaw }

// Setpoint returns the MC attitude setpoint for state s.
func (h *HoverHold) Setpoint(s State, nowUS uint64, dt float64) tailsitter.AttitudeSetpoint {
	if !h.holding {
		h.Capture(s.Pos, attitude.EulerZXYFromQuat(s.Att).Psi)
	}

	// vertical: altitude P into a climb-rate PI
	vzSp := ClampFloat(h.cfg.AltKp*(h.hold.Z-s.Pos.Z), -h.cfg.MaxClimbRate, h.cfg.MaxClimbRate)
	thrust := h.vz.Update(s.Vel.Z, vzSp, h.cfg.HoverThrust, dt)
	thrust = ClampFloat(thrust, 0.10, 0.95)

	// horizontal: PD on position into an acceleration, rotated into heading
	ax := h.cfg.PosKp*(h.hold.X-s.Pos.X) - h.cfg.VelKp*s.Vel.X
	ay := h.cfg.PosKp*(h.hold.Y-s.Pos.Y) - h.cfg.VelKp*s.Vel.Y
	sy, cy := math.Sincos(h.yaw)
	fwd := cy*ax + sy*ay
	right := -sy*ax + cy*ay

	e := attitude.EulerZXY{
		Phi:   ClampFloat(math.Atan(right/gravity), -h.cfg.MaxTilt, h.cfg.MaxTilt),
		Theta: ClampFloat(-math.Atan(fwd/gravity), -h.cfg.MaxTilt, h.cfg.MaxTilt),
		Psi:   h.yaw,
	}
	return tailsitter.AttitudeSetpoint{
		RollBody:    e.Phi,
		PitchBody:   e.Theta,
		YawBody:     e.Psi,
		Qd:          attitude.WXYZ(e.Quat()),
		QdValid:     true,
		ThrustBody:  [3]float64{0, 0, -thrust},
		TimestampUS: nowUS,
	}
}
