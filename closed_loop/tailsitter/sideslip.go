package tailsitter

import (
	"math"

	"tailsitter-core/closed_loop/attitude"
)

const (
	sideslipDeadband = 1 * math.Pi / 180
	trimSideslipGain = 0.2
	maxYawRate       = 90 * math.Pi / 180

	// horizontal speed limits of the coordinated-turn gain g/|v_h|
	turnSpeedMin = 3.0
	turnSpeedMax = 25.0
)

// sideslipGain returns the roll-excess → yaw-rate gain for the current
// identification state.
func sideslipGain(state SysidtState, vx, vy float64) float64 {
	switch state {
	case SysidtTrimFlight:
		return trimSideslipGain
	case SysidtTurnFlight:
		return gravity / clamp(math.Hypot(vx, vy), turnSpeedMin, turnSpeedMax)
	default:
		return 0
	}
}

// controlSideslip turns roll beyond the dead-band into a yaw rate and
// integrates it into the yaw command. It returns the commanded yaw rate; with
// sideslip control disabled the yaw command is left untouched.
func (c *Controller) controlSideslip(in Inputs, dt float64) float64 {
	tr := &c.trans
	c.status.SideslipAng = attitude.WrapPi(math.Atan2(in.Velocity.Y, in.Velocity.X) - tr.yawCmd)
	if !c.params.VtSideslipCtrlEn {
		return 0
	}

	var excess float64
	switch {
	case tr.rollCmd > sideslipDeadband:
		excess = tr.rollCmd - sideslipDeadband
	case tr.rollCmd < -sideslipDeadband:
		excess = tr.rollCmd + sideslipDeadband
	}

	rate := clamp(excess*sideslipGain(c.sysid.state, in.Velocity.X, in.Velocity.Y), -maxYawRate, maxYawRate)
	tr.yawCmd = attitude.WrapPi(tr.yawCmd + rate*dt)
	return rate
}
