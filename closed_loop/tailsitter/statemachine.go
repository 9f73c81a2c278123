package tailsitter

import (
	"math"

	"tailsitter-core/closed_loop/attitude"
)

const (
	dangerPitch       = 115 * math.Pi / 180
	dangerRoll        = 85 * math.Pi / 180
	dangerDescentRate = 10.0 // m/s, NED down

	// back transition completes once pitch is within this of level
	backTransDonePitch = 0.2

	// the front-transition timeout fires this long after the nominal duration
	frontTransTimeoutMargin = 2.0
)

// AbortFunc is invoked when the supervisor gives up on a transition. The
// reason is a short human-readable string.
type AbortFunc func(reason string)

// dangerousAttitude reports a pitch or roll excursion the transition
// controller cannot recover from.
func dangerousAttitude(att attitude.EulerZXY) bool {
	return math.Abs(att.Theta) >= dangerPitch || math.Abs(att.Phi) >= dangerRoll
}

// dangerousAltitude reports the vehicle at or below vt_safe_alt or sinking
// faster than 10 m/s.
func dangerousAltitude(p Params, in Inputs) bool {
	return -in.Position.Z <= p.VtSafeAlt || in.Velocity.Z > dangerDescentRate
}

// canTransitionOnGround lets the front transition complete without the
// airspeed test while the vehicle is disarmed or landed.
func canTransitionOnGround(in Inputs) bool {
	return in.Disarmed || in.Landed
}

// updateMode evaluates the transition edges for this tick. It runs once per
// tick, before any controller.
func (c *Controller) updateMode(in Inputs, att attitude.EulerZXY) {
	p := c.params
	now := in.TimestampUS
	tau := secondsSince(now, c.sched.transStartUS)

	if !in.FixedWingRequested {
		c.altitudeAbort = false
		c.attitudeAbort = false
	}

	switch c.mode {
	case ModeMC:
		if in.FixedWingRequested && !c.altitudeAbort && !c.attitudeAbort && -in.Position.Z > p.VtSafeAlt {
			c.enterMode(ModeFrontTransition, in, att, "fixed-wing requested")
		}

	case ModeFrontTransition:
		airspeedOK := p.AirspeedDisabled || in.IndicatedAirspeed >= p.TransitionAirspeed
		switch {
		case !in.FixedWingRequested:
			c.enterMode(ModeMC, in, att, "front transition cancelled")
		case dangerousAltitude(p, in):
			c.altitudeAbort = true
			c.abort("dangerous altitude")
			c.enterMode(ModeMC, in, att, "dangerous altitude")
		case dangerousAttitude(att):
			c.attitudeAbort = true
			c.abort("dangerous attitude")
			c.enterMode(ModeMC, in, att, "dangerous attitude")
		case (airspeedOK && tau >= p.FrontTransDuration) || canTransitionOnGround(in):
			c.enterMode(ModeFixedWing, in, att, "front transition complete")
		case tau >= p.FrontTransDuration+frontTransTimeoutMargin && !c.timeoutFired:
			c.timeoutFired = true
			c.abort("Transition timeout")
		}

	case ModeFixedWing:
		switch {
		case dangerousAltitude(p, in):
			c.altitudeAbort = true
			c.abort("dangerous altitude")
			c.enterMode(ModeMC, in, att, "dangerous altitude")
		case !in.FixedWingRequested:
			c.enterMode(ModeBackTransition, in, att, "multicopter requested")
		case dangerousAttitude(att):
			c.attitudeAbort = true
			c.abort("dangerous attitude")
			c.enterMode(ModeBackTransition, in, att, "dangerous attitude")
		}

	case ModeBackTransition:
		switch {
		case in.FixedWingRequested && !c.attitudeAbort:
			c.enterMode(ModeFixedWing, in, att, "fixed-wing requested")
		case math.Abs(att.Theta) <= backTransDonePitch || tau >= p.BackTransDuration:
			c.enterMode(ModeMC, in, att, "back transition complete")
		}
	}
}

// enterMode switches to next and runs the entry actions of the new mode.
func (c *Controller) enterMode(next Mode, in Inputs, att attitude.EulerZXY, reason string) {
	prev := c.mode
	c.mode = next
	c.modeChanged = true
	c.modeReason = reason
	c.log.Info("mode %s -> %s: %s", prev, next, reason)

	switch next {
	case ModeFrontTransition:
		c.timeoutFired = false
		c.resetTransStartState(in, att)
		c.trans.pitchCmd = 0
		c.trans.rollCmd = 0
	case ModeBackTransition:
		c.resetTransStartState(in, att)
		c.trans.pitchCmd = c.trans.pitch0
		c.trans.rollCmd = c.trans.roll0
	case ModeFixedWing:
		c.sched.fwStartUS = in.TimestampUS
		c.startSysident(in.TimestampUS)
	}
}

// abort logs at critical level and invokes the host's abort hook.
func (c *Controller) abort(reason string) {
	c.log.Critical("transition aborted: %s", reason)
	if c.onAbort != nil {
		c.onAbort(reason)
	}
}

// resetTransStartState records the state the transition starts from: time,
// heading, attitude, hover thrust, altitude and track origin. It also clears
// every transition PID. Calling it twice with the same inputs leaves the
// same record.
func (c *Controller) resetTransStartState(in Inputs, att attitude.EulerZXY) {
	now := in.TimestampUS
	tr := &c.trans

	c.sched.transStartUS = now
	c.sched.vzMissionFinished = false

	tr.yaw0 = att.Psi
	tr.yawCmd = att.Psi
	tr.pitch0 = att.Theta
	tr.roll0 = att.Phi
	tr.altSp = in.Position.Z
	tr.x0, tr.y0 = in.Position.X, in.Position.Y

	tr.mcHoverThrust = in.MCAttitudeSetpoint.ThrustBody[2]
	if tr.mcHoverThrust > -minThrust {
		tr.mcHoverThrust = -c.params.MpcThrHover
	}

	c.vz.Reset(now)
	c.vx.Reset(now)
	c.vy.Reset(now)
	c.status.TicksSinceTrans = 0
	c.startSysident(now)
}
