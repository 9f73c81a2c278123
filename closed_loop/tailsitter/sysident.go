package tailsitter

import (
	"math"

	"tailsitter-core/closed_loop/attitude"
)

// SysidtState is the phase of the fixed-wing identification manoeuvre.
type SysidtState int

const (
	SysidtLock SysidtState = iota
	SysidtTrimFlight
	SysidtTurnFlight
)

func (s SysidtState) String() string {
	switch s {
	case SysidtLock:
		return "LOCK"
	case SysidtTrimFlight:
		return "TRIM_FLIGHT"
	case SysidtTurnFlight:
		return "TURN_FLIGHT"
	default:
		return "UNKNOWN"
	}
}

const (
	// the ground track counts as reversed within this many degrees of 180
	reversalToleranceDeg = 1.0
	// below this horizontal speed the ground-track heading is not evaluated
	minTrackSpeed = 1.0
)

// sysident runs alternating trim legs and 180° turns, stepping the trim AOA
// once per pair of turns.
type sysident struct {
	state         SysidtState
	globalCounter int
	trimCounter   int
	turnCounter   int
	trimStartUS   uint64
	trimPitch0    float64
	isAccelerated bool
}

// sysidtTargetAOA returns the trim AOA in degrees for the given leg.
func sysidtTargetAOA(p Params, global int) float64 {
	return math.Min(p.SysidtMinAOA+float64(global)*p.SysidtInterval, p.SysidtMaxAOA)
}

// sysidtPitch converts a trim AOA in degrees to the pitch command in
// radians (negative is nose forward).
func sysidtPitch(aoaDeg float64) float64 {
	return -(90 - aoaDeg) * math.Pi / 180
}

// startSysident restarts the manoeuvre in TRIM_FLIGHT.
func (c *Controller) startSysident(nowUS uint64) {
	c.sysid = sysident{state: SysidtTrimFlight}
	c.startTrimLeg(nowUS)
}

// startTrimLeg restarts the trim timer and ramps pitch from the current
// command to the leg's target over sysidt_acctime.
func (c *Controller) startTrimLeg(nowUS uint64) {
	s := &c.sysid
	s.trimStartUS = nowUS
	s.trimPitch0 = c.trans.pitchCmd
	s.isAccelerated = false
}

// runSysident sets the pitch and roll commands for the current phase and
// advances the phase.
func (c *Controller) runSysident(in Inputs, att attitude.EulerZXY, dt float64) {
	p := c.params
	s := &c.sysid
	tr := &c.trans
	target := sysidtPitch(sysidtTargetAOA(p, s.globalCounter))
	tau := secondsSince(in.TimestampUS, s.trimStartUS)

	switch s.state {
	case SysidtTrimFlight:
		if tau < p.SysidtAccTime {
			tr.pitchCmd = s.trimPitch0 + (target-s.trimPitch0)*tau/p.SysidtAccTime
		} else {
			tr.pitchCmd = target
			s.isAccelerated = true
		}
		tr.rollCmd = lateralRollSetpoint(tr, &c.vy, p, in.Position, in.Velocity, dt, &c.status)
	case SysidtTurnFlight:
		tr.pitchCmd = target
		tr.rollCmd = p.SysidtRoll * math.Pi / 180
	case SysidtLock:
		tr.rollCmd = lateralRollSetpoint(tr, &c.vy, p, in.Position, in.Velocity, dt, &c.status)
	}

	switch s.state {
	case SysidtTrimFlight:
		if s.globalCounter >= p.SysidtCounter {
			c.setSysidtState(SysidtLock)
		} else if tau >= p.SysidtAccTime+p.SysidtPitchTime {
			s.trimCounter++
			c.setSysidtState(SysidtTurnFlight)
		}
	case SysidtTurnFlight:
		if s.globalCounter >= p.SysidtCounter {
			c.setSysidtState(SysidtLock)
		} else if c.trackReversed(in, att) {
			s.turnCounter++
			s.globalCounter = s.turnCounter / 2
			c.setSysidtState(SysidtTrimFlight)
			c.startTrimLeg(in.TimestampUS)
		}
	}

	c.status.PitchRot = tr.pitchCmd
	c.status.RollRot = tr.rollCmd
}

func (c *Controller) setSysidtState(next SysidtState) {
	if c.sysid.state == next {
		return
	}
	c.log.Info("sysident %s -> %s (global %d)", c.sysid.state, next, c.sysid.globalCounter)
	c.sysid.state = next
}

// trackReversed reports whether the ground track has turned through 180°
// relative to the leg heading. On reversal the leg origin moves to the
// current position, the leg heading flips and the yaw command snaps to the
// measured heading.
func (c *Controller) trackReversed(in Inputs, att attitude.EulerZXY) bool {
	if math.Hypot(in.Velocity.X, in.Velocity.Y) < minTrackSpeed {
		return false
	}
	tr := &c.trans
	track := math.Atan2(in.Velocity.Y, in.Velocity.X)
	offDeg := 180 - math.Abs(attitude.WrapPi(track-tr.yaw0))*180/math.Pi
	if offDeg >= reversalToleranceDeg {
		return false
	}
	tr.x0, tr.y0 = in.Position.X, in.Position.Y
	tr.yaw0 = attitude.WrapPi(tr.yaw0 + math.Pi)
	tr.yawCmd = att.Psi
	return true
}
