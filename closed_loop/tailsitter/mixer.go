package tailsitter

import "math"

const (
	fwThrottleBlendT = 0.3 // s
	fwAttBlendT      = 1.5 // s
	fwEntryThrottle  = 0.7

	backTransMinThrottle = 0.3
	backTransMaxThrottle = 0.75

	sweepToneHz    = 8.0
	sweepMinHz     = 0.5
	sweepMaxHz     = 80.0
	sweepDurationS = 150.0
	// shape constant of the exponential chirp phase
	expChirpC2 = 0.0187
)

// sweepPhase returns the phase in radians tau seconds into a sweep.
func sweepPhase(mode ChirpMode, tau float64) float64 {
	wMin := 2 * math.Pi * sweepMinHz
	wMax := 2 * math.Pi * sweepMaxHz
	T := sweepDurationS

	switch mode {
	case ChirpExponential:
		return wMin*tau + expChirpC2*(wMax-wMin)*(T/4*math.Exp(4*tau/T)-tau)
	case ChirpLinear:
		return wMin*tau + 0.5*(wMax-wMin)*tau*tau/T
	default:
		return 2 * math.Pi * sweepToneHz * tau
	}
}

// sweepSignal returns the excitation for the configured channel, or zero when
// no channel is configured.
func sweepSignal(p Params, tau float64) float64 {
	channel := SweepType(p.VtSweepType)
	if channel == SweepNone {
		return 0
	}
	mode := ChirpMode(p.VtSweepChirp)
	if mode == ChirpAuto {
		mode = ChirpFixed
		if channel == SweepThrust {
			mode = ChirpExponential
		}
	}
	return p.VtSweepAmp * math.Sin(sweepPhase(mode, tau))
}

// sweepChannel maps a sweep type to its control channel index.
func sweepChannel(t SweepType) (int, bool) {
	switch t {
	case SweepRollRate:
		return IndexRoll, true
	case SweepPitchRate:
		return IndexPitch, true
	case SweepYawRate:
		return IndexYaw, true
	case SweepThrust:
		return IndexThrottle, true
	default:
		return 0, false
	}
}

// fillActuatorOutputs mixes the MC and FW virtual controls for the current
// mode into the main and elevon groups.
func (c *Controller) fillActuatorOutputs(in Inputs) (ActuatorOutputs, ElevonOutputs) {
	now := in.TimestampUS
	mc := in.MCControls
	fw := in.FWControls

	act0 := ActuatorOutputs{TimestampUS: now, TimestampSampleUS: in.MCTimestampSampleUS}
	act1 := ElevonOutputs{TimestampUS: now, TimestampSampleUS: in.FWTimestampSampleUS}

	switch c.mode {
	case ModeMC:
		act0.Control = mc
		if !in.SweepRequested {
			c.sched.sweepStartUS = now
			break
		}
		if ch, ok := sweepChannel(SweepType(c.params.VtSweepType)); ok {
			s := sweepSignal(c.params, secondsSince(now, c.sched.sweepStartUS))
			act0.Control[ch] += s
			act0.SweepInput = s
		}

	case ModeFixedWing:
		t := secondsSince(now, c.sched.fwStartUS)
		sThr := clamp(t/fwThrottleBlendT, 0, 1)
		sPR := clamp(t/fwAttBlendT, 0, 1)

		// the FW attitude loop flies the airframe in its own body frame:
		// FW yaw drives the roll channel and FW roll drives yaw
		act0.Control[IndexRoll] = fw[IndexYaw]*sPR + mc[IndexRoll]*(1-sPR)
		act0.Control[IndexPitch] = (fw[IndexPitch]+c.params.FwPitchTrim)*sPR + mc[IndexPitch]*(1-sPR)
		act0.Control[IndexYaw] = -fw[IndexRoll]*sPR + mc[IndexYaw]*(1-sPR)
		act0.Control[IndexThrottle] = fw[IndexThrottle]*sThr + fwEntryThrottle*(1-sThr)

		act1.Control[IndexRoll] = -fw[IndexRoll]
		act1.Control[IndexPitch] = -fw[IndexPitch]

	case ModeFrontTransition, ModeBackTransition:
		act0.Control = mc
		if c.mode == ModeBackTransition {
			act0.Control[IndexThrottle] = clamp(mc[IndexThrottle], backTransMinThrottle, backTransMaxThrottle)
		}
		act1.Control[IndexRoll] = -fw[IndexRoll]
		act1.Control[IndexPitch] = -fw[IndexPitch]
	}

	if c.mode != ModeMC {
		c.sched.sweepStartUS = now
	}
	return act0, act1
}
