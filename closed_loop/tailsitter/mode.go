package tailsitter

// Mode is the supervisor flight mode. Only the mode machine changes it.
type Mode int

const (
	ModeMC Mode = iota
	ModeFrontTransition
	ModeFixedWing
	ModeBackTransition
)

func (m Mode) String() string {
	switch m {
	case ModeMC:
		return "MC"
	case ModeFrontTransition:
		return "FRONT_TRANSITION"
	case ModeFixedWing:
		return "FIXED_WING"
	case ModeBackTransition:
		return "BACK_TRANSITION"
	default:
		return "UNKNOWN"
	}
}

// InTransition reports whether m is one of the two transition phases.
func (m Mode) InTransition() bool {
	return m == ModeFrontTransition || m == ModeBackTransition
}

// ControlLoopMode selects the outer loop of the altitude cascade.
type ControlLoopMode int

const (
	ControlPos ControlLoopMode = iota
	ControlVel
	ControlVelWithoutAcc
)

func (m ControlLoopMode) String() string {
	switch m {
	case ControlPos:
		return "CONTROL_POS"
	case ControlVel:
		return "CONTROL_VEL"
	case ControlVelWithoutAcc:
		return "CONTROL_VEL_WITHOUT_ACC"
	default:
		return "UNKNOWN"
	}
}

// SweepType selects the actuator channel that receives the swept-sine input.
type SweepType int

const (
	SweepNone SweepType = iota
	SweepPitchRate
	SweepRollRate
	SweepYawRate
	SweepThrust
)

// ChirpMode selects the phase law of the sweep signal.
type ChirpMode int

const (
	// ChirpAuto uses a fixed 8 Hz tone on rate channels and the exponential
	// chirp on thrust.
	ChirpAuto ChirpMode = iota
	ChirpFixed
	ChirpExponential
	ChirpLinear
)
