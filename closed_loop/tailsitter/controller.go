package tailsitter

import (
	"tailsitter-core/closed_loop/attitude"

	"gonum.org/v1/gonum/spatial/r3"
)

// airspeed smoothing time constant for the AOA estimate
const airspeedTau = 0.2 // s

// Logger receives mode-edge and failsafe messages. *utils.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Critical(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)     {}
func (NopLogger) Warn(string, ...any)     {}
func (NopLogger) Critical(string, ...any) {}

// Config wires a Controller to its host.
type Config struct {
	// Params is polled once per tick. Nil uses a store holding DefaultParams.
	Params ParamSource
	Logger Logger
	// Abort is called when a transition is abandoned. May be nil.
	Abort AbortFunc
	// LiftTable defaults to DefaultLiftTable.
	LiftTable *LiftTable
	// FrontSchedule replaces the pitch-over programme derived from
	// front_trans_pitch_sp_p1.
	FrontSchedule *PitchSchedule
}

// transitionState is the start pose and running setpoints of the current
// transition.
type transitionState struct {
	x0, y0        float64
	yaw0          float64
	roll0, pitch0 float64
	altSp         float64
	mcHoverThrust float64 // NED, negative

	rollCmd  float64
	pitchCmd float64
	yawCmd   float64
}

// scheduleRecord holds the timestamps the mode edges stamp.
type scheduleRecord struct {
	transStartUS      uint64
	fwStartUS         uint64
	sweepStartUS      uint64
	vzMissionFinished bool
}

// Controller is the tail-sitter transition supervisor. It is not safe for
// concurrent use; the host calls Update from a single fixed-rate loop.
type Controller struct {
	paramSrc     ParamSource
	params       Params
	paramsLoaded bool

	log     Logger
	onAbort AbortFunc

	lift           *LiftCurve
	frontSchedule  *PitchSchedule
	customSchedule bool

	snap     snapshot
	accelLPF [3]LowPass2p
	airspeed AlphaFilter
	accel    r3.Vec

	mode          Mode
	modeChanged   bool
	modeReason    string
	timeoutFired  bool
	altitudeAbort bool
	attitudeAbort bool

	trans transitionState
	sched scheduleRecord
	sysid sysident

	vz PIDContext
	vx PIDContext
	vy PIDContext

	status    VehicleStatus
	lastRunUS uint64
	started   bool
}

// NewController returns a supervisor in MC mode.
func NewController(cfg Config) *Controller {
	c := &Controller{
		paramSrc: cfg.Params,
		log:      cfg.Logger,
		onAbort:  cfg.Abort,
		lift:     NewLiftCurve(cfg.LiftTable),
		airspeed: *NewAlphaFilter(1/SampleRateHz, airspeedTau),
		mode:     ModeMC,
	}
	if c.paramSrc == nil {
		c.paramSrc = NewParamStore(DefaultParams())
	}
	if c.log == nil {
		c.log = NopLogger{}
	}
	if cfg.FrontSchedule != nil {
		c.frontSchedule = cfg.FrontSchedule
		c.customSchedule = true
	}
	c.sysid.state = SysidtLock
	c.pollParams()
	return c
}

// Mode returns the current flight mode.
func (c *Controller) Mode() Mode { return c.mode }

// Params returns the parameter set in use.
func (c *Controller) Params() Params { return c.params }

// FrontSchedule returns the pitch-over programme flown on the next front
// transition.
func (c *Controller) FrontSchedule() *PitchSchedule { return c.frontSchedule }

// SysidtState returns the identification manoeuvre state.
func (c *Controller) SysidtState() SysidtState { return c.sysid.state }

// Status returns the diagnostics of the last tick.
func (c *Controller) Status() VehicleStatus { return c.status }

// pollParams reads the parameter source and applies a changed set: the CL
// row is reselected, the acceleration filters retuned and the default
// pitch-over programme rebuilt. Invalid sets are rejected.
func (c *Controller) pollParams() {
	p, changed := c.paramSrc.Poll()
	if !changed && c.paramsLoaded {
		return
	}
	if err := p.Validate(); err != nil {
		c.log.Warn("rejecting parameter update: %v", err)
		if c.paramsLoaded {
			return
		}
		p = DefaultParams()
	}

	prev := c.params
	first := !c.paramsLoaded
	c.params = p
	c.paramsLoaded = true

	c.lift.Select(p.SysIdentNum)
	if first || p.VtAccLpfCutoff != prev.VtAccLpfCutoff {
		for i := range c.accelLPF {
			c.accelLPF[i].SetCutoff(SampleRateHz, p.VtAccLpfCutoff)
		}
	}
	if !c.customSchedule && (first || p.FrontTransPitchSpP1 != prev.FrontTransPitchSpP1) {
		c.frontSchedule = FrontTransitionSchedule(p.FrontTransPitchSpP1)
	}
}

// Update runs one control tick. The order is fixed: snapshot, mode machine,
// transition controller, setpoint composition, mixer.
func (c *Controller) Update(in Inputs) Outputs {
	c.pollParams()
	in = c.snap.take(in)
	now := in.TimestampUS

	c.accel = c.filterAccel(in.BodyAccel)
	c.airspeed.Apply(in.IndicatedAirspeed)
	att := attitude.EulerZXYFromQuat(attitude.QuatFromWXYZ(in.Attitude))

	dt := 0.0
	if c.started && now > c.lastRunUS {
		dt = float64(now-c.lastRunUS) * 1e-6
	}
	c.lastRunUS = now
	c.started = true

	c.modeChanged = false
	c.modeReason = ""
	c.updateMode(in, att)
	if c.modeChanged {
		dt = 0
	}

	thrust, yawRate := c.runTransitionController(in, att, dt)
	sp := c.composeSetpoint(in, thrust, yawRate)
	act0, act1 := c.fillActuatorOutputs(in)
	c.fillStatus(in, att, sp)

	return Outputs{
		Mode:             c.mode,
		ModeReason:       c.modeReason,
		AttitudeSetpoint: sp,
		Actuators0:       act0,
		Actuators1:       act1,
		Status:           c.status,
	}
}

// runTransitionController updates the pitch, roll and yaw commands for the
// current mode and returns the thrust magnitude and commanded yaw rate. In MC
// both are zero and the MC setpoint passes through.
func (c *Controller) runTransitionController(in Inputs, att attitude.EulerZXY, dt float64) (thrust, yawRate float64) {
	p := c.params
	tr := &c.trans
	tau := secondsSince(in.TimestampUS, c.sched.transStartUS)

	if c.mode == ModeFrontTransition || c.mode == ModeFixedWing {
		if in.MissionInstanceCount > 0 && in.MissionSeqCurrent >= in.MissionInstanceCount-1 {
			c.sched.vzMissionFinished = true
		}
	}

	switch c.mode {
	case ModeFrontTransition:
		tr.pitchCmd = c.frontSchedule.Pitch(tau)
		tr.rollCmd = lateralRollSetpoint(tr, &c.vy, p, in.Position, in.Velocity, dt, &c.status)
		yawRate = c.controlSideslip(in, dt)
		thrust = c.controlAltitude(in, att, tau, ControlLoopMode(p.VtVertCtrlMode))
		c.status.PitchRot = tr.pitchCmd
		c.status.RollRot = tr.rollCmd

	case ModeFixedWing:
		c.runSysident(in, att, dt)
		yawRate = c.controlSideslip(in, dt)
		thrust = c.controlAltitude(in, att, tau, ControlLoopMode(p.VtVertCtrlMode))

	case ModeBackTransition:
		tr.pitchCmd = rampToZero(tr.pitchCmd, tr.pitch0, p.BackTransDuration, dt)
		tr.rollCmd = rampToZero(tr.rollCmd, tr.roll0, p.BackTransDuration, dt)
		thrust = c.controlAltitude(in, att, tau, ControlPos)
		c.status.PitchRot = tr.pitchCmd
		c.status.RollRot = tr.rollCmd
	}
	return thrust, yawRate
}

// composeSetpoint builds the attitude setpoint. Outside MC the quaternion is
// qz(yaw)·qx(roll)·qy(pitch) of the transition commands; in MC the MC
// setpoint passes through normalised. Thrust is always within
// [−0.95, −0.10].
func (c *Controller) composeSetpoint(in Inputs, thrust, yawRate float64) AttitudeSetpoint {
	var sp AttitudeSetpoint

	if c.mode == ModeMC {
		mc := in.MCAttitudeSetpoint
		e := attitude.EulerZXY{Phi: mc.RollBody, Theta: mc.PitchBody, Psi: attitude.WrapPi(mc.YawBody)}
		q := e.Quat()
		if mc.QdValid {
			q = attitude.Normalize(attitude.QuatFromWXYZ(mc.Qd))
		}
		sp = AttitudeSetpoint{
			RollBody:       e.Phi,
			PitchBody:      e.Theta,
			YawBody:        e.Psi,
			Qd:             attitude.WXYZ(q),
			QdValid:        true,
			ThrustBody:     mc.ThrustBody,
			YawSpMoveRate:  mc.YawSpMoveRate,
			SideslipCtrlEn: false,
		}
		sp.ThrustBody[2] = clamp(mc.ThrustBody[2], -maxThrust, -minThrust)
	} else {
		tr := &c.trans
		tr.yawCmd = attitude.WrapPi(tr.yawCmd)
		e := attitude.EulerZXY{Phi: tr.rollCmd, Theta: tr.pitchCmd, Psi: tr.yawCmd}
		sp = AttitudeSetpoint{
			RollBody:       e.Phi,
			PitchBody:      e.Theta,
			YawBody:        e.Psi,
			Qd:             attitude.WXYZ(e.Quat()),
			QdValid:        true,
			ThrustBody:     [3]float64{0, 0, -clamp(thrust, minThrust, maxThrust)},
			YawSpMoveRate:  yawRate,
			SideslipCtrlEn: c.params.VtSideslipCtrlEn,
		}
	}
	sp.TimestampUS = in.TimestampUS
	return sp
}

func (c *Controller) fillStatus(in Inputs, att attitude.EulerZXY, sp AttitudeSetpoint) {
	st := &c.status
	st.Mode = c.mode.String()
	st.InTransMode = c.mode.InTransition()
	st.PitchSp = sp.PitchBody
	st.PitchAng = att.Theta
	st.SysidtState = c.sysid.state.String()
	st.GlobalCounter = c.sysid.globalCounter
	st.TrimCounter = c.sysid.trimCounter
	st.TurnCounter = c.sysid.turnCounter
	st.VzMissionFinished = c.sched.vzMissionFinished
	st.TimestampUS = in.TimestampUS
}

// secondsSince returns the seconds from startUS to nowUS, zero if nowUS is
// earlier.
func secondsSince(nowUS, startUS uint64) float64 {
	if nowUS <= startUS {
		return 0
	}
	return float64(nowUS-startUS) * 1e-6
}
