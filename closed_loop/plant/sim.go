package plant

import (
	"tailsitter-core/closed_loop/attitude"
	"tailsitter-core/closed_loop/tailsitter"
)

// Pilot holds the switches the supervisor reads from the RC link.
type Pilot struct {
	FixedWingRequested bool
	SweepRequested     bool
}

// Sim closes the loop around a tailsitter.Controller: it owns the vehicle and
// the MC and FW inner loops the supervisor treats as external collaborators.
// Inner loops run on the supervisor setpoint of the previous tick.
type Sim struct {
	cfg     Config
	vehicle *Vehicle
	hover   *HoverHold
	mc      *AttitudeController
	fw      *FWAttitudeController

	sp    tailsitter.AttitudeSetpoint
	mode  tailsitter.Mode
	armed bool
}

// NewSim builds a simulation starting at init, armed, in MC hover.
func NewSim(cfg Config, table *tailsitter.LiftTable, init State) *Sim {
	s := &Sim{
		cfg:     cfg,
		vehicle: NewVehicle(cfg.Airframe, table, init),
		hover:   NewHoverHold(cfg.Hover),
		mc:      NewAttitudeController(cfg.MC),
		fw:      NewFWAttitudeController(cfg.FW, cfg.Airframe, cfg.FWTrimAirspeed),
		mode:    tailsitter.ModeMC,
		armed:   true,
	}
	st := s.vehicle.State()
	s.sp = tailsitter.AttitudeSetpoint{
		Qd:         attitude.WXYZ(st.Att),
		QdValid:    true,
		ThrustBody: [3]float64{0, 0, -cfg.Hover.HoverThrust},
	}
	return s
}

// State returns the vehicle state.
func (s *Sim) State() State { return s.vehicle.State() }

// SetArmed switches the armed flag reported to the supervisor.
func (s *Sim) SetArmed(armed bool) { s.armed = armed }

// Inputs runs the inner loops and returns the supervisor snapshot at nowUS.
func (s *Sim) Inputs(nowUS uint64, pilot Pilot, dt float64) tailsitter.Inputs {
	st := s.vehicle.State()

	if s.mode != tailsitter.ModeMC {
		s.hover.Release()
	}
	mcSp := s.hover.Setpoint(st, nowUS, dt)

	spQ := attitude.QuatFromWXYZ(s.sp.Qd)
	if !s.sp.QdValid {
		spQ = attitude.EulerZXY{Phi: s.sp.RollBody, Theta: s.sp.PitchBody, Psi: s.sp.YawBody}.Quat()
	}
	throttle := ClampFloat(-s.sp.ThrustBody[2], 0, 1)

	var mcControls tailsitter.ActuatorControls
	u := s.mc.Update(spQ, st.Att, st.Rates, dt, nil)
	mcControls[tailsitter.IndexRoll] = u.X
	mcControls[tailsitter.IndexPitch] = u.Y
	mcControls[tailsitter.IndexYaw] = u.Z
	mcControls[tailsitter.IndexThrottle] = throttle

	fwControls := s.fw.Update(spQ, st.Att, st.Rates, st.Airspeed, throttle, dt)

	return tailsitter.Inputs{
		TimestampUS:         nowUS,
		Attitude:            attitude.WXYZ(st.Att),
		Position:            st.Pos,
		Velocity:            st.Vel,
		IndicatedAirspeed:   st.Airspeed,
		BodyAccel:           st.SpecificForce,
		FixedWingRequested:  pilot.FixedWingRequested,
		SweepRequested:      pilot.SweepRequested,
		Disarmed:            !s.armed,
		Landed:              st.Landed,
		MCAttitudeSetpoint:  mcSp,
		MCControls:          mcControls,
		FWControls:          fwControls,
		MCTimestampSampleUS: nowUS,
		FWTimestampSampleUS: nowUS,
	}
}

// Apply records the supervisor outputs and advances the vehicle by dt.
func (s *Sim) Apply(out tailsitter.Outputs, dt float64) {
	if out.Mode != s.mode {
		// the inner loop that takes over starts clean
		s.mc.Reset()
		s.fw.Reset()
	}
	s.mode = out.Mode
	s.sp = out.AttitudeSetpoint
	s.vehicle.Step(out.Actuators0, out.Actuators1, dt)
}
