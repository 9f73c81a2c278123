package tailsitter

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Control channel indices of an ActuatorControls group.
const (
	IndexRoll = iota
	IndexPitch
	IndexYaw
	IndexThrottle
)

// ActuatorControls is a virtual control group: roll, pitch, yaw, throttle.
type ActuatorControls [4]float64

// AttitudeSetpoint mirrors the vehicle attitude setpoint message.
type AttitudeSetpoint struct {
	RollBody       float64    `json:"roll_body"`
	PitchBody      float64    `json:"pitch_body"`
	YawBody        float64    `json:"yaw_body"`
	Qd             [4]float64 `json:"q_d"`
	QdValid        bool       `json:"q_d_valid"`
	ThrustBody     [3]float64 `json:"thrust_body"`
	YawSpMoveRate  float64    `json:"yaw_sp_move_rate"`
	SideslipCtrlEn bool       `json:"sideslip_ctrl_en"`
	TimestampUS    uint64     `json:"timestamp"`
}

// Inputs is the per-tick snapshot read by the controller. Position, velocity
// and the MC setpoint are NED; BodyAccel is the raw body-frame specific force
// and is low-pass filtered inside the controller.
type Inputs struct {
	TimestampUS uint64

	Attitude          [4]float64 // w, x, y, z
	Position          r3.Vec
	Velocity          r3.Vec
	IndicatedAirspeed float64
	BodyAccel         r3.Vec

	FixedWingRequested bool
	SweepRequested     bool
	Disarmed           bool
	Landed             bool

	MissionSeqCurrent    int
	MissionInstanceCount int

	// Virtual outputs of the external MC and FW attitude controllers.
	MCAttitudeSetpoint  AttitudeSetpoint
	MCControls          ActuatorControls
	FWControls          ActuatorControls
	MCTimestampSampleUS uint64
	FWTimestampSampleUS uint64
}

// ActuatorOutputs is the main actuator group {ROLL, PITCH, YAW, THROTTLE}.
type ActuatorOutputs struct {
	Control           [4]float64 `json:"control"`
	SweepInput        float64    `json:"sweep_input"`
	TimestampUS       uint64     `json:"timestamp"`
	TimestampSampleUS uint64     `json:"timestamp_sample"`
}

// ElevonOutputs is the aerodynamic surface group {ROLL, PITCH}.
type ElevonOutputs struct {
	Control           [2]float64 `json:"control"`
	TimestampUS       uint64     `json:"timestamp"`
	TimestampSampleUS uint64     `json:"timestamp_sample"`
}

// VehicleStatus carries the transition diagnostics.
type VehicleStatus struct {
	Mode              string  `json:"mode"`
	InTransMode       bool    `json:"vtol_in_trans_mode"`
	PitchSp           float64 `json:"pitch_sp"`
	PitchAng          float64 `json:"pitch_ang"`
	VzCmd             float64 `json:"vz_cmd"`
	VertAccCmd        float64 `json:"vert_acc_cmd"`
	ThrustCmd         float64 `json:"thrust_cmd"`
	BxAccCmd          float64 `json:"bx_acc_cmd"`
	BxAccE            float64 `json:"bx_acc_e"`
	BxAccI            float64 `json:"bx_acc_i"`
	AOA               float64 `json:"aoa"`
	CL                float64 `json:"cl"`
	LiftWeightRatio   float64 `json:"lift_weight_ratio"`
	SideslipAng       float64 `json:"sideslip_ang"`
	LatDist           float64 `json:"lat_dist"`
	LateralV          float64 `json:"lateral_v"`
	VyCmd             float64 `json:"vy_cmd"`
	RollRot           float64 `json:"rollrot"`
	PitchRot          float64 `json:"pitchrot"`
	SysidtState       string  `json:"vehicle_sysidt_state"`
	GlobalCounter     int     `json:"global_counter"`
	TrimCounter       int     `json:"trim_counter"`
	TurnCounter       int     `json:"turn_counter"`
	TicksSinceTrans   uint64  `json:"ticks_since_trans"`
	VzMissionFinished bool    `json:"vz_mission_finished"`
	TimestampUS       uint64  `json:"timestamp"`
}

// Outputs is everything the controller writes in one tick.
type Outputs struct {
	Mode             Mode
	// ModeReason names the edge taken this tick; empty when the mode held.
	ModeReason       string
	AttitudeSetpoint AttitudeSetpoint
	Actuators0       ActuatorOutputs
	Actuators1       ElevonOutputs
	Status           VehicleStatus
}

// snapshot substitutes the last known-good value for any non-finite input so
// nothing downstream sees NaN.
type snapshot struct {
	last  Inputs
	valid bool
}

func (s *snapshot) take(in Inputs) Inputs {
	if !s.valid {
		s.last = Inputs{Attitude: [4]float64{1, 0, 0, 0}}
		s.valid = true
	}
	prev := s.last

	if !finiteQuat(in.Attitude) {
		in.Attitude = prev.Attitude
	}
	in.Position = finiteVec(in.Position, prev.Position)
	in.Velocity = finiteVec(in.Velocity, prev.Velocity)
	in.BodyAccel = finiteVec(in.BodyAccel, prev.BodyAccel)
	if !finite(in.IndicatedAirspeed) || in.IndicatedAirspeed < 0 {
		in.IndicatedAirspeed = prev.IndicatedAirspeed
	}
	for i := range in.MCControls {
		if !finite(in.MCControls[i]) {
			in.MCControls[i] = prev.MCControls[i]
		}
		if !finite(in.FWControls[i]) {
			in.FWControls[i] = prev.FWControls[i]
		}
	}

	sp := &in.MCAttitudeSetpoint
	for i := range sp.ThrustBody {
		if !finite(sp.ThrustBody[i]) {
			sp.ThrustBody[i] = prev.MCAttitudeSetpoint.ThrustBody[i]
		}
	}
	if !finite(sp.RollBody) || !finite(sp.PitchBody) || !finite(sp.YawBody) {
		sp.RollBody = prev.MCAttitudeSetpoint.RollBody
		sp.PitchBody = prev.MCAttitudeSetpoint.PitchBody
		sp.YawBody = prev.MCAttitudeSetpoint.YawBody
	}
	if sp.QdValid && !finiteQuat(sp.Qd) {
		sp.Qd = prev.MCAttitudeSetpoint.Qd
		sp.QdValid = prev.MCAttitudeSetpoint.QdValid
	}
	if !finite(sp.YawSpMoveRate) {
		sp.YawSpMoveRate = 0
	}

	s.last = in
	return in
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteVec(v, fallback r3.Vec) r3.Vec {
	if !finite(v.X) {
		v.X = fallback.X
	}
	if !finite(v.Y) {
		v.Y = fallback.Y
	}
	if !finite(v.Z) {
		v.Z = fallback.Z
	}
	return v
}

func finiteQuat(q [4]float64) bool {
	for _, v := range q {
		if !finite(v) {
			return false
		}
	}
	n := quat.Abs(quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]})
	return n > 1e-6
}
