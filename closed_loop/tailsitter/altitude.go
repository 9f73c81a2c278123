package tailsitter

import (
	"math"

	"tailsitter-core/closed_loop/attitude"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	gravity = 9.8

	minThrust = 0.10
	maxThrust = 0.95

	vzIntegratorLimit = 0.8

	// body-x acceleration loop gains from loop shaping; the integrator runs
	// at a fixed 4 ms sample time
	bxAccKp      = 0.006
	bxAccKi      = 0.003
	bxAccSampleT = 0.004
	maxBxAcc     = 2 * gravity

	// aoaOffset is a calibration constant of the airframe's AOA estimate.
	aoaOffset = 100 * math.Pi / 180
	aoaMin    = 0.001 * math.Pi / 180
	aoaMax    = 89.99 * math.Pi / 180

	// descent rate at which the flight-path angle fully enters the AOA
	fullAOADescentRate = 5.0

	// lift-to-weight diagnostic: air density, wing area, mass
	airDensity  = 1.237
	wingArea    = 0.5
	vehicleMass = 1.68
)

// vzStaircase returns the NED vz command (negative is up) tau seconds into
// the climb programme. The climb rate steps from vt_vz_minspeed by
// vt_vz_interval every acctime+keeptime seconds, each step smoothed by a
// logistic curve centred in its acceleration window. Past vt_vz_maxspeed,
// above vt_max_height, or once the mission has finished the command is zero.
func vzStaircase(p Params, tau, z float64, missionFinished bool) float64 {
	if p.VtVzAccTime <= 0 || tau < 0 {
		return 0
	}
	period := p.VtVzAccTime + p.VtVzKeepTime
	idx := math.Floor(tau / period)
	inPeriod := tau - idx*period
	cmd := p.VtVzMinSpeed + idx*p.VtVzInterval

	if inPeriod > p.VtVzKeepTime {
		k := 20 / p.VtVzAccTime
		ts := inPeriod - p.VtVzKeepTime - 0.5*p.VtVzAccTime
		cmd += p.VtVzInterval / (1 + math.Exp(-k*ts))
	}

	if cmd > p.VtVzMaxSpeed+0.01 || z < -p.VtMaxHeight || missionFinished {
		cmd = 0
	}
	return clamp(-cmd, -(p.VtVzMaxSpeed + 0.01), 0)
}

// controlAltitude runs the position → velocity → acceleration → thrust
// cascade and returns the thrust magnitude in [0.10, 0.95].
func (c *Controller) controlAltitude(in Inputs, att attitude.EulerZXY, tau float64, mode ControlLoopMode) float64 {
	p := c.params

	var vzCmd float64
	if mode == ControlPos {
		vzCmd = (c.trans.altSp - in.Position.Z) * p.VtXDistKp
	} else {
		vzCmd = vzStaircase(p, tau, in.Position.Z, c.sched.vzMissionFinished)
	}

	dt := c.vz.Elapsed(in.TimestampUS)
	out := c.vz.Step(vzCmd-in.Velocity.Z, dt, PIDGains{
		Kp:   -p.VtVzControlKp,
		Ki:   p.VtVzControlKi,
		Kd:   p.VtVzControlKd,
		IMax: vzIntegratorLimit,
	})
	vertAccCmd := out * gravity

	var thrust float64
	if mode == ControlVel {
		thrust = c.vx.Saturate(c.accelFeedForward(in, att, vertAccCmd), minThrust, maxThrust)
		c.vz.Saturated = c.vx.Saturated
	} else {
		thrust = c.vz.Saturate(vertAccCmd/gravity-c.trans.mcHoverThrust, minThrust, maxThrust)
	}

	c.status.VzCmd = vzCmd
	c.status.VertAccCmd = vertAccCmd
	c.status.ThrustCmd = thrust
	c.status.TicksSinceTrans++
	return thrust
}

// angleOfAttack estimates the AOA from the flight-path angle and the pitch
// magnitude. The flight-path term is faded in with the descent rate so slow
// vertical drift does not produce a spurious AOA. The unclamped value is
// returned alongside the clamped one.
func angleOfAttack(vz, airspeed, pitch float64) (raw, clamped float64) {
	fade := clamp(vz*vz/(fullAOADescentRate*fullAOADescentRate), 0, 1)
	pathAngle := math.Atan2(vz, airspeed) * fade
	raw = pathAngle + aoaOffset - pitch
	return raw, clamp(raw, aoaMin, aoaMax)
}

// accelFeedForward computes the thrust that realises the vertical
// acceleration command through the body-x axis, given the pitch and the
// filtered body accelerations. Outside the AOA validity window it falls back
// to hover thrust and clears the body-x integrator.
func (c *Controller) accelFeedForward(in Inputs, att attitude.EulerZXY, vertAccCmd float64) float64 {
	acc := c.accel
	pitch := clamp(-att.Theta, aoaMin, aoaMax)
	roll := clamp(att.Phi, aoaMin, aoaMax)
	sp, cp := math.Sincos(pitch)

	rawAOA, aoa := angleOfAttack(in.Velocity.Z, c.airspeed.State(), pitch)
	cl := c.lift.CL(aoa)
	v := c.airspeed.State()

	c.status.AOA = aoa
	c.status.CL = cl
	c.status.LiftWeightRatio = 0.5 * airDensity * v * v * cl * wingArea / (vehicleMass * gravity)

	if rawAOA <= aoaMin || rawAOA >= aoaMax {
		c.vx.I = 0
		c.status.BxAccCmd = 0
		c.status.BxAccE = 0
		c.status.BxAccI = 0
		return -c.trans.mcHoverThrust
	}

	accIzFdb := (acc.Z*sp - acc.X*cp) * math.Cos(roll)
	accIzErr := vertAccCmd + gravity + accIzFdb

	den := clamp(cp, 0.2, 1) - 2.6*sp*(1-cp)
	if math.Abs(den) < 1e-3 {
		den = math.Copysign(1e-3, den)
	}
	bxCmd := clamp((gravity+acc.Z*sp-accIzErr)/den, -maxBxAcc, maxBxAcc)
	bxErr := bxCmd - acc.X
	bxI := c.vx.Step(bxErr, bxAccSampleT, PIDGains{Ki: -bxAccKi})

	c.status.BxAccCmd = bxCmd
	c.status.BxAccE = bxErr
	c.status.BxAccI = bxI

	return bxCmd/gravity*(-c.trans.mcHoverThrust) + bxAccKp*bxErr + bxI
}

// filterAccel runs the three body-axis low-pass filters.
func (c *Controller) filterAccel(raw r3.Vec) r3.Vec {
	return r3.Vec{
		X: c.accelLPF[0].Apply(raw.X),
		Y: c.accelLPF[1].Apply(raw.Y),
		Z: c.accelLPF[2].Apply(raw.Z),
	}
}
