package tailsitter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestScenarioNominalFrontTransition(t *testing.T) {
	t.Parallel()

	b := newBench(t, func(p *Params) {
		p.VtSafeAlt = 10
		p.FrontTransDuration = 3
		p.TransitionAirspeed = 15
	})
	b.in.FixedWingRequested = true
	start := b.in.TimestampUS + tickUS
	schedule := FrontTransitionSchedule(88 * deg)

	fwAt := -1.0
	for range 1250 {
		b.in.IndicatedAirspeed = math.Min(18*b.elapsed(start)/4, 18)
		out := b.tick()
		tau := b.elapsed(start)

		if tau == 0 {
			require.Equal(t, ModeFrontTransition, out.Mode)
		}
		checkOutputs(t, out)
		if out.Mode == ModeFrontTransition {
			require.InDelta(t, schedule.Pitch(tau), out.AttitudeSetpoint.PitchBody, 1e-9, "tau %g", tau)
		}
		if out.Mode == ModeFixedWing && fwAt < 0 {
			fwAt = tau
		}
	}

	assert.GreaterOrEqual(t, fwAt, 3.0)
	assert.LessOrEqual(t, fwAt, 4.0)
	assert.Equal(t, ModeFixedWing, b.c.Mode())
	assert.Empty(t, b.aborts)
}

func TestScenarioFrontTransitionTimeout(t *testing.T) {
	t.Parallel()

	b := newBench(t, func(p *Params) {
		p.FrontTransDuration = 3
		p.TransitionAirspeed = 15
	})
	b.in.FixedWingRequested = true
	b.in.IndicatedAirspeed = 0
	start := b.in.TimestampUS + tickUS

	abortAt := -1.0
	for range 2500 {
		out := b.tick()
		require.Equal(t, ModeFrontTransition, out.Mode)
		if len(b.aborts) > 0 && abortAt < 0 {
			abortAt = b.elapsed(start)
		}
	}
	require.Equal(t, []string{"Transition timeout"}, b.aborts)
	assert.InDelta(t, 5.0, abortAt, 0.0041)

	// the host re-requests MC
	b.in.FixedWingRequested = false
	assert.Equal(t, ModeMC, b.tick().Mode)
}

func TestScenarioDangerousAttitudeInFixedWing(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.toFixedWing()

	b.in.Attitude = attitudeQuat(0, 120*deg, 0)
	out := b.tick()
	require.Equal(t, ModeBackTransition, out.Mode)
	assert.True(t, out.Status.InTransMode)
	assert.Equal(t, []string{"dangerous attitude"}, b.aborts)

	// the pilot still holds the fixed-wing switch: no bounce back to FW
	for range int(2*SampleRateHz) + 1 {
		out = b.tick()
		require.NotEqual(t, ModeFixedWing, out.Mode)
	}
	assert.Equal(t, ModeMC, out.Mode)
	for range 100 {
		require.Equal(t, ModeMC, b.tick().Mode)
	}

	// withdrawing and re-requesting clears the latch
	b.in.Attitude = attitudeQuat(0, 0, 0)
	b.in.FixedWingRequested = false
	b.tick()
	b.in.FixedWingRequested = true
	assert.Equal(t, ModeFrontTransition, b.tick().Mode)
}

func TestScenarioAltitudeFailsafe(t *testing.T) {
	t.Parallel()

	b := newBench(t, func(p *Params) { p.VtSafeAlt = 10 })
	b.toFixedWing()

	b.in.Position = r3.Vec{Z: -5}
	out := b.tick()
	assert.Equal(t, ModeMC, out.Mode)
	assert.False(t, out.Status.InTransMode)
	assert.Equal(t, []string{"dangerous altitude"}, b.aborts)

	// climbing back above the safe altitude does not re-enter the transition
	// while the request is still held
	b.in.Position = r3.Vec{Z: -30}
	for range 500 {
		require.Equal(t, ModeMC, b.tick().Mode)
	}
}

func TestScenarioAltitudeFailsafeSinkRate(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.toFixedWing()

	b.in.Velocity = r3.Vec{X: 20, Z: 11}
	assert.Equal(t, ModeMC, b.tick().Mode)
}

func TestScenarioBackTransitionByTimer(t *testing.T) {
	t.Parallel()

	b := newBench(t, func(p *Params) { p.BackTransDuration = 2 })
	b.toFixedWing()

	b.in.Attitude = attitudeQuat(0, -85*deg, 0)
	b.tick()
	require.Equal(t, ModeFixedWing, b.c.Mode())

	b.in.FixedWingRequested = false
	out := b.tick()
	require.Equal(t, ModeBackTransition, out.Mode)
	start := b.in.TimestampUS
	assert.InDelta(t, -85*deg, out.AttitudeSetpoint.PitchBody, 1e-9)

	prev := out.AttitudeSetpoint.PitchBody
	for {
		out = b.tick()
		if out.Mode != ModeBackTransition {
			break
		}
		pitch := out.AttitudeSetpoint.PitchBody
		require.GreaterOrEqual(t, pitch, prev, "ramps toward level")
		require.Less(t, pitch, 0.0)
		checkOutputs(t, out)
		prev = pitch
	}

	assert.Equal(t, ModeMC, out.Mode)
	assert.InDelta(t, 2.0, b.elapsed(start), 0.0041)
	assert.Greater(t, prev, -2*deg)
	assert.Empty(t, b.aborts)
}

func TestScenarioBackTransitionByAttitude(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.toFixedWing()
	b.in.FixedWingRequested = false
	require.Equal(t, ModeBackTransition, b.tick().Mode)

	// the bench attitude is level: completes on the next tick
	assert.Equal(t, ModeMC, b.tick().Mode)
}

func TestScenarioBackTransitionCancelled(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.toFixedWing()
	b.in.Attitude = attitudeQuat(0, -80*deg, 0)
	b.in.FixedWingRequested = false
	require.Equal(t, ModeBackTransition, b.tick().Mode)

	b.in.FixedWingRequested = true
	assert.Equal(t, ModeFixedWing, b.tick().Mode)
}

func TestScenarioLiftTableSwap(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.tick()
	table := DefaultLiftTable()
	copies := b.c.lift.copies

	b.store.Update(func(p *Params) { p.SysIdentNum = 3 })
	b.tick()
	assert.Equal(t, 3, b.c.lift.Row())
	assert.Equal(t, table[3], b.c.lift.Points())
	assert.Equal(t, copies+1, b.c.lift.copies)

	b.store.Update(func(p *Params) { p.SysIdentNum = 7 })
	b.tick()
	assert.Equal(t, 7, b.c.lift.Row())
	assert.Equal(t, table[7], b.c.lift.Points())
	assert.Equal(t, copies+2, b.c.lift.copies)

	for _, row := range []int{-1, 10, 42} {
		b.store.Update(func(p *Params) { p.SysIdentNum = row })
		b.tick()
		assert.Equal(t, 7, b.c.lift.Row())
	}
	b.store.Update(func(p *Params) { p.SysIdentNum = 7; p.VtSafeAlt = 12 })
	b.tick()
	assert.Equal(t, copies+2, b.c.lift.copies)
}
