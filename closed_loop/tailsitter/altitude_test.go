package tailsitter

import (
	"math"
	"testing"

	"tailsitter-core/closed_loop/attitude"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestVzStaircaseBounded(t *testing.T) {
	t.Parallel()

	grid := []Params{DefaultParams()}
	odd := DefaultParams()
	odd.VtVzMinSpeed = -3
	odd.VtVzInterval = 2.5
	odd.VtVzKeepTime = 0
	grid = append(grid, odd)
	fast := DefaultParams()
	fast.VtVzMaxSpeed = 20
	fast.VtVzAccTime = 0.5
	grid = append(grid, fast)

	for _, p := range grid {
		lo := -(p.VtVzMaxSpeed + 0.01)
		for tau := -1.0; tau < 120; tau += 0.01 {
			for _, z := range []float64{-20, -p.VtMaxHeight - 1} {
				v := vzStaircase(p, tau, z, false)
				require.GreaterOrEqual(t, v, lo, "tau %g", tau)
				require.LessOrEqual(t, v, 0.0, "tau %g", tau)
			}
		}
	}
}

func TestVzStaircaseSteps(t *testing.T) {
	t.Parallel()

	p := DefaultParams() // min 1, interval 1, max 5, acc 2, keep 5

	assert.InDelta(t, -1, vzStaircase(p, 2, -20, false), 1e-9)
	// middle of the first acceleration window: half a step
	assert.InDelta(t, -1.5, vzStaircase(p, 6, -20, false), 1e-9)
	// end of the window is within the logistic tail of the next step
	assert.InDelta(t, -2, vzStaircase(p, 6.999, -20, false), 1e-3)
	assert.InDelta(t, -2, vzStaircase(p, 9, -20, false), 1e-9)

	// monotonic climb until the top step
	prev := 0.0
	for tau := 0.0; tau < 33.4; tau += 0.05 {
		v := vzStaircase(p, tau, -20, false)
		assert.LessOrEqual(t, v, prev+1e-12)
		prev = v
	}

	// past the maximum the command drops to zero
	assert.Equal(t, 0.0, vzStaircase(p, 40, -20, false))
	assert.Equal(t, 0.0, vzStaircase(p, 2, -p.VtMaxHeight-0.5, false))
	assert.Equal(t, 0.0, vzStaircase(p, 2, -20, true))
}

func newAltitudeController(t *testing.T, mutate func(*Params)) *Controller {
	t.Helper()
	p := DefaultParams()
	if mutate != nil {
		mutate(&p)
	}
	c := NewController(Config{Params: NewParamStore(p)})
	c.trans.mcHoverThrust = -0.5
	c.trans.altSp = -20
	c.vz.Reset(0)
	c.vx.Reset(0)
	return c
}

func TestControlAltitudeHoldsHover(t *testing.T) {
	t.Parallel()

	c := newAltitudeController(t, nil)
	in := Inputs{TimestampUS: 4000, Position: r3.Vec{Z: -20}}
	thrust := c.controlAltitude(in, attitude.EulerZXY{}, 0, ControlPos)
	assert.InDelta(t, 0.5, thrust, 1e-12)
	assert.Equal(t, uint64(1), c.status.TicksSinceTrans)

	// below the setpoint: climb, more thrust
	in.TimestampUS += 4000
	in.Position.Z = -15
	assert.Greater(t, c.controlAltitude(in, attitude.EulerZXY{}, 0, ControlPos), 0.5)
	assert.Less(t, c.status.VzCmd, 0.0)
}

func TestControlAltitudeThrustClamp(t *testing.T) {
	t.Parallel()

	c := newAltitudeController(t, func(p *Params) { p.VtVzControlKp = 10 })
	in := Inputs{TimestampUS: 4000, Position: r3.Vec{Z: 10}}
	assert.Equal(t, maxThrust, c.controlAltitude(in, attitude.EulerZXY{}, 0, ControlPos))
	assert.True(t, c.vz.Saturated)

	in.TimestampUS += 4000
	in.Position.Z = -80
	assert.Equal(t, minThrust, c.controlAltitude(in, attitude.EulerZXY{}, 0, ControlPos))
}

func TestControlAltitudeStaircaseMode(t *testing.T) {
	t.Parallel()

	c := newAltitudeController(t, nil)
	in := Inputs{TimestampUS: 4000, Position: r3.Vec{Z: -30}}
	c.controlAltitude(in, attitude.EulerZXY{}, 2, ControlVelWithoutAcc)
	assert.InDelta(t, -1, c.status.VzCmd, 1e-9)

	c.sched.vzMissionFinished = true
	in.TimestampUS += 4000
	c.controlAltitude(in, attitude.EulerZXY{}, 2, ControlVelWithoutAcc)
	assert.Equal(t, 0.0, c.status.VzCmd)
}

func TestAngleOfAttack(t *testing.T) {
	t.Parallel()

	// level flight: the flight-path term is faded out
	raw, aoa := angleOfAttack(0, 15, 80*deg)
	assert.InDelta(t, 20*deg, raw, 1e-12)
	assert.InDelta(t, 20*deg, aoa, 1e-12)

	// hover: raw AOA far outside the window, clamped value pinned
	raw, aoa = angleOfAttack(0, 0, 0.001*deg)
	assert.Greater(t, raw, aoaMax)
	assert.Equal(t, aoaMax, aoa)

	// fast descent enters in full
	raw, _ = angleOfAttack(6, 15, 80*deg)
	assert.InDelta(t, math.Atan2(6, 15)+20*deg, raw, 1e-12)
}

func TestAccelFeedForwardFallsBackOutsideAOAWindow(t *testing.T) {
	t.Parallel()

	c := newAltitudeController(t, nil)
	c.vx.I = 0.3
	in := Inputs{TimestampUS: 4000}
	thrust := c.accelFeedForward(in, attitude.EulerZXY{}, 0)
	assert.Equal(t, 0.5, thrust)
	assert.Equal(t, 0.0, c.vx.I)
	assert.Equal(t, 0.0, c.status.BxAccCmd)
}

func TestAccelFeedForwardInWindow(t *testing.T) {
	t.Parallel()

	c := newAltitudeController(t, nil)
	c.airspeed.Reset(15)
	c.accel = r3.Vec{X: -9.0, Z: 0.5}
	att := attitude.EulerZXY{Theta: -80 * deg}
	in := Inputs{TimestampUS: 4000, Velocity: r3.Vec{X: 15}}

	thrust := c.accelFeedForward(in, att, 0)
	require.False(t, math.IsNaN(thrust))
	assert.InDelta(t, 20*deg, c.status.AOA, 1e-9)
	assert.Greater(t, c.status.CL, 0.0)
	assert.Greater(t, c.status.LiftWeightRatio, 0.0)
	assert.LessOrEqual(t, math.Abs(c.status.BxAccCmd), maxBxAcc)

	// the body-x integrator accumulates 0.003·err·0.004 per call
	want := bxAccKi * c.status.BxAccE * bxAccSampleT
	assert.InDelta(t, want, c.vx.I, 1e-12)
}

func TestControlAltitudeFeedForwardSaturation(t *testing.T) {
	t.Parallel()

	c := newAltitudeController(t, func(p *Params) { p.VtVertCtrlMode = int(ControlVel) })
	in := Inputs{TimestampUS: 4000, Position: r3.Vec{Z: -30}}
	thrust := c.controlAltitude(in, attitude.EulerZXY{}, 0, ControlVel)
	assert.GreaterOrEqual(t, thrust, minThrust)
	assert.LessOrEqual(t, thrust, maxThrust)
	assert.Equal(t, c.vx.Saturated, c.vz.Saturated)
}
