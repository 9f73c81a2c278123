package tailsitter

import (
	"math"
	"math/rand/v2"
	"testing"

	"tailsitter-core/closed_loop/attitude"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	deg    = math.Pi / 180
	tickUS = 4000
)

// bench drives a Controller at 250 Hz with a hand-fed input snapshot.
type bench struct {
	t      *testing.T
	c      *Controller
	store  *ParamStore
	in     Inputs
	aborts []string
}

func newBench(t *testing.T, mutate func(*Params)) *bench {
	t.Helper()
	p := DefaultParams()
	if mutate != nil {
		mutate(&p)
	}
	b := &bench{t: t, store: NewParamStore(p)}
	b.c = NewController(Config{
		Params: b.store,
		Abort:  func(reason string) { b.aborts = append(b.aborts, reason) },
	})
	b.in = Inputs{
		TimestampUS: 1_000_000,
		Attitude:    attitudeQuat(0, 0, 0),
		Position:    r3.Vec{Z: -20},
		MCAttitudeSetpoint: AttitudeSetpoint{
			ThrustBody: [3]float64{0, 0, -0.5},
		},
		MCControls: ActuatorControls{0, 0, 0, 0.5},
	}
	return b
}

func (b *bench) tick() Outputs {
	b.in.TimestampUS += tickUS
	return b.c.Update(b.in)
}

// elapsed returns the seconds since ts.
func (b *bench) elapsed(ts uint64) float64 {
	return secondsSince(b.in.TimestampUS, ts)
}

// toFixedWing requests fixed-wing at cruise airspeed and ticks until the
// front transition completes.
func (b *bench) toFixedWing() {
	b.t.Helper()
	b.in.FixedWingRequested = true
	b.in.IndicatedAirspeed = 20
	for range 2000 {
		if b.tick().Mode == ModeFixedWing {
			return
		}
	}
	b.t.Fatalf("no fixed-wing after 8 s, mode %s", b.c.Mode())
}

func attitudeQuat(roll, pitch, yaw float64) [4]float64 {
	return attitude.WXYZ(attitude.EulerZXY{Phi: roll, Theta: pitch, Psi: yaw}.Quat())
}

func checkOutputs(t *testing.T, out Outputs) {
	t.Helper()
	sp := out.AttitudeSetpoint

	require.GreaterOrEqual(t, sp.ThrustBody[2], -0.95)
	require.LessOrEqual(t, sp.ThrustBody[2], -0.10)

	n := quat.Abs(attitude.QuatFromWXYZ(sp.Qd))
	require.InDelta(t, 1, n, 1e-5)

	require.Greater(t, sp.YawBody, -math.Pi)
	require.LessOrEqual(t, sp.YawBody, math.Pi)

	for _, v := range []float64{sp.RollBody, sp.PitchBody, sp.YawSpMoveRate, out.Status.ThrustCmd, out.Status.VzCmd} {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
	for _, v := range out.Actuators0.Control {
		require.False(t, math.IsNaN(v))
	}
}

func TestControllerInvariantsUnderRandomInputs(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for _, mode := range []ControlLoopMode{ControlPos, ControlVel, ControlVelWithoutAcc} {
		b := newBench(t, func(p *Params) { p.VtVertCtrlMode = int(mode) })

		noisy := func(v float64) float64 {
			if rng.IntN(50) == 0 {
				return math.NaN()
			}
			return v
		}

		for i := range 20000 {
			if i%600 == 0 {
				b.in.FixedWingRequested = rng.IntN(3) > 0
			}
			b.in.Attitude = attitudeQuat(
				noisy((rng.Float64()-0.5)*60*deg),
				noisy(-rng.Float64()*100*deg),
				noisy((rng.Float64()-0.5)*2*math.Pi),
			)
			b.in.Position = r3.Vec{X: rng.Float64() * 50, Y: noisy(rng.Float64() * 5), Z: -5 - rng.Float64()*60}
			b.in.Velocity = r3.Vec{X: noisy(rng.Float64() * 20), Y: rng.Float64() - 0.5, Z: rng.NormFloat64()}
			b.in.BodyAccel = r3.Vec{X: noisy(rng.NormFloat64() * 5), Z: -9.8 + rng.NormFloat64()}
			b.in.IndicatedAirspeed = noisy(rng.Float64() * 25)
			b.in.MCAttitudeSetpoint.ThrustBody[2] = noisy(-rng.Float64())
			b.in.MCAttitudeSetpoint.YawBody = noisy(rng.Float64() * 10)

			prevMode := b.c.Mode()
			sat := [3]bool{b.c.vz.Saturated, b.c.vx.Saturated, b.c.vy.Saturated}
			integ := [3]float64{b.c.vz.I, b.c.vx.I, b.c.vy.I}

			out := b.tick()
			checkOutputs(t, out)

			if out.Mode == prevMode {
				for j, ctx := range []*PIDContext{&b.c.vz, &b.c.vx, &b.c.vy} {
					if sat[j] {
						require.LessOrEqual(t, math.Abs(ctx.I), math.Abs(integ[j]), "context %d tick %d", j, i)
					}
				}
			}
		}
	}
}

func TestControllerMCPassThrough(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.in.MCAttitudeSetpoint = AttitudeSetpoint{
		RollBody:      0.1,
		PitchBody:     -0.2,
		YawBody:       4,
		ThrustBody:    [3]float64{0, 0, -0.02},
		YawSpMoveRate: 0.3,
	}
	out := b.tick()
	require.Equal(t, ModeMC, out.Mode)

	sp := out.AttitudeSetpoint
	assert.Equal(t, 0.1, sp.RollBody)
	assert.Equal(t, -0.2, sp.PitchBody)
	assert.InDelta(t, 4-2*math.Pi, sp.YawBody, 1e-12)
	assert.Equal(t, -0.10, sp.ThrustBody[2])
	assert.Equal(t, 0.3, sp.YawSpMoveRate)
	assert.False(t, sp.SideslipCtrlEn)

	want := attitude.EulerZXY{Phi: 0.1, Theta: -0.2, Psi: 4 - 2*math.Pi}.Quat()
	got := attitude.QuatFromWXYZ(sp.Qd)
	assert.InDelta(t, 0, quat.Abs(quat.Sub(want, got)), 1e-12)

	// a valid q_d is normalised and used as is
	b.in.MCAttitudeSetpoint.Qd = [4]float64{2, 0, 0, 0}
	b.in.MCAttitudeSetpoint.QdValid = true
	out = b.tick()
	assert.Equal(t, [4]float64{1, 0, 0, 0}, out.AttitudeSetpoint.Qd)
}

func TestControllerSetpointComposition(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.in.FixedWingRequested = true
	b.tick()
	out := b.tick()
	require.Equal(t, ModeFrontTransition, out.Mode)

	sp := out.AttitudeSetpoint
	q := attitude.QuatFromWXYZ(sp.Qd)
	e := attitude.EulerZXYFromQuat(q)
	assert.InDelta(t, sp.PitchBody, e.Theta, 1e-9)
	assert.InDelta(t, sp.RollBody, e.Phi, 1e-9)
	assert.InDelta(t, 0, attitude.WrapPi(sp.YawBody-e.Psi), 1e-9)
	assert.Less(t, sp.PitchBody, 0.0, "pitching nose forward")
	assert.True(t, sp.SideslipCtrlEn)
	assert.True(t, out.Status.InTransMode)
}

func TestControllerNoChatter(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	for range 1000 {
		require.Equal(t, ModeMC, b.tick().Mode)
	}

	b.toFixedWing()
	for range 2000 {
		require.Equal(t, ModeFixedWing, b.tick().Mode)
	}
	assert.Empty(t, b.aborts)
}

func TestControllerGroundTransition(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		mutate func(*Inputs)
		want   Mode
	}{
		"zero value keeps airspeed gate": {func(*Inputs) {}, ModeFrontTransition},
		"disarmed":                       {func(in *Inputs) { in.Disarmed = true }, ModeFixedWing},
		"landed":                         {func(in *Inputs) { in.Landed = true }, ModeFixedWing},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := NewController(Config{})
			in := Inputs{
				TimestampUS:        1_000_000,
				Attitude:           attitudeQuat(0, 0, 0),
				Position:           r3.Vec{Z: -30},
				FixedWingRequested: true,
			}
			tc.mutate(&in)
			out := c.Update(in)
			require.Equal(t, ModeFrontTransition, out.Mode)
			assert.Equal(t, "fixed-wing requested", out.ModeReason)

			var reasons []string
			for range 100 {
				in.TimestampUS += tickUS
				if out := c.Update(in); out.ModeReason != "" {
					reasons = append(reasons, out.ModeReason)
				}
			}
			assert.Equal(t, tc.want, c.Mode())
			if tc.want == ModeFixedWing {
				assert.Equal(t, []string{"front transition complete"}, reasons)
			} else {
				assert.Empty(t, reasons)
			}
		})
	}
}

func TestResetTransStartStateIdempotent(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.in.Position = r3.Vec{X: 3, Y: -4, Z: -25}
	b.in.Attitude = attitudeQuat(0.05, -0.3, 1.2)
	b.in.TimestampUS = 5_000_000
	att := attitude.EulerZXYFromQuat(attitude.QuatFromWXYZ(b.in.Attitude))

	b.c.resetTransStartState(b.in, att)
	trans1, sched1 := b.c.trans, b.c.sched
	b.c.resetTransStartState(b.in, att)

	opt := cmp.AllowUnexported(transitionState{}, scheduleRecord{})
	if diff := cmp.Diff(trans1, b.c.trans, opt); diff != "" {
		t.Errorf("transition state changed (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(sched1, b.c.sched, opt); diff != "" {
		t.Errorf("schedule record changed (-first +second):\n%s", diff)
	}

	tr := b.c.trans
	assert.Equal(t, uint64(5_000_000), b.c.sched.transStartUS)
	assert.Equal(t, att.Psi, tr.yaw0)
	assert.Equal(t, att.Theta, tr.pitch0)
	assert.Equal(t, att.Phi, tr.roll0)
	assert.Equal(t, -25.0, tr.altSp)
	assert.Equal(t, 3.0, tr.x0)
	assert.Equal(t, -4.0, tr.y0)
	assert.Equal(t, -0.5, tr.mcHoverThrust)
	assert.Equal(t, 0.0, b.c.vz.I)
}

func TestResetTransStartStateHoverFallback(t *testing.T) {
	t.Parallel()

	b := newBench(t, func(p *Params) { p.MpcThrHover = 0.42 })
	b.in.MCAttitudeSetpoint.ThrustBody[2] = 0
	b.c.resetTransStartState(b.in, attitude.EulerZXY{})
	assert.Equal(t, -0.42, b.c.trans.mcHoverThrust)
}

func TestControllerRejectsInvalidParams(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.tick()
	b.store.Update(func(p *Params) { p.FrontTransDuration = -1 })
	b.tick()
	assert.Equal(t, 3.0, b.c.Params().FrontTransDuration)

	b.store.Update(func(p *Params) { p.FrontTransDuration = 4 })
	b.tick()
	assert.Equal(t, 4.0, b.c.Params().FrontTransDuration)
}

func TestControllerRetunesAccelFilter(t *testing.T) {
	t.Parallel()

	b := newBench(t, nil)
	b.tick()
	assert.Equal(t, 20.0, b.c.accelLPF[0].CutoffHz())

	b.store.Update(func(p *Params) { p.VtAccLpfCutoff = 35 })
	b.tick()
	for i := range b.c.accelLPF {
		assert.Equal(t, 35.0, b.c.accelLPF[i].CutoffHz())
	}
}

func TestControllerCustomFrontSchedule(t *testing.T) {
	t.Parallel()

	s, err := NewPitchSchedule([]Knot{{T: 0, PitchDeg: 0}, {T: 1, PitchDeg: -30}})
	require.NoError(t, err)

	store := NewParamStore(DefaultParams())
	c := NewController(Config{Params: store, FrontSchedule: s})
	in := Inputs{
		TimestampUS:        1_000_000,
		Attitude:           attitudeQuat(0, 0, 0),
		Position:           r3.Vec{Z: -20},
		FixedWingRequested: true,
	}
	c.Update(in)
	require.Equal(t, ModeFrontTransition, c.Mode())

	store.Update(func(p *Params) { p.FrontTransPitchSpP1 = 70 * deg })
	in.TimestampUS += 2_000_000
	out := c.Update(in)
	assert.InDelta(t, -30*deg, out.AttitudeSetpoint.PitchBody, 1e-9)
}

func TestControllerMissionFinishedLatches(t *testing.T) {
	t.Parallel()

	b := newBench(t, func(p *Params) { p.VtVertCtrlMode = int(ControlVelWithoutAcc) })
	b.in.FixedWingRequested = true
	b.in.MissionInstanceCount = 4
	b.in.MissionSeqCurrent = 1
	for range 600 {
		b.tick()
	}
	assert.False(t, b.c.Status().VzMissionFinished)
	assert.Less(t, b.c.Status().VzCmd, 0.0)

	b.in.MissionSeqCurrent = 3
	out := b.tick()
	assert.True(t, out.Status.VzMissionFinished)
	assert.Equal(t, 0.0, out.Status.VzCmd)

	b.in.MissionSeqCurrent = 0
	out = b.tick()
	assert.True(t, out.Status.VzMissionFinished)
}
