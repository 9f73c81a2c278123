package tailsitter

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewPitchScheduleValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPitchSchedule(nil)
	assert.Error(t, err)

	_, err = NewPitchSchedule([]Knot{{T: 0}, {T: 1}, {T: 1}})
	assert.ErrorContains(t, err, "knot 2")

	many := make([]Knot, MaxKnots+1)
	for i := range many {
		many[i].T = float64(i)
	}
	_, err = NewPitchSchedule(many)
	assert.ErrorContains(t, err, "max 32")

	knots := []Knot{{T: 0, PitchDeg: 0}, {T: 1, PitchDeg: -10}}
	s, err := NewPitchSchedule(knots)
	require.NoError(t, err)
	knots[1].PitchDeg = 50
	assert.Equal(t, -10.0, s.Knots()[1].PitchDeg, "schedule keeps its own copy")
}

func TestPitchScheduleInterpolation(t *testing.T) {
	t.Parallel()

	s, err := NewPitchSchedule([]Knot{
		{T: 1, PitchDeg: 0},
		{T: 2, PitchDeg: -40},
		{T: 4, PitchDeg: -60},
	})
	require.NoError(t, err)

	tests := []struct {
		tau  float64
		want float64
	}{
		{0, 0},
		{1, 0},
		{1.5, -20},
		{2, -40},
		{3, -50},
		{4, -60},
		{100, -60},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want*deg, s.Pitch(tt.tau), 1e-12, "tau %g", tt.tau)
	}
}

func TestFrontTransitionSchedule(t *testing.T) {
	t.Parallel()

	s := FrontTransitionSchedule(88 * deg)
	want := []Knot{{T: 0, PitchDeg: 0}, {T: 2.5, PitchDeg: -88}, {T: 50, PitchDeg: -88}}
	if diff := cmp.Diff(want, s.Knots(), cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-9 })); diff != "" {
		t.Errorf("knots mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, -44*deg, s.Pitch(1.25), 1e-9)
	assert.InDelta(t, -88*deg, s.Pitch(60), 1e-9)

	// the sign of p1 does not matter
	assert.InDelta(t, s.Pitch(1), FrontTransitionSchedule(-88*deg).Pitch(1), 1e-12)
}

func TestLateralOffset(t *testing.T) {
	t.Parallel()

	// heading north, displaced east: right of track
	assert.InDelta(t, 5, lateralOffset(0, 5, 0), 1e-12)
	assert.InDelta(t, -5, lateralOffset(0, -5, 0), 1e-12)
	// along-track displacement has no lateral component
	assert.InDelta(t, 0, lateralOffset(10, 0, 0), 1e-12)
	// heading east, displaced north: left of track
	assert.InDelta(t, -3, lateralOffset(3, 0, math.Pi/2), 1e-12)
}

func TestLateralRollSetpoint(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	tr := &transitionState{}
	var vy PIDContext
	var st VehicleStatus

	roll := lateralRollSetpoint(tr, &vy, p, r3.Vec{Y: 1}, r3.Vec{}, 0.004, &st)
	assert.Less(t, roll, 0.0, "steer back toward the track")
	assert.InDelta(t, 1, st.LatDist, 1e-12)
	assert.InDelta(t, -0.3, st.VyCmd, 1e-12)
	assert.False(t, vy.Saturated)

	roll = lateralRollSetpoint(tr, &vy, p, r3.Vec{Y: -500}, r3.Vec{}, 0.004, &st)
	assert.Equal(t, maxLateralRoll, roll)
	assert.True(t, vy.Saturated)
}

func TestRampToZero(t *testing.T) {
	t.Parallel()

	for _, start := range []float64{-85 * deg, 40 * deg} {
		cur := start
		prev := math.Abs(cur)
		for range 600 {
			cur = rampToZero(cur, start, 2, 0.004)
			assert.LessOrEqual(t, math.Abs(cur), prev)
			assert.Equal(t, math.Signbit(start), math.Signbit(cur), "never crosses zero")
			prev = math.Abs(cur)
		}
		assert.InDelta(t, backTransBand, math.Abs(cur), 1e-12)
	}

	assert.Equal(t, 0.005, rampToZero(0.005, 1, 2, 0.004), "inside the band")
	assert.Equal(t, -1.0, rampToZero(-1, -1, 2, 0), "no time elapsed")
}
