package utils

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlightLogRoundTrip(t *testing.T) {
	t.Parallel()

	fl, err := OpenFlightLog(filepath.Join(t.TempDir(), "flight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fl.Close() })

	assert.ErrorIs(t, fl.RecordSample(FlightSample{}), ErrNoSession)

	id, err := fl.StartSession("front_transition", map[string]float64{"vt_safe_alt": 10})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, id, fl.Session())

	for i, mode := range []string{"MC", "FRONT_TRANSITION", "FRONT_TRANSITION"} {
		require.NoError(t, fl.RecordSample(FlightSample{
			TimeS:     float64(i) * 0.02,
			Mode:      mode,
			PitchSp:   -0.1 * float64(i),
			ThrustCmd: 0.4,
			Status:    json.RawMessage(`{"mode":"` + mode + `"}`),
		}))
	}
	require.NoError(t, fl.RecordModeEvent(ModeEvent{TimeS: 0.02, From: "MC", To: "FRONT_TRANSITION", Reason: "fixed-wing requested"}))

	samples, err := fl.Samples(id)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, "FRONT_TRANSITION", samples[2].Mode)
	assert.InDelta(t, -0.2, samples[2].PitchSp, 1e-12)
	assert.JSONEq(t, `{"mode":"MC"}`, string(samples[0].Status))

	events, err := fl.ModeEvents(id)
	require.NoError(t, err)
	assert.Equal(t, []ModeEvent{{TimeS: 0.02, From: "MC", To: "FRONT_TRANSITION", Reason: "fixed-wing requested"}}, events)

	sessions, err := fl.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "front_transition", sessions[0].Name)
	assert.JSONEq(t, `{"vt_safe_alt":10}`, string(sessions[0].Params))
}

func TestFlightLogSessionsAreIsolated(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flight.db")
	fl, err := OpenFlightLog(path)
	require.NoError(t, err)

	first, err := fl.StartSession("a", nil)
	require.NoError(t, err)
	require.NoError(t, fl.RecordSample(FlightSample{Mode: "MC"}))
	require.NoError(t, fl.Close())

	// reopening keeps earlier sessions
	fl, err = OpenFlightLog(path)
	require.NoError(t, err)
	defer fl.Close()
	second, err := fl.StartSession("b", nil)
	require.NoError(t, err)

	s, err := fl.Samples(second)
	require.NoError(t, err)
	assert.Empty(t, s)
	s, err = fl.Samples(first)
	require.NoError(t, err)
	assert.Len(t, s, 1)
}
