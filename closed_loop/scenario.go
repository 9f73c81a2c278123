package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"tailsitter-core/closed_loop/attitude"
	"tailsitter-core/closed_loop/plant"
	"tailsitter-core/closed_loop/tailsitter"

	"gonum.org/v1/gonum/spatial/r3"
)

// Scenario defines a complete simulated flight
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Timing   ScenarioTiming    `json:"timing"`
	Initial  InitialState      `json:"initial"`
	Defaults PilotCmd          `json:"defaults"`
	Segments []ScenarioSegment `json:"segments"`
	// PitchSchedule replaces the front-transition pitch-over programme.
	PitchSchedule []tailsitter.Knot `json:"pitch_schedule,omitempty"`
	Params        json.RawMessage   `json:"params,omitempty"` // overrides over the parameter file
	Plant    json.RawMessage   `json:"plant,omitempty"`  // overrides over the default airframe
}

// ScenarioMeta contains scenario metadata
type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// ScenarioTiming defines timing parameters
type ScenarioTiming struct {
	DtS          float64 `json:"dt_s"`
	DurationS    float64 `json:"duration_s"`
	LogHz        float64 `json:"log_hz"`
	RealTimeMode bool    `json:"real_time_mode"`
}

// InitialState places the vehicle. Angles are degrees.
type InitialState struct {
	PositionNED [3]float64 `json:"position_ned"`
	VelocityNED [3]float64 `json:"velocity_ned"`
	YawDeg      float64    `json:"yaw_deg"`
	PitchDeg    float64    `json:"pitch_deg"`
}

// PilotCmd is the set of pilot switches at one instant
type PilotCmd struct {
	FixedWingRequested bool `json:"fw_requested"`
	SweepRequested     bool `json:"sweep_requested"`
	Armed              bool `json:"armed"`
}

// ScenarioSegment overrides the defaults over [t0, t1). Omitted switches keep
// their default; t1 < 0 runs to the end.
type ScenarioSegment struct {
	T0                 float64 `json:"t0"`
	T1                 float64 `json:"t1"`
	FixedWingRequested *bool   `json:"fw_requested,omitempty"`
	SweepRequested     *bool   `json:"sweep_requested,omitempty"`
	Armed              *bool   `json:"armed,omitempty"`
	Comment            string  `json:"comment,omitempty"`
}

// LoadScenario loads a scenario from JSON file
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}

	scen := Scenario{Defaults: PilotCmd{Armed: true}}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}

	if err := scen.validate(); err != nil {
		return Scenario{}, err
	}
	return scen, nil
}

func (s *Scenario) validate() error {
	if s.Timing.DurationS <= 0 {
		return fmt.Errorf("invalid duration_s: %f", s.Timing.DurationS)
	}
	// the supervisor runs at a fixed rate
	period := 1 / tailsitter.SampleRateHz
	if s.Timing.DtS == 0 {
		s.Timing.DtS = period
	}
	if math.Abs(s.Timing.DtS-period) > 1e-9 {
		return fmt.Errorf("dt_s must be %g, got %g", period, s.Timing.DtS)
	}
	if s.Timing.LogHz == 0 {
		s.Timing.LogHz = 50
	}
	if s.Timing.LogHz < 0 || s.Timing.LogHz > tailsitter.SampleRateHz {
		return fmt.Errorf("log_hz must be in (0, %g], got %g", tailsitter.SampleRateHz, s.Timing.LogHz)
	}
	if s.Initial.PositionNED[2] > 0 {
		return fmt.Errorf("initial position is below ground: down=%g", s.Initial.PositionNED[2])
	}
	for i, seg := range s.Segments {
		if seg.T0 < 0 || (seg.T1 >= 0 && seg.T1 <= seg.T0) {
			return fmt.Errorf("segment %d: invalid window [%g, %g)", i, seg.T0, seg.T1)
		}
	}
	if _, err := s.FrontSchedule(); err != nil {
		return err
	}
	if _, err := s.PlantConfig(); err != nil {
		return err
	}
	return nil
}

// FrontSchedule builds the scenario's pitch-over programme. Nil means the
// controller derives one from front_trans_pitch_sp_p1.
func (s *Scenario) FrontSchedule() (*tailsitter.PitchSchedule, error) {
	if len(s.PitchSchedule) == 0 {
		return nil, nil
	}
	sched, err := tailsitter.NewPitchSchedule(s.PitchSchedule)
	if err != nil {
		return nil, fmt.Errorf("pitch_schedule: %w", err)
	}
	return sched, nil
}

// PlantConfig returns the default simulation config with the scenario's
// overrides applied.
func (s *Scenario) PlantConfig() (plant.Config, error) {
	cfg := plant.DefaultConfig()
	if len(s.Plant) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(s.Plant, &cfg); err != nil {
		return plant.Config{}, fmt.Errorf("plant: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return plant.Config{}, fmt.Errorf("plant: %w", err)
	}
	return cfg, nil
}

// ApplyParams overlays the scenario's parameter overrides on base.
func (s *Scenario) ApplyParams(base tailsitter.Params) (tailsitter.Params, error) {
	if len(s.Params) == 0 {
		return base, nil
	}
	p := base
	if err := json.Unmarshal(s.Params, &p); err != nil {
		return tailsitter.Params{}, fmt.Errorf("scenario params: %w", err)
	}
	if err := p.Validate(); err != nil {
		return tailsitter.Params{}, fmt.Errorf("scenario params: %w", err)
	}
	return p, nil
}

// InitialVehicleState converts the initial block into a plant state.
func (s *Scenario) InitialVehicleState() plant.State {
	in := s.Initial
	return plant.State{
		Pos: r3.Vec{X: in.PositionNED[0], Y: in.PositionNED[1], Z: in.PositionNED[2]},
		Vel: r3.Vec{X: in.VelocityNED[0], Y: in.VelocityNED[1], Z: in.VelocityNED[2]},
		Att: attitude.EulerZXY{
			Theta: in.PitchDeg * math.Pi / 180,
			Psi:   in.YawDeg * math.Pi / 180,
		}.Quat(),
	}
}

// EvalPilotCmd evaluates the scenario at time t and returns the pilot switches
func EvalPilotCmd(scen *Scenario, t float64) PilotCmd {
	cmd := scen.Defaults

	// Find active segment
	for _, seg := range scen.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = scen.Timing.DurationS
		}

		if t >= seg.T0 && t < t1 {
			if seg.FixedWingRequested != nil {
				cmd.FixedWingRequested = *seg.FixedWingRequested
			}
			if seg.SweepRequested != nil {
				cmd.SweepRequested = *seg.SweepRequested
			}
			if seg.Armed != nil {
				cmd.Armed = *seg.Armed
			}
			break
		}
	}

	return cmd
}
