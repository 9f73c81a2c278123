package plant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AirframeConfig holds the rigid-body and aerodynamic constants of the
// simulated airframe. Body axes follow the MC frame: thrust along -Z, the wing
// normal along X.
type AirframeConfig struct {
	MassKg      float64    `json:"mass_kg"`
	MaxThrustN  float64    `json:"max_thrust_n"`
	WingAreaM2  float64    `json:"wing_area_m2"`
	AirDensity  float64    `json:"air_density"`
	CD0         float64    `json:"cd0"`
	CDPlate     float64    `json:"cd_plate"`
	TorqueGain  [3]float64 `json:"torque_gain"`  // rad/s² per unit virtual control
	RateDamping [3]float64 `json:"rate_damping"` // 1/s
	ElevonGain  float64    `json:"elevon_gain"`  // rad/s² per unit deflection per Pa
	LiftRow     int        `json:"lift_row"`
}

// RateLoopConfig holds the gains of one body-rate loop.
type RateLoopConfig struct {
	Kp            float64 `json:"kp"`
	Ki            float64 `json:"ki"`
	Kd            float64 `json:"kd"`
	IntegralLimit float64 `json:"integral_limit"`
	OutputLimit   float64 `json:"output_limit"`
}

// AttitudeConfig holds the angle-to-rate gains and the three rate loops.
type AttitudeConfig struct {
	AngleKp [3]float64        `json:"angle_kp"`
	MaxRate [3]float64        `json:"max_rate"`
	Rate    [3]RateLoopConfig `json:"rate"`
}

// HoverConfig tunes the MC position hold that produces the MC attitude
// setpoint.
type HoverConfig struct {
	HoverThrust     float64 `json:"hover_thrust"`
	AltKp           float64 `json:"alt_kp"`
	MaxClimbRate    float64 `json:"max_climb_rate"`
	VzKp            float64 `json:"vz_kp"`
	VzKi            float64 `json:"vz_ki"`
	VzIntegralLimit float64 `json:"vz_integral_limit"`
	PosKp           float64 `json:"pos_kp"`
	VelKp           float64 `json:"vel_kp"`
	MaxTilt         float64 `json:"max_tilt"`
}

// Config is the complete simulation configuration.
type Config struct {
	Airframe       AirframeConfig `json:"airframe"`
	MC             AttitudeConfig `json:"mc_attitude"`
	FW             AttitudeConfig `json:"fw_attitude"`
	FWTrimAirspeed float64        `json:"fw_trim_airspeed"`
	Hover          HoverConfig    `json:"hover"`
}

// DefaultConfig returns a 1.68 kg tail-sitter with a 2.5 thrust-to-weight
// ratio.
func DefaultConfig() Config {
	mcRate := func(kp, ki float64) RateLoopConfig {
		return RateLoopConfig{Kp: kp, Ki: ki, Kd: 0.002, IntegralLimit: 0.5, OutputLimit: 1}
	}
	return Config{
		Airframe: AirframeConfig{
			MassKg:      1.68,
			MaxThrustN:  2.5 * 1.68 * 9.8,
			WingAreaM2:  0.5,
			AirDensity:  1.237,
			CD0:         0.05,
			CDPlate:     1.2,
			TorqueGain:  [3]float64{40, 40, 10},
			RateDamping: [3]float64{4, 4, 2},
			ElevonGain:  0.02,
		},
		MC: AttitudeConfig{
			AngleKp: [3]float64{6, 6, 3},
			MaxRate: [3]float64{3, 3, 1.5},
			Rate:    [3]RateLoopConfig{mcRate(0.3, 0.2), mcRate(0.3, 0.2), mcRate(0.5, 0.1)},
		},
		FW: AttitudeConfig{
			AngleKp: [3]float64{4, 4, 2},
			MaxRate: [3]float64{2, 2, 1},
			Rate:    [3]RateLoopConfig{mcRate(0.2, 0.1), mcRate(0.2, 0.1), mcRate(0.3, 0.05)},
		},
		FWTrimAirspeed: 15,
		Hover: HoverConfig{
			HoverThrust:     0.4,
			AltKp:           1,
			MaxClimbRate:    3,
			VzKp:            0.1,
			VzKi:            0.05,
			VzIntegralLimit: 2,
			PosKp:           0.5,
			VelKp:           0.8,
			MaxTilt:         0.35,
		},
	}
}

// LoadConfig reads a JSON simulation configuration over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("plant config must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("read plant config: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid plant config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the integrator cannot run.
func (c Config) Validate() error {
	a := c.Airframe
	if a.MassKg <= 0 {
		return fmt.Errorf("mass_kg must be > 0, got %g", a.MassKg)
	}
	if a.MaxThrustN <= a.MassKg*gravity {
		return fmt.Errorf("max_thrust_n %g cannot lift %g kg", a.MaxThrustN, a.MassKg)
	}
	if a.WingAreaM2 < 0 || a.AirDensity < 0 {
		return fmt.Errorf("wing_area_m2 and air_density must be >= 0")
	}
	for i := range a.RateDamping {
		if a.RateDamping[i] < 0 {
			return fmt.Errorf("rate_damping[%d] must be >= 0", i)
		}
	}
	if c.FWTrimAirspeed <= 0 {
		return fmt.Errorf("fw_trim_airspeed must be > 0, got %g", c.FWTrimAirspeed)
	}
	if h := c.Hover.HoverThrust; h <= 0 || h >= 1 {
		return fmt.Errorf("hover_thrust must be in (0, 1), got %g", h)
	}
	return nil
}
