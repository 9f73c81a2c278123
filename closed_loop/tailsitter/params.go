package tailsitter

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// Params is the typed snapshot of the tunable gains and limits. Angles are in
// radians unless the name says otherwise; sysidt_* angles are degrees.
type Params struct {
	VtSafeAlt           float64 `json:"vt_safe_alt"`
	VtMaxHeight         float64 `json:"vt_max_height"`
	TransitionAirspeed  float64 `json:"transition_airspeed"`
	FrontTransDuration  float64 `json:"front_trans_duration"`
	BackTransDuration   float64 `json:"back_trans_duration"`
	FrontTransPitchSpP1 float64 `json:"front_trans_pitch_sp_p1"`
	VtXDistKp           float64 `json:"vt_x_dist_kp"`
	VtYDistKp           float64 `json:"vt_y_dist_kp"`
	VtVzControlKp       float64 `json:"vt_vz_control_kp"`
	VtVzControlKi       float64 `json:"vt_vz_control_ki"`
	VtVzControlKd       float64 `json:"vt_vz_control_kd"`
	VtVyKp              float64 `json:"vt_vy_kp"`
	VtVyKi              float64 `json:"vt_vy_ki"`
	VtVzMinSpeed        float64 `json:"vt_vz_minspeed"`
	VtVzMaxSpeed        float64 `json:"vt_vz_maxspeed"`
	VtVzInterval        float64 `json:"vt_vz_interval"`
	VtVzAccTime         float64 `json:"vt_vz_acctime"`
	VtVzKeepTime        float64 `json:"vt_vz_keeptime"`
	VtSideslipCtrlEn    bool    `json:"vt_sideslip_ctrl_en"`
	VtSweepType         int     `json:"vt_sweep_type"`
	VtSweepAmp          float64 `json:"vt_sweep_amp"`
	VtSweepChirp        int     `json:"vt_sweep_chirp"`
	AirspeedDisabled    bool    `json:"airspeed_disabled"`
	SysidtCounter       int     `json:"sysidt_counter"`
	SysidtAccTime       float64 `json:"sysidt_acctime"`
	SysidtPitchTime     float64 `json:"sysidt_pitchtime"`
	SysidtMinAOA        float64 `json:"sysidt_minaoa"`
	SysidtMaxAOA        float64 `json:"sysidt_maxaoa"`
	SysidtInterval      float64 `json:"sysidt_interval"`
	SysidtRoll          float64 `json:"sysidt_roll"`
	SysIdentNum         int     `json:"sys_ident_num"`
	VtVertCtrlMode      int     `json:"vt_vert_ctrl_mode"`
	FwPitchTrim         float64 `json:"fw_pitch_trim"`
	VtAccLpfCutoff      float64 `json:"vt_acc_lpf_cutoff"`
	MpcThrHover         float64 `json:"mpc_thr_hover"`
}

// DefaultParams returns the parameter set flown on the reference airframe.
func DefaultParams() Params {
	return Params{
		VtSafeAlt:           10,
		VtMaxHeight:         100,
		TransitionAirspeed:  15,
		FrontTransDuration:  3,
		BackTransDuration:   2,
		FrontTransPitchSpP1: 88 * math.Pi / 180,
		VtXDistKp:           1.0,
		VtYDistKp:           0.3,
		VtVzControlKp:       0.1,
		VtVzControlKi:       0.05,
		VtVzControlKd:       0.01,
		VtVyKp:              0.1,
		VtVyKi:              0.02,
		VtVzMinSpeed:        1,
		VtVzMaxSpeed:        5,
		VtVzInterval:        1,
		VtVzAccTime:         2,
		VtVzKeepTime:        5,
		VtSideslipCtrlEn:    true,
		VtSweepType:         int(SweepNone),
		VtSweepAmp:          0.05,
		VtSweepChirp:        int(ChirpAuto),
		SysidtCounter:       3,
		SysidtAccTime:       3,
		SysidtPitchTime:     10,
		SysidtMinAOA:        10,
		SysidtMaxAOA:        40,
		SysidtInterval:      5,
		SysidtRoll:          30,
		SysIdentNum:         0,
		VtVertCtrlMode:      int(ControlPos),
		FwPitchTrim:         0,
		VtAccLpfCutoff:      20,
		MpcThrHover:         0.5,
	}
}

// Validate rejects parameter sets the controller cannot run with.
// sys_ident_num is not checked here: out-of-range rows are ignored at
// selection time.
func (p Params) Validate() error {
	if p.FrontTransDuration <= 0 {
		return fmt.Errorf("front_trans_duration must be positive, got %g", p.FrontTransDuration)
	}
	if p.BackTransDuration <= 0 {
		return fmt.Errorf("back_trans_duration must be positive, got %g", p.BackTransDuration)
	}
	if p.VtVzAccTime <= 0 {
		return fmt.Errorf("vt_vz_acctime must be positive, got %g", p.VtVzAccTime)
	}
	if p.VtVzKeepTime < 0 {
		return fmt.Errorf("vt_vz_keeptime must not be negative, got %g", p.VtVzKeepTime)
	}
	if p.VtVzMaxSpeed < 0 {
		return fmt.Errorf("vt_vz_maxspeed must not be negative, got %g", p.VtVzMaxSpeed)
	}
	if p.SysidtMaxAOA < p.SysidtMinAOA {
		return fmt.Errorf("sysidt_maxaoa (%g) below sysidt_minaoa (%g)", p.SysidtMaxAOA, p.SysidtMinAOA)
	}
	if p.VtSweepType < int(SweepNone) || p.VtSweepType > int(SweepThrust) {
		return fmt.Errorf("vt_sweep_type out of range: %d", p.VtSweepType)
	}
	if p.VtSweepChirp < int(ChirpAuto) || p.VtSweepChirp > int(ChirpLinear) {
		return fmt.Errorf("vt_sweep_chirp out of range: %d", p.VtSweepChirp)
	}
	if p.VtVertCtrlMode < int(ControlPos) || p.VtVertCtrlMode > int(ControlVelWithoutAcc) {
		return fmt.Errorf("vt_vert_ctrl_mode out of range: %d", p.VtVertCtrlMode)
	}
	if p.MpcThrHover < 0 || p.MpcThrHover > 1 {
		return fmt.Errorf("mpc_thr_hover must be within [0, 1], got %g", p.MpcThrHover)
	}
	return nil
}

// LoadParams reads a JSON parameter file over DefaultParams. Fields omitted
// from the file keep their defaults.
func LoadParams(path string) (Params, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Params{}, fmt.Errorf("parameter file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Params{}, fmt.Errorf("stat parameter file: %w", err)
	}
	const maxFileSize = 1 << 20
	if info.Size() > maxFileSize {
		return Params{}, fmt.Errorf("parameter file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Params{}, fmt.Errorf("read parameter file: %w", err)
	}

	p := DefaultParams()
	if err := json.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("invalid parameters: %w", err)
	}
	return p, nil
}

// ParamSource is polled by the controller at most once per tick.
type ParamSource interface {
	// Poll returns the current parameters and whether they changed since the
	// previous Poll.
	Poll() (Params, bool)
}

// ParamStore is a ParamSource the host updates out of band.
type ParamStore struct {
	mu      sync.Mutex
	params  Params
	gen     uint64
	seenGen uint64
}

// NewParamStore returns a store holding p. The first Poll reports a change.
func NewParamStore(p Params) *ParamStore {
	return &ParamStore{params: p, gen: 1}
}

// Set replaces the stored parameters.
func (s *ParamStore) Set(p Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	s.gen++
}

// Update applies fn to a copy of the stored parameters and stores the result.
func (s *ParamStore) Update(fn func(*Params)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.params
	fn(&p)
	s.params = p
	s.gen++
}

// Poll implements ParamSource.
func (s *ParamStore) Poll() (Params, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.gen != s.seenGen
	s.seenGen = s.gen
	return s.params, changed
}
