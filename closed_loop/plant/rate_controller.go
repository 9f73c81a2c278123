package plant

// RateController is a discrete PID on one body rate with back-calculation
// anti-windup.
type RateController struct {
	cfg RateLoopConfig

	// State
	integral    float64
	prevError   float64
	initialized bool
}

// NewRateController creates a rate loop with the given gains.
func NewRateController(cfg RateLoopConfig) *RateController {
	return &RateController{cfg: cfg}
}

// Reset clears the loop state
func (pid *RateController) Reset() {
	pid.integral = 0.0
	pid.prevError = 0.0
	pid.initialized = false
}

// Update returns the virtual control in [-OutputLimit, OutputLimit] for the
// rate error target-measured, plus the feed-forward ff.
func (pid *RateController) Update(target, measured, ff, dt float64) float64 {
	err := target - measured

	// No derivative kick on the first sample
	if !pid.initialized {
		pid.prevError = err
		pid.initialized = true
	}

	p := pid.cfg.Kp * err

	pid.integral += err * dt
	pid.integral = ClampFloat(pid.integral, -pid.cfg.IntegralLimit, pid.cfg.IntegralLimit)
	i := pid.cfg.Ki * pid.integral

	var d float64
	if dt > 0 {
		d = pid.cfg.Kd * (err - pid.prevError) / dt
	}
	pid.prevError = err

	out := ff + p + i + d
	limit := pid.cfg.OutputLimit
	if out > limit || out < -limit {
		out = ClampFloat(out, -limit, limit)
		// Anti-windup: back-calculate integral
		if pid.cfg.Ki != 0 {
			pid.integral = ClampFloat((out-ff-p-d)/pid.cfg.Ki, -pid.cfg.IntegralLimit, pid.cfg.IntegralLimit)
		}
	}
	return out
}

// GetDiagnostics returns current loop state for logging
func (pid *RateController) GetDiagnostics() RateDiagnostics {
	return RateDiagnostics{
		Error:    pid.prevError,
		Integral: pid.integral,
		P:        pid.cfg.Kp * pid.prevError,
		I:        pid.cfg.Ki * pid.integral,
	}
}

// RateDiagnostics contains the loop internals
type RateDiagnostics struct {
	Error    float64
	Integral float64
	P        float64
	I        float64
}
