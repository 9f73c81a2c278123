package tailsitter

// PIDGains holds the gains of one axis. IMax bounds the integrator output;
// zero leaves it unbounded.
type PIDGains struct {
	Kp   float64
	Ki   float64
	Kd   float64
	IMax float64
}

// PIDContext is the reusable integrator/derivative state of one axis.
//
// Each step computes P = Kp·err, I ← clamp(I − Ki·err·dt, ±IMax) and
// D = −Kd·(err − err_prev). The caller hands the raw output back through
// Saturate; while the saturated flag is set the integrator is frozen
// (back-calculation anti-windup).
type PIDContext struct {
	LastRunUS uint64
	I         float64
	PrevErr   float64
	Saturated bool

	started bool
}

// PIDDiagnostics contains PID internal state for monitoring
type PIDDiagnostics struct {
	Error     float64
	Integral  float64
	Saturated bool
}

// Reset clears the state and stamps the context with nowUS.
func (c *PIDContext) Reset(nowUS uint64) {
	*c = PIDContext{LastRunUS: nowUS}
}

// Elapsed returns the seconds since the previous call (zero on the first call
// after Reset) and stamps the context with nowUS.
func (c *PIDContext) Elapsed(nowUS uint64) float64 {
	dt := 0.0
	if nowUS > c.LastRunUS {
		dt = float64(nowUS-c.LastRunUS) * 1e-6
	}
	c.LastRunUS = nowUS
	return dt
}

// Step advances the controller by dt seconds and returns P+I+D.
func (c *PIDContext) Step(err, dt float64, g PIDGains) float64 {
	if !c.started {
		c.PrevErr = err
		c.started = true
	}

	p := g.Kp * err
	if !c.Saturated && dt > 0 {
		c.I -= g.Ki * err * dt
		if g.IMax > 0 {
			c.I = clamp(c.I, -g.IMax, g.IMax)
		}
	}
	d := -g.Kd * (err - c.PrevErr)
	c.PrevErr = err

	return p + c.I + d
}

// Saturate clamps out to [lo, hi] and records whether clamping occurred so the
// next Step freezes the integrator.
func (c *PIDContext) Saturate(out, lo, hi float64) float64 {
	c.Saturated = out < lo || out > hi
	return clamp(out, lo, hi)
}

// GetDiagnostics returns current PID state for logging/debugging
func (c *PIDContext) GetDiagnostics() PIDDiagnostics {
	return PIDDiagnostics{
		Error:     c.PrevErr,
		Integral:  c.I,
		Saturated: c.Saturated,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
