package tailsitter

import "math"

// SampleRateHz is the nominal controller tick rate.
const SampleRateHz = 250.0

// LowPass2p is a second-order Butterworth low-pass filter in direct form II.
type LowPass2p struct {
	cutoffHz float64
	b0, b1   float64
	b2       float64
	a1, a2   float64
	d1, d2   float64
	primed   bool
}

// NewLowPass2p builds the filter for the given sample rate and cut-off. A
// cut-off of zero (or at/above Nyquist) yields a pass-through filter.
func NewLowPass2p(sampleHz, cutoffHz float64) *LowPass2p {
	f := &LowPass2p{}
	f.SetCutoff(sampleHz, cutoffHz)
	return f
}

// SetCutoff recomputes the coefficients and clears the delay line.
func (f *LowPass2p) SetCutoff(sampleHz, cutoffHz float64) {
	*f = LowPass2p{cutoffHz: cutoffHz}
	if cutoffHz <= 0 || sampleHz <= 0 || cutoffHz >= sampleHz/2 {
		f.cutoffHz = 0
		f.b0 = 1
		return
	}

	fr := sampleHz / cutoffHz
	ohm := math.Tan(math.Pi / fr)
	c := 1 + 2*math.Cos(math.Pi/4)*ohm + ohm*ohm

	f.b0 = ohm * ohm / c
	f.b1 = 2 * f.b0
	f.b2 = f.b0
	f.a1 = 2 * (ohm*ohm - 1) / c
	f.a2 = (1 - 2*math.Cos(math.Pi/4)*ohm + ohm*ohm) / c
}

// CutoffHz returns the active cut-off, zero when the filter passes through.
func (f *LowPass2p) CutoffHz() float64 { return f.cutoffHz }

// Apply filters one sample. The first sample primes the delay line so the
// output starts at the input value rather than ramping up from zero.
func (f *LowPass2p) Apply(x float64) float64 {
	if f.cutoffHz == 0 {
		return x
	}
	if !f.primed {
		return f.Reset(x)
	}

	delay0 := x - f.d1*f.a1 - f.d2*f.a2
	if !finite(delay0) {
		delay0 = x
	}
	out := delay0*f.b0 + f.d1*f.b1 + f.d2*f.b2

	f.d2 = f.d1
	f.d1 = delay0
	return out
}

// Reset sets the delay line to the steady state for sample x.
func (f *LowPass2p) Reset(x float64) float64 {
	if f.cutoffHz == 0 {
		return x
	}
	d := x / (f.b0 + f.b1 + f.b2)
	f.d1, f.d2 = d, d
	f.primed = true
	return f.Apply(x)
}

// AlphaFilter is a first-order low-pass y += alpha·(x − y).
type AlphaFilter struct {
	alpha  float64
	state  float64
	primed bool
}

// NewAlphaFilter builds a first-order filter with time constant tau seconds
// at the given sample period dt seconds.
func NewAlphaFilter(dt, tau float64) *AlphaFilter {
	alpha := 1.0
	if tau > 0 {
		alpha = dt / (tau + dt)
	}
	return &AlphaFilter{alpha: alpha}
}

// Apply filters one sample.
func (f *AlphaFilter) Apply(x float64) float64 {
	if !f.primed {
		f.state = x
		f.primed = true
		return x
	}
	f.state += f.alpha * (x - f.state)
	return f.state
}

// Reset forces the filter state to x.
func (f *AlphaFilter) Reset(x float64) {
	f.state = x
	f.primed = true
}

// State returns the last output.
func (f *AlphaFilter) State() float64 { return f.state }
