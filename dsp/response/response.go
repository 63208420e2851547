// Package response provides sampled time-domain models of the analog
// front-end: the RC high-pass coupling stage and the cold-electronics
// shaping amplifier.
package response

import (
	"math"
	"time"
)

// coldElecSpan bounds the shaper impulse response; beyond it the tail is
// below numerical relevance for any realistic shaping time.
const coldElecSpan = 10 * time.Microsecond

// Electronics describes one front-end amplifier configuration.
type Electronics struct {
	// Gain in mV/fC.
	Gain float64 `yaml:"gain" json:"gain"`
	// Shaping (peaking) time.
	Shaping time.Duration `yaml:"shaping" json:"shaping"`
}

// Valid reports whether e describes a usable amplifier.
func (e Electronics) Valid() bool {
	return e.Gain > 0 && e.Shaping > 0
}

// ColdElec evaluates the shaping amplifier impulse response at time t.
// The response is zero for t <= 0 and beyond coldElecSpan.
func ColdElec(t time.Duration, e Electronics) float64 {
	if t <= 0 || t >= coldElecSpan || !e.Valid() {
		return 0
	}

	x := t.Seconds() / e.Shaping.Seconds()
	g := 10 * e.Gain

	e1 := math.Exp(-2.94809 * x)
	e2 := math.Exp(-2.82833 * x)
	e3 := math.Exp(-2.40318 * x)

	c1, s1 := math.Cos(1.19361*x), math.Sin(1.19361*x)
	c2, s2 := math.Cos(2.38722*x), math.Sin(2.38722*x)
	c3, s3 := math.Cos(2.5928*x), math.Sin(2.5928*x)
	c4, s4 := math.Cos(5.18561*x), math.Sin(5.18561*x)

	v := 4.31054 * e1
	v += e2 * (-2.6202*c1 - 2.6202*c1*c2 + 0.762456*s1 - 0.762456*c2*s1 + 0.762456*c1*s2 - 2.6202*s1*s2)
	v += e3 * (0.464924*c3 + 0.464924*c3*c4 - 0.327684*s3 + 0.327684*c4*s3 - 0.327684*c3*s4 + 0.464924*s3*s4)

	return v * g
}

// ColdElecWaveform samples ColdElec at n ticks starting at t=0.
func ColdElecWaveform(n int, tick time.Duration, e Electronics) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = ColdElec(time.Duration(i)*tick, e)
	}

	return out
}

// RCWaveform samples one RC high-pass stage with time constant tau over n
// ticks: a unit delta at t=0 followed by the negative exponential tail
// -(tick/tau) * exp(-t/tau).
func RCWaveform(n int, tick, tau time.Duration) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	out[0] = 1
	if tau <= 0 {
		return out
	}

	ratio := tick.Seconds() / tau.Seconds()
	for i := 1; i < n; i++ {
		out[i] = -ratio * math.Exp(-float64(i)*ratio)
	}

	return out
}
