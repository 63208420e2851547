// Package fourier wraps the forward and inverse discrete Fourier transform
// used by the noise-kernel generators and filters.
//
// A Transform is bound to one length. It prefers an algo-fft plan, but only
// after the plan has reproduced the go-dsp transform on a fixed check
// sequence; lengths the plan constructor rejects or gets wrong (9600 among
// them) use go-dsp. Frame lengths therefore never need padding.
//
// Bins follow the usual forward-transform convention: bin 0 is DC, bin k and
// bin n-k are the positive and negative frequency k. The inverse is
// normalised by 1/n, so Inverse(Forward(x)) == x.
package fourier

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	dspfft "github.com/mjibson/go-dsp/fft"
)

// planTolerance bounds the error of an accepted plan relative to the peak
// bin magnitude of the check sequence.
const planTolerance = 1e-9

// Transform errors.
var (
	ErrLength        = errors.New("fourier: buffer length mismatch")
	ErrInvalidLength = errors.New("fourier: length must be positive")
)

// Transform computes length-n forward and inverse transforms.
// It is safe for concurrent use.
type Transform struct {
	n int

	// plan is nil when algo-fft cannot serve this length.
	mu   sync.Mutex
	plan *algofft.Plan[complex128]
}

// New returns a Transform of length n.
func New(n int) (*Transform, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}

	t := &Transform{n: n}

	plan, err := algofft.NewPlan64(n)
	if err == nil && agrees(n, plan.Forward, plan.Inverse) {
		t.plan = plan
	}

	return t, nil
}

// agrees reports whether forward matches go-dsp on a deterministic
// sequence of length n and inverse undoes it.
func agrees(n int, forward, inverse func(dst, src []complex128) error) bool {
	src := checkSequence(n)
	want := dspfft.FFT(src)

	got := make([]complex128, n)
	if forward(got, src) != nil {
		return false
	}

	peak := 1.0
	for _, v := range want {
		peak = math.Max(peak, cmplx.Abs(v))
	}

	tol := planTolerance * peak

	for k := range want {
		if d := cmplx.Abs(got[k] - want[k]); !(d <= tol) {
			return false
		}
	}

	back := make([]complex128, n)
	if inverse(back, got) != nil {
		return false
	}

	for i := range src {
		if d := cmplx.Abs(back[i] - src[i]); !(d <= tol) {
			return false
		}
	}

	return true
}

// checkSequence is a fixed non-periodic complex sequence exciting every bin.
func checkSequence(n int) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		x := float64(i)
		out[i] = complex(math.Sin(0.7*x+0.3)+0.5*math.Cos(1.9*x*x/float64(n)), math.Cos(1.3*x)-0.25)
	}

	return out
}

// newFallback returns a Transform that always uses go-dsp.
func newFallback(n int) *Transform {
	return &Transform{n: n}
}

// Len returns the transform length.
func (t *Transform) Len() int {
	return t.n
}

// Forward computes dst = DFT(src). Both slices must have length Len().
func (t *Transform) Forward(dst, src []complex128) error {
	if len(dst) != t.n || len(src) != t.n {
		return fmt.Errorf("%w: dst=%d src=%d n=%d", ErrLength, len(dst), len(src), t.n)
	}

	if t.plan == nil {
		copy(dst, dspfft.FFT(src))
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.plan.Forward(dst, src)
}

// Inverse computes dst = IDFT(src), normalised by 1/n.
func (t *Transform) Inverse(dst, src []complex128) error {
	if len(dst) != t.n || len(src) != t.n {
		return fmt.Errorf("%w: dst=%d src=%d n=%d", ErrLength, len(dst), len(src), t.n)
	}

	if t.plan == nil {
		copy(dst, dspfft.IFFT(src))
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.plan.Inverse(dst, src)
}

// ForwardReal transforms a real sequence. The input is zero-padded or
// truncated to Len().
func (t *Transform) ForwardReal(samples []float64) ([]complex128, error) {
	in := make([]complex128, t.n)
	for i := 0; i < len(samples) && i < t.n; i++ {
		in[i] = complex(samples[i], 0)
	}

	out := make([]complex128, t.n)

	err := t.Forward(out, in)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// InverseReal transforms spec back to the time domain and writes the real
// part into dst. dst may be shorter than Len(); extra samples are dropped.
func (t *Transform) InverseReal(dst []float64, spec []complex128) error {
	out := make([]complex128, t.n)

	err := t.Inverse(out, spec)
	if err != nil {
		return err
	}

	for i := 0; i < len(dst) && i < t.n; i++ {
		dst[i] = real(out[i])
	}

	return nil
}
