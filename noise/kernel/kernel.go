// Package kernel builds and caches frequency-domain noise-filter kernels.
//
// A Kernel holds one complex value per frequency bin, in the bin order of
// the forward transform. Kernels are immutable once built and are shared by
// pointer between every channel that resolves to the same parameters; the
// garbage collector releases a kernel once no record or cache refers to it.
//
// Two distinguished values exist: a unity kernel of the frame length, the
// identity filter used whenever a kernel is not configured, and the Empty
// kernel of length zero which means "no response configured" and must not
// be applied as a filter.
package kernel

import (
	"math/cmplx"

	"github.com/cwbudde/algo-vecmath"
)

// Kernel is an immutable frequency-domain filter.
type Kernel struct {
	bins []complex128
}

// Empty is the zero-length kernel returned when no response is configured.
var Empty = &Kernel{}

// New returns a kernel holding a copy of bins.
func New(bins []complex128) *Kernel {
	return &Kernel{bins: append([]complex128(nil), bins...)}
}

// wrap takes ownership of bins without copying.
func wrap(bins []complex128) *Kernel {
	return &Kernel{bins: bins}
}

// Unity returns a new all-ones kernel of length n.
func Unity(n int) *Kernel {
	bins := make([]complex128, n)
	for i := range bins {
		bins[i] = 1
	}

	return wrap(bins)
}

// Len returns the number of bins.
func (k *Kernel) Len() int {
	return len(k.bins)
}

// At returns bin i.
func (k *Kernel) At(i int) complex128 {
	return k.bins[i]
}

// IsEmpty reports whether k has no bins.
func (k *Kernel) IsEmpty() bool {
	return len(k.bins) == 0
}

// IsUnity reports whether every bin is exactly 1.
func (k *Kernel) IsUnity() bool {
	if k.IsEmpty() {
		return false
	}

	for _, v := range k.bins {
		if v != 1 {
			return false
		}
	}

	return true
}

// Bins returns a copy of the bin values.
func (k *Kernel) Bins() []complex128 {
	return append([]complex128(nil), k.bins...)
}

// Apply multiplies spec bin-wise by k in place. spec may be shorter than k;
// bins beyond len(k) are left unchanged.
func (k *Kernel) Apply(spec []complex128) {
	for i := 0; i < len(spec) && i < len(k.bins); i++ {
		spec[i] *= k.bins[i]
	}
}

// ApplyInverse divides spec bin-wise by k in place. Bins of k whose
// magnitude is far below the kernel peak are raised to a floor first, so
// the result stays finite.
func (k *Kernel) ApplyInverse(spec []complex128) {
	n := min(len(spec), len(k.bins))
	copy(spec, divideFloored(spec[:n], k.bins[:n]))
}

// Multiply returns the bin-wise product k*o over the shorter length.
func (k *Kernel) Multiply(o *Kernel) *Kernel {
	n := min(len(k.bins), len(o.bins))

	out := make([]complex128, n)
	for i := range out {
		out[i] = k.bins[i] * o.bins[i]
	}

	return wrap(out)
}

// Magnitude returns |k[i]| for each bin.
func (k *Kernel) Magnitude() []float64 {
	re, im := k.parts()
	out := make([]float64, len(k.bins))
	vecmath.Magnitude(out, re, im)

	return out
}

// Power returns |k[i]|^2 for each bin.
func (k *Kernel) Power() []float64 {
	re, im := k.parts()
	out := make([]float64, len(k.bins))
	vecmath.Power(out, re, im)

	return out
}

// DCNormalized returns the magnitude spectrum divided by the DC magnitude.
// It returns nil for an empty kernel or one with zero DC.
func (k *Kernel) DCNormalized() []float64 {
	if k.IsEmpty() {
		return nil
	}

	dc := cmplx.Abs(k.bins[0])
	if dc == 0 {
		return nil
	}

	mag := k.Magnitude()
	for i := range mag {
		mag[i] /= dc
	}

	return mag
}

func (k *Kernel) parts() (re, im []float64) {
	re = make([]float64, len(k.bins))
	im = make([]float64, len(k.bins))

	for i, c := range k.bins {
		re[i] = real(c)
		im[i] = imag(c)
	}

	return re, im
}
