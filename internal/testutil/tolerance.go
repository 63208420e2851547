package testutil

import (
	"math"
	"math/cmplx"
	"testing"
)

// RequireSliceNearlyEqual fails t if got and want differ in length or if
// any element pair exceeds eps (absolute tolerance).
func RequireSliceNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		diff := math.Abs(got[i] - want[i])
		if diff > eps {
			t.Fatalf("index %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}

// RequireBinsNearlyEqual is RequireSliceNearlyEqual for complex spectra.
func RequireBinsNearlyEqual(t *testing.T, got, want []complex128, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for k := range got {
		if d := cmplx.Abs(got[k] - want[k]); d > eps {
			t.Fatalf("bin %d: got %v, want %v (diff %v > eps %v)", k, got[k], want[k], d, eps)
		}
	}
}

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}

// RequireFiniteBins fails t if any bin has a NaN or Inf component.
func RequireFiniteBins(t *testing.T, bins []complex128) {
	t.Helper()
	for k, v := range bins {
		if cmplx.IsNaN(v) || cmplx.IsInf(v) {
			t.Fatalf("bin %d: non-finite value %v", k, v)
		}
	}
}
