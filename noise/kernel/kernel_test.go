package kernel

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/cwbudde/algo-noise/internal/testutil"
)

func TestUnityAndEmpty(t *testing.T) {
	u := Unity(16)
	if u.Len() != 16 || !u.IsUnity() || u.IsEmpty() {
		t.Fatalf("Unity(16): len=%d unity=%v empty=%v", u.Len(), u.IsUnity(), u.IsEmpty())
	}

	if !Empty.IsEmpty() || Empty.IsUnity() || Empty.Len() != 0 {
		t.Fatal("Empty must be zero-length and not unity")
	}
}

func TestNewCopiesBins(t *testing.T) {
	bins := []complex128{1, 2, 3}
	k := New(bins)
	bins[0] = 9

	if k.At(0) != 1 {
		t.Fatalf("At(0) = %v, kernel aliases caller slice", k.At(0))
	}

	out := k.Bins()
	out[1] = 9

	if k.At(1) != 2 {
		t.Fatalf("At(1) = %v, Bins aliases kernel storage", k.At(1))
	}
}

func TestApplyAndMultiply(t *testing.T) {
	a := New([]complex128{2, 1i, 0.5})
	b := New([]complex128{3, 1i, 4, 7})

	spec := []complex128{1, 1, 1}
	a.Apply(spec)
	testutil.RequireBinsNearlyEqual(t, spec, []complex128{2, 1i, 0.5}, 0)

	got := a.Multiply(b).Bins()
	testutil.RequireBinsNearlyEqual(t, got, []complex128{6, -1, 2}, 0)

	short := []complex128{1, 1, 1, 1, 1}
	a.Apply(short)
	testutil.RequireBinsNearlyEqual(t, short, []complex128{2, 1i, 0.5, 1, 1}, 0)
}

func TestApplyInverse(t *testing.T) {
	k := New([]complex128{2, 1i, 0})

	spec := []complex128{4, 1, 1, 5}
	k.ApplyInverse(spec)

	testutil.RequireFiniteBins(t, spec)
	testutil.RequireBinsNearlyEqual(t, spec[:2], []complex128{2, -1i}, 1e-12)

	if spec[3] != 5 {
		t.Fatalf("bin beyond kernel = %v, want unchanged 5", spec[3])
	}
}

func TestMagnitudeAndPower(t *testing.T) {
	k := New([]complex128{3 + 4i, -2, 1i})

	testutil.RequireSliceNearlyEqual(t, k.Magnitude(), []float64{5, 2, 1}, 1e-12)
	testutil.RequireSliceNearlyEqual(t, k.Power(), []float64{25, 4, 1}, 1e-12)
	testutil.RequireSliceNearlyEqual(t, k.DCNormalized(), []float64{1, 0.4, 0.2}, 1e-12)

	if got := New([]complex128{0, 1}).DCNormalized(); got != nil {
		t.Fatalf("DCNormalized with zero DC = %v, want nil", got)
	}

	if got := Empty.DCNormalized(); got != nil {
		t.Fatalf("DCNormalized of Empty = %v, want nil", got)
	}
}

func TestCacheBuildsOncePerKey(t *testing.T) {
	t.Parallel()

	c := NewCache[int]()

	var mu sync.Mutex

	calls := map[int]int{}
	build := func(key int) func() (*Kernel, error) {
		return func() (*Kernel, error) {
			mu.Lock()
			calls[key]++
			mu.Unlock()

			return Unity(4), nil
		}
	}

	var wg sync.WaitGroup

	results := make([]*Kernel, 64)
	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			k, err := c.Get(i%2, build(i%2))
			if err != nil {
				t.Errorf("Get: %v", err)
			}

			results[i] = k
		}()
	}

	wg.Wait()

	if calls[0] != 1 || calls[1] != 1 {
		t.Fatalf("build calls = %v, want one per key", calls)
	}

	for i, k := range results {
		if k != results[i%2] {
			t.Fatalf("result %d is a different instance for the same key", i)
		}
	}

	if results[0] == results[1] {
		t.Fatal("different keys share an instance")
	}

	st := c.Stats()
	if st.Builds != 2 || st.Entries != 2 {
		t.Fatalf("Stats = %+v, want 2 builds and 2 entries", st)
	}
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	c := NewCache[string]()
	boom := errors.New("boom")

	_, err := c.Get("k", func() (*Kernel, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Get error = %v, want boom", err)
	}

	k, err := c.Get("k", func() (*Kernel, error) { return Unity(2), nil })
	if err != nil || k == nil {
		t.Fatalf("Get after failure = %v, %v", k, err)
	}

	if st := c.Stats(); st.Builds != 1 {
		t.Fatalf("Builds = %d, want 1", st.Builds)
	}
}

func TestQuantize(t *testing.T) {
	if quantize(7.8, 0.1) != quantize(7.8000001, 0.1) {
		t.Fatal("nearby gains quantize differently")
	}

	if quantize(7.8, 0.1) == quantize(7.9, 0.1) {
		t.Fatal("distinct gains share a key")
	}

	if math.Abs(float64(quantize(14.0, 0.1))-140) > 0 {
		t.Fatalf("quantize(14, 0.1) = %d, want 140", quantize(14.0, 0.1))
	}
}
