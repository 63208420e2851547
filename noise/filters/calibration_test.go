package filters

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-noise/dsp/fourier"
	"github.com/cwbudde/algo-noise/internal/testutil"
	"github.com/cwbudde/algo-noise/noise/chansel"
	"github.com/cwbudde/algo-noise/noise/frame"
	"github.com/cwbudde/algo-noise/noise/geometry"
	"github.com/cwbudde/algo-noise/noise/kernel"
	"github.com/cwbudde/algo-noise/noise/noisedb"
	"github.com/cwbudde/algo-noise/noise/omnibus"
)

const testSamples = 64

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

// stubParams serves one record for every channel.
type stubParams struct {
	rec noisedb.Record
	fft *fourier.Transform
}

func (s stubParams) Record(ch int) (noisedb.Record, error) {
	if ch < 0 {
		return noisedb.Record{}, noisedb.ErrChannelOutOfRange
	}

	r := s.rec
	r.Channel = ch

	return r, nil
}

func (s stubParams) Transform() *fourier.Transform { return s.fft }

func identityRecord() noisedb.Record {
	return noisedb.Record{
		GainCorrection: 1,
		MinRMSCut:      noisedb.DefaultMinRMSCut,
		MaxRMSCut:      noisedb.DefaultMaxRMSCut,
		RCRC:           kernel.Unity(testSamples),
		Config:         kernel.Unity(testSamples),
		Noise:          kernel.Unity(testSamples),
		Response:       kernel.Empty,
	}
}

func newStub(t *testing.T, rec noisedb.Record) stubParams {
	t.Helper()

	fft, err := fourier.New(testSamples)
	if err != nil {
		t.Fatalf("fourier.New: %v", err)
	}

	return stubParams{rec: rec, fft: fft}
}

func TestBaselineAndGain(t *testing.T) {
	rec := identityRecord()
	rec.NominalBaseline = 2
	rec.GainCorrection = 3

	c := NewCalibration(newStub(t, rec), WithCalibrationLogger(quietLogger()), WithRMSCheck(false))

	signal := testutil.Ramp(testSamples)
	want := make([]float64, testSamples)

	for i := range signal {
		want[i] = 3 * signal[i]
		signal[i] += 2
	}

	masks, err := c.FilterChannel(4, signal)
	if err != nil {
		t.Fatalf("FilterChannel: %v", err)
	}

	if masks != nil {
		t.Fatalf("masks = %v, want none", masks)
	}

	testutil.RequireSliceNearlyEqual(t, signal, want, 1e-12)
}

func TestNoiseKernelRemovesBins(t *testing.T) {
	bins := kernel.Unity(testSamples).Bins()
	bins[4], bins[testSamples-4] = 0, 0

	rec := identityRecord()
	rec.Noise = kernel.New(bins)
	rec.GainCorrection = 5

	c := NewCalibration(newStub(t, rec), WithCalibrationLogger(quietLogger()), WithRMSCheck(false))

	keep := testutil.DeterministicSine(10, 1, testSamples)
	drop := testutil.DeterministicSine(4, 2, testSamples)

	signal := make([]float64, testSamples)
	for i := range signal {
		signal[i] = keep[i] + drop[i]
	}

	_, err := c.FilterChannel(0, signal)
	if err != nil {
		t.Fatalf("FilterChannel: %v", err)
	}

	for i := range keep {
		keep[i] *= 5
	}

	testutil.RequireSliceNearlyEqual(t, signal, keep, 1e-9)
}

func TestSpectralPassAtFrameLength(t *testing.T) {
	const n = 9600

	fft, err := fourier.New(n)
	if err != nil {
		t.Fatalf("fourier.New: %v", err)
	}

	bins := kernel.Unity(n).Bins()
	bins[n/2] = 0

	rec := noisedb.Record{
		GainCorrection: 1,
		RCRC:           kernel.Unity(n),
		Config:         kernel.Unity(n),
		Noise:          kernel.New(bins),
	}

	c := NewCalibration(stubParams{rec: rec, fft: fft}, WithCalibrationLogger(quietLogger()), WithRMSCheck(false))

	signal := testutil.DeterministicSine(37, 1, n)

	_, err = c.FilterChannel(0, signal)
	if err != nil {
		t.Fatalf("FilterChannel: %v", err)
	}

	testutil.RequireSliceNearlyEqual(t, signal, testutil.DeterministicSine(37, 1, n), 1e-9)
}

func TestRCCompensation(t *testing.T) {
	db := newTestDB(t, noisedb.Directive{
		Channels: chansel.Single(0),
		RCRC:     ptr(time.Millisecond),
	})

	signal := testutil.DeterministicNoise(3, 1, testSamples)
	for i := range signal {
		signal[i] += 4
	}

	c := NewCalibration(db, WithCalibrationLogger(quietLogger()), WithRMSCheck(false))

	_, err := c.FilterChannel(0, signal)
	if err != nil {
		t.Fatalf("FilterChannel: %v", err)
	}

	testutil.RequireFinite(t, signal)

	mean := 0.0
	for _, v := range signal {
		mean += v
	}

	mean /= testSamples
	if math.Abs(mean) > 1e-9 {
		t.Fatalf("mean after rc compensation = %v, want 0", mean)
	}

	off := testutil.DeterministicNoise(3, 1, testSamples)
	for i := range off {
		off[i] += 4
	}

	skip := NewCalibration(db, WithRCCompensation(false), WithRMSCheck(false))

	_, err = skip.FilterChannel(0, off)
	if err != nil {
		t.Fatalf("FilterChannel: %v", err)
	}

	if off[0] != testutil.DeterministicNoise(3, 1, testSamples)[0]+4 {
		t.Fatal("signal changed with rc compensation disabled")
	}
}

func TestRMSBounds(t *testing.T) {
	rec := identityRecord()
	rec.PadWindowFront = 8
	rec.PadWindowBack = 8

	c := NewCalibration(newStub(t, rec), WithCalibrationLogger(quietLogger()))

	tests := []struct {
		name  string
		fill  func([]float64)
		noisy bool
	}{
		{"in bounds", func(s []float64) { copy(s, testutil.DC(1, len(s))) }, false},
		{"too quiet", func([]float64) {}, true},
		{"too loud", func(s []float64) { copy(s, testutil.DC(20, len(s))) }, true},
		{"loud only in pad", func(s []float64) {
			copy(s, testutil.DC(1, len(s)))
			for i := range 8 {
				s[i] = 1000
			}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := make([]float64, testSamples)
			tt.fill(signal)

			masks, err := c.FilterChannel(6, signal)
			if err != nil {
				t.Fatalf("FilterChannel: %v", err)
			}

			if got := masks != nil; got != tt.noisy {
				t.Fatalf("noisy = %v, want %v (masks %v)", got, tt.noisy, masks)
			}

			if tt.noisy {
				want := frame.BinRanges{{Begin: 0, End: testSamples}}
				if got := masks[NoisyMask][6]; len(got) != 1 || got[0] != want[0] {
					t.Fatalf("noisy mask = %v, want %v", got, want)
				}
			}
		})
	}
}

func TestWindowRMSEmpty(t *testing.T) {
	if _, ok := windowRMS(make([]float64, 4), 3, 2); ok {
		t.Fatal("expected empty window")
	}

	rms, ok := windowRMS([]float64{3, -3, 3, -3}, -1, 0)
	if !ok || rms != 3 {
		t.Fatalf("rms = %v, %v; want 3, true", rms, ok)
	}
}

func TestCalibrationErrors(t *testing.T) {
	c := NewCalibration(newStub(t, identityRecord()), WithCalibrationLogger(quietLogger()))

	_, err := c.FilterChannel(-1, make([]float64, testSamples))
	if !errors.Is(err, noisedb.ErrChannelOutOfRange) {
		t.Fatalf("err = %v, want ErrChannelOutOfRange", err)
	}

	rec := identityRecord()
	rec.Noise = kernel.New(make([]complex128, testSamples))

	noFFT := NewCalibration(stubParams{rec: rec}, WithCalibrationLogger(quietLogger()))

	_, err = noFFT.FilterChannel(0, make([]float64, testSamples))
	if !errors.Is(err, ErrNoTransform) {
		t.Fatalf("err = %v, want ErrNoTransform", err)
	}
}

func TestCalibrationInPipeline(t *testing.T) {
	db := newTestDB(t, noisedb.Directive{
		Channels:        chansel.Single(1),
		NominalBaseline: ptr(5.0),
		GainCorrection:  ptr(2.0),
	})

	cal := NewCalibration(db, WithCalibrationLogger(quietLogger()))
	pipe := omnibus.New(db, omnibus.WithChannelFilters(cal), omnibus.WithLogger(quietLogger()), omnibus.WithWorkers(2))

	sine := testutil.DeterministicSine(3, 1, testSamples)

	one := make([]float64, testSamples)
	for i := range one {
		one[i] = sine[i] + 5
	}

	out, err := pipe.Process(&frame.Frame{Ident: 1, Traces: []frame.Trace{
		{Channel: 0, Charge: make([]float64, testSamples)},
		{Channel: 1, Charge: one},
	}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := make([]float64, testSamples)
	for i := range want {
		want[i] = 2 * sine[i]
	}

	testutil.RequireSliceNearlyEqual(t, out.Traces[1].Charge, want, 1e-12)

	bad := out.Masks[frame.BadMask]
	if len(bad) != 1 || len(bad[0]) != 1 || bad[0][0] != (frame.BinRange{Begin: 0, End: testSamples}) {
		t.Fatalf("bad mask = %v, want channel 0 fully masked", bad)
	}
}

func ptr[T any](v T) *T { return &v }

func newTestDB(t *testing.T, directives ...noisedb.Directive) *noisedb.DB {
	t.Helper()

	anode, err := geometry.NewAnode(2, 2)
	if err != nil {
		t.Fatalf("NewAnode: %v", err)
	}

	db := noisedb.New(noisedb.WithLogger(quietLogger()))

	err = db.Configure(noisedb.Config{
		Tick:       500 * time.Nanosecond,
		NSamples:   testSamples,
		Anode:      anode,
		Directives: directives,
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	return db
}
