// Package filters provides channel filters for the omnibus pipeline.
package filters

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-noise/dsp/fourier"
	"github.com/cwbudde/algo-noise/noise/frame"
	"github.com/cwbudde/algo-noise/noise/noisedb"
)

// NoisyMask names the masks produced by Calibration.
const NoisyMask = "noisy"

// ErrNoTransform is returned when the database has no configured transform.
var ErrNoTransform = errors.New("filters: database has no transform")

// Parameters is the part of the noise database Calibration reads.
type Parameters interface {
	Record(ch int) (noisedb.Record, error)
	Transform() *fourier.Transform
}

// Calibration applies one channel's database parameters to its samples:
//
//   - the nominal baseline is subtracted;
//   - the signal is scaled by the gain correction;
//   - the config and noise kernels are multiplied into its spectrum;
//   - the rcrc kernel is divided out of its spectrum, which also drops
//     the DC bin the RC stages cannot pass;
//   - the whole channel is marked noisy when the RMS of the samples inside
//     the pad windows falls outside [MinRMSCut, MaxRMSCut].
//
// A reconfigured channel carries its gain ratio in the config kernel, so
// the scalar gain correction is only applied when the config kernel is
// unity. Calibration is safe for concurrent use on different channels.
type Calibration struct {
	db           Parameters
	log          logrus.FieldLogger
	compensateRC bool
	checkRMS     bool
}

// CalibrationOption configures a Calibration.
type CalibrationOption func(*Calibration)

// WithCalibrationLogger sets the logger. The default is
// logrus.StandardLogger().
func WithCalibrationLogger(l logrus.FieldLogger) CalibrationOption {
	return func(c *Calibration) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRCCompensation enables or disables dividing out the rcrc kernel.
// It is enabled by default.
func WithRCCompensation(on bool) CalibrationOption {
	return func(c *Calibration) {
		c.compensateRC = on
	}
}

// WithRMSCheck enables or disables the RMS bound check. It is enabled by
// default.
func WithRMSCheck(on bool) CalibrationOption {
	return func(c *Calibration) {
		c.checkRMS = on
	}
}

// NewCalibration returns a calibration filter reading from db.
func NewCalibration(db Parameters, opts ...CalibrationOption) *Calibration {
	c := &Calibration{
		db:           db,
		log:          logrus.StandardLogger(),
		compensateRC: true,
		checkRMS:     true,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// FilterChannel calibrates signal in place.
func (c *Calibration) FilterChannel(ch int, signal []float64) (frame.MaskMap, error) {
	rec, err := c.db.Record(ch)
	if err != nil {
		return nil, fmt.Errorf("filters: calibration: %w", err)
	}

	if rec.NominalBaseline != 0 {
		for i := range signal {
			signal[i] -= rec.NominalBaseline
		}
	}

	if rec.GainCorrection != 1 && rec.Config.IsUnity() {
		vecmath.ScaleBlock(signal, signal, rec.GainCorrection)
	}

	err = c.spectral(rec, signal)
	if err != nil {
		return nil, err
	}

	if !c.checkRMS {
		return nil, nil
	}

	rms, ok := windowRMS(signal, rec.PadWindowFront, rec.PadWindowBack)
	if !ok || (rms >= rec.MinRMSCut && rms <= rec.MaxRMSCut) {
		return nil, nil
	}

	c.log.WithFields(logrus.Fields{
		"channel": ch,
		"rms":     rms,
		"min":     rec.MinRMSCut,
		"max":     rec.MaxRMSCut,
	}).Debug("channel outside rms bounds")

	return frame.MaskMap{
		NoisyMask: {ch: {{Begin: 0, End: len(signal)}}},
	}, nil
}

// spectral applies the channel's frequency-domain kernels. It does nothing
// when every kernel involved is unity.
func (c *Calibration) spectral(rec noisedb.Record, signal []float64) error {
	rc := c.compensateRC && !rec.RCRC.IsUnity() && !rec.RCRC.IsEmpty()
	if rec.Config.IsUnity() && rec.Noise.IsUnity() && !rc {
		return nil
	}

	t := c.db.Transform()
	if t == nil {
		return ErrNoTransform
	}

	spec, err := t.ForwardReal(signal)
	if err != nil {
		return fmt.Errorf("filters: calibration forward: %w", err)
	}

	rec.Config.Apply(spec)
	rec.Noise.Apply(spec)

	if rc {
		rec.RCRC.ApplyInverse(spec)
		spec[0] = 0
	}

	err = t.InverseReal(signal, spec)
	if err != nil {
		return fmt.Errorf("filters: calibration inverse: %w", err)
	}

	return nil
}

// windowRMS returns the RMS of signal[front:len-back]. ok is false when
// that window is empty.
func windowRMS(signal []float64, front, back int) (rms float64, ok bool) {
	lo := max(front, 0)
	hi := len(signal) - max(back, 0)

	if hi <= lo {
		return 0, false
	}

	sum := 0.0
	for _, v := range signal[lo:hi] {
		sum += v * v
	}

	return math.Sqrt(sum / float64(hi-lo)), true
}
