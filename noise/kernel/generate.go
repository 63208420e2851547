package kernel

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"github.com/cwbudde/algo-noise/dsp/fourier"
	"github.com/cwbudde/algo-noise/dsp/response"
)

// Generator errors.
var (
	ErrInvalidFrame    = errors.New("kernel: samples and tick must be positive")
	ErrNoFieldResponse = errors.New("kernel: no field response configured")
	ErrInvalidWaveform = errors.New("kernel: empty response waveform")
)

// ratioFloor is the minimum denominator magnitude in a reconfiguration
// ratio, relative to the peak of the source spectrum. minRatioFloor is the
// absolute floor used when the source spectrum is all zero.
const (
	ratioFloor    = 1e-12
	minRatioFloor = 1e-30
)

// Resolution sets the quantization step of each cache key.
type Resolution struct {
	// RCRC is the step for RC time constants.
	RCRC time.Duration `yaml:"rcrc"`
	// Gain is the step for amplifier gains, in mV/fC.
	Gain float64 `yaml:"gain"`
	// Shaping is the step for shaping times.
	Shaping time.Duration `yaml:"shaping"`
}

// DefaultResolution returns 1µs for RC constants, 0.1 mV/fC for gains and
// 0.1µs for shaping times.
func DefaultResolution() Resolution {
	return Resolution{
		RCRC:    time.Microsecond,
		Gain:    0.1,
		Shaping: 100 * time.Nanosecond,
	}
}

func (r Resolution) withDefaults() Resolution {
	def := DefaultResolution()
	if r.RCRC <= 0 {
		r.RCRC = def.RCRC
	}

	if r.Gain <= 0 {
		r.Gain = def.Gain
	}

	if r.Shaping <= 0 {
		r.Shaping = def.Shaping
	}

	return r
}

// Band overwrites bins Lo..Hi inclusive with Value.
type Band struct {
	Value float64 `yaml:"value" json:"value"`
	Lo    int     `yaml:"lobin" json:"lobin"`
	Hi    int     `yaml:"hibin" json:"hibin"`
}

// Region is one wire region's averaged field response: a set of induced
// current paths sampled at the frame tick.
type Region struct {
	Paths [][]float64 `yaml:"paths" json:"paths"`
}

// FieldResponse supplies per-plane averaged field responses.
type FieldResponse interface {
	PlaneRegions(plane int) ([]Region, error)
}

// ReconfigKey is the quantized cache key of a reconfiguration kernel.
type ReconfigKey struct {
	FromGain, FromShaping, ToGain, ToShaping int64
}

// ResponseSource distinguishes the two response key spaces.
type ResponseSource int

const (
	SourcePlane ResponseSource = iota
	SourceWaveform
)

// ResponseKey is the cache key of a response kernel.
type ResponseKey struct {
	Source ResponseSource
	ID     int
}

// Generator builds kernels for one frame length and tick, memoizing the
// cacheable kinds.
type Generator struct {
	n     int
	tick  time.Duration
	fft   *fourier.Transform
	unity *Kernel
	res   Resolution
	field FieldResponse

	rcrc     *Cache[int64]
	reconfig *Cache[ReconfigKey]
	response *Cache[ResponseKey]
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithResolution sets cache-key quantization. Non-positive fields keep
// their defaults.
func WithResolution(r Resolution) GeneratorOption {
	return func(g *Generator) {
		g.res = r.withDefaults()
	}
}

// WithFieldResponse sets the collaborator used for plane responses.
func WithFieldResponse(fr FieldResponse) GeneratorOption {
	return func(g *Generator) {
		g.field = fr
	}
}

// NewGenerator returns a generator for frames of n samples at tick.
func NewGenerator(n int, tick time.Duration, opts ...GeneratorOption) (*Generator, error) {
	if n <= 0 || tick <= 0 {
		return nil, fmt.Errorf("%w: n=%d tick=%v", ErrInvalidFrame, n, tick)
	}

	fft, err := fourier.New(n)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		n:        n,
		tick:     tick,
		fft:      fft,
		unity:    Unity(n),
		res:      DefaultResolution(),
		rcrc:     NewCache[int64](),
		reconfig: NewCache[ReconfigKey](),
		response: NewCache[ResponseKey](),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g, nil
}

// Len returns the kernel length.
func (g *Generator) Len() int {
	return g.n
}

// Tick returns the sample period.
func (g *Generator) Tick() time.Duration {
	return g.tick
}

// Transform returns the generator's transform, shared with callers that
// need to move signals into the kernel domain.
func (g *Generator) Transform() *fourier.Transform {
	return g.fft
}

// Unity returns the shared identity kernel. Callers must not modify it.
func (g *Generator) Unity() *Kernel {
	return g.unity
}

// RCRC returns the squared spectrum of a single RC high-pass stage with
// time constant tau, modelling two identical cascaded stages. A
// non-positive tau means no RC stage and yields the unity kernel.
func (g *Generator) RCRC(tau time.Duration) (*Kernel, error) {
	if tau <= 0 {
		return g.unity, nil
	}

	key := quantizeDuration(tau, g.res.RCRC)

	return g.rcrc.Get(key, func() (*Kernel, error) {
		spec, err := g.fft.ForwardReal(response.RCWaveform(g.n, g.tick, tau))
		if err != nil {
			return nil, fmt.Errorf("kernel: rcrc transform: %w", err)
		}

		for i, v := range spec {
			spec[i] = v * v
		}

		return wrap(spec), nil
	})
}

// Reconfig returns the bin-wise ratio of the to-electronics spectrum over
// the from-electronics spectrum. If either side is not a valid amplifier
// configuration the unity kernel is returned.
func (g *Generator) Reconfig(from, to response.Electronics) (*Kernel, error) {
	if !from.Valid() || !to.Valid() {
		return g.unity, nil
	}

	key := ReconfigKey{
		FromGain:    quantize(from.Gain, g.res.Gain),
		FromShaping: quantizeDuration(from.Shaping, g.res.Shaping),
		ToGain:      quantize(to.Gain, g.res.Gain),
		ToShaping:   quantizeDuration(to.Shaping, g.res.Shaping),
	}

	return g.reconfig.Get(key, func() (*Kernel, error) {
		num, err := g.fft.ForwardReal(response.ColdElecWaveform(g.n, g.tick, to))
		if err != nil {
			return nil, fmt.Errorf("kernel: reconfig transform: %w", err)
		}

		den, err := g.fft.ForwardReal(response.ColdElecWaveform(g.n, g.tick, from))
		if err != nil {
			return nil, fmt.Errorf("kernel: reconfig transform: %w", err)
		}

		return wrap(divideFloored(num, den)), nil
	})
}

// divideFloored returns num/den bin-wise, raising any denominator whose
// magnitude is below ratioFloor times the peak to that floor while keeping
// its phase.
func divideFloored(num, den []complex128) []complex128 {
	peak := 0.0
	for _, d := range den {
		peak = math.Max(peak, cmplx.Abs(d))
	}

	floor := math.Max(peak*ratioFloor, minRatioFloor)

	out := make([]complex128, len(num))
	for i := range out {
		d := den[i]

		mag := cmplx.Abs(d)
		switch {
		case mag == 0:
			d = complex(floor, 0)
		case mag < floor:
			d *= complex(floor/mag, 0)
		}

		out[i] = num[i] / d
	}

	return out
}

// GainRatio returns to.Gain / from.Gain, or 1 when from has no gain.
func GainRatio(from, to response.Electronics) float64 {
	if from.Gain <= 0 || to.Gain <= 0 {
		return 1
	}

	return to.Gain / from.Gain
}

// FreqMask starts from unity and overwrites each band's inclusive bin range
// with its value, in order, so later bands win on overlap. Band limits are
// clamped to the kernel. No bands yields the shared unity kernel.
func (g *Generator) FreqMask(bands []Band) *Kernel {
	if len(bands) == 0 {
		return g.unity
	}

	bins := g.unity.Bins()
	last := len(bins) - 1

	for _, b := range bands {
		lo := max(b.Lo, 0)
		hi := min(b.Hi, last)

		for i := lo; i <= hi; i++ {
			bins[i] = complex(b.Value, 0)
		}
	}

	return wrap(bins)
}

// PlaneResponse sums the averaged field-response path currents of every
// region of plane, sample-wise over the frame, and transforms the sum.
func (g *Generator) PlaneResponse(plane int) (*Kernel, error) {
	if g.field == nil {
		return nil, ErrNoFieldResponse
	}

	return g.response.Get(ResponseKey{Source: SourcePlane, ID: plane}, func() (*Kernel, error) {
		regions, err := g.field.PlaneRegions(plane)
		if err != nil {
			return nil, fmt.Errorf("kernel: field response of plane %d: %w", plane, err)
		}

		sum := make([]float64, g.n)
		for _, r := range regions {
			for _, path := range r.Paths {
				for i := 0; i < len(path) && i < g.n; i++ {
					sum[i] += path[i]
				}
			}
		}

		spec, err := g.fft.ForwardReal(sum)
		if err != nil {
			return nil, fmt.Errorf("kernel: response transform: %w", err)
		}

		return wrap(spec), nil
	})
}

// WaveformResponse transforms an explicit response waveform, zero-padded or
// truncated to the frame length, cached under id.
func (g *Generator) WaveformResponse(id int, samples []float64) (*Kernel, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: id %d", ErrInvalidWaveform, id)
	}

	return g.response.Get(ResponseKey{Source: SourceWaveform, ID: id}, func() (*Kernel, error) {
		spec, err := g.fft.ForwardReal(samples)
		if err != nil {
			return nil, fmt.Errorf("kernel: response transform: %w", err)
		}

		return wrap(spec), nil
	})
}

// Stats reports the three memoizing caches.
func (g *Generator) Stats() GeneratorStats {
	return GeneratorStats{
		RCRC:     g.rcrc.Stats(),
		Reconfig: g.reconfig.Stats(),
		Response: g.response.Stats(),
	}
}

// GeneratorStats groups per-cache statistics.
type GeneratorStats struct {
	RCRC     CacheStats
	Reconfig CacheStats
	Response CacheStats
}

func quantize(v, step float64) int64 {
	return int64(math.Round(v / step))
}

func quantizeDuration(d, step time.Duration) int64 {
	return int64(math.Round(float64(d) / float64(step)))
}
