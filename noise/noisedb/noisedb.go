// Package noisedb holds per-channel noise-filter parameters and the
// frequency-domain kernels derived from them.
//
// A DB is configured once from a Config: the channel table is sized to the
// anode, the bad-channel and coherent-group lists are stored, and each
// Directive is applied in order. After configuration the DB is read-only
// and its accessors are safe for concurrent use. Configure and Update must
// not run concurrently with readers.
//
// Channels never touched by a directive keep identity defaults: zero
// baseline and offset, unity gain, RMS bounds 0.5..10, no padding, unity
// rcrc/config/noise kernels and the empty response kernel.
package noisedb

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-noise/dsp/fourier"
	"github.com/cwbudde/algo-noise/noise/kernel"
)

// Database errors.
var (
	ErrChannelOutOfRange = errors.New("noisedb: channel out of range")
	ErrConfig            = errors.New("noisedb: configuration error")
	ErrNotConfigured     = errors.New("noisedb: not configured")
)

// Record defaults.
const (
	DefaultMinRMSCut = 0.5
	DefaultMaxRMSCut = 10.0
)

// Record is one channel's parameters. Kernels are shared and must not be
// modified.
type Record struct {
	Channel         int
	NominalBaseline float64
	GainCorrection  float64
	ResponseOffset  float64
	MinRMSCut       float64
	MaxRMSCut       float64
	PadWindowFront  int
	PadWindowBack   int

	RCRC     *kernel.Kernel
	Config   *kernel.Kernel
	Noise    *kernel.Kernel
	Response *kernel.Kernel
}

// DB is the noise parameter database.
type DB struct {
	log logrus.FieldLogger
	res *kernel.Resolution
	st  *state
}

type state struct {
	nsamples int
	tick     time.Duration
	anode    Anode
	gen      *kernel.Generator
	records  []Record
	bad      []int
	groups   [][]int
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger. The default is logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(db *DB) {
		if l != nil {
			db.log = l
		}
	}
}

// WithResolution overrides Config.Resolution.
func WithResolution(r kernel.Resolution) Option {
	return func(db *DB) {
		db.res = &r
	}
}

// New returns an unconfigured DB.
func New(opts ...Option) *DB {
	db := &DB{log: logrus.StandardLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt(db)
		}
	}

	return db
}

// Configure replaces the DB contents with cfg. On error the previous
// contents are kept.
func (db *DB) Configure(cfg Config) error {
	if cfg.NSamples <= 0 || cfg.Tick <= 0 {
		return fmt.Errorf("%w: nsamples=%d tick=%v", ErrConfig, cfg.NSamples, cfg.Tick)
	}

	if cfg.Anode == nil {
		return fmt.Errorf("%w: no anode", ErrConfig)
	}

	nchan, err := contiguousChannels(cfg.Anode)
	if err != nil {
		return err
	}

	res := cfg.Resolution
	if db.res != nil {
		res = *db.res
	}

	gen, err := kernel.NewGenerator(cfg.NSamples, cfg.Tick,
		kernel.WithResolution(res),
		kernel.WithFieldResponse(cfg.FieldResponse))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	st := &state{
		nsamples: cfg.NSamples,
		tick:     cfg.Tick,
		anode:    cfg.Anode,
		gen:      gen,
		records:  make([]Record, nchan),
	}

	for ch := range st.records {
		st.records[ch] = Record{
			Channel:        ch,
			GainCorrection: 1,
			MinRMSCut:      DefaultMinRMSCut,
			MaxRMSCut:      DefaultMaxRMSCut,
			RCRC:           gen.Unity(),
			Config:         gen.Unity(),
			Noise:          gen.Unity(),
			Response:       kernel.Empty,
		}
	}

	st.bad = slices.Clone(cfg.BadChannels)
	slices.Sort(st.bad)
	st.bad = slices.Compact(st.bad)

	for _, ch := range st.bad {
		if !st.inRange(ch) {
			return fmt.Errorf("%w: bad channel: %w: %d", ErrConfig, ErrChannelOutOfRange, ch)
		}
	}

	st.groups = make([][]int, len(cfg.Groups))
	for i, g := range cfg.Groups {
		for _, ch := range g {
			if !st.inRange(ch) {
				return fmt.Errorf("%w: group %d: %w: %d", ErrConfig, i, ErrChannelOutOfRange, ch)
			}
		}

		st.groups[i] = slices.Clone(g)
	}

	for i, d := range cfg.Directives {
		err := db.apply(st, d)
		if err != nil {
			return fmt.Errorf("directive %d: %w", i, err)
		}
	}

	db.st = st

	db.log.WithFields(logrus.Fields{
		"channels":   nchan,
		"nsamples":   st.nsamples,
		"tick":       st.tick,
		"bad":        len(st.bad),
		"groups":     len(st.groups),
		"directives": len(cfg.Directives),
	}).Info("noise database configured")

	return nil
}

// Update applies one directive to the configured DB.
func (db *DB) Update(d Directive) error {
	if db.st == nil {
		return ErrNotConfigured
	}

	return db.apply(db.st, d)
}

func (db *DB) apply(st *state, d Directive) error {
	chans, err := d.Channels.Resolve(st.anode)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	for _, ch := range chans {
		if !st.inRange(ch) {
			return fmt.Errorf("%w: %s: %w: %d", ErrConfig, d.Channels, ErrChannelOutOfRange, ch)
		}
	}

	if len(chans) == 0 {
		db.log.WithField("selector", d.Channels.String()).Warn("noise directive selects no channels")
		return nil
	}

	fields := make([]func(*Record), 0, 10)

	if d.NominalBaseline != nil {
		v := *d.NominalBaseline
		fields = append(fields, func(r *Record) { r.NominalBaseline = v })
	}

	if d.GainCorrection != nil {
		v := *d.GainCorrection
		fields = append(fields, func(r *Record) { r.GainCorrection = v })
	}

	if d.Reconfig != nil {
		k, err := st.gen.Reconfig(d.Reconfig.From, d.Reconfig.To)
		if err != nil {
			return fmt.Errorf("%w: reconfig: %w", ErrConfig, err)
		}

		gain := kernel.GainRatio(d.Reconfig.From, d.Reconfig.To)
		fields = append(fields, func(r *Record) {
			r.Config = k
			r.GainCorrection = gain
		})
	}

	if d.ResponseOffset != nil {
		v := *d.ResponseOffset
		fields = append(fields, func(r *Record) { r.ResponseOffset = v })
	}

	if d.MinRMSCut != nil {
		v := *d.MinRMSCut
		fields = append(fields, func(r *Record) { r.MinRMSCut = v })
	}

	if d.MaxRMSCut != nil {
		v := *d.MaxRMSCut
		fields = append(fields, func(r *Record) { r.MaxRMSCut = v })
	}

	if d.PadWindowFront != nil {
		v := *d.PadWindowFront
		fields = append(fields, func(r *Record) { r.PadWindowFront = v })
	}

	if d.PadWindowBack != nil {
		v := *d.PadWindowBack
		fields = append(fields, func(r *Record) { r.PadWindowBack = v })
	}

	if d.RCRC != nil {
		k, err := st.gen.RCRC(*d.RCRC)
		if err != nil {
			return fmt.Errorf("%w: rcrc: %w", ErrConfig, err)
		}

		fields = append(fields, func(r *Record) { r.RCRC = k })
	}

	if d.FreqMasks != nil {
		k := st.gen.FreqMask(*d.FreqMasks)
		fields = append(fields, func(r *Record) { r.Noise = k })
	}

	if d.Response != nil {
		k, err := st.response(*d.Response)
		if err != nil {
			return fmt.Errorf("%w: response: %w", ErrConfig, err)
		}

		fields = append(fields, func(r *Record) { r.Response = k })
	}

	for _, ch := range chans {
		rec := &st.records[ch]
		for _, set := range fields {
			set(rec)
		}
	}

	db.log.WithFields(logrus.Fields{
		"selector": d.Channels.String(),
		"channels": len(chans),
		"fields":   len(fields),
	}).Debug("noise directive applied")

	return nil
}

func (st *state) response(spec ResponseSpec) (*kernel.Kernel, error) {
	switch {
	case spec.Plane != nil:
		return st.gen.PlaneResponse(*spec.Plane)
	case len(spec.Waveform) > 0:
		return st.gen.WaveformResponse(spec.WaveformID, spec.Waveform)
	default:
		return kernel.Empty, nil
	}
}

func (st *state) inRange(ch int) bool {
	return ch >= 0 && ch < len(st.records)
}

func contiguousChannels(a Anode) (int, error) {
	chans := slices.Clone(a.Channels())
	slices.Sort(chans)

	for i, ch := range chans {
		if ch != i {
			return 0, fmt.Errorf("%w: anode channels not contiguous from 0 (position %d holds %d)", ErrConfig, i, ch)
		}
	}

	return len(chans), nil
}

func (db *DB) record(ch int) (*Record, error) {
	if db.st == nil || !db.st.inRange(ch) {
		return nil, fmt.Errorf("%w: %d", ErrChannelOutOfRange, ch)
	}

	return &db.st.records[ch], nil
}

// Record returns a copy of channel ch's record.
func (db *DB) Record(ch int) (Record, error) {
	r, err := db.record(ch)
	if err != nil {
		return Record{}, err
	}

	return *r, nil
}

// NominalBaseline returns the baseline of ch.
func (db *DB) NominalBaseline(ch int) (float64, error) {
	r, err := db.record(ch)
	if err != nil {
		return 0, err
	}

	return r.NominalBaseline, nil
}

// GainCorrection returns the multiplicative gain correction of ch.
func (db *DB) GainCorrection(ch int) (float64, error) {
	r, err := db.record(ch)
	if err != nil {
		return 0, err
	}

	return r.GainCorrection, nil
}

// ResponseOffset returns the response offset of ch.
func (db *DB) ResponseOffset(ch int) (float64, error) {
	r, err := db.record(ch)
	if err != nil {
		return 0, err
	}

	return r.ResponseOffset, nil
}

// MinRMSCut returns the lower RMS bound of ch.
func (db *DB) MinRMSCut(ch int) (float64, error) {
	r, err := db.record(ch)
	if err != nil {
		return 0, err
	}

	return r.MinRMSCut, nil
}

// MaxRMSCut returns the upper RMS bound of ch.
func (db *DB) MaxRMSCut(ch int) (float64, error) {
	r, err := db.record(ch)
	if err != nil {
		return 0, err
	}

	return r.MaxRMSCut, nil
}

// PadWindowFront returns the leading pad in samples.
func (db *DB) PadWindowFront(ch int) (int, error) {
	r, err := db.record(ch)
	if err != nil {
		return 0, err
	}

	return r.PadWindowFront, nil
}

// PadWindowBack returns the trailing pad in samples.
func (db *DB) PadWindowBack(ch int) (int, error) {
	r, err := db.record(ch)
	if err != nil {
		return 0, err
	}

	return r.PadWindowBack, nil
}

// RCRC returns the RC-decay kernel of ch.
func (db *DB) RCRC(ch int) (*kernel.Kernel, error) {
	r, err := db.record(ch)
	if err != nil {
		return nil, err
	}

	return r.RCRC, nil
}

// Config returns the reconfiguration kernel of ch.
func (db *DB) Config(ch int) (*kernel.Kernel, error) {
	r, err := db.record(ch)
	if err != nil {
		return nil, err
	}

	return r.Config, nil
}

// Noise returns the frequency-mask kernel of ch.
func (db *DB) Noise(ch int) (*kernel.Kernel, error) {
	r, err := db.record(ch)
	if err != nil {
		return nil, err
	}

	return r.Noise, nil
}

// Response returns the response kernel of ch, kernel.Empty if none.
func (db *DB) Response(ch int) (*kernel.Kernel, error) {
	r, err := db.record(ch)
	if err != nil {
		return nil, err
	}

	return r.Response, nil
}

// NumberSamples returns the configured samples per frame.
func (db *DB) NumberSamples() int {
	if db.st == nil {
		return 0
	}

	return db.st.nsamples
}

// SampleTime returns the configured sample period.
func (db *DB) SampleTime() time.Duration {
	if db.st == nil {
		return 0
	}

	return db.st.tick
}

// NumberChannels returns the size of the channel table.
func (db *DB) NumberChannels() int {
	if db.st == nil {
		return 0
	}

	return len(db.st.records)
}

// BadChannels returns the sorted bad-channel list.
func (db *DB) BadChannels() []int {
	if db.st == nil {
		return nil
	}

	return slices.Clone(db.st.bad)
}

// CoherentChannels returns the coherent groups in configuration order.
func (db *DB) CoherentChannels() [][]int {
	if db.st == nil {
		return nil
	}

	out := make([][]int, len(db.st.groups))
	for i, g := range db.st.groups {
		out[i] = slices.Clone(g)
	}

	return out
}

// Transform returns the frame-length transform shared with the kernels.
func (db *DB) Transform() *fourier.Transform {
	if db.st == nil {
		return nil
	}

	return db.st.gen.Transform()
}

// KernelStats reports the kernel caches.
func (db *DB) KernelStats() kernel.GeneratorStats {
	if db.st == nil {
		return kernel.GeneratorStats{}
	}

	return db.st.gen.Stats()
}
