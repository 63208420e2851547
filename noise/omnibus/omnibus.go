// Package omnibus runs per-channel and per-group noise filters over a frame
// and merges every bad-region mask into one.
//
// For each frame:
//
//  1. all named input masks are merged into the working masks;
//  2. every configured bad channel is marked bad over [0, nsamples);
//  3. each present channel gets a working buffer, zero-filled for bad
//     channels and a copy of the trace otherwise;
//  4. channel filters run in order on each buffer;
//  5. group filters run in order on each coherent group whose members are
//     all present, groups strictly in configuration order;
//  6. the output frame carries the final buffers, in ascending channel
//     order, and the merged masks.
//
// By default every mask source, from the input frame or from a filter, is
// merged under the name "bad". WithMaskMap routes named sources to other
// output categories; unmapped sources and bad channels still go to "bad".
//
// Steps 3 and 4 may run on several workers; filters then must be safe for
// concurrent use on different channels.
package omnibus

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/algo-noise/noise/frame"
)

// ErrNilFrame is returned by Process when given no frame.
var ErrNilFrame = errors.New("omnibus: nil frame")

// ChannelFilter rewrites one channel's samples in place and reports any bad
// regions it found.
type ChannelFilter interface {
	FilterChannel(ch int, signal []float64) (frame.MaskMap, error)
}

// GroupFilter rewrites any member of a coherent group in place and reports
// any bad regions it found.
type GroupFilter interface {
	FilterGroup(group map[int][]float64) (frame.MaskMap, error)
}

// ChannelFilterFunc adapts a function to ChannelFilter.
type ChannelFilterFunc func(ch int, signal []float64) (frame.MaskMap, error)

// FilterChannel calls f.
func (f ChannelFilterFunc) FilterChannel(ch int, signal []float64) (frame.MaskMap, error) {
	return f(ch, signal)
}

// GroupFilterFunc adapts a function to GroupFilter.
type GroupFilterFunc func(group map[int][]float64) (frame.MaskMap, error)

// FilterGroup calls f.
func (f GroupFilterFunc) FilterGroup(group map[int][]float64) (frame.MaskMap, error) {
	return f(group)
}

// NoiseDB is the part of the noise database the pipeline reads.
type NoiseDB interface {
	NumberSamples() int
	BadChannels() []int
	CoherentChannels() [][]int
}

// Filter is the omnibus pipeline. It is not safe for concurrent Process
// calls; frames are processed one at a time.
type Filter struct {
	channel  []ChannelFilter
	group    []GroupFilter
	workers  int
	log      logrus.FieldLogger
	metrics  *Metrics
	maskMap  map[string]string
	nsamples int
	bad      []int
	groups   [][]int
}

// Option configures a Filter.
type Option func(*Filter)

// WithChannelFilters appends per-channel filters, run in the given order.
func WithChannelFilters(fs ...ChannelFilter) Option {
	return func(f *Filter) {
		f.channel = append(f.channel, fs...)
	}
}

// WithGroupFilters appends per-group filters, run in the given order.
func WithGroupFilters(fs ...GroupFilter) Option {
	return func(f *Filter) {
		f.group = append(f.group, fs...)
	}
}

// WithWorkers sets how many channels are filtered concurrently. Values
// below 1 mean 1.
func WithWorkers(n int) Option {
	return func(f *Filter) {
		f.workers = max(n, 1)
	}
}

// WithLogger sets the logger. The default is logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *Filter) {
		if l != nil {
			f.log = l
		}
	}
}

// WithMetrics records per-frame counters into m.
func WithMetrics(m *Metrics) Option {
	return func(f *Filter) {
		f.metrics = m
	}
}

// WithMaskMap routes mask sources to output categories, e.g.
// {"chirp": "bad", "noisy": "noisy"}. Sources not in m are merged under
// "bad".
func WithMaskMap(m map[string]string) Option {
	return func(f *Filter) {
		f.maskMap = maps.Clone(m)
	}
}

// New returns a pipeline reading its run settings from db. The bad-channel
// and group lists are read once here.
func New(db NoiseDB, opts ...Option) *Filter {
	f := &Filter{
		workers: 1,
		log:     logrus.StandardLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	f.nsamples = db.NumberSamples()
	f.bad = db.BadChannels()
	f.groups = db.CoherentChannels()

	return f
}

// Process filters in and returns a new frame. in is not modified.
func (f *Filter) Process(in *frame.Frame) (*frame.Frame, error) {
	if in == nil {
		return nil, ErrNilFrame
	}

	start := time.Now()

	masks := frame.MaskMap{frame.BadMask: frame.ChannelMasks{}}
	f.mergeMasks(masks, in.Masks)

	isBad := make(map[int]bool, len(f.bad))
	for _, ch := range f.bad {
		isBad[ch] = true
		masks[frame.BadMask].Add(ch, frame.BinRange{Begin: 0, End: f.nsamples})
	}

	traces := make(map[int][]float64, len(in.Traces))
	for _, tr := range in.Traces {
		traces[tr.Channel] = tr.Charge
	}

	channels := slices.Sorted(maps.Keys(traces))

	buffers, err := f.filterChannels(channels, traces, isBad, masks)
	if err != nil {
		return nil, err
	}

	skipped, err := f.filterGroups(buffers, masks)
	if err != nil {
		return nil, err
	}

	for name, cm := range masks {
		cm.Normalize()

		if len(cm) == 0 && name != frame.BadMask {
			delete(masks, name)
		}
	}

	out := &frame.Frame{
		Ident:  in.Ident,
		Time:   in.Time,
		Tick:   in.Tick,
		Traces: make([]frame.Trace, 0, len(channels)),
		Masks:  masks,
	}

	for _, ch := range channels {
		out.Traces = append(out.Traces, frame.Trace{Channel: ch, Tbin: 0, Charge: buffers[ch]})
	}

	f.metrics.observe(len(channels), skipped, masks[frame.BadMask], time.Since(start))

	f.log.WithFields(logrus.Fields{
		"frame":          in.Ident,
		"channels":       len(channels),
		"groups_skipped": skipped,
		"masked":         len(masks[frame.BadMask]),
		"elapsed":        time.Since(start),
	}).Debug("frame filtered")

	return out, nil
}

// filterChannels builds each channel's working buffer and runs the channel
// filters on it.
func (f *Filter) filterChannels(
	channels []int,
	traces map[int][]float64,
	isBad map[int]bool,
	masks frame.MaskMap,
) (map[int][]float64, error) {
	var mu sync.Mutex

	results := make([][]float64, len(channels))

	var g errgroup.Group
	g.SetLimit(f.workers)

	for i, ch := range channels {
		g.Go(func() error {
			var buf []float64
			if isBad[ch] {
				buf = make([]float64, f.nsamples)
			} else {
				buf = slices.Clone(traces[ch])
			}

			for _, cf := range f.channel {
				found, err := cf.FilterChannel(ch, buf)
				if err != nil {
					return fmt.Errorf("omnibus: channel %d: %w", ch, err)
				}

				if len(found) > 0 {
					mu.Lock()
					f.mergeMasks(masks, found)
					mu.Unlock()
				}
			}

			results[i] = buf

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	buffers := make(map[int][]float64, len(channels))
	for i, ch := range channels {
		buffers[ch] = results[i]
	}

	return buffers, nil
}

// filterGroups runs the group filters on every fully present group and
// returns how many groups were skipped.
func (f *Filter) filterGroups(buffers map[int][]float64, masks frame.MaskMap) (int, error) {
	skipped := 0

	for gi, members := range f.groups {
		sub := make(map[int][]float64, len(members))

		complete := true
		for _, ch := range members {
			buf, ok := buffers[ch]
			if !ok {
				complete = false
				break
			}

			sub[ch] = buf
		}

		if !complete {
			skipped++

			f.log.WithField("group", gi).Debug("coherent group incomplete, skipped")

			continue
		}

		for _, gf := range f.group {
			found, err := gf.FilterGroup(sub)
			if err != nil {
				return skipped, fmt.Errorf("omnibus: group %d: %w", gi, err)
			}

			f.mergeMasks(masks, found)
		}

		for ch, buf := range sub {
			buffers[ch] = buf
		}
	}

	return skipped, nil
}

// mergeMasks adds every source of src to its output category in dst.
func (f *Filter) mergeMasks(dst, src frame.MaskMap) {
	for name, cm := range src {
		cat, ok := f.maskMap[name]
		if !ok {
			cat = frame.BadMask
		}

		d, ok := dst[cat]
		if !ok {
			d = frame.ChannelMasks{}
			dst[cat] = d
		}

		d.Merge(cm)
	}
}
