// Package frame holds the per-acquisition containers consumed and produced by
// the noise filtering pipeline: traces of per-channel samples, and named
// bad-region masks.
package frame

import "time"

// Trace is one channel's samples. Tbin is the offset of Charge[0] from the
// frame start, in ticks.
type Trace struct {
	Channel int       `json:"channel"`
	Tbin    int       `json:"tbin"`
	Charge  []float64 `json:"charge"`
}

// Frame is one time-aligned snapshot across channels.
type Frame struct {
	Ident  int           `json:"ident"`
	Time   float64       `json:"time"`
	Tick   time.Duration `json:"tick"`
	Traces []Trace       `json:"traces"`
	Masks  MaskMap       `json:"masks,omitempty"`
}

// Channels returns the channel ids of f's traces in trace order.
func (f *Frame) Channels() []int {
	out := make([]int, len(f.Traces))
	for i, tr := range f.Traces {
		out[i] = tr.Channel
	}

	return out
}

// Trace returns the last trace for channel ch, if any.
func (f *Frame) Trace(ch int) (Trace, bool) {
	for i := len(f.Traces) - 1; i >= 0; i-- {
		if f.Traces[i].Channel == ch {
			return f.Traces[i], true
		}
	}

	return Trace{}, false
}
