// Package geometry provides in-memory channel geometry and field-response
// collaborators for the noise database.
package geometry

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-noise/noise/kernel"
)

// Geometry errors.
var (
	ErrUnknownChannel = errors.New("geometry: unknown channel")
	ErrUnknownPlane   = errors.New("geometry: unknown plane")
)

// Anode is a readout plane assembly whose channels are numbered
// contiguously plane after plane: plane 0 holds 0..n0-1, plane 1 holds
// n0..n0+n1-1, and so on.
type Anode struct {
	bounds []int // bounds[p] is the first channel of plane p+1
}

// NewAnode returns an anode with the given number of channels per plane.
func NewAnode(planeChannels ...int) (*Anode, error) {
	a := &Anode{bounds: make([]int, len(planeChannels))}

	next := 0
	for p, n := range planeChannels {
		if n < 0 {
			return nil, fmt.Errorf("geometry: plane %d has %d channels", p, n)
		}

		next += n
		a.bounds[p] = next
	}

	return a, nil
}

// NumPlanes returns the plane count.
func (a *Anode) NumPlanes() int {
	return len(a.bounds)
}

// NumChannels returns the total channel count.
func (a *Anode) NumChannels() int {
	if len(a.bounds) == 0 {
		return 0
	}

	return a.bounds[len(a.bounds)-1]
}

// Channels returns every channel id in ascending order.
func (a *Anode) Channels() []int {
	out := make([]int, a.NumChannels())
	for i := range out {
		out[i] = i
	}

	return out
}

// ChannelPlane returns the plane holding ch.
func (a *Anode) ChannelPlane(ch int) (int, error) {
	if ch < 0 {
		return 0, fmt.Errorf("%w: %d", ErrUnknownChannel, ch)
	}

	for p, end := range a.bounds {
		if ch < end {
			return p, nil
		}
	}

	return 0, fmt.Errorf("%w: %d", ErrUnknownChannel, ch)
}

// FieldResponse is a fixed table of averaged plane responses.
type FieldResponse struct {
	planes map[int][]kernel.Region
}

// NewFieldResponse returns an empty table.
func NewFieldResponse() *FieldResponse {
	return &FieldResponse{planes: make(map[int][]kernel.Region)}
}

// SetPlane stores the averaged regions of plane.
func (f *FieldResponse) SetPlane(plane int, regions ...kernel.Region) {
	f.planes[plane] = regions
}

// PlaneRegions returns the averaged regions of plane.
func (f *FieldResponse) PlaneRegions(plane int) ([]kernel.Region, error) {
	r, ok := f.planes[plane]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlane, plane)
	}

	return r, nil
}
