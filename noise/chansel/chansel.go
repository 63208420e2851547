// Package chansel resolves channel selector directives into channel ids.
//
// A selector has one of four shapes:
//
//	5                     single channel
//	[5, 9, 2]             explicit list, order and duplicates kept
//	{first: 10, last: 14} inclusive ascending range
//	{plane: 2}            every channel on a geometric plane
//
// In YAML a selector is written in exactly these shapes. Anything else
// decodes to an unrecognised selector that resolves to no channels.
package chansel

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Range selector errors.
var (
	ErrInvertedRange = errors.New("chansel: range last < first")
	ErrRangeTooLarge = errors.New("chansel: range spans too many channels")
)

// MaxRangeSpan is the largest number of channels a range selector may name.
const MaxRangeSpan = 1 << 20

// Kind identifies a selector shape.
type Kind int

const (
	// KindNone selects nothing. It is the zero value and the result of
	// decoding an unrecognised shape.
	KindNone Kind = iota
	KindSingle
	KindList
	KindRange
	KindPlane
)

// String returns the shape name.
func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindList:
		return "list"
	case KindRange:
		return "range"
	case KindPlane:
		return "plane"
	default:
		return "none"
	}
}

// PlaneResolver enumerates channels and maps each to its plane.
type PlaneResolver interface {
	Channels() []int
	ChannelPlane(ch int) (int, error)
}

// Selector is one parsed channel directive.
type Selector struct {
	kind        Kind
	ids         []int
	first, last int
	plane       int
}

// Single selects one channel.
func Single(ch int) Selector {
	return Selector{kind: KindSingle, ids: []int{ch}}
}

// List selects ids verbatim.
func List(ids ...int) Selector {
	return Selector{kind: KindList, ids: append([]int(nil), ids...)}
}

// Range selects first..last inclusive.
func Range(first, last int) Selector {
	return Selector{kind: KindRange, first: first, last: last}
}

// Plane selects every channel on plane.
func Plane(plane int) Selector {
	return Selector{kind: KindPlane, plane: plane}
}

// Kind returns the selector shape.
func (s Selector) Kind() Kind {
	return s.kind
}

// Validate reports configuration errors in s.
func (s Selector) Validate() error {
	if s.kind != KindRange {
		return nil
	}

	if s.last < s.first {
		return fmt.Errorf("%w: first=%d last=%d", ErrInvertedRange, s.first, s.last)
	}

	// The unsigned difference is exact for last >= first at any magnitude.
	if uint64(s.last)-uint64(s.first) >= MaxRangeSpan {
		return fmt.Errorf("%w: first=%d last=%d", ErrRangeTooLarge, s.first, s.last)
	}

	return nil
}

// Resolve returns the ordered channel ids s denotes. geom is consulted only
// for plane selectors and may be nil otherwise; a plane selector with a nil
// geom selects nothing.
func (s Selector) Resolve(geom PlaneResolver) ([]int, error) {
	switch s.kind {
	case KindSingle, KindList:
		return append([]int(nil), s.ids...), nil
	case KindRange:
		err := s.Validate()
		if err != nil {
			return nil, err
		}

		out := make([]int, 0, s.last-s.first+1)
		for ch := s.first; ch <= s.last; ch++ {
			out = append(out, ch)
		}

		return out, nil
	case KindPlane:
		if geom == nil {
			return nil, nil
		}

		var out []int

		for _, ch := range geom.Channels() {
			p, err := geom.ChannelPlane(ch)
			if err != nil {
				return nil, fmt.Errorf("chansel: plane of channel %d: %w", ch, err)
			}

			if p == s.plane {
				out = append(out, ch)
			}
		}

		return out, nil
	default:
		return nil, nil
	}
}

// String describes s for logs.
func (s Selector) String() string {
	switch s.kind {
	case KindSingle:
		return fmt.Sprintf("channel %d", s.ids[0])
	case KindList:
		return fmt.Sprintf("%d listed channels", len(s.ids))
	case KindRange:
		return fmt.Sprintf("channels %d..%d", s.first, s.last)
	case KindPlane:
		return fmt.Sprintf("plane %d", s.plane)
	default:
		return "no channels"
	}
}

// UnmarshalYAML decodes any of the selector shapes. Unrecognised shapes
// leave s as KindNone without error.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	*s = Selector{}

	switch node.Kind {
	case yaml.ScalarNode:
		var ch int
		if node.Decode(&ch) == nil {
			*s = Single(ch)
		}
	case yaml.SequenceNode:
		var ids []int
		if node.Decode(&ids) == nil {
			*s = List(ids...)
		}
	case yaml.MappingNode:
		var m map[string]int
		if node.Decode(&m) != nil {
			return nil
		}

		first, hasFirst := m["first"]
		last, hasLast := m["last"]
		plane, hasPlane := m["plane"]

		switch {
		case hasFirst && hasLast && len(m) == 2:
			*s = Range(first, last)
		case hasPlane && len(m) == 1:
			*s = Plane(plane)
		}
	}

	return nil
}

// MarshalYAML writes s back in its source shape.
func (s Selector) MarshalYAML() (any, error) {
	switch s.kind {
	case KindSingle:
		return s.ids[0], nil
	case KindList:
		return s.ids, nil
	case KindRange:
		return map[string]int{"first": s.first, "last": s.last}, nil
	case KindPlane:
		return map[string]int{"plane": s.plane}, nil
	default:
		return nil, nil
	}
}
