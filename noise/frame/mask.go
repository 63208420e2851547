package frame

import "sort"

// BadMask is the name of the unified mask set attached to cleaned frames.
const BadMask = "bad"

// BinRange is a half-open sample-index range [Begin, End).
type BinRange struct {
	Begin int `json:"begin" yaml:"begin"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the number of samples covered by r, zero if r is empty.
func (r BinRange) Len() int {
	if r.End <= r.Begin {
		return 0
	}

	return r.End - r.Begin
}

// BinRanges is an ordered list of ranges. Ranges may overlap, touch or be
// unsorted; coverage is what matters.
type BinRanges []BinRange

// Contains reports whether sample i lies in any range.
func (rs BinRanges) Contains(i int) bool {
	for _, r := range rs {
		if i >= r.Begin && i < r.End {
			return true
		}
	}

	return false
}

// Normalize returns the sorted, coalesced equivalent of rs. Empty ranges
// are dropped and overlapping or adjacent ranges are joined.
func (rs BinRanges) Normalize() BinRanges {
	if len(rs) == 0 {
		return nil
	}

	sorted := make(BinRanges, 0, len(rs))
	for _, r := range rs {
		if r.Len() > 0 {
			sorted = append(sorted, r)
		}
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Begin != sorted[j].Begin {
			return sorted[i].Begin < sorted[j].Begin
		}

		return sorted[i].End < sorted[j].End
	})

	out := sorted[:0]
	for _, r := range sorted {
		if n := len(out); n > 0 && r.Begin <= out[n-1].End {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}

			continue
		}

		out = append(out, r)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// Count returns the number of distinct samples covered.
func (rs BinRanges) Count() int {
	n := 0
	for _, r := range rs.Normalize() {
		n += r.Len()
	}

	return n
}

// ChannelMasks maps channel id to its bad ranges.
type ChannelMasks map[int]BinRanges

// Merge appends every range of src to the same channel in m. The result is
// the union of coverage; ranges are not coalesced.
func (m ChannelMasks) Merge(src ChannelMasks) {
	for ch, rs := range src {
		if len(rs) == 0 {
			continue
		}

		m[ch] = append(m[ch], rs...)
	}
}

// Add marks r bad on channel ch.
func (m ChannelMasks) Add(ch int, r BinRange) {
	m[ch] = append(m[ch], r)
}

// Normalize coalesces every channel's ranges in place and drops channels
// left with no coverage.
func (m ChannelMasks) Normalize() {
	for ch, rs := range m {
		n := rs.Normalize()
		if len(n) == 0 {
			delete(m, ch)
			continue
		}

		m[ch] = n
	}
}

// Equivalent reports whether m and o cover the same samples.
func (m ChannelMasks) Equivalent(o ChannelMasks) bool {
	a, b := m.clone(), o.clone()
	a.Normalize()
	b.Normalize()

	if len(a) != len(b) {
		return false
	}

	for ch, ra := range a {
		rb, ok := b[ch]
		if !ok || len(ra) != len(rb) {
			return false
		}

		for i := range ra {
			if ra[i] != rb[i] {
				return false
			}
		}
	}

	return true
}

func (m ChannelMasks) clone() ChannelMasks {
	out := make(ChannelMasks, len(m))
	for ch, rs := range m {
		out[ch] = append(BinRanges(nil), rs...)
	}

	return out
}

// MaskMap keys channel masks by source name, e.g. "chirp" or "noisy".
type MaskMap map[string]ChannelMasks
