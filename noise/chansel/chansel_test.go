package chansel

import (
	"errors"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

// planes puts channels 0..5 on plane 0 and 6..9 on plane 1, enumerated
// in descending order to check that geometry order is preserved.
type planes struct{}

func (planes) Channels() []int { return []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0} }

func (planes) ChannelPlane(ch int) (int, error) {
	if ch < 6 {
		return 0, nil
	}

	return 1, nil
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		sel  Selector
		want []int
	}{
		{"single", Single(7), []int{7}},
		{"list keeps order and duplicates", List(4, 2, 4), []int{4, 2, 4}},
		{"range", Range(10, 14), []int{10, 11, 12, 13, 14}},
		{"one element range", Range(3, 3), []int{3}},
		{"plane in geometry order", Plane(1), []int{9, 8, 7, 6}},
		{"unknown plane", Plane(7), nil},
		{"none", Selector{}, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.sel.Resolve(planes{})
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}

			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Resolve = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveInvertedRange(t *testing.T) {
	sel := Range(14, 10)

	if err := sel.Validate(); !errors.Is(err, ErrInvertedRange) {
		t.Fatalf("Validate error = %v, want ErrInvertedRange", err)
	}

	got, err := sel.Resolve(nil)
	if !errors.Is(err, ErrInvertedRange) {
		t.Fatalf("Resolve error = %v, want ErrInvertedRange", err)
	}

	if len(got) != 0 {
		t.Fatalf("Resolve = %v, want empty", got)
	}
}

func TestResolveHugeRange(t *testing.T) {
	for _, doc := range []string{
		"{first: 0, last: 9223372036854775807}",
		"{first: -9223372036854775808, last: 9223372036854775807}",
		"{first: 0, last: 99999999999}",
	} {
		var sel Selector
		if err := yaml.Unmarshal([]byte(doc), &sel); err != nil {
			t.Fatalf("Unmarshal(%s): %v", doc, err)
		}

		got, err := sel.Resolve(nil)
		if !errors.Is(err, ErrRangeTooLarge) {
			t.Fatalf("Resolve(%s) error = %v, want ErrRangeTooLarge", doc, err)
		}

		if got != nil {
			t.Fatalf("Resolve(%s) returned %d ids", doc, len(got))
		}
	}

	got, err := Range(0, MaxRangeSpan-1).Resolve(nil)
	if err != nil || len(got) != MaxRangeSpan {
		t.Fatalf("largest range: %d ids, err %v", len(got), err)
	}
}

func TestResolvePlaneWithoutGeometry(t *testing.T) {
	got, err := Plane(0).Resolve(nil)
	if err != nil || got != nil {
		t.Fatalf("Resolve = %v, %v; want nil, nil", got, err)
	}
}

func TestListDoesNotAlias(t *testing.T) {
	ids := []int{1, 2}
	sel := List(ids...)
	ids[0] = 99

	got, _ := sel.Resolve(nil)
	got[1] = 42

	again, _ := sel.Resolve(nil)
	if !reflect.DeepEqual(again, []int{1, 2}) {
		t.Fatalf("Resolve = %v, want [1 2]", again)
	}
}

func TestUnmarshalYAML(t *testing.T) {
	tests := []struct {
		src  string
		kind Kind
		want []int
	}{
		{"channels: 5", KindSingle, []int{5}},
		{"channels: [3, 1, 3]", KindList, []int{3, 1, 3}},
		{"channels: {first: 10, last: 14}", KindRange, []int{10, 11, 12, 13, 14}},
		{"channels: {plane: 0}", KindPlane, []int{5, 4, 3, 2, 1, 0}},
		{"channels: {first: 1}", KindNone, nil},
		{"channels: {first: 1, last: 2, plane: 0}", KindNone, nil},
		{"channels: {wire: 3}", KindNone, nil},
		{"channels: abc", KindNone, nil},
		{"channels: [a, b]", KindNone, nil},
		{"other: 1", KindNone, nil},
	}

	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			var doc struct {
				Channels Selector `yaml:"channels"`
			}

			err := yaml.Unmarshal([]byte(tc.src), &doc)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}

			if doc.Channels.Kind() != tc.kind {
				t.Fatalf("Kind = %v, want %v", doc.Channels.Kind(), tc.kind)
			}

			got, err := doc.Channels.Resolve(planes{})
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}

			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Resolve = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMarshalYAMLRoundTrip(t *testing.T) {
	for _, sel := range []Selector{Single(2), List(4, 5), Range(1, 3), Plane(1)} {
		data, err := yaml.Marshal(sel)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", sel, err)
		}

		var back Selector

		err = yaml.Unmarshal(data, &back)
		if err != nil {
			t.Fatalf("Unmarshal(%q): %v", data, err)
		}

		if !reflect.DeepEqual(back, sel) {
			t.Fatalf("round trip of %v gave %v", sel, back)
		}
	}
}
