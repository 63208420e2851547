package main

import (
	"bytes"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/cwbudde/algo-noise/noise/frame"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// readFrames decodes either a single frame object or an array of frames.
// array reports which form was read so output can mirror it.
func readFrames(r io.Reader) (frames []*frame.Frame, array bool, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("read frames: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false, fmt.Errorf("read frames: empty input")
	}

	if data[0] == '[' {
		err = json.Unmarshal(data, &frames)
		if err != nil {
			return nil, true, fmt.Errorf("decode frames: %w", err)
		}

		for i, f := range frames {
			if f == nil {
				return nil, true, fmt.Errorf("decode frames: frame %d is null", i)
			}
		}

		return frames, true, nil
	}

	var f frame.Frame

	err = json.Unmarshal(data, &f)
	if err != nil {
		return nil, false, fmt.Errorf("decode frame: %w", err)
	}

	return []*frame.Frame{&f}, false, nil
}

// writeFrames encodes frames as an array, or as a single object when array
// is false and there is exactly one frame.
func writeFrames(w io.Writer, frames []*frame.Frame, array bool) error {
	if frames == nil {
		frames = []*frame.Frame{}
	}

	var v any = frames
	if !array && len(frames) == 1 {
		v = frames[0]
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("encode frames: %w", err)
	}

	return nil
}
