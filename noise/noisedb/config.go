package noisedb

import (
	"time"

	"github.com/cwbudde/algo-noise/dsp/response"
	"github.com/cwbudde/algo-noise/noise/chansel"
	"github.com/cwbudde/algo-noise/noise/kernel"
)

// Anode enumerates channels and maps them to geometric planes. Channel ids
// must be contiguous from zero.
type Anode interface {
	Channels() []int
	ChannelPlane(ch int) (int, error)
}

// Config holds the run-wide settings applied by Configure.
type Config struct {
	// Tick is the sample period.
	Tick time.Duration `yaml:"tick"`
	// NSamples is the number of samples per frame and the kernel length.
	NSamples int `yaml:"nsamples"`

	// Anode resolves channels and planes.
	Anode Anode `yaml:"-"`
	// FieldResponse serves plane response kernels. It may be nil when no
	// directive uses a plane response.
	FieldResponse kernel.FieldResponse `yaml:"-"`

	// Groups lists channels sharing coherent noise.
	Groups [][]int `yaml:"groups"`
	// BadChannels lists channels unusable for the whole run.
	BadChannels []int `yaml:"bad"`
	// Directives are applied in order; later ones overwrite earlier ones
	// field by field.
	Directives []Directive `yaml:"channel_info"`

	// Resolution sets cache-key quantization; zero fields use defaults.
	Resolution kernel.Resolution `yaml:"resolution"`
}

// Directive updates the listed fields of every selected channel. A nil
// field is left untouched.
type Directive struct {
	Channels chansel.Selector `yaml:"channels"`

	NominalBaseline *float64 `yaml:"nominal_baseline"`
	// GainCorrection is applied before Reconfig, which also sets the gain
	// correction; when both are given Reconfig wins.
	GainCorrection *float64      `yaml:"gain_correction"`
	Reconfig       *ReconfigSpec `yaml:"reconfig"`
	ResponseOffset *float64      `yaml:"response_offset"`
	MinRMSCut      *float64      `yaml:"min_rms_cut"`
	MaxRMSCut      *float64      `yaml:"max_rms_cut"`
	PadWindowFront *int          `yaml:"pad_window_front"`
	PadWindowBack  *int          `yaml:"pad_window_back"`

	// RCRC is the RC decay constant; zero resets to the unity kernel.
	RCRC *time.Duration `yaml:"rcrc"`
	// FreqMasks lists bands to overwrite; an empty list resets to unity.
	FreqMasks *[]kernel.Band `yaml:"freqmasks"`
	// Response configures the detector response; an empty spec resets to
	// the empty kernel.
	Response *ResponseSpec `yaml:"response"`
}

// ReconfigSpec maps the electronics actually used onto the ones assumed.
type ReconfigSpec struct {
	From response.Electronics `yaml:"from"`
	To   response.Electronics `yaml:"to"`
}

// ResponseSpec selects a plane's field response or an explicit waveform.
// Plane takes precedence when both are set.
type ResponseSpec struct {
	Plane      *int      `yaml:"plane"`
	Waveform   []float64 `yaml:"waveform"`
	WaveformID int       `yaml:"waveformid"`
}
