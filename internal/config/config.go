// Package config loads the noisefilter run configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-noise/noise/geometry"
	"github.com/cwbudde/algo-noise/noise/kernel"
	"github.com/cwbudde/algo-noise/noise/noisedb"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the complete run configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Geometry GeometryConfig `yaml:"geometry"`
	Noise    noisedb.Config `yaml:"noise"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PipelineConfig contains omnibus and calibration settings.
type PipelineConfig struct {
	Workers        int   `yaml:"workers"`
	RCCompensation *bool `yaml:"rc_compensation"`
	RMSCheck       *bool `yaml:"rms_check"`

	// MaskMap routes mask sources to output categories. Unmapped sources
	// are merged under "bad".
	MaskMap map[string]string `yaml:"maskmap"`
}

// MetricsConfig contains metrics settings. When Textfile is set the
// pipeline counters are written there in Prometheus text format after the
// run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// GeometryConfig describes the anode: the channel count of each plane, in
// plane order, and optional averaged field responses per plane.
type GeometryConfig struct {
	Planes        []int        `yaml:"planes"`
	FieldResponse []PlaneField `yaml:"field_response"`
}

// PlaneField is one plane's averaged field response.
type PlaneField struct {
	Plane   int             `yaml:"plane"`
	Regions []kernel.Region `yaml:"regions"`
}

// Load reads and validates a configuration file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = 1
	}
}

// Validate checks the settings that do not need the noise database.
func (c *Config) Validate() error {
	if len(c.Geometry.Planes) == 0 {
		return fmt.Errorf("%w: geometry.planes is empty", ErrInvalid)
	}

	_, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalid, err)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalid, c.Logging.Format)
	}

	for _, pf := range c.Geometry.FieldResponse {
		if pf.Plane < 0 || pf.Plane >= len(c.Geometry.Planes) {
			return fmt.Errorf("%w: field_response plane %d", ErrInvalid, pf.Plane)
		}
	}

	for src, cat := range c.Pipeline.MaskMap {
		if cat == "" {
			return fmt.Errorf("%w: maskmap source %q has no category", ErrInvalid, src)
		}
	}

	return nil
}

// Anode builds the channel geometry.
func (c *Config) Anode() (*geometry.Anode, error) {
	return geometry.NewAnode(c.Geometry.Planes...)
}

// FieldResponse builds the plane response table, or returns nil when none
// is configured.
func (c *Config) FieldResponse() *geometry.FieldResponse {
	if len(c.Geometry.FieldResponse) == 0 {
		return nil
	}

	fr := geometry.NewFieldResponse()
	for _, pf := range c.Geometry.FieldResponse {
		fr.SetPlane(pf.Plane, pf.Regions...)
	}

	return fr
}

// NoiseDB returns the noise section with geometry attached, ready for
// noisedb.DB.Configure.
func (c *Config) NoiseDB() (noisedb.Config, error) {
	anode, err := c.Anode()
	if err != nil {
		return noisedb.Config{}, fmt.Errorf("%w: geometry: %w", ErrInvalid, err)
	}

	nc := c.Noise
	nc.Anode = anode

	if fr := c.FieldResponse(); fr != nil {
		nc.FieldResponse = fr
	}

	return nc, nil
}

// Logger returns a logger writing to out with the configured level and
// format.
func (l LoggingConfig) Logger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)

	if strings.EqualFold(l.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log, nil
}

// Print writes a short summary of the configuration to w.
func (c *Config) Print(w io.Writer) {
	channels := 0
	for _, n := range c.Geometry.Planes {
		channels += n
	}

	fmt.Fprintf(w, "Anode: %d planes, %s channels\n", len(c.Geometry.Planes), humanize.Comma(int64(channels)))
	fmt.Fprintf(w, "Frame: %s samples at %v\n", humanize.Comma(int64(c.Noise.NSamples)), c.Noise.Tick)
	fmt.Fprintf(w, "Noise: %d bad channels, %d coherent groups, %d directives\n",
		len(c.Noise.BadChannels), len(c.Noise.Groups), len(c.Noise.Directives))
	fmt.Fprintf(w, "Pipeline: %d workers\n", c.Pipeline.Workers)

	if c.Metrics.Textfile != "" {
		fmt.Fprintf(w, "Metrics: %s\n", c.Metrics.Textfile)
	}
}
