// Command noisefilter runs the omnibus noise filter over frames stored as
// JSON.
//
// Usage:
//
//	noisefilter -config noise.yaml [-in frames.json] [-out cleaned.json]
//
// The input holds one frame object or an array of frames; the output has
// the same shape. Standard input and output are used when -in or -out is
// omitted or "-".
//
// Examples:
//
//	noisefilter -config noise.yaml -in frame.json -out cleaned.json
//	noisefilter -config noise.yaml -print
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-noise/internal/config"
	"github.com/cwbudde/algo-noise/noise/filters"
	"github.com/cwbudde/algo-noise/noise/noisedb"
	"github.com/cwbudde/algo-noise/noise/omnibus"
)

func main() {
	cfgPath := flag.String("config", "", "YAML run configuration (required)")
	in := flag.String("in", "-", "input frame JSON, - for stdin")
	out := flag.String("out", "-", "output frame JSON, - for stdout")
	printCfg := flag.Bool("print", false, "print the configuration summary and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: noisefilter -config FILE [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Filters per-channel noise from frames and merges bad-region masks.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *cfgPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *printCfg {
		cfg.Print(os.Stdout)
		return
	}

	log, err := cfg.Logging.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, log, *in, *out)
	if err != nil {
		log.WithError(err).Error("noisefilter failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logrus.Logger, inPath, outPath string) error {
	start := time.Now()

	nc, err := cfg.NoiseDB()
	if err != nil {
		return err
	}

	db := noisedb.New(noisedb.WithLogger(log))

	err = db.Configure(nc)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()

	metrics, err := omnibus.NewMetrics(reg)
	if err != nil {
		return err
	}

	pipe := omnibus.New(db,
		omnibus.WithChannelFilters(filters.NewCalibration(db, calibrationOptions(cfg, log)...)),
		omnibus.WithWorkers(cfg.Pipeline.Workers),
		omnibus.WithLogger(log),
		omnibus.WithMetrics(metrics),
		omnibus.WithMaskMap(cfg.Pipeline.MaskMap),
	)

	r, closeIn, err := openInput(inPath)
	if err != nil {
		return err
	}
	defer closeIn()

	frames, array, err := readFrames(r)
	if err != nil {
		return err
	}

	channels := 0
	for i, f := range frames {
		cleaned, err := pipe.Process(f)
		if err != nil {
			return fmt.Errorf("frame %d: %w", f.Ident, err)
		}

		channels += len(cleaned.Traces)
		frames[i] = cleaned
	}

	w, closeOut, err := openOutput(outPath)
	if err != nil {
		return err
	}

	err = writeFrames(w, frames, array)
	if cerr := closeOut(); err == nil {
		err = cerr
	}

	if err != nil {
		return err
	}

	if cfg.Metrics.Textfile != "" {
		err = prometheus.WriteToTextfile(cfg.Metrics.Textfile, reg)
		if err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	stats := db.KernelStats()
	log.WithFields(logrus.Fields{
		"frames":           humanize.Comma(int64(len(frames))),
		"channels":         humanize.Comma(int64(channels)),
		"rcrc_kernels":     stats.RCRC.Entries,
		"config_kernels":   stats.Reconfig.Entries,
		"response_kernels": stats.Response.Entries,
		"elapsed":          time.Since(start).Round(time.Millisecond),
	}).Info("noise filtering complete")

	return nil
}

func calibrationOptions(cfg *config.Config, log logrus.FieldLogger) []filters.CalibrationOption {
	opts := []filters.CalibrationOption{filters.WithCalibrationLogger(log)}

	if p := cfg.Pipeline.RCCompensation; p != nil {
		opts = append(opts, filters.WithRCCompensation(*p))
	}

	if p := cfg.Pipeline.RMSCheck; p != nil {
		opts = append(opts, filters.WithRMSCheck(*p))
	}

	return opts
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}

	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}

	return f, f.Close, nil
}
