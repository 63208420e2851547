package omnibus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cwbudde/algo-noise/noise/frame"
)

// Metrics counts pipeline activity. A nil *Metrics records nothing.
type Metrics struct {
	Frames        prometheus.Counter
	Channels      prometheus.Counter
	GroupsSkipped prometheus.Counter
	BadSamples    prometheus.Counter
	Duration      prometheus.Histogram
}

// NewMetrics creates the pipeline metrics and registers them with reg when
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noisefilter",
			Name:      "frames_total",
			Help:      "Frames processed by the omnibus pipeline.",
		}),
		Channels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noisefilter",
			Name:      "channels_total",
			Help:      "Channel traces filtered.",
		}),
		GroupsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noisefilter",
			Name:      "groups_skipped_total",
			Help:      "Coherent groups skipped because a member was absent.",
		}),
		BadSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "noisefilter",
			Name:      "bad_samples_total",
			Help:      "Samples covered by the merged bad mask.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "noisefilter",
			Name:      "frame_seconds",
			Help:      "Wall time spent filtering one frame.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.Frames, m.Channels, m.GroupsSkipped, m.BadSamples, m.Duration} {
		err := reg.Register(c)
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) observe(channels, skipped int, masks frame.ChannelMasks, elapsed time.Duration) {
	if m == nil {
		return
	}

	bad := 0
	for _, rs := range masks {
		bad += rs.Count()
	}

	m.Frames.Inc()
	m.Channels.Add(float64(channels))
	m.GroupsSkipped.Add(float64(skipped))
	m.BadSamples.Add(float64(bad))
	m.Duration.Observe(elapsed.Seconds())
}
