package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "picam"

// Metrics holds the motion monitor collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	frames        prometheus.Counter
	motionEvents  prometheus.Counter
	captureErrors prometheus.Counter
	resets        prometheus.Counter
	quantity      prometheus.Gauge
	indicator     prometheus.Gauge
	compare       prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames compared by the motion monitor.",
		}),
		motionEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "motion_events_total",
			Help:      "Frames whose motion quantity exceeded the minimum.",
		}),
		captureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Failed frame captures.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_resets_total",
			Help:      "Reference frame resets caused by a frame shape change.",
		}),
		quantity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "motion_quantity",
			Help:      "Motion quantity of the last compared frame.",
		}),
		indicator: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indicator_on",
			Help:      "1 while the indicator is on.",
		}),
		compare: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compare_duration_seconds",
			Help:      "Time spent comparing two frames.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.frames, m.motionEvents, m.captureErrors, m.resets,
		m.quantity, m.indicator, m.compare,
	)

	return m
}

func (m *Metrics) ObserveFrame(quantity int64, motion bool, took time.Duration) {
	m.frames.Inc()
	m.quantity.Set(float64(quantity))
	m.compare.Observe(took.Seconds())
	if motion {
		m.motionEvents.Inc()
	}
}

func (m *Metrics) CaptureError() {
	m.captureErrors.Inc()
}

// ReferenceReset counts a dropped reference frame.
func (m *Metrics) ReferenceReset() {
	m.resets.Inc()
}

func (m *Metrics) Indicator(on bool) {
	if on {
		m.indicator.Set(1)
	} else {
		m.indicator.Set(0)
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	)
}
