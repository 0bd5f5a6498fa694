// Package metrics exposes render progress to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder tracks frames, workers and encodes of render jobs.
type Recorder struct {
	FramesRendered prometheus.Counter
	FramesFailed   prometheus.Counter
	FrameDuration  prometheus.Histogram
	EncodeDuration prometheus.Histogram
	ActiveWorkers  prometheus.Gauge
	Jobs           *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the render metrics on reg. A nil reg gets a private
// registry.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		FramesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scene2video_frames_rendered_total",
			Help: "Frames captured and written to disk",
		}),
		FramesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scene2video_frames_failed_total",
			Help: "Frames whose seek, capture or write failed",
		}),
		FrameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scene2video_frame_duration_seconds",
			Help:    "Seek, capture and write time of one frame",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		EncodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scene2video_encode_duration_seconds",
			Help:    "Wall time of the encoder run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scene2video_active_workers",
			Help: "Render workers of the running job",
		}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scene2video_jobs_total",
			Help: "Render jobs by outcome",
		}, []string{"status"}),
		gatherer: reg,
	}
	reg.MustRegister(r.FramesRendered, r.FramesFailed, r.FrameDuration, r.EncodeDuration, r.ActiveWorkers, r.Jobs)
	return r
}

// ObserveFrame counts one written frame.
func (r *Recorder) ObserveFrame(took time.Duration) {
	if r == nil {
		return
	}
	r.FramesRendered.Inc()
	r.FrameDuration.Observe(took.Seconds())
}

// FrameFailed counts a failed frame.
func (r *Recorder) FrameFailed() {
	if r == nil {
		return
	}
	r.FramesFailed.Inc()
}

func (r *Recorder) ObserveEncode(took time.Duration) {
	if r == nil {
		return
	}
	r.EncodeDuration.Observe(took.Seconds())
}

func (r *Recorder) SetWorkers(n int) {
	if r == nil {
		return
	}
	r.ActiveWorkers.Set(float64(n))
}

// JobDone counts a finished job; status is "ok" or "failed".
func (r *Recorder) JobDone(status string) {
	if r == nil {
		return
	}
	r.Jobs.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
