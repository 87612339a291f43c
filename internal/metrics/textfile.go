// Package metrics records the outcome of a droplet run as Prometheus metrics
// and writes them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "droplet"

// Outcomes every stage gauge is exported for, so a stage that changed outcome
// drops back to 0 instead of going stale.
var Outcomes = []string{"success", "warning", "fatal", "skipped"}

// Recorder collects the metrics of a single run.
type Recorder struct {
	registry    *prometheus.Registry
	stages      *prometheus.GaugeVec
	exitCode    prometheus.Gauge
	signaled    prometheus.Gauge
	duration    prometheus.Gauge
	lastRun     prometheus.Gauge
	startedAt   time.Time
	serviceRan  bool
	exitCodeSet bool
}

// NewRecorder creates a Recorder for a run starting now.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_outcome",
			Help:      "Outcome of each pipeline stage in the last run (1 for the observed outcome).",
		}, []string{"stage", "outcome"}),
		exitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_exit_code",
			Help:      "Exit code of the service in the last run, -1 when it exited without one.",
		}),
		signaled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_signaled",
			Help:      "Whether the service was terminated by a signal in the last run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		startedAt: time.Now(),
	}

	r.registry.MustRegister(r.stages, r.exitCode, r.signaled, r.duration, r.lastRun)
	return r
}

// Stage records the outcome of stage.
func (r *Recorder) Stage(stage, outcome string) {
	for _, o := range Outcomes {
		value := 0.0
		if o == outcome {
			value = 1
		}
		r.stages.WithLabelValues(stage, o).Set(value)
	}
}

// ServiceExit records the service's exit code, nil when it had none. A
// missing code leaves the exit code gauge out of the textfile.
func (r *Recorder) ServiceExit(code *int, signal string) {
	r.serviceRan = true
	if code != nil {
		r.exitCodeSet = true
		r.exitCode.Set(float64(*code))
	}
	if signal != "" {
		r.signaled.Set(1)
	}
}

// WriteTextfile finalizes the run metrics and writes them atomically to path.
func (r *Recorder) WriteTextfile(path string) error {
	now := time.Now()
	r.duration.Set(now.Sub(r.startedAt).Seconds())
	r.lastRun.Set(float64(now.Unix()))

	if !r.exitCodeSet {
		r.registry.Unregister(r.exitCode)
	}
	if !r.serviceRan {
		r.registry.Unregister(r.signaled)
	}

	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
