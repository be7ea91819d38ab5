// Package telemetry holds the Prometheus metrics of the analysis pipeline.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "xray"

var (
	// jobsSubmitted counts submissions.
	// Labels: outcome (created, attached, rejected)
	jobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "submitted_total",
		Help:      "Analysis submissions by outcome",
	}, []string{"outcome"})

	// jobsFinished counts jobs reaching a terminal state.
	// Labels: status (complete, error)
	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Analysis jobs finished by terminal status",
	}, []string{"status"})

	// jobsRunning tracks pipelines currently holding a slot.
	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "running",
		Help:      "Pipelines currently running",
	})

	// stageDuration measures the wall-clock time of each stage.
	// Labels: stage (1-5)
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	// classifierCalls counts classification calls.
	// Labels: capability (code, review, patterns), outcome (ok, timeout, transport, decode, invalid)
	classifierCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "calls_total",
		Help:      "Classification calls by capability and outcome",
	}, []string{"capability", "outcome"})

	// streamDrops counts events discarded from full subscriber queues.
	streamDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "dropped_events_total",
		Help:      "Events dropped because a subscriber queue was full",
	})
)

// RecordSubmission records the outcome of a submission.
func RecordSubmission(outcome string) {
	jobsSubmitted.WithLabelValues(outcome).Inc()
}

// RecordJobFinished records a terminal job status.
func RecordJobFinished(status string) {
	jobsFinished.WithLabelValues(status).Inc()
}

// PipelineStarted marks a pipeline slot as taken.
func PipelineStarted() { jobsRunning.Inc() }

// PipelineStopped marks a pipeline slot as released.
func PipelineStopped() { jobsRunning.Dec() }

// RecordStageDuration records how long a stage took.
func RecordStageDuration(stage int, seconds float64) {
	stageDuration.WithLabelValues(strconv.Itoa(stage)).Observe(seconds)
}

// RecordClassifierCall records one classification call.
func RecordClassifierCall(capability, outcome string) {
	classifierCalls.WithLabelValues(capability, outcome).Inc()
}

// RecordStreamDrop records one discarded stream event.
func RecordStreamDrop() {
	streamDrops.Inc()
}
