package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(jobsSubmitted.WithLabelValues("created"))
	RecordSubmission("created")
	assert.Equal(t, before+1, testutil.ToFloat64(jobsSubmitted.WithLabelValues("created")))

	before = testutil.ToFloat64(jobsFinished.WithLabelValues("error"))
	RecordJobFinished("error")
	assert.Equal(t, before+1, testutil.ToFloat64(jobsFinished.WithLabelValues("error")))

	before = testutil.ToFloat64(classifierCalls.WithLabelValues("code", "timeout"))
	RecordClassifierCall("code", "timeout")
	assert.Equal(t, before+1, testutil.ToFloat64(classifierCalls.WithLabelValues("code", "timeout")))

	before = testutil.ToFloat64(streamDrops)
	RecordStreamDrop()
	assert.Equal(t, before+1, testutil.ToFloat64(streamDrops))

	running := testutil.ToFloat64(jobsRunning)
	PipelineStarted()
	assert.Equal(t, running+1, testutil.ToFloat64(jobsRunning))
	PipelineStopped()
	assert.Equal(t, running, testutil.ToFloat64(jobsRunning))

	RecordStageDuration(3, 1.5)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(stageDuration, "xray_pipeline_stage_duration_seconds"), 1)
}
