package telemetry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipims/hipims-go/internal/errs"
	"github.com/hipims/hipims-go/internal/telemetry"
)

type recordingSink struct {
	reports []telemetry.Progress
}

func (r *recordingSink) Report(p telemetry.Progress) {
	r.reports = append(r.reports, p)
}

func TestMaybeRateLimits(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps past the reporter's rate-limit window")
	}
	sink := &recordingSink{}
	r := telemetry.NewReporter(sink)

	r.Maybe(telemetry.Progress{SimulationTime: 1})
	require.Len(t, sink.reports, 1)

	r.Maybe(telemetry.Progress{SimulationTime: 2})
	assert.Len(t, sink.reports, 1) // still within the rate-limit window

	time.Sleep(900 * time.Millisecond)
	r.Maybe(telemetry.Progress{SimulationTime: 3})
	assert.Len(t, sink.reports, 2)
}

func TestForceBypassesRateLimit(t *testing.T) {
	sink := &recordingSink{}
	r := telemetry.NewReporter(sink)

	r.Maybe(telemetry.Progress{SimulationTime: 1})
	r.Force(telemetry.Progress{SimulationTime: 2})
	r.Force(telemetry.Progress{SimulationTime: 3})
	assert.Len(t, sink.reports, 3)
}

func TestNewReporterNilSinkIsSafe(t *testing.T) {
	r := telemetry.NewReporter(nil)
	assert.NotPanics(t, func() { r.Maybe(telemetry.Progress{}) })
}

func TestLogErrorNilIsNoOp(t *testing.T) {
	assert.NotPanics(t, func() { telemetry.LogError(nil) })
}

func TestLogErrorHandlesEveryNonFatalKind(t *testing.T) {
	for _, kind := range []errs.Kind{errs.Info, errs.Warning, errs.ModelContinue, errs.ModelStop} {
		err := errs.New(kind, 1.5, "boom")
		assert.NotPanics(t, func() { telemetry.LogError(err) })
	}
}

func TestLogErrorHandlesPlainError(t *testing.T) {
	assert.NotPanics(t, func() { telemetry.LogError(assert.AnError) })
}
