// Package telemetry renders run progress and routes orchestrator errors to
// structured logs. Progress reporting is grounded on the teacher's
// akita/v4/monitoring.Monitor registration idiom (components register a
// sink, the sink decides what to do with updates) generalised from a web
// dashboard to a pluggable Sink interface; error logging uses logrus, the
// logging library adopted pack-wide for leveled structured output.
package telemetry

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hipims/hipims-go/internal/errs"
)

// Progress is one snapshot of simulation progress, reported at most every
// 0.85s by the model controller (spec.md §4.6).
type Progress struct {
	SimulationTime   float64
	SimulationLength float64
	ProcessingTime   time.Duration
	ETA              time.Duration
	CellsPerSecond   float64
	QueueAmount      int
	BatchSuccessful  uint32
	BatchSkipped     uint32
}

// Sink receives progress snapshots. Reporter gates calls to Report so a
// Sink implementation never needs to rate-limit itself.
type Sink interface {
	Report(p Progress)
}

// NopSink discards every report; the default when a caller wants the model
// loop's timing behaviour without any output (e.g. in tests).
type NopSink struct{}

// Report implements Sink.
func (NopSink) Report(Progress) {}

// minInterval is the §4.6 progress cadence: at most once every 0.85s.
const minInterval = 850 * time.Millisecond

// Reporter rate-limits calls into a Sink to at most once per minInterval,
// always letting the final report (Force) through regardless of timing.
type Reporter struct {
	sink     Sink
	lastSent time.Time
	started  time.Time
	now      func() time.Time
}

// NewReporter constructs a Reporter over sink. A nil sink is replaced with
// NopSink.
func NewReporter(sink Sink) *Reporter {
	if sink == nil {
		sink = NopSink{}
	}
	now := time.Now()
	return &Reporter{sink: sink, started: now, now: time.Now}
}

// Elapsed returns the wall-clock duration since the reporter was created,
// used by the model loop to compute ETA.
func (r *Reporter) Elapsed() time.Duration { return r.now().Sub(r.started) }

// Maybe reports p only if at least minInterval has elapsed since the last
// report went through.
func (r *Reporter) Maybe(p Progress) {
	now := r.now()
	if !r.lastSent.IsZero() && now.Sub(r.lastSent) < minInterval {
		return
	}
	r.lastSent = now
	r.sink.Report(p)
}

// Force reports p unconditionally, bypassing the rate limit (used for the
// final report when a run completes or aborts).
func (r *Reporter) Force(p Progress) {
	r.lastSent = r.now()
	r.sink.Report(p)
}

// LogError routes err through logrus at the level matching its errs.Kind
// (spec.md §7), and is a no-op for a nil or non-*errs.Error value beyond
// logging it at Warn so unexpected plain errors are never silently dropped.
func LogError(err error) {
	if err == nil {
		return
	}
	kind, simTime, cause := errs.Warning, 0.0, error(err)
	if e, ok := err.(*errs.Error); ok {
		kind, simTime, cause = e.Kind, e.SimTime, e.Err
	}

	entry := logrus.WithField("sim_time", simTime)
	switch kind {
	case errs.Fatal:
		entry.Fatal(cause)
	case errs.ModelStop:
		entry.Error(cause)
	case errs.ModelContinue, errs.Warning:
		entry.Warn(cause)
	case errs.Info:
		entry.Info(cause)
	default:
		entry.Warn(cause)
	}
}
