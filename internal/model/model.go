// Package model implements the model controller (C6): the top-level
// lifecycle that drives a domainset.Set through spec.md §4.6's outer loop
// (propose a sync point, run a batch, roll back on failure, emit outputs at
// output instants, repeat until the simulation length is reached), plus
// rate-limited progress telemetry.
//
// Grounded on CModel's runModel/runModelUI/runModelRollback
// (original_source/src/CModel.cpp): this is the literal translation of that
// loop, with the native-thread polling collapsed into the synchronous,
// channel-backed Scheme.RunSimulation call (spec.md §9's background
// execution design note — the worker already blocks for one batch's
// duration, so there is no separate "wait until idle" spin here).
package model

import (
	"fmt"
	"time"

	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/domainset"
	"github.com/hipims/hipims-go/internal/errs"
	"github.com/hipims/hipims-go/internal/telemetry"
)

// outputEpsilon is the tolerance CModel::logProgress and the scheme's own
// output-instant clamp (spec.md §4.5.6) both use for floating-point
// comparisons against a scheduled time.
const outputEpsilon = 1e-5

// maxConsecutiveRollbacks is spec.md §7's "exceeding it twice for the same
// target in succession is escalated to model-stop".
const maxConsecutiveRollbacks = 2

// OutputSink receives a domain's read-back output arrays at an output
// instant. Persisting them to disk, a database, or a network stream is an
// external collaborator's concern (spec.md §1); this module only guarantees
// the sink is called with a consistent read-back at the right times.
type OutputSink interface {
	EmitOutputs(t float64, dom *domain.Domain, outputs map[domain.OutputKind][]float64) error
}

// NopOutputSink discards every emission.
type NopOutputSink struct{}

// EmitOutputs implements OutputSink.
func (NopOutputSink) EmitOutputs(float64, *domain.Domain, map[domain.OutputKind][]float64) error {
	return nil
}

// outputKinds is every read-back array spec.md §6 defines.
var outputKinds = []domain.OutputKind{
	domain.OutputDepth, domain.OutputDSDt, domain.OutputVelocityX, domain.OutputVelocityY,
}

// Model owns a domainset.Set and drives its outer loop.
type Model struct {
	set      *domainset.Set
	reporter *telemetry.Reporter
	outputs  OutputSink
}

// New constructs a Model over set. A nil reporter reports to nowhere; a nil
// outputs sink discards every emission.
func New(set *domainset.Set, reporter *telemetry.Reporter, outputs OutputSink) *Model {
	if reporter == nil {
		reporter = telemetry.NewReporter(nil)
	}
	if outputs == nil {
		outputs = NopOutputSink{}
	}
	return &Model{set: set, reporter: reporter, outputs: outputs}
}

// RequestAbort sets the cooperative abort flag the loop polls between
// batches (spec.md §5). The in-flight batch still completes.
func (m *Model) RequestAbort() { m.set.RequestAbort() }

// simLimits returns the simulation length and output frequency shared
// across every member (spec.md §4.7 scopes a single set of these values to
// the in-scope single-domain case).
func (m *Model) simLimits() (length, outputFreq float64) {
	opts := m.set.Members[0].Scheme.Options()
	return opts.SimulationLength, opts.OutputFrequency
}

// Run drives the outer loop until the simulation length is reached or an
// unrecoverable error is raised, then tears down the worker(s). It is the
// direct translation of spec.md §4.6's pseudocode.
func (m *Model) Run() error {
	if len(m.set.Members) == 0 {
		return errs.New(errs.ModelStop, 0, "model: no domains in the set")
	}
	simLength, outputFreq := m.simLimits()
	defer m.set.Cleanup()

	for m.set.CurrentTime() < simLength-outputEpsilon {
		if m.set.AbortRequested() {
			break
		}

		target := m.set.ProposeSyncPoint()
		if err := m.set.SetTargetTime(target); err != nil {
			return err
		}

		if err := m.runUntilSyncReady(target); err != nil {
			return err
		}

		if err := m.set.MarkSynced(); err != nil {
			return err
		}

		if isOutputInstant(target, outputFreq) {
			if err := m.emitOutputs(target); err != nil {
				return err
			}
		}

		m.report(simLength)

		if m.set.AbortRequested() {
			break
		}
	}

	m.reporter.Force(m.progress(simLength))
	return nil
}

// runUntilSyncReady repeatedly requests batches at target, rolling back and
// retrying at a less ambitious target on failure, until the set reaches a
// consistent sync point (spec.md §4.5.9, §4.6).
func (m *Model) runUntilSyncReady(target float64) error {
	consecutiveRollbacks := 0
	lastBatch := time.Now()

	for {
		wallClock := time.Since(lastBatch).Seconds()
		lastBatch = time.Now()

		if err := m.set.RunSimulation(wallClock); err != nil {
			return err
		}
		m.report(0)

		if m.set.AnyFailure(target) {
			consecutiveRollbacks++
			if consecutiveRollbacks >= maxConsecutiveRollbacks {
				return errs.New(errs.ModelStop, m.set.CurrentTime(),
					"rollback limit exceeded twice in succession for target %.6f", target)
			}

			retryTarget := retargetAfterRollback(m.set.Members[0].Scheme.LastSyncTime(), target)
			if err := m.set.Rollback(retryTarget); err != nil {
				return err
			}
			target = retryTarget
			continue
		}

		consecutiveRollbacks = 0
		if m.set.IsSetReady(target) {
			return nil
		}
		if m.set.AbortRequested() {
			return nil
		}
	}
}

// retargetAfterRollback halves the remaining distance to the failed
// target, mirroring the original's "recompute the sync point relative to
// the last sync time instead of the current time" (CModel::runModelRollback
// calling runModelUpdateTarget(dLastSyncTime)): a smaller, more
// conservative target is strictly more likely to complete within the
// rollback limit than the one that just failed.
func retargetAfterRollback(lastSync, failedTarget float64) float64 {
	mid := lastSync + (failedTarget-lastSync)/2
	if mid <= lastSync {
		return failedTarget
	}
	return mid
}

// isOutputInstant reports whether target lands on a scheduled output
// instant within tolerance (spec.md §8 scenario 6).
func isOutputInstant(target, outputFreq float64) bool {
	if outputFreq <= 0 {
		return false
	}
	steps := target / outputFreq
	nearest := float64(int64(steps + 0.5))
	return abs(steps-nearest)*outputFreq < outputEpsilon
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// emitOutputs reads back every output array for every member domain and
// hands them to the configured OutputSink.
func (m *Model) emitOutputs(t float64) error {
	for _, member := range m.set.Members {
		outputs := make(map[domain.OutputKind][]float64, len(outputKinds))
		for _, kind := range outputKinds {
			values, err := member.Domain.ReadOutput(kind)
			if err != nil {
				return err
			}
			outputs[kind] = values
		}
		if err := m.outputs.EmitOutputs(t, member.Domain, outputs); err != nil {
			return errs.Wrap(errs.ModelContinue, t, err)
		}
	}
	return nil
}

// report builds a Progress snapshot from the set's first member (single-set
// scope; spec.md §4.7) and offers it to the rate-limited reporter.
func (m *Model) report(simLength float64) {
	length := simLength
	if length == 0 {
		length, _ = m.simLimits()
	}
	m.reporter.Maybe(m.progress(length))
}

func (m *Model) progress(simLength float64) telemetry.Progress {
	lead := m.set.Members[0].Scheme
	elapsed := m.reporter.Elapsed()

	var cellsPerSecond float64
	if elapsed.Seconds() > 0 {
		cellsPerSecond = float64(lead.CellCount()) * float64(lead.BatchSuccessful()) / elapsed.Seconds()
	}

	currentTime := m.set.CurrentTime()
	var eta time.Duration
	if simLength > 0 && currentTime > 0 {
		progressFrac := currentTime / simLength
		if progressFrac > 0 && progressFrac < 1 {
			remaining := (1 - progressFrac) * (elapsed.Seconds() / progressFrac)
			eta = time.Duration(remaining * float64(time.Second))
		}
	}

	return telemetry.Progress{
		SimulationTime:   currentTime,
		SimulationLength: simLength,
		ProcessingTime:   elapsed,
		ETA:              eta,
		CellsPerSecond:   cellsPerSecond,
		QueueAmount:      lead.QueueAmount(),
		BatchSuccessful:  lead.BatchSuccessful(),
		BatchSkipped:     lead.BatchSkipped(),
	}
}

// String implements fmt.Stringer for debugging convenience.
func (m *Model) String() string {
	return fmt.Sprintf("Model(members=%d, time=%.3f)", len(m.set.Members), m.set.CurrentTime())
}
