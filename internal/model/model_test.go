package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipims/hipims-go/internal/device"
	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/domainset"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/kernelreg/testkernels"
	"github.com/hipims/hipims-go/internal/model"
	"github.com/hipims/hipims-go/internal/numeric"
	"github.com/hipims/hipims-go/internal/program"
	"github.com/hipims/hipims-go/internal/scheme"
	"github.com/hipims/hipims-go/internal/telemetry"
)

func newPreparedMember(t *testing.T, opts scheme.Options) domainset.Member {
	t.Helper()
	desc := domain.Descriptor{Cols: 3, Rows: 3, Dx: 1, Precision: numeric.Double}
	dom := domain.New(desc)
	for i := 0; i < dom.CellCount(); i++ {
		dom.SetState(i, domain.CellState{Eta: 2})
	}

	registry := kernelreg.NewRegistry()
	testkernels.Register(registry)
	dev := device.New(device.Descriptor{Name: "test"}, nil)

	s := scheme.New(dev, dom, opts)
	dom.BindScheme(s)
	builder := program.NewBuilder(registry, desc.Precision)
	require.NoError(t, s.Prepare(builder, nil))
	return domainset.Member{Domain: dom, Scheme: s}
}

type recordingSink struct {
	calls []float64
}

func (r *recordingSink) EmitOutputs(t float64, _ *domain.Domain, _ map[domain.OutputKind][]float64) error {
	r.calls = append(r.calls, t)
	return nil
}

func TestRunReturnsErrorWhenSetHasNoMembers(t *testing.T) {
	set := domainset.New(nil, scheme.SyncForecast, 2)
	m := model.New(set, nil, nil)
	err := m.Run()
	assert.Error(t, err)
}

// TestRunCompletesSimulationWithoutStalling is an end-to-end regression test
// confirming the outer loop actually reaches the configured simulation
// length rather than stalling on a first sync point of zero.
func TestRunCompletesSimulationWithoutStalling(t *testing.T) {
	opts := scheme.DefaultOptions()
	opts.SimulationLength = 0.05
	opts.OutputFrequency = 0.05
	member := newPreparedMember(t, opts)

	set := domainset.New([]domainset.Member{member}, scheme.SyncForecast, 2)
	sink := &recordingSink{}
	m := model.New(set, telemetry.NewReporter(telemetry.NopSink{}), sink)

	require.NoError(t, m.Run())
	assert.GreaterOrEqual(t, member.Scheme.CurrentTime(), opts.SimulationLength-1e-4)
}

func TestRunEmitsOutputsAtOutputInstants(t *testing.T) {
	opts := scheme.DefaultOptions()
	opts.SimulationLength = 0.05
	opts.OutputFrequency = 0.05
	member := newPreparedMember(t, opts)

	set := domainset.New([]domainset.Member{member}, scheme.SyncForecast, 2)
	sink := &recordingSink{}
	m := model.New(set, telemetry.NewReporter(telemetry.NopSink{}), sink)

	require.NoError(t, m.Run())
	assert.NotEmpty(t, sink.calls)
}

func TestRunStopsWhenAbortRequestedBetweenBatches(t *testing.T) {
	opts := scheme.DefaultOptions()
	opts.SimulationLength = 1000
	opts.OutputFrequency = 1000
	member := newPreparedMember(t, opts)

	set := domainset.New([]domainset.Member{member}, scheme.SyncForecast, 2)
	m := model.New(set, nil, nil)
	m.RequestAbort()

	require.NoError(t, m.Run())
	assert.Less(t, member.Scheme.CurrentTime(), opts.SimulationLength)
}

func TestNewDefaultsNilReporterAndOutputs(t *testing.T) {
	opts := scheme.DefaultOptions()
	opts.SimulationLength = 1000
	opts.OutputFrequency = 1000
	member := newPreparedMember(t, opts)
	set := domainset.New([]domainset.Member{member}, scheme.SyncForecast, 2)

	m := model.New(set, nil, nil)
	assert.NotPanics(t, func() { m.RequestAbort() })
}

func TestModelStringReflectsMemberCountAndTime(t *testing.T) {
	opts := scheme.DefaultOptions()
	opts.SimulationLength = 1000
	opts.OutputFrequency = 1000
	member := newPreparedMember(t, opts)
	set := domainset.New([]domainset.Member{member}, scheme.SyncForecast, 2)

	m := model.New(set, nil, nil)
	assert.Contains(t, m.String(), "members=1")
}
