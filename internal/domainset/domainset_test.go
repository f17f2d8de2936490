package domainset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipims/hipims-go/internal/device"
	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/domainset"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/kernelreg/testkernels"
	"github.com/hipims/hipims-go/internal/numeric"
	"github.com/hipims/hipims-go/internal/program"
	"github.com/hipims/hipims-go/internal/scheme"
)

func newMember(t *testing.T, opts scheme.Options) domainset.Member {
	t.Helper()
	desc := domain.Descriptor{Cols: 2, Rows: 2, Dx: 1, Precision: numeric.Double}
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

func baseOpts() scheme.Options {
	opts := scheme.DefaultOptions()
	opts.SimulationLength = 1
	opts.OutputFrequency = 1
	return opts
}

func TestIsSetReadyFalseWhenEmpty(t *testing.T) {
	set := domainset.New(nil, scheme.SyncForecast, 2)
	assert.False(t, set.IsSetReady(1))
}

func TestProposeSyncPointTakesMinimumAcrossMembers(t *testing.T) {
	m1 := newMember(t, baseOpts())
	defer m1.Scheme.Cleanup()
	m2opts := baseOpts()
	m2opts.OutputFrequency = 0.0001 // forces a much smaller proposal
	m2 := newMember(t, m2opts)
	defer m2.Scheme.Cleanup()

	set := domainset.New([]domainset.Member{m1, m2}, scheme.SyncForecast, 2)
	target := set.ProposeSyncPoint()

	assert.Equal(t, m2.Scheme.ProposeSyncPoint(), target)
	assert.Less(t, target, m1.Scheme.ProposeSyncPoint())
}

func TestSetTargetTimeAndRunSimulationAppliesToEveryMember(t *testing.T) {
	m1 := newMember(t, baseOpts())
	defer m1.Scheme.Cleanup()
	m2 := newMember(t, baseOpts())
	defer m2.Scheme.Cleanup()
	set := domainset.New([]domainset.Member{m1, m2}, scheme.SyncForecast, 2)

	target := set.ProposeSyncPoint()
	require.NoError(t, set.SetTargetTime(target))
	require.NoError(t, set.RunSimulation(0))

	assert.Greater(t, m1.Scheme.CurrentTime(), 0.0)
	assert.Greater(t, m2.Scheme.CurrentTime(), 0.0)
}

func TestCurrentTimeReturnsSlowestMember(t *testing.T) {
	m1 := newMember(t, baseOpts())
	defer m1.Scheme.Cleanup()
	m2 := newMember(t, baseOpts())
	defer m2.Scheme.Cleanup()
	set := domainset.New([]domainset.Member{m1, m2}, scheme.SyncForecast, 2)

	target := set.ProposeSyncPoint()
	require.NoError(t, set.SetTargetTime(target))
	require.NoError(t, set.RunSimulation(0))

	slowest := m1.Scheme.CurrentTime()
	if m2.Scheme.CurrentTime() < slowest {
		slowest = m2.Scheme.CurrentTime()
	}
	assert.Equal(t, slowest, set.CurrentTime())
}

func TestRequestAbortBroadcastsToEveryMember(t *testing.T) {
	m1 := newMember(t, baseOpts())
	defer m1.Scheme.Cleanup()
	m2 := newMember(t, baseOpts())
	defer m2.Scheme.Cleanup()
	set := domainset.New([]domainset.Member{m1, m2}, scheme.SyncForecast, 2)

	assert.False(t, set.AbortRequested())
	set.RequestAbort()
	assert.True(t, set.AbortRequested())
	assert.True(t, m1.Scheme.AbortRequested())
	assert.True(t, m2.Scheme.AbortRequested())
}

// fakeLink records the member names it was pushed/pulled with, so Import's
// push-all-then-pull-all ordering can be asserted directly.
type fakeLink struct {
	events *[]string
}

func (f *fakeLink) PushToBuffer(from domainset.Member) error {
	*f.events = append(*f.events, "push:"+from.Domain.Descriptor().Precision.String())
	return nil
}

func (f *fakeLink) PullFromBuffer(to domainset.Member) error {
	*f.events = append(*f.events, "pull:"+to.Domain.Descriptor().Precision.String())
	return nil
}

func TestImportRunsPushAllThenPullAll(t *testing.T) {
	m1 := newMember(t, baseOpts())
	defer m1.Scheme.Cleanup()
	m2 := newMember(t, baseOpts())
	defer m2.Scheme.Cleanup()
	set := domainset.New([]domainset.Member{m1, m2}, scheme.SyncForecast, 2)

	var events []string
	set.AddLink(&fakeLink{events: &events})

	require.NoError(t, set.Import())
	require.Len(t, events, 4)
	assert.Equal(t, []string{"push:double", "push:double", "pull:double", "pull:double"}, events)
}

func TestImportWithNoLinksStillResetsMemberCounters(t *testing.T) {
	m1 := newMember(t, baseOpts())
	defer m1.Scheme.Cleanup()
	set := domainset.New([]domainset.Member{m1}, scheme.SyncForecast, 2)

	require.NoError(t, set.Import())
	assert.Equal(t, uint32(0), m1.Scheme.BatchSuccessful())
}

func TestMarkSyncedAndRollbackAcrossSet(t *testing.T) {
	m1 := newMember(t, baseOpts())
	defer m1.Scheme.Cleanup()
	set := domainset.New([]domainset.Member{m1}, scheme.SyncForecast, 2)

	target := set.ProposeSyncPoint()
	require.NoError(t, set.SetTargetTime(target))
	require.NoError(t, set.RunSimulation(0))
	require.NoError(t, set.MarkSynced())

	syncedTime := m1.Scheme.CurrentTime()
	nextTarget := set.ProposeSyncPoint()
	require.NoError(t, set.SetTargetTime(nextTarget))
	require.NoError(t, set.RunSimulation(0))
	require.Greater(t, m1.Scheme.CurrentTime(), syncedTime)

	require.NoError(t, set.Rollback(nextTarget))
	assert.Equal(t, syncedTime, m1.Scheme.CurrentTime())
}
