package boundary

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/numeric"
	"github.com/hipims/hipims-go/internal/program"
	"github.com/hipims/hipims-go/internal/statecodec"
)

// fakeLoader is a SeriesLoader stand-in that returns pre-canned series by
// boundary name, so setup-time behaviour (discharge normalisation, the
// too-short-series disable path) can be tested without a real file.
type fakeLoader struct {
	series map[string]Series
	err    error
}

func (f *fakeLoader) Load(kind Kind, path string) (Series, error) {
	if f.err != nil {
		return Series{}, f.err
	}
	return f.series[path], nil
}

func TestCellSetupDividesTotalDischargeByRelationCount(t *testing.T) {
	loader := &fakeLoader{series: map[string]Series{
		"src.csv": {Entries: []TimeSeriesEntry{
			{T: 0, Depth: 1, Qx: 10, Qy: 20},
			{T: 1, Depth: 2, Qx: 20, Qy: 40},
		}},
	}}
	cfg := Config{
		Name: "inflow", Kind: KindCell, DischargeInterp: DischargeTotal,
		Relations: []CellIndex{{I: 0, J: 0}, {I: 1, J: 0}},
	}

	c := NewCell()
	ok, err := c.SetupFromConfig(cfg, "", loader, "src.csv")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 5.0, c.series.Entries[0].Qx) // 10 / 2 relations
	assert.Equal(t, 10.0, c.series.Entries[0].Qy)
}

func TestCellSetupDisablesOnTooShortSeries(t *testing.T) {
	loader := &fakeLoader{series: map[string]Series{
		"short.csv": {Entries: []TimeSeriesEntry{{T: 0, Depth: 1}}},
	}}
	cfg := Config{Name: "inflow", Kind: KindCell, Relations: []CellIndex{{I: 0, J: 0}}}

	c := NewCell()
	ok, err := c.SetupFromConfig(cfg, "", loader, "short.csv")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCellSetupRejectsInvalidConfig(t *testing.T) {
	c := NewCell()
	_, err := c.SetupFromConfig(Config{Name: "bad"}, "", &fakeLoader{}, "x.csv")
	assert.Error(t, err)
}

// TestCellKernelAppliesFSLDepthAndDirectDischarge exercises the declared
// kernel closure end to end through a kernelreg.ExecContext, the way the
// scheme binds and invokes it during ApplyBoundary.
func TestCellKernelAppliesFSLDepthAndDirectDischarge(t *testing.T) {
	p := numeric.Double
	desc := domain.Descriptor{Cols: 2, Rows: 2, Dx: 1, Precision: p}

	loader := &fakeLoader{series: map[string]Series{
		"src.csv": {Entries: []TimeSeriesEntry{
			{T: 0, Depth: 5, Qx: 1, Qy: 2},
			{T: 10, Depth: 7, Qx: 3, Qy: 4},
		}},
	}}
	cfg := Config{
		Name: "inflow", Kind: KindCell,
		DepthInterp: DepthFSL, DischargeInterp: DischargePerCell,
		Relations: []CellIndex{{I: 1, J: 0}},
	}

	c := NewCell()
	ok, err := c.SetupFromConfig(cfg, "", loader, "src.csv")
	require.NoError(t, err)
	require.True(t, ok)

	registry := kernelreg.NewRegistry()
	builder := program.NewBuilder(registry, p)
	require.NoError(t, c.DeclareKernel(builder, desc))

	fn, err := registry.Lookup(c.instanceKernelName())
	require.NoError(t, err)

	timeBuf := statecodec.EncodeOne(5, p) // halfway through the series
	bedBuf := statecodec.EncodeScalars([]float64{0, 0, 0, 0}, p)
	cellState := statecodec.EncodeCellStates(make([]domain.CellState, desc.CellCount()), p)

	ctx := &kernelreg.ExecContext{
		Args: []kernelreg.ArgView{
			{Name: "hipims.time", Data: timeBuf},
			{Name: "hipims.bed", Data: bedBuf},
			{Name: "hipims.cellState", Data: cellState},
		},
	}
	require.NoError(t, fn(ctx))

	id := desc.CellID(1, 0)
	got := statecodec.ReadCellState(cellState, id, p)
	assert.Equal(t, 6.0, got.Eta) // lerp(5,7,0.5)
	assert.Equal(t, 2.0, got.Qx)  // per-cell: applied directly
	assert.Equal(t, 3.0, got.Qy)

	// An unconfigured cell is untouched.
	untouched := statecodec.ReadCellState(cellState, desc.CellID(0, 0), p)
	assert.Equal(t, domain.CellState{}, untouched)
}

func TestCellKernelErrorsOnUnboundArgument(t *testing.T) {
	p := numeric.Double
	desc := domain.Descriptor{Cols: 1, Rows: 1, Dx: 1, Precision: p}
	loader := &fakeLoader{series: map[string]Series{"src.csv": {Entries: []TimeSeriesEntry{
		{T: 0, Depth: 1}, {T: 1, Depth: 2},
	}}}}
	cfg := Config{Name: "inflow", Kind: KindCell, Relations: []CellIndex{{I: 0, J: 0}}}

	c := NewCell()
	ok, err := c.SetupFromConfig(cfg, "", loader, "src.csv")
	require.NoError(t, err)
	require.True(t, ok)

	registry := kernelreg.NewRegistry()
	builder := program.NewBuilder(registry, p)
	require.NoError(t, c.DeclareKernel(builder, desc))
	fn, err := registry.Lookup(c.instanceKernelName())
	require.NoError(t, err)

	err = fn(&kernelreg.ExecContext{Args: []kernelreg.ArgView{
		{Name: "hipims.cellState", Data: make([]byte, statecodec.CellStateStride(p))},
	}})
	assert.Error(t, err)
}

func TestInstanceKernelNameScopesByKindAndName(t *testing.T) {
	c1 := NewCell()
	c1.cfg.Name = "a"
	c2 := NewCell()
	c2.cfg.Name = "b"
	assert.NotEqual(t, c1.instanceKernelName(), c2.instanceKernelName())
	assert.Equal(t, fmt.Sprintf("bdy_Cell#%s", "a"), c1.instanceKernelName())
}
