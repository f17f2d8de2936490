package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/numeric"
	"github.com/hipims/hipims-go/internal/program"
	"github.com/hipims/hipims-go/internal/statecodec"
)

func declareAndLookup(t *testing.T, b Boundary, desc domain.Descriptor, p numeric.Precision) kernelreg.Func {
	t.Helper()
	registry := kernelreg.NewRegistry()
	builder := program.NewBuilder(registry, p)
	require.NoError(t, b.DeclareKernel(builder, desc))
	name := b.(interface{ instanceKernelName() string }).instanceKernelName()
	fn, err := registry.Lookup(name)
	require.NoError(t, err)
	return fn
}

func TestUniformKernelAppliesRainUniformlyToEveryCell(t *testing.T) {
	p := numeric.Double
	desc := domain.Descriptor{Cols: 2, Rows: 1, Dx: 1, Precision: p}

	loader := &fakeLoader{series: map[string]Series{"rain.csv": {Entries: []TimeSeriesEntry{
		{T: 0, Depth: 1}, {T: 10, Depth: 1},
	}}}}
	u := NewUniform()
	ok, err := u.SetupFromConfig(Config{Name: "rain", Kind: KindUniform, Relations: []CellIndex{{I: 0, J: 0}}}, "", loader, "rain.csv")
	require.NoError(t, err)
	require.True(t, ok)

	fn := declareAndLookup(t, u, desc, p)

	timeBuf := statecodec.EncodeOne(5, p)
	timestepBuf := statecodec.EncodeOne(2, p)
	bedBuf := statecodec.EncodeScalars([]float64{0, -3}, p)
	states := []domain.CellState{{Eta: 0}, {Eta: 11}}
	cellState := statecodec.EncodeCellStates(states, p)

	ctx := &kernelreg.ExecContext{Args: []kernelreg.ArgView{
		{Name: "hipims.time", Data: timeBuf},
		{Name: "hipims.timestep", Data: timestepBuf},
		{Name: "hipims.bed", Data: bedBuf},
		{Name: "hipims.cellState", Data: cellState},
	}}
	require.NoError(t, fn(ctx))

	got0 := statecodec.ReadCellState(cellState, 0, p)
	assert.Equal(t, 2.0, got0.Eta) // 0 + depth(1)*dt(2)

	got1 := statecodec.ReadCellState(cellState, 1, p)
	assert.Equal(t, 13.0, got1.Eta) // 11 + depth(1)*dt(2), same delta everywhere
}

func TestUniformKernelClampsToBed(t *testing.T) {
	p := numeric.Double
	desc := domain.Descriptor{Cols: 1, Rows: 1, Dx: 1, Precision: p}

	loader := &fakeLoader{series: map[string]Series{"loss.csv": {Entries: []TimeSeriesEntry{
		{T: 0, Depth: 10}, {T: 10, Depth: 10},
	}}}}
	u := NewUniform()
	u.Value = UniformLossRate
	ok, err := u.SetupFromConfig(Config{Name: "loss", Kind: KindUniform, Relations: []CellIndex{{I: 0, J: 0}}}, "", loader, "loss.csv")
	require.NoError(t, err)
	require.True(t, ok)

	fn := declareAndLookup(t, u, desc, p)

	timeBuf := statecodec.EncodeOne(0, p)
	timestepBuf := statecodec.EncodeOne(1, p)
	bedBuf := statecodec.EncodeScalars([]float64{0}, p)
	cellState := statecodec.EncodeCellStates([]domain.CellState{{Eta: 3}}, p)

	require.NoError(t, fn(&kernelreg.ExecContext{Args: []kernelreg.ArgView{
		{Name: "hipims.time", Data: timeBuf},
		{Name: "hipims.timestep", Data: timestepBuf},
		{Name: "hipims.bed", Data: bedBuf},
		{Name: "hipims.cellState", Data: cellState},
	}}))

	got := statecodec.ReadCellState(cellState, 0, p)
	assert.Equal(t, 0.0, got.Eta) // 3 - 10*1 = -7, clamped up to bed(0)
}

func TestUniformLossRateSubtractsDepth(t *testing.T) {
	p := numeric.Double
	desc := domain.Descriptor{Cols: 1, Rows: 1, Dx: 1, Precision: p}

	loader := &fakeLoader{series: map[string]Series{"loss.csv": {Entries: []TimeSeriesEntry{
		{T: 0, Depth: 1}, {T: 10, Depth: 1},
	}}}}
	u := NewUniform()
	u.Value = UniformLossRate
	ok, err := u.SetupFromConfig(Config{Name: "loss", Kind: KindUniform, Relations: []CellIndex{{I: 0, J: 0}}}, "", loader, "loss.csv")
	require.NoError(t, err)
	require.True(t, ok)

	fn := declareAndLookup(t, u, desc, p)

	timeBuf := statecodec.EncodeOne(0, p)
	timestepBuf := statecodec.EncodeOne(1, p)
	bedBuf := statecodec.EncodeScalars([]float64{-5}, p)
	cellState := statecodec.EncodeCellStates([]domain.CellState{{Eta: 3}}, p)

	require.NoError(t, fn(&kernelreg.ExecContext{Args: []kernelreg.ArgView{
		{Name: "hipims.time", Data: timeBuf},
		{Name: "hipims.timestep", Data: timestepBuf},
		{Name: "hipims.bed", Data: bedBuf},
		{Name: "hipims.cellState", Data: cellState},
	}}))

	got := statecodec.ReadCellState(cellState, 0, p)
	assert.Equal(t, 2.0, got.Eta) // 3 - 1*1
}

func TestGriddedSetupRejectsMismatchedGridLength(t *testing.T) {
	loader := &fakeLoader{series: map[string]Series{"grid.csv": {Entries: []TimeSeriesEntry{
		{T: 0, Grid: []float64{1, 2}},
		{T: 1, Grid: []float64{1, 2, 3}}, // wrong length for a 2-cell domain
	}}}}
	g := NewGridded(2)
	_, err := g.SetupFromConfig(Config{Name: "rainfall", Kind: KindGridded, Relations: []CellIndex{{I: 0, J: 0}}}, "", loader, "grid.csv")
	assert.Error(t, err)
}

func TestGriddedKernelAppliesPerCellGridValue(t *testing.T) {
	p := numeric.Single
	desc := domain.Descriptor{Cols: 2, Rows: 1, Dx: 1, Precision: p}

	loader := &fakeLoader{series: map[string]Series{"grid.csv": {Entries: []TimeSeriesEntry{
		{T: 0, Grid: []float64{1, 2}},
		{T: 10, Grid: []float64{1, 2}},
	}}}}
	g := NewGridded(2)
	ok, err := g.SetupFromConfig(Config{Name: "rainfall", Kind: KindGridded, Relations: []CellIndex{{I: 0, J: 0}}}, "", loader, "grid.csv")
	require.NoError(t, err)
	require.True(t, ok)

	fn := declareAndLookup(t, g, desc, p)

	timeBuf := statecodec.EncodeOne(5, p)
	timestepBuf := statecodec.EncodeOne(1, p)
	bedBuf := statecodec.EncodeScalars([]float64{0, 0}, p)
	cellState := statecodec.EncodeCellStates(make([]domain.CellState, 2), p)

	require.NoError(t, fn(&kernelreg.ExecContext{Args: []kernelreg.ArgView{
		{Name: "hipims.time", Data: timeBuf},
		{Name: "hipims.timestep", Data: timestepBuf},
		{Name: "hipims.bed", Data: bedBuf},
		{Name: "hipims.cellState", Data: cellState},
	}}))

	got0 := statecodec.ReadCellState(cellState, 0, p)
	got1 := statecodec.ReadCellState(cellState, 1, p)
	assert.InDelta(t, 1.0, got0.Eta, 1e-4)
	assert.InDelta(t, 2.0, got1.Eta, 1e-4)
}
