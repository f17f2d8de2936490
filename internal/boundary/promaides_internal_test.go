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

func TestPromaidesAggregatesMembersIntoUnionOfRelations(t *testing.T) {
	members := []Config{
		{Name: "a", Relations: []CellIndex{{I: 0, J: 0}}},
		{Name: "b", Relations: []CellIndex{{I: 1, J: 0}, {I: 2, J: 0}}},
	}
	p := NewPromaides(members)
	assert.Len(t, p.cfg.Relations, 3)
	assert.Equal(t, "bdy_Promaides", p.cfg.Name)
}

func TestPromaidesKernelAppliesEachMembersOwnInterpretation(t *testing.T) {
	prec := numeric.Double
	desc := domain.Descriptor{Cols: 3, Rows: 1, Dx: 1, Precision: prec}

	members := []Config{
		{Name: "total", DepthInterp: DepthFSL, DischargeInterp: DischargeTotal,
			Relations: []CellIndex{{I: 0, J: 0}, {I: 1, J: 0}}},
		{Name: "ignored", DepthInterp: DepthIgnore, DischargeInterp: DischargeIgnored,
			Relations: []CellIndex{{I: 2, J: 0}}},
	}
	loader := &fakeLoader{series: map[string]Series{"shared.csv": {Entries: []TimeSeriesEntry{
		{T: 0, Depth: 5, Qx: 10, Qy: 0},
		{T: 10, Depth: 5, Qx: 10, Qy: 0},
	}}}}

	p := NewPromaides(members)
	ok, err := p.SetupFromConfig(Config{Name: "bdy_Promaides"}, "", loader, "shared.csv")
	require.NoError(t, err)
	require.True(t, ok)

	registry := kernelreg.NewRegistry()
	builder := program.NewBuilder(registry, prec)
	require.NoError(t, p.DeclareKernel(builder, desc))
	fn, err := registry.Lookup(p.instanceKernelName())
	require.NoError(t, err)

	timeBuf := statecodec.EncodeOne(5, prec)
	bedBuf := statecodec.EncodeScalars([]float64{0, 0, 0}, prec)
	initial := []domain.CellState{{Eta: -1}, {Eta: -1}, {Eta: 9}}
	cellState := statecodec.EncodeCellStates(initial, prec)

	require.NoError(t, fn(&kernelreg.ExecContext{Args: []kernelreg.ArgView{
		{Name: "hipims.time", Data: timeBuf},
		{Name: "hipims.bed", Data: bedBuf},
		{Name: "hipims.cellState", Data: cellState},
	}}))

	cell0 := statecodec.ReadCellState(cellState, 0, prec)
	cell1 := statecodec.ReadCellState(cellState, 1, prec)
	cell2 := statecodec.ReadCellState(cellState, 2, prec)

	assert.Equal(t, 5.0, cell0.Eta) // FSL: eta = depth
	assert.Equal(t, 5.0, cell1.Eta)
	assert.Equal(t, 5.0, cell0.Qx) // total discharge split over 2 relations
	assert.Equal(t, 5.0, cell1.Qx)

	assert.Equal(t, 9.0, cell2.Eta) // depth ignored: untouched
	assert.Equal(t, 0.0, cell2.Qx) // discharge ignored: left at zero value
}
