package statecodec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/numeric"
	"github.com/hipims/hipims-go/internal/statecodec"
)

func TestCellStateRoundTripBothPrecisions(t *testing.T) {
	states := []domain.CellState{
		{Eta: 1.5, EtaMax: 2.5, Qx: -3.25, Qy: 4.125},
		{Eta: 0, EtaMax: domain.DisabledSentinel, Qx: 0, Qy: 0},
	}
	for _, p := range []numeric.Precision{numeric.Single, numeric.Double} {
		buf := statecodec.EncodeCellStates(states, p)
		assert.Len(t, buf, len(states)*statecodec.CellStateStride(p))

		got := statecodec.DecodeCellStates(buf, len(states), p)
		assert.Equal(t, states, got)
	}
}

func TestWriteCellStateOverwritesInPlace(t *testing.T) {
	p := numeric.Double
	buf := statecodec.EncodeCellStates(make([]domain.CellState, 2), p)
	statecodec.WriteCellState(buf, 1, domain.CellState{Eta: 9}, p)

	assert.Equal(t, domain.CellState{}, statecodec.ReadCellState(buf, 0, p))
	assert.Equal(t, domain.CellState{Eta: 9}, statecodec.ReadCellState(buf, 1, p))
}

func TestScalarsRoundTrip(t *testing.T) {
	values := []float64{1, -2.5, 3.125, 0}
	for _, p := range []numeric.Precision{numeric.Single, numeric.Double} {
		buf := statecodec.EncodeScalars(values, p)
		assert.Equal(t, values, statecodec.DecodeScalars(buf, len(values), p))
	}
}

func TestWriteScalarOverwritesInPlace(t *testing.T) {
	p := numeric.Double
	buf := statecodec.EncodeScalars([]float64{1, 2, 3}, p)
	statecodec.WriteScalar(buf, 1, 99, p)
	assert.Equal(t, []float64{1, 99, 3}, statecodec.DecodeScalars(buf, 3, p))
}

func TestEncodeDecodeOne(t *testing.T) {
	p := numeric.Single
	buf := statecodec.EncodeOne(42.5, p)
	assert.Len(t, buf, p.ByteWidth())
	assert.Equal(t, 42.5, statecodec.DecodeOne(buf, p))
}

func TestCouplingRoundTrip(t *testing.T) {
	values := []domain.BoundaryCoupling{{Source: 1, CouplingSink: 2}, {Source: -3.5, CouplingSink: 0}}
	p := numeric.Double
	buf := statecodec.EncodeCoupling(values, p)
	assert.Len(t, buf, len(values)*statecodec.CouplingStride(p))
	assert.Equal(t, values[0], statecodec.ReadCoupling(buf, 0, p))
	assert.Equal(t, values[1], statecodec.ReadCoupling(buf, 1, p))
}

func TestFlowFlagsRoundTrip(t *testing.T) {
	flags := []domain.FlowFlags{
		{NoFlowNorth: true, PoleniWest: true},
		{NoFlowSouth: true, NoFlowEast: true, PoleniNorth: true, PoleniSouth: true},
		{},
	}
	buf := statecodec.EncodeFlowFlags(flags)
	assert.Len(t, buf, len(flags))
	for i, f := range flags {
		assert.Equal(t, f, statecodec.DecodeFlowFlags(buf, i))
	}
}

func TestUint32RoundTrip(t *testing.T) {
	buf := statecodec.EncodeUint32(123456)
	assert.Len(t, buf, 4)
	assert.Equal(t, uint32(123456), statecodec.DecodeUint32(buf))
}
