// Package statecodec defines the byte layout used to mirror domain.CellState
// slices and flat float64 scalar arrays into device.Buffer host memory, at
// whichever precision the scheme was configured for. Kernel bodies (real or
// test stand-ins) use it to interpret the raw bytes an ExecContext hands
// them; it is the one place that layout is defined so every kernel and the
// scheme agree on it.
package statecodec

import (
	"encoding/binary"

	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/numeric"
)

// CellStateStride returns the byte length of one encoded cell state.
func CellStateStride(p numeric.Precision) int { return 4 * p.ByteWidth() }

// EncodeCellStates writes states into a freshly allocated byte slice.
func EncodeCellStates(states []domain.CellState, p numeric.Precision) []byte {
	stride := CellStateStride(p)
	buf := make([]byte, len(states)*stride)
	for i, s := range states {
		WriteCellState(buf, i, s, p)
	}
	return buf
}

// DecodeCellStates reads count cell states out of buf.
func DecodeCellStates(buf []byte, count int, p numeric.Precision) []domain.CellState {
	out := make([]domain.CellState, count)
	for i := range out {
		out[i] = ReadCellState(buf, i, p)
	}
	return out
}

// ReadCellState decodes the cell at index idx.
func ReadCellState(buf []byte, idx int, p numeric.Precision) domain.CellState {
	w := p.ByteWidth()
	off := idx * CellStateStride(p)
	return domain.CellState{
		Eta:    p.Decode(buf[off : off+w]),
		EtaMax: p.Decode(buf[off+w : off+2*w]),
		Qx:     p.Decode(buf[off+2*w : off+3*w]),
		Qy:     p.Decode(buf[off+3*w : off+4*w]),
	}
}

// WriteCellState encodes s into buf at index idx.
func WriteCellState(buf []byte, idx int, s domain.CellState, p numeric.Precision) {
	w := p.ByteWidth()
	off := idx * CellStateStride(p)
	p.Encode(buf[off:off+w], s.Eta)
	p.Encode(buf[off+w:off+2*w], s.EtaMax)
	p.Encode(buf[off+2*w:off+3*w], s.Qx)
	p.Encode(buf[off+3*w:off+4*w], s.Qy)
}

// EncodeScalars writes a flat []float64 into a freshly allocated byte slice.
func EncodeScalars(values []float64, p numeric.Precision) []byte {
	w := p.ByteWidth()
	buf := make([]byte, len(values)*w)
	for i, v := range values {
		p.Encode(buf[i*w:(i+1)*w], v)
	}
	return buf
}

// DecodeScalars reads count scalars out of buf.
func DecodeScalars(buf []byte, count int, p numeric.Precision) []float64 {
	w := p.ByteWidth()
	out := make([]float64, count)
	for i := range out {
		out[i] = p.Decode(buf[i*w : (i+1)*w])
	}
	return out
}

// ReadScalar decodes a single scalar at the given index.
func ReadScalar(buf []byte, idx int, p numeric.Precision) float64 {
	w := p.ByteWidth()
	return p.Decode(buf[idx*w : (idx+1)*w])
}

// WriteScalar encodes a single scalar at the given index.
func WriteScalar(buf []byte, idx int, v float64, p numeric.Precision) {
	w := p.ByteWidth()
	p.Encode(buf[idx*w:(idx+1)*w], v)
}

// EncodeOne packs a single scalar into its own 1-element buffer; used for
// the time/timestep/target-time buffers, each one scalar wide.
func EncodeOne(v float64, p numeric.Precision) []byte {
	return EncodeScalars([]float64{v}, p)
}

// DecodeOne unpacks a single-scalar buffer.
func DecodeOne(buf []byte, p numeric.Precision) float64 {
	return ReadScalar(buf, 0, p)
}

// CouplingStride is the byte length of one encoded BoundaryCoupling pair.
func CouplingStride(p numeric.Precision) int { return 2 * p.ByteWidth() }

// EncodeCoupling writes a BoundaryCoupling slice into a freshly allocated
// byte slice.
func EncodeCoupling(values []domain.BoundaryCoupling, p numeric.Precision) []byte {
	stride := CouplingStride(p)
	buf := make([]byte, len(values)*stride)
	w := p.ByteWidth()
	for i, c := range values {
		off := i * stride
		p.Encode(buf[off:off+w], c.Source)
		p.Encode(buf[off+w:off+2*w], c.CouplingSink)
	}
	return buf
}

// ReadCoupling decodes the coupling pair at index idx.
func ReadCoupling(buf []byte, idx int, p numeric.Precision) domain.BoundaryCoupling {
	w := p.ByteWidth()
	off := idx * CouplingStride(p)
	return domain.BoundaryCoupling{
		Source:       p.Decode(buf[off : off+w]),
		CouplingSink: p.Decode(buf[off+w : off+2*w]),
	}
}

// flagBits assigns one bit per FlowFlags field; the order only needs to be
// internally consistent since no external kernel source reads this layout.
const (
	flagNoFlowNorth = 1 << iota
	flagNoFlowSouth
	flagNoFlowEast
	flagNoFlowWest
	flagPoleniNorth
	flagPoleniSouth
	flagPoleniEast
	flagPoleniWest
)

// EncodeFlowFlags packs one byte per cell.
func EncodeFlowFlags(flags []domain.FlowFlags) []byte {
	buf := make([]byte, len(flags))
	for i, f := range flags {
		var b byte
		if f.NoFlowNorth {
			b |= flagNoFlowNorth
		}
		if f.NoFlowSouth {
			b |= flagNoFlowSouth
		}
		if f.NoFlowEast {
			b |= flagNoFlowEast
		}
		if f.NoFlowWest {
			b |= flagNoFlowWest
		}
		if f.PoleniNorth {
			b |= flagPoleniNorth
		}
		if f.PoleniSouth {
			b |= flagPoleniSouth
		}
		if f.PoleniEast {
			b |= flagPoleniEast
		}
		if f.PoleniWest {
			b |= flagPoleniWest
		}
		buf[i] = b
	}
	return buf
}

// DecodeFlowFlags unpacks one cell's flags at index idx.
func DecodeFlowFlags(buf []byte, idx int) domain.FlowFlags {
	b := buf[idx]
	return domain.FlowFlags{
		NoFlowNorth: b&flagNoFlowNorth != 0,
		NoFlowSouth: b&flagNoFlowSouth != 0,
		NoFlowEast:  b&flagNoFlowEast != 0,
		NoFlowWest:  b&flagNoFlowWest != 0,
		PoleniNorth: b&flagPoleniNorth != 0,
		PoleniSouth: b&flagPoleniSouth != 0,
		PoleniEast:  b&flagPoleniEast != 0,
		PoleniWest:  b&flagPoleniWest != 0,
	}
}

// EncodeUint32 packs a single little-endian uint32 counter into a freshly
// allocated 4-byte buffer. Batch counters are plain integers regardless of
// the scheme's floating-point precision.
func EncodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// DecodeUint32 unpacks a counter buffer.
func DecodeUint32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}
