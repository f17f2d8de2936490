// Package numeric provides the abstract scalar wrapper used everywhere the
// scheme needs to pick between single- and double-precision device storage
// without branching on the precision flag at every call site.
package numeric

import (
	"encoding/binary"
	"math"
)

// Precision selects the storage width used for device buffers.
type Precision int

const (
	// Double stores scalars as 64-bit floats.
	Double Precision = iota
	// Single stores scalars as 32-bit floats.
	Single
)

// String implements fmt.Stringer.
func (p Precision) String() string {
	switch p {
	case Single:
		return "single"
	case Double:
		return "double"
	default:
		return "unknown"
	}
}

// ByteWidth returns the size in bytes of one scalar at this precision.
func (p Precision) ByteWidth() int {
	if p == Single {
		return 4
	}
	return 8
}

// Encode writes v into dst (which must be at least ByteWidth() bytes) using
// little-endian byte order, truncating to float32 when Single.
func (p Precision) Encode(dst []byte, v float64) {
	if p == Single {
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
		return
	}
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
}

// Decode reads a scalar out of src (little-endian) back into a float64.
func (p Precision) Decode(src []byte) float64 {
	if p == Single {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(src)))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(src))
}

// Round rounds v to the given number of decimal places, matching the
// rounding contract used by Domain.HandleInputData.
func Round(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
