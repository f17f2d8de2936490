package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrecisionString(t *testing.T) {
	assert.Equal(t, "single", Single.String())
	assert.Equal(t, "double", Double.String())
}

func TestByteWidth(t *testing.T) {
	assert.Equal(t, 4, Single.ByteWidth())
	assert.Equal(t, 8, Double.ByteWidth())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, p := range []Precision{Single, Double} {
		for _, v := range []float64{0, 1, -1, 3.25, 1e9, -1e-6} {
			buf := make([]byte, p.ByteWidth())
			p.Encode(buf, v)
			got := p.Decode(buf)
			assert.InDelta(t, v, got, 1e-3, "precision=%v value=%v", p, v)
		}
	}
}

func TestEncodeSinglePrecisionLoss(t *testing.T) {
	// float32 cannot represent 0.1 exactly; round-tripping through
	// Single must lose precision that Double preserves.
	v := 0.1

	singleBuf := make([]byte, Single.ByteWidth())
	Single.Encode(singleBuf, v)
	single := Single.Decode(singleBuf)

	doubleBuf := make([]byte, Double.ByteWidth())
	Double.Encode(doubleBuf, v)
	double := Double.Decode(doubleBuf)

	assert.NotEqual(t, v, single)
	assert.Equal(t, v, double)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.23, Round(1.2345, 2))
	assert.Equal(t, 1.0, Round(0.9999999, 2))
	assert.Equal(t, 1.2345, Round(1.2345, -1))
}
