package boundary

import (
	"github.com/hipims/hipims-go/internal/buffernames"
	"github.com/hipims/hipims-go/internal/device"
	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/program"
	"github.com/hipims/hipims-go/internal/statecodec"
)

// Cell is a point-cell boundary: a named set of (i,j) relation cells that
// share one time series of (depth-component, qx-component, qy-component)
// entries (spec.md §3, §4.4).
type Cell struct {
	base
}

// NewCell constructs an empty, unprepared point-cell boundary.
func NewCell() *Cell {
	c := &Cell{}
	c.cfg.Kind = KindCell
	return c
}

// SetupFromConfig loads this boundary's series and, when the discharge
// interpretation is "total", divides every series entry's discharge
// components by the relation cell count — frozen from this point on
// (spec.md §4.4).
func (c *Cell) SetupFromConfig(cfg Config, sourceDir string, loader SeriesLoader, sourceFile string) (bool, error) {
	cfg.Kind = KindCell
	ok, err := c.setup(cfg, loader, sourceFile)
	if !ok || err != nil {
		return ok, err
	}
	if c.cfg.DischargeInterp == DischargeTotal {
		n := float64(c.relationCount())
		for i := range c.series.Entries {
			c.series.Entries[i].Qx /= n
			c.series.Entries[i].Qy /= n
		}
	}
	return true, nil
}

// DeclareKernel registers this boundary's closure: at each tick it samples
// the series at the current time and writes the interpreted depth/discharge
// into every configured relation cell (spec.md §4.4's point-cell contract).
func (c *Cell) DeclareKernel(builder *program.Builder, desc domain.Descriptor) error {
	p := desc.Precision
	cfg := c.cfg
	series := c.series
	c.declareKernel(builder, func(ctx *kernelreg.ExecContext) error {
		timeBuf, ok := ctx.Arg(buffernames.Time)
		if !ok {
			return errUnboundArg(cfg.Name, buffernames.Time)
		}
		bedBuf, ok := ctx.Arg(buffernames.Bed)
		if !ok {
			return errUnboundArg(cfg.Name, buffernames.Bed)
		}
		cellState := ctx.Args[len(ctx.Args)-1].Data

		t := statecodec.DecodeOne(timeBuf, p)
		entry := series.ValueAt(t)
		for _, rel := range cfg.Relations {
			id := desc.CellID(rel.I, rel.J)
			s := statecodec.ReadCellState(cellState, id, p)
			bed := statecodec.ReadScalar(bedBuf, id, p)
			applyDepth(&s, cfg.DepthInterp, bed, entry.Depth)
			applyDischarge(&s, cfg.DischargeInterp, bed, entry.Qx, entry.Qy)
			statecodec.WriteCellState(cellState, id, s, p)
		}
		return nil
	})
	return nil
}

// PrepareBoundary resolves the kernel this boundary declared and binds the
// domain's static scalar buffers, leaving the cell state unbound.
func (c *Cell) PrepareBoundary(dev device.Device, prog *program.Program, bufs PreparedDomainBuffers) error {
	return c.prepare(dev, prog, bufs)
}

// ApplyBoundary binds the cell-state argument and enqueues the kernel.
func (c *Cell) ApplyBoundary(cellState *device.Buffer) error { return c.apply(cellState) }

// StreamBoundary is a no-op: the full series is loaded eagerly at setup
// time (spec.md §4.4).
func (c *Cell) StreamBoundary(t float64) error { return nil }

// CleanBoundary is a no-op: no streaming resources to release.
func (c *Cell) CleanBoundary() error { return nil }
