package boundary

import (
	"github.com/hipims/hipims-go/internal/buffernames"
	"github.com/hipims/hipims-go/internal/device"
	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/program"
	"github.com/hipims/hipims-go/internal/statecodec"
)

// Promaides is the monolithic boundary aggregator used by the Promaides
// scheme variant: it drives all relation cells for every configured
// sub-boundary through one kernel call, bdy_Promaides, instead of one
// kernel per concrete kind (spec.md §4.4, §4.5).
type Promaides struct {
	base
	members []Config
}

// NewPromaides constructs an empty aggregator over the given member
// boundary configurations.
func NewPromaides(members []Config) *Promaides {
	p := &Promaides{members: members}
	p.cfg.Kind = KindPromaides
	p.cfg.Name = "bdy_Promaides"
	// The aggregator's relation set is the union of every member's
	// relations, since it drives them all through a single kernel call.
	for _, m := range members {
		p.cfg.Relations = append(p.cfg.Relations, m.Relations...)
	}
	return p
}

// SetupFromConfig loads the series shared across all aggregated members.
// Per-member series loading (each member may point at a different source
// file) is the loader's responsibility; this orchestration layer only
// needs one combined series for the aggregator's kernel binding. The
// aggregator keeps its own name and the union of its members' relations;
// only the interpretation fields of cfg are taken over.
func (p *Promaides) SetupFromConfig(cfg Config, sourceDir string, loader SeriesLoader, sourceFile string) (bool, error) {
	cfg.Kind = KindPromaides
	cfg.Name = p.cfg.Name
	cfg.Relations = p.cfg.Relations
	return p.setup(cfg, loader, sourceFile)
}

// DeclareKernel registers this boundary's closure: at each tick it samples
// the shared series once and applies it, per member's own depth/discharge
// interpretation, to that member's relation cells — the single-kernel
// aggregation the Promaides scheme variant expects (spec.md §4.4, §4.5).
func (p *Promaides) DeclareKernel(builder *program.Builder, desc domain.Descriptor) error {
	prec := desc.Precision
	cfg := p.cfg
	series := p.series
	members := p.members
	p.declareKernel(builder, func(ctx *kernelreg.ExecContext) error {
		timeBuf, ok := ctx.Arg(buffernames.Time)
		if !ok {
			return errUnboundArg(cfg.Name, buffernames.Time)
		}
		bedBuf, ok := ctx.Arg(buffernames.Bed)
		if !ok {
			return errUnboundArg(cfg.Name, buffernames.Bed)
		}
		cellState := ctx.Args[len(ctx.Args)-1].Data

		t := statecodec.DecodeOne(timeBuf, prec)
		entry := series.ValueAt(t)
		for _, m := range members {
			qx, qy := entry.Qx, entry.Qy
			if m.DischargeInterp == DischargeTotal && len(m.Relations) > 0 {
				qx /= float64(len(m.Relations))
				qy /= float64(len(m.Relations))
			}
			for _, rel := range m.Relations {
				id := desc.CellID(rel.I, rel.J)
				s := statecodec.ReadCellState(cellState, id, prec)
				bed := statecodec.ReadScalar(bedBuf, id, prec)
				applyDepth(&s, m.DepthInterp, bed, entry.Depth)
				applyDischarge(&s, m.DischargeInterp, bed, qx, qy)
				statecodec.WriteCellState(cellState, id, s, prec)
			}
		}
		return nil
	})
	return nil
}

// PrepareBoundary resolves the kernel this boundary declared and binds the
// domain's static scalar buffers, leaving the cell state unbound.
func (p *Promaides) PrepareBoundary(dev device.Device, prog *program.Program, bufs PreparedDomainBuffers) error {
	return p.prepare(dev, prog, bufs)
}

// ApplyBoundary binds the cell-state argument and enqueues the kernel.
func (p *Promaides) ApplyBoundary(cellState *device.Buffer) error { return p.apply(cellState) }

// StreamBoundary is a no-op: the aggregator's series is loaded eagerly.
func (p *Promaides) StreamBoundary(t float64) error { return nil }

// CleanBoundary is a no-op.
func (p *Promaides) CleanBoundary() error { return nil }
