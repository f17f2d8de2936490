package boundary

import (
	"github.com/hipims/hipims-go/internal/buffernames"
	"github.com/hipims/hipims-go/internal/device"
	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/program"
	"github.com/hipims/hipims-go/internal/statecodec"
)

// UniformValue selects what a Uniform boundary's series value represents.
type UniformValue int

const (
	UniformRainIntensity UniformValue = iota
	UniformLossRate
)

// Uniform is a domain-wide boundary whose series has a single scalar
// component per entry (e.g. rainfall intensity) applied identically to
// every cell (spec.md §3, §4.4).
type Uniform struct {
	base
	Value UniformValue
}

// NewUniform constructs an empty, unprepared uniform boundary.
func NewUniform() *Uniform {
	u := &Uniform{Value: UniformRainIntensity}
	u.cfg.Kind = KindUniform
	return u
}

// SetupFromConfig loads the series; uniform boundaries have no relation
// cells to divide "total" values across (the value already applies to
// every cell identically), so no further normalisation happens here.
func (u *Uniform) SetupFromConfig(cfg Config, sourceDir string, loader SeriesLoader, sourceFile string) (bool, error) {
	cfg.Kind = KindUniform
	return u.setup(cfg, loader, sourceFile)
}

// DeclareKernel registers this boundary's closure: at each tick it samples
// the series at the current time, scales by the elapsed timestep, and
// applies the resulting depth delta to every cell in the domain identically
// (spec.md §3: "applied identically to every cell" — the configured
// relation list is not consulted, it only exists to satisfy Config.Validate
// for loaders that always populate it).
func (u *Uniform) DeclareKernel(builder *program.Builder, desc domain.Descriptor) error {
	p := desc.Precision
	cfg := u.cfg
	series := u.series
	value := u.Value
	n := desc.CellCount()
	u.declareKernel(builder, func(ctx *kernelreg.ExecContext) error {
		timeBuf, ok := ctx.Arg(buffernames.Time)
		if !ok {
			return errUnboundArg(cfg.Name, buffernames.Time)
		}
		timestepBuf, ok := ctx.Arg(buffernames.Timestep)
		if !ok {
			return errUnboundArg(cfg.Name, buffernames.Timestep)
		}
		bedBuf, ok := ctx.Arg(buffernames.Bed)
		if !ok {
			return errUnboundArg(cfg.Name, buffernames.Bed)
		}
		cellState := ctx.Args[len(ctx.Args)-1].Data

		t := statecodec.DecodeOne(timeBuf, p)
		dt := statecodec.DecodeOne(timestepBuf, p)
		entry := series.ValueAt(t)
		delta := entry.Depth * dt
		if value == UniformLossRate {
			delta = -delta
		}
		for id := 0; id < n; id++ {
			s := statecodec.ReadCellState(cellState, id, p)
			bed := statecodec.ReadScalar(bedBuf, id, p)
			s.Eta += delta
			if s.Eta < bed {
				s.Eta = bed
			}
			statecodec.WriteCellState(cellState, id, s, p)
		}
		return nil
	})
	return nil
}

// PrepareBoundary resolves the kernel this boundary declared and binds the
// domain's static scalar buffers, leaving the cell state unbound.
func (u *Uniform) PrepareBoundary(dev device.Device, prog *program.Program, bufs PreparedDomainBuffers) error {
	return u.prepare(dev, prog, bufs)
}

// ApplyBoundary binds the cell-state argument and enqueues the kernel.
func (u *Uniform) ApplyBoundary(cellState *device.Buffer) error { return u.apply(cellState) }

// StreamBoundary is a no-op: the series is loaded eagerly.
func (u *Uniform) StreamBoundary(t float64) error { return nil }

// CleanBoundary is a no-op.
func (u *Uniform) CleanBoundary() error { return nil }
