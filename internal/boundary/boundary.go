// Package boundary implements the boundary set (C4): the three time-varying
// source kinds (point cells, domain-uniform, gridded rainfall) that inject
// flow into a domain each tick, plus the monolithic Promaides aggregator.
//
// Grounded on the original CBoundaryCell/CBoundaryUniform/CBoundaryGridded
// classes (original_source/src/Boundaries) for the depth/discharge
// interpretation enums and the total-discharge-divided-by-relation-count
// contract, and on the teacher's Builder idiom for prepare-time wiring.
package boundary

import (
	"fmt"

	"github.com/hipims/hipims-go/internal/device"
	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/errs"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/program"
)

// Kind identifies a boundary's concrete variant.
type Kind int

const (
	KindCell Kind = iota
	KindUniform
	KindGridded
	KindPromaides
)

func (k Kind) kernelName() string {
	switch k {
	case KindCell:
		return "bdy_Cell"
	case KindUniform:
		return "bdy_Uniform"
	case KindGridded:
		return "bdy_Gridded"
	case KindPromaides:
		return "bdy_Promaides"
	default:
		return "bdy_Unknown"
	}
}

// DepthInterpretation selects how a series' depth component is applied.
type DepthInterpretation int

const (
	DepthFSL DepthInterpretation = iota
	DepthDepth
	DepthIgnore
)

// DischargeInterpretation selects how a series' discharge component is
// applied.
type DischargeInterpretation int

const (
	DischargeTotal DischargeInterpretation = iota
	DischargePerCell
	DischargeVelocity
	DischargeSurging
	DischargeIgnored
)

// CellIndex is a (i, j) grid coordinate bound to a boundary.
type CellIndex struct{ I, J int }

// TimeSeriesEntry is one sample row. Gridded boundaries set Grid instead of
// the scalar components; point/uniform boundaries set the scalar
// components and leave Grid nil.
type TimeSeriesEntry struct {
	T     float64
	Depth float64
	Qx    float64
	Qy    float64
	Grid  []float64
}

// Series is a validated, strictly-increasing time series (spec.md §3
// invariant: len>=2, strictly increasing T, uniform spacing recomputed on
// load).
type Series struct {
	Entries []TimeSeriesEntry
	DtTS    float64
}

// Validate checks the §3 series invariants and recomputes DtTS.
func (s *Series) Validate() error {
	if len(s.Entries) < 2 {
		return fmt.Errorf("boundary series has %d entries, need at least 2", len(s.Entries))
	}
	for i := 1; i < len(s.Entries); i++ {
		if s.Entries[i].T <= s.Entries[i-1].T {
			return fmt.Errorf("boundary series not strictly increasing at index %d (t=%g <= previous t=%g)",
				i, s.Entries[i].T, s.Entries[i-1].T)
		}
	}
	s.DtTS = s.Entries[1].T - s.Entries[0].T
	return nil
}

// ValueAt linearly interpolates the series at time t, clamping to the
// first/last entry outside the series' range.
func (s *Series) ValueAt(t float64) TimeSeriesEntry {
	if t <= s.Entries[0].T {
		return s.Entries[0]
	}
	last := s.Entries[len(s.Entries)-1]
	if t >= last.T {
		return last
	}
	for i := 1; i < len(s.Entries); i++ {
		if t <= s.Entries[i].T {
			a, b := s.Entries[i-1], s.Entries[i]
			frac := (t - a.T) / (b.T - a.T)
			entry := TimeSeriesEntry{
				T:     t,
				Depth: lerp(a.Depth, b.Depth, frac),
				Qx:    lerp(a.Qx, b.Qx, frac),
				Qy:    lerp(a.Qy, b.Qy, frac),
			}
			if a.Grid != nil && b.Grid != nil {
				entry.Grid = lerpGrid(a.Grid, b.Grid, frac)
			}
			return entry
		}
	}
	return last
}

func lerp(a, b, frac float64) float64 { return a + (b-a)*frac }

func lerpGrid(a, b []float64, frac float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = lerp(a[i], b[i], frac)
	}
	return out
}

// Config is the semantic configuration a loader produces for one boundary
// (spec.md §3 BoundaryRecord, minus the already-loaded series which is
// supplied separately once loading succeeds).
type Config struct {
	Name            string
	Kind            Kind
	DepthInterp     DepthInterpretation
	DischargeInterp DischargeInterpretation
	Relations       []CellIndex
}

// Validate rejects illegal combinations, e.g. a velocity discharge
// interpretation paired with a gridded kind (spec.md §9 design note: make
// illegal combinations unrepresentable).
func (c Config) Validate() error {
	if c.DischargeInterp == DischargeVelocity && c.Kind == KindGridded {
		return fmt.Errorf("boundary %q: velocity discharge interpretation is not valid for gridded boundaries", c.Name)
	}
	if len(c.Relations) == 0 {
		return fmt.Errorf("boundary %q: no relation cells configured", c.Name)
	}
	return nil
}

// PreparedDomainBuffers are the device buffers a boundary needs at prepare
// time (spec.md §4.4).
type PreparedDomainBuffers struct {
	Bed       *device.Buffer
	Manning   *device.Buffer
	Time      *device.Buffer
	HydroTime *device.Buffer
	Timestep  *device.Buffer
}

// SeriesLoader is the external collaborator that turns a source file into a
// validated Series. Concrete CSV/grid parsing is out of scope for this
// module (spec.md §1); csvloader.Load is the one loader shipped here.
type SeriesLoader interface {
	Load(kind Kind, sourcePath string) (Series, error)
}

// Boundary is the common contract all three (plus Promaides) concrete
// kinds share (spec.md §4.4).
type Boundary interface {
	Name() string
	Kind() Kind
	SetupFromConfig(cfg Config, sourceDir string, loader SeriesLoader, sourceFile string) (bool, error)
	DeclareKernel(builder *program.Builder, desc domain.Descriptor) error
	PrepareBoundary(dev device.Device, prog *program.Program, bufs PreparedDomainBuffers) error
	ApplyBoundary(cellState *device.Buffer) error
	StreamBoundary(t float64) error
	CleanBoundary() error
}

// base holds the fields and device-binding logic shared by every concrete
// kind; embedding it keeps Cell/Uniform/Gridded thin.
//
// Each boundary instance registers its own kernel closure under a
// name scoped to this instance (instanceKernelName), rather than sharing one
// fixed "bdy_Cell"-style body across every boundary of a kind: the closure
// captures this boundary's already-loaded Config and Series directly, so
// there is no separate config/series buffer whose raw bytes a kernel must
// re-parse — the kernel *is* the boundary, expressed as a Go function
// (spec.md §1 treats kernel bodies as external collaborators; here the
// collaborator is supplied by the boundary that needs it).
type base struct {
	cfg    Config
	series Series

	dev      device.Device
	kernel   *device.Kernel
	prepared bool
}

func (b *base) Name() string { return b.cfg.Name }
func (b *base) Kind() Kind   { return b.cfg.Kind }

// instanceKernelName scopes the kernel name to this boundary so concurrently
// configured boundaries of the same Kind never collide in the registry.
func (b *base) instanceKernelName() string { return b.cfg.Kind.kernelName() + "#" + b.cfg.Name }

// declareKernel registers fn as this boundary's kernel body before Compile.
func (b *base) declareKernel(builder *program.Builder, fn kernelreg.Func) {
	builder.RegisterKernel(b.instanceKernelName(), fn)
}

// setup validates cfg, loads the series via loader, validates the series,
// and returns false (not an error) when the series fails validation (fewer
// than two entries, or times not strictly increasing) — per spec.md §7 that
// is a warning, and the boundary is disabled, not failed. The
// total-discharge-divided-by-relation-count normalisation is not done here;
// Cell.SetupFromConfig applies it after setup returns.
func (b *base) setup(cfg Config, loader SeriesLoader, sourceFile string) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, errs.Wrap(errs.ModelStop, 0, err)
	}
	series, err := loader.Load(cfg.Kind, sourceFile)
	if err != nil {
		return false, errs.Wrap(errs.Warning, 0, err)
	}
	if err := series.Validate(); err != nil {
		// A too-short series disables the boundary but does not abort
		// loading (spec.md §7).
		return false, nil
	}
	b.cfg = cfg
	b.series = series
	return true, nil
}

// prepare resolves this boundary's already-declared kernel (registered by
// DeclareKernel before Compile) and binds the domain's static scalar
// buffers, leaving the cell state unbound until ApplyBoundary (spec.md
// §4.4).
func (b *base) prepare(dev device.Device, prog *program.Program, bufs PreparedDomainBuffers) error {
	b.dev = dev

	kernel, err := dev.NewKernel(prog, b.instanceKernelName())
	if err != nil {
		return err
	}
	kernel.AssignArguments([]*device.Buffer{
		bufs.Bed, bufs.Manning, bufs.Time, bufs.HydroTime, bufs.Timestep,
		nil, // cell state left unbound
	})

	b.kernel = kernel
	b.prepared = true
	return nil
}

func (b *base) apply(cellState *device.Buffer) error {
	if !b.prepared {
		return fmt.Errorf("boundary %q: ApplyBoundary called before PrepareBoundary", b.cfg.Name)
	}
	b.kernel.AssignArgument(5, cellState)
	return b.kernel.ScheduleExecution()
}

// relationCount returns the (already-frozen) relation count used to divide
// "total" discharge series.
func (b *base) relationCount() int { return len(b.cfg.Relations) }

// errUnboundArg reports a kernel closure finding one of the domain's static
// scalar buffers missing from the bound arguments — only possible if
// PrepareBoundary was skipped or mis-wired, since Scheme always binds these
// five before ApplyBoundary runs.
func errUnboundArg(boundaryName, argName string) error {
	return fmt.Errorf("boundary %q: kernel argument %q not bound", boundaryName, argName)
}

// applyDepth interprets a series entry's depth component against the
// DepthInterpretation the boundary was configured with (spec.md §3).
func applyDepth(s *domain.CellState, di DepthInterpretation, bed, depth float64) {
	switch di {
	case DepthFSL:
		s.Eta = depth
	case DepthDepth:
		s.Eta = bed + depth
	case DepthIgnore:
		// leave the cell's current water surface level untouched
	}
}

// applyDischarge interprets a series entry's discharge components against
// the DischargeInterpretation the boundary was configured with. "Total" and
// "PerCell" series are already per-relation-cell specific discharge by the
// time they reach here — Cell.SetupFromConfig divides Total series by the
// relation count up front (spec.md §4.4) — so both are applied directly,
// as is "Surging" (out-of-scope surge detail collapses to the same direct
// application). Only "Velocity" needs the current depth to convert to
// specific discharge.
func applyDischarge(s *domain.CellState, di DischargeInterpretation, bed, qx, qy float64) {
	switch di {
	case DischargeIgnored:
		return
	case DischargeVelocity:
		h := s.Eta - bed
		if h > 0 {
			s.Qx = qx * h
			s.Qy = qy * h
		}
	default:
		s.Qx = qx
		s.Qy = qy
	}
}
