// Package domain implements the host-side cell grid (C3): per-cell state
// and static arrays, a frozen descriptor, typed accessors, and the
// raster-input ingestion contract used by external loaders.
package domain

import (
	"fmt"
	"math"

	"github.com/hipims/hipims-go/internal/numeric"
)

// DisabledSentinel marks a cell as disabled when it appears as EtaMax, or
// as a value in the disabled-cells raster channel per spec.md §6.
const DisabledSentinel = -9999.0

// Descriptor is the domain's immutable geometry (spec.md §3).
type Descriptor struct {
	Cols, Rows int
	Dx         float64
	X0, Y0     float64
	Precision  numeric.Precision
}

// CellCount returns Cols*Rows.
func (d Descriptor) CellCount() int { return d.Cols * d.Rows }

// CellID returns the flat row-major index of cell (i, j).
func (d Descriptor) CellID(i, j int) int { return j*d.Cols + i }

// CellState is the four-scalar per-cell state vector.
type CellState struct {
	Eta    float64
	EtaMax float64
	Qx     float64
	Qy     float64
}

// Disabled reports whether this cell is permanently excluded from the
// numerical kernels (spec.md §3 invariant).
func (c CellState) Disabled() bool { return c.EtaMax == DisabledSentinel }

// FlowFlags packs the per-axis no-flow and Poleni-overflow bits.
type FlowFlags struct {
	NoFlowNorth, NoFlowSouth, NoFlowEast, NoFlowWest bool
	PoleniNorth, PoleniSouth, PoleniEast, PoleniWest bool
}

// BoundaryCoupling is the two-component boundary/coupling scalar.
type BoundaryCoupling struct {
	Source       float64 // injected source rate
	CouplingSink float64 // two-way coupling sink
}

// trackers holds the running min/max bookkeeping for raster inputs,
// treating DisabledSentinel as "missing" (spec.md §4.3).
type trackers struct {
	bedSeen, fslSeen, depthSeen bool
	bedMin, bedMax              float64
	fslMin, fslMax              float64
	depthMin, depthMax          float64
}

func (t *trackers) observe(seen *bool, min, max *float64, v float64) {
	if !*seen {
		*min, *max = v, v
		*seen = true
		return
	}
	if v < *min {
		*min = v
	}
	if v > *max {
		*max = v
	}
}

// ReadBacker is the read-back contract a Scheme must satisfy so Domain can
// trigger a full device sync before copying output arrays. Domain depends
// only on this interface, never on package scheme, to avoid the
// Domain<->Scheme import cycle called out in spec.md §9.
type ReadBacker interface {
	BlockUntilFinished() error
	ReadBackCellStates() ([]CellState, error)
	ReadBackDSDt() ([]float64, error)
}

// Domain owns the per-cell host arrays for one simulation domain.
type Domain struct {
	desc   Descriptor
	frozen bool

	states []CellState
	bed    []float64
	n      []float64
	flags  []FlowFlags
	coup   []BoundaryCoupling
	dsdt   []float64

	trk trackers

	readBack ReadBacker
}

// New allocates a Domain's host arrays for the given descriptor. The
// descriptor is copied; mutating the caller's copy afterwards has no
// effect.
func New(desc Descriptor) *Domain {
	n := desc.CellCount()
	d := &Domain{
		desc:   desc,
		states: make([]CellState, n),
		bed:    make([]float64, n),
		n:      make([]float64, n),
		flags:  make([]FlowFlags, n),
		coup:   make([]BoundaryCoupling, n),
		dsdt:   make([]float64, n),
	}
	for i := range d.states {
		d.states[i] = CellState{}
	}
	return d
}

// BindScheme attaches the ReadBacker used by output accessors. Must be
// called before any Read* method and before Freeze.
func (d *Domain) BindScheme(rb ReadBacker) {
	d.readBack = rb
}

// Descriptor returns the domain's geometry.
func (d *Domain) Descriptor() Descriptor { return d.desc }

// CellCount returns the number of cells in the domain.
func (d *Domain) CellCount() int { return d.desc.CellCount() }

// Freeze locks (cols, rows, precision) once a device buffer referencing
// this domain has been allocated (spec.md §3 invariant).
func (d *Domain) Freeze() { d.frozen = true }

// Frozen reports whether the domain has been frozen.
func (d *Domain) Frozen() bool { return d.frozen }

func (d *Domain) mustIndex(cellID int) {
	if cellID < 0 || cellID >= len(d.states) {
		panic(fmt.Sprintf("domain: cell id %d out of range [0,%d)", cellID, len(d.states)))
	}
}

// State returns a copy of cell cellID's state vector.
func (d *Domain) State(cellID int) CellState {
	d.mustIndex(cellID)
	return d.states[cellID]
}

// SetState overwrites cell cellID's state vector. Only valid before the
// scheme takes ownership of the device buffers (spec §5 shared-resource
// policy: cell state host array mutated by Domain only during initial load
// before prepare).
func (d *Domain) SetState(cellID int, s CellState) {
	d.mustIndex(cellID)
	d.states[cellID] = s
}

// States returns the full state slice, read-only by convention (borrowed
// by Scheme at prepare time per spec §9).
func (d *Domain) States() []CellState { return d.states }

// BedElevation returns the bed elevation at cellID.
func (d *Domain) BedElevation(cellID int) float64 {
	d.mustIndex(cellID)
	return d.bed[cellID]
}

// SetBedElevation sets the bed elevation at cellID, rounded to decimals.
func (d *Domain) SetBedElevation(cellID int, v float64, decimals int) {
	d.mustIndex(cellID)
	d.bed[cellID] = numeric.Round(v, decimals)
}

// Manning returns the Manning roughness at cellID.
func (d *Domain) Manning(cellID int) float64 {
	d.mustIndex(cellID)
	return d.n[cellID]
}

// SetManning sets the Manning roughness at cellID.
func (d *Domain) SetManning(cellID int, v float64, decimals int) {
	d.mustIndex(cellID)
	d.n[cellID] = numeric.Round(v, decimals)
}

// Flags returns the flow-state flags at cellID.
func (d *Domain) Flags(cellID int) FlowFlags {
	d.mustIndex(cellID)
	return d.flags[cellID]
}

// SetFlags overwrites the flow-state flags at cellID.
func (d *Domain) SetFlags(cellID int, f FlowFlags) {
	d.mustIndex(cellID)
	d.flags[cellID] = f
}

// Coupling returns the boundary/coupling scalar pair at cellID.
func (d *Domain) Coupling(cellID int) BoundaryCoupling {
	d.mustIndex(cellID)
	return d.coup[cellID]
}

// SetCoupling overwrites the boundary/coupling scalar pair at cellID.
func (d *Domain) SetCoupling(cellID int, c BoundaryCoupling) {
	d.mustIndex(cellID)
	d.coup[cellID] = c
}

// DSDt returns the host-side derivative accumulator at cellID.
// ReadOutput(OutputDSDt) returns the device values read back; it does not
// update this host array.
func (d *Domain) DSDt(cellID int) float64 {
	d.mustIndex(cellID)
	return d.dsdt[cellID]
}

// InputKind enumerates the raster-valued input channels (spec.md §6).
type InputKind int

const (
	InputBed InputKind = iota
	InputFSL
	InputDepth
	InputDisabled
	InputDischargeX
	InputDischargeY
	InputVelocityX
	InputVelocityY
	InputManning
	InputMaxDepth
	InputMaxFSL
	InputFroude
)

// HandleInputData normalises one external raster sample: rounds value to
// decimals and dispatches it to the matching setter, maintaining the
// bed/FSL/depth min-max trackers (treating DisabledSentinel as missing)
// along the way. Disabled cells are encoded in the InputDisabled channel by
// 1.0 < value < 9999.0 (spec.md §6).
func (d *Domain) HandleInputData(cellID int, value float64, kind InputKind, decimals int) {
	d.mustIndex(cellID)
	v := numeric.Round(value, decimals)

	switch kind {
	case InputBed:
		d.bed[cellID] = v
		if v != DisabledSentinel {
			d.trk.observe(&d.trk.bedSeen, &d.trk.bedMin, &d.trk.bedMax, v)
		}
	case InputFSL:
		if v != DisabledSentinel {
			d.trk.observe(&d.trk.fslSeen, &d.trk.fslMin, &d.trk.fslMax, v)
		}
		s := d.states[cellID]
		s.Eta = v
		d.states[cellID] = s
	case InputDepth:
		if v != DisabledSentinel {
			d.trk.observe(&d.trk.depthSeen, &d.trk.depthMin, &d.trk.depthMax, v)
		}
		s := d.states[cellID]
		s.Eta = d.bed[cellID] + v
		d.states[cellID] = s
	case InputDisabled:
		if v > 1.0 && v < 9999.0 {
			s := d.states[cellID]
			s.EtaMax = DisabledSentinel
			s.Qx, s.Qy = 0, 0
			d.states[cellID] = s
		}
	case InputDischargeX:
		s := d.states[cellID]
		s.Qx = v
		d.states[cellID] = s
	case InputDischargeY:
		s := d.states[cellID]
		s.Qy = v
		d.states[cellID] = s
	case InputVelocityX:
		s := d.states[cellID]
		h := s.Eta - d.bed[cellID]
		if h > 0 {
			s.Qx = v * h
		}
		d.states[cellID] = s
	case InputVelocityY:
		s := d.states[cellID]
		h := s.Eta - d.bed[cellID]
		if h > 0 {
			s.Qy = v * h
		}
		d.states[cellID] = s
	case InputManning:
		d.n[cellID] = v
	case InputMaxDepth:
		s := d.states[cellID]
		s.EtaMax = math.Max(s.EtaMax, d.bed[cellID]+v)
		d.states[cellID] = s
	case InputMaxFSL:
		s := d.states[cellID]
		s.EtaMax = math.Max(s.EtaMax, v)
		d.states[cellID] = s
	case InputFroude:
		// Froude number is a derived diagnostic with no persistent host
		// slot; accepted for interface symmetry with the other raster
		// kinds and otherwise ignored.
	}
}

// BedRange returns the observed (min, max) bed elevation, ignoring missing
// cells, and whether any sample has been observed yet.
func (d *Domain) BedRange() (min, max float64, ok bool) {
	return d.trk.bedMin, d.trk.bedMax, d.trk.bedSeen
}

// FSLRange returns the observed (min, max) free-surface level.
func (d *Domain) FSLRange() (min, max float64, ok bool) {
	return d.trk.fslMin, d.trk.fslMax, d.trk.fslSeen
}

// DepthRange returns the observed (min, max) depth.
func (d *Domain) DepthRange() (min, max float64, ok bool) {
	return d.trk.depthMin, d.trk.depthMax, d.trk.depthSeen
}

// OutputKind enumerates the read-back arrays (spec.md §6).
type OutputKind int

const (
	OutputDepth OutputKind = iota
	OutputDSDt
	OutputVelocityX
	OutputVelocityY
)

// ReadOutput blocks until the device queue is drained, triggers a full
// read-back through the bound Scheme, blocks again, then copies from the
// host mirror into a freshly allocated j*Cols+i indexed array, always in
// float64 regardless of internal precision (spec.md §4.3, §6).
func (d *Domain) ReadOutput(kind OutputKind) ([]float64, error) {
	if d.readBack == nil {
		return nil, fmt.Errorf("domain: ReadOutput called before BindScheme")
	}
	if err := d.readBack.BlockUntilFinished(); err != nil {
		return nil, err
	}
	states, err := d.readBack.ReadBackCellStates()
	if err != nil {
		return nil, err
	}
	dsdt, err := d.readBack.ReadBackDSDt()
	if err != nil {
		return nil, err
	}
	if err := d.readBack.BlockUntilFinished(); err != nil {
		return nil, err
	}

	out := make([]float64, len(states))
	for idx, s := range states {
		switch kind {
		case OutputDepth:
			out[idx] = s.Eta - d.bed[idx]
		case OutputDSDt:
			out[idx] = dsdt[idx]
		case OutputVelocityX:
			h := s.Eta - d.bed[idx]
			if h > 0 {
				out[idx] = s.Qx / h
			}
		case OutputVelocityY:
			h := s.Eta - d.bed[idx]
			if h > 0 {
				out[idx] = s.Qy / h
			}
		}
	}
	return out, nil
}
