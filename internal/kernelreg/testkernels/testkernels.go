// Package testkernels is an arithmetically honest, deliberately simplified
// kernel bundle: it stands in for the real shallow-water numerics this
// module's orchestration layer treats as an external collaborator (spec.md
// §1). It registers the fixed-role kernels Scheme.buildKernels resolves by
// name — fullTimestep.*, friction, timestepReduction, timestepUpdate,
// timeAdvance, resetCounters — so the orchestrator can be exercised
// end-to-end without a real GPU solver.
//
// The flux model is an explicit, symmetric diffusive exchange between
// 4-connected neighbours rather than a Riemann solver: conservative by
// construction (every exchanged unit subtracted from one cell is added to
// its neighbour from the same read-only snapshot), respects no-flow edges
// and disabled cells, and is CFL-limited by timestepReduction so the batch
// loop's adaptive retargeting has a real, moving quantity to track.
//
// Grounded on CSchemeGodunov's kernel argument contract
// (original_source/src/CSchemeGodunov.cpp) for argument order and on
// spec.md §4.5.1/§4.5.4 for the kernel roles; the wave-speed CFL estimate
// follows the shallow-water characteristic speed |u|+sqrt(g*h) the original
// solver itself uses to bound its timestep.
package testkernels

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/numeric"
	"github.com/hipims/hipims-go/internal/statecodec"
)

const gravity = 9.81

// diffusivity is the fixed exchange-rate coefficient standing in for a real
// flux solver's momentum equation (spec.md §1: numerics out of scope).
const diffusivity = 0.05

// Register binds every fixed-role kernel name this module's Scheme expects
// into reg. Call once before the first Scheme.Prepare in a process, or per
// test as a fresh *kernelreg.Registry.
func Register(reg *kernelreg.Registry) {
	reg.Register("fullTimestep.godunov", fullTimestep)
	reg.Register("fullTimestep.musclHancock", fullTimestep)
	reg.Register("fullTimestep.inertialSimplified", fullTimestep)
	reg.Register("fullTimestep.promaides", fullTimestep)
	reg.Register("friction", friction)
	reg.Register("timestepReduction", timestepReduction)
	reg.Register("timestepUpdate", timestepUpdate)
	reg.Register("timeAdvance", timeAdvance)
	reg.Register("resetCounters", resetCounters)
}

func precisionOf(ctx *kernelreg.ExecContext) numeric.Precision {
	if ctx.Constants["PRECISION"] == "single" {
		return numeric.Single
	}
	return numeric.Double
}

func constFloat(ctx *kernelreg.ExecContext, name string, def float64) float64 {
	v, ok := ctx.Constants[name]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func constInt(ctx *kernelreg.ExecContext, name string, def int) int {
	v, ok := ctx.Constants[name]
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// fullTimestep advances every non-disabled cell by one explicit diffusive
// exchange with its 4-connected neighbours, honouring no-flow edges and the
// dry threshold, and records the per-cell rate of change into the dsdt
// accumulator. Args: bed, manning (unused here; consumed by friction),
// current, other, flowFlags, boundaryCoupling (reserved for a future
// multi-domain coupling kernel), dsdt, timestep.
func fullTimestep(ctx *kernelreg.ExecContext) error {
	bedBuf := ctx.Args[0].Data
	currentBuf := ctx.Args[2].Data
	otherBuf := ctx.Args[3].Data
	flagsBuf := ctx.Args[4].Data
	dsdtBuf := ctx.Args[6].Data
	timestepBuf := ctx.Args[7].Data

	p := precisionOf(ctx)
	cols := constInt(ctx, "DOMAIN_COLS", 0)
	rows := constInt(ctx, "DOMAIN_ROWS", 0)
	dx := constFloat(ctx, "DOMAIN_DX", 1)
	verySmall := constFloat(ctx, "VERY_SMALL", 1e-10)

	dt := statecodec.DecodeOne(timestepBuf, p)
	if dt <= 0 {
		// No CFL estimate has landed yet (first iteration of a batch before
		// timestepReduction has run); copy state across unchanged rather
		// than advance by an undefined amount.
		copy(otherBuf, currentBuf)
		return nil
	}

	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			id := j*cols + i
			s := statecodec.ReadCellState(currentBuf, id, p)
			if s.Disabled() {
				statecodec.WriteCellState(otherBuf, id, s, p)
				continue
			}
			bed := statecodec.ReadScalar(bedBuf, id, p)
			h := s.Eta - bed
			if h < verySmall {
				h = 0
			}
			flags := statecodec.DecodeFlowFlags(flagsBuf, id)

			var netFlux, qx, qy float64
			if i+1 < cols && !flags.NoFlowEast {
				if flux, ok := exchangeFlux(currentBuf, bedBuf, id, j*cols+i+1, dx, verySmall, p); ok {
					netFlux -= flux
					qx += flux
				}
			}
			if i-1 >= 0 && !flags.NoFlowWest {
				if flux, ok := exchangeFlux(currentBuf, bedBuf, id, j*cols+i-1, dx, verySmall, p); ok {
					netFlux -= flux
					qx -= flux
				}
			}
			if j+1 < rows && !flags.NoFlowSouth {
				if flux, ok := exchangeFlux(currentBuf, bedBuf, id, (j+1)*cols+i, dx, verySmall, p); ok {
					netFlux -= flux
					qy += flux
				}
			}
			if j-1 >= 0 && !flags.NoFlowNorth {
				if flux, ok := exchangeFlux(currentBuf, bedBuf, id, (j-1)*cols+i, dx, verySmall, p); ok {
					netFlux -= flux
					qy -= flux
				}
			}

			newEta := s.Eta + netFlux*dt/dx
			if newEta < bed {
				newEta = bed
			}
			next := s
			next.Eta = newEta
			if newEta > s.EtaMax {
				next.EtaMax = newEta
			}
			next.Qx = qx
			next.Qy = qy
			statecodec.WriteCellState(otherBuf, id, next, p)
			statecodec.WriteScalar(dsdtBuf, id, (newEta-s.Eta)/dt, p)
		}
	}
	return nil
}

// exchangeFlux computes the symmetric head-difference flux between cell id
// and its neighbour, reading both from the same read-only snapshot so the
// same-magnitude, opposite-sign flux the neighbour computes for this edge
// exactly cancels (mass conservation by construction). Returns ok=false
// when both sides are dry, in which case no exchange happens.
func exchangeFlux(stateBuf, bedBuf []byte, id, neighbor int, dx, verySmall float64, p numeric.Precision) (float64, bool) {
	s := statecodec.ReadCellState(stateBuf, id, p)
	nb := statecodec.ReadCellState(stateBuf, neighbor, p)
	if nb.Disabled() {
		return 0, false
	}
	bed := statecodec.ReadScalar(bedBuf, id, p)
	nbBed := statecodec.ReadScalar(bedBuf, neighbor, p)
	h := s.Eta - bed
	nh := nb.Eta - nbBed
	if h < verySmall && nh < verySmall {
		return 0, false
	}
	return diffusivity * (s.Eta - nb.Eta) / dx, true
}

// friction applies a quadratic Manning-roughness decay to each non-disabled
// cell's specific discharge. Args: manning, state (the side the scheme just
// wrote, rebound every iteration), flowFlags (unused — friction acts
// uniformly regardless of edge flags), timestep.
func friction(ctx *kernelreg.ExecContext) error {
	manningBuf := ctx.Args[0].Data
	stateBuf := ctx.Args[1].Data
	timestepBuf := ctx.Args[3].Data

	p := precisionOf(ctx)
	dt := statecodec.DecodeOne(timestepBuf, p)
	n := len(stateBuf) / statecodec.CellStateStride(p)

	for id := 0; id < n; id++ {
		s := statecodec.ReadCellState(stateBuf, id, p)
		if s.Disabled() {
			continue
		}
		manning := statecodec.ReadScalar(manningBuf, id, p)
		speed := math.Hypot(s.Qx, s.Qy)
		if speed <= 0 || manning <= 0 || dt <= 0 {
			continue
		}
		decay := 1.0 / (1.0 + dt*manning*speed)
		s.Qx *= decay
		s.Qy *= decay
		statecodec.WriteCellState(stateBuf, id, s, p)
	}
	return nil
}

// timestepReduction estimates the CFL-stable timestep from the shallow-water
// characteristic speed |u|+sqrt(g*h) at every wet cell and broadcasts the
// minimum into every slot of the reduction scratch buffer — a serial
// stand-in for a real parallel tree reduction, but numerically equivalent.
// Args: bed, timestep (unused; the previous value isn't needed to compute
// the next), reductionScratch, state.
func timestepReduction(ctx *kernelreg.ExecContext) error {
	bedBuf := ctx.Args[0].Data
	scratchBuf := ctx.Args[2].Data
	stateBuf := ctx.Args[3].Data

	p := precisionOf(ctx)
	courant := constFloat(ctx, "COURANT_NUMBER", 0.5)
	dx := constFloat(ctx, "DOMAIN_DX", 1)
	verySmall := constFloat(ctx, "VERY_SMALL", 1e-10)
	outputFrequency := constFloat(ctx, "OUTPUT_FREQUENCY", 60)
	n := len(stateBuf) / statecodec.CellStateStride(p)

	minDt := math.Inf(1)
	for id := 0; id < n; id++ {
		s := statecodec.ReadCellState(stateBuf, id, p)
		if s.Disabled() {
			continue
		}
		bed := statecodec.ReadScalar(bedBuf, id, p)
		h := s.Eta - bed
		if h < verySmall {
			continue
		}
		speed := math.Hypot(s.Qx/h, s.Qy/h)
		wave := speed + math.Sqrt(gravity*h)
		if wave <= 0 {
			continue
		}
		candidate := courant * dx / wave
		if candidate < minDt {
			minDt = candidate
		}
	}
	if math.IsInf(minDt, 1) {
		// Fully dry domain: nothing bounds the timestep, so cap it at the
		// output cadence rather than let it grow unbounded.
		minDt = outputFrequency
	}

	w := p.ByteWidth()
	for off := 0; off+w <= len(scratchBuf); off += w {
		p.Encode(scratchBuf[off:off+w], minDt)
	}
	return nil
}

// timestepUpdate reduces the scratch buffer's slots to their minimum and
// writes it as the next timestep. Args: reductionScratch, timestep.
func timestepUpdate(ctx *kernelreg.ExecContext) error {
	scratchBuf := ctx.Args[0].Data
	timestepBuf := ctx.Args[1].Data

	p := precisionOf(ctx)
	w := p.ByteWidth()
	min := math.Inf(1)
	for off := 0; off+w <= len(scratchBuf); off += w {
		v := p.Decode(scratchBuf[off : off+w])
		if v < min {
			min = v
		}
	}
	if math.IsInf(min, 1) {
		min = 1
	}
	p.Encode(timestepBuf, min)
	return nil
}

// timeAdvance commits the proposed timestep and advances the simulation
// clock, unless doing so would overshoot targetTime — in which case the
// timestep is clamped to land exactly on targetTime and the iteration
// counts as skipped rather than successful (spec.md §4.5.4). Args: time,
// targetTime, timestep, batchTimesteps, batchSuccessful, batchSkipped.
func timeAdvance(ctx *kernelreg.ExecContext) error {
	timeBuf := ctx.Args[0].Data
	targetTimeBuf := ctx.Args[1].Data
	timestepBuf := ctx.Args[2].Data
	batchTimestepsBuf := ctx.Args[3].Data
	batchSuccessfulBuf := ctx.Args[4].Data
	batchSkippedBuf := ctx.Args[5].Data

	p := precisionOf(ctx)
	t := statecodec.DecodeOne(timeBuf, p)
	dt := statecodec.DecodeOne(timestepBuf, p)
	target := statecodec.DecodeOne(targetTimeBuf, p)

	skipped := target > 0 && t+dt > target+1e-5
	if skipped {
		dt = target - t
		if dt < 0 {
			dt = 0
		}
	}

	p.Encode(timeBuf, t+dt)

	batchTimesteps := statecodec.DecodeOne(batchTimestepsBuf, p)
	p.Encode(batchTimestepsBuf, batchTimesteps+dt)

	if skipped {
		skippedCount := binary.LittleEndian.Uint32(batchSkippedBuf)
		binary.LittleEndian.PutUint32(batchSkippedBuf, skippedCount+1)
		return nil
	}
	successful := binary.LittleEndian.Uint32(batchSuccessfulBuf)
	binary.LittleEndian.PutUint32(batchSuccessfulBuf, successful+1)
	return nil
}

// resetCounters zeroes the batch bookkeeping buffers. Args: batchSuccessful,
// batchSkipped, batchTimesteps.
func resetCounters(ctx *kernelreg.ExecContext) error {
	binary.LittleEndian.PutUint32(ctx.Args[0].Data, 0)
	binary.LittleEndian.PutUint32(ctx.Args[1].Data, 0)
	p := precisionOf(ctx)
	p.Encode(ctx.Args[2].Data, 0)
	return nil
}
