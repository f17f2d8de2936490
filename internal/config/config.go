// Package config decodes a run's YAML description into the domain
// descriptor, scheme options, and boundary records the orchestrator needs,
// grounded on the teacher's core.LoadProgramFileFromYAML pattern
// (core/program.go): a plain os.ReadFile followed by gopkg.in/yaml.v3
// Unmarshal into a tree of exported, yaml-tagged structs, then a conversion
// pass into the domain types proper. Unlike the teacher, decode errors are
// returned rather than panicked — this module never panics on bad input.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hipims/hipims-go/internal/boundary"
	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/numeric"
	"github.com/hipims/hipims-go/internal/scheme"
)

// YAMLRoot is the top-level shape of a run configuration file.
type YAMLRoot struct {
	Domain     YAMLDomain     `yaml:"domain"`
	Scheme     YAMLScheme     `yaml:"scheme"`
	Boundaries []YAMLBoundary `yaml:"boundaries"`
}

// YAMLDomain mirrors domain.Descriptor (spec.md §6).
type YAMLDomain struct {
	Cols      int     `yaml:"cols"`
	Rows      int     `yaml:"rows"`
	Dx        float64 `yaml:"dx"`
	X0        float64 `yaml:"x0"`
	Y0        float64 `yaml:"y0"`
	Precision string  `yaml:"precision"` // "single" | "double"
}

// YAMLScheme mirrors scheme.Options (spec.md §6).
type YAMLScheme struct {
	TimestepMode        string  `yaml:"timestep-mode"`  // "cfl" | "fixed"
	RiemannSolver       string  `yaml:"riemann-solver"` // "godunov" | "musclHancock" | "inertialSimplified" | "promaides"
	CacheMode           string  `yaml:"cache-mode"`     // "none" | "enabled" | "enabled-shared-rows"
	SyncMethod          string  `yaml:"sync-method"`    // "forecast" | "timestep"
	Courant             float64 `yaml:"courant"`
	DryThreshold        float64 `yaml:"dry-threshold"`
	ReductionWavefronts int     `yaml:"reduction-wavefronts"`
	WorkGroupSizeX      int     `yaml:"work-group-size-x"`
	WorkGroupSizeY      int     `yaml:"work-group-size-y"`
	FrictionEffects     *bool   `yaml:"friction-effects"`
	FrictionInFlux      bool    `yaml:"friction-in-flux-kernel"`
	RollbackLimit       int     `yaml:"rollback-limit"`
	SparesTarget        int     `yaml:"spares-target"`
	OutputFrequency     float64 `yaml:"output-frequency"`
	SimulationLength    float64 `yaml:"simulation-length"`
	InitialQueueAmount  int     `yaml:"initial-queue-amount"`
}

// YAMLBoundary mirrors boundary.Config plus the source file an external
// boundary.SeriesLoader reads the series from (spec.md §3, §6).
type YAMLBoundary struct {
	Name            string          `yaml:"name"`
	Kind            string          `yaml:"kind"` // "cell" | "uniform" | "gridded" | "promaides"
	DepthInterp     string          `yaml:"depth-interpretation"`
	DischargeInterp string          `yaml:"discharge-interpretation"`
	Source          string          `yaml:"source"`
	Relations       []YAMLCellIndex `yaml:"relations"`
}

// YAMLCellIndex mirrors boundary.CellIndex.
type YAMLCellIndex struct {
	I int `yaml:"i"`
	J int `yaml:"j"`
}

// Load reads and decodes path into a YAMLRoot.
func Load(path string) (YAMLRoot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return YAMLRoot{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var root YAMLRoot
	if err := yaml.Unmarshal(data, &root); err != nil {
		return YAMLRoot{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return root, nil
}

// Descriptor converts the decoded domain section into a domain.Descriptor.
func (r YAMLRoot) Descriptor() (domain.Descriptor, error) {
	prec, err := parsePrecision(r.Domain.Precision)
	if err != nil {
		return domain.Descriptor{}, err
	}
	if r.Domain.Cols <= 0 || r.Domain.Rows <= 0 {
		return domain.Descriptor{}, fmt.Errorf("config: domain cols/rows must be positive, got %d/%d",
			r.Domain.Cols, r.Domain.Rows)
	}
	if r.Domain.Dx <= 0 {
		return domain.Descriptor{}, fmt.Errorf("config: domain dx must be positive, got %g", r.Domain.Dx)
	}
	return domain.Descriptor{
		Cols: r.Domain.Cols, Rows: r.Domain.Rows,
		Dx: r.Domain.Dx, X0: r.Domain.X0, Y0: r.Domain.Y0,
		Precision: prec,
	}, nil
}

func parsePrecision(s string) (numeric.Precision, error) {
	switch s {
	case "", "double":
		return numeric.Double, nil
	case "single":
		return numeric.Single, nil
	default:
		return 0, fmt.Errorf("config: unknown precision %q, want single or double", s)
	}
}

// Options converts the decoded scheme section into scheme.Options, layering
// onto scheme.DefaultOptions so an omitted field keeps its default rather
// than zeroing out.
func (r YAMLRoot) Options() (scheme.Options, error) {
	opts := scheme.DefaultOptions()
	y := r.Scheme

	switch y.TimestepMode {
	case "", "cfl":
		opts.TimestepMode = scheme.TimestepCFL
	case "fixed":
		opts.TimestepMode = scheme.TimestepFixed
	default:
		return scheme.Options{}, fmt.Errorf("config: unknown timestep-mode %q", y.TimestepMode)
	}

	switch y.RiemannSolver {
	case "", "godunov":
		opts.RiemannSolver = scheme.RiemannGodunov
	case "musclHancock":
		opts.RiemannSolver = scheme.RiemannMUSCLHancock
	case "inertialSimplified":
		opts.RiemannSolver = scheme.RiemannInertialSimplified
	case "promaides":
		opts.RiemannSolver = scheme.RiemannPromaides
	default:
		return scheme.Options{}, fmt.Errorf("config: unknown riemann-solver %q", y.RiemannSolver)
	}

	switch y.CacheMode {
	case "", "none":
		opts.CacheMode = scheme.CacheDisabled
	case "enabled":
		opts.CacheMode = scheme.CacheEnabled
	case "enabled-shared-rows":
		opts.CacheMode = scheme.CacheEnabledSharedRows
	default:
		return scheme.Options{}, fmt.Errorf("config: unknown cache-mode %q", y.CacheMode)
	}

	switch y.SyncMethod {
	case "", "forecast":
		opts.SyncMethod = scheme.SyncForecast
	case "timestep":
		opts.SyncMethod = scheme.SyncTimestep
	default:
		return scheme.Options{}, fmt.Errorf("config: unknown sync-method %q", y.SyncMethod)
	}

	if y.Courant > 0 {
		opts.Courant = y.Courant
	}
	if y.DryThreshold > 0 {
		opts.DryThreshold = y.DryThreshold
	}
	if y.ReductionWavefronts > 0 {
		opts.ReductionWavefronts = y.ReductionWavefronts
	}
	if y.WorkGroupSizeX > 0 {
		opts.WorkGroupSize[0] = y.WorkGroupSizeX
	}
	if y.WorkGroupSizeY > 0 {
		opts.WorkGroupSize[1] = y.WorkGroupSizeY
	}
	if y.FrictionEffects != nil {
		opts.FrictionEffects = *y.FrictionEffects
	}
	opts.FrictionInFluxKernel = y.FrictionInFlux
	if y.RollbackLimit > 0 {
		opts.RollbackLimit = y.RollbackLimit
	}
	if y.SparesTarget > 0 {
		opts.SparesTarget = y.SparesTarget
	}
	if y.OutputFrequency > 0 {
		opts.OutputFrequency = y.OutputFrequency
	}
	if y.SimulationLength > 0 {
		opts.SimulationLength = y.SimulationLength
	}
	if y.InitialQueueAmount > 0 {
		opts.InitialQueueAmount = y.InitialQueueAmount
	}
	return opts, nil
}

// BoundarySource is one decoded boundary's config plus the series source
// path a boundary.SeriesLoader reads from.
type BoundarySource struct {
	Config boundary.Config
	Source string
}

// BoundarySources converts the decoded boundary section into
// boundary.Config values paired with their source paths. Promaides members
// are not decoded here: a Promaides aggregator is assembled by the caller
// from the plain boundary kinds it wraps, since the aggregation is an
// orchestration decision, not a per-record one.
func (r YAMLRoot) BoundarySources() ([]BoundarySource, error) {
	out := make([]BoundarySource, 0, len(r.Boundaries))
	for _, y := range r.Boundaries {
		kind, err := parseKind(y.Kind)
		if err != nil {
			return nil, err
		}
		depth, err := parseDepthInterp(y.DepthInterp)
		if err != nil {
			return nil, err
		}
		discharge, err := parseDischargeInterp(y.DischargeInterp)
		if err != nil {
			return nil, err
		}
		relations := make([]boundary.CellIndex, len(y.Relations))
		for i, rel := range y.Relations {
			relations[i] = boundary.CellIndex{I: rel.I, J: rel.J}
		}
		cfg := boundary.Config{
			Name: y.Name, Kind: kind,
			DepthInterp: depth, DischargeInterp: discharge,
			Relations: relations,
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, BoundarySource{Config: cfg, Source: y.Source})
	}
	return out, nil
}

func parseKind(s string) (boundary.Kind, error) {
	switch s {
	case "cell":
		return boundary.KindCell, nil
	case "uniform":
		return boundary.KindUniform, nil
	case "gridded":
		return boundary.KindGridded, nil
	case "promaides":
		return boundary.KindPromaides, nil
	default:
		return 0, fmt.Errorf("config: unknown boundary kind %q", s)
	}
}

func parseDepthInterp(s string) (boundary.DepthInterpretation, error) {
	switch s {
	case "", "fsl":
		return boundary.DepthFSL, nil
	case "depth":
		return boundary.DepthDepth, nil
	case "ignore":
		return boundary.DepthIgnore, nil
	default:
		return 0, fmt.Errorf("config: unknown depth-interpretation %q", s)
	}
}

func parseDischargeInterp(s string) (boundary.DischargeInterpretation, error) {
	switch s {
	case "", "total":
		return boundary.DischargeTotal, nil
	case "per-cell":
		return boundary.DischargePerCell, nil
	case "velocity":
		return boundary.DischargeVelocity, nil
	case "surging":
		return boundary.DischargeSurging, nil
	case "ignored":
		return boundary.DischargeIgnored, nil
	default:
		return 0, fmt.Errorf("config: unknown discharge-interpretation %q", s)
	}
}
