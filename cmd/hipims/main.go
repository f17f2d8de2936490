// Command hipims drives a single-domain HiPIMS run end to end: load a YAML
// configuration, wire the device/program/domain/scheme/boundary set it
// describes, and run the model controller to completion.
//
// Grounded on the pack's inference-sim cmd/root.go cobra wiring (the
// teacher's own samples/*/main.go are bare main functions with no flag
// parsing) and on the teacher's atexit.Exit(0) graceful-shutdown idiom.
package main

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/hipims/hipims-go/internal/boundary"
	"github.com/hipims/hipims-go/internal/config"
	"github.com/hipims/hipims-go/internal/csvloader"
	"github.com/hipims/hipims-go/internal/device"
	"github.com/hipims/hipims-go/internal/domain"
	"github.com/hipims/hipims-go/internal/domainset"
	"github.com/hipims/hipims-go/internal/kernelreg"
	"github.com/hipims/hipims-go/internal/kernelreg/testkernels"
	"github.com/hipims/hipims-go/internal/model"
	"github.com/hipims/hipims-go/internal/program"
	"github.com/hipims/hipims-go/internal/scheme"
	"github.com/hipims/hipims-go/internal/telemetry"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "hipims",
	Short: "HiPIMS hydrodynamic solver orchestrator",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single-domain simulation from a YAML configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)
		return runSimulation(configPath)
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to the run's YAML configuration (required)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")
	runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

func main() {
	defer atexit.Exit(0)
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		atexit.Exit(1)
	}
}

// runSimulation assembles every component C1-C7 describes from root's
// decoded configuration and drives the model controller to completion.
func runSimulation(path string) error {
	root, err := config.Load(path)
	if err != nil {
		return err
	}

	desc, err := root.Descriptor()
	if err != nil {
		return err
	}
	opts, err := root.Options()
	if err != nil {
		return err
	}
	sources, err := root.BoundarySources()
	if err != nil {
		return err
	}

	registry := kernelreg.NewRegistry()
	testkernels.Register(registry)

	dom := domain.New(desc)

	// sc is wired in below; the closure lets the device stamp errors with
	// simulation time once the scheme driving it exists.
	var sc *scheme.Scheme
	simTime := func() float64 {
		if sc == nil {
			return 0
		}
		return sc.CurrentTime()
	}

	devDesc := device.Descriptor{
		Name:              "hipims-cpu",
		MaxWorkGroupSize:  opts.WorkGroupSize[0] * opts.WorkGroupSize[1],
		SupportsCache:     opts.CacheMode != scheme.CacheDisabled,
		PreferredWorkSize: opts.WorkGroupSize,
	}
	dev := device.New(devDesc, simTime)

	sc = scheme.New(dev, dom, opts)
	dom.BindScheme(sc)
	builder := program.NewBuilder(registry, desc.Precision)

	loader := csvloader.New(logrus.StandardLogger())
	sourceDir := filepath.Dir(path)
	boundaries, err := buildBoundaries(sources, desc, sourceDir, loader, opts)
	if err != nil {
		return err
	}

	if err := sc.Prepare(builder, boundaries); err != nil {
		return err
	}

	set := domainset.New([]domainset.Member{{Domain: dom, Scheme: sc}}, opts.SyncMethod, opts.SparesTarget)
	reporter := telemetry.NewReporter(telemetry.NewConsoleSink())
	m := model.New(set, reporter, model.NopOutputSink{})

	logrus.WithField("config", path).Info("hipims: starting run")
	if err := m.Run(); err != nil {
		telemetry.LogError(err)
		return err
	}
	logrus.Info("hipims: run complete")
	return nil
}

// buildBoundaries instantiates the concrete boundary.Boundary for each
// decoded source and loads its series. A Promaides scheme aggregates every
// decoded source into a single monolithic boundary instead of one kernel
// call per record (spec.md §4.4, §4.5).
func buildBoundaries(sources []config.BoundarySource, desc domain.Descriptor, sourceDir string,
	loader boundary.SeriesLoader, opts scheme.Options) ([]boundary.Boundary, error) {

	if opts.RiemannSolver == scheme.RiemannPromaides {
		members := make([]boundary.Config, len(sources))
		for i, src := range sources {
			members[i] = src.Config
		}
		agg := boundary.NewPromaides(members)
		if len(sources) > 0 {
			ok, err := agg.SetupFromConfig(sources[0].Config, sourceDir, loader, filepath.Join(sourceDir, sources[0].Source))
			if err != nil {
				return nil, err
			}
			if !ok {
				logrus.Warn("hipims: promaides aggregator series too short, boundary disabled")
				return nil, nil
			}
		}
		return []boundary.Boundary{agg}, nil
	}

	out := make([]boundary.Boundary, 0, len(sources))
	for _, src := range sources {
		b, err := newBoundary(src.Config.Kind, desc)
		if err != nil {
			return nil, err
		}
		ok, err := b.SetupFromConfig(src.Config, sourceDir, loader, filepath.Join(sourceDir, src.Source))
		if err != nil {
			return nil, err
		}
		if !ok {
			logrus.WithField("boundary", src.Config.Name).Warn("hipims: series too short, boundary disabled")
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func newBoundary(kind boundary.Kind, desc domain.Descriptor) (boundary.Boundary, error) {
	switch kind {
	case boundary.KindCell:
		return boundary.NewCell(), nil
	case boundary.KindUniform:
		return boundary.NewUniform(), nil
	case boundary.KindGridded:
		return boundary.NewGridded(desc.CellCount()), nil
	default:
		return nil, fmt.Errorf("hipims: unsupported standalone boundary kind %d", kind)
	}
}
