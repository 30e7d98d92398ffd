package run

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/telemetry"
)

type Outputs struct {
	RunID                   string
	Path                    string
	SimulationLog           *log.Logger
	PerformCollector        *telemetry.PerformCollector
	simulationLogFileHandle *os.File
}

// Close closes every collector and the simulation log.
func (out *Outputs) Close() error {
	var err error

	for _, collector := range out.collectors() {
		if closeErr := collector.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close collector %d: %w", collector.Type(), closeErr))
		}
	}

	if out.simulationLogFileHandle != nil {
		err = errors.Join(err, out.simulationLogFileHandle.Close())
	}

	return err
}

// SetupOutput prepares a run directory under path named by a fresh run id.
// Without verbose output nothing is written to disk.
func SetupOutput(path string, verbose bool, plan config.SimulationPlan) (*Outputs, error) {
	runID := uuid.New().String()

	if !verbose {
		return &Outputs{
			RunID:            runID,
			SimulationLog:    log.New(io.Discard, "", 0),
			PerformCollector: telemetry.NewPerformCollector("", false),
		}, nil
	}

	runPath := filepath.Join(path, runID)

	err := os.MkdirAll(runPath, 0750)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, pkgerrors.Wrapf(err, "create output directory %s", runPath)
	}

	logger, lggF, err := openSimulationLog(runPath)
	if err != nil {
		return nil, err
	}

	if err := saveSimulationPlanToOutput(runPath, plan); err != nil {
		lggF.Close()

		return nil, err
	}

	return &Outputs{
		RunID:                   runID,
		Path:                    runPath,
		SimulationLog:           logger,
		PerformCollector:        telemetry.NewPerformCollector(runPath, true),
		simulationLogFileHandle: lggF,
	}, nil
}

// WriteResults writes the tabular summary, the raw records and the chart
// page to the run directory.
func (out *Outputs) WriteResults() error {
	if out.Path == "" {
		return nil
	}

	if err := out.PerformCollector.WriteResults(); err != nil {
		return err
	}

	summary := out.PerformCollector.PrintTabularResults()
	if err := os.WriteFile(filepath.Join(out.Path, "summary.txt"), []byte(summary), 0666); err != nil {
		return pkgerrors.Wrap(err, "write summary")
	}

	filename := filepath.Join(out.Path, "charts.html")

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return pkgerrors.Wrapf(err, "open chart file %s", filename)
	}

	defer f.Close()

	return out.PerformCollector.RenderCharts(f)
}

func (out *Outputs) collectors() []telemetry.Collector {
	if out.PerformCollector == nil {
		return nil
	}

	return []telemetry.Collector{out.PerformCollector}
}

func saveSimulationPlanToOutput(path string, plan config.SimulationPlan) error {
	filename := filepath.Join(path, "simulation_plan.json")
	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC

	f, err := os.OpenFile(filename, flags, 0666)
	if err != nil {
		return fmt.Errorf("failed to open simulation plan file (%s): %w", filename, err)
	}

	defer f.Close()

	b, err := plan.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode simulation_plan: %w", err)
	}

	l, err := f.Write(b)
	if err != nil {
		return fmt.Errorf("failed to write encoded simulation plan to file (%s): %w", filename, err)
	}

	if l != len(b) {
		return fmt.Errorf("failed to write encoded simulation plan to file (%s): not all bytes written", filename)
	}

	return nil
}

func openSimulationLog(path string) (*log.Logger, *os.File, error) {
	filename := filepath.Join(path, "simulation.log")
	flags := os.O_RDWR | os.O_CREATE | os.O_TRUNC

	f, err := os.OpenFile(filename, flags, 0666)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file (%s): %w", filename, err)
	}

	return log.New(f, "", log.LstdFlags), f, nil
}
