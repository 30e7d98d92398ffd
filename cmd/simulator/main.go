package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/smartcontractkit/keeper-registry/tools/simulator/run"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/simulate"
	"github.com/smartcontractkit/keeper-registry/tools/simulator/telemetry"
)

var (
	simulationFile  = flag.StringP("simulation-file", "f", "./simulation_plan.json", "file path to read simulation config from")
	outputDirectory = flag.StringP("output-directory", "o", "./simulation_output", "directory path to output log files")
	serveCharts     = flag.Bool("serve-charts", false, "serve result charts, registry metrics and the run report on the chart port after the run")
	chartsPort      = flag.Int("charts-port", 8080, "port to serve charts on")
	verbose         = flag.BoolP("verbose", "v", false, "make output verbose (prints logs and writes results to the output directory)")
	showProgress    = flag.Bool("progress", true, "render block and registration progress")
)

func main() {
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	if err := runSimulation(logger); err != nil {
		logger.Println(err)
		os.Exit(1)
	}
}

func runSimulation(logger *log.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	plan, err := run.LoadSimulationPlan(*simulationFile)
	if err != nil {
		return err
	}

	outputs, err := run.SetupOutput(*outputDirectory, *verbose, plan)
	if err != nil {
		return err
	}

	defer outputs.Close()

	var progress *telemetry.ProgressTelemetry

	if *showProgress {
		progress = telemetry.NewProgressTelemetry(os.Stdout)
	} else {
		progress = telemetry.NewProgressTelemetry(io.Discard)
	}

	simulation, err := simulate.New(plan, outputs.PerformCollector, progress, outputs.SimulationLog)
	if err != nil {
		return err
	}

	defer simulation.Close()

	logger.Printf("starting simulation %s", outputs.RunID)

	progress.Start()

	report, runErr := simulation.Run(ctx)

	_ = progress.Close()

	if runErr != nil {
		return runErr
	}

	fmt.Println(outputs.PerformCollector.PrintTabularResults())

	if err := outputs.WriteResults(); err != nil {
		return err
	}

	for _, upkeep := range report.Unexpected() {
		logger.Printf("%s (%s): expected %t, %d performs, %d missed eligibilities", upkeep.Name, upkeep.ID, upkeep.Expected, len(upkeep.Performs), len(upkeep.Missed))
	}

	outcome := report.Err()

	if *serveCharts {
		listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", *chartsPort))
		if err != nil {
			return errors.Join(err, outcome)
		}

		logger.Printf("serving charts at http://%s, interrupt to exit", listener.Addr())

		if err := run.NewResultServer(outputs.PerformCollector, report).Serve(ctx, listener); err != nil {
			return errors.Join(err, outcome)
		}
	}

	return outcome
}
