package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"tailsitter-core/utils"
)

func main() {
	var (
		iface      = flag.String("iface", "", "SocketCAN interface name (empty: in-process loopback)")
		mapPath    = flag.String("map", "config/can/can_map.csv", "Path to can_map.csv")
		scenPath   = flag.String("scenario", "config/scenarios/front_transition.json", "Scenario JSON file")
		paramsPath = flag.String("params", "config/params.defaults.json", "Parameter JSON file (empty: built-in defaults)")
		liftPath   = flag.String("lift", "", "Lift table CSV (empty: built-in table)")
		plotPath   = flag.String("plot", "", "Write a PNG plot of the run")
		dbPath     = flag.String("db", "", "sqlite flight log")
		wsAddr     = flag.String("ws", "", "Serve websocket telemetry on this address, e.g. :8080")
		logFile    = flag.String("logfile", "closed_loop.log", "Log file")
		logLevel   = flag.String("log", "info", "trace|debug|info|warn|error|critical")
	)
	flag.Parse()

	log, err := utils.NewFileLogger(*logFile, utils.ParseLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + *logFile + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	cfg := RunnerConfig{
		Interface:    *iface,
		MapPath:      *mapPath,
		ScenarioPath: *scenPath,
		ParamsPath:   *paramsPath,
		LiftPath:     *liftPath,
		PlotPath:     *plotPath,
		DBPath:       *dbPath,
		WSAddr:       *wsAddr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	// SIGHUP re-reads the parameter file
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := runner.ReloadParams(); err != nil {
					log.Warn("Parameter reload rejected: %v", err)
				}
			}
		}
	}()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
