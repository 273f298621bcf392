package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"balance-ng/internal/config"
)

func main() {
	var (
		configPath   string
		scenarioPath string
		ticks        int
		replayPath   string
		replaySpeed  float64
		replayLoop   bool
		summaryPath  string
	)
	flag.StringVar(&configPath, "config", "./dev.yaml", "Path to YAML config")
	flag.StringVar(&scenarioPath, "scenario", "", "Scenario script (overrides sim.scenario)")
	flag.IntVar(&ticks, "ticks", 0, "Number of control ticks (0 = scenario duration)")
	flag.StringVar(&replayPath, "replay", "", "Stream a recorded tick log to sim.telemetry instead of simulating")
	flag.Float64Var(&replaySpeed, "replay-speed", 1, "Replay speed multiplier")
	flag.BoolVar(&replayLoop, "replay-loop", false, "Restart the replay at the end of the log until interrupted")
	flag.StringVar(&summaryPath, "log-summary", "", "Print a summary of a recorded tick log and exit")
	flag.Parse()

	if summaryPath != "" {
		if err := printLogSummary(summaryPath); err != nil {
			logrus.Fatalf("log summary failed: %v", err)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("config load failed: %v", err)
	}
	if scenarioPath != "" {
		cfg.Sim.Scenario = scenarioPath
	}

	// Validated by config.Load.
	lvl, _ := logrus.ParseLevel(cfg.Sim.LogLevel)
	logrus.SetLevel(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if replayPath != "" {
		if err := replayToTelemetry(ctx, cfg, replayPath, replaySpeed, replayLoop); err != nil {
			logrus.Fatalf("replay failed: %v", err)
		}
		return
	}

	res, err := simulate(ctx, cfg, ticks)
	if err != nil {
		logrus.Fatalf("simulation failed: %v", err)
	}
	logrus.WithFields(logrus.Fields{
		"run_id":       res.RunID,
		"ticks":        res.Ticks,
		"zmp_err_mean": res.Summary.ZmpErrMean,
		"zmp_err_max":  res.Summary.ZmpErrMax,
		"com_err_max":  res.Summary.ComErrMax,
		"plots":        res.Plots,
	}).Info("stabsim done")
}
