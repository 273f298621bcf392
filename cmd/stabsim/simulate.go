package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"balance-ng/internal/config"
	"balance-ng/internal/replay"
	"balance-ng/internal/report"
	"balance-ng/internal/rt"
	"balance-ng/internal/runstore"
	"balance-ng/internal/sim"
	"balance-ng/internal/stabilizer"
	"balance-ng/internal/udp"
)

const standingDuration = 2 * time.Second

type simResult struct {
	RunID   string
	Ticks   int
	Summary runstore.Summary
	Plots   []string
}

func loadScenario(path string) (*sim.Scenario, error) {
	if path == "" {
		return sim.Standing(standingDuration), nil
	}
	script, err := sim.LoadScenarioScript(path)
	if err != nil {
		return nil, err
	}
	return sim.NewScenario(script)
}

// simulate runs the configured scenario in closed loop and feeds every tick
// to the enabled sinks: tick log, run database, plots and UDP telemetry.
func simulate(ctx context.Context, cfg config.Config, ticks int) (res simResult, err error) {
	scn, err := loadScenario(cfg.Sim.Scenario)
	if err != nil {
		return res, fmt.Errorf("scenario: %w", err)
	}
	stab, err := stabilizer.New(cfg.StabilizerConfig())
	if err != nil {
		return res, err
	}

	runner := &sim.Runner{
		Period:   cfg.Sim.Period,
		Param:    cfg.Param(),
		Scenario: scn,
		Plant:    sim.NewPlant(cfg.PlantConfig(), scn.StateAt(0)),
		Stab:     stab,
	}

	name := "standing"
	if cfg.Sim.Scenario != "" {
		name = filepath.Base(cfg.Sim.Scenario)
	}

	var sinks []func(at time.Duration, s replay.Sample) error

	if cfg.Sim.Record != "" {
		w, werr := replay.CreateWriter(cfg.Sim.Record)
		if werr != nil {
			return res, fmt.Errorf("record: %w", werr)
		}
		defer func() {
			if cerr := w.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("record: %w", cerr)
			}
		}()
		sinks = append(sinks, w.WriteSample)
	}

	var run *runstore.Run
	if cfg.Sim.DB != "" {
		store, serr := runstore.Open(cfg.Sim.DB)
		if serr != nil {
			return res, fmt.Errorf("db: %w", serr)
		}
		defer store.Close()

		run, err = store.BeginRun(name, cfg.Sim.Period, time.Now())
		if err != nil {
			return res, fmt.Errorf("db: %w", err)
		}
		defer func() {
			if err != nil {
				_ = run.Abort()
			}
		}()
		res.RunID = run.ID()
		sinks = append(sinks, run.Record)
	}

	var plots *report.Plotter
	if cfg.Sim.PlotDir != "" {
		plots = report.NewPlotter(cfg.Sim.PlotDir, name)
		sinks = append(sinks, func(at time.Duration, s replay.Sample) error {
			plots.Add(at, s)
			return nil
		})
	}

	if cfg.Sim.Telemetry != "" {
		b, berr := udp.NewBroadcaster(cfg.Sim.Telemetry)
		if berr != nil {
			return res, fmt.Errorf("telemetry: %w", berr)
		}
		defer b.Close()
		sinks = append(sinks, func(at time.Duration, s replay.Sample) error {
			// Telemetry is best-effort; a missing listener must not stop the run.
			if err := b.SendSample(at, s); err != nil {
				logrus.WithError(err).Debug("telemetry send failed")
			}
			return nil
		})
	}

	if cfg.Sim.Paced {
		if err = rt.Prepare(cfg.Sim.LockMemory, cfg.Sim.FIFOPriority); err != nil {
			return res, err
		}
	}

	err = runner.Run(ctx, ticks, cfg.Sim.Paced, func(tk *sim.Tick) error {
		res.Ticks++
		smp := replay.FromTick(tk)
		for _, sink := range sinks {
			if err := sink(tk.Elapsed, smp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return res, err
	}

	if run != nil {
		res.Summary, err = run.Finish()
		if err != nil {
			return res, fmt.Errorf("db: %w", err)
		}
	}
	if plots != nil && res.Ticks > 0 {
		res.Plots, err = plots.Save()
		if err != nil {
			return res, fmt.Errorf("plots: %w", err)
		}
	}
	return res, nil
}

// replayToTelemetry streams a recorded tick log to the telemetry
// destination with its original timing. With loop set it repeats until ctx
// is done; cancellation is a normal stop.
func replayToTelemetry(ctx context.Context, cfg config.Config, path string, speed float64, loop bool) error {
	if cfg.Sim.Telemetry == "" {
		return errors.New("sim.telemetry is not set")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	recs, err := replay.NewReader(f).ReadAll()
	_ = f.Close()
	if err != nil {
		return err
	}

	b, err := udp.NewBroadcaster(cfg.Sim.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer b.Close()

	logrus.WithFields(logrus.Fields{
		"path":    path,
		"records": len(recs),
		"dest":    cfg.Sim.Telemetry,
		"loop":    loop,
	}).Info("replaying tick log")

	err = replay.Play(recs, speed, loop, nil, func(at time.Duration, s replay.Sample) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return b.SendSample(at, s)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
