package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/stabilizer"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "sim",
})

// Tick is the closed-loop record of one control period, captured after the
// stabilizer and the plant have both stepped.
type Tick struct {
	N        int
	Elapsed  time.Duration
	Scenario ScenarioState

	Centroid stabilizer.Centroid
	Base     stabilizer.Base
	Feet     stabilizer.Feet

	// Simulated CoM and the ZMP the plant realized this tick.
	Com r3.Vec
	Zmp r3.Vec
}

// Runner drives a stabilizer against a Plant following a Scenario.
type Runner struct {
	Period   time.Duration
	Param    stabilizer.Param
	Scenario *Scenario
	Plant    *Plant
	Stab     *stabilizer.Stabilizer
}

// Run executes ticks control periods, or enough to cover the scenario when
// ticks <= 0, calling fn after every tick. With paced set, ticks follow a
// wall-clock ticker at Period; otherwise they run back to back.
//
// Run stops early when ctx is done, when fn returns an error or when the
// stabilizer output fails the plausibility check.
func (r *Runner) Run(ctx context.Context, ticks int, paced bool, fn func(*Tick) error) error {
	if r.Period <= 0 {
		return errors.New("period must be > 0")
	}
	if r.Plant == nil || r.Stab == nil {
		return errors.New("plant and stabilizer are required")
	}
	if ticks <= 0 {
		ticks = int(r.Scenario.Duration()/r.Period) + 1
	}

	var ticker *time.Ticker
	if paced {
		ticker = time.NewTicker(r.Period)
		defer ticker.Stop()
	}

	log.WithFields(logrus.Fields{
		"ticks":  ticks,
		"period": r.Period,
		"paced":  paced,
	}).Info("run starting")

	dt := r.Period.Seconds()
	var tk Tick
	for n := 0; n < ticks; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		elapsed := time.Duration(n) * r.Period
		st := r.Scenario.StateAt(elapsed)

		r.Plant.Sense(st, &tk.Centroid, &tk.Base, &tk.Feet)
		r.Stab.Update(r.Period, r.Param, &tk.Centroid, &tk.Base, &tk.Feet)
		if err := stabilizer.CheckPlausible(&tk.Centroid, &tk.Feet); err != nil {
			log.WithError(err).WithField("tick", n).Warn("implausible stabilizer output")
			return fmt.Errorf("tick %d: %w", n, err)
		}
		r.Plant.Actuate(dt, st, &tk.Feet)

		tk.N = n
		tk.Elapsed = elapsed
		tk.Scenario = st
		tk.Com = r.Plant.Com()
		tk.Zmp = r.Plant.Zmp()
		if fn != nil {
			if err := fn(&tk); err != nil {
				return err
			}
		}
	}

	log.WithField("ticks", ticks).Info("run finished")
	return nil
}
