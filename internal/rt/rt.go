// Package rt prepares the process for running a fixed-period control loop:
// locked memory and a realtime scheduling class for the loop thread.
package rt

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "rt",
})

const maxFIFOPriority = 99

// Prepare locks the process memory when lockMemory is set and, for a non-zero
// fifoPriority, pins the calling goroutine to its OS thread and moves that
// thread to SCHED_FIFO. Call it from the goroutine that runs the loop.
func Prepare(lockMemory bool, fifoPriority int) error {
	if fifoPriority < 0 || fifoPriority > maxFIFOPriority {
		return fmt.Errorf("rt: fifo priority %d out of range [0, %d]", fifoPriority, maxFIFOPriority)
	}

	if lockMemory {
		if err := lockAll(); err != nil {
			return fmt.Errorf("rt: lock memory: %w", err)
		}
		log.Info("memory locked")
	}

	if fifoPriority > 0 {
		runtime.LockOSThread()
		if err := setFIFO(fifoPriority); err != nil {
			runtime.UnlockOSThread()
			return fmt.Errorf("rt: set SCHED_FIFO: %w", err)
		}
		log.WithField("priority", fifoPriority).Info("loop thread is SCHED_FIFO")
	}
	return nil
}
