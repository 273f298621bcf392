package main

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"balance-ng/internal/replay"
)

type logSummary struct {
	Segments    int
	Samples     int
	MaxDuration time.Duration
	MaxZmpErr   float64

	// Ticks per estimated contact mode.
	ModeCounts map[string]int
}

var modeOrder = []string{"double", "right", "left", "flight"}

func contactMode(c [2]bool) string {
	switch {
	case c[0] && c[1]:
		return "double"
	case c[0]:
		return "right"
	case c[1]:
		return "left"
	default:
		return "flight"
	}
}

func summarizeTickLog(records []replay.Record) logSummary {
	s := logSummary{ModeCounts: map[string]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasSamples := false
	segments := 0

	for _, r := range records {
		if r.Sample == nil {
			segments++
			origin = r.At
			continue
		}
		hasSamples = true

		s.Samples++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		smp := r.Sample
		s.MaxZmpErr = math.Max(s.MaxZmpErr, math.Hypot(smp.Zmp.X-smp.ZmpRef.X, smp.Zmp.Y-smp.ZmpRef.Y))
		s.ModeCounts[contactMode(smp.Contact)]++
	}
	if segments == 0 && hasSamples {
		segments = 1
	}
	s.Segments = segments

	return s
}

func printLogSummary(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := replay.NewReader(f).ReadAll()
	if err != nil {
		return err
	}

	s := summarizeTickLog(recs)

	fmt.Printf("path: %s\n", path)
	fmt.Printf("segments: %d\n", s.Segments)
	fmt.Printf("samples: %d\n", s.Samples)
	fmt.Printf("max_duration: %s\n", s.MaxDuration)
	fmt.Printf("max_zmp_err: %.4f\n", s.MaxZmpErr)
	fmt.Printf("contact_modes:\n")
	for _, m := range modeOrder {
		fmt.Printf("  %s: %d\n", m, s.ModeCounts[m])
	}
	return nil
}
