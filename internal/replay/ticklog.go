package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/sim"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<field>,...
//   where t_ns is nanoseconds since START of simulated time and the fields
//   follow Columns.
//
// Floats are written with the shortest representation that parses back to
// the same value, so a log read back reproduces the run exactly.

// Columns names the data fields after t_ns, in order.
var Columns = []string{
	"com_ref_x", "com_ref_y", "com_ref_z",
	"zmp_ref_x", "zmp_ref_y",
	"zmp_x", "zmp_y",
	"com_x", "com_y",
	"real_zmp_x", "real_zmp_y",
	"balance_r", "balance_l",
	"contact_r", "contact_l",
}

// Sample is the logged subset of one control tick.
type Sample struct {
	// Corrected CoM and ZMP references.
	ComRef r3.Vec
	ZmpRef r3.Vec

	// Estimated ZMP.
	Zmp r3.Vec

	// Simulated CoM and realized ZMP.
	Com     r3.Vec
	RealZmp r3.Vec

	// Estimated balance and contact, right then left.
	Balance [2]float64
	Contact [2]bool
}

// FromTick extracts the logged fields of a simulation tick.
func FromTick(tk *sim.Tick) Sample {
	right, left := tk.Feet.Right(), tk.Feet.Left()
	return Sample{
		ComRef:  tk.Centroid.ComPosRef,
		ZmpRef:  r3.Vec{X: tk.Centroid.ZmpRef.X, Y: tk.Centroid.ZmpRef.Y},
		Zmp:     r3.Vec{X: tk.Centroid.Zmp.X, Y: tk.Centroid.Zmp.Y},
		Com:     r3.Vec{X: tk.Com.X, Y: tk.Com.Y},
		RealZmp: r3.Vec{X: tk.Zmp.X, Y: tk.Zmp.Y},
		Balance: [2]float64{right.Balance, left.Balance},
		Contact: [2]bool{right.Contact, left.Contact},
	}
}

func (s Sample) fields() []float64 {
	return []float64{
		s.ComRef.X, s.ComRef.Y, s.ComRef.Z,
		s.ZmpRef.X, s.ZmpRef.Y,
		s.Zmp.X, s.Zmp.Y,
		s.Com.X, s.Com.Y,
		s.RealZmp.X, s.RealZmp.Y,
		s.Balance[0], s.Balance[1],
		b2f(s.Contact[0]), b2f(s.Contact[1]),
	}
}

func sampleFromFields(v []float64) Sample {
	return Sample{
		ComRef:  r3.Vec{X: v[0], Y: v[1], Z: v[2]},
		ZmpRef:  r3.Vec{X: v[3], Y: v[4]},
		Zmp:     r3.Vec{X: v[5], Y: v[6]},
		Com:     r3.Vec{X: v[7], Y: v[8]},
		RealZmp: r3.Vec{X: v[9], Y: v[10]},
		Balance: [2]float64{v[11], v[12]},
		Contact: [2]bool{v[13] != 0, v[14] != 0},
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// AppendLine appends the data line for s at offset at, without a newline.
func AppendLine(dst []byte, at time.Duration, s Sample) []byte {
	dst = strconv.AppendInt(dst, at.Nanoseconds(), 10)
	for _, v := range s.fields() {
		dst = append(dst, ',')
		dst = strconv.AppendFloat(dst, v, 'g', -1, 64)
	}
	return dst
}

// Record is one log entry. A nil Sample marks START.
type Record struct {
	At     time.Duration
	Sample *Sample
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)

	recs := make([]Record, 0, 1024)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{At: 0, Sample: nil})
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) != 1+len(Columns) {
			return nil, fmt.Errorf("invalid replay line (%d fields, want %d): %q", len(parts), 1+len(Columns), line)
		}

		tsStr := strings.TrimSpace(parts[0])
		tsNs, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid replay timestamp %q: %w", tsStr, err)
		}
		if tsNs < 0 {
			return nil, fmt.Errorf("invalid replay timestamp (negative): %d", tsNs)
		}

		vals := make([]float64, len(Columns))
		for i, p := range parts[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid replay field %s: %w", Columns[i], err)
			}
			vals[i] = v
		}

		smp := sampleFromFields(vals)
		recs = append(recs, Record{At: time.Duration(tsNs), Sample: &smp})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

type Writer struct {
	f      *os.File
	w      *bufio.Writer
	buf    []byte
	closed bool
}

// CreateWriter creates path and writes the column header and a START marker.
func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	header := "# t_ns," + strings.Join(Columns, ",") + "\nSTART\n"
	if _, err := bw.WriteString(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw}, nil
}

// WriteSample appends s at offset at from START.
func (ww *Writer) WriteSample(at time.Duration, s Sample) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	if at < 0 {
		at = 0
	}
	ww.buf = append(AppendLine(ww.buf[:0], at, s), '\n')
	_, err := ww.w.Write(ww.buf)
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

func hasSample(records []Record) bool {
	for _, r := range records {
		if r.Sample != nil {
			return true
		}
	}
	return false
}

// Play replays records with their relative timing.
//
// The provided callback is invoked for each record that carries a sample.
// START markers are honored by resetting the origin. With loop set, Play
// starts over after the last record until cb returns an error.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
func Play(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(at time.Duration, s Sample) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}
	if !hasSample(records) {
		return errors.New("no samples")
	}

	for {
		var origin time.Duration
		var lastAt time.Duration
		var haveLast bool

		for _, r := range records {
			if r.Sample == nil {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast {
				wait := at - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					sleeper.Sleep(wait)
				}
			}

			if err := cb(at, *r.Sample); err != nil {
				return err
			}

			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}
