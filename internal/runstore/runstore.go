// Package runstore persists simulation runs and their per-tick samples in a
// SQLite database, with a summary of tracking errors per run.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"balance-ng/internal/replay"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "runstore",
})

type Store struct {
	*sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A run holds one transaction open for its whole duration.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			scenario TEXT,
			period_ns BIGINT,
			started_at TIMESTAMP,
			ticks BIGINT DEFAULT 0,
			zmp_err_mean DOUBLE,
			zmp_err_std DOUBLE,
			zmp_err_max DOUBLE,
			com_err_mean DOUBLE,
			com_err_std DOUBLE,
			com_err_max DOUBLE
		);
		CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT,
			t_ns BIGINT,
			com_ref_x DOUBLE,
			com_ref_y DOUBLE,
			com_ref_z DOUBLE,
			zmp_ref_x DOUBLE,
			zmp_ref_y DOUBLE,
			zmp_x DOUBLE,
			zmp_y DOUBLE,
			com_x DOUBLE,
			com_y DOUBLE,
			real_zmp_x DOUBLE,
			real_zmp_y DOUBLE,
			balance_r DOUBLE,
			balance_l DOUBLE,
			contact_r BOOLEAN,
			contact_l BOOLEAN,
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db}, nil
}

// Summary is the stored description of one run. Errors are horizontal
// distances: ZMP error between the estimated and the corrected reference ZMP,
// CoM error between the simulated CoM and its corrected reference.
type Summary struct {
	ID        string
	Scenario  string
	Period    time.Duration
	StartedAt time.Time
	Ticks     int

	ZmpErrMean float64
	ZmpErrStd  float64
	ZmpErrMax  float64
	ComErrMean float64
	ComErrStd  float64
	ComErrMax  float64
}

// Run records the ticks of one simulation run inside a single transaction.
//
// Not safe for concurrent use.
type Run struct {
	id     string
	tx     *sql.Tx
	insert *sql.Stmt
	done   bool

	zmpErr []float64
	comErr []float64
}

// BeginRun inserts a new run and returns its recorder.
func (s *Store) BeginRun(scenario string, period time.Duration, startedAt time.Time) (*Run, error) {
	tx, err := s.Begin()
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	_, err = tx.Exec(
		"INSERT INTO runs (run_id, scenario, period_ns, started_at) VALUES (?, ?, ?, ?)",
		id, scenario, period.Nanoseconds(), startedAt.UTC(),
	)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO ticks (
		run_id, t_ns, com_ref_x, com_ref_y, com_ref_z, zmp_ref_x, zmp_ref_y,
		zmp_x, zmp_y, com_x, com_y, real_zmp_x, real_zmp_y,
		balance_r, balance_l, contact_r, contact_l
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare tick insert: %w", err)
	}

	log.WithFields(logrus.Fields{"run_id": id, "scenario": scenario}).Debug("run started")
	return &Run{id: id, tx: tx, insert: stmt}, nil
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Record stores one tick sample taken at offset at.
func (r *Run) Record(at time.Duration, s replay.Sample) error {
	if r.done {
		return errors.New("run is finished")
	}
	_, err := r.insert.Exec(
		r.id, at.Nanoseconds(),
		s.ComRef.X, s.ComRef.Y, s.ComRef.Z, s.ZmpRef.X, s.ZmpRef.Y,
		s.Zmp.X, s.Zmp.Y, s.Com.X, s.Com.Y, s.RealZmp.X, s.RealZmp.Y,
		s.Balance[0], s.Balance[1], s.Contact[0], s.Contact[1],
	)
	if err != nil {
		return err
	}

	r.zmpErr = append(r.zmpErr, math.Hypot(s.Zmp.X-s.ZmpRef.X, s.Zmp.Y-s.ZmpRef.Y))
	r.comErr = append(r.comErr, math.Hypot(s.Com.X-s.ComRef.X, s.Com.Y-s.ComRef.Y))
	return nil
}

// Finish writes the run summary and commits. The run cannot be used
// afterwards.
func (r *Run) Finish() (Summary, error) {
	if r.done {
		return Summary{}, errors.New("run is finished")
	}
	r.done = true

	sum := Summary{ID: r.id, Ticks: len(r.zmpErr)}
	sum.ZmpErrMean, sum.ZmpErrStd, sum.ZmpErrMax = describe(r.zmpErr)
	sum.ComErrMean, sum.ComErrStd, sum.ComErrMax = describe(r.comErr)

	_, err := r.tx.Exec(`UPDATE runs SET ticks = ?,
		zmp_err_mean = ?, zmp_err_std = ?, zmp_err_max = ?,
		com_err_mean = ?, com_err_std = ?, com_err_max = ?
		WHERE run_id = ?`,
		sum.Ticks,
		sum.ZmpErrMean, sum.ZmpErrStd, sum.ZmpErrMax,
		sum.ComErrMean, sum.ComErrStd, sum.ComErrMax,
		r.id,
	)
	if err != nil {
		_ = r.insert.Close()
		_ = r.tx.Rollback()
		return Summary{}, fmt.Errorf("update run: %w", err)
	}
	if err := r.insert.Close(); err != nil {
		_ = r.tx.Rollback()
		return Summary{}, err
	}
	if err := r.tx.Commit(); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// Abort discards the run and everything recorded so far.
func (r *Run) Abort() error {
	if r.done {
		return nil
	}
	r.done = true
	_ = r.insert.Close()
	return r.tx.Rollback()
}

// describe returns the mean, standard deviation and maximum of xs. The
// standard deviation of fewer than two samples is zero.
func describe(xs []float64) (mean, std, peak float64) {
	if len(xs) == 0 {
		return 0, 0, 0
	}
	if len(xs) == 1 {
		return xs[0], 0, xs[0]
	}
	mean, std = stat.MeanStdDev(xs, nil)
	for _, x := range xs {
		peak = math.Max(peak, x)
	}
	return mean, std, peak
}

// Runs returns the stored run summaries, most recent first.
func (s *Store) Runs() ([]Summary, error) {
	rows, err := s.Query(`SELECT run_id, scenario, period_ns, started_at, ticks,
		zmp_err_mean, zmp_err_std, zmp_err_max, com_err_mean, com_err_std, com_err_max
		FROM runs WHERE zmp_err_mean IS NOT NULL ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Summary
	for rows.Next() {
		var sum Summary
		var periodNs int64
		if err := rows.Scan(
			&sum.ID, &sum.Scenario, &periodNs, &sum.StartedAt, &sum.Ticks,
			&sum.ZmpErrMean, &sum.ZmpErrStd, &sum.ZmpErrMax,
			&sum.ComErrMean, &sum.ComErrStd, &sum.ComErrMax,
		); err != nil {
			return nil, err
		}
		sum.Period = time.Duration(periodNs)
		runs = append(runs, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Samples returns the stored ticks of a run in time order.
func (s *Store) Samples(runID string) ([]replay.Record, error) {
	rows, err := s.Query(`SELECT t_ns, com_ref_x, com_ref_y, com_ref_z, zmp_ref_x, zmp_ref_y,
		zmp_x, zmp_y, com_x, com_y, real_zmp_x, real_zmp_y,
		balance_r, balance_l, contact_r, contact_l
		FROM ticks WHERE run_id = ? ORDER BY t_ns`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []replay.Record
	for rows.Next() {
		var tNs int64
		var smp replay.Sample
		if err := rows.Scan(
			&tNs, &smp.ComRef.X, &smp.ComRef.Y, &smp.ComRef.Z, &smp.ZmpRef.X, &smp.ZmpRef.Y,
			&smp.Zmp.X, &smp.Zmp.Y, &smp.Com.X, &smp.Com.Y, &smp.RealZmp.X, &smp.RealZmp.Y,
			&smp.Balance[0], &smp.Balance[1], &smp.Contact[0], &smp.Contact[1],
		); err != nil {
			return nil, err
		}
		recs = append(recs, replay.Record{At: time.Duration(tNs), Sample: &smp})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}
