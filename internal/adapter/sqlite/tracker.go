// Package sqlite stores experiment runs in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/cloud-pocket-etl/internal/tracking"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
	name        TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	experiment  TEXT NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT,
	FOREIGN KEY (experiment) REFERENCES experiments(name)
);

CREATE TABLE IF NOT EXISTS params (
	run_id  TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (run_id, key),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS metrics (
	run_id     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      REAL NOT NULL,
	logged_at  TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS artifacts (
	run_id  TEXT NOT NULL,
	name    TEXT NOT NULL,
	data    BLOB NOT NULL,
	PRIMARY KEY (run_id, name),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

const statusRunning = "RUNNING"

// Tracker records runs, parameters, metrics, and artifacts in SQLite.
type Tracker struct {
	db    *sql.DB
	clock clockwork.Clock
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used for timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// connPragmas are applied by the driver to every pooled connection.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// NewTracker opens the database at path and creates the schema if needed.
func NewTracker(path string, opts ...Option) (*Tracker, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?"+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	t := &Tracker{db: db, clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close closes the database.
func (t *Tracker) Close() error {
	return t.db.Close()
}

// CheckReadiness pings the database.
func (t *Tracker) CheckReadiness(ctx context.Context) error {
	return t.db.PingContext(ctx)
}

func (t *Tracker) now() string {
	return t.clock.Now().UTC().Format(time.RFC3339Nano)
}

// StartRun creates the experiment on first use and opens a RUNNING run in it.
func (t *Tracker) StartRun(ctx context.Context, experiment, runName string) (tracking.Run, error) {
	id := uuid.New().String()
	now := t.now()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO experiments (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		experiment, now,
	); err != nil {
		return nil, fmt.Errorf("insert experiment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, experiment, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, experiment, runName, statusRunning, now,
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run: %w", err)
	}
	return &run{tracker: t, id: id}, nil
}

type run struct {
	tracker *Tracker
	id      string
}

func (r *run) ID() string { return r.id }

func (r *run) LogParam(ctx context.Context, key, value string) error {
	_, err := r.tracker.db.ExecContext(ctx,
		`INSERT INTO params (run_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value`,
		r.id, key, value,
	)
	if err != nil {
		return fmt.Errorf("insert param %s: %w", key, err)
	}
	return nil
}

func (r *run) LogMetric(ctx context.Context, key string, value float64) error {
	_, err := r.tracker.db.ExecContext(ctx,
		`INSERT INTO metrics (run_id, key, value, logged_at) VALUES (?, ?, ?, ?)`,
		r.id, key, value, r.tracker.now(),
	)
	if err != nil {
		return fmt.Errorf("insert metric %s: %w", key, err)
	}
	return nil
}

func (r *run) LogArtifact(ctx context.Context, name string, data []byte) error {
	_, err := r.tracker.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, name, data) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, name) DO UPDATE SET data = excluded.data`,
		r.id, name, data,
	)
	if err != nil {
		return fmt.Errorf("insert artifact %s: %w", name, err)
	}
	return nil
}

func (r *run) End(ctx context.Context, status tracking.RunStatus) error {
	_, err := r.tracker.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ? WHERE run_id = ?`,
		string(status), r.tracker.now(), r.id,
	)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

// RunSummary is a stored run with its parameters and metrics.
type RunSummary struct {
	ID         string
	Experiment string
	Name       string
	Status     string
	StartedAt  string
	EndedAt    string
	Params     map[string]string
	Metrics    map[string]float64
	Artifacts  []string
}

// Run loads a run by id. The latest value of each metric wins.
func (t *Tracker) Run(ctx context.Context, id string) (RunSummary, error) {
	s := RunSummary{ID: id, Params: map[string]string{}, Metrics: map[string]float64{}}
	var ended sql.NullString
	err := t.db.QueryRowContext(ctx,
		`SELECT experiment, name, status, started_at, ended_at FROM runs WHERE run_id = ?`, id,
	).Scan(&s.Experiment, &s.Name, &s.Status, &s.StartedAt, &ended)
	if err != nil {
		return RunSummary{}, fmt.Errorf("query run %s: %w", id, err)
	}
	s.EndedAt = ended.String

	if err := t.scanPairs(ctx, `SELECT key, value FROM params WHERE run_id = ?`, id, func(rows *sql.Rows) error {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		s.Params[k] = v
		return nil
	}); err != nil {
		return RunSummary{}, fmt.Errorf("query params: %w", err)
	}
	if err := t.scanPairs(ctx, `SELECT key, value FROM metrics WHERE run_id = ? ORDER BY rowid`, id, func(rows *sql.Rows) error {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		s.Metrics[k] = v
		return nil
	}); err != nil {
		return RunSummary{}, fmt.Errorf("query metrics: %w", err)
	}
	if err := t.scanPairs(ctx, `SELECT name FROM artifacts WHERE run_id = ? ORDER BY name`, id, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		s.Artifacts = append(s.Artifacts, name)
		return nil
	}); err != nil {
		return RunSummary{}, fmt.Errorf("query artifacts: %w", err)
	}
	return s, nil
}

// Artifact returns the stored bytes of one artifact.
func (t *Tracker) Artifact(ctx context.Context, runID, name string) ([]byte, error) {
	var data []byte
	err := t.db.QueryRowContext(ctx,
		`SELECT data FROM artifacts WHERE run_id = ? AND name = ?`, runID, name,
	).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("query artifact %s: %w", name, err)
	}
	return data, nil
}

func (t *Tracker) scanPairs(ctx context.Context, query, id string, scan func(*sql.Rows) error) error {
	rows, err := t.db.QueryContext(ctx, query, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
