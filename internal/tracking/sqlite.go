package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLite keeps runs in a local database file, for deployments without a
// tracking server.
type SQLite struct {
	db         *sql.DB
	experiment string

	mu      sync.Mutex
	entropy *rand.Rand
}

// RunRecord is a run read back from the database.
type RunRecord struct {
	ID         string
	Experiment string
	ModelName  string
	ModelType  string
	Status     string
	StartedAt  time.Time
	Params     map[string]string
	Metrics    map[string]float64
	Artifact   []byte
}

// OpenSQLite opens or creates the database at dbPath.
func OpenSQLite(dbPath, experiment string) (*SQLite, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite tracker: db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if experiment == "" {
		experiment = DefaultExperiment
	}
	s := &SQLite{
		db:         db,
		experiment: experiment,
		entropy:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		experiment  TEXT NOT NULL,
		model_name  TEXT NOT NULL,
		model_type  TEXT NOT NULL,
		status      TEXT NOT NULL,
		started_at  TEXT NOT NULL,
		ended_at    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model_name, started_at DESC);

	CREATE TABLE IF NOT EXISTS params (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		key    TEXT NOT NULL,
		value  TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE TABLE IF NOT EXISTS metrics (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		key    TEXT NOT NULL,
		value  REAL NOT NULL,
		PRIMARY KEY (run_id, key)
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		name   TEXT NOT NULL,
		data   BLOB NOT NULL,
		PRIMARY KEY (run_id, name)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// TrackTraining stores the run, its params, metrics and artifact in one
// transaction.
func (s *SQLite) TrackTraining(ctx context.Context, r Run) error {
	id := s.newID()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, experiment, model_name, model_type, status, started_at, ended_at) VALUES (?, ?, ?, ?, 'FINISHED', ?, ?)`,
		id, s.experiment, r.ModelName, r.ModelType, now, now); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	params := r.Params()
	for _, k := range sortedKeys(params) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO params (run_id, key, value) VALUES (?, ?, ?)`, id, k, params[k]); err != nil {
			return fmt.Errorf("insert param %s: %w", k, err)
		}
	}
	metrics := r.Metrics()
	for _, k := range sortedKeys(metrics) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO metrics (run_id, key, value) VALUES (?, ?, ?)`, id, k, metrics[k]); err != nil {
			return fmt.Errorf("insert metric %s: %w", k, err)
		}
	}
	if len(r.Artifact) > 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO artifacts (run_id, name, data) VALUES (?, ?, ?)`, id, r.ModelName+"/model.model", r.Artifact); err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
	}
	return tx.Commit()
}

// Runs returns the runs recorded for modelName, newest first.
func (s *SQLite) Runs(ctx context.Context, modelName string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment, model_name, model_type, status, started_at FROM runs WHERE model_name = ? ORDER BY started_at DESC, id DESC`,
		modelName)
	if err != nil {
		return nil, err
	}
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started string
		if err := rows.Scan(&rec.ID, &rec.Experiment, &rec.ModelName, &rec.ModelType, &rec.Status, &started); err != nil {
			rows.Close()
			return nil, err
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.fillRun(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLite) fillRun(ctx context.Context, rec *RunRecord) error {
	rec.Params = map[string]string{}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM params WHERE run_id = ?`, rec.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return err
		}
		rec.Params[k] = v
	}
	rows.Close()

	rec.Metrics = map[string]float64{}
	rows, err = s.db.QueryContext(ctx, `SELECT key, value FROM metrics WHERE run_id = ?`, rec.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return err
		}
		rec.Metrics[k] = v
	}
	rows.Close()

	err = s.db.QueryRowContext(ctx, `SELECT data FROM artifacts WHERE run_id = ? LIMIT 1`, rec.ID).Scan(&rec.Artifact)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }
