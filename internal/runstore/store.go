package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/filter"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/logging"
)

// ErrNoRun is returned when the database holds no run yet.
var ErrNoRun = errors.New("no run recorded")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	experiment_name TEXT NOT NULL UNIQUE,
	fingerprint     TEXT NOT NULL,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS candidates (
	seq_no        INTEGER PRIMARY KEY AUTOINCREMENT,
	candidate_id  TEXT NOT NULL UNIQUE,
	run_id        TEXT NOT NULL,
	iteration     INTEGER NOT NULL,
	parent_id     TEXT,
	sequence      TEXT NOT NULL,
	mutations     TEXT,
	step          TEXT NOT NULL,
	fitness       REAL NOT NULL,
	metrics_json  TEXT NOT NULL,
	status        TEXT NOT NULL,
	rejected_at   TEXT,
	verdict_json  TEXT NOT NULL,
	error         TEXT,
	pose_path     TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS checkpoint (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	run_id     TEXT NOT NULL,
	iteration  INTEGER NOT NULL,
	state_json TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// #endregion schema

// #region store-struct
// Store persists one experiment run in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// Open opens (or creates) a run database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps the per-connection pragmas in force.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema + logging.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for read-only tools.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region runs
// CreateRun records the run identity. It fails if a run already exists.
func (s *Store) CreateRun(ctx context.Context, rec RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, experiment_name, fingerprint, created_at) VALUES (?, ?, ?, ?)`,
		rec.RunID, rec.ExperimentName, rec.Fingerprint, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// GetRun reads the run identity, or ErrNoRun.
func (s *Store) GetRun(ctx context.Context) (RunRecord, error) {
	var rec RunRecord
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, experiment_name, fingerprint, created_at FROM runs LIMIT 1`,
	).Scan(&rec.RunID, &rec.ExperimentName, &rec.Fingerprint, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNoRun
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return rec, nil
}

// #endregion runs

// #region append
// AppendCandidate writes the candidate, its stage verdict rows and the
// generator checkpoint in one transaction, so a crash leaves either all of
// them or none.
func (s *Store) AppendCandidate(ctx context.Context, runID string, rec CandidateRecord, cp Checkpoint) (int64, error) {
	c := rec.Candidate
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	metricsJSON, err := json.Marshal(c.Metrics)
	if err != nil {
		return 0, fmt.Errorf("marshal metrics: %w", err)
	}
	verdictJSON, err := json.Marshal(rec.Verdict)
	if err != nil {
		return 0, fmt.Errorf("marshal verdict: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO candidates (candidate_id, run_id, iteration, parent_id, sequence, mutations, step, fitness,
		 metrics_json, status, rejected_at, verdict_json, error, pose_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, runID, c.Provenance.Iteration, nullIfEmpty(c.Provenance.ParentID), c.Sequence,
		nullIfEmpty(strings.Join(c.Provenance.Mutations, ",")), string(c.Step), c.Fitness,
		string(metricsJSON), string(rec.Verdict.Status), nullIfEmpty(rec.Verdict.RejectedAt),
		string(verdictJSON), nullIfEmpty(c.Error), nullIfEmpty(rec.PosePath),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert candidate %s: %w", c.ID, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("candidate seq_no: %w", err)
	}

	for i, st := range rec.Verdict.Stages {
		checks, err := json.Marshal(st.Checks)
		if err != nil {
			return 0, fmt.Errorf("marshal checks: %w", err)
		}
		err = logging.LogVerdict(ctx, tx, logging.VerdictEntry{
			CandidateID: c.ID,
			StageIndex:  i,
			Stage:       st.Stage,
			Outcome:     string(st.Outcome),
			ChecksJSON:  string(checks),
			Scored:      strings.Join(st.Scored, ","),
			Error:       st.Error,
			CreatedAt:   rec.CreatedAt,
		})
		if err != nil {
			return 0, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoint (id, run_id, iteration, state_json) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET run_id = excluded.run_id, iteration = excluded.iteration, state_json = excluded.state_json`,
		runID, cp.Iteration, string(cp.State),
	)
	if err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return seq, nil
}

// #endregion append

// #region checkpoint
// LoadCheckpoint returns the checkpoint written with the last record.
// ok is false when nothing was recorded yet.
func (s *Store) LoadCheckpoint(ctx context.Context) (cp Checkpoint, ok bool, err error) {
	var state string
	err = s.db.QueryRowContext(ctx, `SELECT iteration, state_json FROM checkpoint WHERE id = 1`).Scan(&cp.Iteration, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	cp.State = json.RawMessage(state)
	return cp, true, nil
}

// #endregion checkpoint

// #region queries
const candidateColumns = `seq_no, candidate_id, iteration, parent_id, sequence, mutations, step, fitness,
	metrics_json, verdict_json, error, pose_path, created_at`

// ListCandidates returns every candidate in emission order.
func (s *Store) ListCandidates(ctx context.Context) ([]CandidateRecord, error) {
	return s.query(ctx, `SELECT `+candidateColumns+` FROM candidates ORDER BY seq_no`)
}

// ListByStatus returns candidates with the given verdict status in emission order.
func (s *Store) ListByStatus(ctx context.Context, status filter.Status) ([]CandidateRecord, error) {
	return s.query(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE status = ? ORDER BY seq_no`, string(status))
}

// GetCandidate reads one candidate by ID.
func (s *Store) GetCandidate(ctx context.Context, id string) (CandidateRecord, error) {
	recs, err := s.query(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE candidate_id = ?`, id)
	if err != nil {
		return CandidateRecord{}, err
	}
	if len(recs) == 0 {
		return CandidateRecord{}, fmt.Errorf("candidate %s: %w", id, sql.ErrNoRows)
	}
	return recs[0], nil
}

// Count is the number of recorded candidates.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]CandidateRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []CandidateRecord
	for rows.Next() {
		var rec CandidateRecord
		var parent, mutations, errText, pose sql.NullString
		var step, metricsJSON, verdictJSON, created string
		c := &rec.Candidate
		if err := rows.Scan(&rec.SeqNo, &c.ID, &c.Provenance.Iteration, &parent, &c.Sequence, &mutations,
			&step, &c.Fitness, &metricsJSON, &verdictJSON, &errText, &pose, &created); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Provenance.ParentID = parent.String
		if mutations.String != "" {
			c.Provenance.Mutations = strings.Split(mutations.String, ",")
		}
		c.Step = binder.Step(step)
		c.Error = errText.String
		rec.PosePath = pose.String
		if err := json.Unmarshal([]byte(metricsJSON), &c.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics of %s: %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(verdictJSON), &rec.Verdict); err != nil {
			return nil, fmt.Errorf("unmarshal verdict of %s: %w", c.ID, err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion queries

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
