package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Schema is the DDL of the stage_verdicts table.
const Schema = `
CREATE TABLE IF NOT EXISTS stage_verdicts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	candidate_id TEXT NOT NULL,
	stage_index  INTEGER NOT NULL,
	stage        TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	checks_json  TEXT,
	scored       TEXT,
	error        TEXT,
	created_at   TEXT NOT NULL,
	UNIQUE (candidate_id, stage_index)
);
`

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// #region log-verdict
// LogVerdict writes a stage verdict row.
func LogVerdict(ctx context.Context, db Execer, entry VerdictEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO stage_verdicts (candidate_id, stage_index, stage, outcome, checks_json, scored, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CandidateID,
		entry.StageIndex,
		entry.Stage,
		entry.Outcome,
		nullIfEmpty(entry.ChecksJSON),
		nullIfEmpty(entry.Scored),
		nullIfEmpty(entry.Error),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log verdict: %w", err)
	}
	return nil
}

// #endregion log-verdict

// #region list-verdicts
// ListVerdicts returns the stage rows of one candidate in stage order.
func ListVerdicts(ctx context.Context, db Queryer, candidateID string) ([]VerdictEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT candidate_id, stage_index, stage, outcome, checks_json, scored, error, created_at
		 FROM stage_verdicts WHERE candidate_id = ? ORDER BY stage_index`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	var out []VerdictEntry
	for rows.Next() {
		var e VerdictEntry
		var checks, scored, errText sql.NullString
		var created string
		if err := rows.Scan(&e.CandidateID, &e.StageIndex, &e.Stage, &e.Outcome, &checks, &scored, &errText, &created); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		e.ChecksJSON = checks.String
		e.Scored = scored.String
		e.Error = errText.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-verdicts

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
