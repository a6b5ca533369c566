package logging

import "time"

// #region verdict-entry
// VerdictEntry is a single row in the stage_verdicts table: how one candidate
// fared at one filter stage.
type VerdictEntry struct {
	CandidateID string
	StageIndex  int
	Stage       string
	Outcome     string // "passed" | "failed" | "errored"
	ChecksJSON  string
	Scored      string // comma-separated metrics computed at this stage
	Error       string
	CreatedAt   time.Time
}

// #endregion verdict-entry
