package runstore

import (
	"encoding/json"
	"time"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/filter"
)

// #region run-record
// RunRecord identifies the experiment a database belongs to.
type RunRecord struct {
	RunID          string
	ExperimentName string
	Fingerprint    string // JSON of the settings a resume must not change
	CreatedAt      time.Time
}

// #endregion run-record

// #region candidate-record
// CandidateRecord is one persisted candidate with its cascade verdict.
// SeqNo is the emission order, starting at 1.
type CandidateRecord struct {
	SeqNo     int64
	Candidate binder.Candidate
	Verdict   filter.Verdict
	PosePath  string // relative to the experiment directory
	CreatedAt time.Time
}

// #endregion candidate-record

// #region checkpoint
// Checkpoint is the opaque generator state stored alongside the last record.
type Checkpoint struct {
	Iteration int
	State     json.RawMessage
}

// #endregion checkpoint
