package filter

import (
	"fmt"
	"math"
	"strconv"
)

// #region op
// Op is a closed set of comparison operators.
type Op string

const (
	OpGT    Op = ">"
	OpGE    Op = ">="
	OpLT    Op = "<"
	OpLE    Op = "<="
	OpEQ    Op = "=="
	OpRange Op = "range"
)

// eqTolerance is the absolute tolerance of ==.
const eqTolerance = 1e-9

// ParseOp validates an operator string.
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case OpGT, OpGE, OpLT, OpLE, OpEQ, OpRange:
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// #endregion op

// #region criterion
// Criterion is one numeric threshold on a named metric.
// Range criteria use Min and Max (inclusive) and ignore Value.
type Criterion struct {
	Metric string
	Op     Op
	Value  float64
	Min    float64
	Max    float64
}

// Eval reports whether v satisfies the criterion. NaN never does.
func (c Criterion) Eval(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	switch c.Op {
	case OpGT:
		return v > c.Value
	case OpGE:
		return v >= c.Value
	case OpLT:
		return v < c.Value
	case OpLE:
		return v <= c.Value
	case OpEQ:
		return math.Abs(v-c.Value) <= eqTolerance
	case OpRange:
		return v >= c.Min && v <= c.Max
	}
	return false
}

// Threshold renders the comparison for logs and records, e.g. ">= 0.7".
func (c Criterion) Threshold() string {
	if c.Op == OpRange {
		return "[" + fmtFloat(c.Min) + ", " + fmtFloat(c.Max) + "]"
	}
	return string(c.Op) + " " + fmtFloat(c.Value)
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// #endregion criterion

// #region stage
// Stage is a named gate; it passes when every criterion passes.
type Stage struct {
	Name     string
	Criteria []Criterion // evaluated in metric-name order
}

// #endregion stage

// #region verdict
// Outcome is the result of one stage.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeErrored Outcome = "errored"
)

// Check is one evaluated criterion.
type Check struct {
	Metric    string  `json:"metric"`
	Threshold string  `json:"threshold"`
	Value     float64 `json:"value"`
	Passed    bool    `json:"passed"`
}

// StageResult records how a candidate fared at one stage.
type StageResult struct {
	Stage   string   `json:"stage"`
	Outcome Outcome  `json:"outcome"`
	Checks  []Check  `json:"checks,omitempty"`
	Scored  []string `json:"scored,omitempty"` // metrics computed on demand at this stage
	Error   string   `json:"error,omitempty"`
}

// Status summarizes a verdict.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusErrored  Status = "errored"
)

// Verdict is the cascade's decision for one candidate. Stages holds one entry
// per stage reached, in order; nothing after a failed or errored stage.
type Verdict struct {
	Status     Status        `json:"status"`
	RejectedAt string        `json:"rejected_at,omitempty"`
	Stages     []StageResult `json:"stages,omitempty"`
}

// Accepted reports whether the candidate survived every stage.
func (v Verdict) Accepted() bool { return v.Status == StatusAccepted }

// #endregion verdict
