package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/filter"
)

// #region summary-types
// Summary is the ranked report of a run. It carries no wall-clock data, so
// the same records always produce the same bytes.
type Summary struct {
	ExperimentName string         `json:"experiment_name"`
	RunID          string         `json:"run_id"`
	Modality       string         `json:"modality"`
	Target         string         `json:"target"`
	Ranking        Ranking        `json:"ranking"`
	Totals         Totals         `json:"totals"`
	Accepted       []SummaryEntry `json:"accepted"`
}

// Ranking documents the order of Accepted.
type Ranking struct {
	Primary            string `json:"primary_metric"`
	Direction          string `json:"direction"`
	Secondary          string `json:"secondary_metric,omitempty"`
	SecondaryDirection string `json:"secondary_direction,omitempty"`
	TieBreak           string `json:"tie_break"`
}

// Totals counts candidates by verdict.
type Totals struct {
	Candidates int            `json:"candidates"`
	Accepted   int            `json:"accepted"`
	Rejected   int            `json:"rejected"`
	Errored    int            `json:"errored"`
	RejectedAt map[string]int `json:"rejected_at,omitempty"`
}

// SummaryEntry is one accepted candidate.
type SummaryEntry struct {
	Rank       int               `json:"rank"`
	ID         string            `json:"id"`
	Sequence   string            `json:"sequence"`
	Provenance binder.Provenance `json:"provenance"`
	Fitness    float64           `json:"fitness"`
	Metrics    binder.Metrics    `json:"metrics"`
	PosePath   string            `json:"pose_path,omitempty"`
}

// CandidateRow is one line of candidates.json.
type CandidateRow struct {
	ID         string            `json:"id"`
	Sequence   string            `json:"sequence"`
	Provenance binder.Provenance `json:"provenance"`
	Step       binder.Step       `json:"step"`
	Status     filter.Status     `json:"status"`
	RejectedAt string            `json:"rejected_at,omitempty"`
	Metrics    binder.Metrics    `json:"metrics"`
	Error      string            `json:"error,omitempty"`
}

// #endregion summary-types

// #region finalize
// Finalize ranks the accepted candidates and writes summary.json and
// candidates.json. Files whose bytes would not change are left untouched, so
// finalizing twice without new records is a no-op on disk. A run with no
// accepted candidates still gets a summary.
func (m *Manager) Finalize(ctx context.Context) (Summary, error) {
	s := m.Summary()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return Summary{}, fmt.Errorf("marshal summary: %w", err)
	}
	data = append(data, '\n')
	written, err := writeIfChanged(m.layout.Summary(), data)
	if err != nil {
		return Summary{}, err
	}

	rows, err := json.MarshalIndent(m.candidateRows(), "", "  ")
	if err != nil {
		return Summary{}, fmt.Errorf("marshal candidates: %w", err)
	}
	rows = append(rows, '\n')
	if _, err := writeIfChanged(m.layout.Candidates(), rows); err != nil {
		return Summary{}, err
	}
	log.Printf("[RUN] finalized %s: %d candidates, %d accepted (summary rewritten=%v)",
		m.cfg.ExperimentName, s.Totals.Candidates, s.Totals.Accepted, written)

	if m.archive != nil {
		uploads := []struct {
			name string
			body []byte
		}{{"summary.json", data}, {"candidates.json", rows}}
		for _, u := range uploads {
			if err := m.archive.Put(ctx, m.cfg.ExperimentName, u.name, u.body); err != nil {
				log.Printf("[RUN] archive %s failed: %v", u.name, err)
			}
		}
	}
	return s, nil
}

// Summary builds the ranked summary from the in-memory records.
func (m *Manager) Summary() Summary {
	s := Summary{
		ExperimentName: m.cfg.ExperimentName,
		RunID:          m.runID.String(),
		Modality:       string(m.cfg.Modality),
		Target:         m.cfg.Target.Name,
		Ranking: Ranking{
			Primary:   m.rank.Primary,
			Direction: direction(m.rank.PrimaryDesc),
			TieBreak:  "iteration asc, id asc",
		},
		Accepted: []SummaryEntry{},
	}
	if m.rank.Secondary != "" {
		s.Ranking.Secondary = m.rank.Secondary
		s.Ranking.SecondaryDirection = direction(m.rank.SecondaryDesc)
	}

	accepted := make([]*binder.Candidate, 0)
	poses := make(map[string]string)
	for i := range m.records {
		r := &m.records[i]
		s.Totals.Candidates++
		switch r.Verdict.Status {
		case filter.StatusAccepted:
			s.Totals.Accepted++
			accepted = append(accepted, &r.Candidate)
			poses[r.Candidate.ID] = r.PosePath
		case filter.StatusRejected:
			s.Totals.Rejected++
			if s.Totals.RejectedAt == nil {
				s.Totals.RejectedAt = make(map[string]int)
			}
			s.Totals.RejectedAt[r.Verdict.RejectedAt]++
		default:
			s.Totals.Errored++
		}
	}

	for i, c := range filter.Rank(accepted, m.rank) {
		s.Accepted = append(s.Accepted, SummaryEntry{
			Rank:       i + 1,
			ID:         c.ID,
			Sequence:   c.Sequence,
			Provenance: c.Provenance,
			Fitness:    c.Fitness,
			Metrics:    c.Metrics,
			PosePath:   poses[c.ID],
		})
	}
	return s
}

func (m *Manager) candidateRows() []CandidateRow {
	rows := make([]CandidateRow, 0, len(m.records))
	for _, r := range m.records {
		rows = append(rows, CandidateRow{
			ID:         r.Candidate.ID,
			Sequence:   r.Candidate.Sequence,
			Provenance: r.Candidate.Provenance,
			Step:       r.Candidate.Step,
			Status:     r.Verdict.Status,
			RejectedAt: r.Verdict.RejectedAt,
			Metrics:    r.Candidate.Metrics,
			Error:      r.Candidate.Error,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Provenance.Iteration < rows[j].Provenance.Iteration })
	return rows
}

func direction(desc bool) string {
	if desc {
		return "desc"
	}
	return "asc"
}

// #endregion finalize
