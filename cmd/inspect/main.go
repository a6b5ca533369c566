package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/filter"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/logging"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/runstore"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to an experiment's run.db")
	last := flag.Int("last", 20, "show N most recent candidates (0 = all)")
	candidate := flag.String("candidate", "", "show single candidate detail")
	status := flag.String("status", "", "only list candidates with this status (accepted|rejected|errored)")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/run.db [--last N] [--candidate id] [--status s] [--json]")
		os.Exit(2)
	}
	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}

	store, err := runstore.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if *candidate != "" {
		err = runDetailMode(ctx, store, *candidate, *jsonOut)
	} else {
		err = runListMode(ctx, store, *last, filter.Status(*status), *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	SeqNo      int64   `json:"seq_no"`
	ID         string  `json:"id"`
	Iteration  int     `json:"iteration"`
	Step       string  `json:"step"`
	Status     string  `json:"status"`
	RejectedAt string  `json:"rejected_at,omitempty"`
	Fitness    float64 `json:"fitness"`
	Mutations  int     `json:"mutations"`
	CreatedAt  string  `json:"created_at"`
}

func runListMode(ctx context.Context, store *runstore.Store, last int, status filter.Status, jsonOut bool) error {
	var (
		recs []runstore.CandidateRecord
		err  error
	)
	if status != "" {
		recs, err = store.ListByStatus(ctx, status)
	} else {
		recs, err = store.ListCandidates(ctx)
	}
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "no candidates found")
		return nil
	}
	if last > 0 && len(recs) > last {
		recs = recs[len(recs)-last:]
	}

	rows := make([]listRow, len(recs))
	for i, rec := range recs {
		rows[i] = listRow{
			SeqNo:      rec.SeqNo,
			ID:         rec.Candidate.ID,
			Iteration:  rec.Candidate.Provenance.Iteration,
			Step:       string(rec.Candidate.Step),
			Status:     string(rec.Verdict.Status),
			RejectedAt: rec.Verdict.RejectedAt,
			Fitness:    rec.Candidate.Fitness,
			Mutations:  len(rec.Candidate.Provenance.Mutations),
			CreatedAt:  rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}
	printListTable(rows)
	return nil
}

func printListTable(rows []listRow) {
	fmt.Printf("%5s  %-12s  %5s  %-9s  %-8s  %-10s  %9s  %s\n",
		"Seq", "Candidate", "Iter", "Step", "Status", "Stopped", "Fitness", "Time")
	fmt.Printf("%5s+-%-12s+-%5s+-%-9s+-%-8s+-%-10s+-%9s+-%s\n",
		"-----", "------------", "-----", "---------", "--------", "----------", "---------", "--------------------")

	counts := map[string]int{}
	for _, r := range rows {
		stopped := "-"
		if r.RejectedAt != "" {
			stopped = r.RejectedAt
		}
		fmt.Printf("%5d  %-12s  %5d  %-9s  %-8s  %-10s  %9.4f  %s\n",
			r.SeqNo, shortID(r.ID), r.Iteration, r.Step, r.Status, stopped, r.Fitness, r.CreatedAt)
		counts[r.Status]++
	}
	fmt.Printf("\n%d shown: %d accepted, %d rejected, %d errored\n",
		len(rows), counts[string(filter.StatusAccepted)], counts[string(filter.StatusRejected)], counts[string(filter.StatusErrored)])
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	ID         string             `json:"id"`
	Sequence   string             `json:"sequence"`
	Provenance binder.Provenance  `json:"provenance"`
	Step       string             `json:"step"`
	Fitness    float64            `json:"fitness"`
	Error      string             `json:"error,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`
	Status     string             `json:"status"`
	PosePath   string             `json:"pose_path,omitempty"`
	CreatedAt  string             `json:"created_at"`
	Stages     []stageDetail      `json:"stages"`
}

type stageDetail struct {
	Index   int            `json:"index"`
	Stage   string         `json:"stage"`
	Outcome string         `json:"outcome"`
	Scored  string         `json:"scored,omitempty"`
	Error   string         `json:"error,omitempty"`
	Checks  []filter.Check `json:"checks"`
}

func runDetailMode(ctx context.Context, store *runstore.Store, id string, jsonOut bool) error {
	rec, err := store.GetCandidate(ctx, id)
	if err != nil {
		return err
	}
	entries, err := logging.ListVerdicts(ctx, store.DB(), rec.Candidate.ID)
	if err != nil {
		return err
	}

	out := detailOutput{
		ID:         rec.Candidate.ID,
		Sequence:   rec.Candidate.Sequence,
		Provenance: rec.Candidate.Provenance,
		Step:       string(rec.Candidate.Step),
		Fitness:    rec.Candidate.Fitness,
		Error:      rec.Candidate.Error,
		Metrics:    rec.Candidate.Metrics.Map(),
		Status:     string(rec.Verdict.Status),
		PosePath:   rec.PosePath,
		CreatedAt:  rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Stages:     make([]stageDetail, 0, len(entries)),
	}
	for _, e := range entries {
		sd := stageDetail{Index: e.StageIndex, Stage: e.Stage, Outcome: e.Outcome, Scored: e.Scored, Error: e.Error}
		if e.ChecksJSON != "" {
			if err := json.Unmarshal([]byte(e.ChecksJSON), &sd.Checks); err != nil {
				return fmt.Errorf("decode checks for stage %s: %w", e.Stage, err)
			}
		}
		out.Stages = append(out.Stages, sd)
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Candidate: %s\n", out.ID)
	fmt.Printf("Parent:    %s\n", out.Provenance.ParentID)
	fmt.Printf("Iteration: %d\n", out.Provenance.Iteration)
	fmt.Printf("Mutations: %v\n", out.Provenance.Mutations)
	fmt.Printf("Sequence:  %s\n", out.Sequence)
	fmt.Printf("Step:      %s\n", out.Step)
	fmt.Printf("Status:    %s\n", out.Status)
	fmt.Printf("Fitness:   %.4f\n", out.Fitness)
	if out.Error != "" {
		fmt.Printf("Error:     %s\n", out.Error)
	}
	if out.PosePath != "" {
		fmt.Printf("Pose:      %s\n", out.PosePath)
	}
	fmt.Printf("Created:   %s\n", out.CreatedAt)

	fmt.Printf("\nMetrics:\n")
	for _, name := range rec.Candidate.Metrics.Names() {
		fmt.Printf("  %-24s %.4f\n", name, out.Metrics[name])
	}

	if len(out.Stages) > 0 {
		fmt.Printf("\nStages:\n")
	}
	for _, s := range out.Stages {
		fmt.Printf("  [%d] %-8s %s", s.Index, s.Stage, s.Outcome)
		if s.Scored != "" {
			fmt.Printf("  (scored %s)", s.Scored)
		}
		if s.Error != "" {
			fmt.Printf("  error: %s", s.Error)
		}
		fmt.Println()
		for _, c := range s.Checks {
			mark := "fail"
			if c.Passed {
				mark = "ok"
			}
			fmt.Printf("      %-24s %10.4f  %-12s %s\n", c.Metric, c.Value, c.Threshold, mark)
		}
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion output
