package run

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/archive"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/filter"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/generator"
)

// #region helpers
func testConfig(t *testing.T, dir string) config.RunConfig {
	t.Helper()
	cfg := config.Default()
	cfg.ProjectDir = dir
	cfg.ExperimentName = "exp"
	cfg.Target.Name = "antigenX"
	cfg.Oracle.Mode = "synthetic"
	cfg.Ranking.PrimaryMetric = "binding_energy"
	cfg.Ranking.Direction = "asc"
	if err := config.Normalize(&cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return cfg
}

func begin(t *testing.T, cfg config.RunConfig, opts Options) *Manager {
	t.Helper()
	m, err := Begin(context.Background(), cfg, opts)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func cand(m *Manager, iter int, metrics map[string]float64) *binder.Candidate {
	return &binder.Candidate{
		ID:         binder.CandidateID(m.RunID(), iter),
		Sequence:   "QVQLV",
		Step:       binder.StepAccepted,
		Provenance: binder.Provenance{Iteration: iter},
		Metrics:    binder.NewMetrics(metrics),
		Pose:       &binder.Pose{PDB: "ATOM\n"},
	}
}

func accepted() filter.Verdict {
	return filter.Verdict{Status: filter.StatusAccepted, Stages: []filter.StageResult{
		{Stage: "initial", Outcome: filter.OutcomePassed}, {Stage: "final", Outcome: filter.OutcomePassed},
	}}
}

func rejectedInitial() filter.Verdict {
	return filter.Verdict{Status: filter.StatusRejected, RejectedAt: "initial",
		Stages: []filter.StageResult{{Stage: "initial", Outcome: filter.OutcomeFailed}}}
}

// #endregion helpers

func TestBeginCreatesLayout(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	m := begin(t, cfg, Options{})
	for _, p := range []string{m.Layout().DB(), m.Layout().Config(), m.Layout().Structures()} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}
	if m.Layout().Dir != filepath.Join(cfg.ProjectDir, "results", "exp") {
		t.Fatalf("dir = %s", m.Layout().Dir)
	}
	if m.Resumed() {
		t.Fatal("fresh run reported as resumed")
	}
	snap, err := config.Load(m.Layout().Config())
	if err != nil || snap.Target.Name != "antigenX" {
		t.Fatalf("config snapshot: %+v %v", snap.Target, err)
	}
}

func TestBeginExistingWithoutResumeConflicts(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	m := begin(t, cfg, Options{})
	m.Close()

	if _, err := Begin(context.Background(), cfg, Options{}); !errors.Is(err, binder.ErrResumeConflict) {
		t.Fatalf("expected ErrResumeConflict, got %v", err)
	}
}

func TestResumeReloadsRecords(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	ctx := context.Background()
	m := begin(t, cfg, Options{})
	c0 := cand(m, 0, map[string]float64{"interface_confidence": 0.8, "binding_energy": -12})
	c1 := cand(m, 1, map[string]float64{"interface_confidence": 0.6})
	m.Record(ctx, c0, accepted(), generator.Checkpoint{Iteration: 1, Seed: 1, CurrentSequence: "QVQLV", CurrentID: c0.ID, Scored: true})
	m.Record(ctx, c1, rejectedInitial(), generator.Checkpoint{Iteration: 2, Seed: 1, CurrentSequence: "QVQLV", CurrentID: c0.ID, Scored: true})
	m.Close()

	cfg.Resume = true
	r := begin(t, cfg, Options{})
	if !r.Resumed() || len(r.Records()) != 2 {
		t.Fatalf("resumed=%v records=%d", r.Resumed(), len(r.Records()))
	}
	cp, ok, err := r.Checkpoint(ctx)
	if err != nil || !ok || cp.Iteration != 2 || cp.CurrentID != c0.ID {
		t.Fatalf("checkpoint = %+v ok=%v err=%v", cp, ok, err)
	}
	if p := r.Pose(c0.ID); p == nil || p.PDB != "ATOM\n" {
		t.Fatalf("pose not restored: %+v", p)
	}

	// re-recording a persisted candidate must not duplicate it
	if err := r.Record(ctx, c1, rejectedInitial(), cp); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(r.Records()) != 2 {
		t.Fatalf("duplicate recorded: %d", len(r.Records()))
	}
}

func TestResumeWithChangedSeedConflicts(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	begin(t, cfg, Options{}).Close()

	cfg.Resume = true
	cfg.Optimizer.Seed = 99
	if _, err := Begin(context.Background(), cfg, Options{}); !errors.Is(err, binder.ErrResumeConflict) {
		t.Fatalf("expected ErrResumeConflict, got %v", err)
	}
}

func TestFinalizeZeroAccepted(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	m := begin(t, cfg, Options{})
	m.Record(context.Background(), cand(m, 0, map[string]float64{"interface_confidence": 0.1}), rejectedInitial(), generator.Checkpoint{Iteration: 1, Seed: 1, CurrentSequence: "Q"})

	s, err := m.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if s.Totals.Accepted != 0 || s.Totals.Rejected != 1 || s.Totals.RejectedAt["initial"] != 1 {
		t.Fatalf("totals = %+v", s.Totals)
	}
	data, _ := os.ReadFile(m.Layout().Summary())
	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("summary is not JSON: %v", err)
	}
	if acc, ok := back["accepted"].([]any); !ok || len(acc) != 0 {
		t.Fatalf("accepted should be an empty list, got %v", back["accepted"])
	}
}

func TestFinalizeRanksAndIsIdempotent(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	ctx := context.Background()
	store := archive.NewMemoryStore()
	m := begin(t, cfg, Options{Archive: store})
	m.Record(ctx, cand(m, 0, map[string]float64{"binding_energy": -10.5}), accepted(), generator.Checkpoint{Iteration: 1, Seed: 1, CurrentSequence: "Q"})
	m.Record(ctx, cand(m, 1, map[string]float64{"binding_energy": -12}), accepted(), generator.Checkpoint{Iteration: 2, Seed: 1, CurrentSequence: "Q"})

	s, err := m.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(s.Accepted) != 2 || s.Accepted[0].Provenance.Iteration != 1 || s.Accepted[0].Rank != 1 {
		t.Fatalf("ranking = %+v", s.Accepted)
	}
	first, _ := os.ReadFile(m.Layout().Summary())

	if _, err := m.Finalize(ctx); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	second, _ := os.ReadFile(m.Layout().Summary())
	if !bytes.Equal(first, second) {
		t.Fatal("finalize is not idempotent")
	}
	written, err := writeIfChanged(m.Layout().Summary(), second)
	if err != nil || written {
		t.Fatalf("unchanged summary rewritten: %v %v", written, err)
	}

	mirrored, err := store.Get(ctx, "exp", "summary.json")
	if err != nil || !bytes.Equal(mirrored, first) {
		t.Fatalf("archive mirror mismatch: %v", err)
	}
}

func TestRecordWritesPose(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	m := begin(t, cfg, Options{})
	c := cand(m, 0, map[string]float64{"binding_energy": -1})
	if err := m.Record(context.Background(), c, accepted(), generator.Checkpoint{Iteration: 1, Seed: 1, CurrentSequence: "Q"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	path := filepath.Join(m.Layout().Dir, m.Layout().PosePath(c.ID))
	if data, err := os.ReadFile(path); err != nil || string(data) != "ATOM\n" {
		t.Fatalf("pose file: %q %v", data, err)
	}
	if m.Records()[0].PosePath != m.Layout().PosePath(c.ID) {
		t.Fatalf("pose path = %s", m.Records()[0].PosePath)
	}
}
