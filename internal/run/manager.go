package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/archive"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/filter"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/generator"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/runstore"
)

// #region options
// Options are the optional collaborators of a Manager.
type Options struct {
	Archive archive.Store // nil disables the mirror
}

// #endregion options

// #region manager-struct
// Manager owns one experiment directory: its database, pose files, config
// snapshot and summary. It holds the in-memory ExperimentRun, which is the
// ordered list of recorded candidates with their verdicts.
type Manager struct {
	cfg     config.RunConfig
	layout  Layout
	store   *runstore.Store
	runID   uuid.UUID
	resumed bool
	archive archive.Store
	rank    filter.RankSpec

	records []runstore.CandidateRecord
	seen    map[string]bool
}

// #endregion manager-struct

// #region begin
// Begin creates the run context under cfg.ExperimentDir(). An existing
// non-empty directory is a binder.ErrResumeConflict unless cfg.Resume is set,
// in which case the persisted run is reloaded after checking that modality,
// target, seed and filters are unchanged.
func Begin(ctx context.Context, cfg config.RunConfig, opts Options) (*Manager, error) {
	layout := Layout{Dir: cfg.ExperimentDir()}
	exists, err := nonEmptyDir(layout.Dir)
	if err != nil {
		return nil, err
	}
	if exists && !cfg.Resume {
		return nil, fmt.Errorf("%w: experiment %q already exists at %s (set resume=true to continue it)",
			binder.ErrResumeConflict, cfg.ExperimentName, layout.Dir)
	}
	if err := os.MkdirAll(layout.Structures(), 0o755); err != nil {
		return nil, fmt.Errorf("create experiment dir: %w", err)
	}

	store, err := runstore.Open(layout.DB())
	if err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:     cfg,
		layout:  layout,
		store:   store,
		runID:   binder.RunID(cfg.ExperimentName),
		archive: opts.Archive,
		rank:    filter.RankFrom(cfg.Ranking),
		seen:    make(map[string]bool),
	}
	if err := m.open(ctx); err != nil {
		store.Close()
		return nil, err
	}

	snapshot, err := cfg.Marshal()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("marshal config snapshot: %w", err)
	}
	if err := writeFileAtomic(layout.Config(), snapshot); err != nil {
		store.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) open(ctx context.Context) error {
	fp, err := fingerprint(m.cfg)
	if err != nil {
		return err
	}

	existing, err := m.store.GetRun(ctx)
	if errors.Is(err, runstore.ErrNoRun) {
		if err := m.store.CreateRun(ctx, runstore.RunRecord{
			RunID:          m.runID.String(),
			ExperimentName: m.cfg.ExperimentName,
			Fingerprint:    fp,
		}); err != nil {
			return err
		}
		log.Printf("[RUN] started %s in %s", m.cfg.ExperimentName, m.layout.Dir)
		return nil
	}
	if err != nil {
		return err
	}

	if existing.RunID != m.runID.String() {
		return fmt.Errorf("%w: %s belongs to run %s", binder.ErrResumeConflict, m.layout.DB(), existing.ExperimentName)
	}
	if existing.Fingerprint != fp {
		return fmt.Errorf("%w: modality, target, seed or filters differ from the persisted run", binder.ErrResumeConflict)
	}

	recs, err := m.store.ListCandidates(ctx)
	if err != nil {
		return err
	}
	for _, r := range recs {
		m.seen[r.Candidate.ID] = true
	}
	m.records = recs
	m.resumed = true
	log.Printf("[RUN] resumed %s with %d recorded candidates", m.cfg.ExperimentName, len(recs))
	return nil
}

// #endregion begin

// #region accessors
// RunID is the deterministic identifier of the experiment.
func (m *Manager) RunID() uuid.UUID { return m.runID }

// Resumed reports whether Begin reloaded persisted state.
func (m *Manager) Resumed() bool { return m.resumed }

// Layout returns the directory layout.
func (m *Manager) Layout() Layout { return m.layout }

// Records returns the recorded candidates in emission order.
func (m *Manager) Records() []runstore.CandidateRecord {
	out := make([]runstore.CandidateRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Close releases the database.
func (m *Manager) Close() error { return m.store.Close() }

// #endregion accessors

// #region record
// Record persists a candidate, its verdict and the generator checkpoint that
// follows it. Recording an already persisted candidate is a no-op.
func (m *Manager) Record(ctx context.Context, cand *binder.Candidate, verdict filter.Verdict, cp generator.Checkpoint) error {
	if m.seen[cand.ID] {
		log.Printf("[RUN] %s already recorded, skipping", cand.ID)
		return nil
	}

	rec := runstore.CandidateRecord{Candidate: *cand, Verdict: verdict}
	if cand.Pose != nil && cand.Pose.PDB != "" {
		rec.PosePath = m.layout.PosePath(cand.ID)
		if err := writeFileAtomic(filepath.Join(m.layout.Dir, rec.PosePath), []byte(cand.Pose.PDB)); err != nil {
			return fmt.Errorf("write pose: %w", err)
		}
	}
	rec.Candidate.Pose = nil

	state, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	seq, err := m.store.AppendCandidate(ctx, m.runID.String(), rec, runstore.Checkpoint{Iteration: cp.Iteration, State: state})
	if err != nil {
		return err
	}
	rec.SeqNo = seq
	m.records = append(m.records, rec)
	m.seen[cand.ID] = true
	return nil
}

// #endregion record

// #region resume
// Checkpoint returns the generator state stored with the last record.
func (m *Manager) Checkpoint(ctx context.Context) (generator.Checkpoint, bool, error) {
	row, ok, err := m.store.LoadCheckpoint(ctx)
	if err != nil || !ok {
		return generator.Checkpoint{}, ok, err
	}
	var cp generator.Checkpoint
	if err := json.Unmarshal(row.State, &cp); err != nil {
		return generator.Checkpoint{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return cp, true, nil
}

// Pose loads the stored pose of a recorded candidate, or nil if none was kept.
func (m *Manager) Pose(candidateID string) *binder.Pose {
	if candidateID == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(m.layout.Dir, m.layout.PosePath(candidateID)))
	if err != nil {
		return nil
	}
	return &binder.Pose{PDB: string(data)}
}

// #endregion resume

// #region fingerprint
// fingerprint captures the settings a resumed run may not change.
func fingerprint(cfg config.RunConfig) (string, error) {
	fp := struct {
		Modality   binder.Modality     `json:"modality"`
		Target     config.TargetConfig `json:"target"`
		CDRLengths []int               `json:"cdr_lengths"`
		FWLengths  []int               `json:"fw_lengths"`
		Seed       int64               `json:"seed"`
		Filter     config.FilterConfig `json:"filter"`
	}{cfg.Modality, cfg.Target, cfg.CDRLengths, cfg.FWLengths, cfg.Optimizer.Seed, cfg.Filter}
	data, err := json.Marshal(fp)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return string(data), nil
}

// #endregion fingerprint
