package generator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"math"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/oracle"
)

// ErrDone is returned by Next once the generator has converged.
var ErrDone = errors.New("generator: done")

// #region generator-struct
// Generator proposes CDR mutations of a starting binder and keeps the ones the
// structure predictor scores better. It is strictly sequential and emits one
// Candidate per iteration, errored iterations included.
type Generator struct {
	cfg       Config
	target    *binder.Target
	modality  binder.Modality
	predictor oracle.Predictor
	runID     uuid.UUID
	alphabet  []byte

	state       State
	stop        StopReason
	iteration   int
	scored      bool
	currentID   string
	currentSeq  string
	currentPose *binder.Pose
	currentFit  float64
	bestFit     float64
	since       int
	temperature float64
}

// #endregion generator-struct

// #region constructor
// New builds a generator positioned at iteration 0. The predictor is wrapped
// with cfg.Retry so transient oracle failures are retried here.
func New(cfg Config, target *binder.Target, modality binder.Modality, predictor oracle.Predictor, runID uuid.UUID) (*Generator, error) {
	if target == nil || target.StartingSequence == "" {
		return nil, binder.Configurationf("generator needs a target with a starting sequence")
	}
	if cfg.MaxIterations < 1 {
		return nil, binder.Configurationf("max_iterations must be positive")
	}
	if len(cfg.FitnessWeights) == 0 {
		return nil, binder.Configurationf("no fitness weights configured")
	}
	if cfg.Acceptance == "" {
		cfg.Acceptance = "strict"
	}
	if cfg.Acceptance != "strict" && cfg.Acceptance != "metropolis" {
		return nil, binder.Configurationf("unknown acceptance policy %q", cfg.Acceptance)
	}
	if cfg.MutationsPerStep < 1 {
		cfg.MutationsPerStep = 1
	}
	alphabet := mutationAlphabet(cfg.OmitAAs)
	if len(alphabet) < 2 {
		return nil, binder.Configurationf("omit_aas %q leaves no substitutions", cfg.OmitAAs)
	}
	if cfg.Retry.MaxAttempts > 0 {
		predictor = oracle.RetryingPredictor{Next: predictor, Policy: cfg.Retry}
	}
	return &Generator{
		cfg:         cfg,
		target:      target,
		modality:    modality,
		predictor:   predictor,
		runID:       runID,
		alphabet:    alphabet,
		state:       StateProposing,
		currentSeq:  target.StartingSequence,
		currentFit:  math.Inf(-1),
		bestFit:     math.Inf(-1),
		temperature: cfg.Temperature,
	}, nil
}

// #endregion constructor

// #region accessors
// State is the current state machine node.
func (g *Generator) State() State { return g.state }

// StopReason is set once the generator has converged.
func (g *Generator) StopReason() StopReason { return g.stop }

// Iteration is the index of the next iteration to run.
func (g *Generator) Iteration() int { return g.iteration }

// Checkpoint captures the state needed to continue after the last emitted candidate.
func (g *Generator) Checkpoint() Checkpoint {
	cp := Checkpoint{
		Iteration:        g.iteration,
		Seed:             g.cfg.Seed,
		Scored:           g.scored,
		CurrentID:        g.currentID,
		CurrentSequence:  g.currentSeq,
		SinceImprovement: g.since,
		Temperature:      g.temperature,
	}
	if g.scored {
		cp.CurrentFitness = g.currentFit
		cp.BestFitness = g.bestFit
	}
	return cp
}

// Restore positions the generator after a persisted checkpoint. prior is the
// pose of the current sequence, if it was kept.
func (g *Generator) Restore(cp Checkpoint, prior *binder.Pose) error {
	if g.iteration != 0 || g.state != StateProposing {
		return fmt.Errorf("restore: generator already started")
	}
	if cp.Seed != g.cfg.Seed {
		return fmt.Errorf("%w: checkpoint seed %d, config seed %d", binder.ErrResumeConflict, cp.Seed, g.cfg.Seed)
	}
	if cp.CurrentSequence == "" {
		return fmt.Errorf("restore: checkpoint has no current sequence")
	}
	g.iteration = cp.Iteration
	g.scored = cp.Scored
	g.currentID = cp.CurrentID
	g.currentSeq = cp.CurrentSequence
	g.currentPose = prior
	g.since = cp.SinceImprovement
	g.temperature = cp.Temperature
	if cp.Scored {
		g.currentFit = cp.CurrentFitness
		g.bestFit = cp.BestFitness
	}
	log.Printf("[GEN] restored at iteration %d (since_improvement=%d)", cp.Iteration, cp.SinceImprovement)
	return nil
}

// #endregion accessors

// #region next
// Next runs one iteration and returns its candidate. It returns ErrDone after
// convergence and an error wrapping binder.ErrRunInterrupted if ctx is done
// before a new iteration starts. An iteration already in flight always
// completes.
func (g *Generator) Next(ctx context.Context) (*binder.Candidate, error) {
	if g.state == StateConverged {
		return nil, ErrDone
	}
	if reason := g.exhausted(); reason != StopNone {
		g.enter(StateConverged)
		g.stop = reason
		log.Printf("[GEN] converged after %d iterations: %s", g.iteration, reason)
		return nil, ErrDone
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", binder.ErrRunInterrupted, err)
	}
	if g.state != StateProposing {
		g.enter(StateProposing)
	}

	it := g.iteration
	rng := iterationRand(g.cfg.Seed, it)
	seq, mutations := g.currentSeq, []string(nil)
	if it > 0 {
		seq, mutations = mutate(rng, g.currentSeq, g.target.CDRPositions, g.cfg.MutationsPerStep, g.alphabet)
	}
	cand := &binder.Candidate{
		ID:       binder.CandidateID(g.runID, it),
		Sequence: seq,
		Provenance: binder.Provenance{
			Iteration: it,
			ParentID:  g.currentID,
			Mutations: mutations,
		},
	}

	g.enter(StateAwaitingOracle)
	// In-flight oracle calls are not cancelled by an interrupt.
	pred, err := g.predictor.Predict(context.WithoutCancel(ctx), oracle.PredictRequest{
		CandidateID: cand.ID,
		Sequence:    seq,
		Prior:       g.currentPose,
		Target:      g.target,
		Modality:    g.modality,
		Models:      g.cfg.Models,
	})
	if err == nil {
		err = g.absorb(cand, pred)
	}
	if err != nil {
		g.enter(StateErrored)
		cand.Step = binder.StepErrored
		cand.Error = err.Error()
		g.since++
		log.Printf("[GEN] iter %d errored: %v", it, err)
	} else {
		g.decide(rng, cand)
	}

	g.iteration++
	if g.cfg.Cooling > 0 {
		g.temperature *= g.cfg.Cooling
	}
	return cand, nil
}

// All yields candidates until convergence or interruption. A non-nil error is
// yielded once and ends the sequence.
func (g *Generator) All(ctx context.Context) iter.Seq2[*binder.Candidate, error] {
	return func(yield func(*binder.Candidate, error) bool) {
		for {
			cand, err := g.Next(ctx)
			if errors.Is(err, ErrDone) {
				return
			}
			if !yield(cand, err) || err != nil {
				return
			}
		}
	}
}

// #endregion next

// #region transitions
func (g *Generator) enter(next State) {
	if !canTransition(g.state, next) {
		panic(fmt.Sprintf("generator: illegal transition %s -> %s", g.state, next))
	}
	g.state = next
}

func (g *Generator) exhausted() StopReason {
	if g.iteration >= g.cfg.MaxIterations {
		return StopBudget
	}
	if g.cfg.Patience > 0 && g.since >= g.cfg.Patience {
		return StopPatience
	}
	return StopNone
}

// absorb copies prediction output into the candidate and computes fitness.
func (g *Generator) absorb(cand *binder.Candidate, pred oracle.Prediction) error {
	if _, err := cand.Metrics.Merge(pred.Metrics); err != nil {
		return &binder.OracleError{Op: "predict " + cand.ID, Kind: binder.ErrOracleInvalidInput, Err: err}
	}
	fit, err := fitness(cand.Metrics, g.cfg.FitnessWeights)
	if err != nil {
		return &binder.OracleError{Op: "predict " + cand.ID, Kind: binder.ErrOracleInvalidInput, Err: err}
	}
	cand.Fitness = fit
	cand.Pose = pred.Pose
	return nil
}

// decide applies the acceptance policy and updates the trajectory.
func (g *Generator) decide(rng randSource, cand *binder.Candidate) {
	if cand.Fitness > g.bestFit+g.cfg.Tolerance {
		g.since = 0
	} else {
		g.since++
	}
	if cand.Fitness > g.bestFit {
		g.bestFit = cand.Fitness
	}

	if !accept(g.cfg.Acceptance, rng, cand.Fitness, g.currentFit, g.temperature) {
		g.enter(StateRejected)
		cand.Step = binder.StepRejected
		log.Printf("[GEN] iter %d rejected fitness=%.4f current=%.4f", cand.Provenance.Iteration, cand.Fitness, g.currentFit)
		return
	}
	g.enter(StateAccepted)
	cand.Step = binder.StepAccepted
	g.scored = true
	g.currentID = cand.ID
	g.currentSeq = cand.Sequence
	g.currentPose = cand.Pose
	g.currentFit = cand.Fitness
	log.Printf("[GEN] iter %d accepted fitness=%.4f mutations=%v", cand.Provenance.Iteration, cand.Fitness, cand.Provenance.Mutations)
}

// #endregion transitions
