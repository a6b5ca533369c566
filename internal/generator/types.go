package generator

import (
	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/oracle"
)

// #region state
// State is a node of the optimizer state machine.
type State string

const (
	StateProposing      State = "proposing"
	StateAwaitingOracle State = "awaiting_oracle"
	StateAccepted       State = "accepted"
	StateRejected       State = "rejected"
	StateErrored        State = "errored"
	StateConverged      State = "converged"
)

var transitions = map[State][]State{
	StateProposing:      {StateAwaitingOracle, StateConverged},
	StateAwaitingOracle: {StateAccepted, StateRejected, StateErrored},
	StateAccepted:       {StateProposing, StateConverged},
	StateRejected:       {StateProposing, StateConverged},
	StateErrored:        {StateProposing, StateConverged},
	StateConverged:      nil,
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// #endregion state

// #region stop-reason
// StopReason says why the generator converged.
type StopReason string

const (
	StopNone     StopReason = ""
	StopPatience StopReason = "patience"
	StopBudget   StopReason = "budget"
)

// #endregion stop-reason

// #region config
// Config holds optimizer hyperparameters.
type Config struct {
	MaxIterations    int
	Patience         int // 0 disables early stopping
	Tolerance        float64
	Seed             int64
	MutationsPerStep int
	OmitAAs          string
	Acceptance       string // "strict" | "metropolis"
	Temperature      float64
	Cooling          float64
	FitnessWeights   map[string]float64
	Models           []int

	Retry oracle.RetryPolicy
}

// ConfigFrom extracts the optimizer settings from a resolved run config.
func ConfigFrom(cfg config.RunConfig) Config {
	o := cfg.Optimizer
	return Config{
		MaxIterations:    o.MaxIterations,
		Patience:         o.Patience,
		Tolerance:        o.Tolerance,
		Seed:             o.Seed,
		MutationsPerStep: o.MutationsPerStep,
		OmitAAs:          o.OmitAAs,
		Acceptance:       o.Acceptance,
		Temperature:      o.Temperature,
		Cooling:          o.Cooling,
		FitnessWeights:   o.FitnessWeights,
		Models:           cfg.DesignModels,
		Retry: oracle.RetryPolicy{
			MaxAttempts: cfg.Oracle.MaxAttempts,
			BaseDelay:   cfg.Oracle.BaseBackoff,
			MaxDelay:    cfg.Oracle.MaxBackoff,
			CallTimeout: cfg.Oracle.CallTimeout,
		},
	}
}

// #endregion config

// #region checkpoint
// Checkpoint is the generator state between two iterations. Restoring it
// continues the exact trajectory an uninterrupted run would follow.
type Checkpoint struct {
	Iteration        int     `json:"iteration"` // next iteration to run
	Seed             int64   `json:"seed"`
	Scored           bool    `json:"scored"` // a prediction has succeeded
	CurrentID        string  `json:"current_id,omitempty"`
	CurrentSequence  string  `json:"current_sequence"`
	CurrentFitness   float64 `json:"current_fitness"`
	BestFitness      float64 `json:"best_fitness"`
	SinceImprovement int     `json:"since_improvement"`
	Temperature      float64 `json:"temperature"`
}

// #endregion checkpoint
