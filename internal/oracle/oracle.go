package oracle

import (
	"context"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// #region types
// PredictRequest is one StructurePredictor call.
type PredictRequest struct {
	CandidateID string
	Sequence    string
	Prior       *binder.Pose
	Target      *binder.Target
	Modality    binder.Modality
	Models      []int
}

// Prediction is a structural model plus its confidence metrics.
type Prediction struct {
	Pose    *binder.Pose
	Metrics map[string]float64
}

// ScoreRequest asks the ScoringOracle for the named metrics of a pose.
type ScoreRequest struct {
	CandidateID string
	Sequence    string
	Pose        *binder.Pose
	Target      *binder.Target
	Metrics     []string
}

// #endregion types

// #region interfaces
// Predictor is the structure-prediction oracle. Calls block until a result or
// a typed *binder.OracleError is returned.
type Predictor interface {
	Predict(ctx context.Context, req PredictRequest) (Prediction, error)
}

// Scorer is the physics-based scoring oracle.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (map[string]float64, error)
}

// #endregion interfaces

func copyMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
