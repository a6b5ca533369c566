package oracle

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// metricRanges gives plausible value ranges for well-known metrics.
var metricRanges = map[string][2]float64{
	"plddt":                 {0.4, 0.95},
	"iptm":                  {0.1, 0.9},
	"interface_confidence":  {0.1, 0.95},
	"i_pae":                 {3, 28},
	"binding_energy":        {-30, 0},
	"shape_complementarity": {0.3, 0.8},
	"clashes":               {0, 5},
	"sasa":                  {400, 2500},
}

// Synthetic is a deterministic stand-in for the model service: every metric is
// a pure function of (sequence, metric name). It serves dry runs and tests.
type Synthetic struct {
	PredictorMetrics []string
}

// Predict implements Predictor.
func (s Synthetic) Predict(_ context.Context, req PredictRequest) (Prediction, error) {
	if req.Sequence == "" {
		return Prediction{}, &binder.OracleError{Op: "predict", Kind: binder.ErrOracleInvalidInput, Err: fmt.Errorf("empty sequence")}
	}
	metrics := make(map[string]float64, len(s.PredictorMetrics))
	for _, m := range s.PredictorMetrics {
		metrics[m] = SyntheticValue(req.Sequence, m)
	}
	return Prediction{Pose: &binder.Pose{PDB: caTrace(req.Sequence)}, Metrics: metrics}, nil
}

// Score implements Scorer.
func (s Synthetic) Score(_ context.Context, req ScoreRequest) (map[string]float64, error) {
	out := make(map[string]float64, len(req.Metrics))
	for _, m := range req.Metrics {
		out[m] = SyntheticValue(req.Sequence, m)
	}
	return out, nil
}

// SyntheticValue maps (sequence, metric) to a stable value inside the metric's range.
func SyntheticValue(sequence, metric string) float64 {
	h := fnv.New64a()
	h.Write([]byte(metric))
	h.Write([]byte{0})
	h.Write([]byte(sequence))
	u := float64(h.Sum64()>>11) / float64(1<<53)

	r, ok := metricRanges[metric]
	if !ok {
		r = [2]float64{0, 1}
	}
	v := r[0] + u*(r[1]-r[0])
	return math.Round(v*1e4) / 1e4
}

// caTrace renders a straight CA trace on chain B, enough for downstream tools
// that only need residue identity.
func caTrace(seq string) string {
	var b strings.Builder
	for i, r := range seq {
		fmt.Fprintf(&b, "ATOM  %5d  CA  %3s B%4d    %8.3f%8.3f%8.3f  1.00  0.00           C\n",
			i+1, oneToThree(r), i+1, float64(i)*3.8, 0.0, 0.0)
	}
	b.WriteString("TER\nEND\n")
	return b.String()
}

func oneToThree(r rune) string {
	for k, v := range threeLetter {
		if rune(v) == r {
			return k
		}
	}
	return "UNK"
}

var threeLetter = map[string]byte{
	"ALA": 'A', "ARG": 'R', "ASN": 'N', "ASP": 'D', "CYS": 'C',
	"GLN": 'Q', "GLU": 'E', "GLY": 'G', "HIS": 'H', "ILE": 'I',
	"LEU": 'L', "LYS": 'K', "MET": 'M', "PHE": 'F', "PRO": 'P',
	"SER": 'S', "THR": 'T', "TRP": 'W', "TYR": 'Y', "VAL": 'V',
}
