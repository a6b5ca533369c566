package filter

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/oracle"
)

// #region options
// Options tells the cascade which metrics it can rely on.
type Options struct {
	Provided []string // present on every non-errored candidate (predictor metrics)
	Scorable []string // computable on demand by Scorer
	Scorer   oracle.Scorer
	Retry    oracle.RetryPolicy
}

// #endregion options

// #region cascade
// Cascade gates candidates through ordered stages. Later stages are never
// evaluated for a candidate that failed an earlier one.
type Cascade struct {
	stages   []Stage
	scorer   oracle.Scorer
	scorable map[string]bool
}

// NewCascade validates that every criterion's metric is either provided or
// scorable and fails with binder.ErrConfiguration otherwise.
func NewCascade(stages []Stage, opts Options) (*Cascade, error) {
	provided := make(map[string]bool, len(opts.Provided))
	for _, m := range opts.Provided {
		provided[m] = true
	}
	scorable := make(map[string]bool, len(opts.Scorable))
	if opts.Scorer != nil {
		for _, m := range opts.Scorable {
			scorable[m] = true
		}
	}

	seen := make(map[string]bool, len(stages))
	for _, st := range stages {
		if st.Name == "" || seen[st.Name] {
			return nil, binder.Configurationf("stage name %q is empty or repeated", st.Name)
		}
		seen[st.Name] = true
		for _, c := range st.Criteria {
			if _, err := ParseOp(string(c.Op)); err != nil {
				return nil, binder.Configurationf("stage %s metric %s: %v", st.Name, c.Metric, err)
			}
			if c.Op == OpRange && c.Min > c.Max {
				return nil, binder.Configurationf("stage %s metric %s: range min %v > max %v", st.Name, c.Metric, c.Min, c.Max)
			}
			if !provided[c.Metric] && !scorable[c.Metric] {
				return nil, binder.Configurationf("stage %s: metric %q is neither predicted nor scorable", st.Name, c.Metric)
			}
		}
	}

	scorer := opts.Scorer
	if scorer != nil && opts.Retry.MaxAttempts > 0 {
		scorer = oracle.RetryingScorer{Next: scorer, Policy: opts.Retry}
	}
	return &Cascade{stages: stages, scorer: scorer, scorable: scorable}, nil
}

// Stages returns the configured stages in evaluation order.
func (c *Cascade) Stages() []Stage { return c.stages }

// #endregion cascade

// #region evaluate
// Evaluate runs cand through the stages, scoring missing metrics on demand and
// appending them to cand.Metrics. Candidates errored by the generator are
// returned as errored without touching any stage. Scorer calls ignore
// cancellation of ctx so an in-flight evaluation completes.
func (c *Cascade) Evaluate(ctx context.Context, cand *binder.Candidate, target *binder.Target) Verdict {
	if cand.Errored() {
		return Verdict{Status: StatusErrored}
	}

	var v Verdict
	for _, st := range c.stages {
		res := StageResult{Stage: st.Name}

		if missing := missingMetrics(st, cand.Metrics); len(missing) > 0 {
			scored, err := c.score(ctx, cand, target, missing)
			res.Scored = scored
			if err != nil {
				res.Outcome = OutcomeErrored
				res.Error = err.Error()
				if cand.Error == "" {
					cand.Error = err.Error()
				}
				v.Stages = append(v.Stages, res)
				v.Status = StatusErrored
				v.RejectedAt = st.Name
				log.Printf("[CASCADE] %s errored at %s: %v", cand.ID, st.Name, err)
				return v
			}
		}

		res.Outcome = OutcomePassed
		for _, cr := range st.Criteria {
			val, _ := cand.Metrics.Get(cr.Metric)
			ok := cr.Eval(val)
			res.Checks = append(res.Checks, Check{Metric: cr.Metric, Threshold: cr.Threshold(), Value: val, Passed: ok})
			if !ok {
				res.Outcome = OutcomeFailed
			}
		}
		v.Stages = append(v.Stages, res)

		if res.Outcome == OutcomeFailed {
			v.Status = StatusRejected
			v.RejectedAt = st.Name
			log.Printf("[CASCADE] %s rejected at %s", cand.ID, st.Name)
			return v
		}
	}
	v.Status = StatusAccepted
	log.Printf("[CASCADE] %s accepted", cand.ID)
	return v
}

func (c *Cascade) score(ctx context.Context, cand *binder.Candidate, target *binder.Target, missing []string) ([]string, error) {
	if c.scorer == nil {
		return nil, fmt.Errorf("no scorer for %v", missing)
	}
	out, err := c.scorer.Score(context.WithoutCancel(ctx), oracle.ScoreRequest{
		CandidateID: cand.ID,
		Sequence:    cand.Sequence,
		Pose:        cand.Pose,
		Target:      target,
		Metrics:     missing,
	})
	if err != nil {
		return nil, err
	}
	for _, m := range missing {
		if _, ok := out[m]; !ok {
			return nil, &binder.OracleError{Op: "score " + cand.ID, Kind: binder.ErrOracleInvalidInput,
				Err: fmt.Errorf("response lacks %s", m)}
		}
	}
	added, err := cand.Metrics.Merge(out)
	if err != nil {
		return added, &binder.OracleError{Op: "score " + cand.ID, Kind: binder.ErrOracleInvalidInput, Err: err}
	}
	return added, nil
}

func missingMetrics(st Stage, m binder.Metrics) []string {
	var out []string
	for _, c := range st.Criteria {
		if !m.Has(c.Metric) {
			out = append(out, c.Metric)
		}
	}
	return out
}

// #endregion evaluate

// #region from-config
// StagesFrom builds the initial and final stages from a resolved filter config.
func StagesFrom(cfg config.FilterConfig) ([]Stage, error) {
	initial, err := stageFrom("initial", cfg.Initial)
	if err != nil {
		return nil, err
	}
	final, err := stageFrom("final", cfg.Final)
	if err != nil {
		return nil, err
	}
	return []Stage{initial, final}, nil
}

func stageFrom(name string, sc config.StageConfig) (Stage, error) {
	st := Stage{Name: name}
	for _, metric := range sc.MetricNames() {
		cc := sc[metric]
		op, err := ParseOp(cc.Operator)
		if err != nil {
			return Stage{}, binder.Configurationf("filter.%s.%s: %v", name, metric, err)
		}
		cr := Criterion{Metric: metric, Op: op}
		if op == OpRange {
			if cc.Min == nil || cc.Max == nil {
				return Stage{}, binder.Configurationf("filter.%s.%s: range needs min and max", name, metric)
			}
			cr.Min, cr.Max = *cc.Min, *cc.Max
		} else {
			if cc.Value == nil {
				return Stage{}, binder.Configurationf("filter.%s.%s: missing value", name, metric)
			}
			cr.Value = *cc.Value
		}
		st.Criteria = append(st.Criteria, cr)
	}
	sort.Slice(st.Criteria, func(i, j int) bool { return st.Criteria[i].Metric < st.Criteria[j].Metric })
	return st, nil
}

// #endregion from-config
