package filter

import (
	"cmp"
	"slices"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
)

// #region rank-spec
// RankSpec orders accepted candidates.
type RankSpec struct {
	Primary       string
	PrimaryDesc   bool
	Secondary     string // optional
	SecondaryDesc bool
}

// RankFrom converts the ranking section of a run config.
func RankFrom(cfg config.RankingConfig) RankSpec {
	return RankSpec{
		Primary:       cfg.PrimaryMetric,
		PrimaryDesc:   cfg.Direction != "asc",
		Secondary:     cfg.SecondaryMetric,
		SecondaryDesc: cfg.SecondaryDirection != "asc",
	}
}

// #endregion rank-spec

// #region rank
// Rank returns cands sorted best first: primary metric, then secondary
// metric, then earlier iteration, then candidate ID. A missing metric sorts
// after every present value. The result depends only on the candidates, never
// on their input order.
func Rank(cands []*binder.Candidate, spec RankSpec) []*binder.Candidate {
	out := slices.Clone(cands)
	slices.SortFunc(out, func(a, b *binder.Candidate) int {
		if c := compareMetric(a, b, spec.Primary, spec.PrimaryDesc); c != 0 {
			return c
		}
		if spec.Secondary != "" {
			if c := compareMetric(a, b, spec.Secondary, spec.SecondaryDesc); c != 0 {
				return c
			}
		}
		if c := cmp.Compare(a.Provenance.Iteration, b.Provenance.Iteration); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func compareMetric(a, b *binder.Candidate, metric string, desc bool) int {
	av, aok := a.Metrics.Get(metric)
	bv, bok := b.Metrics.Get(metric)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}
	if desc {
		return cmp.Compare(bv, av)
	}
	return cmp.Compare(av, bv)
}

// #endregion rank
