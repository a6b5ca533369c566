package oracle

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// CachedPredictor memoizes successful predictions by sequence. Hill climbing
// revisits sequences often and every miss is a GPU fold.
type CachedPredictor struct {
	next  Predictor
	cache *lru.Cache[string, Prediction]
	hits  atomic.Int64
}

// NewCachedPredictor wraps next with an LRU of the given size.
func NewCachedPredictor(next Predictor, size int) (*CachedPredictor, error) {
	cache, err := lru.New[string, Prediction](size)
	if err != nil {
		return nil, fmt.Errorf("prediction cache: %w", err)
	}
	return &CachedPredictor{next: next, cache: cache}, nil
}

func (c *CachedPredictor) Predict(ctx context.Context, req PredictRequest) (Prediction, error) {
	if p, ok := c.cache.Get(req.Sequence); ok {
		c.hits.Add(1)
		return clonePrediction(p), nil
	}
	p, err := c.next.Predict(ctx, req)
	if err != nil {
		return Prediction{}, err
	}
	c.cache.Add(req.Sequence, clonePrediction(p))
	return p, nil
}

// Hits is the number of predictions served from the cache.
func (c *CachedPredictor) Hits() int64 { return c.hits.Load() }

func clonePrediction(p Prediction) Prediction {
	out := Prediction{Metrics: copyMetrics(p.Metrics)}
	if p.Pose != nil {
		out.Pose = &binder.Pose{PDB: p.Pose.PDB}
	}
	return out
}
