package oracle

import (
	"context"
	"testing"
)

func TestCachedPredictorHits(t *testing.T) {
	p := &flakyPredictor{}
	c, err := NewCachedPredictor(p, 8)
	if err != nil {
		t.Fatalf("NewCachedPredictor: %v", err)
	}
	ctx := context.Background()
	first, _ := c.Predict(ctx, PredictRequest{Sequence: "QVQ"})
	first.Metrics["plddt"] = -1 // caller mutation must not leak into the cache

	second, err := c.Predict(ctx, PredictRequest{Sequence: "QVQ"})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.calls != 1 || c.Hits() != 1 {
		t.Fatalf("calls=%d hits=%d", p.calls, c.Hits())
	}
	if second.Metrics["plddt"] != 0.9 {
		t.Fatalf("cached metrics mutated: %v", second.Metrics)
	}
}

func TestCachedPredictorSkipsErrors(t *testing.T) {
	p := &flakyPredictor{failures: []error{timeout()}}
	c, _ := NewCachedPredictor(p, 8)
	if _, err := c.Predict(context.Background(), PredictRequest{Sequence: "QVQ"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := c.Predict(context.Background(), PredictRequest{Sequence: "QVQ"}); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("errors must not be cached, calls=%d", p.calls)
	}
}

func TestNewCachedPredictorRejectsZeroSize(t *testing.T) {
	if _, err := NewCachedPredictor(&flakyPredictor{}, 0); err == nil {
		t.Fatal("expected error for size 0")
	}
}
