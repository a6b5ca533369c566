package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/archive"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/filter"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/generator"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/oracle"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/run"
)

// #region deps
// Deps are the external collaborators of one pipeline. Each device gets its own.
type Deps struct {
	Predictor oracle.Predictor
	Scorer    oracle.Scorer // nil if no stage needs on-demand metrics
	Archive   archive.Store // optional
}

// #endregion deps

// #region run
// Run executes one experiment: generate, filter, record, finalize. Configuration
// problems are reported before the experiment directory is touched. If ctx is
// cancelled the current iteration completes and is recorded, the run is
// finalized, and the returned error wraps binder.ErrRunInterrupted.
func Run(ctx context.Context, cfg config.RunConfig, target *binder.Target, deps Deps) (run.Summary, error) {
	genCfg := generator.ConfigFrom(cfg)

	stages, err := filter.StagesFrom(cfg.Filter)
	if err != nil {
		return run.Summary{}, err
	}
	cascade, err := filter.NewCascade(stages, filter.Options{
		Provided: cfg.Oracle.PredictorMetrics,
		Scorable: cfg.Oracle.ScorerMetrics,
		Scorer:   deps.Scorer,
		Retry:    genCfg.Retry,
	})
	if err != nil {
		return run.Summary{}, err
	}
	gen, err := generator.New(genCfg, target, cfg.Modality, deps.Predictor, binder.RunID(cfg.ExperimentName))
	if err != nil {
		return run.Summary{}, err
	}

	mgr, err := run.Begin(ctx, cfg, run.Options{Archive: deps.Archive})
	if err != nil {
		return run.Summary{}, err
	}
	defer mgr.Close()

	if mgr.Resumed() {
		cp, ok, err := mgr.Checkpoint(ctx)
		if err != nil {
			return run.Summary{}, err
		}
		if ok {
			if err := gen.Restore(cp, mgr.Pose(cp.CurrentID)); err != nil {
				return run.Summary{}, err
			}
		}
	}

	// Records and the final summary are flushed even after an interrupt.
	flushCtx := context.WithoutCancel(ctx)
	var interrupted error
	for {
		cand, err := gen.Next(ctx)
		if errors.Is(err, generator.ErrDone) {
			break
		}
		if errors.Is(err, binder.ErrRunInterrupted) {
			interrupted = err
			log.Printf("[PIPE] %s interrupted before iteration %d", cfg.ExperimentName, gen.Iteration())
			break
		}
		if err != nil {
			return run.Summary{}, err
		}

		verdict := cascade.Evaluate(ctx, cand, target)
		if err := mgr.Record(flushCtx, cand, verdict, gen.Checkpoint()); err != nil {
			return run.Summary{}, fmt.Errorf("record %s: %w", cand.ID, err)
		}
	}

	summary, err := mgr.Finalize(flushCtx)
	if err != nil {
		return run.Summary{}, err
	}
	if interrupted != nil {
		return summary, interrupted
	}
	log.Printf("[PIPE] %s done: %s after %d iterations", cfg.ExperimentName, gen.StopReason(), gen.Iteration())
	return summary, nil
}

// #endregion run

// #region devices
// DeviceConfig derives the config of the run pinned to device index i.
func DeviceConfig(cfg config.RunConfig, i int, device string) config.RunConfig {
	c := cfg
	c.ExperimentName = fmt.Sprintf("%s_dev%s", cfg.ExperimentName, device)
	c.Optimizer.Seed = cfg.Optimizer.Seed + int64(i)
	c.Devices = []string{device}
	return c
}

// RunDevices runs one independent experiment per device concurrently. depsFor
// builds the collaborators bound to a device; nothing mutable is shared.
func RunDevices(ctx context.Context, cfg config.RunConfig, target *binder.Target, depsFor func(device string) (Deps, error)) ([]run.Summary, error) {
	if len(cfg.Devices) <= 1 {
		deps, err := depsFor(firstDevice(cfg.Devices))
		if err != nil {
			return nil, err
		}
		s, err := Run(ctx, cfg, target, deps)
		return []run.Summary{s}, err
	}

	summaries := make([]run.Summary, len(cfg.Devices))
	var g errgroup.Group
	for i, dev := range cfg.Devices {
		devCfg := DeviceConfig(cfg, i, dev)
		g.Go(func() error {
			deps, err := depsFor(dev)
			if err != nil {
				return fmt.Errorf("device %s: %w", dev, err)
			}
			log.Printf("[PIPE] device %s -> %s (seed %d)", dev, devCfg.ExperimentName, devCfg.Optimizer.Seed)
			s, err := Run(ctx, devCfg, target, deps)
			summaries[i] = s
			if err != nil {
				return fmt.Errorf("device %s: %w", dev, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return summaries, err
}

func firstDevice(devices []string) string {
	if len(devices) == 0 {
		return ""
	}
	return devices[0]
}

// #endregion devices
