package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/archive"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/oracle"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/pipeline"
	"github.com/danielpatrickdp/binder-design/go-runner/internal/target"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

// #region main
func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := resolve(args)
	if err != nil {
		log.Printf("[MAIN] %v", err)
		return exitCode(err)
	}

	tgt, err := target.Load(cfg)
	if err != nil {
		log.Printf("[MAIN] %v", err)
		return exitCode(err)
	}

	var store archive.Store
	if cfg.Archive.Enabled {
		s3, err := archive.NewS3Store(cfg.Archive)
		if err != nil {
			log.Printf("[MAIN] archive: %v", err)
			return exitConfig
		}
		store = s3
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers closerList
	defer closers.closeAll()

	summaries, err := pipeline.RunDevices(ctx, cfg, tgt, func(device string) (pipeline.Deps, error) {
		deps, err := buildDeps(cfg, device, &closers)
		deps.Archive = store
		return deps, err
	})
	for _, s := range summaries {
		if s.ExperimentName == "" {
			continue
		}
		fmt.Printf("%s: %d candidates, %d accepted, %d rejected, %d errored\n",
			s.ExperimentName, s.Totals.Candidates, s.Totals.Accepted, s.Totals.Rejected, s.Totals.Errored)
		for _, e := range s.Accepted {
			if e.Rank > 5 {
				break
			}
			fmt.Printf("  #%d %s iter=%d %s\n", e.Rank, e.ID, e.Provenance.Iteration, e.Sequence)
		}
	}
	if err != nil {
		log.Printf("[MAIN] %v", err)
		return exitCode(err)
	}
	return exitOK
}

// #endregion main

// #region config
// resolve folds environment settings in as the lowest-precedence overrides,
// then resolves the command line against the config directory.
func resolve(args []string) (config.RunConfig, error) {
	var env []string
	for key, override := range map[string]string{
		"GERMINAL_PREDICTOR_ADDR": "oracle.predictor_addr",
		"GERMINAL_SCORER_ADDR":    "oracle.scorer_addr",
		"GERMINAL_PROJECT_DIR":    "project_dir",
	} {
		if v := os.Getenv(key); v != "" {
			env = append(env, override+"="+v)
		}
	}
	r := config.Resolver{Dir: envOr("GERMINAL_CONFIG_DIR", "configs")}
	cfg, err := r.Resolve(append(env, args...))
	if err != nil {
		return config.RunConfig{}, err
	}
	cfg.Archive.AccessKey = os.Getenv("GERMINAL_ARCHIVE_ACCESS_KEY")
	cfg.Archive.SecretKey = os.Getenv("GERMINAL_ARCHIVE_SECRET_KEY")
	return cfg, nil
}

// #endregion config

// #region deps
type closerList struct {
	mu  sync.Mutex
	fns []func() error
}

func (c *closerList) add(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

func (c *closerList) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fn := range c.fns {
		if err := fn(); err != nil {
			log.Printf("[MAIN] close: %v", err)
		}
	}
}

// buildDeps connects one device's oracles. Each device owns its connections and cache.
func buildDeps(cfg config.RunConfig, device string, closers *closerList) (pipeline.Deps, error) {
	var deps pipeline.Deps
	switch cfg.Oracle.Mode {
	case "synthetic":
		s := oracle.Synthetic{PredictorMetrics: cfg.Oracle.PredictorMetrics}
		deps.Predictor, deps.Scorer = s, s
	default:
		pred, err := oracle.Dial(cfg.Oracle.PredictorAddr)
		if err != nil {
			return deps, err
		}
		pred.SetDevice(device)
		closers.add(pred.Close)
		deps.Predictor, deps.Scorer = pred, pred

		if addr := cfg.Oracle.ScorerAddr; addr != "" && addr != cfg.Oracle.PredictorAddr {
			sc, err := oracle.Dial(addr)
			if err != nil {
				return deps, err
			}
			sc.SetDevice(device)
			closers.add(sc.Close)
			deps.Scorer = sc
		}
	}

	if cfg.Oracle.CacheSize > 0 {
		cached, err := oracle.NewCachedPredictor(deps.Predictor, cfg.Oracle.CacheSize)
		if err != nil {
			return deps, err
		}
		deps.Predictor = cached
	}
	return deps, nil
}

// #endregion deps

// #region helpers
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, binder.ErrRunInterrupted):
		return exitInterrupted
	case errors.Is(err, binder.ErrConfiguration):
		return exitConfig
	}
	return exitFailure
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
