package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// #region helpers
func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func configDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), `
project_dir: /tmp/proj
results_dir: runs
oracle:
  mode: synthetic
`)
	writeFile(t, filepath.Join(dir, "run", "vhh.yaml"), `
cdr_lengths: [11, 8, 18]
fw_lengths: [25, 17, 38, 14]
`)
	writeFile(t, filepath.Join(dir, "run", "scfv.yaml"), `
cdr_lengths: [11, 8, 18, 11, 8, 18]
fw_lengths: [25, 17, 38, 34, 17, 38, 14]
use_multimer_design: true
`)
	writeFile(t, filepath.Join(dir, "target", "antigenX.yaml"), `
target_name: antigenX
target_pdb_path: pdbs/antigenX.pdb
target_chain: "A,C"
target_hotspots: "A10,C5"
`)
	writeFile(t, filepath.Join(dir, "filter", "initial", "default.yaml"), `
interface_confidence: {value: 0.7, operator: ">="}
`)
	writeFile(t, filepath.Join(dir, "filter", "final", "default.yaml"), `
binding_energy: {value: -10.0, operator: "<="}
plddt: {operator: range, min: 0.5, max: 1.0}
`)
	return dir
}

// #endregion helpers

func TestResolveLayers(t *testing.T) {
	r := Resolver{Dir: configDir(t)}
	cfg, err := r.Resolve([]string{
		"run=vhh", "target=antigenX", "filter.initial=default", "filter.final=default",
		"experiment_name=exp1", "optimizer.seed=42", "oracle.call_timeout=30s",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Modality != binder.ModalityVHH {
		t.Errorf("modality = %s", cfg.Modality)
	}
	if cfg.ExperimentName != "exp1" || cfg.Optimizer.Seed != 42 {
		t.Errorf("overrides not applied: %+v", cfg.Optimizer)
	}
	if cfg.Oracle.CallTimeout != 30*time.Second {
		t.Errorf("call timeout = %v", cfg.Oracle.CallTimeout)
	}
	if cfg.Target.Name != "antigenX" || !cfg.Target.Chain.Multi() || cfg.Target.Chain[1] != "C" {
		t.Errorf("target not merged: %+v", cfg.Target)
	}
	if c, ok := cfg.Filter.Initial["interface_confidence"]; !ok || *c.Value != 0.7 || c.Operator != ">=" {
		t.Errorf("initial filter = %+v", cfg.Filter.Initial)
	}
	if len(cfg.Filter.Final) != 2 {
		t.Errorf("final filter = %+v", cfg.Filter.Final)
	}
	if got := cfg.ExperimentDir(); got != filepath.Join("/tmp/proj", "runs", "exp1") {
		t.Errorf("experiment dir = %s", got)
	}
	if len(cfg.DesignModels) != 2 {
		t.Errorf("design models = %v", cfg.DesignModels)
	}
	// defaults survive
	if cfg.Oracle.MaxAttempts != 3 || cfg.Optimizer.Acceptance != "strict" {
		t.Errorf("defaults lost: %+v", cfg.Oracle)
	}
}

func TestResolveSCFVMultimer(t *testing.T) {
	r := Resolver{Dir: configDir(t)}
	cfg, err := r.Resolve([]string{"run=scfv", "target=antigenX"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.Modality != binder.ModalitySCFV {
		t.Errorf("modality = %s", cfg.Modality)
	}
	if len(cfg.DesignModels) != 5 {
		t.Errorf("multimer design models = %v", cfg.DesignModels)
	}
	if len(cfg.CDRLengths) != 6 {
		t.Errorf("run overlay not applied: %v", cfg.CDRLengths)
	}
}

func TestResolveUnknownTarget(t *testing.T) {
	r := Resolver{Dir: configDir(t)}
	_, err := r.Resolve([]string{"target=nope"})
	if !errors.Is(err, binder.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestResolveUnknownKey(t *testing.T) {
	r := Resolver{Dir: configDir(t)}
	_, err := r.Resolve([]string{"target=antigenX", "optimizer.max_iter=5"})
	if !errors.Is(err, binder.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown key, got %v", err)
	}
}

func TestResolveKeepsStringOverrideText(t *testing.T) {
	r := Resolver{Dir: configDir(t)}
	cfg, err := r.Resolve([]string{"target=antigenX", "experiment_name=001"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.ExperimentName != "001" {
		t.Fatalf("experiment name = %q", cfg.ExperimentName)
	}
}

func TestNormalizeBiasAndAlias(t *testing.T) {
	cfg := Default()
	cfg.Type = "nb"
	cfg.BiasRedesign = -1
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Type != "vhh" || cfg.Modality != binder.ModalityVHH {
		t.Errorf("alias not normalized: %s", cfg.Type)
	}
	if cfg.BiasEnabled || cfg.BiasRedesign != 0 {
		t.Errorf("negative bias should disable redesign bias")
	}
}

func TestValidateFitnessWeightMustBePredicted(t *testing.T) {
	cfg := Default()
	cfg.Target.Name = "t"
	cfg.Oracle.Mode = "synthetic"
	cfg.Optimizer.FitnessWeights = map[string]float64{"binding_energy": -1}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if err := Validate(cfg); !errors.Is(err, binder.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidateRangeNeedsBounds(t *testing.T) {
	cfg := Default()
	cfg.Target.Name = "t"
	cfg.Oracle.Mode = "synthetic"
	lo := 1.0
	cfg.Filter.Initial = StageConfig{"plddt": {Operator: "range", Min: &lo}}
	Normalize(&cfg)
	if err := Validate(cfg); !errors.Is(err, binder.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidateGRPCNeedsAddress(t *testing.T) {
	cfg := Default()
	cfg.Target.Name = "t"
	Normalize(&cfg)
	if err := Validate(cfg); !errors.Is(err, binder.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	cfg.Oracle.PredictorAddr = "localhost:50051"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseOverridesRejectsBareWords(t *testing.T) {
	if _, err := ParseOverrides([]string{"vhh"}); !errors.Is(err, binder.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	ov, err := ParseOverrides([]string{"+devices=[0,1]"})
	if err != nil || ov[0].Key != "devices" {
		t.Fatalf("unexpected %v %v", ov, err)
	}
}

func TestLoadSnapshotRoundTrip(t *testing.T) {
	r := Resolver{Dir: configDir(t)}
	cfg, err := r.Resolve([]string{"target=antigenX", "filter.initial=default"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, string(data))
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.Target.Name != cfg.Target.Name || back.Optimizer.Seed != cfg.Optimizer.Seed {
		t.Fatalf("snapshot mismatch: %+v", back)
	}
	if *back.Filter.Initial["interface_confidence"].Value != 0.7 {
		t.Fatalf("filter lost in snapshot")
	}
}
