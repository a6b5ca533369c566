package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/binder"
)

// #region run-config
// RunConfig is the fully resolved configuration of one experiment.
// It is immutable once Resolve returns.
type RunConfig struct {
	Type           string `yaml:"type" validate:"required"`
	ExperimentName string `yaml:"experiment_name" validate:"required,excludesall=/\\"`
	RunConfig      string `yaml:"run_config,omitempty"`
	ProjectDir     string `yaml:"project_dir"`
	ResultsDir     string `yaml:"results_dir"`
	PDBDir         string `yaml:"pdb_dir"`
	Resume         bool   `yaml:"resume"`

	CDRLengths        []int    `yaml:"cdr_lengths" validate:"required,min=1,dive,min=1"`
	FWLengths         []int    `yaml:"fw_lengths" validate:"required,min=1,dive,min=0"`
	UseMultimerDesign bool     `yaml:"use_multimer_design"`
	BiasRedesign      float64  `yaml:"bias_redesign"`
	Devices           []string `yaml:"devices,omitempty"`

	Target    TargetConfig    `yaml:"target"`
	Filter    FilterConfig    `yaml:"filter"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Archive   ArchiveConfig   `yaml:"archive"`

	// Derived by Normalize.
	Modality     binder.Modality `yaml:"-"`
	DesignModels []int           `yaml:"-"`
	BiasEnabled  bool            `yaml:"-"`
}

// TargetConfig describes the target structure.
type TargetConfig struct {
	Name             string    `yaml:"target_name" validate:"required"`
	PDBPath          string    `yaml:"target_pdb_path"`
	Chain            ChainList `yaml:"target_chain"`
	BinderChain      string    `yaml:"binder_chain"`
	Hotspots         string    `yaml:"target_hotspots,omitempty"`
	StartingSequence string    `yaml:"starting_sequence,omitempty"`
}

// FilterConfig holds the two ordered cascade stages.
type FilterConfig struct {
	Initial StageConfig `yaml:"initial" validate:"dive"`
	Final   StageConfig `yaml:"final" validate:"dive"`
}

// StageConfig maps metric name to its criterion.
type StageConfig map[string]CriterionConfig

// CriterionConfig is one threshold. Range criteria use Min and Max instead of Value.
type CriterionConfig struct {
	Value    *float64 `yaml:"value,omitempty"`
	Operator string   `yaml:"operator" validate:"required,oneof=> >= < <= == range"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`
}

// OptimizerConfig holds the DesignGenerator hyperparameters.
type OptimizerConfig struct {
	MaxIterations    int                `yaml:"max_iterations" validate:"min=1"`
	Patience         int                `yaml:"patience" validate:"min=0"`
	Tolerance        float64            `yaml:"tolerance" validate:"min=0"`
	Seed             int64              `yaml:"seed"`
	MutationsPerStep int                `yaml:"mutations_per_step" validate:"min=1"`
	OmitAAs          string             `yaml:"omit_aas"`
	Acceptance       string             `yaml:"acceptance" validate:"oneof=strict metropolis"`
	Temperature      float64            `yaml:"temperature" validate:"gte=0"`
	Cooling          float64            `yaml:"cooling" validate:"gt=0,lte=1"`
	FitnessWeights   map[string]float64 `yaml:"fitness_weights,omitempty"`
}

// OracleConfig addresses the predictor and scorer services.
type OracleConfig struct {
	Mode             string        `yaml:"mode" validate:"oneof=grpc synthetic"`
	PredictorAddr    string        `yaml:"predictor_addr,omitempty"`
	ScorerAddr       string        `yaml:"scorer_addr,omitempty"`
	CallTimeout      time.Duration `yaml:"call_timeout" validate:"gt=0"`
	MaxAttempts      int           `yaml:"max_attempts" validate:"min=1"`
	BaseBackoff      time.Duration `yaml:"base_backoff" validate:"gte=0"`
	MaxBackoff       time.Duration `yaml:"max_backoff" validate:"gte=0"`
	CacheSize        int           `yaml:"cache_size" validate:"min=0"`
	PredictorMetrics []string      `yaml:"predictor_metrics" validate:"required,min=1,dive,required"`
	ScorerMetrics    []string      `yaml:"scorer_metrics,omitempty" validate:"dive,required"`
}

// RankingConfig orders accepted candidates in the summary.
type RankingConfig struct {
	PrimaryMetric      string `yaml:"primary_metric" validate:"required"`
	Direction          string `yaml:"direction" validate:"oneof=asc desc"`
	SecondaryMetric    string `yaml:"secondary_metric,omitempty"`
	SecondaryDirection string `yaml:"secondary_direction,omitempty" validate:"omitempty,oneof=asc desc"`
}

// ArchiveConfig enables the S3/MinIO mirror. Credentials come from the environment only.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// #endregion run-config

// #region defaults
// Default returns the base layer every resolution starts from.
func Default() RunConfig {
	return RunConfig{
		Type:           "vhh",
		ExperimentName: "germinal_run",
		ProjectDir:     ".",
		ResultsDir:     "results",
		PDBDir:         "pdbs",
		CDRLengths:     []int{11, 8, 18},
		FWLengths:      []int{25, 17, 38, 14},
		Target: TargetConfig{
			Chain:       ChainList{"A"},
			BinderChain: "B",
		},
		Optimizer: OptimizerConfig{
			MaxIterations:    100,
			Patience:         20,
			Tolerance:        0,
			Seed:             1,
			MutationsPerStep: 1,
			OmitAAs:          "C",
			Acceptance:       "strict",
			Temperature:      0.05,
			Cooling:          0.98,
		},
		Oracle: OracleConfig{
			Mode:             "grpc",
			CallTimeout:      10 * time.Minute,
			MaxAttempts:      3,
			BaseBackoff:      2 * time.Second,
			MaxBackoff:       30 * time.Second,
			CacheSize:        1024,
			PredictorMetrics: []string{"plddt", "iptm", "i_pae", "interface_confidence"},
			ScorerMetrics:    []string{"binding_energy", "shape_complementarity", "clashes", "sasa"},
		},
		Ranking: RankingConfig{
			PrimaryMetric: "interface_confidence",
			Direction:     "desc",
		},
	}
}

// #endregion defaults

// #region normalize
// Normalize fills derived fields and applies the normalization rules for
// binder type, design models and redesign bias.
func Normalize(cfg *RunConfig) error {
	m, err := binder.ParseModality(cfg.Type)
	if err != nil {
		return err
	}
	cfg.Modality = m
	cfg.Type = string(m)

	if cfg.UseMultimerDesign {
		cfg.DesignModels = []int{0, 1, 2, 3, 4}
	} else {
		cfg.DesignModels = []int{0, 1}
	}
	if cfg.BiasRedesign < 0 {
		cfg.BiasRedesign = 0
	}
	cfg.BiasEnabled = cfg.BiasRedesign > 0

	cfg.ProjectDir = firstNonEmpty(cfg.ProjectDir, ".")
	cfg.ResultsDir = firstNonEmpty(cfg.ResultsDir, "results")
	cfg.PDBDir = firstNonEmpty(cfg.PDBDir, "pdbs")
	cfg.Target.BinderChain = firstNonEmpty(cfg.Target.BinderChain, "B")
	if len(cfg.Target.Chain) == 0 {
		cfg.Target.Chain = ChainList{"A"}
	}
	cfg.Ranking.Direction = firstNonEmpty(cfg.Ranking.Direction, "desc")
	if cfg.Ranking.SecondaryMetric != "" {
		cfg.Ranking.SecondaryDirection = firstNonEmpty(cfg.Ranking.SecondaryDirection, "desc")
	}
	if len(cfg.Optimizer.FitnessWeights) == 0 {
		cfg.Optimizer.FitnessWeights = map[string]float64{"interface_confidence": 1.0}
	}
	cfg.Optimizer.OmitAAs = strings.ToUpper(cfg.Optimizer.OmitAAs)
	return nil
}

// #endregion normalize

// #region validate
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and cross-field references.
// Every failure wraps binder.ErrConfiguration.
func Validate(cfg RunConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", binder.ErrConfiguration, err)
	}
	if len(cfg.FWLengths) != len(cfg.CDRLengths)+1 && len(cfg.FWLengths) != len(cfg.CDRLengths) {
		return binder.Configurationf("fw_lengths has %d entries, want %d or %d",
			len(cfg.FWLengths), len(cfg.CDRLengths), len(cfg.CDRLengths)+1)
	}
	for _, stage := range []struct {
		name string
		cfg  StageConfig
	}{{"initial", cfg.Filter.Initial}, {"final", cfg.Filter.Final}} {
		for metric, c := range stage.cfg {
			if err := c.check(); err != nil {
				return binder.Configurationf("filter.%s.%s: %v", stage.name, metric, err)
			}
		}
	}

	predicted := make(map[string]bool, len(cfg.Oracle.PredictorMetrics))
	for _, m := range cfg.Oracle.PredictorMetrics {
		predicted[m] = true
	}
	for metric := range cfg.Optimizer.FitnessWeights {
		if !predicted[metric] {
			return binder.Configurationf("fitness weight %q is not a predictor metric", metric)
		}
	}
	if cfg.Oracle.Mode == "grpc" && cfg.Oracle.PredictorAddr == "" {
		return binder.Configurationf("oracle.predictor_addr is required in grpc mode")
	}
	if cfg.Archive.Enabled && (cfg.Archive.Endpoint == "" || cfg.Archive.Bucket == "") {
		return binder.Configurationf("archive requires endpoint and bucket")
	}
	return nil
}

func (c CriterionConfig) check() error {
	if c.Operator == "range" {
		if c.Min == nil || c.Max == nil {
			return fmt.Errorf("range needs min and max")
		}
		if *c.Min > *c.Max {
			return fmt.Errorf("range min %v > max %v", *c.Min, *c.Max)
		}
		return nil
	}
	if c.Value == nil {
		return fmt.Errorf("operator %s needs a value", c.Operator)
	}
	return nil
}

// #endregion validate

// #region accessors
// ExperimentDir is project_dir/results_dir/experiment_name[/run_config].
func (c RunConfig) ExperimentDir() string {
	return filepath.Join(c.ProjectDir, c.ResultsDir, c.ExperimentName, c.RunConfig)
}

// MetricNames lists the metrics named by a stage in sorted order.
func (s StageConfig) MetricNames() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Marshal renders the config as YAML, omitting credentials.
func (c RunConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// #endregion accessors

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
