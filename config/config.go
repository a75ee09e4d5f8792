// Package config holds the YAML configuration shared by the churnscope
// commands: where the training data comes from, its column schema, the
// classifier and explainer settings, and the artifact store location.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/churnscope/dataset"
	"github.com/YuminosukeSato/churnscope/explain"
	"github.com/YuminosukeSato/churnscope/pipeline"
	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
)

// Environment overrides applied after the file is read.
const (
	EnvStorageRoot = "CHURNSCOPE_STORAGE_ROOT"
	EnvLogLevel    = "CHURNSCOPE_LOG_LEVEL"
)

// Config is the root configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Schema    []ColumnConfig  `yaml:"schema"`
	Training  TrainingConfig  `yaml:"training"`
	Explainer ExplainerConfig `yaml:"explainer"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig selects the training table. Exactly one of CSV or Query is used.
type SourceConfig struct {
	CSV string `yaml:"csv"`

	Driver string `yaml:"driver"` // database/sql driver name, "sqlite" by default
	DSN    string `yaml:"dsn"`
	Query  string `yaml:"query"`

	ID       string `yaml:"id"`       // identifier column, excluded from features
	Label    string `yaml:"label"`    // label column
	Positive string `yaml:"positive"` // label value meaning churn

	// Recode lists 1/0 columns rewritten to Yes/No before encoding.
	Recode []string `yaml:"recode"`
}

// ColumnConfig is one feature column.
type ColumnConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // categorical, numeric
}

// TrainingConfig controls the split and the pipeline.
type TrainingConfig struct {
	ModelName    string  `yaml:"model_name"`
	TestFraction float64 `yaml:"test_fraction"`
	Seed         int64   `yaml:"seed"`

	Classifier  string    `yaml:"classifier"` // logistic_cv, logistic, random_forest
	Scaler      string    `yaml:"scaler"`     // standard, minmax, none
	Folds       int       `yaml:"folds"`
	Cs          []float64 `yaml:"cs"`
	C           float64   `yaml:"c"`
	MaxIter     int       `yaml:"max_iter"`
	ClassWeight string    `yaml:"class_weight"` // none, balanced

	NEstimators    int `yaml:"n_estimators"`
	MaxDepth       int `yaml:"max_depth"`
	MinSamplesLeaf int `yaml:"min_samples_leaf"`
}

// ExplainerConfig controls LIME sampling.
type ExplainerConfig struct {
	NumSamples  int     `yaml:"num_samples"`
	KernelWidth float64 `yaml:"kernel_width"` // 0 = 0.75·sqrt(features)
	Alpha       float64 `yaml:"alpha"`
	NumFeatures int     `yaml:"num_features"`
}

// StorageConfig locates the artifact store.
type StorageConfig struct {
	Root      string `yaml:"root"`
	CacheSize int    `yaml:"cache_size"`
}

// LoggingConfig configures pkg/log.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// telcoSchema is the feature set of the public telco churn data.
var telcoSchema = []ColumnConfig{
	{"gender", "categorical"},
	{"SeniorCitizen", "categorical"},
	{"Partner", "categorical"},
	{"Dependents", "categorical"},
	{"tenure", "numeric"},
	{"PhoneService", "categorical"},
	{"MultipleLines", "categorical"},
	{"InternetService", "categorical"},
	{"OnlineSecurity", "categorical"},
	{"OnlineBackup", "categorical"},
	{"DeviceProtection", "categorical"},
	{"TechSupport", "categorical"},
	{"StreamingTV", "categorical"},
	{"StreamingMovies", "categorical"},
	{"Contract", "categorical"},
	{"PaperlessBilling", "categorical"},
	{"PaymentMethod", "categorical"},
	{"MonthlyCharges", "numeric"},
	{"TotalCharges", "numeric"},
}

// Default returns the configuration for the telco churn CSV.
func Default() *Config {
	p := pipeline.DefaultOptions()
	return &Config{
		Source: SourceConfig{
			CSV:      "WA_Fn-UseC_-Telco-Customer-Churn.csv",
			Driver:   "sqlite",
			ID:       "customerID",
			Label:    "Churn",
			Positive: "Yes",
			Recode:   []string{"SeniorCitizen"},
		},
		Schema: append([]ColumnConfig(nil), telcoSchema...),
		Training: TrainingConfig{
			ModelName:      "churn",
			TestFraction:   0.2,
			Seed:           42,
			Classifier:     p.Classifier,
			Scaler:         p.Scaler,
			Folds:          p.Folds,
			C:              p.C,
			MaxIter:        p.MaxIter,
			ClassWeight:    p.ClassWeight,
			NEstimators:    p.NEstimators,
			MaxDepth:       p.MaxDepth,
			MinSamplesLeaf: p.MinSamplesLeaf,
		},
		Explainer: ExplainerConfig{
			NumSamples:  5000,
			Alpha:       1,
			NumFeatures: 10,
		},
		Storage: StorageConfig{
			Root:      "models",
			CacheSize: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied in both cases; the result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err):
		log.GetLoggerWithName("config").Debug("Config file not found, using defaults", log.SourceKey, path)
	default:
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes c as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if root := os.Getenv(EnvStorageRoot); root != "" {
		c.Storage.Root = root
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
}

// Validate reports the first invalid setting as a ConfigurationError.
func (c *Config) Validate() error {
	if c.Source.CSV == "" && c.Source.Query == "" {
		return errors.NewConfigurationError("source", "one of csv or query is required")
	}
	if c.Source.Query != "" && c.Source.DSN == "" {
		return errors.NewConfigurationError("source.dsn", "required with source.query")
	}
	if c.Source.Label == "" {
		return errors.NewConfigurationError("source.label", "must not be empty")
	}
	if c.Source.Positive == "" {
		return errors.NewConfigurationError("source.positive", "must not be empty")
	}

	schema, err := c.DatasetSchema()
	if err != nil {
		return err
	}
	for _, col := range schema {
		if col.Name == c.Source.Label || col.Name == c.Source.ID {
			return errors.NewConfigurationError("schema",
				fmt.Sprintf("column %q is the label or identifier and cannot be a feature", col.Name))
		}
	}

	t := c.Training
	if t.ModelName == "" {
		return errors.NewConfigurationError("training.model_name", "must not be empty")
	}
	if t.TestFraction <= 0 || t.TestFraction >= 1 {
		return errors.NewConfigurationError("training.test_fraction",
			fmt.Sprintf("must be in (0, 1), got %v", t.TestFraction))
	}
	if _, err := pipeline.New(make([]int, len(schema)), c.PipelineOptions()); err != nil {
		return err
	}
	switch t.ClassWeight {
	case "", "none", "balanced":
	default:
		return errors.NewConfigurationError("training.class_weight", fmt.Sprintf("unknown class weight %q", t.ClassWeight))
	}

	if c.Explainer.NumSamples < 0 || c.Explainer.KernelWidth < 0 || c.Explainer.Alpha < 0 {
		return errors.NewConfigurationError("explainer", "num_samples, kernel_width and alpha must not be negative")
	}
	if c.Storage.Root == "" {
		return errors.NewConfigurationError("storage.root", "must not be empty")
	}
	if c.Storage.CacheSize <= 0 {
		return errors.NewConfigurationError("storage.cache_size", "must be positive")
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// DatasetSchema converts the schema section.
func (c *Config) DatasetSchema() (dataset.Schema, error) {
	schema := make(dataset.Schema, len(c.Schema))
	for i, col := range c.Schema {
		kind, err := dataset.ParseKind(col.Kind)
		if err != nil {
			return nil, err
		}
		schema[i] = dataset.Column{Name: col.Name, Kind: kind}
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// PipelineOptions converts the training section.
func (c *Config) PipelineOptions() pipeline.Options {
	t := c.Training
	return pipeline.Options{
		Classifier:     t.Classifier,
		Scaler:         t.Scaler,
		Folds:          t.Folds,
		Cs:             t.Cs,
		C:              t.C,
		MaxIter:        t.MaxIter,
		ClassWeight:    t.ClassWeight,
		NEstimators:    t.NEstimators,
		MaxDepth:       t.MaxDepth,
		MinSamplesLeaf: t.MinSamplesLeaf,
		RandomState:    t.Seed,
	}
}

// ExplainerOptions converts the explainer section.
func (c *Config) ExplainerOptions() []explain.Option {
	opts := []explain.Option{explain.WithRandomState(c.Training.Seed)}
	if c.Explainer.NumSamples > 0 {
		opts = append(opts, explain.WithNumSamples(c.Explainer.NumSamples))
	}
	if c.Explainer.KernelWidth > 0 {
		opts = append(opts, explain.WithKernelWidth(c.Explainer.KernelWidth))
	}
	if c.Explainer.Alpha > 0 {
		opts = append(opts, explain.WithAlpha(c.Explainer.Alpha))
	}
	return opts
}
