// Package cfg loads pipeline settings from an optional YAML file named by
// CONFIG_FILE, with environment variables taking precedence over file
// values, and validates the result.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"rfpca/internal/common"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	InputPath            string
	Format               string
	IDColumn             string
	DropUndefinedColumns bool

	NoiseRatio   float64
	TestFraction float64

	NEstimators int
	MaxDepth    int // <= 0: unlimited
	MinLeafSize int
	MaxFeatures int // <= 0: sqrt(features)

	Strategy  string
	NRepeats  int
	TopReport int

	TopFeatures    int
	MaxComponents  int
	VarianceTarget float64
	Solver         string
	Embed          bool // include the real-row projection in the report

	Seed        uint64
	Workers     int // <= 0: GOMAXPROCS
	OutputPath  string
	StorePath   string // empty: runs are not persisted
	MetricsFile string // empty: metrics are not written
	LogLevel    string

	// Feature matrix builder
	DatabaseDriver string
	DatabaseURL    string
	RawRoot        string
	PayloadPrefix  string
}

type ConfigFile struct {
	Input struct {
		Path                 string `yaml:"path"`
		Format               string `yaml:"format"`
		IDColumn             string `yaml:"idColumn"`
		DropUndefinedColumns bool   `yaml:"dropUndefinedColumns"`
	} `yaml:"input"`

	Contrast struct {
		NoiseRatio   float64 `yaml:"noiseRatio"`
		TestFraction float64 `yaml:"testFraction"`
	} `yaml:"contrast"`

	Forest struct {
		NEstimators int `yaml:"nEstimators"`
		MaxDepth    int `yaml:"maxDepth"`
		MinLeafSize int `yaml:"minLeafSize"`
		MaxFeatures int `yaml:"maxFeatures"`
	} `yaml:"forest"`

	Importance struct {
		Strategy  string `yaml:"strategy"`
		NRepeats  int    `yaml:"nRepeats"`
		TopReport int    `yaml:"topReport"`
	} `yaml:"importance"`

	PCA struct {
		TopFeatures    int     `yaml:"topFeatures"`
		MaxComponents  int     `yaml:"maxComponents"`
		VarianceTarget float64 `yaml:"varianceTarget"`
		Solver         string  `yaml:"solver"`
		Embed          bool    `yaml:"embed"`
	} `yaml:"pca"`

	System struct {
		Seed        uint64 `yaml:"seed"`
		Workers     int    `yaml:"workers"`
		OutputPath  string `yaml:"outputPath"`
		StorePath   string `yaml:"storePath"`
		MetricsFile string `yaml:"metricsFile"`
		LogLevel    string `yaml:"logLevel"`
	} `yaml:"system"`

	Matrix struct {
		DatabaseDriver string `yaml:"databaseDriver"`
		DatabaseURL    string `yaml:"databaseURL"`
		RawRoot        string `yaml:"rawRoot"`
		PayloadPrefix  string `yaml:"payloadPrefix"`
	} `yaml:"matrix"`
}

// Defaults returns the settings used when neither file nor environment
// says otherwise.
func Defaults() Settings {
	return Settings{
		Format:         common.FormatAuto,
		IDColumn:       common.DefaultIDColumn,
		NoiseRatio:     common.DefaultNoiseRatio,
		TestFraction:   common.DefaultTestFraction,
		NEstimators:    common.DefaultNEstimators,
		MaxDepth:       common.DefaultMaxDepth,
		MinLeafSize:    common.DefaultMinLeafSize,
		MaxFeatures:    common.DefaultMaxFeatures,
		Strategy:       common.StrategyPermutation,
		NRepeats:       common.DefaultNRepeats,
		TopReport:      common.DefaultTopReport,
		TopFeatures:    common.DefaultTopFeatures,
		MaxComponents:  common.DefaultMaxComponents,
		VarianceTarget: common.DefaultVarianceTarget,
		Solver:         common.SolverEigen,
		Seed:           common.DefaultSeed,
		OutputPath:     common.DefaultOutputPath,
		LogLevel:       "info",
		DatabaseDriver: common.DefaultDatabaseDriver,
		PayloadPrefix:  common.DefaultPayloadPrefix,
	}
}

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// fields missing from the file keep their defaults
	config := toConfigFile(Defaults())
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := fromConfigFile(config)
	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Defaults()
	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// applyEnv overrides s with every environment variable that is set and
// parses. Unparsable values are ignored.
func applyEnv(s *Settings) {
	s.InputPath = getEnvOrDefault(common.EnvInputPath, s.InputPath)
	s.Format = strings.ToLower(getEnvOrDefault(common.EnvInputFormat, s.Format))
	s.IDColumn = getEnvOrDefault(common.EnvIDColumn, s.IDColumn)
	s.DropUndefinedColumns = getBoolOrDefault(common.EnvDropUndefinedColumns, s.DropUndefinedColumns)

	s.NoiseRatio = getFloatOrDefault(common.EnvNoiseRatio, s.NoiseRatio)
	s.TestFraction = getFloatOrDefault(common.EnvTestFraction, s.TestFraction)

	s.NEstimators = getIntOrDefault(common.EnvNEstimators, s.NEstimators)
	s.MaxDepth = getIntOrDefault(common.EnvMaxDepth, s.MaxDepth)
	s.MinLeafSize = getIntOrDefault(common.EnvMinLeafSize, s.MinLeafSize)
	s.MaxFeatures = getIntOrDefault(common.EnvMaxFeatures, s.MaxFeatures)

	s.Strategy = strings.ToLower(getEnvOrDefault(common.EnvImportanceStrategy, s.Strategy))
	s.NRepeats = getIntOrDefault(common.EnvNRepeats, s.NRepeats)
	s.TopReport = getIntOrDefault(common.EnvTopReport, s.TopReport)

	s.TopFeatures = getIntOrDefault(common.EnvTopFeatures, s.TopFeatures)
	s.MaxComponents = getIntOrDefault(common.EnvMaxComponents, s.MaxComponents)
	s.VarianceTarget = getFloatOrDefault(common.EnvVarianceTarget, s.VarianceTarget)
	s.Solver = strings.ToLower(getEnvOrDefault(common.EnvSolver, s.Solver))
	s.Embed = getBoolOrDefault(common.EnvEmbed, s.Embed)

	s.Seed = getUintOrDefault(common.EnvSeed, s.Seed)
	s.Workers = getIntOrDefault(common.EnvWorkers, s.Workers)
	s.OutputPath = getEnvOrDefault(common.EnvOutputPath, s.OutputPath)
	s.StorePath = getEnvOrDefault(common.EnvStorePath, s.StorePath)
	s.MetricsFile = getEnvOrDefault(common.EnvMetricsFile, s.MetricsFile)
	s.LogLevel = getEnvOrDefault(common.EnvLogLevel, s.LogLevel)

	s.DatabaseDriver = getEnvOrDefault(common.EnvDatabaseDriver, s.DatabaseDriver)
	s.DatabaseURL = getEnvOrDefault(common.EnvDatabaseURL, s.DatabaseURL)
	s.RawRoot = getEnvOrDefault(common.EnvRawRoot, s.RawRoot)
	s.PayloadPrefix = getEnvOrDefault(common.EnvPayloadPrefix, s.PayloadPrefix)
}

func toConfigFile(s Settings) ConfigFile {
	var c ConfigFile
	c.Input.Path = s.InputPath
	c.Input.Format = s.Format
	c.Input.IDColumn = s.IDColumn
	c.Input.DropUndefinedColumns = s.DropUndefinedColumns
	c.Contrast.NoiseRatio = s.NoiseRatio
	c.Contrast.TestFraction = s.TestFraction
	c.Forest.NEstimators = s.NEstimators
	c.Forest.MaxDepth = s.MaxDepth
	c.Forest.MinLeafSize = s.MinLeafSize
	c.Forest.MaxFeatures = s.MaxFeatures
	c.Importance.Strategy = s.Strategy
	c.Importance.NRepeats = s.NRepeats
	c.Importance.TopReport = s.TopReport
	c.PCA.TopFeatures = s.TopFeatures
	c.PCA.MaxComponents = s.MaxComponents
	c.PCA.VarianceTarget = s.VarianceTarget
	c.PCA.Solver = s.Solver
	c.PCA.Embed = s.Embed
	c.System.Seed = s.Seed
	c.System.Workers = s.Workers
	c.System.OutputPath = s.OutputPath
	c.System.StorePath = s.StorePath
	c.System.MetricsFile = s.MetricsFile
	c.System.LogLevel = s.LogLevel
	c.Matrix.DatabaseDriver = s.DatabaseDriver
	c.Matrix.DatabaseURL = s.DatabaseURL
	c.Matrix.RawRoot = s.RawRoot
	c.Matrix.PayloadPrefix = s.PayloadPrefix
	return c
}

func fromConfigFile(c ConfigFile) Settings {
	return Settings{
		InputPath:            c.Input.Path,
		Format:               strings.ToLower(c.Input.Format),
		IDColumn:             c.Input.IDColumn,
		DropUndefinedColumns: c.Input.DropUndefinedColumns,
		NoiseRatio:           c.Contrast.NoiseRatio,
		TestFraction:         c.Contrast.TestFraction,
		NEstimators:          c.Forest.NEstimators,
		MaxDepth:             c.Forest.MaxDepth,
		MinLeafSize:          c.Forest.MinLeafSize,
		MaxFeatures:          c.Forest.MaxFeatures,
		Strategy:             strings.ToLower(c.Importance.Strategy),
		NRepeats:             c.Importance.NRepeats,
		TopReport:            c.Importance.TopReport,
		TopFeatures:          c.PCA.TopFeatures,
		MaxComponents:        c.PCA.MaxComponents,
		VarianceTarget:       c.PCA.VarianceTarget,
		Solver:               strings.ToLower(c.PCA.Solver),
		Embed:                c.PCA.Embed,
		Seed:                 c.System.Seed,
		Workers:              c.System.Workers,
		OutputPath:           c.System.OutputPath,
		StorePath:            c.System.StorePath,
		MetricsFile:          c.System.MetricsFile,
		LogLevel:             c.System.LogLevel,
		DatabaseDriver:       c.Matrix.DatabaseDriver,
		DatabaseURL:          c.Matrix.DatabaseURL,
		RawRoot:              c.Matrix.RawRoot,
		PayloadPrefix:        c.Matrix.PayloadPrefix,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUintOrDefault(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// validateSettings performs range checks on every pipeline option
func validateSettings(settings *Settings) error {
	// Validate input
	switch settings.Format {
	case common.FormatAuto, common.FormatCSV, common.FormatJSON, common.FormatXLSX,
		common.FormatParquet, common.FormatBoltDB:
	default:
		return fmt.Errorf("unknown input format %q", settings.Format)
	}
	if settings.IDColumn == "" {
		return fmt.Errorf("identifier column cannot be empty")
	}

	// Validate dataset construction
	if settings.NoiseRatio <= 0 || settings.NoiseRatio > common.MaxNoiseRatio {
		return fmt.Errorf("noise ratio must be between 0 and %.0f, got %f", common.MaxNoiseRatio, settings.NoiseRatio)
	}
	if settings.TestFraction < common.MinTestFraction || settings.TestFraction > common.MaxTestFraction {
		return fmt.Errorf("test fraction must be between %.2f and %.2f, got %f",
			common.MinTestFraction, common.MaxTestFraction, settings.TestFraction)
	}

	// Validate forest
	if settings.NEstimators <= 0 || settings.NEstimators > common.MaxNEstimators {
		return fmt.Errorf("number of estimators must be between 1 and %d, got %d", common.MaxNEstimators, settings.NEstimators)
	}
	if settings.MinLeafSize <= 0 {
		return fmt.Errorf("minimum leaf size must be positive, got %d", settings.MinLeafSize)
	}

	// Validate importance
	switch settings.Strategy {
	case common.StrategyPermutation, common.StrategyImpurity:
	default:
		return fmt.Errorf("importance strategy must be %q or %q, got %q",
			common.StrategyPermutation, common.StrategyImpurity, settings.Strategy)
	}
	if settings.NRepeats <= 0 || settings.NRepeats > common.MaxNRepeats {
		return fmt.Errorf("number of repeats must be between 1 and %d, got %d", common.MaxNRepeats, settings.NRepeats)
	}
	if settings.TopReport < 0 {
		return fmt.Errorf("top report size cannot be negative, got %d", settings.TopReport)
	}

	// Validate decomposition
	if settings.TopFeatures <= 0 || settings.TopFeatures > common.MaxTopFeatures {
		return fmt.Errorf("top features must be between 1 and %d, got %d", common.MaxTopFeatures, settings.TopFeatures)
	}
	if settings.MaxComponents <= 0 {
		return fmt.Errorf("max components must be positive, got %d", settings.MaxComponents)
	}
	if settings.VarianceTarget < common.MinVarianceRatio || settings.VarianceTarget > 1 {
		return fmt.Errorf("variance target must be between %.1f and 1, got %f", common.MinVarianceRatio, settings.VarianceTarget)
	}
	switch settings.Solver {
	case common.SolverEigen, common.SolverRandomized:
	default:
		return fmt.Errorf("solver must be %q or %q, got %q", common.SolverEigen, common.SolverRandomized, settings.Solver)
	}

	// Validate system
	if settings.Workers < 0 || settings.Workers > common.MaxWorkers {
		return fmt.Errorf("workers must be between 0 and %d, got %d", common.MaxWorkers, settings.Workers)
	}
	if settings.OutputPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}

	return nil
}

// Validate re-checks settings after command line overrides.
func Validate(settings *Settings) error {
	if err := validateSettings(settings); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// ValidateMatrix checks the settings the feature matrix builder needs on
// top of the pipeline settings.
func (s *Settings) ValidateMatrix() error {
	if s.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if s.DatabaseDriver == "" {
		return fmt.Errorf("database driver cannot be empty")
	}
	if s.PayloadPrefix == "" {
		return fmt.Errorf("payload prefix cannot be empty")
	}
	return nil
}
