package common

import "time"

// Environment variable keys
const (
	EnvConfigFile           = "CONFIG_FILE"
	EnvInputPath            = "INPUT_PATH"
	EnvInputFormat          = "INPUT_FORMAT"
	EnvIDColumn             = "ID_COLUMN"
	EnvNoiseRatio           = "NOISE_RATIO"
	EnvTestFraction         = "TEST_FRACTION"
	EnvNEstimators          = "N_ESTIMATORS"
	EnvMaxDepth             = "MAX_DEPTH"
	EnvMinLeafSize          = "MIN_LEAF_SIZE"
	EnvMaxFeatures          = "MAX_FEATURES"
	EnvImportanceStrategy   = "IMPORTANCE_STRATEGY"
	EnvNRepeats             = "N_REPEATS"
	EnvTopFeatures          = "TOP_FEATURES"
	EnvMaxComponents        = "MAX_COMPONENTS"
	EnvVarianceTarget       = "VARIANCE_TARGET"
	EnvSolver               = "PCA_SOLVER"
	EnvEmbed                = "PCA_EMBED"
	EnvSeed                 = "SEED"
	EnvWorkers              = "WORKERS"
	EnvOutputPath           = "OUTPUT_PATH"
	EnvStorePath            = "STORE_PATH"
	EnvMetricsFile          = "METRICS_FILE"
	EnvTopReport            = "TOP_REPORT"
	EnvDropUndefinedColumns = "DROP_UNDEFINED_COLUMNS"
	EnvDatabaseDriver       = "DATABASE_DRIVER"
	EnvDatabaseURL          = "DATABASE_URL"
	EnvRawRoot              = "RAW_ROOT"
	EnvPayloadPrefix        = "PAYLOAD_PREFIX"
	EnvLogLevel             = "LOG_LEVEL"
)

// Importance strategies
const (
	StrategyPermutation = "permutation"
	StrategyImpurity    = "impurity"
)

// Decomposition solvers
const (
	SolverEigen      = "eigen"
	SolverRandomized = "randomized"
)

// Input formats
const (
	FormatAuto    = "auto"
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatXLSX    = "xlsx"
	FormatParquet = "parquet"
	FormatBoltDB  = "boltdb"
)

// Configuration defaults
const (
	DefaultIDColumn       = "track_id"
	DefaultNoiseRatio     = 1.0
	DefaultTestFraction   = 0.2
	DefaultNEstimators    = 600
	DefaultMaxDepth       = -1 // unlimited
	DefaultMinLeafSize    = 5
	DefaultMaxFeatures    = -1 // sqrt(features)
	DefaultNRepeats       = 5
	DefaultTopFeatures    = 512
	DefaultMaxComponents  = 512
	DefaultVarianceTarget = 0.95
	DefaultSeed           = 0
	DefaultTopReport      = 30
	DefaultOutputPath     = "out"
	DefaultDatabaseDriver = "postgres"
	DefaultPayloadPrefix  = "spotify"
	DefaultTableName      = "features"
	DefaultFetchTimeout   = 5 * time.Minute
)

// Validation constants
const (
	MaxNoiseRatio    = 10.0
	MinTestFraction  = 0.01
	MaxTestFraction  = 0.9
	MaxNEstimators   = 10000
	MaxNRepeats      = 1000
	MaxTopFeatures   = 100000
	MinVarianceRatio = 0.5
	MaxWorkers       = 1024
)
