package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"rfpca/internal/common"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.NoiseRatio != 1.0 {
					t.Errorf("expected default NoiseRatio 1.0, got %f", settings.NoiseRatio)
				}
				if settings.TestFraction != 0.2 {
					t.Errorf("expected default TestFraction 0.2, got %f", settings.TestFraction)
				}
				if settings.NEstimators != 600 {
					t.Errorf("expected default NEstimators 600, got %d", settings.NEstimators)
				}
				if settings.MinLeafSize != 5 {
					t.Errorf("expected default MinLeafSize 5, got %d", settings.MinLeafSize)
				}
				if settings.MaxDepth > 0 {
					t.Errorf("expected unlimited depth by default, got %d", settings.MaxDepth)
				}
				if settings.Strategy != common.StrategyPermutation {
					t.Errorf("expected permutation strategy, got %s", settings.Strategy)
				}
				if settings.TopFeatures != 512 || settings.MaxComponents != 512 {
					t.Errorf("expected 512 features and components, got %d and %d", settings.TopFeatures, settings.MaxComponents)
				}
				if settings.VarianceTarget != 0.95 {
					t.Errorf("expected VarianceTarget 0.95, got %f", settings.VarianceTarget)
				}
				if settings.IDColumn != "track_id" {
					t.Errorf("expected IDColumn track_id, got %s", settings.IDColumn)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"INPUT_PATH":             "features.parquet",
				"NOISE_RATIO":            "2.5",
				"N_ESTIMATORS":           "100",
				"MAX_DEPTH":              "12",
				"IMPORTANCE_STRATEGY":    "Impurity",
				"PCA_SOLVER":             "randomized",
				"SEED":                   "18446744073709551615",
				"DROP_UNDEFINED_COLUMNS": "true",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.InputPath != "features.parquet" {
					t.Errorf("expected InputPath features.parquet, got %s", settings.InputPath)
				}
				if settings.NoiseRatio != 2.5 {
					t.Errorf("expected NoiseRatio 2.5, got %f", settings.NoiseRatio)
				}
				if settings.NEstimators != 100 || settings.MaxDepth != 12 {
					t.Errorf("expected 100 trees of depth 12, got %d and %d", settings.NEstimators, settings.MaxDepth)
				}
				if settings.Strategy != common.StrategyImpurity {
					t.Errorf("expected impurity strategy, got %s", settings.Strategy)
				}
				if settings.Solver != common.SolverRandomized {
					t.Errorf("expected randomized solver, got %s", settings.Solver)
				}
				if settings.Seed != 18446744073709551615 {
					t.Errorf("expected max uint64 seed, got %d", settings.Seed)
				}
				if !settings.DropUndefinedColumns {
					t.Error("expected DropUndefinedColumns to be true")
				}
			},
		},
		{
			name:    "unparsable values fall back",
			envVars: map[string]string{"N_ESTIMATORS": "many"},
			validate: func(t *testing.T, settings Settings) {
				if settings.NEstimators != 600 {
					t.Errorf("expected fallback NEstimators 600, got %d", settings.NEstimators)
				}
			},
		},
		{
			name:    "invalid noise ratio",
			envVars: map[string]string{"NOISE_RATIO": "0"},
			wantErr: true,
		},
		{
			name:    "invalid strategy",
			envVars: map[string]string{"IMPORTANCE_STRATEGY": "gain"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			settings, err := loadFromEnv()
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadFromEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
input:
  path: "tracks.csv"
  format: "csv"
  idColumn: "id"

contrast:
  noiseRatio: 0.5
  testFraction: 0.3

forest:
  nEstimators: 200
  minLeafSize: 2

importance:
  strategy: "impurity"

pca:
  topFeatures: 64
  maxComponents: 16
  varianceTarget: 0.9

system:
  seed: 42
  workers: 4
  storePath: "runs.db"
`,
			validate: func(t *testing.T, settings Settings) {
				if settings.InputPath != "tracks.csv" || settings.Format != common.FormatCSV {
					t.Errorf("expected tracks.csv as csv, got %s as %s", settings.InputPath, settings.Format)
				}
				if settings.IDColumn != "id" {
					t.Errorf("expected IDColumn id, got %s", settings.IDColumn)
				}
				if settings.NoiseRatio != 0.5 || settings.TestFraction != 0.3 {
					t.Errorf("unexpected contrast settings %f, %f", settings.NoiseRatio, settings.TestFraction)
				}
				if settings.NEstimators != 200 || settings.MinLeafSize != 2 {
					t.Errorf("unexpected forest settings %d, %d", settings.NEstimators, settings.MinLeafSize)
				}
				if settings.TopFeatures != 64 || settings.MaxComponents != 16 {
					t.Errorf("unexpected pca settings %d, %d", settings.TopFeatures, settings.MaxComponents)
				}
				if settings.Seed != 42 || settings.Workers != 4 {
					t.Errorf("unexpected system settings %d, %d", settings.Seed, settings.Workers)
				}
				if settings.StorePath != "runs.db" {
					t.Errorf("expected StorePath runs.db, got %s", settings.StorePath)
				}
			},
		},
		{
			name: "missing sections keep defaults",
			yamlContent: `
input:
  path: "tracks.parquet"
`,
			validate: func(t *testing.T, settings Settings) {
				if settings.NEstimators != 600 {
					t.Errorf("expected default NEstimators 600, got %d", settings.NEstimators)
				}
				if settings.MaxDepth != -1 {
					t.Errorf("expected default MaxDepth -1, got %d", settings.MaxDepth)
				}
				if settings.Solver != common.SolverEigen {
					t.Errorf("expected eigen solver, got %s", settings.Solver)
				}
			},
		},
		{
			name: "env overrides YAML",
			yamlContent: `
forest:
  nEstimators: 200
`,
			envOverrides: map[string]string{"N_ESTIMATORS": "50"},
			validate: func(t *testing.T, settings Settings) {
				if settings.NEstimators != 50 {
					t.Errorf("expected env NEstimators 50, got %d", settings.NEstimators)
				}
			},
		},
		{
			name: "invalid test fraction",
			yamlContent: `
contrast:
  testFraction: 0.95
`,
			wantErr: true,
		},
		{
			name:        "invalid YAML",
			yamlContent: "input: [unclosed",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yamlContent), 0o600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			for k, v := range tt.envOverrides {
				t.Setenv(k, v)
			}

			settings, err := loadFromYAML(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadFromYAML() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("load from env when no config file", func(t *testing.T) {
		t.Setenv(common.EnvConfigFile, "")
		t.Setenv("INPUT_PATH", "env.csv")

		settings, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if settings.InputPath != "env.csv" {
			t.Errorf("expected InputPath env.csv, got %s", settings.InputPath)
		}
	})

	t.Run("load from YAML when config file specified", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("input:\n  path: yaml.csv\n"), 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		t.Setenv(common.EnvConfigFile, path)

		settings, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if settings.InputPath != "yaml.csv" {
			t.Errorf("expected InputPath yaml.csv, got %s", settings.InputPath)
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		t.Setenv(common.EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))
		if _, err := Load(); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestValidateMatrix(t *testing.T) {
	settings := Defaults()
	if err := settings.ValidateMatrix(); err == nil {
		t.Error("expected error without database URL")
	}

	settings.DatabaseURL = "postgres://localhost/tracks"
	if err := settings.ValidateMatrix(); err != nil {
		t.Errorf("expected valid matrix settings, got %v", err)
	}
}
