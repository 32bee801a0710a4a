package cfg

import (
	"strings"
	"testing"
)

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := Defaults()

	if err := validateSettings(&settings); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Ranges(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"unknown format", func(s *Settings) { s.Format = "orc" }, "input format"},
		{"empty id column", func(s *Settings) { s.IDColumn = "" }, "identifier column"},
		{"zero noise ratio", func(s *Settings) { s.NoiseRatio = 0 }, "noise ratio"},
		{"huge noise ratio", func(s *Settings) { s.NoiseRatio = 11 }, "noise ratio"},
		{"tiny test fraction", func(s *Settings) { s.TestFraction = 0.001 }, "test fraction"},
		{"large test fraction", func(s *Settings) { s.TestFraction = 0.95 }, "test fraction"},
		{"no trees", func(s *Settings) { s.NEstimators = 0 }, "estimators"},
		{"too many trees", func(s *Settings) { s.NEstimators = 10001 }, "estimators"},
		{"zero leaf", func(s *Settings) { s.MinLeafSize = 0 }, "leaf size"},
		{"unknown strategy", func(s *Settings) { s.Strategy = "shap" }, "importance strategy"},
		{"no repeats", func(s *Settings) { s.NRepeats = 0 }, "repeats"},
		{"negative top report", func(s *Settings) { s.TopReport = -1 }, "top report"},
		{"no top features", func(s *Settings) { s.TopFeatures = 0 }, "top features"},
		{"no components", func(s *Settings) { s.MaxComponents = 0 }, "components"},
		{"low variance target", func(s *Settings) { s.VarianceTarget = 0.3 }, "variance target"},
		{"high variance target", func(s *Settings) { s.VarianceTarget = 1.2 }, "variance target"},
		{"unknown solver", func(s *Settings) { s.Solver = "lanczos" }, "solver"},
		{"negative workers", func(s *Settings) { s.Workers = -2 }, "workers"},
		{"empty output", func(s *Settings) { s.OutputPath = "" }, "output path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := Defaults()
			tt.mutate(&settings)

			err := validateSettings(&settings)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateSettings_Boundaries(t *testing.T) {
	settings := Defaults()
	settings.NoiseRatio = 10
	settings.TestFraction = 0.9
	settings.VarianceTarget = 1
	settings.MaxDepth = 0
	settings.MaxFeatures = 0

	if err := validateSettings(&settings); err != nil {
		t.Errorf("Expected boundary values to pass, got error: %v", err)
	}
}

func TestValidate_WrapsMessage(t *testing.T) {
	settings := Defaults()
	settings.Solver = "lanczos"

	err := Validate(&settings)
	if err == nil {
		t.Fatal("Expected error for unknown solver")
	}
	if !strings.HasPrefix(err.Error(), "configuration validation failed") {
		t.Errorf("Unexpected message: %v", err)
	}
}
