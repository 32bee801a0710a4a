package pca

import (
	"fmt"

	"rfpca/internal/common"
)

// BrokenStickNull returns the expected share of the i-th largest piece when
// a unit stick is broken at p-1 uniform points: E[i] = (1/p) * sum_{j=i}^{p} 1/j.
// The tail sums are accumulated from the smallest term up.
func BrokenStickNull(p int) []float64 {
	if p <= 0 {
		return nil
	}
	out := make([]float64, p)
	tail := 0.0
	for i := p; i >= 1; i-- {
		tail += 1 / float64(i)
		out[i-1] = tail / float64(p)
	}
	return out
}

// Thresholds holds both retained-component candidates. Neither is preferred.
type Thresholds struct {
	VarianceTarget float64 `json:"variance_target"`
	// CumulativeCount is the smallest k whose cumulative explained variance
	// reaches VarianceTarget, capped at the number of retained components.
	CumulativeCount int  `json:"cumulative_count"`
	TargetReached   bool `json:"target_reached"`
	// BelowNull lists the 1-based ranks whose explained-variance ratio is
	// below the broken-stick expectation.
	BelowNull []int `json:"below_null_ranks"`
	// FirstBelowNull is 0 when every component beats the null.
	FirstBelowNull int `json:"first_below_null"`
}

// SignificantComponentCount evaluates both thresholds on prof.
func SignificantComponentCount(prof *SpectralProfile, target float64) (Thresholds, error) {
	if prof.NumComponents() == 0 {
		return Thresholds{}, fmt.Errorf("significant components: empty profile: %w", common.ErrDataFormat)
	}
	if !(target > 0 && target <= 1) {
		return Thresholds{}, fmt.Errorf("significant components: variance target %v outside (0, 1]: %w", target, common.ErrDataFormat)
	}

	th := Thresholds{VarianceTarget: target, CumulativeCount: prof.NumComponents(), BelowNull: []int{}}
	for i, c := range prof.Cumulative {
		if c >= target {
			th.CumulativeCount = i + 1
			th.TargetReached = true
			break
		}
	}
	for i, r := range prof.Ratios {
		if r < prof.BrokenStick[i] {
			th.BelowNull = append(th.BelowNull, i+1)
		}
	}
	if len(th.BelowNull) > 0 {
		th.FirstBelowNull = th.BelowNull[0]
	}
	return th, nil
}
