package ml

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"rfpca/internal/common"
)

// AUC returns the area under the ROC curve of scores against binary labels,
// computed as the normalised Mann-Whitney U statistic. Tied scores share
// their average rank, so a constant score yields exactly 0.5.
func AUC(labels []int, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("auc: %d labels vs %d scores: %w", len(labels), len(scores), common.ErrDataFormat)
	}

	order := make([]int, len(scores))
	var nPos, nNeg float64
	for i, s := range scores {
		if math.IsNaN(s) {
			return 0, fmt.Errorf("auc: score %d is NaN: %w", i, common.ErrNumeric)
		}
		switch labels[i] {
		case 1:
			nPos++
		case 0:
			nNeg++
		default:
			return 0, fmt.Errorf("auc: label %d at %d is not binary: %w", labels[i], i, common.ErrDataFormat)
		}
		order[i] = i
	}
	if nPos == 0 || nNeg == 0 {
		return 0, fmt.Errorf("auc: need both classes (pos=%v, neg=%v): %w", nPos, nNeg, common.ErrNumeric)
	}

	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[a], scores[b])
	})

	rankSum := 0.0
	for lo := 0; lo < len(order); {
		hi := lo + 1
		for hi < len(order) && scores[order[hi]] == scores[order[lo]] {
			hi++
		}
		// ranks are 1-based; the tie group spans lo+1..hi
		avg := float64(lo+1+hi) / 2
		for _, i := range order[lo:hi] {
			if labels[i] == 1 {
				rankSum += avg
			}
		}
		lo = hi
	}

	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}
