package contrast

import (
	"fmt"
	"strings"

	"rfpca/internal/common"
	"rfpca/internal/rng"
	"rfpca/internal/table"

	"github.com/rs/zerolog/log"
)

// Options configures Build.
type Options struct {
	TestFraction float64
	NoiseRatio   float64
	// DropUndefined removes columns whose training median is undefined
	// instead of failing the build.
	DropUndefined bool
}

// Result is the output of the dataset builder. Partition holds the imputed
// real rows; Train and Test are the contrastive datasets derived from them.
type Result struct {
	Partition  Partition
	Imputation Imputation
	Dropped    []string
	Train      *Dataset
	Test       *Dataset
}

// Build runs SplitPartition, ImputePartition and AugmentPartition in that
// order on one stream. Callers that time each step call the three directly
// with the same stream and get the same result.
func Build(t *table.Table, opts Options, stream rng.Stream) (*Result, error) {
	part, err := SplitPartition(t, opts.TestFraction, stream)
	if err != nil {
		return nil, err
	}

	imputed, im, dropped, err := ImputePartition(part, opts.DropUndefined)
	if err != nil {
		return nil, err
	}

	trainSet, testSet, err := AugmentPartition(imputed, opts.NoiseRatio, stream)
	if err != nil {
		return nil, err
	}

	return &Result{
		Partition:  imputed,
		Imputation: im,
		Dropped:    dropped,
		Train:      trainSet,
		Test:       testSet,
	}, nil
}

// SplitPartition splits t with stream.Derive("split").
func SplitPartition(t *table.Table, testFraction float64, stream rng.Stream) (Partition, error) {
	return Split(t, testFraction, stream.Derive("split"))
}

// ImputePartition fills both halves of part with the training medians.
// Columns with no observed training value fail with ErrNumeric unless
// dropUndefined is set, in which case they are removed from both halves
// and returned.
func ImputePartition(part Partition, dropUndefined bool) (Partition, Imputation, []string, error) {
	train, test, im, err := Impute(part.Train, part.Test)
	if err != nil {
		return Partition{}, Imputation{}, nil, err
	}

	var dropped []string
	if len(im.Undefined) > 0 {
		if !dropUndefined {
			return Partition{}, Imputation{}, nil, fmt.Errorf("columns with no observed training value: %s: %w",
				strings.Join(im.Undefined, ", "), common.ErrNumeric)
		}
		dropped = im.Undefined
		log.Warn().Strs("columns", dropped).Msg("Dropping columns with undefined training median")

		train = train.Drop(dropped)
		test = test.Drop(dropped)
		if train.NumCols() == 0 {
			return Partition{}, Imputation{}, nil, fmt.Errorf("no columns left after dropping undefined medians: %w", common.ErrDataFormat)
		}
		if train, test, im, err = Impute(train, test); err != nil {
			return Partition{}, Imputation{}, nil, err
		}
	}

	if n := train.MissingCount() + test.MissingCount(); n > 0 {
		return Partition{}, Imputation{}, nil, fmt.Errorf("%d missing values survived imputation: %w", n, common.ErrNumeric)
	}
	return Partition{Train: train, Test: test}, im, dropped, nil
}

// AugmentPartition builds the contrastive train and test sets from
// stream.Derive("augment", 0) and stream.Derive("augment", 1). Noise rows are
// drawn within each half, so no test value leaks into training.
func AugmentPartition(part Partition, noiseRatio float64, stream rng.Stream) (*Dataset, *Dataset, error) {
	trainSet, err := Augment(part.Train, noiseRatio, stream.Derive("augment", 0))
	if err != nil {
		return nil, nil, err
	}
	testSet, err := Augment(part.Test, noiseRatio, stream.Derive("augment", 1))
	if err != nil {
		return nil, nil, err
	}

	log.Debug().
		Int("train_real", trainSet.NumReal).
		Int("train_noise", trainSet.NumNoise).
		Int("test_real", testSet.NumReal).
		Int("test_noise", testSet.NumNoise).
		Int("features", trainSet.NumFeatures()).
		Msg("Contrastive datasets built")
	return trainSet, testSet, nil
}
