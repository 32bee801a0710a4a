package common

import "errors"

// Error kinds shared by every pipeline stage. Stages wrap these with
// fmt.Errorf("...: %w", ErrX) so callers can test with errors.Is.
var (
	// ErrDataFormat reports a malformed or empty table or a schema mismatch.
	ErrDataFormat = errors.New("data format error")

	// ErrTraining reports a degenerate label distribution or too few rows.
	ErrTraining = errors.New("training error")

	// ErrNotTrained reports evaluation or ranking against an ensemble with no trees.
	ErrNotTrained = errors.New("ensemble not trained")

	// ErrNumeric reports non-finite values surviving imputation or a
	// degenerate covariance structure.
	ErrNumeric = errors.New("numeric error")
)
