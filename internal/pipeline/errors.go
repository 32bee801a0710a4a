package pipeline

import "fmt"

// Stage names, in run order.
const (
	StageSplit     = "split"
	StageImpute    = "impute"
	StageAugment   = "augment"
	StageTrain     = "train"
	StageEvaluate  = "evaluate"
	StageRank      = "rank"
	StageReduce    = "reduce"
	StageThreshold = "threshold"
	StageEmbed     = "embed"
)

// StageError tags a failure with the stage that raised it. The error kind
// stays reachable through errors.Is.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
