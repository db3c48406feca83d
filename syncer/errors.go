package syncer

import (
	"errors"
	"fmt"

	"github.com/fjlanasa/aspace-sync/pipelines"
)

var (
	ErrUnsupportedItemType = errors.New("unsupported item type")
	ErrRunInProgress       = errors.New("run already in progress")
)

// PipelineFailedError is returned when a pipeline batch does not complete.
type PipelineFailedError struct {
	PipelineID string
	Page       int
	Outcome    pipelines.Outcome
	Err        error
}

func (e *PipelineFailedError) Error() string {
	msg := fmt.Sprintf("pipeline %q on page %d failed to complete: %s", e.PipelineID, e.Page, outcomeMessage(e.Outcome))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PipelineFailedError) Unwrap() error {
	return e.Err
}

func outcomeMessage(o pipelines.Outcome) string {
	switch o {
	case pipelines.OutcomeDisabled:
		return "pipeline is disabled"
	case pipelines.OutcomeFailed:
		return "fatal error"
	case pipelines.OutcomeIncomplete:
		return "stopped itself before finishing"
	case pipelines.OutcomeSkipped:
		return "required pipelines are not enabled"
	case pipelines.OutcomeStopped:
		return "stopped externally"
	}
	return o.String()
}
