package services

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline step an error came from.
type Stage int

const (
	StageNotification Stage = iota + 1
	StageDownload
	StageExtraction
	StageAgentInvocation
	StagePersist
)

func (s Stage) String() string {
	switch s {
	case StageNotification:
		return "notification"
	case StageDownload:
		return "download"
	case StageExtraction:
		return "extraction"
	case StageAgentInvocation:
		return "agent_invocation"
	case StagePersist:
		return "persist"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

func (s Stage) message() string {
	switch s {
	case StageNotification:
		return "invalid trigger notification"
	case StageDownload:
		return "failed to download file from GCS"
	case StageExtraction:
		return "text extraction failed"
	case StageAgentInvocation:
		return "resume agent error"
	case StagePersist:
		return "failed to save parsed resume to GCS"
	default:
		return s.String() + " failed"
	}
}

// StageError tags a failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage.message(), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage reports which stage err came from, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return 0, false
}
