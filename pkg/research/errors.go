package research

import (
	"fmt"
)

// Stage identifies which provider call failed.
type Stage string

const (
	StagePlan     Stage = "plan"
	StageSearch   Stage = "search"
	StageExtract  Stage = "extract"
	StageFeedback Stage = "feedback"
)

// ProviderError is a search or language model failure at one stage. Inside a
// run it is logged and the owning branch contributes nothing.
type ProviderError struct {
	Stage Stage
	Query string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed for %q: %v", e.Stage, e.Query, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// SynthesisError is a failure to write the final report or answer.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("report synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ValidationError is returned before any provider call when input is missing.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
