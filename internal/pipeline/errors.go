package pipeline

import "fmt"

// InvalidInputError reports a missing, empty or undersized asset. It is
// raised before any stage executes and is never retried.
type InvalidInputError struct {
	Asset  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Asset, e.Reason)
}

// StageError reports a failed engine invocation: which stage failed and the
// engine's captured diagnostic text. A failed stage aborts the run; there is
// no partial-success output.
type StageError struct {
	Stage      int
	Diagnostic string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ConfigError reports that the pipeline cannot run at all, typically because
// the engine binary is missing.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "pipeline unavailable: " + e.Reason
}
