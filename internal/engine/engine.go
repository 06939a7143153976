// Package engine is the binding to the external DSP engine. The pipeline
// submits a declarative filtergraph plus named inputs and consumes one output
// file or captured diagnostic text; it never parses structured engine output
// beyond optional probe logging.
package engine

import "context"

// OutputSpec is the encoding applied to a rendered file.
type OutputSpec struct {
	SampleRate int
	Channels   int
	Codec      string
	Bitrate    string
}

// RenderRequest describes one engine invocation: ordered input streams, the
// serialized signal graph, the graph's output label, and the target file.
type RenderRequest struct {
	Inputs      []string
	FilterGraph string
	OutputLabel string
	OutputPath  string
	Spec        OutputSpec
}

// StreamInfo is the subset of probe output used for diagnostics.
type StreamInfo struct {
	Channels   int
	SampleRate int
	Duration   float64
}

// Engine executes signal graphs. Implementations are synchronous and honor
// context cancellation; callers are expected to bound each call with a
// deadline since the engine itself has none.
type Engine interface {
	Render(ctx context.Context, req *RenderRequest) error
	Probe(ctx context.Context, path string) (*StreamInfo, error)
}

// RenderError carries the engine's captured diagnostic output alongside the
// underlying process error.
type RenderError struct {
	Diagnostic string
	Err        error
}

func (e *RenderError) Error() string {
	if e.Diagnostic != "" {
		return e.Err.Error() + ": " + e.Diagnostic
	}
	return e.Err.Error()
}

func (e *RenderError) Unwrap() error { return e.Err }
