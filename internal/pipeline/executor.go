package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/wadesconner/rtm-mixer/internal/engine"
	"github.com/wadesconner/rtm-mixer/internal/mix"
	"github.com/wadesconner/rtm-mixer/internal/model"
)

// StageRunner submits one signal graph to the engine and returns the
// resulting artifact or a typed failure. It writes exactly one output file
// per stage and verifies inputs before submission so "bad input" and
// "processing error" stay distinguishable.
type StageRunner struct {
	engine  engine.Engine
	spec    engine.OutputSpec
	timeout time.Duration
	debug   bool
}

func NewStageRunner(eng engine.Engine, spec engine.OutputSpec, timeout time.Duration, debug bool) *StageRunner {
	return &StageRunner{
		engine:  eng,
		spec:    spec,
		timeout: timeout,
		debug:   debug,
	}
}

// Run executes one stage. inputs are file paths in graph order.
func (r *StageRunner) Run(ctx context.Context, stage int, g *mix.Graph, inputs []string, outputPath string) (model.StageArtifact, error) {
	artifact := model.StageArtifact{Stage: stage, Path: outputPath}

	for _, in := range inputs {
		if err := verifyInput(in); err != nil {
			return artifact, err
		}
	}

	stageCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req := &engine.RenderRequest{
		Inputs:      inputs,
		FilterGraph: g.String(),
		OutputLabel: mix.OutLabel,
		OutputPath:  outputPath,
		Spec:        r.spec,
	}

	if r.debug {
		log.Printf("stage %d filtergraph: %s", stage, req.FilterGraph)
	}

	if err := r.engine.Render(stageCtx, req); err != nil {
		return artifact, &StageError{
			Stage:      stage,
			Diagnostic: diagnosticOf(err),
			Err:        err,
		}
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return artifact, &StageError{
			Stage: stage,
			Err:   fmt.Errorf("engine produced no output at %s", outputPath),
		}
	}

	// Observability aid after the first mix: log basic stream properties so
	// channel/sample-rate surprises show up in the server log.
	if stage == 1 && r.debug {
		if props, err := r.engine.Probe(ctx, outputPath); err == nil {
			log.Printf("stage 1 output: channels=%d sample_rate=%d duration=%.2fs",
				props.Channels, props.SampleRate, props.Duration)
		}
	}

	return artifact, nil
}

func verifyInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &InvalidInputError{Asset: path, Reason: "file does not exist"}
	}
	if info.Size() < model.MinAssetBytes {
		return &InvalidInputError{
			Asset:  path,
			Reason: fmt.Sprintf("only %d bytes, below the %d byte minimum", info.Size(), model.MinAssetBytes),
		}
	}
	return nil
}

func diagnosticOf(err error) string {
	var re *engine.RenderError
	if errors.As(err, &re) {
		return re.Diagnostic
	}
	return err.Error()
}
