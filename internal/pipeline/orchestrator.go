// Package pipeline sequences the three mixing stages against the external
// DSP engine: bed+voice mix, crossfade to outro, loudness normalization.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/wadesconner/rtm-mixer/internal/engine"
	"github.com/wadesconner/rtm-mixer/internal/mix"
	"github.com/wadesconner/rtm-mixer/internal/model"
)

const (
	stage1Name = "core_mix.mp3"
	stage2Name = "core_plus_outro.mp3"
)

// Orchestrator drives one PipelineRun through the stage state machine:
//
//	Resolving → Stage1 → {Stage2 → Stage3 → Done}
//	                   | DoneEarly(voiceOnly|step1Only)
//	                   | Failed(stage)
//
// Runs are independent: all artifacts live in the run's own scratch area, so
// concurrent runs share no state.
type Orchestrator struct {
	runner *StageRunner
	retain bool
}

func NewOrchestrator(runner *StageRunner, retainArtifacts bool) *Orchestrator {
	return &Orchestrator{
		runner: runner,
		retain: retainArtifacts,
	}
}

// Mix executes the full pipeline inside workDir, which already holds the
// three uploaded assets. It returns the run record in every case; when the
// returned error is nil, run.OutputPath names the final deliverable.
func (o *Orchestrator) Mix(ctx context.Context, workDir string, req *model.MixRequest, intro, narr, outro model.AudioAsset) (*model.PipelineRun, error) {
	run := &model.PipelineRun{
		ID:        uuid.New().String(),
		Request:   *req,
		Assets:    []model.AudioAsset{intro, narr, outro},
		Status:    model.RunStatusRunning,
		StartedAt: time.Now(),
	}

	// Input validation happens before any stage executes; an undersized or
	// missing upload never reaches the engine.
	for _, asset := range run.Assets {
		if err := verifyInput(asset.Path); err != nil {
			return o.fail(run, 0, err)
		}
	}

	finalPath := filepath.Join(workDir, fmt.Sprintf("rtm_final_%s.mp3", run.ID))

	// Stage 1 — bed + voice mix. Both inputs are always submitted; in
	// voice-only mode the graph simply never references the bed stream.
	stage1Out := filepath.Join(workDir, stage1Name)
	artifact, err := o.runner.Run(ctx, 1, mix.BedVoiceMix(req), []string{intro.Path, narr.Path}, stage1Out)
	if err != nil {
		return o.fail(run, 1, err)
	}
	run.Artifacts = append(run.Artifacts, artifact)

	// Diagnostic short-circuits end the run after stage 1. The artifact is
	// promoted by rename, not re-encoded. VoiceOnly wins when both are set.
	if req.VoiceOnly || req.Step1Only {
		if err := os.Rename(stage1Out, finalPath); err != nil {
			return o.fail(run, 1, fmt.Errorf("promoting stage 1 artifact: %w", err))
		}
		run.Artifacts[len(run.Artifacts)-1] = model.StageArtifact{Stage: 1, Path: finalPath, Final: true}
		if req.VoiceOnly {
			run.ShortCircuit = model.ShortCircuitVoiceOnly
		} else {
			run.ShortCircuit = model.ShortCircuitStep1Only
		}
		return o.succeed(run, finalPath)
	}

	// Stage 2 — crossfade into the outro bed.
	stage2Out := filepath.Join(workDir, stage2Name)
	artifact, err = o.runner.Run(ctx, 2, mix.CrossfadeToOutro(req), []string{stage1Out, outro.Path}, stage2Out)
	if err != nil {
		return o.fail(run, 2, err)
	}
	run.Artifacts = append(run.Artifacts, artifact)

	// Stage 3 — loudness normalization, always last when reached.
	artifact, err = o.runner.Run(ctx, 3, mix.LoudnessNormalize(req), []string{stage2Out}, finalPath)
	if err != nil {
		return o.fail(run, 3, err)
	}
	artifact.Final = true
	run.Artifacts = append(run.Artifacts, artifact)

	return o.succeed(run, finalPath)
}

func (o *Orchestrator) succeed(run *model.PipelineRun, finalPath string) (*model.PipelineRun, error) {
	run.Status = model.RunStatusSucceeded
	run.OutputPath = finalPath
	now := time.Now()
	run.CompletedAt = &now
	o.cleanup(run)
	return run, nil
}

func (o *Orchestrator) fail(run *model.PipelineRun, stage int, err error) (*model.PipelineRun, error) {
	run.Status = model.RunStatusFailed
	run.FailedStage = stage
	now := time.Now()
	run.CompletedAt = &now
	o.cleanup(run)
	return run, err
}

// cleanup deletes every non-final artifact unless retention is on, in which
// case everything stays on disk for inspection.
func (o *Orchestrator) cleanup(run *model.PipelineRun) {
	if o.retain {
		return
	}
	for _, a := range run.Artifacts {
		if a.Final {
			continue
		}
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("run %s: could not remove intermediate %s: %v", run.ID, a.Path, err)
		}
	}
}

// NewWorkspace allocates a uniquely named scratch directory for one run so
// concurrent executions never collide.
func NewWorkspace(root string) (string, error) {
	dir, err := os.MkdirTemp(root, "rtm_mix_")
	if err != nil {
		return "", fmt.Errorf("creating run workspace: %w", err)
	}
	return dir, nil
}

// OutputSpecFor maps configured encoding values onto the engine request.
func OutputSpecFor(sampleRate, channels int, bitrate string) engine.OutputSpec {
	return engine.OutputSpec{
		SampleRate: sampleRate,
		Channels:   channels,
		Codec:      "libmp3lame",
		Bitrate:    bitrate,
	}
}
