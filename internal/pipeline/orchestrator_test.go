package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wadesconner/rtm-mixer/internal/engine"
	"github.com/wadesconner/rtm-mixer/internal/model"
)

// fakeEngine records every render and writes a plausible output file, or
// fails at a chosen stage with diagnostic text.
type fakeEngine struct {
	renders     []*engine.RenderRequest
	failAtCall  int // 1-based; 0 never fails
	diagnostic  string
}

func (f *fakeEngine) Render(_ context.Context, req *engine.RenderRequest) error {
	f.renders = append(f.renders, req)
	if f.failAtCall > 0 && len(f.renders) == f.failAtCall {
		return &engine.RenderError{Diagnostic: f.diagnostic, Err: errors.New("exit status 1")}
	}
	return os.WriteFile(req.OutputPath, make([]byte, 4096), 0o644)
}

func (f *fakeEngine) Probe(context.Context, string) (*engine.StreamInfo, error) {
	return &engine.StreamInfo{Channels: 2, SampleRate: 48000, Duration: 30}, nil
}

func testSpec() engine.OutputSpec {
	return OutputSpecFor(48000, 2, "192k")
}

func writeAsset(t *testing.T, dir, name string, size int) model.AudioAsset {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("writing asset %s: %v", name, err)
	}
	return model.AudioAsset{Name: name, Path: path, Size: int64(size)}
}

func testAssets(t *testing.T, dir string) (intro, narr, outro model.AudioAsset) {
	t.Helper()
	return writeAsset(t, dir, "intro.mp3", 2048),
		writeAsset(t, dir, "narr.mp3", 2048),
		writeAsset(t, dir, "outro.mp3", 2048)
}

func newTestOrchestrator(eng engine.Engine, retain bool) *Orchestrator {
	runner := NewStageRunner(eng, testSpec(), 30*time.Second, false)
	return NewOrchestrator(runner, retain)
}

func defaultRequest() *model.MixRequest {
	return &model.MixRequest{
		BedVolume: 0.25, VoiceGain: 1.5, BedWeight: 0.25, VoiceWeight: 1,
		DuckThreshold: 0.02, DuckRatio: 12, Crossfade: 1, OutroGain: 1,
		TargetLoudness: -16, TruePeakCeiling: -1.5, LoudnessRange: 11,
	}
}

func TestMix_AllThreeStages(t *testing.T) {
	dir := t.TempDir()
	intro, narr, outro := testAssets(t, dir)
	eng := &fakeEngine{}
	o := newTestOrchestrator(eng, false)

	run, err := o.Mix(context.Background(), dir, defaultRequest(), intro, narr, outro)
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	if run.Status != model.RunStatusSucceeded {
		t.Errorf("status = %s, want succeeded", run.Status)
	}
	if len(eng.renders) != 3 {
		t.Fatalf("expected 3 engine invocations, got %d", len(eng.renders))
	}
	if !strings.Contains(run.OutputPath, "rtm_final_"+run.ID) {
		t.Errorf("output path %q not named after the run", run.OutputPath)
	}
	if _, err := os.Stat(run.OutputPath); err != nil {
		t.Errorf("final artifact missing: %v", err)
	}

	// Intermediates are deleted outside debug-retain mode.
	for _, name := range []string{stage1Name, stage2Name} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("intermediate %s should have been deleted", name)
		}
	}
}

func TestMix_StageInputWiring(t *testing.T) {
	dir := t.TempDir()
	intro, narr, outro := testAssets(t, dir)
	eng := &fakeEngine{}
	o := newTestOrchestrator(eng, false)

	if _, err := o.Mix(context.Background(), dir, defaultRequest(), intro, narr, outro); err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	// Stage 1 consumes the bed and narration; stage 2 the stage-1 output and
	// the outro; stage 3 only the stage-2 output.
	if got := eng.renders[0].Inputs; got[0] != intro.Path || got[1] != narr.Path {
		t.Errorf("stage 1 inputs = %v", got)
	}
	if got := eng.renders[1].Inputs; !strings.HasSuffix(got[0], stage1Name) || got[1] != outro.Path {
		t.Errorf("stage 2 inputs = %v", got)
	}
	if got := eng.renders[2].Inputs; len(got) != 1 || !strings.HasSuffix(got[0], stage2Name) {
		t.Errorf("stage 3 inputs = %v", got)
	}
}

// The orchestration itself is deterministic: identical inputs and knobs
// produce identical engine submissions.
func TestMix_DeterministicGraphs(t *testing.T) {
	graphsOf := func(t *testing.T) []string {
		dir := t.TempDir()
		intro, narr, outro := testAssets(t, dir)
		eng := &fakeEngine{}
		o := newTestOrchestrator(eng, false)
		if _, err := o.Mix(context.Background(), dir, defaultRequest(), intro, narr, outro); err != nil {
			t.Fatalf("Mix failed: %v", err)
		}
		var graphs []string
		for _, r := range eng.renders {
			graphs = append(graphs, r.FilterGraph)
		}
		return graphs
	}

	first := graphsOf(t)
	second := graphsOf(t)
	if len(first) != len(second) {
		t.Fatalf("stage counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("stage %d graph differs between identical runs", i+1)
		}
	}
}

func TestMix_VoiceOnlyShortCircuit(t *testing.T) {
	dir := t.TempDir()
	intro, narr, outro := testAssets(t, dir)
	eng := &fakeEngine{}
	o := newTestOrchestrator(eng, false)

	req := defaultRequest()
	req.VoiceOnly = true

	run, err := o.Mix(context.Background(), dir, req, intro, narr, outro)
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	if len(eng.renders) != 1 {
		t.Fatalf("voice-only must stop after stage 1, got %d invocations", len(eng.renders))
	}
	if strings.Contains(eng.renders[0].FilterGraph, "[0:a]") {
		t.Errorf("voice-only graph references the bed: %s", eng.renders[0].FilterGraph)
	}
	if run.ShortCircuit != model.ShortCircuitVoiceOnly {
		t.Errorf("shortCircuit = %q, want %q", run.ShortCircuit, model.ShortCircuitVoiceOnly)
	}
	if _, err := os.Stat(run.OutputPath); err != nil {
		t.Errorf("promoted artifact missing: %v", err)
	}
}

func TestMix_Step1OnlyShortCircuit(t *testing.T) {
	dir := t.TempDir()
	intro, narr, outro := testAssets(t, dir)
	eng := &fakeEngine{}
	o := newTestOrchestrator(eng, false)

	req := defaultRequest()
	req.Step1Only = true

	run, err := o.Mix(context.Background(), dir, req, intro, narr, outro)
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}

	if len(eng.renders) != 1 {
		t.Fatalf("step1-only must stop after stage 1, got %d invocations", len(eng.renders))
	}
	// Output must not contain outro content: the outro never reached the
	// engine at all.
	for _, r := range eng.renders {
		for _, in := range r.Inputs {
			if in == outro.Path {
				t.Error("outro was submitted in step1-only mode")
			}
		}
	}
	if run.ShortCircuit != model.ShortCircuitStep1Only {
		t.Errorf("shortCircuit = %q, want %q", run.ShortCircuit, model.ShortCircuitStep1Only)
	}
}

func TestMix_VoiceOnlyWinsOverStep1Only(t *testing.T) {
	dir := t.TempDir()
	intro, narr, outro := testAssets(t, dir)
	o := newTestOrchestrator(&fakeEngine{}, false)

	req := defaultRequest()
	req.VoiceOnly = true
	req.Step1Only = true

	run, err := o.Mix(context.Background(), dir, req, intro, narr, outro)
	if err != nil {
		t.Fatalf("Mix failed: %v", err)
	}
	if run.ShortCircuit != model.ShortCircuitVoiceOnly {
		t.Errorf("shortCircuit = %q, want voice_only to take precedence", run.ShortCircuit)
	}
}

func TestMix_UndersizedNarrationRejectedBeforeEngine(t *testing.T) {
	dir := t.TempDir()
	intro := writeAsset(t, dir, "intro.mp3", 2048)
	narr := writeAsset(t, dir, "narr.mp3", 100) // under the 500-byte minimum
	outro := writeAsset(t, dir, "outro.mp3", 2048)
	eng := &fakeEngine{}
	o := newTestOrchestrator(eng, false)

	run, err := o.Mix(context.Background(), dir, defaultRequest(), intro, narr, outro)

	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
	if len(eng.renders) != 0 {
		t.Errorf("engine was invoked %d times before input validation", len(eng.renders))
	}
	if run.Status != model.RunStatusFailed {
		t.Errorf("status = %s, want failed", run.Status)
	}
}

func TestMix_Stage2FailureAbortsRun(t *testing.T) {
	dir := t.TempDir()
	intro, narr, outro := testAssets(t, dir)
	eng := &fakeEngine{failAtCall: 2, diagnostic: "acrossfade: invalid duration"}
	o := newTestOrchestrator(eng, false)

	run, err := o.Mix(context.Background(), dir, defaultRequest(), intro, narr, outro)

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if stageErr.Stage != 2 {
		t.Errorf("failed stage = %d, want 2", stageErr.Stage)
	}
	if !strings.Contains(stageErr.Diagnostic, "acrossfade") {
		t.Errorf("diagnostic %q lost the engine output", stageErr.Diagnostic)
	}
	if len(eng.renders) != 2 {
		t.Errorf("no retry allowed: expected 2 invocations, got %d", len(eng.renders))
	}
	if run.FailedStage != 2 || run.Status != model.RunStatusFailed {
		t.Errorf("run = %s/stage %d, want failed/2", run.Status, run.FailedStage)
	}

	// No final artifact, and the stage-1 intermediate is gone in normal mode.
	if run.OutputPath != "" {
		t.Errorf("failed run must not expose an output path, got %q", run.OutputPath)
	}
	if _, err := os.Stat(filepath.Join(dir, stage1Name)); !os.IsNotExist(err) {
		t.Error("stage-1 intermediate should have been deleted after failure")
	}
}

func TestMix_Stage2FailureRetainsArtifactsInDebug(t *testing.T) {
	dir := t.TempDir()
	intro, narr, outro := testAssets(t, dir)
	eng := &fakeEngine{failAtCall: 2, diagnostic: "boom"}
	o := newTestOrchestrator(eng, true)

	if _, err := o.Mix(context.Background(), dir, defaultRequest(), intro, narr, outro); err == nil {
		t.Fatal("expected stage 2 failure")
	}

	if _, err := os.Stat(filepath.Join(dir, stage1Name)); err != nil {
		t.Errorf("debug-retain mode must keep the stage-1 intermediate: %v", err)
	}
}

func TestNewWorkspace_UniquePerRun(t *testing.T) {
	root := t.TempDir()
	a, err := NewWorkspace(root)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewWorkspace(root)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("workspaces must be unique, both were %s", a)
	}
	if !strings.Contains(filepath.Base(a), "rtm_mix_") {
		t.Errorf("workspace %q missing rtm_mix_ prefix", a)
	}
}
