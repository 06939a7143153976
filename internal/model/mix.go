package model

import "time"

// MixRequest is the canonical, fully resolved parameter set consumed by the
// pipeline. All values are already coerced and defaulted by the parameter
// resolver; the pipeline never sees raw request input.
type MixRequest struct {
	// Stage 1 — bed + voice mix
	BedVolume      float64 `json:"bedVolume"`      // linear gain on the intro bed, pre-duck
	VoiceGain      float64 `json:"voiceGain"`      // linear gain on narration, post high-pass
	BedWeight      float64 `json:"bedWeight"`      // amix weight for the ducked bed
	VoiceWeight    float64 `json:"voiceWeight"`    // amix weight for narration
	NarrationDelay float64 `json:"narrationDelay"` // seconds before narration starts
	DuckThreshold  float64 `json:"duckThreshold"`  // sidechain threshold
	DuckRatio      float64 `json:"duckRatio"`      // sidechain ratio

	// Stage 2 — crossfade to outro
	Crossfade float64 `json:"crossfade"` // seconds of overlap into the outro
	OutroGain float64 `json:"outroGain"` // linear gain on the outro bed

	// Stage 3 — loudness normalization
	TargetLoudness  float64 `json:"targetLoudness"`  // integrated LUFS
	TruePeakCeiling float64 `json:"truePeakCeiling"` // dBTP
	LoudnessRange   float64 `json:"loudnessRange"`   // LU

	// Diagnostic short-circuits. VoiceOnly wins when both are set.
	VoiceOnly bool `json:"voiceOnly"`
	Step1Only bool `json:"step1Only"`
}

// AudioAsset is an immutable reference to one input file. The pipeline only
// reads it; the caller owns the file.
type AudioAsset struct {
	Name string `json:"name"` // role: "intro", "narr", "outro"
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Valid reports whether the asset plausibly holds audio. Anything under
// MinAssetBytes is certainly not a usable encoded stream.
func (a AudioAsset) Valid() bool {
	return a.Path != "" && a.Size >= MinAssetBytes
}

// MinAssetBytes is the smallest byte count accepted for any input asset.
const MinAssetBytes = 500

// StageArtifact is an intermediate or final audio file produced by one
// pipeline stage. Its lifecycle is owned by the enclosing run.
type StageArtifact struct {
	Stage int    `json:"stage"`
	Path  string `json:"path"`
	Final bool   `json:"final"`
}

// RunStatus is the terminal status of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Short-circuit modes recorded on a run that finished after stage 1.
const (
	ShortCircuitVoiceOnly = "voice_only"
	ShortCircuitStep1Only = "step1_only"
)

// PipelineRun is one pipeline execution: the resolved request, the three
// input assets, every artifact produced, and the terminal status. A run owns
// its artifacts exclusively and is discarded once the output is consumed.
type PipelineRun struct {
	ID           string          `json:"id"`
	Request      MixRequest      `json:"request"`
	Assets       []AudioAsset    `json:"assets"`
	Artifacts    []StageArtifact `json:"artifacts"`
	Status       RunStatus       `json:"status"`
	ShortCircuit string          `json:"shortCircuit,omitempty"`
	FailedStage  int             `json:"failedStage,omitempty"`
	OutputPath   string          `json:"outputPath,omitempty"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// MixStartResponse is returned when an async mix job is queued.
type MixStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// MixStatusResponse reports job progress.
type MixStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// MixResultResponse is the result of a completed mix job.
type MixResultResponse struct {
	RunID        string  `json:"runId"`
	OutputPath   string  `json:"outputPath"`
	FileURL      string  `json:"fileUrl,omitempty"` // set when object storage is configured
	ShortCircuit string  `json:"shortCircuit,omitempty"`
	SizeBytes    int64   `json:"sizeBytes"`
	Duration     float64 `json:"duration,omitempty"`
}

// NarrateRequest asks the TTS provider for narration audio.
type NarrateRequest struct {
	Script string `json:"script" validate:"required,min=1,max=10000"`
	Voice  string `json:"voice" validate:"omitempty,max=64"`
}
