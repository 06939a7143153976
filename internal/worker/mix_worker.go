package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hibiken/asynq"

	"github.com/wadesconner/rtm-mixer/internal/client"
	"github.com/wadesconner/rtm-mixer/internal/engine"
	"github.com/wadesconner/rtm-mixer/internal/model"
	"github.com/wadesconner/rtm-mixer/internal/pipeline"
	"github.com/wadesconner/rtm-mixer/internal/service"
	"github.com/wadesconner/rtm-mixer/internal/websocket"
)

// MixWorker consumes queued mix jobs: it replays the same pipeline the
// synchronous endpoint runs inline, keeps the redis job record current, and
// pushes progress to any websocket watchers.
type MixWorker struct {
	mixService    *service.MixService
	orchestrator  *pipeline.Orchestrator
	engine        engine.Engine
	storageClient client.StorageClient // may be nil
	hub           *websocket.Hub
}

func NewMixWorker(mixService *service.MixService, orch *pipeline.Orchestrator, eng engine.Engine, storage client.StorageClient, hub *websocket.Hub) *MixWorker {
	return &MixWorker{
		mixService:    mixService,
		orchestrator:  orch,
		engine:        eng,
		storageClient: storage,
		hub:           hub,
	}
}

// ProcessTask handles one mix:process task.
func (w *MixWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("Processing mix job %s", jobID)

	var payload model.MixJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.fail(ctx, jobID, "invalid job payload")
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if len(payload.Assets) != 3 {
		w.fail(ctx, jobID, "invalid job payload")
		return fmt.Errorf("job %s: expected 3 assets, got %d", jobID, len(payload.Assets))
	}

	w.progress(ctx, jobID, 10, "Preparing inputs")

	run, err := w.orchestrator.Mix(ctx, payload.WorkDir, &payload.Request,
		payload.Assets[0], payload.Assets[1], payload.Assets[2])
	if err != nil {
		w.fail(ctx, jobID, mixErrorMessage(err))
		return fmt.Errorf("job %s: %w", jobID, err)
	}

	w.progress(ctx, jobID, 80, "Finalizing output")

	result := &model.MixResultResponse{
		RunID:        run.ID,
		OutputPath:   run.OutputPath,
		ShortCircuit: run.ShortCircuit,
	}
	if info, err := os.Stat(run.OutputPath); err == nil {
		result.SizeBytes = info.Size()
	}
	if info, err := w.engine.Probe(ctx, run.OutputPath); err == nil {
		result.Duration = info.Duration
	}

	if w.storageClient != nil {
		w.progress(ctx, jobID, 90, "Uploading to storage")
		if url, err := w.upload(ctx, jobID, run.OutputPath); err != nil {
			// The local file still serves the download endpoint.
			log.Printf("Job %s: storage upload failed: %v", jobID, err)
		} else {
			result.FileURL = url
		}
	}

	if err := w.mixService.CompleteJob(ctx, jobID, result); err != nil {
		log.Printf("Failed to complete job %s: %v", jobID, err)
		return err
	}

	w.hub.BroadcastComplete(jobID, result)
	log.Printf("Mix job %s completed (run %s)", jobID, run.ID)
	return nil
}

func (w *MixWorker) progress(ctx context.Context, jobID string, pct int, step string) {
	if err := w.mixService.UpdateJobProgress(ctx, jobID, pct, step); err != nil {
		log.Printf("Failed to update job %s progress: %v", jobID, err)
	}
	w.hub.BroadcastProgress(jobID, pct, model.JobStatusRunning, step)
}

func (w *MixWorker) fail(ctx context.Context, jobID, msg string) {
	if err := w.mixService.FailJob(ctx, jobID, msg); err != nil {
		log.Printf("Failed to mark job %s failed: %v", jobID, err)
	}
	w.hub.BroadcastError(jobID, "MIX_FAILED", msg)
}

func (w *MixWorker) upload(ctx context.Context, jobID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	key := "mixes/" + jobID + ".mp3"
	return w.storageClient.Upload(ctx, key, f, "audio/mpeg")
}

// mixErrorMessage flattens a pipeline error into something safe to show a
// caller polling the job.
func mixErrorMessage(err error) string {
	var inputErr *pipeline.InvalidInputError
	var stageErr *pipeline.StageError
	var cfgErr *pipeline.ConfigError
	switch {
	case errors.As(err, &inputErr):
		return inputErr.Error()
	case errors.As(err, &stageErr):
		return fmt.Sprintf("stage %d failed: %s", stageErr.Stage, stageErr.Diagnostic)
	case errors.As(err, &cfgErr):
		return cfgErr.Error()
	default:
		return "mix failed"
	}
}
