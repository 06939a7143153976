package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/wadesconner/rtm-mixer/internal/model"
	"github.com/wadesconner/rtm-mixer/internal/pipeline"
)

const TaskTypeMix = "mix:process"

// Saved upload filenames inside a run workspace, one per asset role.
var assetFilenames = map[string]string{
	"intro": "rtm_intro_bg.mp3",
	"narr":  "rtm_narration.mp3",
	"outro": "rtm_outro_bg.mp3",
}

// EngineStatus reports whether the external DSP engine can run at all.
type EngineStatus interface {
	Available() bool
}

// AssetUpload is one incoming audio file before it lands in a workspace.
type AssetUpload struct {
	Role   string
	Reader io.Reader
	Size   int64
}

// MixService owns mix execution: synchronous runs for the blocking endpoint
// and queued jobs for the async one. Job records live in redis.
type MixService struct {
	redis        *redis.Client
	asynqClient  *asynq.Client
	orchestrator *pipeline.Orchestrator
	engineStatus EngineStatus
	workRoot     string
}

func NewMixService(redisClient *redis.Client, asynqClient *asynq.Client, orch *pipeline.Orchestrator, status EngineStatus, workRoot string) *MixService {
	return &MixService{
		redis:        redisClient,
		asynqClient:  asynqClient,
		orchestrator: orch,
		engineStatus: status,
		workRoot:     workRoot,
	}
}

// PrepareWorkspace allocates a scratch directory for one run and saves the
// three uploads into it. Callers pass uploads in intro, narr, outro order.
func (s *MixService) PrepareWorkspace(uploads []AssetUpload) (string, []model.AudioAsset, error) {
	workDir, err := pipeline.NewWorkspace(s.workRoot)
	if err != nil {
		return "", nil, err
	}

	assets := make([]model.AudioAsset, 0, len(uploads))
	for _, up := range uploads {
		name, ok := assetFilenames[up.Role]
		if !ok {
			name = up.Role + ".mp3"
		}
		path := filepath.Join(workDir, name)
		f, err := os.Create(path)
		if err != nil {
			return "", nil, fmt.Errorf("saving %s upload: %w", up.Role, err)
		}
		written, err := io.Copy(f, up.Reader)
		f.Close()
		if err != nil {
			return "", nil, fmt.Errorf("saving %s upload: %w", up.Role, err)
		}
		assets = append(assets, model.AudioAsset{Name: up.Role, Path: path, Size: written})
	}

	return workDir, assets, nil
}

// MixSync runs the whole pipeline inline and returns the finished run.
func (s *MixService) MixSync(ctx context.Context, workDir string, req *model.MixRequest, assets []model.AudioAsset) (*model.PipelineRun, error) {
	if err := s.precheck(assets); err != nil {
		return nil, err
	}
	return s.orchestrator.Mix(ctx, workDir, req, assets[0], assets[1], assets[2])
}

// StartMix queues a background mix job over an already-prepared workspace.
func (s *MixService) StartMix(ctx context.Context, workDir string, req *model.MixRequest, assets []model.AudioAsset) (*model.MixStartResponse, error) {
	if err := s.precheck(assets); err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		Status:    model.JobStatusQueued,
		Progress:  0,
		CreatedAt: now,
	}

	payload := &model.MixJobPayload{
		WorkDir: workDir,
		Assets:  assets,
		Request: *req,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	job.Payload = payloadBytes

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newMixTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// MaxRetry is 0 on purpose: a failed stage aborts the run, and the
	// pipeline never retries on its own.
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("mix"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.MixStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// precheck rejects obviously bad inputs before a run (or a queue slot) is
// spent on them, and surfaces a missing engine as a configuration problem
// rather than a render failure.
func (s *MixService) precheck(assets []model.AudioAsset) error {
	if len(assets) != 3 {
		return &pipeline.InvalidInputError{Asset: "request", Reason: "three assets required"}
	}
	for _, a := range assets {
		if !a.Valid() {
			return &pipeline.InvalidInputError{
				Asset:  a.Name,
				Reason: fmt.Sprintf("only %d bytes, below the %d byte minimum", a.Size, model.MinAssetBytes),
			}
		}
	}
	if s.engineStatus != nil && !s.engineStatus.Available() {
		return &pipeline.ConfigError{Reason: "DSP engine binary not found"}
	}
	return nil
}

// GetStatus returns the current status of a mix job
func (s *MixService) GetStatus(ctx context.Context, jobID string) (*model.MixStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.MixStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// GetResult returns the result of a completed mix job
func (s *MixService) GetResult(ctx context.Context, jobID string) (*model.MixResultResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusSucceeded {
		return nil, fmt.Errorf("job not completed")
	}

	var result model.MixResultResponse
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// UpdateJobProgress updates job progress (called by worker)
func (s *MixService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// CompleteJob marks job as completed (called by worker)
func (s *MixService) CompleteJob(ctx context.Context, jobID string, result *model.MixResultResponse) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// FailJob marks job as failed (called by worker)
func (s *MixService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Helper methods

func (s *MixService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, 24*time.Hour).Err()
}

func (s *MixService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func newMixTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": payload,
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeMix, data), nil
}
