package handler

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/wadesconner/rtm-mixer/internal/model"
	"github.com/wadesconner/rtm-mixer/internal/params"
	"github.com/wadesconner/rtm-mixer/internal/pipeline"
	"github.com/wadesconner/rtm-mixer/internal/service"
	"github.com/wadesconner/rtm-mixer/pkg/response"
)

// MaxUploadBytes caps each uploaded asset. Anything larger than this is not a
// plausible intro bed, narration take or outro.
const MaxUploadBytes = 50 << 20

var uploadRoles = []string{"intro", "narr", "outro"}

// MixHandler serves the mixing endpoints: the blocking mix, the queued mix
// and the job status/result/download trio.
type MixHandler struct {
	mixService     *service.MixService
	keepWorkspaces bool
}

func NewMixHandler(mixService *service.MixService, keepWorkspaces bool) *MixHandler {
	return &MixHandler{mixService: mixService, keepWorkspaces: keepWorkspaces}
}

// Mix handles POST /api/mix. It runs the whole pipeline inline and streams
// the finished MP3 back in the response.
func (h *MixHandler) Mix(c *fiber.Ctx) error {
	req := resolveKnobs(c)

	uploads, closeAll, err := h.collectUploads(c)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}
	defer closeAll()

	workDir, assets, err := h.mixService.PrepareWorkspace(uploads)
	if err != nil {
		log.Printf("Failed to prepare workspace: %v", err)
		return response.ServiceError(c, "Failed to save uploads")
	}

	run, err := h.mixService.MixSync(c.Context(), workDir, &req, assets)
	if err != nil {
		h.discard(workDir)
		return h.mapMixError(c, err)
	}

	data, err := os.ReadFile(run.OutputPath)
	if err != nil {
		log.Printf("Run %s: output unreadable: %v", run.ID, err)
		h.discard(workDir)
		return response.ServiceError(c, "Mix output unreadable")
	}
	h.discard(workDir)

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filepath.Base(run.OutputPath)))
	c.Set("X-Run-Id", run.ID)
	if run.ShortCircuit != "" {
		c.Set("X-Short-Circuit", run.ShortCircuit)
	}
	return c.Send(data)
}

// StartMix handles POST /api/mix/start. The uploads are persisted into a
// workspace first so the queued job never depends on the request body.
func (h *MixHandler) StartMix(c *fiber.Ctx) error {
	req := resolveKnobs(c)

	uploads, closeAll, err := h.collectUploads(c)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}
	defer closeAll()

	workDir, assets, err := h.mixService.PrepareWorkspace(uploads)
	if err != nil {
		log.Printf("Failed to prepare workspace: %v", err)
		return response.ServiceError(c, "Failed to save uploads")
	}

	resp, err := h.mixService.StartMix(c.Context(), workDir, &req, assets)
	if err != nil {
		h.discard(workDir)
		return h.mapMixError(c, err)
	}

	return response.Accepted(c, resp)
}

// GetStatus handles GET /api/mix/status/:jobId
func (h *MixHandler) GetStatus(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	status, err := h.mixService.GetStatus(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		log.Printf("Failed to get job status: %v", err)
		return response.ServiceError(c, "Failed to get job status")
	}

	return response.OK(c, status)
}

// GetResult handles GET /api/mix/result/:jobId
func (h *MixHandler) GetResult(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.mixService.GetResult(c.Context(), jobID)
	if err != nil {
		switch err.Error() {
		case "job not found":
			return response.NotFound(c, "Job not found")
		case "job not completed":
			return response.Error(c, fiber.StatusConflict, response.CodeServiceError, "Job has not completed", nil)
		}
		log.Printf("Failed to get job result: %v", err)
		return response.ServiceError(c, "Failed to get job result")
	}

	return response.OK(c, result)
}

// Download handles GET /api/mix/download/:jobId and serves the finished MP3
// of a completed job from local disk.
func (h *MixHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.mixService.GetResult(c.Context(), jobID)
	if err != nil {
		switch err.Error() {
		case "job not found":
			return response.NotFound(c, "Job not found")
		case "job not completed":
			return response.Error(c, fiber.StatusConflict, response.CodeServiceError, "Job has not completed", nil)
		}
		return response.ServiceError(c, "Failed to get job result")
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		return response.NotFound(c, "Mix output no longer available")
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filepath.Base(result.OutputPath)))
	return c.Send(data)
}

// resolveKnobs folds query and form values into the canonical knob set.
func resolveKnobs(c *fiber.Ctx) model.MixRequest {
	return params.Resolve(
		func(key string) string { return c.Query(key) },
		func(key string) string { return c.FormValue(key) },
	)
}

// collectUploads pulls the three required files out of the multipart body.
// The returned closer releases every opened part.
func (h *MixHandler) collectUploads(c *fiber.Ctx) ([]service.AssetUpload, func(), error) {
	var uploads []service.AssetUpload
	var closers []func() error
	closeAll := func() {
		for _, cl := range closers {
			cl()
		}
	}

	for _, role := range uploadRoles {
		fh, err := c.FormFile(role)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%s file is required", role)
		}
		if fh.Size > MaxUploadBytes {
			closeAll()
			return nil, nil, fmt.Errorf("%s file exceeds %d MB limit", role, MaxUploadBytes>>20)
		}
		if !plausibleAudioType(fh.Header.Get("Content-Type")) {
			closeAll()
			return nil, nil, fmt.Errorf("%s file is not audio", role)
		}
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%s file is unreadable", role)
		}
		closers = append(closers, f.Close)
		uploads = append(uploads, service.AssetUpload{Role: role, Reader: f, Size: fh.Size})
	}

	return uploads, closeAll, nil
}

// plausibleAudioType accepts declared audio types plus the generic types
// browsers and CLI clients send when they don't sniff the file.
func plausibleAudioType(ct string) bool {
	if ct == "" || ct == "application/octet-stream" {
		return true
	}
	return strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/")
}

func (h *MixHandler) mapMixError(c *fiber.Ctx, err error) error {
	var inputErr *pipeline.InvalidInputError
	var stageErr *pipeline.StageError
	var cfgErr *pipeline.ConfigError
	switch {
	case errors.As(err, &inputErr):
		return response.InvalidInput(c, inputErr.Error())
	case errors.As(err, &stageErr):
		return response.EngineError(c, fmt.Sprintf("Mixing failed at stage %d", stageErr.Stage), fiber.Map{
			"stage":      stageErr.Stage,
			"diagnostic": stageErr.Diagnostic,
		})
	case errors.As(err, &cfgErr):
		log.Printf("Pipeline unavailable: %v", cfgErr)
		return response.ServiceError(c, cfgErr.Error())
	default:
		log.Printf("Mix failed: %v", err)
		return response.ServiceError(c, "Mixing failed")
	}
}

// discard removes a run workspace unless artifact retention is on.
func (h *MixHandler) discard(workDir string) {
	if h.keepWorkspaces || workDir == "" {
		return
	}
	if err := os.RemoveAll(workDir); err != nil {
		log.Printf("Failed to remove workspace %s: %v", workDir, err)
	}
}
