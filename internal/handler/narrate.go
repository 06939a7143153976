package handler

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/wadesconner/rtm-mixer/internal/model"
	"github.com/wadesconner/rtm-mixer/internal/service"
	"github.com/wadesconner/rtm-mixer/pkg/response"
)

// NarrateHandler serves POST /api/narrate.
type NarrateHandler struct {
	narrateService *service.NarrateService
	validator      *validator.Validate
}

func NewNarrateHandler(narrateService *service.NarrateService, v *validator.Validate) *NarrateHandler {
	return &NarrateHandler{narrateService: narrateService, validator: v}
}

// Narrate synthesizes narration audio from a script and returns the encoded
// stream directly. Clients typically feed it straight back into a mix.
func (h *NarrateHandler) Narrate(c *fiber.Ctx) error {
	var req model.NarrateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if !h.narrateService.IsConfigured() {
		return response.ServiceError(c, "TTS provider not configured")
	}

	audio, err := h.narrateService.Narrate(c.Context(), &req)
	if err != nil {
		log.Printf("Narration failed: %v", err)
		return response.TTSError(c, "Narration synthesis failed")
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="narration.mp3"`)
	return c.Send(audio)
}

// formatValidationErrors flattens validator output into field: tag pairs.
func formatValidationErrors(err error) map[string]string {
	out := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out[fe.Field()] = fe.Tag()
		}
	}
	return out
}
