package service

import (
	"context"
	"fmt"

	"github.com/wadesconner/rtm-mixer/internal/client"
	"github.com/wadesconner/rtm-mixer/internal/model"
)

// NarrateService turns a script into narration audio via the configured TTS
// provider. The returned bytes are a complete encoded stream, suitable for
// feeding straight back into a mix as the narration asset.
type NarrateService struct {
	tts client.SpeechSynthesizer
}

func NewNarrateService(tts client.SpeechSynthesizer) *NarrateService {
	return &NarrateService{tts: tts}
}

// IsConfigured reports whether a TTS provider is wired up at all.
func (s *NarrateService) IsConfigured() bool {
	return s.tts != nil && s.tts.IsConfigured()
}

// Narrate synthesizes the script and returns the audio bytes.
func (s *NarrateService) Narrate(ctx context.Context, req *model.NarrateRequest) ([]byte, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("TTS provider not configured")
	}
	return s.tts.Synthesize(ctx, req.Script, req.Voice)
}
