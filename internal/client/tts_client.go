package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wadesconner/rtm-mixer/internal/config"
	"github.com/wadesconner/rtm-mixer/internal/model"
)

// SpeechSynthesizer defines the interface for narration synthesis. The
// pipeline treats TTS output as just another audio asset source.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, script, voice string) ([]byte, error)
	IsConfigured() bool
}

// TTSClient implements SpeechSynthesizer against a Deepgram-style speak API.
type TTSClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	defaultVoice string
}

// NewTTSClient creates a new speech synthesis client
func NewTTSClient(cfg *config.TTSConfig) *TTSClient {
	return &TTSClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		defaultVoice: cfg.Voice,
	}
}

// Synthesize converts a script to encoded narration audio. Responses under
// the minimum asset size are certainly invalid and rejected here, before the
// bytes ever reach the pipeline.
func (c *TTSClient) Synthesize(ctx context.Context, script, voice string) ([]byte, error) {
	if script == "" {
		return nil, fmt.Errorf("empty script")
	}
	if voice == "" {
		voice = c.defaultVoice
	}

	payload, err := json.Marshal(map[string]string{"text": script})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/speak?model=%s", c.baseURL, url.QueryEscape(voice))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts error (status %d): %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tts response: %w", err)
	}

	if len(audio) < model.MinAssetBytes {
		return nil, fmt.Errorf("tts returned %d bytes, below the %d byte minimum for valid audio",
			len(audio), model.MinAssetBytes)
	}

	return audio, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *TTSClient) IsConfigured() bool {
	return c.apiKey != ""
}
