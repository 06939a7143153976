package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/wadesconner/rtm-mixer/internal/config"
)

// FFmpeg runs the engine as subprocesses. Arguments are built from typed
// values and passed as an argv slice; request values never reach a shell.
type FFmpeg struct {
	binPath   string
	probePath string
}

func NewFFmpeg(cfg *config.EngineConfig) *FFmpeg {
	return &FFmpeg{
		binPath:   cfg.FFmpegPath,
		probePath: cfg.FFprobePath,
	}
}

// Available reports whether the engine binary can be resolved. Callers treat
// a missing engine as a configuration error, not a render failure.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.binPath)
	return err == nil
}

// Render executes one filtergraph and encodes the result. Engine stderr is
// captured and returned as the diagnostic on failure.
func (f *FFmpeg) Render(ctx context.Context, req *RenderRequest) error {
	cmd := exec.CommandContext(ctx, f.binPath, renderArgs(req)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &RenderError{
			Diagnostic: stderr.String(),
			Err:        fmt.Errorf("engine render failed: %w", err),
		}
	}
	return nil
}

func renderArgs(req *RenderRequest) []string {
	args := []string{"-hide_banner", "-v", "error", "-y"}
	for _, in := range req.Inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", req.FilterGraph,
		"-map", "["+req.OutputLabel+"]",
		"-ar", strconv.Itoa(req.Spec.SampleRate),
		"-ac", strconv.Itoa(req.Spec.Channels),
		"-c:a", req.Spec.Codec,
		"-b:a", req.Spec.Bitrate,
		req.OutputPath,
	)
	return args
}

type probeOutput struct {
	Streams []struct {
		Channels   int    `json:"channels"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns basic stream properties of an audio file.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	cmd := exec.CommandContext(ctx, f.probePath,
		"-hide_banner", "-v", "error",
		"-show_entries", "stream=channels,sample_rate",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("probe failed for %s: %w", path, err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("probe output unparsable for %s: %w", path, err)
	}

	info := &StreamInfo{}
	if len(parsed.Streams) > 0 {
		info.Channels = parsed.Streams[0].Channels
		info.SampleRate, _ = strconv.Atoi(parsed.Streams[0].SampleRate)
	}
	info.Duration, _ = strconv.ParseFloat(parsed.Format.Duration, 64)
	return info, nil
}
