package engine

import (
	"reflect"
	"testing"
)

func TestRenderArgs(t *testing.T) {
	req := &RenderRequest{
		Inputs:      []string{"/work/intro.mp3", "/work/narr.mp3"},
		FilterGraph: "[0:a]volume=0.25[mix]",
		OutputLabel: "mix",
		OutputPath:  "/work/core_mix.mp3",
		Spec: OutputSpec{
			SampleRate: 48000,
			Channels:   2,
			Codec:      "libmp3lame",
			Bitrate:    "192k",
		},
	}

	want := []string{
		"-hide_banner", "-v", "error", "-y",
		"-i", "/work/intro.mp3",
		"-i", "/work/narr.mp3",
		"-filter_complex", "[0:a]volume=0.25[mix]",
		"-map", "[mix]",
		"-ar", "48000",
		"-ac", "2",
		"-c:a", "libmp3lame",
		"-b:a", "192k",
		"/work/core_mix.mp3",
	}

	got := renderArgs(req)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("renderArgs mismatch\ngot:  %v\nwant: %v", got, want)
	}
}

func TestRenderArgs_GraphPassedVerbatim(t *testing.T) {
	// Values with spaces and punctuation stay as a single argv element;
	// nothing is shell-interpreted.
	req := &RenderRequest{
		Inputs:      []string{"in.mp3"},
		FilterGraph: "[0:a]amix=inputs=2:weights=0.25 1[mix]",
		OutputLabel: "mix",
		OutputPath:  "out.mp3",
		Spec:        OutputSpec{SampleRate: 48000, Channels: 2, Codec: "libmp3lame", Bitrate: "192k"},
	}

	args := renderArgs(req)
	found := false
	for _, a := range args {
		if a == "[0:a]amix=inputs=2:weights=0.25 1[mix]" {
			found = true
		}
	}
	if !found {
		t.Errorf("filtergraph not passed as a single argument: %v", args)
	}
}
