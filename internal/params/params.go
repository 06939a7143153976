// Package params resolves raw mixing knobs into one canonical MixRequest.
//
// Every knob can arrive from two transports (query string or form field) and
// falls back to a compiled-in default. Resolution never fails: a value that
// does not parse is treated as absent. A caller sending garbage gets the
// documented default, not an error.
package params

import (
	"strconv"

	"github.com/wadesconner/rtm-mixer/internal/model"
)

// Getter looks up one raw value by wire name, returning "" when absent.
// fiber's Ctx.Query and Ctx.FormValue both satisfy this shape.
type Getter func(key string) string

// Compiled-in defaults, matching the CLI mixer's argument defaults.
const (
	DefaultBedVolume       = 0.25
	DefaultVoiceGain       = 1.5
	DefaultBedWeight       = 0.25
	DefaultVoiceWeight     = 1.0
	DefaultNarrationDelay  = 0.0
	DefaultDuckThreshold   = 0.02
	DefaultDuckRatio       = 12.0
	DefaultCrossfade       = 1.0
	DefaultOutroGain       = 1.0
	DefaultTargetLoudness  = -16.0
	DefaultTruePeakCeiling = -1.5
	DefaultLoudnessRange   = 11.0
)

// Resolve builds the canonical MixRequest from up to two candidate sources
// per knob. Precedence: query > form > default.
func Resolve(query, form Getter) model.MixRequest {
	return model.MixRequest{
		BedVolume:       resolveFloat(query, form, "bg_vol", DefaultBedVolume),
		VoiceGain:       resolveFloat(query, form, "voice_gain", DefaultVoiceGain),
		BedWeight:       resolveFloat(query, form, "bed_weight", DefaultBedWeight),
		VoiceWeight:     resolveFloat(query, form, "voice_weight", DefaultVoiceWeight),
		NarrationDelay:  resolveFloat(query, form, "narr_delay", DefaultNarrationDelay),
		DuckThreshold:   resolveFloat(query, form, "duck_threshold", DefaultDuckThreshold),
		DuckRatio:       resolveFloat(query, form, "duck_ratio", DefaultDuckRatio),
		Crossfade:       resolveFloat(query, form, "xfade", DefaultCrossfade),
		OutroGain:       resolveFloat(query, form, "outro_gain", DefaultOutroGain),
		TargetLoudness:  resolveFloat(query, form, "lufs", DefaultTargetLoudness),
		TruePeakCeiling: resolveFloat(query, form, "tp", DefaultTruePeakCeiling),
		LoudnessRange:   resolveFloat(query, form, "lra", DefaultLoudnessRange),
		VoiceOnly:       resolveBool(query, form, "voice_only"),
		Step1Only:       resolveBool(query, form, "step1_only"),
	}
}

func resolveFloat(query, form Getter, key string, def float64) float64 {
	if v, ok := parseFloat(query(key)); ok {
		return v
	}
	if v, ok := parseFloat(form(key)); ok {
		return v
	}
	return def
}

func parseFloat(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// resolveBool coerces a flag to exactly 0 or 1: parse failure counts as 0,
// and any integer other than 1 is false.
func resolveBool(query, form Getter, key string) bool {
	if v, ok := parseInt(query(key)); ok {
		return v == 1
	}
	if v, ok := parseInt(form(key)); ok {
		return v == 1
	}
	return false
}

func parseInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
