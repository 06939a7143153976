package mix

import (
	"github.com/wadesconner/rtm-mixer/internal/model"
)

// Fixed processing constants. These are deliberately not knobs: the high-pass
// clears rumble below speech, and the duck envelope (fast attack, slow
// release) is what makes the bed breathe under narration.
const (
	SampleRate      = 48000
	VoiceHighpassHz = 120
	DuckAttackMs    = 5
	DuckReleaseMs   = 300
)

// Stream labels used across the stage graphs. Every stage produces [mix] so
// the executor can map a single known output. The voice label is "vo" to
// avoid binding collisions with input labels.
const (
	OutLabel   = "mix"
	bedLabel   = "bed"
	voiceLabel = "vo"
	duckLabel  = "bgduck"
	pgmLabel   = "pgm"
	tailLabel  = "tail"
)

func aformatStereo() []Filter {
	return []Filter{
		{Name: "aformat", Params: []Param{{Key: "channel_layouts", Value: "stereo"}}},
		{Name: "aresample", Params: []Param{{Value: itoa(SampleRate)}}},
	}
}

// BedVoiceMix builds the stage-1 graph: intro bed under ducked, weighted
// narration. Inputs: [0:a] bed, [1:a] narration.
//
// The amix runs with duration=shortest: the program ends when narration
// ends, and any bed tail past that point is discarded. Narration length
// governs program length.
func BedVoiceMix(req *model.MixRequest) *Graph {
	g := &Graph{}

	if req.VoiceOnly {
		// Narration alone, still high-passed, gained and delayed, so the
		// voice chain can be validated in isolation. The bed input is never
		// referenced.
		g.Add(Chain{
			Inputs:  []string{"1:a"},
			Filters: voiceChain(req),
			Outputs: []string{OutLabel},
		})
		return g
	}

	g.Add(Chain{
		Inputs: []string{"0:a"},
		Filters: append(aformatStereo(),
			Filter{Name: "volume", Params: []Param{{Value: ftoa(req.BedVolume)}}},
		),
		Outputs: []string{bedLabel},
	})

	g.Add(Chain{
		Inputs:  []string{"1:a"},
		Filters: voiceChain(req),
		Outputs: []string{voiceLabel},
	})

	g.Add(Chain{
		Inputs: []string{bedLabel, voiceLabel},
		Filters: []Filter{{
			Name: "sidechaincompress",
			Params: []Param{
				{Key: "threshold", Value: ftoa(req.DuckThreshold)},
				{Key: "ratio", Value: ftoa(req.DuckRatio)},
				{Key: "attack", Value: itoa(DuckAttackMs)},
				{Key: "release", Value: itoa(DuckReleaseMs)},
			},
		}},
		Outputs: []string{duckLabel},
	})

	g.Add(Chain{
		Inputs: []string{duckLabel, voiceLabel},
		Filters: []Filter{{
			Name: "amix",
			Params: []Param{
				{Key: "inputs", Value: "2"},
				{Key: "duration", Value: "shortest"},
				{Key: "dropout_transition", Value: "0"},
				{Key: "weights", Value: ftoa(req.BedWeight) + " " + ftoa(req.VoiceWeight)},
			},
		}},
		Outputs: []string{OutLabel},
	})

	return g
}

func voiceChain(req *model.MixRequest) []Filter {
	filters := append(aformatStereo(),
		Filter{Name: "highpass", Params: []Param{{Key: "f", Value: itoa(VoiceHighpassHz)}}},
		Filter{Name: "volume", Params: []Param{{Value: ftoa(req.VoiceGain)}}},
	)
	if req.NarrationDelay > 0 {
		ms := itoa(int(req.NarrationDelay * 1000))
		// adelay wants one value per channel
		filters = append(filters,
			Filter{Name: "adelay", Params: []Param{{Value: ms + "|" + ms}}},
		)
	}
	return filters
}

// CrossfadeToOutro builds the stage-2 graph: symmetric triangular crossfade
// from the stage-1 program into the outro bed. Inputs: [0:a] stage-1 output,
// [1:a] outro.
func CrossfadeToOutro(req *model.MixRequest) *Graph {
	g := &Graph{}

	g.Add(Chain{
		Inputs:  []string{"0:a"},
		Filters: aformatStereo(),
		Outputs: []string{pgmLabel},
	})

	g.Add(Chain{
		Inputs: []string{"1:a"},
		Filters: append(aformatStereo(),
			Filter{Name: "volume", Params: []Param{{Value: ftoa(req.OutroGain)}}},
		),
		Outputs: []string{tailLabel},
	})

	g.Add(Chain{
		Inputs: []string{pgmLabel, tailLabel},
		Filters: []Filter{{
			Name: "acrossfade",
			Params: []Param{
				{Key: "d", Value: ftoa(req.Crossfade)},
				{Key: "c1", Value: "tri"},
				{Key: "c2", Value: "tri"},
			},
		}},
		Outputs: []string{OutLabel},
	})

	return g
}

// LoudnessNormalize builds the stage-3 graph: one measurement-and-correction
// pass to the broadcast target. Input: [0:a] stage-2 output. Always the last
// stage when reached.
func LoudnessNormalize(req *model.MixRequest) *Graph {
	g := &Graph{}

	g.Add(Chain{
		Inputs: []string{"0:a"},
		Filters: []Filter{{
			Name: "loudnorm",
			Params: []Param{
				{Key: "I", Value: ftoa(req.TargetLoudness)},
				{Key: "TP", Value: ftoa(req.TruePeakCeiling)},
				{Key: "LRA", Value: ftoa(req.LoudnessRange)},
				{Key: "print_format", Value: "summary"},
			},
		}},
		Outputs: []string{OutLabel},
	})

	return g
}
