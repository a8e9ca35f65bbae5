package model

// FillerEffectiveness tracks how well a FillerClip performs historically.
// HedgeEngine ranks candidate clips by CompletionRate * PrincipleReinforcement.
type FillerEffectiveness struct {
	CompletionRate         float64 `yaml:"completion_rate"`
	SentimentLift          float64 `yaml:"sentiment_lift"`
	PrincipleReinforcement float64 `yaml:"principle_reinforcement"`
}

// FillerMetadata describes the applicability of a FillerClip.
type FillerMetadata struct {
	Languages     []string            `yaml:"languages"`
	Principles    []string            `yaml:"principles"`
	Profiles      []string            `yaml:"profiles"`
	Tone          string              `yaml:"tone"`
	Effectiveness FillerEffectiveness `yaml:"effectiveness"`
}

// FillerClip is a pre-recorded filler audio asset stored at 24 kHz PCM16.
// AudioPath points at the on-disk asset; the audio is resampled on play and
// never cached per output rate.
type FillerClip struct {
	ID          string         `yaml:"id"`
	AudioPath   string         `yaml:"audio_path"`
	DurationSec float64        `yaml:"duration_sec"`
	Metadata    FillerMetadata `yaml:"metadata"`

	// Transcript is the clip's spoken text. Feeds the semantic fallback
	// index, which picks the nearest-transcript clip when no clip matches
	// a HedgeEngine filter exactly.
	Transcript string `yaml:"transcript"`
}
