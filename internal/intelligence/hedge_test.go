package intelligence_test

import (
	"testing"

	"github.com/voicecore/callcore/internal/intelligence"
	"github.com/voicecore/callcore/pkg/model"
)

func clip(id string, languages, principles, profiles []string, completion, reinforcement float64) model.FillerClip {
	return model.FillerClip{
		ID:          id,
		AudioPath:   "/fillers/" + id + ".wav",
		DurationSec: 1.5,
		Metadata: model.FillerMetadata{
			Languages:  languages,
			Principles: principles,
			Profiles:   profiles,
			Effectiveness: model.FillerEffectiveness{
				CompletionRate:         completion,
				PrincipleReinforcement: reinforcement,
			},
		},
	}
}

func TestHedgeEngineEmptyCatalogReturnsSynthetic(t *testing.T) {
	e := intelligence.NewHedgeEngine(nil)
	got, ok := e.SelectFiller(intelligence.LanguageEnglish, intelligence.PrincipleLiking, intelligence.ProfileAnalytical, nil)
	if ok {
		t.Error("expected ok=false for empty catalog")
	}
	if got.DurationSec != 2.0 {
		t.Errorf("synthetic clip duration = %f, want 2.0", got.DurationSec)
	}
}

func TestHedgeEngineFiltersByLanguagePrincipleProfile(t *testing.T) {
	clips := []model.FillerClip{
		clip("en-liking-analytical", []string{"en"}, []string{"LIKING"}, []string{"ANALYTICAL"}, 0.9, 0.9),
		clip("en-scarcity-analytical", []string{"en"}, []string{"SCARCITY"}, []string{"ANALYTICAL"}, 0.5, 0.5),
		clip("hi-liking-analytical", []string{"hi"}, []string{"LIKING"}, []string{"ANALYTICAL"}, 0.9, 0.9),
	}
	e := intelligence.NewHedgeEngine(clips)

	got, ok := e.SelectFiller(intelligence.LanguageEnglish, intelligence.PrincipleLiking, intelligence.ProfileAnalytical, nil)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got.ID != "en-liking-analytical" {
		t.Errorf("got clip %q, want en-liking-analytical", got.ID)
	}
}

func TestHedgeEngineFallsBackToEnglishThenHinglish(t *testing.T) {
	clips := []model.FillerClip{
		clip("hinglish-1", []string{"hinglish"}, []string{"LIKING"}, []string{"ANALYTICAL"}, 0.5, 0.5),
	}
	e := intelligence.NewHedgeEngine(clips)

	got, ok := e.SelectFiller(intelligence.LanguageHindi, intelligence.PrincipleLiking, intelligence.ProfileAnalytical, nil)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got.ID != "hinglish-1" {
		t.Errorf("got clip %q, want hinglish-1 (fallback from hi)", got.ID)
	}
}

func TestHedgeEngineAvoidsUsedSetUntilExhausted(t *testing.T) {
	clips := []model.FillerClip{
		clip("a", []string{"en"}, []string{"LIKING"}, []string{"ANALYTICAL"}, 0.9, 0.9),
		clip("b", []string{"en"}, []string{"LIKING"}, []string{"ANALYTICAL"}, 0.5, 0.5),
	}
	e := intelligence.NewHedgeEngine(clips)

	used := map[string]bool{"a": true}
	got, ok := e.SelectFiller(intelligence.LanguageEnglish, intelligence.PrincipleLiking, intelligence.ProfileAnalytical, used)
	if !ok || got.ID != "b" {
		t.Fatalf("got %q (ok=%v), want b", got.ID, ok)
	}

	used["b"] = true
	got, ok = e.SelectFiller(intelligence.LanguageEnglish, intelligence.PrincipleLiking, intelligence.ProfileAnalytical, used)
	if !ok {
		t.Fatal("expected ok=true even when usedSet covers the whole catalog (repetition allowed)")
	}
	if got.ID != "a" {
		t.Errorf("got %q, want a (highest effectiveness, repetition allowed)", got.ID)
	}
}

func TestHedgeEnginePreWarmRanksByEffectiveness(t *testing.T) {
	clips := []model.FillerClip{
		clip("low", []string{"en"}, []string{"LIKING"}, []string{"ANALYTICAL"}, 0.1, 0.1),
		clip("high", []string{"en"}, []string{"LIKING"}, []string{"ANALYTICAL"}, 0.9, 0.9),
		clip("mid", []string{"en"}, []string{"LIKING"}, []string{"ANALYTICAL"}, 0.5, 0.5),
	}
	e := intelligence.NewHedgeEngine(clips)
	e.PreWarm(2)

	warm := e.PreWarmed()
	if len(warm) != 2 {
		t.Fatalf("pre-warmed set size = %d, want 2", len(warm))
	}
	if warm[0].ID != "high" {
		t.Errorf("warm[0] = %q, want high", warm[0].ID)
	}
}
