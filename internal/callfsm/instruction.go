package callfsm

import (
	"strings"

	"github.com/voicecore/callcore/internal/intelligence"
)

// stageFragments mirrors intelligence.SystemInstructionFragment's per-
// principle directives, but for the caller's inferred buyer-journey stage.
var stageFragments = map[intelligence.Stage]string{
	intelligence.StageAwareness:     "The caller is still becoming aware of the problem; lead with orientation, not a pitch.",
	intelligence.StageConsideration: "The caller is weighing options; compare concretely rather than repeating generic claims.",
	intelligence.StageDecision:      "The caller is close to deciding; keep the next step small and unambiguous.",
}

var objectionFragments = map[intelligence.Objection]string{
	intelligence.ObjectionPrice:   "Address cost directly; don't deflect.",
	intelligence.ObjectionQuality: "Address the quality concern with specifics, not reassurance alone.",
	intelligence.ObjectionTrust:   "Rebuild trust before asking for anything further.",
	intelligence.ObjectionTiming:  "Respect the timing concern; don't pressure a date.",
	intelligence.ObjectionNeed:    "Re-establish why this matters to the caller specifically.",
}

var languageFragments = map[intelligence.Language]string{
	intelligence.LanguageHindi:    "Respond in Hindi.",
	intelligence.LanguageMarathi:  "Respond in Marathi.",
	intelligence.LanguageTamil:    "Respond in Tamil.",
	intelligence.LanguageTelugu:   "Respond in Telugu.",
	intelligence.LanguageKannada:  "Respond in Kannada.",
	intelligence.LanguageHinglish: "Respond in a natural Hindi-English mix, matching the caller's register.",
}

// buildSystemInstruction composes the base prompt with the principle,
// stage, objection, and language fragments for the per-turn
// system-instruction refresh.
func buildSystemInstruction(base string, principle intelligence.Principle, analysis intelligence.AnalysisResult) string {
	var b strings.Builder
	b.WriteString(base)

	if frag := intelligence.SystemInstructionFragment(principle); frag != "" {
		b.WriteString("\n\n")
		b.WriteString(frag)
	}
	if frag := stageFragments[analysis.Stage]; frag != "" {
		b.WriteString("\n")
		b.WriteString(frag)
	}
	for _, obj := range analysis.Objections {
		if frag := objectionFragments[obj]; frag != "" {
			b.WriteString("\n")
			b.WriteString(frag)
		}
	}
	if frag := languageFragments[analysis.Language]; frag != "" {
		b.WriteString("\n")
		b.WriteString(frag)
	}
	return b.String()
}
