// Package intelligence implements the per-call conversation analysis
// pipeline: turn classification (ConversationAnalyzer), persuasion-principle
// selection (PrincipleEngine), and filler-clip selection (HedgeEngine).
//
// All three are pure-ish, low-latency components intended to run inline on
// the state-machine tick path: no network I/O, no LLM calls, keyword and
// table-driven heuristics only.
package intelligence

// Stage is the buyer-journey stage inferred from the conversation so far.
type Stage string

const (
	StageAwareness     Stage = "AWARENESS"
	StageConsideration Stage = "CONSIDERATION"
	StageDecision      Stage = "DECISION"
)

// Profile is the caller's persuasion-relevant personality classification.
type Profile string

const (
	ProfileAnalytical         Profile = "ANALYTICAL"
	ProfileEmotional          Profile = "EMOTIONAL"
	ProfileSkeptical          Profile = "SKEPTICAL"
	ProfileDecisionMaker      Profile = "DECISION_MAKER"
	ProfileRelationshipSeeker Profile = "RELATIONSHIP_SEEKER"
)

// profileTieBreakOrder is the fixed tie-break order used when two profiles
// score equally.
var profileTieBreakOrder = []Profile{
	ProfileAnalytical,
	ProfileEmotional,
	ProfileSkeptical,
	ProfileDecisionMaker,
	ProfileRelationshipSeeker,
}

// Objection is a caller pushback category. A turn may surface more than one.
type Objection string

const (
	ObjectionPrice   Objection = "PRICE"
	ObjectionQuality Objection = "QUALITY"
	ObjectionTrust   Objection = "TRUST"
	ObjectionTiming  Objection = "TIMING"
	ObjectionNeed    Objection = "NEED"
)

// Language is the detected spoken/written language of a turn.
type Language string

const (
	LanguageEnglish  Language = "en"
	LanguageHindi    Language = "hi"
	LanguageMarathi  Language = "mr"
	LanguageTamil    Language = "ta"
	LanguageTelugu   Language = "te"
	LanguageKannada  Language = "kn"
	LanguageHinglish Language = "hinglish"
)

// Principle is one of the six Cialdini influence principles the PrincipleEngine
// chooses among.
type Principle string

const (
	PrincipleReciprocity  Principle = "RECIPROCITY"
	PrincipleCommitment   Principle = "COMMITMENT"
	PrincipleSocialProof  Principle = "SOCIAL_PROOF"
	PrincipleAuthority    Principle = "AUTHORITY"
	PrincipleLiking       Principle = "LIKING"
	PrincipleScarcity     Principle = "SCARCITY"
)

// AnalysisResult is the ConversationAnalyzer's per-turn output.
type AnalysisResult struct {
	Stage       Stage
	Profile     Profile
	Objections  []Objection
	Language    Language
	Sentiment   float64
}

// TurnInput is the minimal prior-turn context the analyzer consults for
// weighted keyword scoring (1x weight, vs. 3x for the current turn).
type TurnInput struct {
	Text string
}
