package intelligence

import (
	"strings"
	"sync"
)

// Option configures an Analyzer at construction time.
type Option func(*Analyzer)

// WithSentimentClamp overrides the [0,1] sentiment bound (exposed for tests
// that want to exercise clamping deterministically; production callers
// should leave this at the default).
func WithSentimentClamp(lo, hi float64) Option {
	return func(a *Analyzer) {
		a.sentimentLo, a.sentimentHi = lo, hi
	}
}

// Analyzer is a stateful per-call ConversationAnalyzer. Create one per Call;
// it caches the profile and language once confidently set.
//
// Not safe for concurrent use across calls sharing one instance — the
// pipeline runs exactly one Analyzer per call on the call's own
// state-machine goroutine, so the lock here only guards against accidental
// cross-goroutine reads (e.g. a metrics exporter snapshotting state).
type Analyzer struct {
	mu sync.Mutex

	tables KeywordTables

	sentimentLo, sentimentHi float64

	turnCount int

	cachedProfile  Profile
	profileLocked  bool
	cachedLanguage Language
	languageLocked bool
}

// NewAnalyzer returns a ready-to-use Analyzer.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{tables: DefaultKeywordTables(), sentimentLo: 0, sentimentHi: 1}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies the current user utterance given the prior turn (if
// any). Call once per completed user turn, in order; turnCount advances
// internally.
func (a *Analyzer) Analyze(text string, prior TurnInput) AnalysisResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	lower := strings.ToLower(text)
	priorLower := strings.ToLower(prior.Text)
	a.turnCount++

	stage := a.classifyStage(lower)
	profile := a.classifyProfile(lower, priorLower)
	objections := a.classifyObjections(lower)
	language := a.classifyLanguage(text)
	sentiment := a.classifySentiment(lower)

	return AnalysisResult{
		Stage:      stage,
		Profile:    profile,
		Objections: objections,
		Language:   language,
		Sentiment:  sentiment,
	}
}

func (a *Analyzer) classifyStage(lower string) Stage {
	switch {
	case a.turnCount < 3:
		return StageAwareness
	case containsAny(lower, a.tables.Decision):
		return StageDecision
	case containsAny(lower, a.tables.Consideration):
		return StageConsideration
	case a.turnCount >= 8:
		return StageDecision
	default:
		return StageAwareness
	}
}

func (a *Analyzer) classifyProfile(current, prior string) Profile {
	if a.profileLocked {
		return a.cachedProfile
	}

	scores := map[Profile]int{
		ProfileAnalytical:         score(current, prior, a.tables.Analytical),
		ProfileEmotional:          score(current, prior, a.tables.Emotional),
		ProfileSkeptical:          score(current, prior, a.tables.Skeptical),
		ProfileDecisionMaker:      score(current, prior, a.tables.DecisionMaker),
		ProfileRelationshipSeeker: score(current, prior, a.tables.RelationshipSeeker),
	}

	best := profileTieBreakOrder[0]
	bestScore := scores[best]
	for _, p := range profileTieBreakOrder[1:] {
		if scores[p] > bestScore {
			best, bestScore = p, scores[p]
		}
	}

	if bestScore >= 3 {
		a.cachedProfile = best
		a.profileLocked = true
		return best
	}
	return best
}

func score(current, prior string, keywords []string) int {
	s := 0
	if containsAny(current, keywords) {
		s += 3
	}
	if containsAny(prior, keywords) {
		s += 1
	}
	return s
}

func (a *Analyzer) classifyObjections(lower string) []Objection {
	var out []Objection
	if containsAny(lower, a.tables.PriceObjection) {
		out = append(out, ObjectionPrice)
	}
	if containsAny(lower, a.tables.QualityObjection) {
		out = append(out, ObjectionQuality)
	}
	if containsAny(lower, a.tables.TrustObjection) {
		out = append(out, ObjectionTrust)
	}
	if containsAny(lower, a.tables.TimingObjection) {
		out = append(out, ObjectionTiming)
	}
	if containsAny(lower, a.tables.NeedObjection) {
		out = append(out, ObjectionNeed)
	}
	return out
}

func (a *Analyzer) classifyLanguage(text string) Language {
	if a.languageLocked {
		return a.cachedLanguage
	}

	lang := a.detectLanguage(text)
	if lang != "" {
		a.cachedLanguage = lang
		a.languageLocked = true
		return lang
	}
	return LanguageEnglish
}

func (a *Analyzer) detectLanguage(text string) Language {
	switch {
	case devanagariRange.MatchString(text):
		if containsAny(text, marathiMarkers) {
			return LanguageMarathi
		}
		return LanguageHindi
	case tamilRange.MatchString(text):
		return LanguageTamil
	case teluguRange.MatchString(text):
		return LanguageTelugu
	case kannadaRange.MatchString(text):
		return LanguageKannada
	}

	lower := strings.ToLower(text)
	if containsAny(lower, a.tables.Hinglish) {
		return LanguageHinglish
	}
	if strings.TrimSpace(text) != "" {
		return LanguageEnglish
	}
	return ""
}

func (a *Analyzer) classifySentiment(lower string) float64 {
	sentiment := 0.5
	for _, kw := range a.tables.PositiveSentiment {
		if strings.Contains(lower, kw) {
			sentiment += 0.1
		}
	}
	for _, kw := range a.tables.NegativeSentiment {
		if strings.Contains(lower, kw) {
			sentiment -= 0.1
		}
	}
	if containsAny(lower, positiveIntensifiers) {
		sentiment += 0.05
	}
	if containsAny(lower, negativeIntensifiers) {
		sentiment -= 0.05
	}
	if sentiment > a.sentimentHi {
		sentiment = a.sentimentHi
	}
	if sentiment < a.sentimentLo {
		sentiment = a.sentimentLo
	}
	return sentiment
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
