package intelligence

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"

	"github.com/voicecore/callcore/pkg/model"
)

// syntheticSilentClipID identifies the clip HedgeEngine returns when its
// catalog is empty.
const syntheticSilentClipID = "__synthetic_silence__"

// syntheticSilentDurationSec is the duration of the synthetic silent clip.
const syntheticSilentDurationSec = 2.0

// indianLanguages are the languages that fall back to hinglish when neither
// the detected language nor en has a clip.
var indianLanguages = map[Language]bool{
	LanguageHindi:   true,
	LanguageMarathi: true,
	LanguageTamil:   true,
	LanguageTelugu:  true,
	LanguageKannada: true,
}

// clipEntry pairs a clip with its pre-warm ranking score.
type clipEntry struct {
	clip  model.FillerClip
	score float64
}

// clipHeap is a max-heap over clipEntry ordered by score, grounded on the
// same container/heap pattern as a priority-ordered playback queue.
type clipHeap []clipEntry

func (h clipHeap) Len() int            { return len(h) }
func (h clipHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h clipHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *clipHeap) Push(x any)        { *h = append(*h, x.(clipEntry)) }
func (h *clipHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// HedgeEngine indexes filler clips by language, principle, and profile, and
// selects one per gap while avoiding repetition within a call's usedSet.
//
// The index built at load time is read-only thereafter; HedgeEngine is safe
// for concurrent use across calls.
type HedgeEngine struct {
	all  []model.FillerClip
	byID map[string]model.FillerClip

	byLanguage  map[Language][]model.FillerClip
	byPrinciple map[Principle][]model.FillerClip
	byProfile   map[Profile][]model.FillerClip

	fallback SemanticFallback

	mu        sync.RWMutex
	preWarmed []model.FillerClip
}

// SemanticFallback finds clip IDs whose spoken content is closest to a free
// text query. Implemented by fillerindex.Index; consulted only when the
// exact metadata filter matches nothing.
type SemanticFallback interface {
	Nearest(ctx context.Context, text string, topK int) ([]string, error)
}

// HedgeOption configures a HedgeEngine at construction time.
type HedgeOption func(*HedgeEngine)

// WithSemanticFallback attaches a semantic clip lookup consulted when the
// exact {language, principle, profile} filter produces no candidates.
func WithSemanticFallback(f SemanticFallback) HedgeOption {
	return func(e *HedgeEngine) {
		e.fallback = f
	}
}

// NewHedgeEngine builds inverted indexes over clips. Call PreWarm afterward
// to populate the in-memory hot set.
func NewHedgeEngine(clips []model.FillerClip, opts ...HedgeOption) *HedgeEngine {
	e := &HedgeEngine{
		all:         clips,
		byID:        map[string]model.FillerClip{},
		byLanguage:  map[Language][]model.FillerClip{},
		byPrinciple: map[Principle][]model.FillerClip{},
		byProfile:   map[Profile][]model.FillerClip{},
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, c := range clips {
		e.byID[c.ID] = c
		for _, l := range c.Metadata.Languages {
			lang := Language(l)
			e.byLanguage[lang] = append(e.byLanguage[lang], c)
		}
		for _, p := range c.Metadata.Principles {
			pr := Principle(p)
			e.byPrinciple[pr] = append(e.byPrinciple[pr], c)
		}
		for _, p := range c.Metadata.Profiles {
			pf := Profile(p)
			e.byProfile[pf] = append(e.byProfile[pf], c)
		}
	}
	return e
}

// PreWarm ranks all clips by completionRate*principleReinforcement and
// retains the top n in an in-memory hot set. n<=0 disables pre-warming.
func (e *HedgeEngine) PreWarm(n int) {
	if n <= 0 {
		return
	}
	h := make(clipHeap, 0, len(e.all))
	for _, c := range e.all {
		h = append(h, clipEntry{
			clip:  c,
			score: c.Metadata.Effectiveness.CompletionRate * c.Metadata.Effectiveness.PrincipleReinforcement,
		})
	}
	heap.Init(&h)

	warm := make([]model.FillerClip, 0, n)
	for i := 0; i < n && h.Len() > 0; i++ {
		warm = append(warm, heap.Pop(&h).(clipEntry).clip)
	}

	e.mu.Lock()
	e.preWarmed = warm
	e.mu.Unlock()
}

// PreWarmed returns the current pre-warmed hot set.
func (e *HedgeEngine) PreWarmed() []model.FillerClip {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.FillerClip(nil), e.preWarmed...)
}

// SelectFiller picks a filler clip for the given context, avoiding clips in
// usedSet unless no alternative exists. Returns (clip, true) or the
// synthetic silent clip with ok=false if the catalog is entirely empty.
func (e *HedgeEngine) SelectFiller(language Language, principle Principle, profile Profile, usedSet map[string]bool) (model.FillerClip, bool) {
	if len(e.all) == 0 {
		return syntheticSilentClip(), false
	}

	candidates := e.byLanguage[language]
	if len(candidates) == 0 {
		candidates = e.byLanguage[LanguageEnglish]
	}
	if len(candidates) == 0 && indianLanguages[language] {
		candidates = e.byLanguage[LanguageHinglish]
	}
	if len(candidates) == 0 {
		candidates = e.all
	}

	if narrowed := intersectClips(candidates, e.byPrinciple[principle]); len(narrowed) > 0 {
		candidates = narrowed
	}

	if narrowed := intersectClips(candidates, e.byProfile[profile]); len(narrowed) > 0 {
		candidates = narrowed
	}

	unused := filterUsed(candidates, usedSet)
	if len(unused) > 0 {
		candidates = unused
	}

	best := bestByEffectiveness(candidates)
	return best, true
}

// SelectFillerContext behaves like SelectFiller but, when no unused clip
// matches the full {language, principle, profile} filter exactly, first
// consults the semantic fallback with the caller's latest utterance. If the
// fallback has nothing either, selection proceeds through SelectFiller's
// metadata-relaxation chain as usual.
func (e *HedgeEngine) SelectFillerContext(ctx context.Context, userText string, language Language, principle Principle, profile Profile, usedSet map[string]bool) (model.FillerClip, bool) {
	if e.fallback != nil && userText != "" && len(e.all) > 0 && !e.hasExactMatch(language, principle, profile, usedSet) {
		if clip, ok := e.semanticSelect(ctx, userText, usedSet); ok {
			return clip, true
		}
	}
	return e.SelectFiller(language, principle, profile, usedSet)
}

func (e *HedgeEngine) hasExactMatch(language Language, principle Principle, profile Profile, usedSet map[string]bool) bool {
	c := intersectClips(e.byLanguage[language], e.byPrinciple[principle])
	c = intersectClips(c, e.byProfile[profile])
	return len(filterUsed(c, usedSet)) > 0
}

func (e *HedgeEngine) semanticSelect(ctx context.Context, text string, usedSet map[string]bool) (model.FillerClip, bool) {
	ids, err := e.fallback.Nearest(ctx, text, 5)
	if err != nil {
		slog.Warn("hedge: semantic fallback lookup failed", "err", err)
		return model.FillerClip{}, false
	}
	for _, id := range ids {
		if usedSet[id] {
			continue
		}
		if clip, ok := e.byID[id]; ok {
			return clip, true
		}
	}
	return model.FillerClip{}, false
}

func intersectClips(a, b []model.FillerClip) []model.FillerClip {
	if len(b) == 0 {
		return nil
	}
	ids := make(map[string]bool, len(b))
	for _, c := range b {
		ids[c.ID] = true
	}
	var out []model.FillerClip
	for _, c := range a {
		if ids[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func filterUsed(clips []model.FillerClip, usedSet map[string]bool) []model.FillerClip {
	var out []model.FillerClip
	for _, c := range clips {
		if !usedSet[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func bestByEffectiveness(clips []model.FillerClip) model.FillerClip {
	best := clips[0]
	bestScore := best.Metadata.Effectiveness.CompletionRate * best.Metadata.Effectiveness.PrincipleReinforcement
	for _, c := range clips[1:] {
		s := c.Metadata.Effectiveness.CompletionRate * c.Metadata.Effectiveness.PrincipleReinforcement
		if s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

func syntheticSilentClip() model.FillerClip {
	return model.FillerClip{
		ID:          syntheticSilentClipID,
		DurationSec: syntheticSilentDurationSec,
	}
}
