package intelligence

import "sync"

// stageCandidates seeds the candidate set for each buyer stage.
var stageCandidates = map[Stage][]Principle{
	StageAwareness:     {PrincipleAuthority, PrincipleLiking, PrincipleSocialProof},
	StageConsideration: {PrincipleReciprocity, PrincipleCommitment, PrincipleLiking},
	StageDecision:      {PrincipleCommitment, PrincipleScarcity, PrincipleLiking},
}

// profileAffinity narrows candidates by the caller's profile.
var profileAffinity = map[Profile][]Principle{
	ProfileAnalytical:         {PrincipleAuthority, PrincipleSocialProof, PrincipleCommitment},
	ProfileEmotional:          {PrincipleLiking, PrincipleReciprocity, PrincipleSocialProof},
	ProfileSkeptical:          {PrincipleAuthority, PrincipleSocialProof, PrincipleCommitment},
	ProfileDecisionMaker:      {PrincipleScarcity, PrincipleCommitment, PrincipleAuthority},
	ProfileRelationshipSeeker: {PrincipleLiking, PrincipleReciprocity, PrincipleCommitment},
}

// objectionAffinity narrows candidates further when objections are present.
var objectionAffinity = map[Objection][]Principle{
	ObjectionPrice:   {PrincipleScarcity, PrincipleReciprocity, PrincipleCommitment},
	ObjectionQuality: {PrincipleAuthority, PrincipleSocialProof},
	ObjectionTrust:   {PrincipleAuthority, PrincipleSocialProof, PrincipleLiking},
	ObjectionTiming:  {PrincipleScarcity, PrincipleCommitment},
	ObjectionNeed:    {PrincipleReciprocity, PrincipleSocialProof},
}

// systemInstructionFragments are the stable textual directives concatenated
// onto the base system prompt before each LLM turn.
var systemInstructionFragments = map[Principle]string{
	PrincipleReciprocity:  "Offer something of value before asking for commitment; acknowledge what the caller has already shared.",
	PrincipleCommitment:   "Invite a small, consistent next step that aligns with what the caller has already agreed to.",
	PrincipleSocialProof:  "Reference how similar customers have benefited to normalize the decision.",
	PrincipleAuthority:    "Ground claims in credentials, data, or third-party validation.",
	PrincipleLiking:       "Mirror the caller's tone and find authentic common ground before pitching.",
	PrincipleScarcity:     "Note a genuine time or availability constraint without manufacturing urgency.",
}

// SystemInstructionFragment returns the stable textual directive for p.
func SystemInstructionFragment(p Principle) string {
	return systemInstructionFragments[p]
}

const recencyWindowSize = 2

// PrincipleEngine selects one influence principle per turn, avoiding the
// last two principles used unless no alternative exists.
type PrincipleEngine struct {
	mu      sync.Mutex
	recency []Principle
}

// NewPrincipleEngine returns a ready-to-use PrincipleEngine.
func NewPrincipleEngine() *PrincipleEngine {
	return &PrincipleEngine{}
}

// Select chooses the next principle given the analyzer's output.
func (e *PrincipleEngine) Select(stage Stage, profile Profile, objections []Objection) Principle {
	e.mu.Lock()
	defer e.mu.Unlock()

	candidates := append([]Principle(nil), stageCandidates[stage]...)

	if affinity := profileAffinity[profile]; len(affinity) > 0 {
		if narrowed := intersect(candidates, affinity); len(narrowed) > 0 {
			candidates = narrowed
		}
	}

	for _, obj := range objections {
		if affinity := objectionAffinity[obj]; len(affinity) > 0 {
			if narrowed := intersect(candidates, affinity); len(narrowed) > 0 {
				candidates = narrowed
			}
		}
	}

	filtered := excludeAny(candidates, e.recency)
	if len(filtered) == 0 {
		e.recency = nil
		filtered = candidates
	}

	chosen := filtered[0]
	e.recordRecency(chosen)
	return chosen
}

func (e *PrincipleEngine) recordRecency(p Principle) {
	e.recency = append(e.recency, p)
	if len(e.recency) > recencyWindowSize {
		e.recency = e.recency[len(e.recency)-recencyWindowSize:]
	}
}

func intersect(a, b []Principle) []Principle {
	set := make(map[Principle]bool, len(b))
	for _, p := range b {
		set[p] = true
	}
	var out []Principle
	for _, p := range a {
		if set[p] {
			out = append(out, p)
		}
	}
	return out
}

func excludeAny(a, exclude []Principle) []Principle {
	if len(exclude) == 0 {
		return a
	}
	set := make(map[Principle]bool, len(exclude))
	for _, p := range exclude {
		set[p] = true
	}
	var out []Principle
	for _, p := range a {
		if !set[p] {
			out = append(out, p)
		}
	}
	return out
}
