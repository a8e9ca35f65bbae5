package intelligence

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordTables holds the classifier keyword lists the Analyzer matches
// against. Operators can override any subset from a YAML file
// (LoadKeywordTables); fields left empty fall back to the built-in lists,
// so a partial override file only has to name the tables it tunes.
type KeywordTables struct {
	Decision      []string `yaml:"decision"`
	Consideration []string `yaml:"consideration"`

	Analytical         []string `yaml:"analytical"`
	Emotional          []string `yaml:"emotional"`
	Skeptical          []string `yaml:"skeptical"`
	DecisionMaker      []string `yaml:"decision_maker"`
	RelationshipSeeker []string `yaml:"relationship_seeker"`

	PriceObjection   []string `yaml:"price_objection"`
	QualityObjection []string `yaml:"quality_objection"`
	TrustObjection   []string `yaml:"trust_objection"`
	TimingObjection  []string `yaml:"timing_objection"`
	NeedObjection    []string `yaml:"need_objection"`

	PositiveSentiment []string `yaml:"positive_sentiment"`
	NegativeSentiment []string `yaml:"negative_sentiment"`

	Hinglish []string `yaml:"hinglish"`
}

// DefaultKeywordTables returns the built-in keyword lists.
func DefaultKeywordTables() KeywordTables {
	return KeywordTables{
		Decision:           decisionKeywords,
		Consideration:      considerationKeywords,
		Analytical:         analyticalKeywords,
		Emotional:          emotionalKeywords,
		Skeptical:          skepticalKeywords,
		DecisionMaker:      decisionMakerKeywords,
		RelationshipSeeker: relationshipSeekerKeywords,
		PriceObjection:     priceObjectionKeywords,
		QualityObjection:   qualityObjectionKeywords,
		TrustObjection:     trustObjectionKeywords,
		TimingObjection:    timingObjectionKeywords,
		NeedObjection:      needObjectionKeywords,
		PositiveSentiment:  positiveSentimentKeywords,
		NegativeSentiment:  negativeSentimentKeywords,
		Hinglish:           hinglishKeywords,
	}
}

// withDefaults fills any empty table from the built-ins.
func (t KeywordTables) withDefaults() KeywordTables {
	def := DefaultKeywordTables()
	fill := func(dst *[]string, fallback []string) {
		if len(*dst) == 0 {
			*dst = fallback
		}
	}
	fill(&t.Decision, def.Decision)
	fill(&t.Consideration, def.Consideration)
	fill(&t.Analytical, def.Analytical)
	fill(&t.Emotional, def.Emotional)
	fill(&t.Skeptical, def.Skeptical)
	fill(&t.DecisionMaker, def.DecisionMaker)
	fill(&t.RelationshipSeeker, def.RelationshipSeeker)
	fill(&t.PriceObjection, def.PriceObjection)
	fill(&t.QualityObjection, def.QualityObjection)
	fill(&t.TrustObjection, def.TrustObjection)
	fill(&t.TimingObjection, def.TimingObjection)
	fill(&t.NeedObjection, def.NeedObjection)
	fill(&t.PositiveSentiment, def.PositiveSentiment)
	fill(&t.NegativeSentiment, def.NegativeSentiment)
	fill(&t.Hinglish, def.Hinglish)
	return t
}

// LoadKeywordTables reads a YAML keyword-table override file. Unknown keys
// are rejected so a typo in a table name fails loudly instead of silently
// keeping the built-in list.
func LoadKeywordTables(path string) (KeywordTables, error) {
	f, err := os.Open(path)
	if err != nil {
		return KeywordTables{}, fmt.Errorf("intelligence: open keyword tables: %w", err)
	}
	defer f.Close()

	var t KeywordTables
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return KeywordTables{}, fmt.Errorf("intelligence: decode keyword tables %q: %w", path, err)
	}
	return t, nil
}

// WithKeywordTables overrides the Analyzer's classifier keyword lists.
// Empty tables keep their built-in defaults.
func WithKeywordTables(t KeywordTables) Option {
	return func(a *Analyzer) {
		a.tables = t.withDefaults()
	}
}
