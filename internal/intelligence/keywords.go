package intelligence

import "regexp"

var decisionKeywords = []string{
	"let's go", "lets go", "sign up", "sign me up", "proceed", "book now",
	"ready to buy", "purchase", "finalize", "confirm the order",
	"where do i pay", "go ahead and", "i'll take it", "i will take it",
}

var considerationKeywords = []string{
	"compare", "options", "how does it work", "tell me more", "pricing",
	"features", "difference between", "what if", "what about",
	"how much does", "explain",
}

var analyticalKeywords = []string{
	"data", "numbers", "roi", "statistics", "specifications", "metrics",
	"proof points", "benchmark", "case study",
}

var emotionalKeywords = []string{
	"feel", "worried", "excited", "love", "scared", "hope", "nervous",
	"stressed", "happy",
}

var skepticalKeywords = []string{
	"not sure", "doubt", "skeptical", "too good to be true", "prove it",
	"scam", "suspicious", "sounds fake",
}

var decisionMakerKeywords = []string{
	"i decide", "my call", "i'm the owner", "final say", "i approve",
	"i'm in charge", "i make the decisions",
}

var relationshipSeekerKeywords = []string{
	"trust", "relationship", "long term", "partner", "personal touch",
	"get to know", "work with you",
}

var priceObjectionKeywords = []string{
	"expensive", "cost", "price", "afford", "cheaper", "too much money",
	"budget",
}

var qualityObjectionKeywords = []string{
	"quality", "reliable", "durable", "defect", "breaks down", "cheaply made",
}

var trustObjectionKeywords = []string{
	"trust", "scam", "legit", "verify", "is this real", "fraud",
}

var timingObjectionKeywords = []string{
	"not now", "later", "busy", "next month", "call back", "bad time",
}

var needObjectionKeywords = []string{
	"don't need", "dont need", "no need", "not interested", "already have",
	"we're good", "we are good",
}

var positiveSentimentKeywords = []string{
	"great", "good", "awesome", "yes", "interested", "sounds good",
	"love it", "perfect", "fantastic",
}

var negativeSentimentKeywords = []string{
	"no", "not interested", "bad", "annoyed", "angry", "stop calling",
	"leave me alone", "don't call",
}

var positiveIntensifiers = []string{"very", "extremely", "really", "super"}
var negativeIntensifiers = []string{"slightly", "kind of", "a bit", "somewhat"}

// hinglishKeywords are romanized Hindi words common in code-switched speech;
// their presence (absent any Devanagari/other-script characters) classifies
// a turn as hinglish rather than en.
var hinglishKeywords = []string{
	"hai", "hain", "nahi", "kya", "aap", "namaste", "kaise", "accha",
	"theek", "haan", "bhai", "kyun", "matlab", "bilkul",
}

var (
	devanagariRange = regexp.MustCompile(`[\x{0900}-\x{097F}]`)
	tamilRange      = regexp.MustCompile(`[\x{0B80}-\x{0BFF}]`)
	teluguRange     = regexp.MustCompile(`[\x{0C00}-\x{0C7F}]`)
	kannadaRange    = regexp.MustCompile(`[\x{0C80}-\x{0CFF}]`)
)

// marathiMarkers distinguish Marathi from Hindi within the shared
// Devanagari script range.
var marathiMarkers = []string{"आहे", "तुम्ही", "काय", "मराठी"}
