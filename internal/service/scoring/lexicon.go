package scoring

// Fixed lexicons for tokenization and heuristic sentiment. These are
// tunable defaults, not load-bearing business logic; swap them out via
// CalculatorConfig if a deployment needs a different vocabulary.

// stopWords are dropped before TF-IDF vectorization.
var stopWords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "after": {}, "again": {}, "all": {},
	"am": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "because": {}, "been": {}, "before": {}, "being": {}, "below": {},
	"between": {}, "both": {}, "but": {}, "by": {}, "can": {}, "could": {},
	"did": {}, "do": {}, "does": {}, "doing": {}, "down": {}, "during": {},
	"each": {}, "few": {}, "for": {}, "from": {}, "further": {}, "had": {},
	"has": {}, "have": {}, "having": {}, "he": {}, "her": {}, "here": {},
	"hers": {}, "him": {}, "his": {}, "how": {}, "i": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "its": {}, "just": {}, "me": {}, "more": {},
	"most": {}, "my": {}, "no": {}, "nor": {}, "not": {}, "now": {}, "of": {},
	"off": {}, "on": {}, "once": {}, "only": {}, "or": {}, "other": {},
	"our": {}, "out": {}, "over": {}, "own": {}, "same": {}, "she": {},
	"so": {}, "some": {}, "such": {}, "than": {}, "that": {}, "the": {},
	"their": {}, "them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "those": {}, "through": {}, "to": {}, "too": {}, "under": {},
	"until": {}, "up": {}, "very": {}, "was": {}, "we": {}, "were": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {}, "who": {},
	"whom": {}, "why": {}, "will": {}, "with": {}, "would": {}, "you": {},
	"your": {}, "yours": {},
}

// positiveWords and negativeWords drive the lexical sentiment
// heuristic. Skewed toward social-media vocabulary.
var positiveWords = map[string]struct{}{
	"amazing": {}, "awesome": {}, "beautiful": {}, "best": {}, "breakthrough": {},
	"brilliant": {}, "celebrate": {}, "excellent": {}, "excited": {},
	"exciting": {}, "fantastic": {}, "favorite": {}, "fun": {}, "good": {},
	"great": {}, "happy": {}, "helpful": {}, "hilarious": {}, "impressive": {},
	"incredible": {}, "innovative": {}, "inspiring": {}, "love": {},
	"loved": {}, "perfect": {}, "popular": {}, "positive": {}, "promising": {},
	"recommend": {}, "success": {}, "successful": {}, "superb": {},
	"thrilled": {}, "top": {}, "viral": {}, "win": {}, "winner": {},
	"winning": {}, "wonderful": {}, "wow": {},
}

var negativeWords = map[string]struct{}{
	"angry": {}, "awful": {}, "bad": {}, "boring": {}, "broken": {},
	"crash": {}, "disappointed": {}, "disappointing": {}, "disaster": {},
	"dislike": {}, "fail": {}, "failed": {}, "failure": {}, "fake": {},
	"flop": {}, "fraud": {}, "garbage": {}, "hate": {}, "hated": {},
	"horrible": {}, "lose": {}, "loser": {}, "losing": {}, "loss": {},
	"mediocre": {}, "mess": {}, "negative": {}, "outrage": {}, "pathetic": {},
	"poor": {}, "problem": {}, "sad": {}, "scam": {}, "terrible": {},
	"toxic": {}, "trash": {}, "ugly": {}, "useless": {}, "worst": {},
	"wrong": {},
}
