package scoring

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"trendpulse/internal/domain/trend"
)

// epsilon guards every normalization denominator; identical posts must
// not divide by zero.
const epsilon = 1e-9

// CalculatorConfig holds the heuristic constants of the metric
// calculator. Defaults mirror the values the scoring model was tuned
// with; they are configuration, not business logic.
type CalculatorConfig struct {
	// TopTermCount is how many TF-IDF terms a snapshot carries.
	TopTermCount int

	// VocabCap limits the TF-IDF vocabulary size.
	VocabCap int

	// MaxDocFreqRatio drops terms appearing in more than this share of
	// documents.
	MaxDocFreqRatio float64

	// Window is the velocity observation window.
	Window time.Duration

	// ConfidenceSaturation is the post count at which confidence
	// reaches 1.0.
	ConfidenceSaturation int

	// ViralityCap is the growth rate mapped to virality 1.0.
	ViralityCap float64

	// ScoreWeight and CommentWeight blend the two engagement signals.
	ScoreWeight   float64
	CommentWeight float64
}

// DefaultCalculatorConfig returns the tuned defaults.
func DefaultCalculatorConfig() CalculatorConfig {
	return CalculatorConfig{
		TopTermCount:         20,
		VocabCap:             1000,
		MaxDocFreqRatio:      0.8,
		Window:               7 * 24 * time.Hour,
		ConfidenceSaturation: 50,
		ViralityCap:          5.0,
		ScoreWeight:          0.6,
		CommentWeight:        0.4,
	}
}

// Calculator turns a post corpus into per-keyword trend metrics. It is
// pure with respect to its inputs and performs no I/O, so a snapshot
// can be recomputed safely at any time.
type Calculator struct {
	cfg CalculatorConfig
}

// NewCalculator creates a calculator with the given constants.
func NewCalculator(cfg CalculatorConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Compute produces a trend snapshot for a keyword's corpus. Returns
// trend.ErrInsufficientData for an empty corpus; the caller decides
// whether to cache a placeholder or skip.
func (c *Calculator) Compute(keywordID string, posts []trend.Post) (trend.TrendMetrics, error) {
	return c.computeAt(keywordID, posts, time.Now())
}

func (c *Calculator) computeAt(keywordID string, posts []trend.Post, now time.Time) (trend.TrendMetrics, error) {
	if len(posts) == 0 {
		return trend.TrendMetrics{}, trend.ErrInsufficientData
	}

	velocity := c.trendVelocity(posts, now)

	m := trend.TrendMetrics{
		KeywordID:    keywordID,
		TopTerms:     c.topTerms(posts),
		Engagement:   c.engagementScore(posts),
		Velocity:     velocity,
		Sentiment:    c.sentimentScore(posts),
		Virality:     c.viralityScore(posts, now),
		Direction:    trend.DirectionForVelocity(velocity),
		Confidence:   math.Min(1, float64(len(posts))/float64(c.cfg.ConfidenceSaturation)),
		PostCount:    len(posts),
		CalculatedAt: now,
	}
	return m, nil
}

// topTerms builds per-document term vectors (unigrams and bigrams,
// stop words removed), weights them with TF-IDF, L2-normalizes each
// document, and returns the top terms by mean weight scaled so the
// strongest term scores 1.0. Ties break lexicographically.
func (c *Calculator) topTerms(posts []trend.Post) []trend.TermScore {
	docs := make([]map[string]int, len(posts))
	docFreq := make(map[string]int)
	for i, p := range posts {
		counts := make(map[string]int)
		for _, tok := range tokenize(p.Title + " " + p.Body) {
			counts[tok]++
		}
		docs[i] = counts
		for term := range counts {
			docFreq[term]++
		}
	}

	vocab := c.selectVocabulary(docFreq, len(docs))
	if len(vocab) == 0 {
		return nil
	}

	// Per-document TF-IDF with L2 normalization, accumulated into a
	// corpus-mean weight per term.
	n := float64(len(docs))
	meanWeight := make(map[string]float64, len(vocab))
	for _, counts := range docs {
		weights := make(map[string]float64)
		var norm float64
		for term := range vocab {
			tf := float64(counts[term])
			if tf == 0 {
				continue
			}
			idf := math.Log((1+n)/(1+float64(docFreq[term]))) + 1
			w := tf * idf
			weights[term] = w
			norm += w * w
		}
		norm = math.Sqrt(norm)
		for term, w := range weights {
			meanWeight[term] += (w / math.Max(norm, epsilon)) / n
		}
	}

	terms := make([]trend.TermScore, 0, len(meanWeight))
	var maxWeight float64
	for term, w := range meanWeight {
		terms = append(terms, trend.TermScore{Term: term, Score: w})
		if w > maxWeight {
			maxWeight = w
		}
	}
	for i := range terms {
		terms[i].Score /= math.Max(maxWeight, epsilon)
	}

	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Score != terms[j].Score {
			return terms[i].Score > terms[j].Score
		}
		return terms[i].Term < terms[j].Term
	})
	if len(terms) > c.cfg.TopTermCount {
		terms = terms[:c.cfg.TopTermCount]
	}
	return terms
}

// selectVocabulary applies the document-frequency bounds and the
// vocabulary cap. If the upper bound would empty the vocabulary (tiny
// corpora where every term is everywhere) the bound is waived.
func (c *Calculator) selectVocabulary(docFreq map[string]int, docCount int) map[string]struct{} {
	maxDF := int(c.cfg.MaxDocFreqRatio * float64(docCount))
	kept := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df < 1 || (docCount > 1 && df > maxDF) {
			continue
		}
		kept = append(kept, term)
	}
	if len(kept) == 0 {
		for term := range docFreq {
			kept = append(kept, term)
		}
	}

	// Cap by document frequency, most common first, lexicographic on
	// ties so the cut is deterministic.
	sort.Slice(kept, func(i, j int) bool {
		if docFreq[kept[i]] != docFreq[kept[j]] {
			return docFreq[kept[i]] > docFreq[kept[j]]
		}
		return kept[i] < kept[j]
	})
	if len(kept) > c.cfg.VocabCap {
		kept = kept[:c.cfg.VocabCap]
	}

	vocab := make(map[string]struct{}, len(kept))
	for _, term := range kept {
		vocab[term] = struct{}{}
	}
	return vocab
}

// engagementScore blends min-max-normalized post score and comment
// count. When the corpus has no spread (single post or identical
// posts) the min-max collapses, so a fixed saturating curve stands in.
func (c *Calculator) engagementScore(posts []trend.Post) float64 {
	var total float64
	for _, e := range c.perPostEngagement(posts) {
		total += e
	}
	return total / float64(len(posts))
}

const (
	scoreSaturation   = 100.0
	commentSaturation = 25.0
)

func (c *Calculator) perPostEngagement(posts []trend.Post) []float64 {
	minScore, maxScore := posts[0].Score, posts[0].Score
	minCom, maxCom := posts[0].CommentCount, posts[0].CommentCount
	for _, p := range posts[1:] {
		minScore = min(minScore, p.Score)
		maxScore = max(maxScore, p.Score)
		minCom = min(minCom, p.CommentCount)
		maxCom = max(maxCom, p.CommentCount)
	}

	normScore := func(v int) float64 {
		if maxScore == minScore {
			return float64(v) / (float64(v) + scoreSaturation)
		}
		return float64(v-minScore) / math.Max(float64(maxScore-minScore), epsilon)
	}
	normCom := func(v int) float64 {
		if maxCom == minCom {
			return float64(v) / (float64(v) + commentSaturation)
		}
		return float64(v-minCom) / math.Max(float64(maxCom-minCom), epsilon)
	}

	out := make([]float64, len(posts))
	for i, p := range posts {
		out[i] = c.cfg.ScoreWeight*normScore(p.Score) + c.cfg.CommentWeight*normCom(p.CommentCount)
	}
	return out
}

// windowHalves splits the posts inside the observation window into an
// older and a newer half by count, ordered by creation time.
func (c *Calculator) windowHalves(posts []trend.Post, now time.Time) (older, newer []trend.Post) {
	cutoff := now.Add(-c.cfg.Window)
	var windowed []trend.Post
	for _, p := range posts {
		if p.CreatedAt.After(cutoff) {
			windowed = append(windowed, p)
		}
	}
	if len(windowed) < 2 {
		return nil, nil
	}
	sort.Slice(windowed, func(i, j int) bool {
		if !windowed[i].CreatedAt.Equal(windowed[j].CreatedAt) {
			return windowed[i].CreatedAt.Before(windowed[j].CreatedAt)
		}
		return windowed[i].ID < windowed[j].ID
	})
	mid := len(windowed) / 2
	return windowed[:mid], windowed[mid:]
}

// trendVelocity is the percentage-style engagement delta between the
// newer and older half of the window, scaled by corpus size. Fewer
// than two posts in the window means no measurable movement.
func (c *Calculator) trendVelocity(posts []trend.Post, now time.Time) float64 {
	older, newer := c.windowHalves(posts, now)
	if len(older) == 0 || len(newer) == 0 {
		return 0
	}
	window := append(append([]trend.Post{}, older...), newer...)
	engagement := c.perPostEngagement(window)
	meanOld := mean(engagement[:len(older)])
	meanNew := mean(engagement[len(older):])
	return (meanNew - meanOld) / math.Max(1, float64(len(posts))) * 100
}

// viralityScore maps the window growth rate onto [0,1], saturating at
// the configured cap.
func (c *Calculator) viralityScore(posts []trend.Post, now time.Time) float64 {
	older, newer := c.windowHalves(posts, now)
	if len(older) == 0 || len(newer) == 0 {
		return 0
	}
	window := append(append([]trend.Post{}, older...), newer...)
	engagement := c.perPostEngagement(window)
	meanOld := mean(engagement[:len(older)])
	meanNew := mean(engagement[len(older):])
	growth := (meanNew - meanOld) / math.Max(meanOld, epsilon)
	return math.Min(1, math.Max(0, growth/c.cfg.ViralityCap))
}

// sentimentScore counts lexicon hits over title and body.
func (c *Calculator) sentimentScore(posts []trend.Post) float64 {
	var pos, neg int
	for _, p := range posts {
		for _, tok := range unigrams(p.Title + " " + p.Body) {
			if _, ok := positiveWords[tok]; ok {
				pos++
			}
			if _, ok := negativeWords[tok]; ok {
				neg++
			}
		}
	}
	return float64(pos-neg) / math.Max(1, float64(pos+neg))
}

// unigrams lowercases and splits text on non-alphanumeric runes,
// dropping single-character fragments.
func unigrams(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// tokenize yields the TF-IDF token stream: stop-word-filtered unigrams
// plus bigrams of adjacent kept unigrams.
func tokenize(text string) []string {
	var kept []string
	for _, tok := range unigrams(text) {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	tokens := make([]string, 0, 2*len(kept))
	tokens = append(tokens, kept...)
	for i := 0; i+1 < len(kept); i++ {
		tokens = append(tokens, kept[i]+" "+kept[i+1])
	}
	return tokens
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
