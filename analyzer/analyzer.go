// Package analyzer implements the token and query analyzer (C1): a
// stateless BPE-style token estimator and a keyword/heuristic query
// classifier used by the model router to pick a cheap-enough variant.
package analyzer

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Level is the classified query complexity.
type Level string

const (
	LevelSimple   Level = "simple"
	LevelMedium   Level = "medium"
	LevelComplex  Level = "complex"
	LevelAdvanced Level = "advanced"
)

var levelOrder = map[Level]int{
	LevelSimple:   0,
	LevelMedium:   1,
	LevelComplex:  2,
	LevelAdvanced: 3,
}

// Analysis is the structured result of Analyze.
type Analysis struct {
	Intents               []string `json:"intents"`
	TimeReferences        []string `json:"time_references"`
	Metrics               []string `json:"metrics"`
	ComplexityIndicators  []string `json:"complexity_indicators"`
	RequiresCalculation   bool     `json:"requires_calculation"`
}

// Classification is the result of Classify.
type Classification struct {
	Level      Level   `json:"level"`
	Confidence float64 `json:"confidence"`
}

// CountTokens estimates the number of BPE tokens in text. Empty text
// counts as 0; a non-empty text whose estimate rounds to 0 falls back
// to max(1, runes/4).
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	chars := utf8.RuneCountInString(text)
	// ~3.6 chars per token is a reasonable average across English
	// prose; mirrors the "BPE-style encoder" the spec asks for without
	// depending on a live tokenizer.
	tokens := int(math.Round(float64(chars) / 3.6))
	if tokens == 0 {
		tokens = maxInt(1, chars/4)
	}
	return tokens
}

// fallback-only estimator kept for components that never have access
// to the richer heuristic above (pure len/4, per the spec's escape hatch).
func CountTokensFallback(text string) int {
	return len(text) / 4
}

var (
	intentKeywords = map[string][]string{
		"aggregate":  {"total", "sum", "average", "avg", "count", "aggregate"},
		"comparison": {"compare", "versus", "vs", "difference between", "relative to"},
		"trend":      {"trend", "over time", "growth", "decline", "change"},
		"lookup":     {"what is", "show me", "list", "get"},
		"forecast":   {"forecast", "predict", "projection", "expected"},
	}

	timeReferencePattern = regexp.MustCompile(`(?i)\b(today|yesterday|this (week|month|quarter|year)|last (week|month|quarter|year)|q[1-4]\b|ytd|mtd|\d{4})\b`)

	metricKeywords = []string{"revenue", "cost", "profit", "margin", "churn", "arr", "mrr", "conversion", "retention", "latency", "usage"}

	calculationPattern = regexp.MustCompile(`(?i)\b(calculate|compute|sum|average|percentage|ratio|divide|multiply)\b`)

	// complex vocabulary: domain keywords that push toward "complex"/"advanced"
	complexVocabulary = []string{
		"correlation", "regression", "forecast", "predict", "anomaly",
		"cohort", "segmentation", "attribution", "statistical", "significance",
		"multivariate", "cluster", "outlier",
	}
	mediumVocabulary = []string{
		"compare", "trend", "breakdown", "aggregate", "group by", "join",
		"filter", "rank", "top", "bottom",
	}
	simpleVocabulary = []string{
		"what is", "show", "list", "get", "how many", "count",
	}

	// pattern triggers: time-comparison shorthand, query-language names, ML vocabulary
	timeComparisonShorthand = regexp.MustCompile(`(?i)\b(qoq|yoy|mom|wow)\b`)
	queryLanguageNames      = regexp.MustCompile(`(?i)\b(sql|dax|mdx|kql)\b`)
	mlVocabulary            = regexp.MustCompile(`(?i)\b(machine learning|neural network|classification model|clustering|embedding)\b`)
)

// Analyze extracts intent, time reference, and metric signals from
// free text. Pure function, no I/O.
func Analyze(text string) Analysis {
	lower := strings.ToLower(text)

	var intents []string
	for intent, kws := range intentKeywords {
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				intents = append(intents, intent)
				break
			}
		}
	}

	var timeRefs []string
	for _, m := range timeReferencePattern.FindAllString(text, -1) {
		timeRefs = append(timeRefs, strings.ToLower(m))
	}

	var metrics []string
	for _, kw := range metricKeywords {
		if strings.Contains(lower, kw) {
			metrics = append(metrics, kw)
		}
	}

	var indicators []string
	for _, kw := range complexVocabulary {
		if strings.Contains(lower, kw) {
			indicators = append(indicators, kw)
		}
	}
	if timeComparisonShorthand.MatchString(text) {
		indicators = append(indicators, "time_comparison_shorthand")
	}
	if queryLanguageNames.MatchString(text) {
		indicators = append(indicators, "query_language_reference")
	}
	if mlVocabulary.MatchString(text) {
		indicators = append(indicators, "ml_vocabulary")
	}

	return Analysis{
		Intents:              intents,
		TimeReferences:       timeRefs,
		Metrics:              metrics,
		ComplexityIndicators: indicators,
		RequiresCalculation:  calculationPattern.MatchString(text),
	}
}

// Classify runs the weighted-signal classifier described in the spec:
// keyword-family hits, word count bands, token count bands, and
// pattern triggers each contribute a raw score per level; scores are
// normalized to sum to 1, the max wins, ties favor the higher
// complexity level.
func Classify(text string) Classification {
	lower := strings.ToLower(text)
	words := strings.Fields(text)
	tokens := CountTokens(text)

	raw := map[Level]float64{
		LevelSimple:   0,
		LevelMedium:   0,
		LevelComplex:  0,
		LevelAdvanced: 0,
	}

	// (1) domain keyword families
	raw[LevelSimple] += countHits(lower, simpleVocabulary)
	raw[LevelMedium] += countHits(lower, mediumVocabulary)
	raw[LevelComplex] += countHits(lower, complexVocabulary) * 1.5
	if mlVocabulary.MatchString(text) {
		raw[LevelAdvanced] += 2
	}

	// (2) word count bands
	switch {
	case len(words) <= 8:
		raw[LevelSimple] += 1
	case len(words) <= 20:
		raw[LevelMedium] += 1
	case len(words) <= 40:
		raw[LevelComplex] += 1
	default:
		raw[LevelAdvanced] += 1
	}

	// (3) token count bands
	switch {
	case tokens <= 64:
		raw[LevelSimple] += 1
	case tokens <= 256:
		raw[LevelMedium] += 1
	case tokens <= 768:
		raw[LevelComplex] += 1
	default:
		raw[LevelAdvanced] += 1
	}

	// (4) pattern triggers
	if timeComparisonShorthand.MatchString(text) || queryLanguageNames.MatchString(text) {
		raw[LevelComplex] += 1
	}
	if mlVocabulary.MatchString(text) {
		raw[LevelAdvanced] += 1
	}

	// baseline floor so the distribution is never degenerate
	const floor = 0.1
	for l := range raw {
		raw[l] += floor
	}

	total := raw[LevelSimple] + raw[LevelMedium] + raw[LevelComplex] + raw[LevelAdvanced]
	norm := map[Level]float64{}
	for l, v := range raw {
		norm[l] = v / total
	}

	best := LevelSimple
	bestScore := -1.0
	for _, l := range []Level{LevelSimple, LevelMedium, LevelComplex, LevelAdvanced} {
		v := norm[l]
		// ties favor the higher complexity level — iterating in
		// ascending order and using >= lets a later (more complex)
		// level overwrite an earlier tie.
		if v >= bestScore {
			bestScore = v
			best = l
		}
	}

	return Classification{Level: best, Confidence: bestScore}
}

func countHits(lower string, vocab []string) float64 {
	var n float64
	for _, kw := range vocab {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Rank returns the ordinal rank of a level, used by callers that need
// to compare complexity without string comparisons.
func Rank(l Level) int { return levelOrder[l] }
