package main

import (
	"math"
	"regexp"
	"strings"
)

const (
	exactMatchScore  = 100
	semanticWeight   = 0.7
	lexicalWeight    = 0.3
	cheatSimilarity  = 0.8
	promptMaxLength  = maxTextLength
	nicknameMaxChars = 24
)

func clampFloat(value, lo, hi float64) float64 {
	return math.Min(math.Max(value, lo), hi)
}

func clampInt(value, lo, hi int) int {
	return min(max(value, lo), hi)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func lexicalCloseness(answer, target string) float64 {
	a := normalizeText(answer)
	t := normalizeText(target)
	if a == "" || t == "" {
		return 0
	}
	if a == t {
		return 1
	}
	dist := levenshteinDistance(a, t)
	maxLen := max(len([]rune(a)), len([]rune(t)))
	if maxLen == 0 {
		return 0
	}
	return clampFloat(1-float64(dist)/float64(maxLen), 0, 1)
}

type scoreBreakdown struct {
	exactMatch    bool
	semanticScore float64
	lexicalScore  float64
	scoreDelta    int
}

// computeScore is the single place round points come from: an exact
// normalized match is worth the full 100, anything else is the weighted
// blend of semantic and lexical closeness.
func computeScore(answer, target string, semantic, lexical float64) scoreBreakdown {
	if normalizeText(answer) == normalizeText(target) {
		return scoreBreakdown{
			exactMatch:    true,
			semanticScore: 1,
			lexicalScore:  1,
			scoreDelta:    exactMatchScore,
		}
	}

	weighted := semantic*semanticWeight + lexical*lexicalWeight
	base := int(math.Round(weighted * 100))
	return scoreBreakdown{
		exactMatch:    false,
		semanticScore: clampFloat(semantic, 0, 1),
		lexicalScore:  clampFloat(lexical, 0, 1),
		scoreDelta:    clampInt(base, 0, exactMatchScore),
	}
}

var metaCheatPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfirst letter\b`),
	regexp.MustCompile(`(?i)\bstarts with\b`),
	regexp.MustCompile(`(?i)\bspell( it| out)?\b`),
	regexp.MustCompile(`(?i)\bacronym\b`),
	regexp.MustCompile(`(?i)\binitials?\b`),
	regexp.MustCompile(`(?i)\bletter by letter\b`),
	regexp.MustCompile(`(?i)\bgive me the exact phrase\b`),
	regexp.MustCompile(`(?i)\bverbatim\b`),
	regexp.MustCompile(`(?i)\bcharacter(s)?\b`),
}

// checkPromptForCheating returns the sanitized prompt and an empty reason on
// success. Pass a negative similarity to skip the semantic ceiling (the
// server has no embeddings of its own).
func checkPromptForCheating(prompt, target string, similarityToTarget float64) (string, string) {
	cleaned := trimToMax(prompt, promptMaxLength)
	if cleaned == "" {
		return "", "Prompt is required."
	}
	if !startsWithQuestionWord(cleaned) {
		return "", "Prompt must start with who, what, when, where, or why."
	}
	sanitized := ensureQuestionMark(cleaned, promptMaxLength)

	normalizedPrompt := normalizeText(sanitized)
	normalizedTarget := normalizeText(target)
	if normalizedPrompt == "" || normalizedTarget == "" {
		return "", "Prompt or target is invalid."
	}

	for _, token := range strings.Fields(normalizedTarget) {
		if len(token) < 3 {
			continue
		}
		if strings.Contains(normalizedPrompt, token) {
			return "", "Prompt contains part of the target."
		}
	}

	if strings.Contains(normalizedPrompt, normalizedTarget) {
		return "", "Prompt contains the target phrase."
	}

	for _, pattern := range metaCheatPatterns {
		if pattern.MatchString(sanitized) {
			return "", "Prompt uses disallowed clueing or spelling strategies."
		}
	}

	if similarityToTarget >= 0 && clampFloat(similarityToTarget, 0, 1) >= cheatSimilarity {
		return "", "Prompt is too semantically similar to the target."
	}

	return sanitized, ""
}
