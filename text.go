package main

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const maxTextLength = 256

var (
	questionStartPattern = regexp.MustCompile(`^(?i)(who|what|when|where|why)\b`)
	trailingQuestion     = regexp.MustCompile(`\?\s*$`)
)

func trimToMax(text string, max int) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) > max {
		return string(runes[:max])
	}
	return trimmed
}

// normalizeText lowercases, strips accents via NFKD, and reduces everything
// outside [a-z0-9] to single spaces, so "Mona Lisa!" and "mona  lisa"
// compare equal.
func normalizeText(text string) string {
	decomposed := norm.NFKD.String(strings.ToLower(text))

	var b strings.Builder
	b.Grow(len(decomposed))
	lastSpace := true
	for _, r := range decomposed {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func isQuestion(text string) bool {
	return trailingQuestion.MatchString(strings.TrimSpace(text))
}

func startsWithQuestionWord(text string) bool {
	return questionStartPattern.MatchString(strings.TrimSpace(text))
}

func ensureQuestionMark(text string, max int) string {
	trimmed := trimToMax(text, max)
	if trimmed == "" {
		return trimmed
	}
	if isQuestion(trimmed) {
		return trimmed
	}

	base := strings.TrimRight(trimmed, ".! \t")
	if base == "" {
		base = strings.TrimRight(trimmed, " \t")
	}
	withQuestion := base + "?"

	if len([]rune(withQuestion)) <= max {
		return withQuestion
	}
	runes := []rune(withQuestion)
	return string(runes[:max-1]) + "?"
}

func levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	shorter, longer := ra, rb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	prev := make([]int, len(shorter)+1)
	curr := make([]int, len(shorter)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(longer); i++ {
		curr[0] = i
		for j := 1; j <= len(shorter); j++ {
			cost := 1
			if longer[i-1] == shorter[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(shorter)]
}
