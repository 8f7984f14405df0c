package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "mona lisa", normalizeText("  Mona   Lisa! "))
	assert.Equal(t, "mona lisa", normalizeText("Mona-Lisa"))
	assert.Equal(t, "cafe au lait", normalizeText("Café au Lait"))
	assert.Equal(t, "", normalizeText("!?!"))
}

func TestTrimToMax(t *testing.T) {
	assert.Equal(t, "abc", trimToMax("  abc  ", 10))
	assert.Equal(t, "ab", trimToMax("abcdef", 2))
	assert.Equal(t, "日本", trimToMax("日本語", 2))
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("tower", "tower"))
	assert.Equal(t, 3, levenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 5, levenshteinDistance("", "hello"))
	assert.Equal(t, 1, levenshteinDistance("paris", "parts"))
}

func TestLexicalCloseness(t *testing.T) {
	assert.Equal(t, 1.0, lexicalCloseness("Mona Lisa!", "mona lisa"))
	assert.Equal(t, 0.0, lexicalCloseness("", "mona lisa"))
	assert.Equal(t, 0.0, lexicalCloseness("anything", ""))

	partial := lexicalCloseness("Eiffel Towers", "Eiffel Tower")
	assert.Greater(t, partial, 0.8)
	assert.Less(t, partial, 1.0)
}

func TestComputeScore_ExactMatchIsFullPoints(t *testing.T) {
	score := computeScore("Mona Lisa", "mona  lisa!", 0, 0)

	assert.True(t, score.exactMatch)
	assert.Equal(t, 100, score.scoreDelta)
	assert.Equal(t, 1.0, score.semanticScore)
	assert.Equal(t, 1.0, score.lexicalScore)
}

func TestComputeScore_WeightedBlend(t *testing.T) {
	score := computeScore("The Last Supper", "Mona Lisa", 0.8, 0.6)

	assert.False(t, score.exactMatch)
	// 0.8*0.7 + 0.6*0.3 = 0.74
	assert.Equal(t, 74, score.scoreDelta)
}

func TestComputeScore_Clamped(t *testing.T) {
	assert.Equal(t, 100, computeScore("a", "b", 5, 5).scoreDelta)
	assert.Equal(t, 0, computeScore("a", "b", -1, -1).scoreDelta)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1}, []float64{1, 2}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}

func TestCheckPromptForCheating_AcceptsHonestQuestion(t *testing.T) {
	sanitized, reason := checkPromptForCheating(
		"Who painted the most famous portrait in the Louvre", "Mona Lisa", 0.4)

	assert.Empty(t, reason)
	assert.Equal(t, "Who painted the most famous portrait in the Louvre?", sanitized)
}

func TestCheckPromptForCheating_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		prompt string
	}{
		{"empty", "   "},
		{"no question word", "Tell me about the famous painting"},
		{"contains target token", "Who painted the Mona Lisa?"},
		{"spelling strategy", "What word starts with M and hangs in the Louvre?"},
		{"verbatim request", "What is the answer, verbatim?"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, reason := checkPromptForCheating(tc.prompt, "Mona Lisa", 0.1)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestCheckPromptForCheating_SemanticCeiling(t *testing.T) {
	prompt := "Who painted the most famous portrait in the Louvre?"

	_, reason := checkPromptForCheating(prompt, "Mona Lisa", 0.95)
	assert.NotEmpty(t, reason)

	// Negative similarity means no embedding was available; skip the ceiling.
	_, reason = checkPromptForCheating(prompt, "Mona Lisa", -1)
	assert.Empty(t, reason)
}

func TestEnsureQuestionMark(t *testing.T) {
	assert.Equal(t, "Who is it?", ensureQuestionMark("Who is it", maxTextLength))
	assert.Equal(t, "Who is it?", ensureQuestionMark("Who is it?", maxTextLength))
	assert.Equal(t, "Who is it?", ensureQuestionMark("Who is it.", maxTextLength))
	assert.Equal(t, "", ensureQuestionMark("  ", maxTextLength))
}

func TestPickConcept_SkipsUsedTargets(t *testing.T) {
	used := make([]string, 0, len(defaultConcepts)-1)
	for _, c := range defaultConcepts[1:] {
		used = append(used, c)
	}

	for i := 0; i < 10; i++ {
		assert.Equal(t, defaultConcepts[0], pickConcept(used, ""))
	}
}

func TestPickConcept_UsedComparisonIsNormalized(t *testing.T) {
	used := []string{"  MONA   LISA! "}

	for i := 0; i < 50; i++ {
		assert.NotEqual(t, "Mona Lisa", pickConcept(used, ""))
	}
}

func TestPickConcept_AlwaysReturnsSomething(t *testing.T) {
	assert.NotEmpty(t, pickConcept(defaultConcepts, "anything"))
}
