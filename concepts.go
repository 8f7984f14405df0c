package main

import (
	"math/rand"
	"strings"
)

// The built-in target pool. Hosts normally fetch targets from /api/concept,
// which draws from this list; an external generator can replace it at the
// client's discretion since targets arrive as ordinary message fields.
var defaultConcepts = []string{
	"The Great Wall of China",
	"Photosynthesis",
	"Black Hole",
	"Mona Lisa",
	"World War II",
	"Mount Everest",
	"DNA replication",
	"The Internet",
	"French Revolution",
	"Pythagorean theorem",
	"Electricity",
	"Climate change",
	"Machine learning",
	"Shakespeare",
	"Solar eclipse",
	"Periodic table",
	"Amazon rainforest",
	"The Pacific Ocean",
	"Ancient Egypt",
	"Plate tectonics",
	"Bitcoin",
	"Basketball",
	"The human brain",
	"Vaccines",
	"The Moon landing",
	"Tokyo",
	"Jazz music",
	"Volcano",
	"Gravity",
	"Mars rover",
	"The Renaissance",
	"Opera",
	"Blockchain",
	"Neural network",
	"Penguins",
	"The Statue of Liberty",
	"Cloud computing",
	"Game theory",
	"Roman Empire",
	"Antarctica",
	"Hurricane",
	"Photoshop",
	"Coral reef",
	"Artificial intelligence",
	"The Nile River",
	"Chess",
	"Olympic Games",
	"Saturn rings",
	"Quantum mechanics",
	"Renewable energy",
	"Bee pollination",
	"The Grand Canyon",
	"Internet memes",
	"Caffeine",
	"Solar panels",
	"Opera singer",
	"Fingerprint",
	"Human heart",
	"Submarine",
	"Tsunami",
}

var defaultGameTopics = []string{
	"Space",
	"History",
	"Science",
	"Technology",
	"Nature",
	"Geography",
	"Art",
	"Music",
	"Sports",
	"Health",
	"Animals",
}

func randomItem(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[rand.Intn(len(items))]
}

func topicTokens(topic string) []string {
	return strings.Fields(normalizeText(topic))
}

func conceptTokenScore(concept string, tokens []string) int {
	normalized := normalizeText(concept)
	score := 0
	for _, token := range tokens {
		if len(token) < 3 {
			continue
		}
		if strings.Contains(normalized, token) {
			score++
		}
	}
	return score
}

// pickConcept returns a target not in used; when every concept has been
// used the full pool is recycled. A non-empty topic biases the pick toward
// concepts sharing tokens with it.
func pickConcept(used []string, topic string) string {
	usedSet := make(map[string]struct{}, len(used))
	for _, u := range used {
		usedSet[normalizeText(u)] = struct{}{}
	}

	available := make([]string, 0, len(defaultConcepts))
	for _, c := range defaultConcepts {
		if _, ok := usedSet[normalizeText(c)]; !ok {
			available = append(available, c)
		}
	}
	pool := available
	if len(pool) == 0 {
		pool = defaultConcepts
	}

	if tokens := topicTokens(topic); len(tokens) > 0 {
		themed := make([]string, 0, len(pool))
		for _, c := range pool {
			if conceptTokenScore(c, tokens) > 0 {
				themed = append(themed, c)
			}
		}
		if len(themed) > 0 {
			return randomItem(themed)
		}
	}

	return randomItem(pool)
}

func pickRandomTopic() string {
	primary := randomItem(defaultGameTopics)
	others := make([]string, 0, len(defaultGameTopics)-1)
	for _, t := range defaultGameTopics {
		if t != primary {
			others = append(others, t)
		}
	}
	if rand.Float64() < 0.5 || len(others) == 0 {
		return primary
	}
	return primary + " x " + randomItem(others)
}
