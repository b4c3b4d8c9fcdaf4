package embeddings

import (
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/chatloop/internal/dom"
)

// FallbackDimension is the length of heuristic vectors.
const FallbackDimension = 16

// FallbackModelName is reported as the model when heuristic vectors are used.
const FallbackModelName = "heuristic-fallback"

const trigramBuckets = FallbackDimension - 5

// fallbackVector computes the rule-based vector for already-normalized text.
// It is a pure function of its inputs.
//
// Layout: [0] question mark, [1] code tokens, [2] URL, [3] file keyword,
// [4] length ratio, [5:] hashed character-trigram histogram summing to 1.
func fallbackVector(text string, maxChars int) []float32 {
	vec := make([]float32, FallbackDimension)
	if strings.Contains(text, "?") {
		vec[0] = 1
	}
	if dom.LooksLikeCode(text) {
		vec[1] = 1
	}
	if dom.HasURL(text) {
		vec[2] = 1
	}
	if dom.MentionsFile(text) {
		vec[3] = 1
	}
	if maxChars > 0 {
		vec[4] = float32(min(1, float64(utf8.RuneCountInString(text))/float64(maxChars)))
	}

	runes := []rune(strings.ToLower(text))
	if len(runes) == 0 {
		return vec
	}

	var counts [trigramBuckets]int
	total := 0
	if len(runes) < 3 {
		counts[bucket(string(runes))]++
		total = 1
	} else {
		for i := 0; i+3 <= len(runes); i++ {
			counts[bucket(string(runes[i:i+3]))]++
			total++
		}
	}
	for i, c := range counts {
		vec[5+i] = float32(c) / float32(total)
	}
	return vec
}

func bucket(gram string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(gram))
	return int(h.Sum32() % trigramBuckets)
}
