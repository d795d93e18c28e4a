package retriever

import (
	"strings"
	"unicode"
)

// tokenize splits text into lowercase word tokens. A token is a run of
// letters, digits, or underscores; single-character tokens are dropped,
// matching the usual "two or more word characters" lexical convention.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() >= 2 {
			tokens = append(tokens, strings.ToLower(current.String()))
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// ngrams expands word tokens into space-joined n-grams for every n in
// [minN, maxN]. With the default range 1..2 this yields unigrams and
// bigrams in source order.
func ngrams(tokens []string, minN, maxN int) []string {
	if minN < 1 {
		minN = 1
	}
	if maxN < minN {
		maxN = minN
	}

	var grams []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			grams = append(grams, strings.Join(tokens[i:i+n], " "))
		}
	}
	return grams
}
