package stream

import "unicode"

// Chunk modes. Word mode trades event volume for smoothness; character
// mode maximizes the typing effect.
const (
	ChunkByWord = "word"
	ChunkByChar = "char"
)

// splitChunks decomposes text into minimal display units. Concatenating
// the units in order reconstructs the text exactly: word mode keeps
// each token's trailing whitespace attached, character mode emits one
// rune per unit.
func splitChunks(text, mode string) []string {
	if text == "" {
		return nil
	}

	if mode == ChunkByChar {
		runes := []rune(text)
		chunks := make([]string, len(runes))
		for i, r := range runes {
			chunks[i] = string(r)
		}
		return chunks
	}

	var chunks []string
	start := 0
	inSpace := unicode.IsSpace(rune(text[0]))
	for i, r := range text {
		isSpace := unicode.IsSpace(r)
		// A unit boundary is the space-to-word transition, so every
		// unit is a word plus the whitespace that follows it.
		if inSpace && !isSpace {
			chunks = append(chunks, text[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
