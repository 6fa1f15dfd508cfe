package embedding

import "unicode/utf8"

// EstimateTokens approximates the provider tokenizer deterministically: one
// token per four characters, rounded up, minimum one for non-empty input.
// Used for the over-limit check before sending, so the same text always
// takes the same path.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// TruncateToTokens cuts text to approximately maxTokens under the same
// estimate, on a rune boundary.
func TruncateToTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	maxRunes := maxTokens * 4
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes])
}
