package chunker

// EstimateTokens approximates a token count as max(1, ceil(chars/4)),
// per §4.3. This exact function must be used everywhere a budget is
// enforced (chunking, retrieval, pack assembly) to avoid drift (§9).
func EstimateTokens(text string) int {
	n := len([]rune(text))
	tokens := (n + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
