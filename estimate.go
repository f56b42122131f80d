package flowgate

// EstimateTokens provides a rough token count estimate for a prompt.
// Uses the approximation: ~4 chars per token + overhead per message.
func EstimateTokens(p Prompt) int64 {
	var total int64
	if p.System != "" {
		total += int64(len(p.System))/4 + 4
	}
	for _, m := range p.Messages {
		// ~4 chars per token
		total += int64(len(m.Content)) / 4
		// overhead per message (role, formatting)
		total += 4
	}
	// base overhead for the request
	total += 3
	return total
}
