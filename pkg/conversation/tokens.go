package conversation

// EstimateTokens approximates the token count of a string as
// ceil(len/4). Rough, but consistent with what the rest of the
// ecosystem uses for budget checks; precise counts come from provider
// usage objects when available.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return (len(content) + 3) / 4
}
