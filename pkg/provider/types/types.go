package types

// GenerateRequest is one stateless completion: a fixed system instruction plus the user turn.
type GenerateRequest struct {
	SystemInstruction string
	UserText          string
	Model             string
}

// GenerateResult is the normalized provider response payload.
type GenerateResult struct {
	Text     string
	Metadata GenerateMetadata
}

// GenerateMetadata carries provider/model identity and optional usage accounting.
type GenerateMetadata struct {
	Provider string
	Model    string
	Usage    *TokenUsage
}

// TokenUsage captures token accounting across providers.
type TokenUsage struct {
	InputTokens     int64
	OutputTokens    int64
	TotalTokens     int64
	ReasoningTokens int64
	CacheReadTokens int64
}

// IsZero reports whether all token counters are unset/zero.
func (u TokenUsage) IsZero() bool {
	return u.InputTokens == 0 &&
		u.OutputTokens == 0 &&
		u.TotalTokens == 0 &&
		u.ReasoningTokens == 0 &&
		u.CacheReadTokens == 0
}
