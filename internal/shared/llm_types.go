package shared

import (
	"time"
)

// TokenUsage is what a provider reported for one completion.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// AgentMeta describes a single plan generation: which engine produced it
// ("generative" or "rules"), the tokens spent and the wall time.
type AgentMeta struct {
	AgentName string
	Usage     TokenUsage
	Latency   time.Duration
}
