package llm

import (
	"context"

	"ai-workout-planner/internal/shared"
)

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// ModelFactory resolves a model identifier to a generator.
type ModelFactory interface {
	NewModel(ctx context.Context, model string) (TextGenerator, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}
