package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// GroqPrefix routes a model identifier to Groq, e.g. "groq:llama-3.3-70b-versatile".
const GroqPrefix = "groq:"

// ErrNoCredential is returned when a model's provider has no API key.
var ErrNoCredential = errors.New("no credential configured for provider")

// ProviderFactory builds generators for Gemini and Groq models, reusing one
// client per model.
type ProviderFactory struct {
	GeminiAPIKey string
	GroqAPIKey   string
	SystemPrompt string
	GroqOptions  []GroqOption

	mu      sync.Mutex
	clients map[string]TextGenerator
}

func (f *ProviderFactory) NewModel(ctx context.Context, model string) (TextGenerator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gen, ok := f.clients[model]; ok {
		return gen, nil
	}

	var gen TextGenerator
	if name, ok := strings.CutPrefix(model, GroqPrefix); ok {
		if f.GroqAPIKey == "" {
			return nil, fmt.Errorf("%s: %w", model, ErrNoCredential)
		}
		gen = NewGroqClient(f.GroqAPIKey, name, f.SystemPrompt, f.GroqOptions...)
	} else {
		if f.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%s: %w", model, ErrNoCredential)
		}
		g, err := NewGeminiClient(ctx, f.GeminiAPIKey, model, f.SystemPrompt)
		if err != nil {
			return nil, err
		}
		gen = g
	}

	if f.clients == nil {
		f.clients = make(map[string]TextGenerator)
	}
	f.clients[model] = gen
	return gen, nil
}

// Close releases every client created so far.
func (f *ProviderFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, gen := range f.clients {
		if c, ok := gen.(Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	f.clients = nil
	return errors.Join(errs...)
}
