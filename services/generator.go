package services

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/config"
)

// ErrGeneratorFailed wraps failures reported by a generation backend.
var ErrGeneratorFailed = errors.New("generator failed")

// ErrGeneratorIdle is returned when a generator produces nothing within the
// orchestrator's idle timeout.
var ErrGeneratorIdle = fmt.Errorf("%w: idle timeout", ErrGeneratorFailed)

// Generator produces a reply for a context payload as a stream of text fragments.
type Generator interface {
	Generate(ctx context.Context, model, payload string) (FragmentStream, error)
}

// FragmentStream is a finite, forward-only sequence of fragments. Recv returns
// io.EOF once the reply is complete; any other error means the stream broke.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// NewGenerator builds the generation backend selected by cfg.Generator.
func NewGenerator(cfg *config.Config) (Generator, error) {
	switch cfg.Generator {
	case "", "ollama":
		return NewOllamaGenerator(cfg.OllamaHost), nil
	case "openai":
		return NewOpenAIGenerator(cfg.OpenAIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown generator backend %q", cfg.Generator)
	}
}
