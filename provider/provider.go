package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/slotpress/slotpress/config"
)

// Client represents different generation backends.
type Client string

const (
	OpenAI Client = "openai"
)

// ErrConsecutiveFailures is returned once the generation boundary has failed
// too many requests in a row. It is process-fatal: the daemon must stop
// rather than keep producing catalog-wide garbage.
var ErrConsecutiveFailures = errors.New("generation service failed too many consecutive requests")

// Provider is the generation-service boundary: text, images and embeddings.
// Callers treat an empty string or empty vector as a soft failure.
type Provider interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
	DownloadImage(ctx context.Context, imageURL, destPath string) error
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// NewProvider creates a generation client from configuration.
func NewProvider(client Client, cfg *config.Config) (Provider, error) {
	switch client {
	case OpenAI:
		if cfg.LLM.Model == "" {
			return nil, errors.New("llm.model not configured")
		}
		return NewOpenAIClient(Options{
			APIURL:         cfg.LLM.APIURL,
			APIKey:         cfg.LLM.APIKey,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			Timeout:        cfg.LLM.Timeout,
			RequestDelay:   cfg.LLM.RequestDelay,
			MaxRetries:     cfg.LLM.MaxRetries,
			ImageAPIURL:    cfg.Image.APIURL,
			ImageAPIKey:    cfg.Image.APIKey,
			ImageModel:     cfg.Image.Model,
			PollInterval:   cfg.Image.PollInterval,
			ImageMaxWait:   cfg.Image.MaxWait,
			BreakerLimit:   cfg.LLM.MaxConsecutiveFailures,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", client)
	}
}
