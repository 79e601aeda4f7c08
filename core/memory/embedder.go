package memory

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/herald-ai/herald/pkg/llm"
)

// Embedder turns text into a fixed-dimension vector. The deployment's
// embedding provider may be unavailable; callers degrade instead of
// failing.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client llm.EmbeddingClient
	model  string
}

func NewOpenAIEmbedder(client llm.EmbeddingClient, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx,
		openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: openai.EmbeddingModel(e.model),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error getting embeddings: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no response from embeddings API")
	}

	return resp.Data[0].Embedding, nil
}
