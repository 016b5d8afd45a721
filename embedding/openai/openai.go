package openai

import (
	"context"
	"fmt"
	"os"
	"sort"

	"semembed/embedding"

	openai "github.com/sashabaranov/go-openai"
)

// Service implements embedding.Backend against any OpenAI-compatible
// embeddings endpoint.
type Service struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// New creates a new OpenAI embedding service. The API key is read from
// the environment variable apiKeyEnvName; an empty key is allowed for
// self-hosted servers.
func New(endpoint string, model string, apiKeyEnvName string) *Service {
	var apiKey string
	if apiKeyEnvName != "" {
		apiKey = os.Getenv(apiKeyEnvName)
	}
	config := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		config.BaseURL = endpoint
	}
	return &Service{
		client: openai.NewClientWithConfig(config),
		model:  openai.EmbeddingModel(model),
	}
}

// Load is an embedding.Loader. It probes the endpoint once so that an
// unreachable server fails the load instead of the first request.
func Load(ctx context.Context, def embedding.Definition) (*embedding.Handle, error) {
	remote := def.RemoteModel
	if remote == "" {
		remote = def.ID
	}
	s := New(def.Endpoint, remote, def.APIKeyEnv)

	probe, err := s.Embed(ctx, []string{"ping"})
	if err != nil {
		return nil, fmt.Errorf("fail to probe embedding endpoint %s: %w", def.Endpoint, err)
	}
	dimensions := len(probe[0])
	if def.Dimensions > 0 && def.Dimensions != dimensions {
		return nil, fmt.Errorf("endpoint returned %d dimensions, model %s expects %d", dimensions, def.ID, def.Dimensions)
	}
	return embedding.NewHandle(def, s, dimensions), nil
}

// Embed implements embedding.Backend
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, text := range texts {
		// most servers reject empty strings
		if text == "" {
			text = " "
		}
		input[i] = text
	}

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: input,
		Model: s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to do embedding request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings (got %d, expected %d)", len(resp.Data), len(texts))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// TokenCount implements embedding.Backend
func (s *Service) TokenCount(text string) int {
	return embedding.WordCount(text)
}
