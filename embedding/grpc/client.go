package grpc

import (
	"context"
	"fmt"

	"semembed/embedding"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client implements embedding.Backend against a remote EmbeddingService.
type Client struct {
	conn  *grpc.ClientConn
	model string
}

// NewClient connects lazily; the first call establishes the connection.
func NewClient(address string, model string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMessageSize)),
	}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to embedding service: %w", err)
	}
	return &Client{conn: conn, model: model}, nil
}

// Load is an embedding.Loader for models served by another instance.
func Load(ctx context.Context, def embedding.Definition) (*embedding.Handle, error) {
	remote := def.RemoteModel
	if remote == "" {
		remote = def.ID
	}
	c, err := NewClient(def.Endpoint, remote)
	if err != nil {
		return nil, err
	}
	return probe(ctx, def, c)
}

func probe(ctx context.Context, def embedding.Definition, c *Client) (*embedding.Handle, error) {
	vecs, err := c.Embed(ctx, []string{"ping"})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("fail to probe embedding service %s: %w", def.Endpoint, err)
	}
	dimensions := len(vecs[0])
	if def.Dimensions > 0 && def.Dimensions != dimensions {
		c.Close()
		return nil, fmt.Errorf("service returned %d dimensions, model %s expects %d", dimensions, def.ID, def.Dimensions)
	}
	return embedding.NewHandle(def, c, dimensions), nil
}

// Embed implements embedding.Backend
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]any, len(texts))
	for i, text := range texts {
		input[i] = text
	}
	req, err := structpb.NewStruct(map[string]any{
		"input": input,
		"model": c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to encode embedding request: %w", err)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, embedMethod, req, resp); err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	data := resp.GetFields()["data"].GetListValue().GetValues()
	if len(data) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(data), len(texts))
	}
	out := make([][]float32, len(data))
	for i, item := range data {
		values := item.GetListValue().GetValues()
		vec := make([]float32, len(values))
		for j, v := range values {
			vec[j] = float32(v.GetNumberValue())
		}
		out[i] = vec
	}
	return out, nil
}

// Models lists the models loaded on the remote instance.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, listModelsMethod, &structpb.Struct{}, resp); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	values := resp.GetFields()["models"].GetListValue().GetValues()
	models := make([]string, len(values))
	for i, v := range values {
		models[i] = v.GetStringValue()
	}
	return models, nil
}

// TokenCount implements embedding.Backend
func (c *Client) TokenCount(text string) int {
	return embedding.WordCount(text)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
