package grpc

import (
	"context"
	"fmt"

	"semembed/api"
	"semembed/embedding"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Embedder is what the gRPC server serves; engine.Engine implements it.
type Embedder interface {
	Embed(ctx context.Context, raw api.RawRequest) (*api.EmbeddingResponse, error)
	Models() []string
}

type Server struct {
	embedder Embedder
}

func NewServer(embedder Embedder) *Server {
	return &Server{embedder: embedder}
}

// Embed implements EmbeddingServiceServer
func (s *Server) Embed(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	raw := api.RawRequest{
		Model:          fields["model"].GetStringValue(),
		EncodingFormat: fields["encoding_format"].GetStringValue(),
	}
	if v, ok := fields["input"]; ok {
		raw.Input = v.AsInterface()
	}

	resp, err := s.embedder.Embed(ctx, raw)
	if err != nil {
		return nil, toStatus(err)
	}

	data := make([]any, len(resp.Data))
	for i, d := range resp.Data {
		switch v := d.Embedding.(type) {
		case []float32:
			vec := make([]any, len(v))
			for j, f := range v {
				vec[j] = float64(f)
			}
			data[i] = vec
		default:
			data[i] = v
		}
	}
	out, err := structpb.NewStruct(map[string]any{
		"model":         resp.Model,
		"data":          data,
		"prompt_tokens": resp.Usage.PromptTokens,
		"total_tokens":  resp.Usage.TotalTokens,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("fail to encode response: %v", err))
	}
	return out, nil
}

// ListModels implements EmbeddingServiceServer
func (s *Server) ListModels(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	models := s.embedder.Models()
	list := make([]any, len(models))
	for i, m := range models {
		list[i] = m
	}
	out, err := structpb.NewStruct(map[string]any{"models": list})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStatus(err error) error {
	return status.Error(codeFor(embedding.KindOf(err)), err.Error())
}

func codeFor(kind embedding.Kind) codes.Code {
	switch {
	case kind.Class() == embedding.ClassValidation:
		return codes.InvalidArgument
	case kind == embedding.KindUnknownModel:
		return codes.NotFound
	case kind == embedding.KindLoadFailed:
		return codes.Unavailable
	case kind == embedding.KindTimeout:
		return codes.DeadlineExceeded
	case kind == embedding.KindCanceled:
		return codes.Canceled
	default:
		return codes.Internal
	}
}
