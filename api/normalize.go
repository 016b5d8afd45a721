package api

import (
	"fmt"

	"semembed/embedding"

	"github.com/bytedance/sonic"
)

// DefaultMaxInputs matches the OpenAI per-request input limit.
const DefaultMaxInputs = 2048

// Defaults are the process-wide values Normalize falls back on.
type Defaults struct {
	Model     string
	MaxInputs int
}

// Decode parses an embeddings request body.
func Decode(body []byte) (RawRequest, error) {
	var raw RawRequest
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return RawRequest{}, &embedding.Error{
			Kind:    embedding.KindInvalidJSON,
			Message: "request body is not valid JSON",
			Err:     err,
		}
	}
	return raw, nil
}

// Normalize validates raw and turns it into an EmbeddingRequest.
func Normalize(raw RawRequest, d Defaults) (EmbeddingRequest, error) {
	inputs, err := normalizeInput(raw.Input)
	if err != nil {
		return EmbeddingRequest{}, err
	}

	limit := d.MaxInputs
	if limit <= 0 {
		limit = DefaultMaxInputs
	}
	if len(inputs) > limit {
		return EmbeddingRequest{}, embedding.ValidationError(embedding.KindTooManyInputs,
			fmt.Sprintf("too many inputs: %d, at most %d allowed", len(inputs), limit))
	}

	format := raw.EncodingFormat
	switch format {
	case "":
		format = EncodingFloat
	case EncodingFloat, EncodingBase64:
	default:
		return EmbeddingRequest{}, embedding.ValidationError(embedding.KindInvalidEncodingFormat,
			fmt.Sprintf("encoding_format must be %q or %q, got %q", EncodingFloat, EncodingBase64, format))
	}

	model := raw.Model
	if model == "" {
		model = d.Model
	}

	return EmbeddingRequest{Input: inputs, Model: model, EncodingFormat: format}, nil
}

func normalizeInput(input any) ([]string, error) {
	switch v := input.(type) {
	case nil:
		return nil, embedding.ValidationError(embedding.KindEmptyInput, "Input cannot be empty")
	case string:
		return []string{v}, nil
	case []string:
		if len(v) == 0 {
			return nil, embedding.ValidationError(embedding.KindEmptyInput, "Input cannot be empty")
		}
		return v, nil
	case []any:
		if len(v) == 0 {
			return nil, embedding.ValidationError(embedding.KindEmptyInput, "Input cannot be empty")
		}
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, embedding.ValidationError(embedding.KindInvalidInputType,
					fmt.Sprintf("input[%d] must be a string, got %s", i, typeName(item)))
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, embedding.ValidationError(embedding.KindInvalidInputType,
			fmt.Sprintf("input must be a string or an array of strings, got %s", typeName(input)))
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, uint64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
