package api

import (
	"encoding/base64"

	"semembed/embedding"
)

// Format builds the response for vectors in input order.
func Format(vectors [][]float32, usage Usage, model string, encodingFormat string) EmbeddingResponse {
	data := make([]EmbeddingData, len(vectors))
	for i, v := range vectors {
		var value any = v
		if encodingFormat == EncodingBase64 {
			value = base64.StdEncoding.EncodeToString(embedding.VectorToBytes(v))
		}
		data[i] = EmbeddingData{Object: "embedding", Embedding: value, Index: i}
	}
	return EmbeddingResponse{
		Object: "list",
		Data:   data,
		Model:  model,
		Usage:  usage,
	}
}

// CountTokens sums count over inputs. total_tokens equals prompt_tokens
// for embeddings.
func CountTokens(inputs []string, count func(string) int) Usage {
	var n int
	for _, text := range inputs {
		n += count(text)
	}
	return Usage{PromptTokens: n, TotalTokens: n}
}
