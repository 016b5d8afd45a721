// Package api holds the OpenAI-compatible wire types together with the
// request normalizer and response formatter.
package api

// RawRequest is an embeddings request body before validation.
// Input is whatever the decoder produced: a string, a []any, or
// something invalid.
type RawRequest struct {
	Input          any    `json:"input"`
	Model          string `json:"model,omitempty"`
	EncodingFormat string `json:"encoding_format,omitempty"`
	User           string `json:"user,omitempty"`
}

// EmbeddingRequest is a validated request.
type EmbeddingRequest struct {
	Input          []string
	Model          string
	EncodingFormat string
}

const (
	EncodingFloat  = "float"
	EncodingBase64 = "base64"
)

// EmbeddingResponse represents the response of the embeddings endpoint
type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  Usage           `json:"usage"`
}

// EmbeddingData carries one vector. Embedding is a []float32, or a base64
// string when the request asked for base64.
type EmbeddingData struct {
	Object    string `json:"object"`
	Embedding any    `json:"embedding"`
	Index     int    `json:"index"`
}

type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status string   `json:"status"`
	Ready  bool     `json:"ready"`
	Model  string   `json:"model"`
	Models []string `json:"models"`
}

type ModelsResponse struct {
	Models []string `json:"models"`
}

// ModelList is the OpenAI-style catalog listing.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

type ModelInfo struct {
	ID         string `json:"id"`
	Object     string `json:"object"`
	OwnedBy    string `json:"owned_by"`
	Loaded     bool   `json:"loaded"`
	Dimensions int    `json:"dimensions,omitempty"`
}
