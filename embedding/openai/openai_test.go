package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semembed/embedding"
)

type fakeRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// newFakeServer answers with [len(text), index] vectors, listed in reverse.
func newFakeServer(t *testing.T, seen *[]fakeRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req fakeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*seen = append(*seen, req)

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), float32(i)},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedOrdersByIndex(t *testing.T) {
	var seen []fakeRequest
	srv := newFakeServer(t, &seen)

	s := New(srv.URL+"/v1", "remote-model", "")
	vecs, err := s.Embed(context.Background(), []string{"a", "bbb", ""})
	require.NoError(t, err)

	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{3, 1}, vecs[1])
	assert.Equal(t, []float32{1, 2}, vecs[2])

	require.Len(t, seen, 1)
	assert.Equal(t, "remote-model", seen[0].Model)
	assert.Equal(t, []string{"a", "bbb", " "}, seen[0].Input)
}

func TestLoadProbesDimensions(t *testing.T) {
	var seen []fakeRequest
	srv := newFakeServer(t, &seen)

	h, err := Load(context.Background(), embedding.Definition{
		ID:           "m1",
		Backend:      "openai",
		Endpoint:     srv.URL + "/v1",
		MaxBatchSize: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, h.Dimensions)
	assert.Equal(t, 4, h.MaxBatchSize)
	require.Len(t, seen, 1)
	assert.Equal(t, "m1", seen[0].Model)
}

func TestLoadSendsRemoteModelName(t *testing.T) {
	var seen []fakeRequest
	srv := newFakeServer(t, &seen)

	h, err := Load(context.Background(), embedding.Definition{
		ID:          "small",
		Backend:     "openai",
		Endpoint:    srv.URL + "/v1",
		RemoteModel: "BAAI/bge-small-en-v1.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "small", h.ID)

	_, err = h.Backend.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	for _, req := range seen {
		assert.Equal(t, "BAAI/bge-small-en-v1.5", req.Model)
	}
}

func TestLoadDimensionMismatch(t *testing.T) {
	var seen []fakeRequest
	srv := newFakeServer(t, &seen)

	_, err := Load(context.Background(), embedding.Definition{
		ID:         "m1",
		Backend:    "openai",
		Endpoint:   srv.URL + "/v1",
		Dimensions: 384,
	})
	assert.ErrorContains(t, err, "expects 384")
}

func TestLoadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"down","type":"server_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), embedding.Definition{ID: "m1", Backend: "openai", Endpoint: srv.URL + "/v1"})
	assert.Error(t, err)
}
