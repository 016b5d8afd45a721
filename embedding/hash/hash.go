// Package hash is a deterministic local backend. Vectors are derived from
// an md5 digest of the text and carry no semantic meaning; it exists for
// development and tests.
package hash

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"

	"semembed/embedding"
)

const defaultDimensions = 384

// Service implements embedding.Backend.
type Service struct {
	dimensions int
}

func New(dimensions int) *Service {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &Service{dimensions: dimensions}
}

// Load is an embedding.Loader for hash models.
func Load(ctx context.Context, def embedding.Definition) (*embedding.Handle, error) {
	s := New(def.Dimensions)
	return embedding.NewHandle(def, s, s.dimensions), nil
}

// Embed implements embedding.Backend
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = s.vector(text)
	}
	return out, nil
}

// TokenCount implements embedding.Backend
func (s *Service) TokenCount(text string) int {
	return embedding.WordCount(text)
}

func (s *Service) Dimensions() int {
	return s.dimensions
}

func (s *Service) vector(text string) []float32 {
	v := make([]float32, s.dimensions)
	var block [md5.Size]byte
	for i := 0; i < s.dimensions; i++ {
		// a fresh digest every four dimensions keeps long vectors from repeating
		if i%4 == 0 {
			var counter [4]byte
			binary.LittleEndian.PutUint32(counter[:], uint32(i/4))
			block = md5.Sum(append(counter[:], text...))
		}
		seed := binary.LittleEndian.Uint32(block[(i%4)*4:])
		v[i] = float32(seed%1000)/500.0 - 1.0
	}
	normalize(v)
	return v
}

func normalize(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return
	}
	mag := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= mag
	}
}
