package cache

import "context"

// Service defines the interface for embedding cache operations. Entries
// are exact: a hit requires the same model and the same text.
type Service interface {
	// Get returns one entry per text; misses are nil.
	Get(ctx context.Context, model string, texts []string) ([][]float32, error)
	// Set queues an entry for writing and does not wait for it.
	Set(ctx context.Context, item Task) error
	Shutdown()
}

// Task represents a cache write
type Task struct {
	Model     string
	Text      string
	Embedding []float32
}
