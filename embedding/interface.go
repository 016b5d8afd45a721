package embedding

//go:generate mockgen -source=interface.go -destination=mock/backend.go -package=mock

import "context"

// Backend is a loaded inference engine for one model.
type Backend interface {
	// Embed returns one vector per text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// TokenCount is used for usage accounting.
	TokenCount(text string) int
}

// Loader constructs and initializes the backend for a model definition.
// It may block for a long time (downloads, warm-up).
type Loader func(ctx context.Context, def Definition) (*Handle, error)

// Definition describes a model the service knows how to load.
type Definition struct {
	ID           string `toml:"id" validate:"required"`
	Backend      string `toml:"backend" validate:"required,oneof=openai grpc hash"`
	Dimensions   int    `toml:"dimensions" validate:"gte=0"`
	MaxBatchSize int    `toml:"max_batch_size" validate:"gte=0"`
	Concurrency  int    `toml:"concurrency" validate:"gte=0"`
	Endpoint     string `toml:"endpoint"`
	RemoteModel  string `toml:"remote_model"`
	APIKeyEnv    string `toml:"api_key_env"`
	OwnedBy      string `toml:"owned_by"`
}

// Handle is a loaded backend bound to exactly one model id.
type Handle struct {
	ID           string
	Backend      Backend
	Dimensions   int
	MaxBatchSize int
	Concurrency  int
}

const (
	DefaultMaxBatchSize = 256
	DefaultConcurrency  = 1
)

// NewHandle fills batch and concurrency defaults from def.
func NewHandle(def Definition, backend Backend, dimensions int) *Handle {
	h := &Handle{
		ID:           def.ID,
		Backend:      backend,
		Dimensions:   dimensions,
		MaxBatchSize: def.MaxBatchSize,
		Concurrency:  def.Concurrency,
	}
	if h.MaxBatchSize <= 0 {
		h.MaxBatchSize = DefaultMaxBatchSize
	}
	if h.Concurrency <= 0 {
		h.Concurrency = DefaultConcurrency
	}
	return h
}
