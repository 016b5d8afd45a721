// Package engine ties request validation, model resolution, batch
// execution, response formatting and metrics together. It is the single
// entry point shared by the HTTP and gRPC front ends.
package engine

import (
	"context"
	"log/slog"
	"time"

	"semembed/api"
	"semembed/cache"
	"semembed/embedding"
	"semembed/executor"
	"semembed/metrics"
	"semembed/registry"
)

// unlabeledModel replaces model names that are not in the catalog so
// arbitrary client input cannot grow metric cardinality.
const unlabeledModel = "unknown"

const (
	defaultPreloadBackoff = time.Second
	maxPreloadBackoff     = 30 * time.Second
)

type Config struct {
	DefaultModel   string
	MaxInputs      int
	RequestTimeout time.Duration
}

type Option func(*Engine)

// WithCache enables the embedding result cache.
func WithCache(c cache.Service) Option {
	return func(e *Engine) { e.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPreloadBackoff sets the first retry delay of Preload.
func WithPreloadBackoff(d time.Duration) Option {
	return func(e *Engine) { e.preloadBackoff = d }
}

type Engine struct {
	cfg      Config
	registry *registry.Registry
	executor *executor.Executor
	metrics  *metrics.Collector
	cache    cache.Service
	logger   *slog.Logger

	preloadBackoff time.Duration
}

func New(cfg Config, reg *registry.Registry, exec *executor.Executor, m *metrics.Collector, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		registry: reg,
		executor: exec,
		metrics:  m,
		logger:   slog.Default(),

		preloadBackoff: defaultPreloadBackoff,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Health is the readiness snapshot.
type Health struct {
	Ready        bool
	Model        string
	LoadedModels []string
}

// Embed serves one embeddings request and records its outcome.
func (e *Engine) Embed(ctx context.Context, raw api.RawRequest) (*api.EmbeddingResponse, error) {
	start := time.Now()
	resp, err := e.embed(ctx, raw)

	ev := metrics.Event{
		Model:   e.metricModel(raw.Model),
		Outcome: embedding.KindOf(err),
		Latency: time.Since(start),
	}
	if resp != nil {
		ev.Tokens = resp.Usage.PromptTokens
		ev.Inputs = len(resp.Data)
	}
	e.metrics.Record(ev)

	if err != nil {
		e.logger.Debug("embedding request failed", "model", raw.Model, "kind", ev.Outcome, "error", err)
	}
	return resp, err
}

// Reject records a request that failed before it reached Embed, such as
// an undecodable body.
func (e *Engine) Reject(model string, err error) {
	e.metrics.Record(metrics.Event{
		Model:   e.metricModel(model),
		Outcome: embedding.KindOf(err),
	})
}

func (e *Engine) embed(ctx context.Context, raw api.RawRequest) (*api.EmbeddingResponse, error) {
	req, err := api.Normalize(raw, api.Defaults{Model: e.cfg.DefaultModel, MaxInputs: e.cfg.MaxInputs})
	if err != nil {
		return nil, err
	}

	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	h, err := e.registry.Resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	vecs, err := e.vectors(ctx, h, req.Input)
	if err != nil {
		return nil, err
	}

	usage := api.CountTokens(req.Input, h.Backend.TokenCount)
	resp := api.Format(vecs, usage, h.ID, req.EncodingFormat)
	return &resp, nil
}

// vectors serves what it can from the cache and embeds the rest.
func (e *Engine) vectors(ctx context.Context, h *embedding.Handle, inputs []string) ([][]float32, error) {
	if e.cache == nil {
		return e.executor.Embed(ctx, h, inputs)
	}

	cached, err := e.cache.Get(ctx, h.ID, inputs)
	if err != nil {
		e.logger.Warn("embedding cache lookup failed", "model", h.ID, "error", err)
		cached = nil
	}

	out := make([][]float32, len(inputs))
	var missIdx []int
	var missTexts []string
	for i, text := range inputs {
		if cached != nil && usable(h, cached[i]) {
			out[i] = cached[i]
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	e.metrics.ObserveCache(h.ID, len(inputs)-len(missIdx), len(missIdx), err)

	if len(missTexts) == 0 {
		return out, nil
	}
	vecs, err := e.executor.Embed(ctx, h, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := e.cache.Set(ctx, cache.Task{Model: h.ID, Text: missTexts[j], Embedding: vecs[j]}); err != nil {
			e.logger.Debug("embedding cache write skipped", "model", h.ID, "error", err)
		}
	}
	return out, nil
}

func usable(h *embedding.Handle, v []float32) bool {
	if v == nil {
		return false
	}
	return h.Dimensions <= 0 || len(v) == h.Dimensions
}

func (e *Engine) metricModel(model string) string {
	if model == "" {
		return e.cfg.DefaultModel
	}
	if !e.registry.Known(model) {
		return unlabeledModel
	}
	return model
}

// Preload starts loading the default model in the background. Failed
// loads are retried with exponential backoff until one succeeds or ctx
// ends. Requests may still trigger the load on their own meanwhile.
func (e *Engine) Preload(ctx context.Context) {
	go func() {
		backoff := e.preloadBackoff
		if backoff <= 0 {
			backoff = defaultPreloadBackoff
		}
		for {
			_, err := e.registry.Resolve(ctx, e.cfg.DefaultModel)
			if err == nil {
				return
			}
			e.logger.Error("fail to preload default model", "model", e.cfg.DefaultModel,
				"retry_in", backoff, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxPreloadBackoff)
		}
	}()
}

// Health reports readiness. It is advisory: requests for the default
// model are accepted before it is loaded and load it on demand.
func (e *Engine) Health() Health {
	return Health{
		Ready:        e.registry.Loaded(e.cfg.DefaultModel),
		Model:        e.cfg.DefaultModel,
		LoadedModels: e.registry.List(),
	}
}

// Models returns the ids of loaded models.
func (e *Engine) Models() []string {
	return e.registry.List()
}

// Catalog describes every known model.
func (e *Engine) Catalog() []api.ModelInfo {
	defs := e.registry.Catalog()
	out := make([]api.ModelInfo, 0, len(defs))
	for _, def := range defs {
		owner := def.OwnedBy
		if owner == "" {
			owner = "semembed"
		}
		out = append(out, api.ModelInfo{
			ID:         def.ID,
			Object:     "model",
			OwnedBy:    owner,
			Loaded:     e.registry.Loaded(def.ID),
			Dimensions: def.Dimensions,
		})
	}
	return out
}

func (e *Engine) DefaultModel() string {
	return e.cfg.DefaultModel
}
