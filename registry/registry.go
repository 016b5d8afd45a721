// Package registry owns the loaded model backends. Models are loaded
// lazily on first use, at most once at a time per model id, and kept for
// the lifetime of the process.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"semembed/embedding"

	"golang.org/x/sync/singleflight"
)

// Observer receives the outcome of every load attempt.
type Observer interface {
	ObserveLoad(model string, err error, elapsed time.Duration)
}

type Option func(*Registry)

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Registry maps model ids to loaded handles.
type Registry struct {
	// defs and order are immutable after New
	defs    map[string]embedding.Definition
	order   []string
	loaders map[string]embedding.Loader

	mu      sync.RWMutex
	handles map[string]*embedding.Handle

	group    singleflight.Group
	observer Observer
	logger   *slog.Logger
}

// New builds a registry over the given catalog. loaders is keyed by
// Definition.Backend and must cover every definition.
func New(defs []embedding.Definition, loaders map[string]embedding.Loader, opts ...Option) (*Registry, error) {
	r := &Registry{
		defs:    make(map[string]embedding.Definition, len(defs)),
		loaders: loaders,
		handles: make(map[string]*embedding.Handle),
		logger:  slog.Default(),
	}
	for _, def := range defs {
		if def.ID == "" {
			return nil, errors.New("model definition without id")
		}
		if _, dup := r.defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate model definition %q", def.ID)
		}
		if _, ok := loaders[def.Backend]; !ok {
			return nil, fmt.Errorf("no loader for backend %q of model %q", def.Backend, def.ID)
		}
		r.defs[def.ID] = def
		r.order = append(r.order, def.ID)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the handle for id, loading it if needed. Callers that
// arrive while a load is in flight wait for that load. If ctx ends first
// the caller gets Timeout or Canceled but the load keeps running and its
// result is still stored.
func (r *Registry) Resolve(ctx context.Context, id string) (*embedding.Handle, error) {
	if h, ok := r.lookup(id); ok {
		return h, nil
	}
	def, ok := r.defs[id]
	if !ok {
		return nil, embedding.UnknownModelError(id)
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(id, func() (any, error) {
		return r.load(loadCtx, def)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*embedding.Handle), nil
	case <-ctx.Done():
		return nil, embedding.ContextError(id, ctx.Err())
	}
}

func (r *Registry) load(ctx context.Context, def embedding.Definition) (h *embedding.Handle, err error) {
	if h, ok := r.lookup(def.ID); ok {
		return h, nil
	}

	start := time.Now()
	r.logger.Info("loading model", "model", def.ID, "backend", def.Backend)
	defer func() {
		if p := recover(); p != nil {
			h, err = nil, fmt.Errorf("loader panic: %v", p)
		}
		elapsed := time.Since(start)
		if err != nil {
			err = embedding.LoadFailedError(def.ID, err)
			r.logger.Error("fail to load model", "model", def.ID, "elapsed", elapsed, "error", err)
		} else {
			r.store(h)
			r.logger.Info("model loaded", "model", def.ID, "dimensions", h.Dimensions,
				"max_batch_size", h.MaxBatchSize, "concurrency", h.Concurrency, "elapsed", elapsed)
		}
		if r.observer != nil {
			r.observer.ObserveLoad(def.ID, err, elapsed)
		}
	}()

	h, err = r.loaders[def.Backend](ctx, def)
	if err == nil && h == nil {
		err = errors.New("loader returned no handle")
	}
	if err == nil {
		h.ID = def.ID
	}
	return h, err
}

func (r *Registry) lookup(id string) (*embedding.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

func (r *Registry) store(h *embedding.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.ID] = h
}

// Known reports whether id has a definition.
func (r *Registry) Known(id string) bool {
	_, ok := r.defs[id]
	return ok
}

// Loaded reports whether id has completed a load.
func (r *Registry) Loaded(id string) bool {
	_, ok := r.lookup(id)
	return ok
}

// List returns the sorted ids of all loaded models.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Catalog returns every known definition in catalog order.
func (r *Registry) Catalog() []embedding.Definition {
	defs := make([]embedding.Definition, 0, len(r.order))
	for _, id := range r.order {
		defs = append(defs, r.defs[id])
	}
	return defs
}

// Close releases backends that hold resources.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for id, h := range r.handles {
		if c, ok := h.Backend.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("fail to close model %s: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}
