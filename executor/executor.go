// Package executor runs inference against loaded model handles.
//
// Each handle gets a fixed number of execution slots (Handle.Concurrency).
// With one slot every call to that model's backend is serialized; with
// more, calls run in parallel up to the limit. Oversized inputs are split
// into chunks of at most Handle.MaxBatchSize and the chunks share the
// same slots as every other request for that model.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"semembed/embedding"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Observer receives one call per backend invocation.
type Observer interface {
	ObserveChunk(model string, size int, elapsed time.Duration)
}

type Option func(*Executor)

func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

type Executor struct {
	mu       sync.Mutex
	slots    map[string]*semaphore.Weighted
	observer Observer
}

func New(opts ...Option) *Executor {
	e := &Executor{slots: make(map[string]*semaphore.Weighted)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns one vector per input in input order. Any chunk failure
// fails the whole call and no vectors are returned.
//
// Backend calls are not interrupted when ctx ends: the call finishes in
// the background, keeps its slot until then, and its result is dropped.
func (e *Executor) Embed(ctx context.Context, h *embedding.Handle, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	if len(inputs) == 0 {
		return out, nil
	}

	size := h.MaxBatchSize
	if size <= 0 {
		size = embedding.DefaultMaxBatchSize
	}
	slot := e.slot(h)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(h.Concurrency, 1))
	for start := 0; start < len(inputs); start += size {
		end := min(start+size, len(inputs))
		g.Go(func() error {
			return e.runChunk(gctx, h, slot, inputs[start:end], out[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type chunkResult struct {
	vecs [][]float32
	err  error
}

func (e *Executor) runChunk(ctx context.Context, h *embedding.Handle, slot *semaphore.Weighted, texts []string, dst [][]float32) error {
	if err := slot.Acquire(ctx, 1); err != nil {
		return embedding.ContextError(h.ID, err)
	}

	done := make(chan chunkResult, 1)
	go func() {
		defer slot.Release(1)
		start := time.Now()
		vecs, err := invoke(context.WithoutCancel(ctx), h.Backend, texts)
		if e.observer != nil {
			e.observer.ObserveChunk(h.ID, len(texts), time.Since(start))
		}
		done <- chunkResult{vecs: vecs, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return embedding.BackendError(h.ID, res.err)
		}
		if err := check(h, texts, res.vecs); err != nil {
			return embedding.BackendError(h.ID, err)
		}
		copy(dst, res.vecs)
		return nil
	case <-ctx.Done():
		return embedding.ContextError(h.ID, ctx.Err())
	}
}

func invoke(ctx context.Context, b embedding.Backend, texts []string) (vecs [][]float32, err error) {
	defer func() {
		if p := recover(); p != nil {
			vecs, err = nil, fmt.Errorf("backend panic: %v", p)
		}
	}()
	return b.Embed(ctx, texts)
}

func check(h *embedding.Handle, texts []string, vecs [][]float32) error {
	if len(vecs) != len(texts) {
		return fmt.Errorf("backend returned %d vectors for %d inputs", len(vecs), len(texts))
	}
	if h.Dimensions <= 0 {
		return nil
	}
	for i, v := range vecs {
		if len(v) != h.Dimensions {
			return fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(v), h.Dimensions)
		}
	}
	return nil
}

func (e *Executor) slot(h *embedding.Handle) *semaphore.Weighted {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[h.ID]
	if !ok {
		s = semaphore.NewWeighted(int64(max(h.Concurrency, 1)))
		e.slots[h.ID] = s
	}
	return s
}
