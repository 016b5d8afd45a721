package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"semembed/embedding"
	"semembed/embedding/hash"
)

type countingLoader struct {
	calls   atomic.Int32
	release chan struct{}
	fail    atomic.Bool
	panics  atomic.Bool
}

func (l *countingLoader) load(ctx context.Context, def embedding.Definition) (*embedding.Handle, error) {
	l.calls.Inc()
	if l.release != nil {
		<-l.release
	}
	if l.panics.Load() {
		panic("weights corrupted")
	}
	if l.fail.Load() {
		return nil, errors.New("network unreachable")
	}
	return hash.Load(ctx, def)
}

type recordingObserver struct {
	mu    sync.Mutex
	loads []error
}

func (o *recordingObserver) ObserveLoad(model string, err error, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loads = append(o.loads, err)
}

func newRegistry(t *testing.T, l *countingLoader, opts ...Option) *Registry {
	t.Helper()
	defs := []embedding.Definition{
		{ID: "m1", Backend: "test", Dimensions: 3},
		{ID: "m2", Backend: "test", Dimensions: 4},
	}
	r, err := New(defs, map[string]embedding.Loader{"test": l.load}, opts...)
	require.NoError(t, err)
	return r
}

func TestResolveCaches(t *testing.T) {
	l := &countingLoader{}
	r := newRegistry(t, l)

	h1, err := r.Resolve(context.Background(), "m1")
	require.NoError(t, err)
	h2, err := r.Resolve(context.Background(), "m1")
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, "m1", h1.ID)
	assert.Equal(t, 3, h1.Dimensions)
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestConcurrentResolveLoadsOnce(t *testing.T) {
	l := &countingLoader{release: make(chan struct{})}
	r := newRegistry(t, l)

	const callers = 16
	handles := make([]*embedding.Handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := r.Resolve(context.Background(), "m1")
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}

	require.Eventually(t, func() bool { return l.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(l.release)
	wg.Wait()

	assert.EqualValues(t, 1, l.calls.Load())
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestConcurrentResolveSharesFailure(t *testing.T) {
	l := &countingLoader{release: make(chan struct{})}
	l.fail.Store(true)
	r := newRegistry(t, l)

	const callers = 8
	errs := make([]error, callers)
	var wg, started sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			_, errs[i] = r.Resolve(context.Background(), "m1")
		}(i)
	}
	started.Wait()
	require.Eventually(t, func() bool { return l.calls.Load() == 1 }, time.Second, time.Millisecond)
	// give the remaining callers time to join the in-flight load
	time.Sleep(50 * time.Millisecond)
	close(l.release)
	wg.Wait()

	assert.EqualValues(t, 1, l.calls.Load())
	for _, err := range errs {
		assert.True(t, embedding.IsLoadFailed(err))
	}
	assert.False(t, r.Loaded("m1"))
}

func TestResolveUnknownModel(t *testing.T) {
	l := &countingLoader{}
	r := newRegistry(t, l)

	_, err := r.Resolve(context.Background(), "nope")
	assert.True(t, embedding.IsUnknownModel(err))
	assert.EqualValues(t, 0, l.calls.Load())
	assert.False(t, r.Known("nope"))
}

func TestFailedLoadIsRetried(t *testing.T) {
	l := &countingLoader{}
	l.fail.Store(true)
	obs := &recordingObserver{}
	r := newRegistry(t, l, WithObserver(obs))

	_, err := r.Resolve(context.Background(), "m1")
	require.Error(t, err)
	assert.Equal(t, embedding.KindLoadFailed, embedding.KindOf(err))
	assert.ErrorContains(t, err, "network unreachable")

	l.fail.Store(false)
	h, err := r.Resolve(context.Background(), "m1")
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.EqualValues(t, 2, l.calls.Load())

	require.Len(t, obs.loads, 2)
	assert.Error(t, obs.loads[0])
	assert.NoError(t, obs.loads[1])
}

func TestLoaderPanicBecomesLoadFailed(t *testing.T) {
	l := &countingLoader{}
	l.panics.Store(true)
	r := newRegistry(t, l)

	_, err := r.Resolve(context.Background(), "m1")
	assert.True(t, embedding.IsLoadFailed(err))
	assert.ErrorContains(t, err, "weights corrupted")

	l.panics.Store(false)
	_, err = r.Resolve(context.Background(), "m1")
	assert.NoError(t, err)
}

func TestTimedOutResolveStillPopulates(t *testing.T) {
	l := &countingLoader{release: make(chan struct{})}
	r := newRegistry(t, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Resolve(ctx, "m1")
	assert.Equal(t, embedding.KindTimeout, embedding.KindOf(err))
	assert.False(t, r.Loaded("m1"))

	close(l.release)
	assert.Eventually(t, func() bool { return r.Loaded("m1") }, time.Second, time.Millisecond)

	_, err = r.Resolve(context.Background(), "m1")
	assert.NoError(t, err)
	assert.EqualValues(t, 1, l.calls.Load())
}

func TestListAndCatalog(t *testing.T) {
	r := newRegistry(t, &countingLoader{})
	assert.Empty(t, r.List())

	_, err := r.Resolve(context.Background(), "m2")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m2"}, r.List())
	catalog := r.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "m1", catalog[0].ID)
	assert.Equal(t, "m2", catalog[1].ID)
}

func TestNewRejectsBadCatalog(t *testing.T) {
	loaders := map[string]embedding.Loader{"hash": hash.Load}

	_, err := New([]embedding.Definition{{ID: "m", Backend: "openai"}}, loaders)
	assert.ErrorContains(t, err, "no loader")

	_, err = New([]embedding.Definition{{ID: "m", Backend: "hash"}, {ID: "m", Backend: "hash"}}, loaders)
	assert.ErrorContains(t, err, "duplicate")

	_, err = New([]embedding.Definition{{Backend: "hash"}}, loaders)
	assert.Error(t, err)
}

type closingBackend struct {
	*hash.Service
	closed atomic.Bool
}

func (c *closingBackend) Close() error {
	c.closed.Store(true)
	return nil
}

func TestClose(t *testing.T) {
	backend := &closingBackend{Service: hash.New(3)}
	loader := func(ctx context.Context, def embedding.Definition) (*embedding.Handle, error) {
		return embedding.NewHandle(def, backend, 3), nil
	}
	r, err := New([]embedding.Definition{{ID: "m", Backend: "c"}}, map[string]embedding.Loader{"c": loader})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "m")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.True(t, backend.closed.Load())
}
