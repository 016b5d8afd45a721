package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"semembed/cache"
	"semembed/embedding"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"
)

const keyPrefix = "semembed"

var ErrQueueFull = errors.New("cache write queue is full")

// Service implements cache.Service using Redis as the backend. Writes
// go through a buffered queue drained by a fixed set of workers.
type Service struct {
	taskChan chan cache.Task
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	client   *redis.Client
	ttl      time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("fail to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// New creates a new Redis cache service and starts its workers.
func New(client *redis.Client, bufferSize int, workerCount int, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		taskChan: make(chan cache.Task, bufferSize),
		ctx:      ctx,
		cancel:   cancel,
		client:   client,
		ttl:      ttl,
		logger:   logger,
	}
	s.start(workerCount)
	return s
}

// Get implements cache.Service
func (s *Service) Get(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = Key(model, text)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fail to read embedding cache: %w", err)
	}
	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			continue
		}
		vec, err := embedding.BytesToVector([]byte(str))
		if err != nil {
			s.logger.Warn("ignoring corrupt cache entry", "key", keys[i], "error", err)
			continue
		}
		out[i] = vec
	}
	return out, nil
}

// Set implements cache.Service
func (s *Service) Set(ctx context.Context, item cache.Task) error {
	if !s.submit(item) {
		return ErrQueueFull
	}
	return nil
}

// Shutdown implements cache.Service. Queued writes are flushed first.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.taskChan)
	s.mu.Unlock()

	s.logger.Info("shutting down cache service")
	s.wg.Wait()
	s.cancel()
	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn("cache writes dropped", "count", n)
	}
	s.logger.Info("cache service stopped")
}

// Dropped returns how many writes were discarded because the queue was full.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// Key returns the redis key for model and text.
func Key(model string, text string) string {
	return fmt.Sprintf("%s:%s:%d:%016x", keyPrefix, model, len(text), xxhash.Sum64String(text))
}

func (s *Service) start(workerCount int) {
	for i := 0; i < workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Info("started embedding cache workers", "count", workerCount)
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	for task := range s.taskChan {
		if err := s.processTask(task); err != nil {
			s.logger.Error("fail to process cache task", "worker", id, "error", err)
		}
	}
	s.logger.Debug("cache worker stopped", "worker", id)
}

func (s *Service) processTask(task cache.Task) error {
	key := Key(task.Model, task.Text)
	if err := s.client.Set(s.ctx, key, embedding.VectorToBytes(task.Embedding), s.ttl).Err(); err != nil {
		return fmt.Errorf("fail to store embedding in redis: %w", err)
	}
	s.logger.Debug("stored embedding", "model", task.Model, "key", key)
	return nil
}

func (s *Service) submit(task cache.Task) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.taskChan <- task:
		return true
	default:
		s.dropped.Inc()
		return false
	}
}
