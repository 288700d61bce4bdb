package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kdudkov/tileview/pkg/metrics"
	"github.com/kdudkov/tileview/pkg/model"
	"github.com/kdudkov/tileview/pkg/store"
)

const defaultReadyBuffer = 256

// ErrStopped is returned by Start once the scheduler has been stopped. A
// scheduler runs once; a new one is needed to download again.
var ErrStopped = errors.New("scheduler stopped")

type Fetcher interface {
	Fetch(ctx context.Context, a model.Address) ([]byte, error)
}

// Ready is sent after a tile was downloaded. Data holds the fetched bytes so
// the receiver does not depend on the store write having succeeded.
type Ready struct {
	Address model.Address
	Data    []byte
}

type Config struct {
	// Name labels logs and metrics, usually the source key.
	Name    string
	Workers int
	// Buffer is the capacity of the Ready channel.
	Buffer int
}

// Scheduler runs a fixed pool of workers draining a LIFO queue of download
// requests into the store.
type Scheduler struct {
	name        string
	workers     int
	fetcher     Fetcher
	store       store.Store
	queue       *Queue
	unreachable *UnreachableSet
	ready       chan Ready
	logger      *zap.SugaredLogger

	wg     sync.WaitGroup
	mx     sync.Mutex
	cancel context.CancelFunc
}

func New(cfg Config, f Fetcher, st store.Store, unreachable *UnreachableSet, logger *zap.SugaredLogger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultReadyBuffer
	}

	if unreachable == nil {
		unreachable = NewUnreachableSet()
	}

	return &Scheduler{
		name:        cfg.Name,
		workers:     cfg.Workers,
		fetcher:     f,
		store:       st,
		queue:       NewQueue(),
		unreachable: unreachable,
		ready:       make(chan Ready, cfg.Buffer),
		logger:      logger.With("source", cfg.Name),
	}
}

// Ready delivers a notification for every successful download.
func (s *Scheduler) Ready() <-chan Ready {
	return s.ready
}

func (s *Scheduler) Unreachable() *UnreachableSet {
	return s.unreachable
}

func (s *Scheduler) IsUnreachable(key string) bool {
	return s.unreachable.Has(key)
}

func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Enqueue queues a download unless the address is invalid or known to be
// unreachable, or the scheduler is stopped. Duplicates are accepted.
func (s *Scheduler) Enqueue(a model.Address) bool {
	if !a.Valid() || s.unreachable.Has(a.Key()) {
		return false
	}

	if !s.queue.Push(Request{Address: a}) {
		return false
	}

	metrics.QueueDepth.WithLabelValues(s.name).Set(float64(s.queue.Len()))

	return true
}

// Start launches the workers. They run until ctx is done or Stop is called.
// Starting a running scheduler does nothing; starting a stopped one returns
// ErrStopped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.queue.Closed() {
		return ErrStopped
	}

	if s.cancel != nil {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		<-ctx.Done()
		s.queue.Close()
	}()

	s.logger.Infow("starting download workers", "workers", s.workers)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)

		go func(n int) {
			defer s.wg.Done()
			s.worker(ctx, n)
		}(i)
	}

	return nil
}

// Stop cancels the workers and waits for them. In-flight fetches are
// interrupted only through the request context.
func (s *Scheduler) Stop() {
	s.mx.Lock()
	cancel := s.cancel
	s.mx.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, n int) {
	logger := s.logger.With("worker", n)

	for {
		r, ok := s.queue.Pop()
		if !ok {
			logger.Debugw("worker stopped")
			return
		}

		metrics.QueueDepth.WithLabelValues(s.name).Set(float64(s.queue.Len()))
		s.process(ctx, logger, r)
	}
}

func (s *Scheduler) process(ctx context.Context, logger *zap.SugaredLogger, r Request) {
	a := r.Address
	key := a.Key()

	if s.unreachable.Has(key) {
		logger.Debugw("skip unreachable", "tile", key)
		return
	}

	if _, err := s.store.Load(a); err == nil {
		logger.Debugw("already stored", "tile", key)
		return
	}

	start := time.Now()
	data, err := s.fetcher.Fetch(ctx, a)
	metrics.DownloadDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return
		}

		s.markUnreachable(logger, a, err)
		return
	}

	if _, err := store.Validate(data); err != nil {
		s.markUnreachable(logger, a, err)
		return
	}

	metrics.Downloads.WithLabelValues(s.name).Inc()

	if err := s.store.Save(a, data); err != nil {
		metrics.PersistErrors.WithLabelValues(s.name).Inc()
		logger.Errorw("can't store tile", "tile", key, "error", err)
	}

	select {
	case s.ready <- Ready{Address: a, Data: data}:
	case <-ctx.Done():
	}
}

func (s *Scheduler) markUnreachable(logger *zap.SugaredLogger, a model.Address, err error) {
	s.unreachable.Add(a.Key())
	metrics.DownloadErrors.WithLabelValues(s.name).Inc()
	logger.Warnw("tile unreachable", "tile", a.Key(), "error", err)
}
