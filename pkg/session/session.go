package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kdudkov/tileview/pkg/cache"
	"github.com/kdudkov/tileview/pkg/model"
	"github.com/kdudkov/tileview/pkg/planner"
	"github.com/kdudkov/tileview/pkg/scheduler"
	"github.com/kdudkov/tileview/pkg/store"
)

type Options struct {
	Workers  int
	TileSize int
	// Buffer is the size of the download notification channel.
	Buffer int
}

// Session is one map view over one source. It owns the memory cache, the
// download queue and the unreachable set, so independent views never share
// state. Plan, Drain, Notify and Tile run under one lock; that lock is the
// only owner of the cache. Observer calls are made after it is released.
//
// Downloads are reported on a bounded channel. A consumer must call Drain
// (once per frame) or keep Run going; once the channel is full the workers
// block and no more tiles are downloaded.
type Session struct {
	mx        sync.Mutex
	src       *model.Source
	store     store.Store
	cache     *cache.TileCache
	scheduler *scheduler.Scheduler
	planner   *planner.Planner
	observer  Observer
	capacity  int
	logger    *zap.SugaredLogger
}

func New(src *model.Source, st store.Store, f scheduler.Fetcher, opts Options, logger *zap.SugaredLogger) *Session {
	logger = logger.With("source", src.Key)

	c := cache.New()
	sch := scheduler.New(scheduler.Config{
		Name:    src.Key,
		Workers: opts.Workers,
		Buffer:  opts.Buffer,
	}, f, st, scheduler.NewUnreachableSet(), logger)

	p := planner.New(src.Key, opts.TileSize, c, st, sch, logger)

	return &Session{
		src:       src,
		store:     st,
		cache:     c,
		scheduler: sch,
		planner:   p,
		observer:  nopObserver{},
		capacity:  p.Capacity(0, 0),
		logger:    logger,
	}
}

func (s *Session) Source() *model.Source {
	return s.src
}

func (s *Session) Store() store.Store {
	return s.store
}

func (s *Session) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

func (s *Session) Planner() *planner.Planner {
	return s.planner
}

func (s *Session) SetObserver(o Observer) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if o == nil {
		o = nopObserver{}
	}

	s.observer = o
}

// Start launches the download workers.
func (s *Session) Start(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

// Close stops the workers and closes the store.
func (s *Session) Close() error {
	s.scheduler.Stop()
	return s.store.Close()
}

// Plan runs one planner pass over the viewport.
func (s *Session) Plan(vp planner.Viewport) planner.Plan {
	s.mx.Lock()
	plan := s.planner.Plan(vp)
	s.capacity = plan.Capacity
	o := s.observer
	s.mx.Unlock()

	notify(o, plan.Resolved)

	return plan
}

// Drain handles every download notification already waiting, without
// blocking. It returns the number of tiles put into the cache.
func (s *Session) Drain() int {
	s.mx.Lock()
	done := s.drain(nil)
	o := s.observer
	s.mx.Unlock()

	notify(o, done)

	return len(done)
}

// Run drains notifications as they arrive until ctx is done.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.scheduler.Ready():
			// pick up whatever arrived meanwhile in one redraw
			s.mx.Lock()
			done := s.drain(s.handle(nil, r))
			o := s.observer
			s.mx.Unlock()

			notify(o, done)
		}
	}
}

// drain appends every waiting notification that was put into the cache.
// Callers hold s.mx.
func (s *Session) drain(done []model.Address) []model.Address {
	for {
		select {
		case r := <-s.scheduler.Ready():
			done = s.handle(done, r)
		default:
			return done
		}
	}
}

func (s *Session) handle(done []model.Address, r scheduler.Ready) []model.Address {
	if s.cache.Has(r.Address) {
		return done
	}

	if _, err := s.planner.Insert(r.Address, r.Data, s.capacity); err != nil {
		s.logger.Warnw("can't decode downloaded tile", "tile", r.Address.Key(), "error", err)
		return done
	}

	return append(done, r.Address)
}

// notify runs outside s.mx, so observers may call back into the session.
func notify(o Observer, done []model.Address) {
	for _, a := range done {
		o.OnTileReady(a)
	}

	if len(done) > 0 {
		o.RequestRedraw()
	}
}

// Notify loads a tile that appeared in the store from outside the scheduler.
func (s *Session) Notify(a model.Address) bool {
	s.mx.Lock()

	if s.cache.Has(a) {
		s.mx.Unlock()
		return false
	}

	var done []model.Address

	if data, err := s.store.Load(a); err == nil {
		done = s.handle(nil, scheduler.Ready{Address: a, Data: data})
	}

	o := s.observer
	s.mx.Unlock()

	notify(o, done)

	return len(done) > 0
}

// Tile returns the cached tile at a, if any.
func (s *Session) Tile(a model.Address) (*model.Tile, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()

	return s.cache.Get(a)
}

// Lookup returns the encoded tile from the store. A miss queues a download and
// returns store.ErrNotFound.
func (s *Session) Lookup(a model.Address) ([]byte, error) {
	if !a.Valid() {
		return nil, store.ErrNotFound
	}

	data, err := s.store.Load(a)

	if err == nil {
		return data, nil
	}

	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrCorrupt) {
		s.scheduler.Enqueue(a)
		return nil, store.ErrNotFound
	}

	return nil, err
}

type Stats struct {
	Source      string `json:"source"`
	Cached      int    `json:"cached"`
	Capacity    int    `json:"capacity"`
	Pending     int    `json:"pending"`
	Unreachable int    `json:"unreachable"`
}

func (s *Session) Stats() Stats {
	s.mx.Lock()
	defer s.mx.Unlock()

	return Stats{
		Source:      s.src.Key,
		Cached:      s.cache.Len(),
		Capacity:    s.capacity,
		Pending:     s.scheduler.Pending(),
		Unreachable: s.scheduler.Unreachable().Len(),
	}
}
