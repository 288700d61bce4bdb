package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kdudkov/tileview/pkg/model"
	"github.com/kdudkov/tileview/pkg/planner"
	"github.com/kdudkov/tileview/pkg/store"
)

type fakeFetcher struct {
	tiles map[model.Address][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, a model.Address) ([]byte, error) {
	if d, ok := f.tiles[a]; ok {
		return d, nil
	}

	return nil, errors.New("no such tile")
}

type recorder struct {
	mx      sync.Mutex
	ready   []model.Address
	redraws int
}

func (r *recorder) OnTileReady(a model.Address) {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.ready = append(r.ready, a)
}

func (r *recorder) RequestRedraw() {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.redraws++
}

func (r *recorder) counts() (int, int) {
	r.mx.Lock()
	defer r.mx.Unlock()

	return len(r.ready), r.redraws
}

func pngTile(t *testing.T) []byte {
	t.Helper()

	var b bytes.Buffer
	if err := png.Encode(&b, image.NewGray(image.Rect(0, 0, 256, 256))); err != nil {
		t.Fatal(err)
	}

	return b.Bytes()
}

func newSession(t *testing.T, tiles map[model.Address][]byte) (*Session, *store.FileStore) {
	t.Helper()

	st, err := store.NewFileStore(t.TempDir(), "png")
	if err != nil {
		t.Fatal(err)
	}

	src := &model.Source{Key: "test", Url: "http://localhost/"}
	s := New(src, st, &fakeFetcher{tiles: tiles}, Options{Workers: 1, TileSize: 256}, zap.NewNop().Sugar())

	t.Cleanup(func() { _ = s.Close() })

	return s, st
}

func waitTile(t *testing.T, s *Session, a model.Address) *model.Tile {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		s.Drain()

		if tile, ok := s.Tile(a); ok {
			return tile
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("tile %v not loaded", a)

	return nil
}

func TestDownloadFlow(t *testing.T) {
	root := model.NewAddress(0, 0, 0)
	s, st := newSession(t, map[model.Address][]byte{root: pngTile(t)})

	rec := &recorder{}
	s.SetObserver(rec)

	vp := planner.Viewport{Width: 256, Height: 256, Zoom: 0}

	plan := s.Plan(vp)

	if plan.Enqueued != 1 || plan.Items[0].Tile != nil {
		t.Fatalf("first pass must queue the tile: %+v", plan)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	tile := waitTile(t, s, root)

	if !tile.Loaded() {
		t.Error("tile must be decoded")
	}

	if !st.Has(root) {
		t.Error("tile must be stored")
	}

	ready, redraws := rec.counts()
	if ready != 1 || redraws < 1 {
		t.Errorf("got %d ready, %d redraws", ready, redraws)
	}

	plan = s.Plan(vp)

	if plan.Items[0].Tile != tile || plan.Enqueued != 0 {
		t.Error("second pass must use the cached tile")
	}
}

func TestUnreachable(t *testing.T) {
	s, _ := newSession(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	vp := planner.Viewport{Width: 256, Height: 256, Zoom: 0}
	s.Plan(vp)

	deadline := time.Now().Add(5 * time.Second)

	for s.Stats().Unreachable == 0 {
		if time.Now().After(deadline) {
			t.Fatal("tile not marked unreachable")
		}

		time.Sleep(10 * time.Millisecond)
	}

	if plan := s.Plan(vp); plan.Enqueued != 0 {
		t.Error("unreachable tile must not be queued again")
	}

	if n := s.Drain(); n != 0 {
		t.Errorf("got %d tiles from a failed download", n)
	}
}

func TestNotify(t *testing.T) {
	s, st := newSession(t, nil)

	rec := &recorder{}
	s.SetObserver(rec)

	a := model.NewAddress(1, 1, 1)

	if s.Notify(a) {
		t.Error("missing tile must not load")
	}

	if err := st.Save(a, pngTile(t)); err != nil {
		t.Fatal(err)
	}

	if !s.Notify(a) {
		t.Error("stored tile must load")
	}

	if s.Notify(a) {
		t.Error("cached tile must not load twice")
	}

	if ready, redraws := rec.counts(); ready != 1 || redraws != 1 {
		t.Errorf("got %d ready, %d redraws", ready, redraws)
	}
}

func TestLookup(t *testing.T) {
	s, st := newSession(t, nil)

	a := model.NewAddress(0, 1, 1)

	if _, err := s.Lookup(a); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}

	if s.Stats().Pending != 1 {
		t.Error("miss must queue a download")
	}

	if err := st.Save(a, pngTile(t)); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Lookup(a); err != nil {
		t.Error(err)
	}

	if _, err := s.Lookup(model.NewAddress(5, 0, 1)); !errors.Is(err, store.ErrNotFound) {
		t.Error("invalid address must not be found")
	}
}

func TestCapacityBound(t *testing.T) {
	s, st := newSession(t, nil)

	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			if err := st.Save(model.NewAddress(x, y, 3), pngTile(t)); err != nil {
				t.Fatal(err)
			}
		}
	}

	vp := planner.Viewport{Width: 256, Height: 256, Zoom: 3}

	for off := 0.0; off < 2048; off += 256 {
		vp.OffsetX = off
		s.Plan(vp)

		if st := s.Stats(); st.Cached > st.Capacity {
			t.Fatalf("cache %d over capacity %d", st.Cached, st.Capacity)
		}
	}
}

func TestObserverCallsBack(t *testing.T) {
	root := model.NewAddress(0, 0, 0)
	s, st := newSession(t, map[model.Address][]byte{root: pngTile(t)})

	vp := planner.Viewport{Width: 256, Height: 256, Zoom: 0}

	var found, redraws int

	s.SetObserver(Funcs{
		Ready: func(a model.Address) {
			if tile, ok := s.Tile(a); ok && tile.Loaded() {
				found++
			}
		},
		Redraw: func() {
			redraws++
			s.Plan(vp)
		},
	})

	s.Plan(vp)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			s.Drain()

			if _, ok := s.Tile(root); ok {
				return
			}

			time.Sleep(10 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("observer calling back into the session blocked")
	}

	if found != 1 || redraws != 1 {
		t.Errorf("got %d ready tiles, %d redraws", found, redraws)
	}

	// tile from the store through Notify
	a := model.NewAddress(1, 0, 1)

	if err := st.Save(a, pngTile(t)); err != nil {
		t.Fatal(err)
	}

	if !s.Notify(a) || found != 2 {
		t.Errorf("notify: got %d ready tiles", found)
	}
}

type failingStore struct {
	store.Store
}

func (failingStore) Save(model.Address, []byte) error {
	return errors.New("disk full")
}

func TestSaveErrorStillCached(t *testing.T) {
	root := model.NewAddress(0, 0, 0)

	fs, err := store.NewFileStore(t.TempDir(), "png")
	if err != nil {
		t.Fatal(err)
	}

	src := &model.Source{Key: "test", Url: "http://localhost/"}
	f := &fakeFetcher{tiles: map[model.Address][]byte{root: pngTile(t)}}

	s := New(src, failingStore{fs}, f, Options{Workers: 1, TileSize: 256}, zap.NewNop().Sugar())
	t.Cleanup(func() { _ = s.Close() })

	s.Plan(planner.Viewport{Width: 256, Height: 256, Zoom: 0})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if tile := waitTile(t, s, root); !tile.Loaded() {
		t.Error("tile must be decoded")
	}

	if fs.Has(root) {
		t.Error("tile must not be on disk")
	}
}
