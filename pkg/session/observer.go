package session

import (
	"github.com/kdudkov/tileview/pkg/model"
)

// Observer is the rendering side. Calls come from whichever goroutine runs
// Plan, Drain, Run or Notify, never with the session lock held, so an observer
// may call Tile or Plan. Handing them over to a UI thread is up to the observer.
//
// OnTileReady fires once when a tile enters the memory cache, loaded from the
// store or downloaded. Plan passes that find a tile already cached do not call
// it again; such tiles are in the returned plan items.
type Observer interface {
	OnTileReady(a model.Address)
	RequestRedraw()
}

type nopObserver struct{}

func (nopObserver) OnTileReady(model.Address) {}
func (nopObserver) RequestRedraw()            {}

// Funcs adapts plain functions to Observer. Nil fields are skipped.
type Funcs struct {
	Ready  func(a model.Address)
	Redraw func()
}

func (f Funcs) OnTileReady(a model.Address) {
	if f.Ready != nil {
		f.Ready(a)
	}
}

func (f Funcs) RequestRedraw() {
	if f.Redraw != nil {
		f.Redraw()
	}
}
