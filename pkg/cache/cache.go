package cache

import (
	"container/list"

	"github.com/kdudkov/tileview/pkg/model"
)

// TileCache holds decoded tiles in insertion order and drops the oldest
// inserted ones once over capacity. Lookups never change the order, so a tile
// that stays on screen is evicted before one inserted later that scrolled off.
//
// TileCache is not safe for concurrent use.
type TileCache struct {
	items map[model.Address]*list.Element
	order *list.List
}

func New() *TileCache {
	return &TileCache{
		items: make(map[model.Address]*list.Element),
		order: list.New(),
	}
}

func (c *TileCache) Get(a model.Address) (*model.Tile, bool) {
	if e, ok := c.items[a]; ok {
		return e.Value.(*model.Tile), true
	}

	return nil, false
}

func (c *TileCache) Has(a model.Address) bool {
	_, ok := c.items[a]
	return ok
}

// Insert adds t unless its address is already cached, then evicts oldest
// entries until at most capacity remain. It returns the number evicted.
func (c *TileCache) Insert(t *model.Tile, capacity int) int {
	if t == nil {
		return 0
	}

	if _, ok := c.items[t.Address]; !ok {
		c.items[t.Address] = c.order.PushBack(t)
	}

	return c.shrink(max(capacity, 0))
}

func (c *TileCache) shrink(capacity int) int {
	n := 0

	for c.order.Len() > capacity {
		oldest := c.order.Front()
		delete(c.items, oldest.Value.(*model.Tile).Address)
		c.order.Remove(oldest)
		n++
	}

	return n
}

func (c *TileCache) Len() int {
	return c.order.Len()
}

// Keys lists cached addresses, oldest first.
func (c *TileCache) Keys() []model.Address {
	res := make([]model.Address, 0, c.order.Len())

	for e := c.order.Front(); e != nil; e = e.Next() {
		res = append(res, e.Value.(*model.Tile).Address)
	}

	return res
}
