package planner

import (
	"math"

	"go.uber.org/zap"

	"github.com/kdudkov/tileview/pkg/cache"
	"github.com/kdudkov/tileview/pkg/metrics"
	"github.com/kdudkov/tileview/pkg/model"
	"github.com/kdudkov/tileview/pkg/store"
)

// Viewport is the visible window in pixels of the map at Zoom. PrevZoom is set
// only while a zoom change is being drawn.
type Viewport struct {
	OffsetX  float64
	OffsetY  float64
	Width    float64
	Height   float64
	Zoom     int
	PrevZoom *int
}

// Range is an inclusive block of tile indexes at one zoom.
type Range struct {
	Zoom  int
	MinX  int
	MinY  int
	MaxX  int
	MaxY  int
	Scale float64
}

func (r Range) Empty() bool {
	return r.MaxX < r.MinX || r.MaxY < r.MinY
}

func (r Range) Count() int {
	if r.Empty() {
		return 0
	}

	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// Addresses enumerates the range row by row.
func (r Range) Addresses() []model.Address {
	res := make([]model.Address, 0, r.Count())

	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			res = append(res, model.NewAddress(x, y, r.Zoom))
		}
	}

	return res
}

// Item is one tile to draw. Tile is nil while the image is not available yet.
type Item struct {
	Address model.Address
	Tile    *model.Tile
	Layer   int
	Scale   float64
}

type Plan struct {
	Viewport Viewport
	Ranges   []Range
	Items    []Item
	Capacity int
	// Resolved lists tiles newly loaded into the cache in this pass.
	Resolved []model.Address
	Enqueued int
}

// Resolver is the part of the download scheduler the planner needs.
type Resolver interface {
	Enqueue(a model.Address) bool
	IsUnreachable(key string) bool
}

type Planner struct {
	name     string
	tileSize int
	cache    *cache.TileCache
	store    store.Store
	resolver Resolver
	logger   *zap.SugaredLogger
}

func New(name string, tileSize int, c *cache.TileCache, st store.Store, r Resolver, logger *zap.SugaredLogger) *Planner {
	if tileSize <= 0 {
		tileSize = 256
	}

	return &Planner{
		name:     name,
		tileSize: tileSize,
		cache:    c,
		store:    st,
		resolver: r,
		logger:   logger,
	}
}

func (p *Planner) TileSize() int {
	return p.tileSize
}

// Capacity is the cache size for a viewport: twice the visible tiles in each
// direction.
func (p *Planner) Capacity(w, h float64) int {
	ts := float64(p.tileSize)
	cx := max(1, int(math.Ceil(w/ts)))
	cy := max(1, int(math.Ceil(h/ts)))

	return cx * cy * 4
}

// LayerRange covers the viewport with tiles of zoom z while the map is drawn
// at vp.Zoom; tiles of a lower zoom are scaled up by 2 per level.
func (p *Planner) LayerRange(vp Viewport, z int) Range {
	scale := math.Pow(2, float64(vp.Zoom-z))
	ts := float64(p.tileSize) * scale
	n := 1 << z

	minX := int(math.Floor(vp.OffsetX / ts))
	countX := int(math.Ceil(vp.Width/ts)) + 1
	minY := int(math.Floor(vp.OffsetY / ts))
	countY := int(math.Ceil(vp.Height/ts)) + 1

	return Range{
		Zoom:  z,
		MinX:  max(minX, 0),
		MaxX:  min(minX+countX, n) - 1,
		MinY:  max(minY, 0),
		MaxY:  min(minY+countY, n) - 1,
		Scale: scale,
	}
}

// Ranges returns the tile ranges in draw order: previous zoom first.
func (p *Planner) Ranges(vp Viewport) []Range {
	res := make([]Range, 0, 2)

	if vp.PrevZoom != nil && *vp.PrevZoom != vp.Zoom && *vp.PrevZoom >= 0 {
		res = append(res, p.LayerRange(vp, *vp.PrevZoom))
	}

	return append(res, p.LayerRange(vp, vp.Zoom))
}

// Plan resolves every tile of the viewport against the cache, then the store,
// and queues downloads for the rest.
func (p *Planner) Plan(vp Viewport) Plan {
	plan := Plan{
		Viewport: vp,
		Ranges:   p.Ranges(vp),
		Capacity: p.Capacity(vp.Width, vp.Height),
	}

	for layer, r := range plan.Ranges {
		for _, a := range r.Addresses() {
			item := Item{Address: a, Layer: layer, Scale: r.Scale}

			t, fresh := p.resolve(a, plan.Capacity)

			switch {
			case t != nil:
				item.Tile = t
				if fresh {
					plan.Resolved = append(plan.Resolved, a)
				}
			case p.resolver.IsUnreachable(a.Key()):
			default:
				if p.resolver.Enqueue(a) {
					plan.Enqueued++
					metrics.Misses.WithLabelValues(p.name).Inc()
				}
			}

			plan.Items = append(plan.Items, item)
		}
	}

	metrics.CacheSize.WithLabelValues(p.name).Set(float64(p.cache.Len()))

	return plan
}

func (p *Planner) resolve(a model.Address, capacity int) (*model.Tile, bool) {
	if t, ok := p.cache.Get(a); ok {
		metrics.Hits.WithLabelValues(p.name, "memory").Inc()
		return t, false
	}

	data, err := p.store.Load(a)
	if err != nil {
		return nil, false
	}

	t, err := p.Insert(a, data, capacity)
	if err != nil {
		p.logger.Warnw("can't decode stored tile", "tile", a.Key(), "error", err)
		return nil, false
	}

	metrics.Hits.WithLabelValues(p.name, "disk").Inc()

	return t, true
}

// Insert decodes data and puts the tile into the cache. An address that is
// already cached keeps its tile.
func (p *Planner) Insert(a model.Address, data []byte, capacity int) (*model.Tile, error) {
	if t, ok := p.cache.Get(a); ok {
		return t, nil
	}

	img, err := store.Decode(data)
	if err != nil {
		return nil, err
	}

	t := model.NewTile(a, img)

	if n := p.cache.Insert(t, capacity); n > 0 {
		metrics.Evictions.WithLabelValues(p.name).Add(float64(n))
	}

	return t, nil
}
