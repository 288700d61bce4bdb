package mapper

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/kdudkov/tileview/pkg/model"
)

const (
	DefaultTileSize = 256
	MaxLat          = 85.05112878

	earthCircumference = 40075016.686
)

func radians(a float64) float64 {
	return a / 180 * math.Pi
}

func deg(a float64) float64 {
	return a / math.Pi * 180
}

func clampLat(lat float64) float64 {
	return max(-MaxLat, min(lat, MaxLat))
}

func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}

	return lon - 180
}

// TileSystem converts between geographic and pixel coordinates. Pixel origin
// is the top-left corner of the map, y grows southwards.
type TileSystem struct {
	tileSize int
}

func NewTileSystem() *TileSystem {
	return &TileSystem{
		tileSize: DefaultTileSize,
	}
}

func NewTileSystemSize(size int) *TileSystem {
	if size <= 0 {
		size = DefaultTileSize
	}

	return &TileSystem{tileSize: size}
}

func (ts *TileSystem) TileSize() int {
	return ts.tileSize
}

// MapSize is the width (and height) of the whole map in pixels at zoom.
func (ts *TileSystem) MapSize(zoom int) float64 {
	return float64(uint64(1)<<uint(zoom)) * float64(ts.tileSize)
}

func (ts *TileSystem) LatLonToPixel(lat, lon float64, zoom int) (float64, float64) {
	size := ts.MapSize(zoom)
	lat = clampLat(lat)

	x := (lon + 180) / 360 * size
	y := (1 - math.Log(math.Tan(radians(lat))+(1/math.Cos(radians(lat))))/math.Pi) / 2 * size

	return x, y
}

func (ts *TileSystem) PixelToLatLon(x, y float64, zoom int) (float64, float64) {
	size := ts.MapSize(zoom)

	lon := x/size*360.0 - 180.0
	lat := deg(math.Atan(math.Sinh(math.Pi * (1 - 2*y/size))))

	return lat, lon
}

// PixelToTile returns the indexes of the tile holding pixel (x, y).
func (ts *TileSystem) PixelToTile(x, y float64) (int, int) {
	return int(math.Floor(x / float64(ts.tileSize))), int(math.Floor(y / float64(ts.tileSize)))
}

// TileAt returns the tile containing the point, clamped to the map.
func (ts *TileSystem) TileAt(lat, lon float64, zoom int) model.Address {
	t := maptile.At(orb.Point{wrapLon(lon), clampLat(lat)}, maptile.Zoom(zoom))
	a := model.FromMaptile(t)

	n := 1 << zoom
	a.X = max(0, min(a.X, n-1))
	a.Y = max(0, min(a.Y, n-1))

	return a
}

// Bound is the geographic extent of a tile.
func (ts *TileSystem) Bound(a model.Address) orb.Bound {
	return a.Maptile().Bound()
}

func (ts *TileSystem) MetersPerPixel(lat float64, zoom int) float64 {
	return earthCircumference * math.Cos(radians(clampLat(lat))) / ts.MapSize(zoom)
}
