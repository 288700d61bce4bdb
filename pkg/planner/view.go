package planner

import (
	"math"

	"github.com/kdudkov/tileview/pkg/mapper"
)

// CenterOffset returns the scroll offset that puts (lat, lon) in the middle
// of a w x h viewport at zoom.
func CenterOffset(ts *mapper.TileSystem, lat, lon float64, zoom int, w, h float64) (float64, float64) {
	x, y := ts.LatLonToPixel(lat, lon, zoom)

	return clampOffset(ts, x-w/2, zoom, w), clampOffset(ts, y-h/2, zoom, h)
}

// ZoomTo keeps the geographic point under the viewport centre fixed while
// changing zoom. The returned viewport carries the old zoom as PrevZoom.
func ZoomTo(ts *mapper.TileSystem, vp Viewport, zoom int) Viewport {
	lat, lon := ts.PixelToLatLon(vp.OffsetX+vp.Width/2, vp.OffsetY+vp.Height/2, vp.Zoom)

	prev := vp.Zoom
	res := vp
	res.Zoom = zoom
	res.PrevZoom = &prev
	res.OffsetX, res.OffsetY = CenterOffset(ts, lat, lon, zoom, vp.Width, vp.Height)

	return res
}

// Settle drops the transition layer once the new zoom is drawn.
func Settle(vp Viewport) Viewport {
	vp.PrevZoom = nil
	return vp
}

func clampOffset(ts *mapper.TileSystem, v float64, zoom int, size float64) float64 {
	limit := ts.MapSize(zoom) - size

	if limit <= 0 {
		return 0
	}

	return math.Max(0, math.Min(v, limit))
}
