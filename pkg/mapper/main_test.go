package mapper

import (
	"fmt"
	"math"
	"testing"

	"github.com/kdudkov/tileview/pkg/model"
)

func TestRoundTrip(t *testing.T) {
	ts := NewTileSystem()

	points := [][2]float64{
		{0, 0},
		{60.2, 30.17},
		{55.746819, 37.612228},
		{-33.8688, 151.2093},
		{38.132329, 15.158815},
		{85, -179.9},
		{-85, 179.9},
	}

	for _, zoom := range []int{0, 1, 5, 12, 18} {
		for _, p := range points {
			t.Run(fmt.Sprintf("z%d_%v", zoom, p), func(t *testing.T) {
				x, y := ts.LatLonToPixel(p[0], p[1], zoom)
				lat, lon := ts.PixelToLatLon(x, y, zoom)

				if math.Abs(lat-p[0]) > 1e-6 {
					t.Errorf("wrong lat: got %f, must be %f", lat, p[0])
				}

				if math.Abs(lon-p[1]) > 1e-6 {
					t.Errorf("wrong lon: got %f, must be %f", lon, p[1])
				}
			})
		}
	}
}

func TestOrigin(t *testing.T) {
	ts := NewTileSystem()

	x, y := ts.LatLonToPixel(0, 0, 1)
	if x != 256 || math.Abs(y-256) > 1e-9 {
		t.Errorf("center of zoom 1 must be 256,256, got %f,%f", x, y)
	}

	// north is at the top
	_, yn := ts.LatLonToPixel(60, 0, 3)
	_, ys := ts.LatLonToPixel(-60, 0, 3)

	if yn >= ys {
		t.Errorf("pixel y must grow southwards: north %f, south %f", yn, ys)
	}

	x, y = ts.LatLonToPixel(MaxLat, -180, 2)
	if math.Abs(x) > 1e-9 || math.Abs(y) > 1e-3 {
		t.Errorf("top-left corner must be 0,0, got %f,%f", x, y)
	}
}

func TestClampLat(t *testing.T) {
	ts := NewTileSystem()

	_, y1 := ts.LatLonToPixel(89.9, 0, 4)
	_, y2 := ts.LatLonToPixel(MaxLat, 0, 4)

	if y1 != y2 {
		t.Errorf("latitude must be clamped: %f != %f", y1, y2)
	}

	if math.IsInf(y1, 0) || math.IsNaN(y1) {
		t.Errorf("bad y %f", y1)
	}
}

func TestTileAt(t *testing.T) {
	ts := NewTileSystem()

	tests := []struct {
		lat, lon float64
		zoom     int
		want     model.Address
	}{
		{0, 0, 0, model.NewAddress(0, 0, 0)},
		{10, 10, 1, model.NewAddress(1, 0, 1)},
		{-10, -10, 1, model.NewAddress(0, 1, 1)},
		{55.746819, 37.612228, 16, model.NewAddress(39615, 20489, 16)},
	}

	for _, tt := range tests {
		got := ts.TileAt(tt.lat, tt.lon, tt.zoom)
		if got != tt.want {
			t.Errorf("TileAt(%f, %f, %d) = %v, want %v", tt.lat, tt.lon, tt.zoom, got, tt.want)
		}
	}
}

func TestPixelToTile(t *testing.T) {
	ts := NewTileSystem()

	x, y := ts.LatLonToPixel(55.746819, 37.612228, 16)
	tx, ty := ts.PixelToTile(x, y)

	if a := ts.TileAt(55.746819, 37.612228, 16); a.X != tx || a.Y != ty {
		t.Errorf("pixel tile %d,%d differs from %v", tx, ty, a)
	}
}
