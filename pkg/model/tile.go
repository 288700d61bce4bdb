package model

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/paulmach/orb/maptile"
)

// Address identifies a tile at zoom Z. Rows grow southwards (XYZ scheme).
type Address struct {
	X int
	Y int
	Z int
}

func NewAddress(x, y, z int) Address {
	return Address{X: x, Y: y, Z: z}
}

// Key is the stable "x-y-zoom" form used for file names and set membership.
func (a Address) Key() string {
	return strconv.Itoa(a.X) + "-" + strconv.Itoa(a.Y) + "-" + strconv.Itoa(a.Z)
}

func (a Address) String() string {
	return fmt.Sprintf("%d/%d/%d", a.Z, a.X, a.Y)
}

func (a Address) Valid() bool {
	if a.Z < 0 || a.Z > 30 {
		return false
	}

	n := 1 << a.Z

	return a.X >= 0 && a.X < n && a.Y >= 0 && a.Y < n
}

// Flip returns the TMS row for this address.
func (a Address) Flip() int {
	return 1<<a.Z - a.Y - 1
}

// Parent returns the tile covering a at levels zoom steps out.
func (a Address) Parent(levels int) Address {
	if levels <= 0 {
		return a
	}

	levels = min(levels, a.Z)

	return Address{X: a.X >> levels, Y: a.Y >> levels, Z: a.Z - levels}
}

func (a Address) Maptile() maptile.Tile {
	return maptile.New(uint32(a.X), uint32(a.Y), maptile.Zoom(a.Z))
}

func FromMaptile(t maptile.Tile) Address {
	return Address{X: int(t.X), Y: int(t.Y), Z: int(t.Z)}
}

// ParseKey parses the Key form back into an address.
func ParseKey(s string) (Address, error) {
	d := strings.Split(s, "-")

	if len(d) != 3 {
		return Address{}, fmt.Errorf("invalid tile key: %s", s)
	}

	var v [3]int

	for i, p := range d {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Address{}, fmt.Errorf("invalid tile key %s: %w", s, err)
		}

		v[i] = n
	}

	a := Address{X: v[0], Y: v[1], Z: v[2]}

	if !a.Valid() {
		return Address{}, fmt.Errorf("tile key out of range: %s", s)
	}

	return a, nil
}

var tileSeq atomic.Uint64

// Tile is one map image. Image stays nil until the tile has been decoded.
type Tile struct {
	Address Address
	Seq     uint64
	Image   image.Image
}

func NewTile(a Address, img image.Image) *Tile {
	return &Tile{
		Address: a,
		Seq:     tileSeq.Add(1),
		Image:   img,
	}
}

func (t *Tile) Loaded() bool {
	return t != nil && t.Image != nil
}

func (t *Tile) String() string {
	return fmt.Sprintf("tile %d %s", t.Seq, t.Address.Key())
}
