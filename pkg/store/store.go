package store

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/kdudkov/tileview/pkg/model"
)

var (
	ErrNotFound = errors.New("tile not found")
	ErrCorrupt  = errors.New("tile image is corrupt")
)

// Store keeps encoded tile images keyed by address.
type Store interface {
	Has(a model.Address) bool
	Load(a model.Address) ([]byte, error)
	Save(a model.Address, data []byte) error
	Close() error
}

// Validate checks that data starts with a decodable image header. It does not
// guarantee the rest of the image is complete.
func Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrCorrupt
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: empty image %dx%d", ErrCorrupt, cfg.Width, cfg.Height)
	}

	return format, nil
}

// Decode fully decodes a tile image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return img, nil
}
