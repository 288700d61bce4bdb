package store

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kdudkov/tileview/pkg/config"
	"github.com/kdudkov/tileview/pkg/model"
)

// New builds the cache store for a source, chained with any offline packs.
func New(cfg config.Cache, src *model.Source, log *zap.SugaredLogger) (Store, error) {
	var s Store
	var err error

	switch cfg.Type {
	case "", "file":
		log.Infow("using file cache", "dir", filepath.Join(cfg.Dir, src.Key))
		s, err = NewFileStore(filepath.Join(cfg.Dir, src.Key), src.Ext())
	case "mbtiles":
		p := filepath.Join(cfg.Dir, src.Key+".mbtiles")
		log.Infow("using mbtiles cache", "file", p)
		s, err = CreateMBTiles(p, map[string]string{"name": src.Name, "format": src.Ext()})
	case "bolt":
		p := filepath.Join(cfg.Dir, "tiles.bolt")
		log.Infow("using bolt cache", "file", p, "bucket", src.Key)
		s, err = NewBoltStore(p, src.Key)
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: file, mbtiles, bolt)", cfg.Type)
	}

	if err != nil {
		return nil, err
	}

	if len(cfg.Packs) == 0 {
		return s, nil
	}

	stores := []Store{s}

	for _, p := range cfg.Packs {
		m, err := OpenMBTiles(p)
		if err != nil {
			log.Errorw("can't open offline pack", "file", p, "error", err)
			continue
		}

		log.Infow("loaded offline pack", "file", p)
		stores = append(stores, m)
	}

	return NewChain(stores...), nil
}
