package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kdudkov/tileview/pkg/config"
	"github.com/kdudkov/tileview/pkg/fetcher"
	"github.com/kdudkov/tileview/pkg/logger"
	"github.com/kdudkov/tileview/pkg/mapper"
	"github.com/kdudkov/tileview/pkg/model"
	"github.com/kdudkov/tileview/pkg/store"
)

// App prefetches tiles of one source into a store.
type App struct {
	src     *model.Source
	fetcher *fetcher.Fetcher
	store   store.Store
	workers int
	logger  *zap.SugaredLogger

	loaded  atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

func NewApp(src *model.Source, st store.Store, workers int, logger *zap.SugaredLogger) *App {
	return &App{
		src:     src,
		fetcher: fetcher.New(src, logger),
		store:   st,
		workers: max(workers, 1),
		logger:  logger,
	}
}

func (app *App) Run(ctx context.Context, tiles []model.Address) error {
	bar := progressbar.Default(int64(len(tiles)), "downloading "+app.src.Key)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(app.workers)

	for _, a := range tiles {
		if ctx.Err() != nil {
			break
		}

		a := a
		g.Go(func() error {
			defer bar.Add(1)
			return app.load(ctx, a)
		})
	}

	err := g.Wait()
	_ = bar.Finish()

	fmt.Printf("loaded: %d, already stored: %d, failed: %d\n", app.loaded.Load(), app.skipped.Load(), app.failed.Load())

	return err
}

// load fetches one tile. Only a store write error stops the run.
func (app *App) load(ctx context.Context, a model.Address) error {
	if app.store.Has(a) {
		app.skipped.Add(1)
		return nil
	}

	data, err := app.fetcher.Fetch(ctx, a)
	if err == nil {
		_, err = store.Validate(data)
	}

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		app.failed.Add(1)
		app.logger.Debugw("tile failed", "tile", a.String(), "error", err)

		return nil
	}

	if err := app.store.Save(a, data); err != nil {
		return fmt.Errorf("save %s: %w", a.String(), err)
	}

	app.loaded.Add(1)

	return nil
}

// bboxTiles lists the tiles covering a lon/lat box on every zoom in [zmin, zmax].
func bboxTiles(bbox [4]float64, zmin, zmax int) []model.Address {
	ts := mapper.NewTileSystem()

	var res []model.Address

	for z := zmin; z <= zmax; z++ {
		nw := ts.TileAt(bbox[3], bbox[0], z)
		se := ts.TileAt(bbox[1], bbox[2], z)

		for y := nw.Y; y <= se.Y; y++ {
			for x := nw.X; x <= se.X; x++ {
				res = append(res, model.NewAddress(x, y, z))
			}
		}
	}

	return res
}

func parseBBox(s string) ([4]float64, error) {
	var res [4]float64

	d := strings.Split(s, ",")
	if len(d) != 4 {
		return res, fmt.Errorf("bbox must be minLon,minLat,maxLon,maxLat: %s", s)
	}

	for i, v := range d {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return res, fmt.Errorf("invalid bbox value %s: %w", v, err)
		}

		res[i] = f
	}

	if res[0] > res[2] || res[1] > res[3] {
		return res, fmt.Errorf("empty bbox: %s", s)
	}

	return res, nil
}

func parseZoom(s string) (int, int, error) {
	lo, hi, found := strings.Cut(s, "-")

	zmin, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid zoom %s", s)
	}

	zmax := zmin

	if found {
		if zmax, err = strconv.Atoi(hi); err != nil {
			return 0, 0, fmt.Errorf("invalid zoom %s", s)
		}
	}

	if zmin < 0 || zmax > 30 || zmin > zmax {
		return 0, 0, fmt.Errorf("invalid zoom range %s", s)
	}

	return zmin, zmax, nil
}

// readList reads z/x/y lines.
func readList(r io.Reader) ([]model.Address, error) {
	var res []model.Address

	sc := bufio.NewScanner(r)

	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())

		if ln == "" || strings.HasPrefix(ln, "#") {
			continue
		}

		d := strings.Split(ln, "/")

		if len(d) != 3 {
			return nil, fmt.Errorf("invalid string: %s", ln)
		}

		z, err1 := strconv.Atoi(d[0])
		x, err2 := strconv.Atoi(d[1])
		y, err3 := strconv.Atoi(d[2])

		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("invalid string %s: %w", ln, err)
		}

		a := model.NewAddress(x, y, z)
		if !a.Valid() {
			return nil, fmt.Errorf("tile out of range: %s", ln)
		}

		res = append(res, a)
	}

	return res, sc.Err()
}

func openStore(cfg *config.Config, src *model.Source, out string, zmin, zmax int, log *zap.SugaredLogger) (store.Store, error) {
	if out == "" {
		return store.New(cfg.Cache, src, log)
	}

	m, err := store.CreateMBTiles(out, map[string]string{
		"name":   src.Name,
		"format": src.Ext(),
	})
	if err != nil {
		return nil, err
	}

	if err := m.PutMeta(map[string]string{
		"minzoom": strconv.Itoa(zmin),
		"maxzoom": strconv.Itoa(zmax),
	}); err != nil {
		m.Close()
		return nil, err
	}

	return m, nil
}

// workerCount defaults to the configured download concurrency, which stays
// low for servers with strict usage policies.
func workerCount(n int, cfg *config.Config) int {
	if n > 0 {
		return n
	}

	return max(cfg.Workers, 1)
}

func zoomSpan(tiles []model.Address) (int, int) {
	zmin, zmax := 30, 0

	for _, a := range tiles {
		zmin = min(zmin, a.Z)
		zmax = max(zmax, a.Z)
	}

	return zmin, zmax
}

func main() {
	var conf = flag.String("config", config.DefaultConfigFile, "config file")
	var source = flag.String("source", "", "source key")
	var bbox = flag.String("bbox", "", "minLon,minLat,maxLon,maxLat")
	var zoom = flag.String("zoom", "0-10", "zoom or zoom range, e.g. 3-12")
	var list = flag.String("list", "", "file with z/x/y lines instead of bbox")
	var out = flag.String("out", "", "write to this mbtiles file instead of the cache")
	var workers = flag.Int("workers", 0, "parallel downloads")
	var debug = flag.Bool("debug", false, "debug logging")

	flag.Parse()

	cfg, err := config.Load(*conf)
	if err != nil {
		fmt.Printf("config error: %s\n", err)
		os.Exit(1)
	}

	log, err := logger.New(*debug)
	if err != nil {
		panic(err)
	}

	defer log.Sync()

	src, ok := cfg.Source(*source)
	if !ok {
		fmt.Printf("unknown source %q\n", *source)
		os.Exit(1)
	}

	var tiles []model.Address

	switch {
	case *list != "":
		f, err := os.Open(*list)
		if err != nil {
			log.Fatalw("can't open list", "error", err)
		}

		tiles, err = readList(f)
		f.Close()

		if err != nil {
			log.Fatalw("can't read list", "error", err)
		}
	case *bbox != "":
		b, err := parseBBox(*bbox)
		if err != nil {
			log.Fatalw("bad bbox", "error", err)
		}

		zmin, zmax, err := parseZoom(*zoom)
		if err != nil {
			log.Fatalw("bad zoom", "error", err)
		}

		tiles = bboxTiles(b, zmin, zmax)
	default:
		fmt.Println("you need to specify -bbox or -list")
		os.Exit(1)
	}

	if len(tiles) == 0 {
		fmt.Println("no tiles")
		return
	}

	zmin, zmax := zoomSpan(tiles)

	st, err := openStore(cfg, src, *out, zmin, zmax, log)
	if err != nil {
		log.Fatalw("can't open store", "error", err)
	}

	defer st.Close()


	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Infow("start", "source", src.Key, "tiles", len(tiles), "zoom", fmt.Sprintf("%d-%d", zmin, zmax))

	if err := NewApp(src, st, workerCount(*workers, cfg), log).Run(ctx, tiles); err != nil {
		fmt.Printf("error: %s\n", err.Error())
	}
}
