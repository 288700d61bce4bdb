package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kdudkov/tileview/pkg/config"
	"github.com/kdudkov/tileview/pkg/fetcher"
	"github.com/kdudkov/tileview/pkg/logger"
	"github.com/kdudkov/tileview/pkg/model"
	"github.com/kdudkov/tileview/pkg/session"
	"github.com/kdudkov/tileview/pkg/store"
)

type App struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	sessions *Sessions
	// cache directory -> source key, for file caches only
	dirs map[string]string
}

func NewApp(cfg *config.Config, logger *zap.SugaredLogger) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		sessions: NewSessions(),
		dirs:     make(map[string]string),
	}
}

func (app *App) addSources(ctx context.Context) error {
	for _, src := range app.cfg.Sources {
		st, err := store.New(app.cfg.Cache, src, app.logger)
		if err != nil {
			return fmt.Errorf("source %s: %w", src.Key, err)
		}

		f := fetcher.New(src, app.logger)
		f.Offline = app.cfg.Offline

		s := session.New(src, st, f, session.Options{
			Workers:  app.cfg.Workers,
			TileSize: app.cfg.TileSize,
		}, app.logger)

		s.SetObserver(session.Funcs{
			Ready: func(a model.Address) {
				app.logger.Debugw("tile ready", "source", src.Key, "tile", a.Key())
			},
		})

		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("source %s: %w", src.Key, err)
		}

		go s.Run(ctx)

		if fs := fileStore(st); fs != nil {
			app.dirs[fs.Dir()] = src.Key
		}

		app.sessions.Add(s)
		app.logger.Infow("source added", "source", src.Key, "name", src.Name, "offline", f.Offline)
	}

	return nil
}

func fileStore(st store.Store) *store.FileStore {
	switch s := st.(type) {
	case *store.FileStore:
		return s
	case *store.Chain:
		if fs, ok := s.First().(*store.FileStore); ok {
			return fs
		}
	}

	return nil
}

func (app *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.addSources(ctx); err != nil {
		app.logger.Fatalw("can't add sources", "error", err)
	}

	h := NewHttp(app)

	app.logger.Infow("listening", "addr", app.cfg.Listen, "ips", getLocalAddr())

	go func() {
		if err := h.Listen(app.cfg.Listen); err != nil {
			app.logger.Fatalw("http server failed", "error", err)
		}
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		app.logger.Fatalw("can't create watcher", "error", err)
	}

	defer watcher.Close()

	go app.watch(watcher)

	for dir := range app.dirs {
		if err := watcher.Add(dir); err != nil {
			app.logger.Errorw("can't watch cache dir", "dir", dir, "error", err)
		}
	}

	app.loop()

	cancel()
	_ = h.Shutdown()
	app.close()
}

// watch picks up tiles written into a cache directory by another process,
// such as the dl tool.
func (app *App) watch(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}

			app.onFile(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			app.logger.Errorw("watcher error", "error", err)
		}
	}
}

func (app *App) onFile(name string) {
	for dir, key := range app.dirs {
		if !strings.HasPrefix(name, dir) {
			continue
		}

		s, ok := app.sessions.Get(key)
		if !ok {
			return
		}

		fs := fileStore(s.Store())
		if fs == nil {
			return
		}

		if a, ok := fs.AddressOf(name); ok && s.Notify(a) {
			app.logger.Debugw("tile imported", "source", key, "tile", a.Key())
		}

		return
	}
}

func (app *App) close() {
	app.sessions.All(func(s *session.Session) bool {
		if err := s.Close(); err != nil {
			app.logger.Errorw("close error", "source", s.Source().Key, "error", err)
		}

		return true
	})
}

func (app *App) loop() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigc
	app.logger.Infow("got signal, exiting", "signal", sig.String())
}

func getLocalAddr() []string {
	var res []string

	addresses, _ := net.InterfaceAddrs()

	for _, a := range addresses {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil && !strings.HasPrefix(ipnet.IP.String(), "169.254.") {
				res = append(res, ipnet.IP.String())
			}
		}
	}

	return res
}

func main() {
	var conf = flag.String("config", config.DefaultConfigFile, "config file")
	var debug = flag.Bool("debug", false, "debug logging")
	var offline = flag.Bool("offline", false, "never download tiles")
	var ver = flag.Bool("version", false, "print version and exit")

	flag.Parse()

	if *ver {
		fmt.Println(getVersionFull())
		return
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		os.Exit(1)
	}

	cfg.Debug = cfg.Debug || *debug
	cfg.Offline = cfg.Offline || *offline

	l, err := logger.New(cfg.Debug)
	if err != nil {
		panic(err)
	}

	defer l.Sync()

	l.Infow("starting", "version", getVersion(), "config", *conf)

	NewApp(cfg, l).Run()
}
