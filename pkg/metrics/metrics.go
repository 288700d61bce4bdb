package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_downloads_total",
		Help: "Tiles fetched from the remote server",
	}, []string{"source"})

	DownloadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_download_errors_total",
		Help: "Failed tile fetches; the tile is marked unreachable",
	}, []string{"source"})

	PersistErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_persist_errors_total",
		Help: "Downloaded tiles that could not be written to the store",
	}, []string{"source"})

	DownloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tileview_download_duration_seconds",
		Help:    "Duration of tile fetches",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"source"})

	Hits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_hits_total",
		Help: "Tile resolutions by level (memory, disk)",
	}, []string{"source", "level"})

	Misses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_misses_total",
		Help: "Tile resolutions that had to be queued for download",
	}, []string{"source"})

	Evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tileview_evictions_total",
		Help: "Tiles evicted from the memory cache",
	}, []string{"source"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tileview_queue_depth",
		Help: "Download requests waiting in the queue",
	}, []string{"source"})

	CacheSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tileview_cache_tiles",
		Help: "Tiles held in the memory cache",
	}, []string{"source"})
)
