package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kdudkov/tileview/pkg/model"
)

var (
	ErrOffline = errors.New("offline")
	ErrZoom    = errors.New("zoom out of source range")
)

type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.Code)
}

// Fetcher downloads tiles of one source over plain HTTP GET.
type Fetcher struct {
	src    *model.Source
	cl     *http.Client
	logger *zap.SugaredLogger
	group  singleflight.Group

	Offline bool
}

func New(src *model.Source, logger *zap.SugaredLogger) *Fetcher {
	return &Fetcher{
		src:    src,
		logger: logger.With("source", src.Key),
		cl: &http.Client{
			Timeout: src.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     time.Minute,
			},
		},
	}
}

// WithClient replaces the http client, mostly for tests.
func (f *Fetcher) WithClient(cl *http.Client) *Fetcher {
	f.cl = cl
	return f
}

func (f *Fetcher) Source() *model.Source {
	return f.src
}

// Fetch returns the raw image bytes of a. Concurrent calls for the same
// address share one request.
func (f *Fetcher) Fetch(ctx context.Context, a model.Address) ([]byte, error) {
	if f.Offline {
		return nil, ErrOffline
	}

	if !f.src.InZoom(a.Z) {
		return nil, fmt.Errorf("%w: %d", ErrZoom, a.Z)
	}

	v, err, shared := f.group.Do(a.Key(), func() (any, error) {
		return f.download(ctx, f.src.URL(a))
	})

	if shared {
		f.logger.Debugw("shared fetch", "tile", a.Key())
	}

	if err != nil {
		return nil, err
	}

	return v.([]byte), nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", f.src.Agent())

	resp, err := f.cl.Do(req)

	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)

	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%s: empty body", url)
	}

	f.logger.Debugw("downloaded", "url", url, "size", len(data))

	return data, nil
}
