// Package dataset owns the single loaded sales dataset shared by every
// chart.
package dataset

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"salesviz/internal/models"
)

var (
	// ErrStale is returned by a load that finished after a newer one
	// started; its result is discarded.
	ErrStale = errors.New("dataset load superseded by a newer load")

	ErrNotLoaded = errors.New("no dataset loaded")
)

// Loader produces a fresh dataset.
type Loader interface {
	Load(ctx context.Context) (*models.Dataset, error)
}

// Observer is told about every finished load attempt.
type Observer func(ds *models.Dataset, took time.Duration, err error)

// Handle caches the current dataset. A dataset is never modified once
// published; Reload swaps in a new one.
type Handle struct {
	loader   Loader
	observer Observer
	group    singleflight.Group

	mu      sync.RWMutex
	current *models.Dataset
	latest  string
}

// Option configures a Handle.
type Option func(*Handle)

// WithObserver registers fn to be called after every load attempt.
func WithObserver(fn Observer) Option {
	return func(h *Handle) { h.observer = fn }
}

// NewHandle creates an empty handle backed by loader.
func NewHandle(loader Loader, opts ...Option) *Handle {
	h := &Handle{loader: loader}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Load returns the cached dataset, loading it on first use. Concurrent
// first calls share one load. When a Reload supersedes that load, Load
// returns the dataset the Reload published.
func (h *Handle) Load(ctx context.Context) (*models.Dataset, error) {
	if ds, ok := h.Current(); ok {
		return ds, nil
	}

	ch := h.group.DoChan("initial", func() (any, error) {
		if ds, ok := h.Current(); ok {
			return ds, nil
		}
		return h.Reload(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// a Reload overtook the first load; use what it published
			if ds, ok := h.Current(); ok && errors.Is(res.Err, ErrStale) {
				return ds, nil
			}
			return nil, res.Err
		}
		return res.Val.(*models.Dataset), nil
	}
}

// Reload loads a new dataset and publishes it, unless ctx ended or a newer
// Reload started in the meantime. The previous dataset stays current on
// any failure.
func (h *Handle) Reload(ctx context.Context) (*models.Dataset, error) {
	token := uuid.NewString()
	h.mu.Lock()
	h.latest = token
	h.mu.Unlock()

	start := time.Now()
	ds, err := h.loader.Load(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = h.publish(token, ds)
	}

	took := time.Since(start)
	if h.observer != nil {
		h.observer(ds, took, err)
	}
	if err != nil {
		slog.WarnContext(ctx, "dataset load failed", "generation", token, "error", err, "took", took)
		return nil, err
	}

	slog.InfoContext(ctx, "dataset published", "generation", token, "source", ds.Source, "rows", ds.Len(), "took", took)
	return ds, nil
}

func (h *Handle) publish(token string, ds *models.Dataset) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.latest != token {
		return ErrStale
	}
	ds.ID = token
	h.current = ds
	return nil
}

// Current returns the published dataset, if any.
func (h *Handle) Current() (*models.Dataset, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.current != nil
}

// Generation returns the ID of the published dataset, or "".
func (h *Handle) Generation() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return ""
	}
	return h.current.ID
}
