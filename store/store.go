// Package store persists the selected pair and per-selection snapshots in a
// flat string key-value space, the way the browser widget used localStorage.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/model/selection"
)

// ErrNotFound is returned by Store.Get for a missing key.
var ErrNotFound = errors.New("store: not found")

// Keys written by Prefs. Snapshot keys come from selection.SnapshotKey.
const (
	KeySymbol   = "selectedCoin"
	KeyInterval = "selectedInterval"
)

// Store is a string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Prefs reads and writes the chart's persisted state on top of a Store.
// Read failures degrade to "nothing stored"; they are logged, never returned.
type Prefs struct {
	store  Store
	logger *slog.Logger
}

// NewPrefs wraps s. A nil logger uses slog.Default.
func NewPrefs(s Store, logger *slog.Logger) *Prefs {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prefs{store: s, logger: logger}
}

// LoadSelection returns the persisted selection, or fallback when either
// key is missing or the stored pair does not validate.
func (p *Prefs) LoadSelection(ctx context.Context, fallback selection.Selection) selection.Selection {
	sym, err := p.get(ctx, KeySymbol)
	if err != nil {
		return fallback
	}
	iv, err := p.get(ctx, KeyInterval)
	if err != nil {
		return fallback
	}
	sel := selection.New(sym, iv)
	if err := sel.Validate(); err != nil {
		p.logger.Warn("ignoring stored selection", slog.Any("error", err))
		return fallback
	}
	return sel
}

// SaveSelection records sel as the default for the next start.
func (p *Prefs) SaveSelection(ctx context.Context, sel selection.Selection) error {
	if err := p.store.Set(ctx, KeySymbol, sel.Symbol); err != nil {
		return fmt.Errorf("store: save symbol: %w", err)
	}
	if err := p.store.Set(ctx, KeyInterval, string(sel.Interval)); err != nil {
		return fmt.Errorf("store: save interval: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored series for sel. A missing or corrupt
// snapshot reports false.
func (p *Prefs) LoadSnapshot(ctx context.Context, sel selection.Selection) (buffer.Series, bool) {
	raw, err := p.get(ctx, sel.SnapshotKey())
	if err != nil {
		return buffer.Series{}, false
	}
	s, err := buffer.UnmarshalSnapshot([]byte(raw))
	if err != nil {
		p.logger.Warn("discarding snapshot",
			slog.String("key", sel.SnapshotKey()),
			slog.Any("error", err),
		)
		return buffer.Series{}, false
	}
	return s, true
}

// SaveSnapshot stores series under sel's snapshot key.
func (p *Prefs) SaveSnapshot(ctx context.Context, sel selection.Selection, series buffer.Series) error {
	raw, err := buffer.MarshalSnapshot(series)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	if err := p.store.Set(ctx, sel.SnapshotKey(), string(raw)); err != nil {
		return fmt.Errorf("store: save snapshot %s: %w", sel.SnapshotKey(), err)
	}
	return nil
}

func (p *Prefs) get(ctx context.Context, key string) (string, error) {
	v, err := p.store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		p.logger.Warn("store read failed", slog.String("key", key), slog.Any("error", err))
	}
	return v, err
}
