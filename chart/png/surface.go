package png

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/chart"
)

// Surface keeps a PNG file in sync with the live chart. Every build and
// update rewrites the file atomically, so readers never see a partial image.
type Surface struct {
	path   string
	opts   Options
	logger *slog.Logger
}

// NewSurface renders to path with opts. A nil logger uses slog.Default.
func NewSurface(path string, opts Options, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{path: path, opts: opts, logger: logger}
}

// Path is the file the surface writes.
func (s *Surface) Path() string { return s.path }

func (s *Surface) Build(spec chart.Spec) (chart.Chart, error) {
	c := &fileChart{surface: s, spec: spec}
	if err := s.write(spec); err != nil {
		return nil, err
	}
	return c, nil
}

// write renders spec to a temp file next to path and renames it into place.
// An empty series removes the file so a stale selection is not left on disk.
func (s *Surface) write(spec chart.Spec) error {
	var buf bytes.Buffer
	err := Render(&buf, spec, s.opts)
	if errors.Is(err, ErrNoData) {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("png: remove %s: %w", s.path, err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".chart-*.png")
	if err != nil {
		return fmt.Errorf("png: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("png: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("png: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("png: rename to %s: %w", s.path, err)
	}
	return nil
}

type fileChart struct {
	surface *Surface

	mu        sync.Mutex
	spec      chart.Spec
	destroyed bool
}

func (c *fileChart) Update(series buffer.Series) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	c.spec.Series = series
	return c.surface.write(c.spec)
}

func (c *fileChart) Destroy() {
	c.mu.Lock()
	c.destroyed = true
	c.mu.Unlock()
	c.surface.logger.Debug("png chart destroyed", slog.String("selection", c.spec.Selection.String()))
}
