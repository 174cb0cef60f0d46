package convert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
	"github.com/samber/lo"
)

// ManagerConfig configures the conversion manager. Resolution and timeout
// come from service configuration, never from a request.
type ManagerConfig struct {
	DPIX      int
	DPIY      int
	Timeout   time.Duration
	Preferred string
	Logger    logging.Logger
}

// Manager manages multiple converters with fallback support
type Manager struct {
	converters []Converter
	preferred  string
	dpiX       int
	dpiY       int
	timeout    time.Duration
	log        logging.Logger
	mu         sync.RWMutex
}

// NewManager auto-detects installed converters in priority order
// (rsvg-convert, inkscape) and always registers the native converter last.
func NewManager(cfg ManagerConfig) *Manager {
	return NewManagerWith(cfg, NewRSVGConverter(), NewInkscapeConverter(), NewNativeConverter())
}

// NewManagerWith registers the available converters among candidates.
func NewManagerWith(cfg ManagerConfig, candidates ...Converter) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	m := &Manager{
		dpiX:    cfg.DPIX,
		dpiY:    cfg.DPIY,
		timeout: cfg.Timeout,
		log:     cfg.Logger,
	}
	for _, c := range candidates {
		if c.IsAvailable() {
			m.converters = append(m.converters, c)
		}
	}
	if cfg.Preferred != "" {
		if err := m.SetPreferred(cfg.Preferred); err != nil {
			m.log.Warn(context.Background(), "preferred converter unavailable", "converter", cfg.Preferred)
		}
	}
	return m
}

// SetPreferred sets the preferred converter by name
func (m *Manager) SetPreferred(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.converters {
		if c.Name() == name {
			m.preferred = name
			return nil
		}
	}
	return fmt.Errorf("converter '%s' not available", name)
}

// Available returns the names of registered converters in fallback order
func (m *Manager) Available() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Map(m.converters, func(c Converter, _ int) string { return c.Name() })
}

// Rasterize converts one SVG document into one PNG file.
func (m *Manager) Rasterize(ctx context.Context, svgPath, pngPath string) error {
	if svgPath == "" {
		return ErrNoInput
	}
	return m.convert(ctx, []string{svgPath}, pngPath, FormatPNG)
}

// VectorizeToPDF converts the SVG documents into one PDF, one page per
// document in the given order.
func (m *Manager) VectorizeToPDF(ctx context.Context, svgPaths []string, pdfPath string) error {
	if len(svgPaths) == 0 {
		return ErrNoInput
	}
	return m.convert(ctx, svgPaths, pdfPath, FormatPDF)
}

// ordered returns the converters supporting format, preferred first.
func (m *Manager) ordered(format string) []Converter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := lo.Filter(m.converters, func(c Converter, _ int) bool {
		return supportsFormat(c, format)
	})
	if m.preferred == "" {
		return candidates
	}
	preferred, rest := lo.FilterReject(candidates, func(c Converter, _ int) bool {
		return c.Name() == m.preferred
	})
	return append(preferred, rest...)
}

func (m *Manager) convert(ctx context.Context, inputs []string, output, format string) error {
	candidates := m.ordered(format)
	if len(candidates) == 0 {
		return NewConverterError("manager", format, fmt.Errorf("%w: no converter for %s", ErrUnsupportedFormat, format))
	}

	opts := &Options{Format: format, DPIX: m.dpiX, DPIY: m.dpiY}

	var lastErr error
	for _, c := range candidates {
		err := m.runOne(ctx, c, inputs, output, opts)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		m.log.Warn(ctx, "converter failed, trying next", "converter", c.Name(), "format", format, "error", err)
	}

	var convErr *ConverterError
	if errors.As(lastErr, &convErr) {
		return lastErr
	}
	return NewConverterError("manager", format, lastErr)
}

func (m *Manager) runOne(ctx context.Context, c Converter, inputs []string, output string, opts *Options) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return c.Convert(ctx, inputs, output, opts)
}
