// Package render turns card templates and field values into PDF and PNG
// data URIs.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/logging"
)

// Converter turns finalized SVG files into output formats.
type Converter interface {
	Rasterize(ctx context.Context, svgPath, pngPath string) error
	VectorizeToPDF(ctx context.Context, svgPaths []string, pdfPath string) error
}

// Observer receives the outcome of each render.
type Observer interface {
	ObserveRender(status string, elapsed time.Duration)
}

// Card is the template pair to render.
type Card struct {
	ID       string
	FrontSVG []byte
	BackSVG  []byte
}

type Options struct {
	CreateQRCode bool
	FrontOnly    bool
}

// Result holds the rendered card: one PDF with a page per side and one PNG
// per side, front first.
type Result struct {
	PDF string   `json:"pdf"`
	PNG []string `json:"png"`
}

type Config struct {
	Converter Converter
	QR        QREncoder
	TempRoot  string
	Logger    logging.Logger
	Observer  Observer
}

// Renderer runs the full pipeline for one card. It holds no per-render
// state, so one instance serves concurrent renders.
type Renderer struct {
	applier  *Applier
	conv     Converter
	tempRoot string
	log      logging.Logger
	observer Observer
}

func NewRenderer(cfg Config) *Renderer {
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return &Renderer{
		applier:  NewApplier(cfg.QR, cfg.Logger),
		conv:     cfg.Converter,
		tempRoot: cfg.TempRoot,
		log:      cfg.Logger,
		observer: cfg.Observer,
	}
}

// Render fills the card's sides with fields and converts them. Every
// intermediate file lives in a workspace that is removed before returning.
func (r *Renderer) Render(ctx context.Context, card Card, fields map[string]string, opts Options) (res *Result, err error) {
	start := time.Now()
	log := r.log.With("card", card.ID)
	log.Info(ctx, "Start rendering card", "front_only", opts.FrontOnly, "create_qr_code", opts.CreateQRCode)

	defer func() {
		elapsed := time.Since(start)
		status := "success"
		if err != nil {
			status = "error"
			log.Error(ctx, "Card rendering failed", "elapsed", elapsed, "error", err)
		} else {
			log.Info(ctx, "End rendering card", "elapsed", elapsed)
		}
		if r.observer != nil {
			r.observer.ObserveRender(status, elapsed)
		}
	}()

	ws, err := NewWorkspace(r.tempRoot)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	sides := [][]byte{card.FrontSVG}
	if !opts.FrontOnly {
		if len(card.BackSVG) > 0 {
			sides = append(sides, card.BackSVG)
		} else {
			log.Warn(ctx, "Card has no back side")
		}
	}

	svgPaths := make([]string, 0, len(sides))
	for _, side := range sides {
		text, err := r.applier.Apply(ctx, side, fields, opts.CreateQRCode, ws.Dir())
		if err != nil {
			return nil, err
		}
		path, err := ws.WriteFile(ws.UniqueName(".svg"), []byte(text))
		if err != nil {
			return nil, err
		}
		svgPaths = append(svgPaths, path)
	}

	res = &Result{PNG: make([]string, 0, len(svgPaths))}
	for _, svgPath := range svgPaths {
		pngPath := strings.TrimSuffix(svgPath, filepath.Ext(svgPath)) + "_" + randomHex()[:10] + ".png"
		if err := r.conv.Rasterize(ctx, svgPath, pngPath); err != nil {
			return nil, err
		}
		uri, err := fileDataURI(MimePNG, pngPath)
		if err != nil {
			return nil, err
		}
		res.PNG = append(res.PNG, uri)
	}

	pdfPath := ws.Path(ws.UniqueName(".pdf"))
	if err := r.conv.VectorizeToPDF(ctx, svgPaths, pdfPath); err != nil {
		return nil, err
	}
	if res.PDF, err = fileDataURI(MimePDF, pdfPath); err != nil {
		return nil, err
	}

	return res, nil
}

func fileDataURI(mime, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return EncodeDataURI(mime, data), nil
}
