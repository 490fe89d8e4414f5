// Package ocr turns page images into searchable PDF pages or plain text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

// Engine recognizes a single image.
type Engine interface {
	// PagePDF writes a one-page searchable PDF for the image at outPath.
	PagePDF(ctx context.Context, imagePath, outPath string) error
	Text(ctx context.Context, imagePath string) (string, error)
}

// Rasterizer renders every page of a PDF to an image inside dir, in page order.
type Rasterizer interface {
	Render(ctx context.Context, pdfPath, dir string, dpi int) ([]string, error)
}

const DefaultDPI = 300

// Service fans recognition out per page and reassembles by page index.
type Service struct {
	Engine     Engine
	Rasterizer Rasterizer
	Workers    int
	DPI        int
}

// RecognizePages renders pdfPath and returns one searchable single-page PDF per
// page, ordered like the input pages. Any page failing fails the whole run.
func (s *Service) RecognizePages(ctx context.Context, pdfPath, workDir string) ([]string, error) {
	if s.Engine == nil || s.Rasterizer == nil {
		return nil, types.ExternalServiceError("OCR is not configured", types.ErrEngineMissing)
	}
	dpi := s.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	imgDir, err := os.MkdirTemp(workDir, "ocr_")
	if err != nil {
		return nil, types.ResourceError("cannot create OCR work dir", err)
	}
	images, err := s.Rasterizer.Render(ctx, pdfPath, imgDir, dpi)
	if err != nil {
		_ = os.RemoveAll(imgDir)
		return nil, classify("cannot render pages", err)
	}
	if len(images) == 0 {
		_ = os.RemoveAll(imgDir)
		return nil, types.TransformationError("document has no pages", nil)
	}

	tool.DefaultLogger.Debugf("OCR: %d pages of %s on %d workers", len(images), filepath.Base(pdfPath), s.Workers)
	pages, err := tool.FanOut(ctx, s.Workers, len(images), func(ctx context.Context, i int) (string, error) {
		out := filepath.Join(imgDir, fmt.Sprintf("ocr_page_%04d.pdf", i+1))
		if err := s.Engine.PagePDF(ctx, images[i], out); err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		return out, nil
	})
	if err != nil {
		_ = os.RemoveAll(imgDir)
		return nil, classify("OCR failed", err)
	}
	return pages, nil
}

// ImageText recognizes the text of a single image.
func (s *Service) ImageText(ctx context.Context, imagePath string) (string, error) {
	if s.Engine == nil {
		return "", types.ExternalServiceError("OCR is not configured", types.ErrEngineMissing)
	}
	text, err := s.Engine.Text(ctx, imagePath)
	if err != nil {
		return "", classify("OCR failed", err)
	}
	return text, nil
}

func classify(msg string, err error) error {
	var be *types.BotError
	if errors.As(err, &be) {
		return err
	}
	return types.ExternalServiceError(msg, err)
}
