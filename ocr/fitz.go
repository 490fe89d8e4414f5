package ocr

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/moyoez/pdfbot-go/types"
)

// FitzRasterizer renders pages with MuPDF.
type FitzRasterizer struct{}

func (FitzRasterizer) Render(ctx context.Context, pdfPath, dir string, dpi int) ([]string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, types.TransformationError("cannot open PDF for OCR", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	paths := make([]string, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, types.TransformationError(fmt.Sprintf("cannot render page %d", i+1), err)
		}
		out := filepath.Join(dir, fmt.Sprintf("page_%04d.png", i+1))
		f, err := os.Create(out)
		if err != nil {
			return nil, types.ResourceError("cannot write page image", err)
		}
		err = png.Encode(f, img)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, types.ResourceError(fmt.Sprintf("cannot encode page %d", i+1), err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}
