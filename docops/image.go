package docops

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/moyoez/pdfbot-go/types"
)

// FlattenImage decodes src, composites it over white and writes dst.
// dst is PNG when its extension is .png, JPEG otherwise.
func FlattenImage(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return types.ResourceError("cannot open image", err)
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return types.TransformationError("unsupported or corrupt image", err)
	}

	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)

	out, err := os.Create(dst)
	if err != nil {
		return types.ResourceError("cannot write image", err)
	}
	if strings.EqualFold(filepath.Ext(dst), ".png") {
		err = png.Encode(out, flat)
	} else {
		err = jpeg.Encode(out, flat, &jpeg.Options{Quality: 95})
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return types.ResourceError(fmt.Sprintf("cannot encode %s", filepath.Base(dst)), err)
	}
	return nil
}
