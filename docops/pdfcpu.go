package docops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

const (
	// Helvetica 36pt, gray, 30% opacity, rotated 45 degrees, centered.
	textWatermarkDesc = "fontname:Helvetica, points:36, scalefactor:1 abs, fillcolor:#808080, opacity:0.3, rotation:45, position:c"
	// 20% of the page, centered.
	imageWatermarkDesc = "scalefactor:0.2 rel, rotation:0, opacity:1, position:c"

	aesKeyLength = 256
)

// PDFCPU implements Library on pdfcpu.
type PDFCPU struct {
	// ScratchDir holds temporaries for multi-step operations. Empty means next to out.
	ScratchDir string
}

func NewPDFCPU() *PDFCPU {
	// never read or write a pdfcpu config dir in the user's home
	model.ConfigPath = "disable"
	return &PDFCPU{}
}

func (p *PDFCPU) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// run executes fn unless ctx is already done, and stops waiting once ctx is cancelled.
// pdfcpu calls are not cancellable; an abandoned call finishes writing into the scratch dir.
func run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func selection(pages []int) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, strconv.Itoa(p))
	}
	return out
}

func (p *PDFCPU) PageCount(ctx context.Context, path string) (int, error) {
	var n int
	err := run(ctx, func() (err error) {
		n, err = api.PageCountFile(path)
		return err
	})
	if err != nil {
		return 0, wrap("cannot read page count", err)
	}
	return n, nil
}

func (p *PDFCPU) RemovePages(ctx context.Context, in, out string, pages []int) error {
	if len(pages) == 0 {
		return types.ValidationError("no pages selected", nil)
	}
	return wrap("delete pages failed", run(ctx, func() error {
		return api.RemovePagesFile(in, out, selection(pages), p.conf())
	}))
}

func (p *PDFCPU) Collect(ctx context.Context, in, out string, pages []int) error {
	if len(pages) == 0 {
		return types.ValidationError("no pages selected", nil)
	}
	return wrap("reorder pages failed", run(ctx, func() error {
		return api.CollectFile(in, out, selection(pages), p.conf())
	}))
}

func (p *PDFCPU) Insert(ctx context.Context, in, insert, out string, after int) error {
	n, err := p.PageCount(ctx, in)
	if err != nil {
		return err
	}
	if after < 0 || after > n {
		return types.ValidationError(fmt.Sprintf("position must be between 0 and %d", n), nil)
	}
	switch after {
	case 0:
		return p.Merge(ctx, []string{insert, in}, out)
	case n:
		return p.Merge(ctx, []string{in, insert}, out)
	}

	head, err := p.tempPath(out, "head_")
	if err != nil {
		return err
	}
	defer os.Remove(head)
	tail, err := p.tempPath(out, "tail_")
	if err != nil {
		return err
	}
	defer os.Remove(tail)

	if err := p.Collect(ctx, in, head, rangeOf(1, after)); err != nil {
		return err
	}
	if err := p.Collect(ctx, in, tail, rangeOf(after+1, n)); err != nil {
		return err
	}
	return p.Merge(ctx, []string{head, insert, tail}, out)
}

func (p *PDFCPU) Merge(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return types.ValidationError("nothing to merge", types.ErrNoFiles)
	}
	return wrap("merge failed", run(ctx, func() error {
		return api.MergeCreateFile(inputs, out, false, p.conf())
	}))
}

func (p *PDFCPU) Encrypt(ctx context.Context, in, out, password string) error {
	return wrap("encrypt failed", run(ctx, func() error {
		return api.EncryptFile(in, out, model.NewAESConfiguration(password, password, aesKeyLength))
	}))
}

func (p *PDFCPU) Decrypt(ctx context.Context, in, out, password string) error {
	return wrap("decrypt failed", run(ctx, func() error {
		conf := p.conf()
		conf.UserPW = password
		conf.OwnerPW = password
		return api.DecryptFile(in, out, conf)
	}))
}

func (p *PDFCPU) Optimize(ctx context.Context, in, out string) error {
	return wrap("compress failed", run(ctx, func() error {
		return api.OptimizeFile(in, out, p.conf())
	}))
}

func (p *PDFCPU) WatermarkText(ctx context.Context, in, out, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.ValidationError("watermark text must not be empty", nil)
	}
	wm, err := api.TextWatermark(text, textWatermarkDesc, true, false, pdftypes.POINTS)
	if err != nil {
		return wrap("invalid watermark", err)
	}
	return wrap("watermark failed", run(ctx, func() error {
		return api.AddWatermarksFile(in, out, nil, wm, p.conf())
	}))
}

func (p *PDFCPU) WatermarkImage(ctx context.Context, in, out, image string) error {
	flat, err := p.tempPath(out, "wm_")
	if err != nil {
		return err
	}
	flat = tool.ReplaceExt(flat, ".png")
	defer os.Remove(flat)
	if err := FlattenImage(image, flat); err != nil {
		return err
	}
	wm, err := api.ImageWatermark(flat, imageWatermarkDesc, true, false, pdftypes.POINTS)
	if err != nil {
		return wrap("invalid watermark image", err)
	}
	return wrap("watermark failed", run(ctx, func() error {
		return api.AddWatermarksFile(in, out, nil, wm, p.conf())
	}))
}

func (p *PDFCPU) ImagesToPDF(ctx context.Context, images []string, out string) error {
	if len(images) == 0 {
		return types.ValidationError("no images to convert", types.ErrNoFiles)
	}
	flat := make([]string, 0, len(images))
	defer func() {
		for _, f := range flat {
			_ = os.Remove(f)
		}
	}()
	for _, img := range images {
		dst, err := p.tempPath(out, "flat_")
		if err != nil {
			return err
		}
		dst = tool.ReplaceExt(dst, ".jpg")
		if err := FlattenImage(img, dst); err != nil {
			return err
		}
		flat = append(flat, dst)
	}
	return wrap("image conversion failed", run(ctx, func() error {
		return api.ImportImagesFile(flat, out, nil, p.conf())
	}))
}

func (p *PDFCPU) tempPath(out, prefix string) (string, error) {
	dir := p.ScratchDir
	if dir == "" {
		dir = filepath.Dir(out)
	}
	f, err := os.CreateTemp(dir, prefix+"*.pdf")
	if err != nil {
		return "", types.ResourceError("cannot create temporary file", err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return name, nil
}

func rangeOf(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// IsWrongPassword reports whether err comes from a bad user or owner password.
// pdfcpu only reports it in the message ("please provide the correct password").
func IsWrongPassword(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrWrongPassword) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password")
}

// wrap classifies a pdfcpu error. Errors already classified pass through.
func wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	var be *types.BotError
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.ExternalServiceError(msg+": timed out", err)
	}
	if IsWrongPassword(err) {
		return types.TransformationError("wrong password", types.ErrWrongPassword)
	}
	return types.TransformationError(msg, err)
}
