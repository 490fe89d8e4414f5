package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

const (
	ocrPDFName  = "ocr_output.pdf"
	ocrTextName = "ocr_output.txt"
	mergedName  = "merged.pdf"
)

// pageCount reads the current count; every page-index action validates against it first.
func (d *Dispatcher) pageCount(ctx context.Context, rec *types.FileRecord) (int, error) {
	n, err := d.lib.PageCount(ctx, rec.Path)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, types.TransformationError("document has no pages", nil)
	}
	return n, nil
}

func checkPages(pages []int, n int) error {
	if len(pages) == 0 {
		return types.ValidationError("no pages given", nil)
	}
	for _, p := range pages {
		if p < 1 || p > n {
			return types.ValidationError(fmt.Sprintf("page %d is out of range (document has %d pages)", p, n), nil)
		}
	}
	return nil
}

func (d *Dispatcher) deletePages(ctx context.Context, sess *store.Session, rec *types.FileRecord, p Params) (artifact, error) {
	n, err := d.pageCount(ctx, rec)
	if err != nil {
		return artifact{}, err
	}
	if err := checkPages(p.Pages, n); err != nil {
		return artifact{}, err
	}
	unique := make(map[int]struct{}, len(p.Pages))
	for _, pg := range p.Pages {
		unique[pg] = struct{}{}
	}
	if len(unique) >= n {
		return artifact{}, types.ValidationError("cannot delete every page", nil)
	}

	out, err := d.store.NewArtifactPath(sess, "deleted_", ".pdf")
	if err != nil {
		return artifact{}, err
	}
	if err := d.lib.RemovePages(ctx, rec.Path, out, p.Pages); err != nil {
		return artifact{path: out}, err
	}
	return artifact{
		path:    out,
		name:    rec.Name,
		kind:    types.KindDocument,
		message: fmt.Sprintf("Deleted %d page(s), %d left.", len(unique), n-len(unique)),
	}, nil
}

func (d *Dispatcher) insertPages(ctx context.Context, sess *store.Session, rec *types.FileRecord, p Params) (artifact, error) {
	if p.InsertPath == "" {
		return artifact{}, types.ValidationError("send the PDF or image to insert", nil)
	}
	n, err := d.pageCount(ctx, rec)
	if err != nil {
		return artifact{}, err
	}
	if p.InsertAfter < 0 || p.InsertAfter > n {
		return artifact{}, types.ValidationError(fmt.Sprintf("position must be between 0 and %d", n), nil)
	}

	insert := p.InsertPath
	if kind, _ := types.KindFromName(insert); kind == types.KindImage {
		converted, err := d.store.NewArtifactPath(sess, "insert_", ".pdf")
		if err != nil {
			return artifact{}, err
		}
		defer discard(converted)
		if err := d.lib.ImagesToPDF(ctx, []string{insert}, converted); err != nil {
			return artifact{}, err
		}
		insert = converted
	} else if kind != types.KindDocument {
		return artifact{}, types.ValidationError("only PDFs or images can be inserted", types.ErrUnsupportedKind)
	}

	out, err := d.store.NewArtifactPath(sess, "inserted_", ".pdf")
	if err != nil {
		return artifact{}, err
	}
	if err := d.lib.Insert(ctx, rec.Path, insert, out, p.InsertAfter); err != nil {
		return artifact{path: out}, err
	}
	added, err := d.lib.PageCount(ctx, out)
	if err != nil {
		return artifact{path: out}, err
	}
	return artifact{
		path:    out,
		name:    rec.Name,
		kind:    types.KindDocument,
		message: fmt.Sprintf("Inserted %d page(s) after page %d.", added-n, p.InsertAfter),
	}, nil
}

func (d *Dispatcher) rearrange(ctx context.Context, sess *store.Session, rec *types.FileRecord, p Params) (artifact, error) {
	n, err := d.pageCount(ctx, rec)
	if err != nil {
		return artifact{}, err
	}
	if err := checkPages(p.Order, n); err != nil {
		return artifact{}, err
	}
	if len(p.Order) != n {
		return artifact{}, types.ValidationError(fmt.Sprintf("new order must list all %d pages exactly once", n), nil)
	}
	seen := make([]bool, n+1)
	for _, pg := range p.Order {
		if seen[pg] {
			return artifact{}, types.ValidationError(fmt.Sprintf("page %d appears more than once", pg), nil)
		}
		seen[pg] = true
	}

	out, err := d.store.NewArtifactPath(sess, "rearranged_", ".pdf")
	if err != nil {
		return artifact{}, err
	}
	if err := d.lib.Collect(ctx, rec.Path, out, p.Order); err != nil {
		return artifact{path: out}, err
	}
	return artifact{path: out, name: tool.DisplayName("rearranged_", rec.Name), kind: types.KindDocument, message: "Pages rearranged."}, nil
}

func (d *Dispatcher) compress(ctx context.Context, sess *store.Session, rec *types.FileRecord, _ Params) (artifact, error) {
	out, err := d.store.NewArtifactPath(sess, "compressed_", ".pdf")
	if err != nil {
		return artifact{}, err
	}
	if err := d.lib.Optimize(ctx, rec.Path, out); err != nil {
		return artifact{path: out}, err
	}
	msg := "Compressed."
	if before, err := tool.StatArtifact(rec.Path); err == nil {
		if after, err := tool.StatArtifact(out); err == nil {
			msg = fmt.Sprintf("Compressed: %s -> %s.", tool.HumanSize(before.Size), tool.HumanSize(after.Size))
		}
	}
	return artifact{path: out, name: tool.DisplayName("compressed_", rec.Name), kind: types.KindDocument, message: msg}, nil
}

func (d *Dispatcher) crypt(ctx context.Context, sess *store.Session, rec *types.FileRecord, p Params) (artifact, error) {
	if p.Password == "" {
		return artifact{}, types.ValidationError("password must not be empty", nil)
	}
	var prefix string
	switch p.Op {
	case types.OpEncrypt:
		prefix = "encrypted_"
	case types.OpDecrypt:
		prefix = "decrypted_"
	default:
		return artifact{}, types.ValidationError("use 'encrypt <password>' or 'decrypt <password>'", nil)
	}

	out, err := d.store.NewArtifactPath(sess, prefix, ".pdf")
	if err != nil {
		return artifact{}, err
	}
	if p.Op == types.OpEncrypt {
		err = d.lib.Encrypt(ctx, rec.Path, out, p.Password)
	} else {
		err = d.lib.Decrypt(ctx, rec.Path, out, p.Password)
	}
	if err != nil {
		return artifact{path: out}, err
	}
	return artifact{path: out, name: tool.DisplayName(prefix, rec.Name), kind: types.KindDocument, message: fmt.Sprintf("PDF %sed.", p.Op)}, nil
}

func (d *Dispatcher) watermark(ctx context.Context, sess *store.Session, rec *types.FileRecord, p Params) (artifact, error) {
	if p.WatermarkText == "" && p.WatermarkImage == "" {
		return artifact{}, types.ValidationError("send the watermark text or image", nil)
	}

	// images are watermarked as a one-page document
	src := rec.Path
	if rec.Kind == types.KindImage {
		converted, err := d.store.NewArtifactPath(sess, "page_", ".pdf")
		if err != nil {
			return artifact{}, err
		}
		defer discard(converted)
		if err := d.lib.ImagesToPDF(ctx, []string{rec.Path}, converted); err != nil {
			return artifact{}, err
		}
		src = converted
	}

	out, err := d.store.NewArtifactPath(sess, "watermarked_", ".pdf")
	if err != nil {
		return artifact{}, err
	}
	if p.WatermarkImage != "" {
		err = d.lib.WatermarkImage(ctx, src, out, p.WatermarkImage)
	} else {
		err = d.lib.WatermarkText(ctx, src, out, p.WatermarkText)
	}
	if err != nil {
		return artifact{path: out}, err
	}
	name := tool.DisplayName("watermarked_", tool.ReplaceExt(rec.Name, ".pdf"))
	return artifact{path: out, name: name, kind: types.KindDocument, message: "Watermark added to every page."}, nil
}

func (d *Dispatcher) recognize(ctx context.Context, sess *store.Session, rec *types.FileRecord, _ Params) (artifact, error) {
	if rec.Kind == types.KindImage {
		text, err := d.ocr.ImageText(ctx, rec.Path)
		if err != nil {
			return artifact{}, err
		}
		out, err := d.store.NewArtifactPath(sess, "ocr_text_", ".txt")
		if err != nil {
			return artifact{}, err
		}
		if err := os.WriteFile(out, []byte(text), 0o600); err != nil {
			return artifact{path: out}, types.ResourceError("cannot write OCR text", err)
		}
		return artifact{path: out, name: ocrTextName, kind: types.KindText, message: "OCR completed."}, nil
	}

	pages, err := d.ocr.RecognizePages(ctx, rec.Path, sess.Dir())
	if err != nil {
		return artifact{}, err
	}
	defer os.RemoveAll(filepath.Dir(pages[0]))

	out, err := d.store.NewArtifactPath(sess, "ocr_output_", ".pdf")
	if err != nil {
		return artifact{}, err
	}
	if err := d.lib.Merge(ctx, pages, out); err != nil {
		return artifact{path: out}, err
	}
	return artifact{path: out, name: ocrPDFName, kind: types.KindDocument, message: fmt.Sprintf("OCR completed on %d page(s).", len(pages))}, nil
}

func (d *Dispatcher) imageToPDF(ctx context.Context, sess *store.Session, rec *types.FileRecord, _ Params) (artifact, error) {
	out, err := d.store.NewArtifactPath(sess, "converted_", ".pdf")
	if err != nil {
		return artifact{}, err
	}
	if err := d.lib.ImagesToPDF(ctx, []string{rec.Path}, out); err != nil {
		return artifact{path: out}, err
	}
	return artifact{path: out, name: tool.ReplaceExt(rec.Name, ".pdf"), kind: types.KindDocument, message: "Image converted to PDF."}, nil
}

func (d *Dispatcher) export(ctx context.Context, sess *store.Session, rec *types.FileRecord, _ Params) (artifact, error) {
	if d.exporter == nil {
		return artifact{}, types.ExternalServiceError("cloud export is disabled", types.ErrNotAuthorized)
	}
	link, err := d.exporter.Export(ctx, sess, rec)
	if err != nil {
		return artifact{}, err
	}
	return artifact{link: link, message: "Saved to cloud storage."}, nil
}

func (d *Dispatcher) batch(_ context.Context, sess *store.Session, _ *types.FileRecord, _ Params) (artifact, error) {
	n := sess.FileCount()
	if n >= 2 {
		return artifact{message: fmt.Sprintf("%d files ready. Choose a batch action.", n)}, nil
	}
	return artifact{message: "Batch processing activated. Send more files, then /process."}, nil
}

func (d *Dispatcher) deliver(ctx context.Context, sess *store.Session, rec *types.FileRecord, _ Params) (artifact, error) {
	if _, err := os.Stat(rec.Path); err != nil {
		return artifact{}, types.ResourceError("result file is missing", err)
	}
	if d.deliverer == nil {
		return artifact{message: "Here is your result."}, nil
	}
	link, err := d.deliverer.Deliver(ctx, sess, rec)
	if err != nil {
		return artifact{}, err
	}
	return artifact{link: link, message: "Here is your result."}, nil
}
