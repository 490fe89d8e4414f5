package actions

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

// BatchResult summarizes one batch run.
type BatchResult struct {
	Action    types.BatchActionID
	Processed int
	Skipped   int
	Records   []*types.FileRecord // copies, in list order
	Message   string
}

// Batch applies one action to every eligible record of a session.
// Tasks run on a bounded pool, each owning one record; artifacts are committed
// only after every task succeeded, in list order.
type Batch struct {
	d       *Dispatcher
	workers int
}

func NewBatch(d *Dispatcher, workers int) *Batch {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Batch{d: d, workers: workers}
}

// Run dispatches a batch menu choice.
func (b *Batch) Run(ctx context.Context, sess *store.Session, action types.BatchActionID, password string) (BatchResult, error) {
	switch action {
	case types.BatchCompress:
		return b.CompressAll(ctx, sess)
	case types.BatchEncrypt:
		return b.EncryptAll(ctx, sess, password)
	case types.BatchOCR:
		return b.OCRAll(ctx, sess)
	case types.BatchMerge:
		return b.MergeAll(ctx, sess)
	}
	return BatchResult{}, types.ValidationError(fmt.Sprintf("unknown batch action %q", action), types.ErrUnknownAction)
}

func (b *Batch) CompressAll(ctx context.Context, sess *store.Session) (BatchResult, error) {
	return b.each(ctx, sess, types.BatchCompress, types.ActionCompress, Params{}, b.d.compress)
}

func (b *Batch) EncryptAll(ctx context.Context, sess *store.Session, password string) (BatchResult, error) {
	if password == "" {
		return BatchResult{}, types.ValidationError("password must not be empty", nil)
	}
	return b.each(ctx, sess, types.BatchEncrypt, types.ActionEncrypt, Params{Op: types.OpEncrypt, Password: password}, b.d.crypt)
}

func (b *Batch) OCRAll(ctx context.Context, sess *store.Session) (BatchResult, error) {
	return b.each(ctx, sess, types.BatchOCR, types.ActionOCR, Params{}, b.d.recognize)
}

func (b *Batch) each(ctx context.Context, sess *store.Session, batch types.BatchActionID, action types.ActionID, p Params, h handler) (BatchResult, error) {
	files := sess.Files()
	if len(files) == 0 {
		return BatchResult{}, types.ValidationError("upload files first", types.ErrNoFiles)
	}
	var eligible []*types.FileRecord
	for _, f := range files {
		if action.LegalFor(f.Kind) {
			eligible = append(eligible, f)
		}
	}
	if len(eligible) == 0 {
		return BatchResult{}, types.ValidationError(fmt.Sprintf("no file supports %s", action), types.ErrUnsupportedKind)
	}

	ctx, cancel := context.WithTimeout(ctx, b.d.timeout)
	defer cancel()
	start := time.Now()

	// produced[i] is written only by task i
	produced := make([]string, len(eligible))
	outs, err := tool.FanOut(ctx, b.workers, len(eligible), func(ctx context.Context, i int) (artifact, error) {
		out, err := h(ctx, sess, eligible[i], p)
		if err != nil {
			discard(out.path)
			return artifact{}, fmt.Errorf("%s: %w", eligible[i].Name, err)
		}
		produced[i] = out.path
		return out, nil
	})
	if err != nil {
		for _, path := range produced {
			discard(path)
		}
		tool.DefaultLogger.Warnf("Batch %s aborted: %v", batch, err)
		return BatchResult{}, err
	}

	res := BatchResult{Action: batch, Processed: len(eligible), Skipped: len(files) - len(eligible)}
	for i, rec := range eligible {
		if err := b.d.store.Replace(sess, rec, outs[i].path, outs[i].name, outs[i].kind, action); err != nil {
			return BatchResult{}, err
		}
		res.Records = append(res.Records, rec.Clone())
	}
	res.Message = fmt.Sprintf("Batch %s done: %d file(s) processed", action, res.Processed)
	if res.Skipped > 0 {
		res.Message += fmt.Sprintf(", %d skipped", res.Skipped)
	}
	res.Message += "."
	tool.DefaultLogger.Debugf("Batch %s on %d files done in %s", batch, res.Processed, time.Since(start).Round(time.Millisecond))
	return res, nil
}

// MergeAll concatenates every record in list order into one merged.pdf,
// converting images to single-page documents first, and replaces the file list with it.
func (b *Batch) MergeAll(ctx context.Context, sess *store.Session) (BatchResult, error) {
	files := sess.Files()
	if len(files) == 0 {
		return BatchResult{}, types.ValidationError("upload files first", types.ErrNoFiles)
	}
	for _, f := range files {
		if f.Kind == types.KindText {
			return BatchResult{}, types.ValidationError(fmt.Sprintf("%s is a text file and cannot be merged", f.Name), types.ErrUnsupportedKind)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, b.d.timeout)
	defer cancel()

	// images become one-page documents; converted[i] is written only by task i
	converted := make([]string, len(files))
	defer func() {
		for _, p := range converted {
			discard(p)
		}
	}()
	parts, err := tool.FanOut(ctx, b.workers, len(files), func(ctx context.Context, i int) (string, error) {
		if files[i].Kind == types.KindDocument {
			return files[i].Path, nil
		}
		out, err := b.d.store.NewArtifactPath(sess, "merge_part_", ".pdf")
		if err != nil {
			return "", err
		}
		converted[i] = out
		if err := b.d.lib.ImagesToPDF(ctx, []string{files[i].Path}, out); err != nil {
			return "", fmt.Errorf("%s: %w", files[i].Name, err)
		}
		return out, nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	out, err := b.d.store.NewArtifactPath(sess, "merged_", ".pdf")
	if err != nil {
		return BatchResult{}, err
	}
	if err := b.d.lib.Merge(ctx, parts, out); err != nil {
		discard(out)
		return BatchResult{}, err
	}

	merged := &types.FileRecord{
		ID:       tool.GenerateRandomUUID(),
		Path:     out,
		Name:     mergedName,
		Kind:     types.KindDocument,
		Original: out,
		History:  []types.ActionID{types.ActionBatch},
	}
	if err := b.d.store.ReplaceAll(sess, merged); err != nil {
		discard(out)
		return BatchResult{}, err
	}
	msg := fmt.Sprintf("Merged %d files into %s.", len(files), mergedName)
	if n, err := b.d.lib.PageCount(ctx, out); err == nil {
		msg = fmt.Sprintf("Merged %d files into %s (%d pages).", len(files), mergedName, n)
	}
	return BatchResult{
		Action:    types.BatchMerge,
		Processed: len(files),
		Records:   []*types.FileRecord{merged.Clone()},
		Message:   msg,
	}, nil
}
