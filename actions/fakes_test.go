package actions

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moyoez/pdfbot-go/ocr"
	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/types"
)

// fakeLib stores a "document" as one page label per line.
// An encrypted document starts with a "#enc:<password>" line.
type fakeLib struct {
	mutations atomic.Int32
	failOn    string // path base name containing this fails Optimize/Encrypt
}

const encPrefix = "#enc:"

func readDoc(path string) (pages []string, password string, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, encPrefix):
			password = strings.TrimPrefix(line, encPrefix)
		default:
			pages = append(pages, line)
		}
	}
	return pages, password, nil
}

func writeDoc(path string, pages []string, password string) error {
	var sb strings.Builder
	if password != "" {
		sb.WriteString(encPrefix + password + "\n")
	}
	for _, p := range pages {
		sb.WriteString(p + "\n")
	}
	return os.WriteFile(path, []byte(sb.String()), 0o600)
}

func (f *fakeLib) open(path string) ([]string, error) {
	pages, pw, err := readDoc(path)
	if err != nil {
		return nil, types.TransformationError("cannot open", err)
	}
	if pw != "" {
		return nil, types.TransformationError("document is encrypted", nil)
	}
	return pages, nil
}

func (f *fakeLib) PageCount(_ context.Context, path string) (int, error) {
	pages, err := f.open(path)
	return len(pages), err
}

func (f *fakeLib) RemovePages(_ context.Context, in, out string, remove []int) error {
	f.mutations.Add(1)
	pages, err := f.open(in)
	if err != nil {
		return err
	}
	drop := map[int]bool{}
	for _, p := range remove {
		drop[p] = true
	}
	var kept []string
	for i, p := range pages {
		if !drop[i+1] {
			kept = append(kept, p)
		}
	}
	return writeDoc(out, kept, "")
}

func (f *fakeLib) Collect(_ context.Context, in, out string, order []int) error {
	f.mutations.Add(1)
	pages, err := f.open(in)
	if err != nil {
		return err
	}
	var picked []string
	for _, p := range order {
		picked = append(picked, pages[p-1])
	}
	return writeDoc(out, picked, "")
}

func (f *fakeLib) Insert(_ context.Context, in, insert, out string, after int) error {
	f.mutations.Add(1)
	pages, err := f.open(in)
	if err != nil {
		return err
	}
	extra, err := f.open(insert)
	if err != nil {
		return err
	}
	res := append([]string{}, pages[:after]...)
	res = append(res, extra...)
	res = append(res, pages[after:]...)
	return writeDoc(out, res, "")
}

func (f *fakeLib) Merge(_ context.Context, inputs []string, out string) error {
	var all []string
	for _, in := range inputs {
		pages, err := f.open(in)
		if err != nil {
			return err
		}
		all = append(all, pages...)
	}
	return writeDoc(out, all, "")
}

func (f *fakeLib) Encrypt(_ context.Context, in, out, password string) error {
	f.mutations.Add(1)
	if f.failOn != "" && strings.Contains(in, f.failOn) {
		return types.TransformationError("encrypt failed", nil)
	}
	pages, err := f.open(in)
	if err != nil {
		return err
	}
	return writeDoc(out, pages, password)
}

func (f *fakeLib) Decrypt(_ context.Context, in, out, password string) error {
	pages, pw, err := readDoc(in)
	if err != nil {
		return err
	}
	if pw != password {
		return types.TransformationError("wrong password", types.ErrWrongPassword)
	}
	return writeDoc(out, pages, "")
}

func (f *fakeLib) Optimize(_ context.Context, in, out string) error {
	pages, err := f.open(in)
	if err != nil {
		return err
	}
	return writeDoc(out, pages, "")
}

func (f *fakeLib) WatermarkText(_ context.Context, in, out, text string) error {
	return f.stamp(in, out, "+wm:"+text)
}

func (f *fakeLib) WatermarkImage(_ context.Context, in, out, image string) error {
	return f.stamp(in, out, "+img:"+filepath.Base(image))
}

func (f *fakeLib) stamp(in, out, mark string) error {
	pages, err := f.open(in)
	if err != nil {
		return err
	}
	for i := range pages {
		pages[i] += mark
	}
	return writeDoc(out, pages, "")
}

// ImagesToPDF turns each image into one page labelled with the image content.
func (f *fakeLib) ImagesToPDF(_ context.Context, images []string, out string) error {
	var pages []string
	for _, img := range images {
		b, err := os.ReadFile(img)
		if err != nil {
			return err
		}
		pages = append(pages, strings.TrimSpace(string(b)))
	}
	return writeDoc(out, pages, "")
}

// pageRasterizer writes one "image" per page holding the page label.
type pageRasterizer struct{}

func (pageRasterizer) Render(_ context.Context, pdfPath, dir string, _ int) ([]string, error) {
	pages, _, err := readDoc(pdfPath)
	if err != nil {
		return nil, err
	}
	var out []string
	for i, p := range pages {
		img := filepath.Join(dir, fmt.Sprintf("p%03d.png", i+1))
		if err := os.WriteFile(img, []byte(p), 0o600); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

// jitterEngine finishes pages in random order.
type jitterEngine struct{}

func (jitterEngine) PagePDF(ctx context.Context, imagePath, outPath string) error {
	select {
	case <-time.After(time.Duration(rand.Intn(15)) * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	b, err := os.ReadFile(imagePath)
	if err != nil {
		return err
	}
	return writeDoc(outPath, []string{"ocr:" + string(b)}, "")
}

func (jitterEngine) Text(_ context.Context, imagePath string) (string, error) {
	b, err := os.ReadFile(imagePath)
	return "text:" + string(b), err
}

type fakeExporter struct {
	calls atomic.Int32
}

func (e *fakeExporter) Export(_ context.Context, sess *store.Session, rec *types.FileRecord) (string, error) {
	if sess.Token() == nil {
		return "", types.ValidationError("authorize first", types.ErrNotAuthorized)
	}
	e.calls.Add(1)
	return "https://drive.example/view/" + rec.ID, nil
}

type fixture struct {
	store *store.Store
	lib   *fakeLib
	d     *Dispatcher
	batch *Batch
	sess  *store.Session
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	st, err := store.New(store.Options{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(st.Close)

	lib := &fakeLib{}
	opts.Store = st
	opts.Library = lib
	if opts.OCR == nil {
		opts.OCR = &ocr.Service{Engine: jitterEngine{}, Rasterizer: pageRasterizer{}, Workers: 4}
	}
	d, err := NewDispatcher(opts)
	require.NoError(t, err)
	return &fixture{store: st, lib: lib, d: d, batch: NewBatch(d, 3), sess: st.CreateSession(1)}
}

// addDoc uploads a document with the given page labels.
func (f *fixture) addDoc(t *testing.T, name string, pages ...string) *types.FileRecord {
	t.Helper()
	rec, err := f.store.AddFile(context.Background(), f.sess, strings.NewReader(strings.Join(pages, "\n")), name)
	require.NoError(t, err)
	return rec
}

func pagesOf(t *testing.T, rec *types.FileRecord) []string {
	t.Helper()
	pages, _, err := readDoc(rec.Path)
	require.NoError(t, err)
	return pages
}
