package bot

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/moyoez/pdfbot-go/actions"
	"github.com/moyoez/pdfbot-go/cloud"
	"github.com/moyoez/pdfbot-go/ocr"
	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/types"
)

// labelLib treats a document as one page label per line; "#pw:" marks encryption.
type labelLib struct{}

func readLabels(path string) ([]string, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", types.TransformationError("cannot open", err)
	}
	var pages []string
	pw := ""
	for _, l := range strings.Split(string(b), "\n") {
		switch {
		case l == "":
		case strings.HasPrefix(l, "#pw:"):
			pw = strings.TrimPrefix(l, "#pw:")
		default:
			pages = append(pages, l)
		}
	}
	return pages, pw, nil
}

func writeLabels(path string, pages []string, pw string) error {
	if pw != "" {
		pages = append([]string{"#pw:" + pw}, pages...)
	}
	return os.WriteFile(path, []byte(strings.Join(pages, "\n")+"\n"), 0o600)
}

func plain(path string) ([]string, error) {
	pages, pw, err := readLabels(path)
	if err == nil && pw != "" {
		err = types.TransformationError("document is encrypted", nil)
	}
	return pages, err
}

func (labelLib) PageCount(_ context.Context, path string) (int, error) {
	pages, err := plain(path)
	return len(pages), err
}

func (labelLib) RemovePages(_ context.Context, in, out string, remove []int) error {
	pages, err := plain(in)
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
	return writeLabels(out, kept, "")
}

func (labelLib) Collect(_ context.Context, in, out string, order []int) error {
	pages, err := plain(in)
	if err != nil {
		return err
	}
	var picked []string
	for _, p := range order {
		picked = append(picked, pages[p-1])
	}
	return writeLabels(out, picked, "")
}

func (labelLib) Insert(_ context.Context, in, insert, out string, after int) error {
	pages, err := plain(in)
	if err != nil {
		return err
	}
	extra, err := plain(insert)
	if err != nil {
		return err
	}
	res := append(append(append([]string{}, pages[:after]...), extra...), pages[after:]...)
	return writeLabels(out, res, "")
}

func (labelLib) Merge(_ context.Context, inputs []string, out string) error {
	var all []string
	for _, in := range inputs {
		pages, err := plain(in)
		if err != nil {
			return err
		}
		all = append(all, pages...)
	}
	return writeLabels(out, all, "")
}

func (labelLib) Encrypt(_ context.Context, in, out, password string) error {
	pages, err := plain(in)
	if err != nil {
		return err
	}
	return writeLabels(out, pages, password)
}

func (labelLib) Decrypt(_ context.Context, in, out, password string) error {
	pages, pw, err := readLabels(in)
	if err != nil {
		return err
	}
	if pw != password {
		return types.TransformationError("wrong password", types.ErrWrongPassword)
	}
	return writeLabels(out, pages, "")
}

func (labelLib) Optimize(_ context.Context, in, out string) error {
	pages, err := plain(in)
	if err != nil {
		return err
	}
	return writeLabels(out, pages, "")
}

func (l labelLib) WatermarkText(_ context.Context, in, out, text string) error {
	return l.stamp(in, out, "~"+text)
}

func (l labelLib) WatermarkImage(_ context.Context, in, out, _ string) error {
	return l.stamp(in, out, "~image")
}

func (labelLib) stamp(in, out, mark string) error {
	pages, err := plain(in)
	if err != nil {
		return err
	}
	for i := range pages {
		pages[i] += mark
	}
	return writeLabels(out, pages, "")
}

func (labelLib) ImagesToPDF(_ context.Context, images []string, out string) error {
	var pages []string
	for _, img := range images {
		b, err := os.ReadFile(img)
		if err != nil {
			return err
		}
		pages = append(pages, strings.TrimSpace(string(b)))
	}
	return writeLabels(out, pages, "")
}

type fakeExchanger struct{ exchanged atomic.Int32 }

func (e *fakeExchanger) AuthCodeURL(state string) string {
	return "https://auth.example/authorize?state=" + url.QueryEscape(state)
}

func (e *fakeExchanger) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	e.exchanged.Add(1)
	return &oauth2.Token{AccessToken: code}, nil
}

type fakeUploader struct{ uploads atomic.Int32 }

func (u *fakeUploader) Upload(_ context.Context, _ *oauth2.Token, _ string, name string) (string, error) {
	u.uploads.Add(1)
	return "https://drive.example/" + name, nil
}

type recordingHub struct {
	mu   sync.Mutex
	sent map[int64][]*types.Notification
}

func (h *recordingHub) Publish(userID int64, n *types.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent == nil {
		h.sent = map[int64][]*types.Notification{}
	}
	h.sent[userID] = append(h.sent[userID], n)
}

func (h *recordingHub) count(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent[userID])
}

type harness struct {
	t         *testing.T
	engine    *Engine
	store     *store.Store
	exchanger *fakeExchanger
	uploader  *fakeUploader
	hub       *recordingHub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.New(store.Options{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(st.Close)

	ex := &fakeExchanger{}
	up := &fakeUploader{}
	gate, err := cloud.NewGate(cloud.GateOptions{Exchanger: ex, Uploader: up, Secret: []byte("secret")})
	require.NoError(t, err)

	d, err := actions.NewDispatcher(actions.Options{
		Store:    st,
		Library:  labelLib{},
		OCR:      &ocr.Service{},
		Exporter: gate,
	})
	require.NoError(t, err)

	hub := &recordingHub{}
	e, err := New(Options{
		Store:      st,
		Dispatcher: d,
		Batch:      actions.NewBatch(d, 2),
		Gate:       gate,
		Hub:        hub,
		ResultURL:  func(id int64) string { return "http://local/result?user=" + strconv.FormatInt(id, 10) },
		QRURL:      func(data string) string { return "http://local/qr?data=" + url.QueryEscape(data) },
	})
	require.NoError(t, err)
	return &harness{t: t, engine: e, store: st, exchanger: ex, uploader: up, hub: hub}
}

func (h *harness) send(ev *types.Event) types.EventResponse {
	h.t.Helper()
	resp, err := h.engine.Handle(context.Background(), ev)
	require.NoError(h.t, err)
	return resp
}

func (h *harness) command(user int64, name string) types.EventResponse {
	return h.send(&types.Event{UserID: user, Kind: types.EventCommand, Text: name})
}

func (h *harness) text(user int64, s string) types.EventResponse {
	return h.send(&types.Event{UserID: user, Kind: types.EventText, Text: s})
}

func (h *harness) press(user int64, data string) types.EventResponse {
	return h.send(&types.Event{UserID: user, Kind: types.EventCallback, Text: data})
}

func (h *harness) upload(user int64, name string, pages ...string) types.EventResponse {
	return h.send(&types.Event{
		UserID:   user,
		Kind:     types.EventDocument,
		FileName: name,
		File:     strings.NewReader(strings.Join(pages, "\n")),
	})
}

func (h *harness) photo(user int64, content string) types.EventResponse {
	return h.send(&types.Event{UserID: user, Kind: types.EventPhoto, File: strings.NewReader(content)})
}

func (h *harness) pages(user int64) []string {
	h.t.Helper()
	sess, ok := h.store.Peek(user)
	require.True(h.t, ok)
	rec, ok := sess.Active()
	require.True(h.t, ok)
	pages, _, err := readLabels(rec.Path)
	require.NoError(h.t, err)
	return pages
}

func allText(resp types.EventResponse) string {
	var parts []string
	for _, r := range resp.Replies {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n")
}

func buttonData(resp types.EventResponse) []string {
	var out []string
	for _, r := range resp.Replies {
		for _, row := range r.Buttons {
			for _, b := range row {
				out = append(out, b.Data)
			}
		}
	}
	return out
}
