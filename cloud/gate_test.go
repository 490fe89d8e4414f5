package cloud

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/moyoez/pdfbot-go/store"
	"github.com/moyoez/pdfbot-go/types"
)

type fakeExchanger struct {
	exchanged atomic.Int32
	fail      bool
}

func (e *fakeExchanger) AuthCodeURL(state string) string {
	return "https://auth.example/authorize?state=" + url.QueryEscape(state)
}

func (e *fakeExchanger) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	e.exchanged.Add(1)
	if e.fail {
		return nil, errors.New("invalid_grant")
	}
	return &oauth2.Token{AccessToken: "token-for-" + code}, nil
}

type fakeUploader struct {
	uploads atomic.Int32
}

func (u *fakeUploader) Upload(_ context.Context, token *oauth2.Token, _ string, name string) (string, error) {
	u.uploads.Add(1)
	return "https://drive.example/" + name + "?t=" + token.AccessToken, nil
}

type gateFixture struct {
	gate *Gate
	ex   *fakeExchanger
	up   *fakeUploader
	st   *store.Store
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	ex := &fakeExchanger{}
	up := &fakeUploader{}
	g, err := NewGate(GateOptions{Exchanger: ex, Uploader: up, Secret: []byte("test-secret")})
	require.NoError(t, err)
	st, err := store.New(store.Options{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return &gateFixture{gate: g, ex: ex, up: up, st: st}
}

func stateOf(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (f *gateFixture) record(t *testing.T, sess *store.Session) *types.FileRecord {
	t.Helper()
	rec, err := f.st.AddFile(context.Background(), sess, strings.NewReader("%PDF"), "report.pdf")
	require.NoError(t, err)
	return rec
}

func TestGateTwoPhaseFlow(t *testing.T) {
	f := newGateFixture(t)
	sess := f.st.CreateSession(7)
	rec := f.record(t, sess)

	_, err := f.gate.Export(context.Background(), sess, rec)
	require.ErrorIs(t, err, types.ErrNotAuthorized)
	assert.False(t, f.gate.Authorized(sess))

	authURL, err := f.gate.Begin(7)
	require.NoError(t, err)
	state := stateOf(t, authURL)

	require.NoError(t, f.gate.Complete(context.Background(), sess, "abc", state))
	assert.True(t, f.gate.Authorized(sess))
	assert.Equal(t, "token-for-abc", sess.Token().AccessToken)

	link, err := f.gate.Export(context.Background(), sess, rec)
	require.NoError(t, err)
	assert.Equal(t, "https://drive.example/report.pdf?t=token-for-abc", link)

	// stored credential skips phase one
	_, err = f.gate.Export(context.Background(), sess, rec)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.up.uploads.Load())
	assert.EqualValues(t, 1, f.ex.exchanged.Load())
}

func TestGateBareCodeUsesPendingState(t *testing.T) {
	f := newGateFixture(t)
	sess := f.st.CreateSession(7)
	_, err := f.gate.Begin(7)
	require.NoError(t, err)
	require.NoError(t, f.gate.Complete(context.Background(), sess, "abc", ""))
	assert.NotNil(t, sess.Token())
}

func TestGateStateMismatchNeverExchangesOrUploads(t *testing.T) {
	f := newGateFixture(t)
	sess := f.st.CreateSession(7)
	other := f.st.CreateSession(8)

	authURL, err := f.gate.Begin(7)
	require.NoError(t, err)
	state := stateOf(t, authURL)
	otherURL, err := f.gate.Begin(8)
	require.NoError(t, err)

	forged, err := NewGate(GateOptions{Exchanger: f.ex, Uploader: f.up, Secret: []byte("other-secret")})
	require.NoError(t, err)
	forgedURL, err := forged.Begin(7)
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":         "not-a-token",
		"tampered":        state + "x",
		"other user":      stateOf(t, otherURL),
		"foreign signing": stateOf(t, forgedURL),
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.gate.Complete(context.Background(), sess, "abc", s)
			require.ErrorIs(t, err, types.ErrStateMismatch)
			assert.Equal(t, types.ErrorKindExternal, types.KindOf(err))
		})
	}
	assert.Zero(t, f.ex.exchanged.Load())
	assert.Zero(t, f.up.uploads.Load())
	assert.Nil(t, sess.Token())
	assert.Nil(t, other.Token())

	// the genuine state still works after the rejected attempts
	require.NoError(t, f.gate.Complete(context.Background(), sess, "abc", state))
}

func TestGateStateCannotBeReused(t *testing.T) {
	f := newGateFixture(t)
	sess := f.st.CreateSession(7)
	authURL, err := f.gate.Begin(7)
	require.NoError(t, err)
	state := stateOf(t, authURL)

	require.NoError(t, f.gate.Complete(context.Background(), sess, "abc", state))
	err = f.gate.Complete(context.Background(), sess, "def", state)
	require.ErrorIs(t, err, types.ErrStateMismatch)
	assert.EqualValues(t, 1, f.ex.exchanged.Load())
}

func TestGateSupersededStateRejected(t *testing.T) {
	f := newGateFixture(t)
	sess := f.st.CreateSession(7)
	first, err := f.gate.Begin(7)
	require.NoError(t, err)
	_, err = f.gate.Begin(7)
	require.NoError(t, err)

	err = f.gate.Complete(context.Background(), sess, "abc", stateOf(t, first))
	require.ErrorIs(t, err, types.ErrStateMismatch)
}

func TestGateExpiredState(t *testing.T) {
	f := newGateFixture(t)
	sess := f.st.CreateSession(7)
	authURL, err := f.gate.Begin(7)
	require.NoError(t, err)

	f.gate.now = func() time.Time { return time.Now().Add(time.Hour) }
	err = f.gate.Complete(context.Background(), sess, "abc", stateOf(t, authURL))
	require.ErrorIs(t, err, types.ErrStateMismatch)
	assert.Zero(t, f.ex.exchanged.Load())
}

func TestGateNoPendingState(t *testing.T) {
	f := newGateFixture(t)
	sess := f.st.CreateSession(7)
	err := f.gate.Complete(context.Background(), sess, "abc", "")
	require.ErrorIs(t, err, types.ErrStateMismatch)

	err = f.gate.Complete(context.Background(), sess, "", "")
	assert.Equal(t, types.ErrorKindValidation, types.KindOf(err))
}

func TestGateExchangeFailure(t *testing.T) {
	f := newGateFixture(t)
	f.ex.fail = true
	sess := f.st.CreateSession(7)
	_, err := f.gate.Begin(7)
	require.NoError(t, err)

	err = f.gate.Complete(context.Background(), sess, "bad", "")
	assert.Equal(t, types.ErrorKindExternal, types.KindOf(err))
	assert.Nil(t, sess.Token())
	assert.Zero(t, f.up.uploads.Load())
}

func TestNewGateValidatesOptions(t *testing.T) {
	_, err := NewGate(GateOptions{Uploader: &fakeUploader{}, Secret: []byte("s")})
	assert.Error(t, err)
	_, err = NewGate(GateOptions{Exchanger: &fakeExchanger{}, Uploader: &fakeUploader{}})
	assert.Error(t, err)
}

func TestDriveUploaderMultipart(t *testing.T) {
	var gotAuth, gotMeta, gotMedia, gotMediaType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/related" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		meta, err := mr.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(meta)
		gotMeta = string(b)
		media, err := mr.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotMediaType = media.Header.Get("Content-Type")
		b, _ = io.ReadAll(media)
		gotMedia = string(b)
		out, _ := sonic.Marshal(driveFile{ID: "file-1", WebViewLink: "https://drive.example/file-1"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 body"), 0o600))

	u := &DriveUploader{URL: srv.URL, Config: &oauth2.Config{}, HTTPClient: srv.Client()}
	link, err := u.Upload(context.Background(), &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"}, path, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://drive.example/file-1", link)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Contains(t, gotMeta, `"name":"report.pdf"`)
	assert.Equal(t, "application/pdf", gotMediaType)
	assert.Equal(t, "%PDF-1.7 body", gotMedia)
}

func TestDriveUploaderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, `{"error":"insufficient scope"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	u := &DriveUploader{URL: srv.URL, Config: &oauth2.Config{}, HTTPClient: srv.Client()}
	_, err := u.Upload(context.Background(), &oauth2.Token{AccessToken: "tok"}, path, "a.pdf")
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindExternal, types.KindOf(err))
	assert.Contains(t, err.Error(), "403")
}

func TestDriveUploaderFallbackLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	u := &DriveUploader{URL: srv.URL, Config: &oauth2.Config{}, HTTPClient: srv.Client()}
	link, err := u.Upload(context.Background(), &oauth2.Token{AccessToken: "tok"}, path, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://drive.google.com/file/d/abc/view", link)
}

func TestObjectKey(t *testing.T) {
	rec := &types.FileRecord{ID: "r1", Name: "../merged.pdf"}
	assert.Equal(t, "42/r1/merged.pdf", objectKey(42, rec))
}

func TestNewDeliveryValidation(t *testing.T) {
	_, err := NewDelivery(types.DeliveryConfig{})
	assert.Error(t, err)
	_, err = NewDelivery(types.DeliveryConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	d, err := NewDelivery(types.DeliveryConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "results"})
	require.NoError(t, err)
	assert.Equal(t, DefaultLinkTTL, d.linkTTL)
	assert.Equal(t, "us-east-1", d.region)
}

func TestDisabledConfigs(t *testing.T) {
	g, err := NewGateFromConfig(types.CloudConfig{})
	require.NoError(t, err)
	assert.Nil(t, g)
	d, err := NewDeliveryFromConfig(types.DeliveryConfig{})
	require.NoError(t, err)
	assert.Nil(t, d)
}
