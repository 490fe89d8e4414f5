package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/pdfbot-go/types"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func scratchDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), DirPrefix) {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

func TestCreateSessionIsIdempotent(t *testing.T) {
	s := newTestStore(t, Options{})

	a := s.CreateSession(42)
	b := s.CreateSession(42)
	assert.Same(t, a, b)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, types.StageUpload, a.Stage())

	other := s.CreateSession(7)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, s.Len())
}

func TestAddFileAllocatesOneScratchDir(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, Options{Root: root})
	sess := s.CreateSession(42)

	assert.Empty(t, scratchDirs(t, root), "dir is created lazily")

	first, err := s.AddFile(context.Background(), sess, strings.NewReader("%PDF-1.4"), "report.pdf")
	require.NoError(t, err)
	dirs := scratchDirs(t, root)
	require.Len(t, dirs, 1)
	assert.True(t, strings.HasPrefix(dirs[0], "pdfbot_42_"))

	second, err := s.AddFile(context.Background(), sess, strings.NewReader("jpeg"), "scan.JPG")
	require.NoError(t, err)
	assert.Len(t, scratchDirs(t, root), 1, "further uploads reuse the dir")

	assert.Equal(t, types.KindDocument, first.Kind)
	assert.Equal(t, types.KindImage, second.Kind)
	assert.NotEqual(t, first.Path, second.Path)
	assert.Equal(t, sess.Dir(), filepath.Dir(first.Path))
	assert.Equal(t, []*types.FileRecord{first, second}, sess.Files())

	active, ok := sess.Active()
	require.True(t, ok)
	assert.Same(t, first, active)
}

func TestActiveSnapshotIsDetached(t *testing.T) {
	s := newTestStore(t, Options{})
	sess := s.CreateSession(1)
	_, ok := sess.ActiveSnapshot()
	assert.False(t, ok)

	rec, err := s.AddFile(context.Background(), sess, strings.NewReader("v1"), "a.pdf")
	require.NoError(t, err)
	snap, ok := sess.ActiveSnapshot()
	require.True(t, ok)
	assert.NotSame(t, rec, snap)

	next, err := s.NewArtifactPath(sess, "v2_", ".pdf")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(next, []byte("v2"), 0o600))
	require.NoError(t, s.Replace(sess, rec, next, "b.pdf", types.KindDocument, types.ActionCompress))

	assert.Equal(t, "a.pdf", snap.Name, "a snapshot never sees later replacements")
	assert.Empty(t, snap.History)
	snap, _ = sess.ActiveSnapshot()
	assert.Equal(t, next, snap.Path)
}

func TestSessionsNeverShareDirs(t *testing.T) {
	s := newTestStore(t, Options{})
	a := s.CreateSession(1)
	b := s.CreateSession(2)

	ra, err := s.AddFile(context.Background(), a, strings.NewReader("a"), "a.pdf")
	require.NoError(t, err)
	rb, err := s.AddFile(context.Background(), b, strings.NewReader("b"), "a.pdf")
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir(), b.Dir())
	assert.NotEqual(t, ra.Path, rb.Path)
}

func TestAddFileRejectsUnknownKind(t *testing.T) {
	s := newTestStore(t, Options{})
	sess := s.CreateSession(1)

	_, err := s.AddFile(context.Background(), sess, strings.NewReader("x"), "archive.zip")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnsupportedKind)
	assert.Equal(t, types.ErrorKindValidation, types.KindOf(err))
	assert.Zero(t, sess.FileCount())
}

func TestAddFileSizeLimit(t *testing.T) {
	s := newTestStore(t, Options{MaxFileBytes: 4})
	sess := s.CreateSession(1)

	_, err := s.AddFile(context.Background(), sess, strings.NewReader("too large"), "a.pdf")
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindValidation, types.KindOf(err))
	entries, err := os.ReadDir(sess.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "partial upload is removed")
}

func TestEndReclaimsScratchDir(t *testing.T) {
	evicted := make(chan EvictReason, 1)
	s := newTestStore(t, Options{OnEvict: func(_ int64, r EvictReason) { evicted <- r }})
	sess := s.CreateSession(9)
	_, err := s.AddFile(context.Background(), sess, strings.NewReader("x"), "a.pdf")
	require.NoError(t, err)
	dir := sess.Dir()
	require.DirExists(t, dir)

	assert.True(t, s.End(9))
	assert.NoDirExists(t, dir)
	assert.Zero(t, s.Len())
	_, ok := s.Get(9)
	assert.False(t, ok)

	select {
	case r := <-evicted:
		assert.Equal(t, ReasonEnded, r)
	case <-time.After(time.Second):
		t.Fatal("eviction listener not called")
	}

	_, err = s.AddFile(context.Background(), sess, strings.NewReader("x"), "b.pdf")
	assert.Equal(t, types.ErrorKindResource, types.KindOf(err))
	assert.False(t, s.End(9))
}

func TestIdleSessionExpires(t *testing.T) {
	evicted := make(chan EvictReason, 1)
	s := newTestStore(t, Options{TTL: 50 * time.Millisecond, OnEvict: func(_ int64, r EvictReason) { evicted <- r }})
	sess := s.CreateSession(3)
	_, err := s.AddFile(context.Background(), sess, strings.NewReader("x"), "a.pdf")
	require.NoError(t, err)
	dir := sess.Dir()

	select {
	case r := <-evicted:
		assert.Equal(t, ReasonExpired, r)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not expire")
	}
	assert.NoDirExists(t, dir)
	_, ok := s.Peek(3)
	assert.False(t, ok)
}

func TestCapacityEvictionReclaimsDir(t *testing.T) {
	s := newTestStore(t, Options{MaxSessions: 1})
	first := s.CreateSession(1)
	_, err := s.AddFile(context.Background(), first, strings.NewReader("x"), "a.pdf")
	require.NoError(t, err)
	dir := first.Dir()

	s.CreateSession(2)
	assert.NoDirExists(t, dir)
	assert.Equal(t, 1, s.Len())
}

func writeArtifact(t *testing.T, s *Store, sess *Session, body string) string {
	t.Helper()
	p, err := s.NewArtifactPath(sess, "out_", ".pdf")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestReplaceDeleteSuperseded(t *testing.T) {
	s := newTestStore(t, Options{Retention: DeleteSuperseded})
	sess := s.CreateSession(1)
	rec, err := s.AddFile(context.Background(), sess, strings.NewReader("v0"), "a.pdf")
	require.NoError(t, err)
	original := rec.Path

	v1 := writeArtifact(t, s, sess, "v1")
	require.NoError(t, s.Replace(sess, rec, v1, "compressed_a.pdf", types.KindDocument, types.ActionCompress))
	assert.NoFileExists(t, original)

	v2 := writeArtifact(t, s, sess, "v2")
	require.NoError(t, s.Replace(sess, rec, v2, "encrypted_a.pdf", types.KindDocument, types.ActionEncrypt))
	assert.NoFileExists(t, v1)
	assert.FileExists(t, v2)

	assert.Equal(t, v2, rec.Path)
	assert.Equal(t, "encrypted_a.pdf", rec.Name)
	assert.Equal(t, []types.ActionID{types.ActionCompress, types.ActionEncrypt}, rec.History)
	assert.Empty(t, rec.Superseded)
}

func TestReplaceKeepOriginal(t *testing.T) {
	s := newTestStore(t, Options{Retention: DeleteSuperseded, KeepOriginal: true})
	sess := s.CreateSession(1)
	rec, err := s.AddFile(context.Background(), sess, strings.NewReader("v0"), "a.pdf")
	require.NoError(t, err)
	original := rec.Path

	v1 := writeArtifact(t, s, sess, "v1")
	require.NoError(t, s.Replace(sess, rec, v1, "a.pdf", types.KindDocument, types.ActionDelete))
	v2 := writeArtifact(t, s, sess, "v2")
	require.NoError(t, s.Replace(sess, rec, v2, "a.pdf", types.KindDocument, types.ActionDelete))

	assert.FileExists(t, original)
	assert.NoFileExists(t, v1)
	assert.Equal(t, []string{original}, rec.Superseded)
}

func TestReplaceRetainAll(t *testing.T) {
	s := newTestStore(t, Options{Retention: RetainAll})
	sess := s.CreateSession(1)
	rec, err := s.AddFile(context.Background(), sess, strings.NewReader("v0"), "a.pdf")
	require.NoError(t, err)
	original := rec.Path

	v1 := writeArtifact(t, s, sess, "v1")
	require.NoError(t, s.Replace(sess, rec, v1, "a.pdf", types.KindDocument, types.ActionCompress))
	v2 := writeArtifact(t, s, sess, "v2")
	require.NoError(t, s.Replace(sess, rec, v2, "a.pdf", types.KindDocument, types.ActionCompress))

	assert.FileExists(t, original)
	assert.FileExists(t, v1)
	assert.Equal(t, []string{original, v1}, rec.Superseded)
}

func TestReplaceForeignRecord(t *testing.T) {
	s := newTestStore(t, Options{})
	a := s.CreateSession(1)
	b := s.CreateSession(2)
	rec, err := s.AddFile(context.Background(), a, strings.NewReader("x"), "a.pdf")
	require.NoError(t, err)

	err = s.Replace(b, rec, "/elsewhere.pdf", "x.pdf", types.KindDocument, types.ActionCompress)
	require.Error(t, err)
	assert.NotEqual(t, "/elsewhere.pdf", rec.Path)
}

func TestReplaceAll(t *testing.T) {
	s := newTestStore(t, Options{})
	sess := s.CreateSession(1)
	a, err := s.AddFile(context.Background(), sess, strings.NewReader("a"), "a.pdf")
	require.NoError(t, err)
	b, err := s.AddFile(context.Background(), sess, strings.NewReader("b"), "b.png")
	require.NoError(t, err)

	merged := &types.FileRecord{ID: "m", Path: writeArtifact(t, s, sess, "m"), Name: "merged.pdf", Kind: types.KindDocument}
	merged.Original = merged.Path
	require.NoError(t, s.ReplaceAll(sess, merged))

	assert.Equal(t, []*types.FileRecord{merged}, sess.Files())
	assert.NoFileExists(t, a.Path)
	assert.NoFileExists(t, b.Path)
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, Options{Root: root})
	live := s.CreateSession(1)
	_, err := s.AddFile(context.Background(), live, strings.NewReader("x"), "a.pdf")
	require.NoError(t, err)

	stale := filepath.Join(root, "pdfbot_99_leftover")
	require.NoError(t, os.Mkdir(stale, 0o755))
	unrelated := filepath.Join(root, "keepme")
	require.NoError(t, os.Mkdir(unrelated, 0o755))
	old := time.Now().Add(-2 * time.Hour)
	for _, d := range []string{stale, unrelated, live.Dir()} {
		require.NoError(t, os.Chtimes(d, old, old))
	}

	n, err := s.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, unrelated)
	assert.DirExists(t, live.Dir(), "live sessions are never swept")

	n, err = Sweep(root, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNextPhotoName(t *testing.T) {
	s := newTestStore(t, Options{})
	sess := s.CreateSession(1)
	assert.Equal(t, "photo_1.jpg", sess.NextPhotoName())
	_, err := s.AddFile(context.Background(), sess, strings.NewReader("x"), sess.NextPhotoName())
	require.NoError(t, err)
	assert.Equal(t, "photo_2.jpg", sess.NextPhotoName())
}

func TestSaveAttachmentIsNotTracked(t *testing.T) {
	s := newTestStore(t, Options{})
	sess := s.CreateSession(1)
	p, err := s.SaveAttachment(context.Background(), sess, strings.NewReader("logo"), "logo.png")
	require.NoError(t, err)
	assert.Equal(t, ".png", filepath.Ext(p))
	assert.Equal(t, sess.Dir(), filepath.Dir(p))
	assert.Zero(t, sess.FileCount())
}
