package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

const (
	// DirPrefix starts every scratch directory name: pdfbot_<userID>_<random>.
	DirPrefix = "pdfbot_"

	DefaultMaxSessions = 1024
	DefaultTTL         = 30 * time.Minute
)

// EvictReason tells an eviction listener why a session went away.
type EvictReason string

const (
	ReasonEnded   EvictReason = "ended"
	ReasonExpired EvictReason = "expired"
)

type Options struct {
	Root         string
	MaxSessions  int
	TTL          time.Duration
	Retention    RetentionPolicy
	KeepOriginal bool
	MaxFileBytes int64 // 0 means unlimited

	// OnEvict runs in its own goroutine after the scratch dir is gone.
	OnEvict func(userID int64, reason EvictReason)
}

// Store owns every live session, keyed by user id.
// A session leaving the store for any reason takes its scratch directory with it.
type Store struct {
	opts     Options
	sessions *expirable.LRU[int64, *Session]
	createMu sync.Mutex
}

func New(opts Options) (*Store, error) {
	if opts.Root == "" {
		opts.Root = filepath.Join(os.TempDir(), "pdfbot")
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, types.ResourceError("cannot create scratch root", err)
	}

	s := &Store{opts: opts}
	s.sessions = expirable.NewLRU[int64, *Session](opts.MaxSessions, s.evicted, opts.TTL)
	return s, nil
}

// evicted runs under the LRU lock and must not call back into s.sessions.
func (s *Store) evicted(userID int64, sess *Session) {
	sess.mu.Lock()
	dir := sess.dir
	reason := ReasonExpired
	if sess.ended {
		reason = ReasonEnded
	}
	sess.ended = true
	sess.dir = ""
	sess.files = nil
	sess.mu.Unlock()

	if dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			tool.DefaultLogger.Warnf("Failed to reclaim scratch dir %s: %v", dir, err)
		} else {
			tool.DefaultLogger.Debugf("Reclaimed scratch dir %s (user %d, %s)", dir, userID, reason)
		}
	}
	if s.opts.OnEvict != nil {
		go s.opts.OnEvict(userID, reason)
	}
}

// Root is the directory holding all scratch dirs.
func (s *Store) Root() string {
	return s.opts.Root
}

// CreateSession returns the open session for userID, creating one when absent.
func (s *Store) CreateSession(userID int64) *Session {
	s.createMu.Lock()
	defer s.createMu.Unlock()
	if sess, ok := s.sessions.Get(userID); ok {
		s.sessions.Add(userID, sess)
		return sess
	}
	sess := newSession(userID)
	s.sessions.Add(userID, sess)
	return sess
}

// Get returns the session and refreshes its idle deadline.
func (s *Store) Get(userID int64) (*Session, bool) {
	s.createMu.Lock()
	defer s.createMu.Unlock()
	sess, ok := s.sessions.Get(userID)
	if ok {
		s.sessions.Add(userID, sess)
	}
	return sess, ok
}

// Peek returns the session without refreshing it.
func (s *Store) Peek(userID int64) (*Session, bool) {
	return s.sessions.Peek(userID)
}

// End removes the session and reclaims its scratch directory.
func (s *Store) End(userID int64) bool {
	sess, ok := s.sessions.Peek(userID)
	if !ok {
		return false
	}
	sess.mu.Lock()
	sess.ended = true
	sess.mu.Unlock()
	return s.sessions.Remove(userID)
}

func (s *Store) Len() int {
	return s.sessions.Len()
}

// Close ends every session.
func (s *Store) Close() {
	for _, id := range s.sessions.Keys() {
		s.End(id)
	}
}

func (s *Store) ensureDir(sess *Session) (string, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended {
		return "", types.ResourceError("session already ended", types.ErrNoSession)
	}
	if sess.dir != "" {
		return sess.dir, nil
	}
	dir, err := os.MkdirTemp(s.opts.Root, fmt.Sprintf("%s%d_", DirPrefix, sess.userID))
	if err != nil {
		return "", types.ResourceError("cannot create scratch directory", err)
	}
	sess.dir = dir
	return dir, nil
}

// AddFile persists src inside the session's scratch directory and appends a record.
// The kind comes from the declared extension; unknown extensions are rejected.
func (s *Store) AddFile(ctx context.Context, sess *Session, src io.Reader, declaredName string) (*types.FileRecord, error) {
	name := filepath.Base(strings.TrimSpace(declaredName))
	kind, ok := types.KindFromName(name)
	if !ok {
		return nil, types.ValidationError(fmt.Sprintf("%q is not a PDF, image or text file", name), types.ErrUnsupportedKind)
	}

	path, err := s.NewArtifactPath(sess, "", filepath.Ext(name))
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, types.ResourceError("cannot write upload", err)
	}
	_, copyErr := tool.CopyWithContext(ctx, f, src, s.opts.MaxFileBytes)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		if errors.Is(copyErr, tool.ErrTooLarge) {
			return nil, types.ValidationError("file is too large", copyErr)
		}
		if ctx.Err() != nil {
			return nil, types.ExternalServiceError("upload interrupted", copyErr)
		}
		return nil, types.ResourceError("cannot write upload", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return nil, types.ResourceError("cannot write upload", closeErr)
	}

	rec := &types.FileRecord{
		ID:       tool.GenerateRandomUUID(),
		Path:     path,
		Name:     name,
		Kind:     kind,
		Original: path,
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.ended {
		_ = os.Remove(path)
		return nil, types.ResourceError("session already ended", types.ErrNoSession)
	}
	sess.files = append(sess.files, rec)
	return rec, nil
}

// SaveAttachment persists src in the scratch directory without tracking it as a record.
// Used for inputs to an action, such as the pages to insert or a watermark image.
func (s *Store) SaveAttachment(ctx context.Context, sess *Session, src io.Reader, declaredName string) (string, error) {
	path, err := s.NewArtifactPath(sess, "attachment_", filepath.Ext(declaredName))
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", types.ResourceError("cannot write attachment", err)
	}
	_, copyErr := tool.CopyWithContext(ctx, f, src, s.opts.MaxFileBytes)
	if closeErr := f.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		if errors.Is(copyErr, tool.ErrTooLarge) {
			return "", types.ValidationError("file is too large", copyErr)
		}
		return "", types.ResourceError("cannot write attachment", copyErr)
	}
	return path, nil
}

// NewArtifactPath returns a fresh path inside the scratch directory.
func (s *Store) NewArtifactPath(sess *Session, prefix, ext string) (string, error) {
	dir, err := s.ensureDir(sess)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, tool.ArtifactFileName(prefix, ext)), nil
}

// Replace points rec at a new artifact. The previous artifact is handled by the retention policy.
func (s *Store) Replace(sess *Session, rec *types.FileRecord, newPath, newName string, newKind types.FileKind, action types.ActionID) error {
	sess.mu.Lock()
	if !sess.owns(rec) {
		sess.mu.Unlock()
		return types.ResourceError("record does not belong to this session", types.ErrNoFiles)
	}
	old := rec.Path
	rec.Path = newPath
	rec.Name = newName
	rec.Kind = newKind
	if action != "" {
		rec.History = append(rec.History, action)
	}
	remove := s.supersedeFrom(rec, old, rec.Original)
	sess.mu.Unlock()

	s.removeArtifacts(remove)
	return nil
}

// ReplaceAll swaps the whole file list for a single record (batch merge).
func (s *Store) ReplaceAll(sess *Session, rec *types.FileRecord) error {
	sess.mu.Lock()
	prev := sess.files
	sess.files = []*types.FileRecord{rec}
	var remove []string
	for _, f := range prev {
		rec.Superseded = append(rec.Superseded, f.Superseded...)
		remove = append(remove, s.supersedeFrom(rec, f.Path, f.Original)...)
	}
	sess.mu.Unlock()

	s.removeArtifacts(remove)
	return nil
}

func (s *Store) removeArtifacts(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			tool.DefaultLogger.Warnf("Failed to remove superseded artifact %s: %v", p, err)
		}
	}
}

// Sweep removes scratch dirs under the store root older than olderThan that no live session owns.
func (s *Store) Sweep(olderThan time.Duration) (int, error) {
	live := make(map[string]struct{})
	for _, sess := range s.sessions.Values() {
		if dir := sess.Dir(); dir != "" {
			live[filepath.Clean(dir)] = struct{}{}
		}
	}
	return sweep(s.opts.Root, olderThan, func(dir string) bool {
		_, ok := live[filepath.Clean(dir)]
		return ok
	})
}

// Sweep removes leftover scratch dirs under root, e.g. after a crash. Used by the sweep command.
func Sweep(root string, olderThan time.Duration) (int, error) {
	return sweep(root, olderThan, nil)
}

func sweep(root string, olderThan time.Duration, keep func(string) bool) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read scratch root: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), DirPrefix) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if keep != nil && keep(dir) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			tool.DefaultLogger.Warnf("Failed to sweep %s: %v", dir, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func photoName(n int) string {
	return fmt.Sprintf("photo_%d.jpg", n)
}
