package store

import (
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/moyoez/pdfbot-go/types"
)

// Session is the per-user dialogue state and file batch.
// All fields are guarded by mu; use the accessors.
type Session struct {
	mu sync.Mutex

	userID    int64
	dir       string
	files     []*types.FileRecord
	token     *oauth2.Token
	batch     types.BatchActionID
	watermark types.WatermarkMode
	stage     types.Stage
	touched   time.Time
	ended     bool
}

func newSession(userID int64) *Session {
	return &Session{
		userID:  userID,
		stage:   types.StageUpload,
		touched: time.Now(),
	}
}

func (s *Session) UserID() int64 {
	return s.userID
}

// Dir returns the scratch directory, empty until the first upload.
func (s *Session) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

func (s *Session) Stage() types.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) SetStage(stage types.Stage) {
	s.mu.Lock()
	s.stage = stage
	s.touched = time.Now()
	s.mu.Unlock()
}

// Files returns the records in upload order. The slice is a copy; the records are shared.
func (s *Session) Files() []*types.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.FileRecord(nil), s.files...)
}

func (s *Session) FileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Active is the record single-file actions apply to: the first upload.
func (s *Session) Active() (*types.FileRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.files) == 0 {
		return nil, false
	}
	return s.files[0], true
}

// ActiveSnapshot is a copy of the active record, safe to read while turns replace it.
func (s *Session) ActiveSnapshot() (*types.FileRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.files) == 0 {
		return nil, false
	}
	return s.files[0].Clone(), true
}

// Snapshot returns deep copies of the records for reporting.
func (s *Session) Snapshot() []*types.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.FileRecord, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f.Clone())
	}
	return out
}

func (s *Session) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) SetToken(tok *oauth2.Token) {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}

func (s *Session) PendingBatch() types.BatchActionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

func (s *Session) SetPendingBatch(b types.BatchActionID) {
	s.mu.Lock()
	s.batch = b
	s.mu.Unlock()
}

func (s *Session) WatermarkMode() types.WatermarkMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

func (s *Session) SetWatermarkMode(m types.WatermarkMode) {
	s.mu.Lock()
	s.watermark = m
	s.mu.Unlock()
}

// NextPhotoName returns photo_<n>.jpg where n is the position the photo will take.
func (s *Session) NextPhotoName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return photoName(len(s.files) + 1)
}

// LastTouched is the time of the last stage change.
func (s *Session) LastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func (s *Session) owns(rec *types.FileRecord) bool {
	for _, f := range s.files {
		if f == rec {
			return true
		}
	}
	return false
}
