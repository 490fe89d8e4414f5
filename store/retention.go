package store

import "github.com/moyoez/pdfbot-go/types"

// RetentionPolicy decides what happens to an artifact once a newer one replaces it.
type RetentionPolicy int

const (
	// DeleteSuperseded removes the previous artifact right away.
	// The original upload survives when Options.KeepOriginal is set.
	DeleteSuperseded RetentionPolicy = iota
	// RetainAll keeps every previous artifact and lists it in FileRecord.Superseded.
	RetainAll
)

// ParseRetention maps the config value onto a policy. Anything but "retain" deletes.
func ParseRetention(s string) RetentionPolicy {
	if s == "retain" {
		return RetainAll
	}
	return DeleteSuperseded
}

func (p RetentionPolicy) String() string {
	if p == RetainAll {
		return "retain"
	}
	return "delete"
}

// supersedeFrom records old on rec and returns the paths to delete.
// original is the upload old descends from. Caller holds the session lock.
func (s *Store) supersedeFrom(rec *types.FileRecord, old, original string) []string {
	if old == "" || old == rec.Path {
		return nil
	}
	keep := s.opts.Retention == RetainAll || (s.opts.KeepOriginal && old == original)
	if keep {
		rec.Superseded = append(rec.Superseded, old)
		return nil
	}
	return []string{old}
}
