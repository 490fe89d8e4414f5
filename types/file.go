package types

import (
	"path/filepath"
	"strings"
)

// FileKind decides which actions are legal for a record.
type FileKind string

const (
	KindDocument FileKind = "document"
	KindImage    FileKind = "image"
	KindText     FileKind = "text"
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
}

// KindFromName classifies a file by its declared extension.
func KindFromName(name string) (FileKind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case ext == ".pdf":
		return KindDocument, true
	case ext == ".txt":
		return KindText, true
	}
	if _, ok := imageExtensions[ext]; ok {
		return KindImage, true
	}
	return "", false
}

// FileRecord is one tracked file. Path always points at the live artifact.
type FileRecord struct {
	ID         string     `json:"id"`
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Kind       FileKind   `json:"kind"`
	Original   string     `json:"original"`             // path of the uploaded artifact
	History    []ActionID `json:"history,omitempty"`    // applied actions, oldest first
	Superseded []string   `json:"superseded,omitempty"` // retained previous artifacts
}

// Clone returns a copy that shares no slices with r.
func (r *FileRecord) Clone() *FileRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.History = append([]ActionID(nil), r.History...)
	c.Superseded = append([]string(nil), r.Superseded...)
	return &c
}
