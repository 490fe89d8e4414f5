package tool

import (
	"path/filepath"
	"strings"
)

// ArtifactFileName returns "<prefix><uuid><ext>" for a new artifact inside a scratch dir.
// The random part keeps paths unique per record even when prefixes repeat.
func ArtifactFileName(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return prefix + GenerateRandomUUID() + strings.ToLower(ext)
}

// DisplayName prefixes a display name, e.g. "encrypted_" + "report.pdf".
func DisplayName(prefix, name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		name = "file"
	}
	return prefix + name
}

// ReplaceExt swaps the extension of a display name.
func ReplaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
