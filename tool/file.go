package tool

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// ArtifactInfo is what the bot reports about a file on disk.
type ArtifactInfo struct {
	Size     int64
	MimeType string
}

// StatArtifact reads size and MIME type (from the extension) of a regular file.
func StatArtifact(filePath string) (ArtifactInfo, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return ArtifactInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if fileInfo.IsDir() {
		return ArtifactInfo{}, fmt.Errorf("path is a directory, not a file")
	}

	fileType := mime.TypeByExtension(filepath.Ext(filePath))
	if fileType == "" {
		fileType = "application/octet-stream" // Default MIME type
	}
	return ArtifactInfo{Size: fileInfo.Size(), MimeType: fileType}, nil
}

// HumanSize formats a byte count for chat replies.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
