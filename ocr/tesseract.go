package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/moyoez/pdfbot-go/types"
)

// Tesseract runs the tesseract CLI.
type Tesseract struct {
	Path     string
	Language string
}

// NewTesseract resolves the binary. A missing binary is reported on first use, not here.
func NewTesseract(path, language string) *Tesseract {
	if path == "" {
		path = "tesseract"
	}
	if resolved, err := exec.LookPath(path); err == nil {
		path = resolved
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{Path: path, Language: language}
}

// Available reports whether the binary can be executed.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.Path)
	return err == nil
}

func (t *Tesseract) PagePDF(ctx context.Context, imagePath, outPath string) error {
	// tesseract appends .pdf to the output base
	base := strings.TrimSuffix(outPath, ".pdf")
	if _, err := t.exec(ctx, imagePath, base, "pdf"); err != nil {
		return err
	}
	if base+".pdf" != outPath {
		return os.Rename(base+".pdf", outPath)
	}
	return nil
}

func (t *Tesseract) Text(ctx context.Context, imagePath string) (string, error) {
	out, err := t.exec(ctx, imagePath, "stdout")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (t *Tesseract) exec(ctx context.Context, imagePath, output string, configs ...string) (string, error) {
	if !t.Available() {
		return "", types.ExternalServiceError("tesseract is not installed", types.ErrEngineMissing)
	}
	args := append([]string{imagePath, output, "-l", t.Language}, configs...)
	cmd := exec.CommandContext(ctx, t.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", types.ExternalServiceError("OCR timed out", ctx.Err())
		}
		return "", types.ExternalServiceError(fmt.Sprintf("tesseract failed: %s", strings.TrimSpace(stderr.String())), err)
	}
	return stdout.String(), nil
}
