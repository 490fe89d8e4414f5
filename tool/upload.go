package tool

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned when a copy exceeds its byte limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// CopyWithContext copies from src to dst while respecting context cancellation.
// A limit <= 0 disables the size check.
func CopyWithContext(ctx context.Context, dst io.Writer, src io.Reader, limit int64) (int64, error) {
	buf := make([]byte, 2*1024*1024) // 2MB buffer
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			if limit > 0 && written+int64(nr) > limit {
				return written, ErrTooLarge
			}
			nw, writeErr := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if writeErr == nil {
					writeErr = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
