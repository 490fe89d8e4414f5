// Package docops wraps the PDF library behind the operations the bot needs.
package docops

import "context"

// Library performs whole-file PDF operations. Pages are 1-based.
// Every call writes a new file at out and never touches in.
type Library interface {
	PageCount(ctx context.Context, path string) (int, error)
	RemovePages(ctx context.Context, in, out string, pages []int) error
	// Collect writes the given pages in the given order.
	Collect(ctx context.Context, in, out string, pages []int) error
	// Insert places every page of insert after page `after` of in (0 = front).
	Insert(ctx context.Context, in, insert, out string, after int) error
	Merge(ctx context.Context, inputs []string, out string) error
	Encrypt(ctx context.Context, in, out, password string) error
	// Decrypt fails with types.ErrWrongPassword when password does not open in.
	Decrypt(ctx context.Context, in, out, password string) error
	Optimize(ctx context.Context, in, out string) error
	WatermarkText(ctx context.Context, in, out, text string) error
	WatermarkImage(ctx context.Context, in, out, image string) error
	// ImagesToPDF writes one page per image, in order.
	ImagesToPDF(ctx context.Context, images []string, out string) error
}
