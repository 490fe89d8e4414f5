package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/moyoez/pdfbot-go/tool"
	"github.com/moyoez/pdfbot-go/types"
)

// Fetcher downloads an attachment the transport serves by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher fetches with the shared HTTP client.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	client := f.Client
	if client == nil {
		client = tool.GetHttpClient()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.ValidationError("invalid attachment URL", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, types.ExternalServiceError("cannot download attachment", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, types.ExternalServiceError(fmt.Sprintf("attachment download returned status %d", resp.StatusCode), nil)
	}
	return resp.Body, nil
}

// attachment returns the event's file body, downloading it when only a URL was given.
func (e *Engine) attachment(ctx context.Context, ev *types.Event) (io.ReadCloser, error) {
	if ev.File != nil {
		return io.NopCloser(ev.File), nil
	}
	if ev.FileURL == "" {
		return nil, types.ValidationError("the message carries no file", nil)
	}
	return e.fetch.Fetch(ctx, ev.FileURL)
}
