package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetcher reports the transferred size of a media asset.
type Fetcher interface {
	Size(ctx context.Context, url string) (int64, error)
}

// HTTPFetcher downloads assets over HTTP and counts the body bytes;
// Content-Length is ignored.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher using client, or [http.DefaultClient]
// when client is nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Size implements [Fetcher]. Non-2xx responses are errors.
func (f *HTTPFetcher) Size(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("media: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("media: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("media: get %s: status %d", url, resp.StatusCode)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("media: read %s: %w", url, err)
	}
	return n, nil
}
