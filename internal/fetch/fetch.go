package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
)

// StatusError is returned when a remote source answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Open returns the body of source. http and https URLs are fetched with a
// GET request; file URLs and plain paths are read from disk. The caller
// closes the returned reader.
func Open(ctx context.Context, client *http.Client, source string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}

	u, err := url.Parse(source)
	if err != nil {
		return os.Open(source)
	}

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, &StatusError{URL: source, StatusCode: resp.StatusCode}
		}
		return resp.Body, nil
	case "file":
		return os.Open(u.Path)
	default:
		return os.Open(source)
	}
}
