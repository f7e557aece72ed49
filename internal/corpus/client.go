package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrEmptyLocation is returned when no URL or path was configured for an input
var ErrEmptyLocation = errors.New("input location is empty")

// Client fetches the metadata feed and the corpus from HTTP(S) URLs or local files
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new fetch client. A zero timeout waits indefinitely.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch returns the full content found at location
func (c *Client) Fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, ErrEmptyLocation
	}

	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		path := strings.TrimPrefix(location, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return data, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, location)
	}

	log.Trace().
		Str("location", location).
		Int("bytes", len(body)).
		Msg("Fetched input")

	return body, nil
}
