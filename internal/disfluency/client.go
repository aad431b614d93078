package disfluency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnreachable is returned when the counter endpoint could not be reached
// or did not answer with a usable response.
var ErrUnreachable = errors.New("disfluency counter unreachable")

// DefaultClientTimeout bounds every client request.
const DefaultClientTimeout = 3 * time.Second

// Client talks to a /disfluency endpoint from the Ah-Counter side.
type Client struct {
	base string
	c    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		c:    &http.Client{Timeout: timeout},
	}
}

// Get returns the server-side count.
func (c *Client) Get(ctx context.Context) (int, error) {
	return c.do(ctx, http.MethodGet)
}

// Bump posts one event, then re-reads the count so the caller sees the
// value after any concurrent increments. A failed POST is never assumed
// to have been applied.
func (c *Client) Bump(ctx context.Context) (int, error) {
	if _, err := c.do(ctx, http.MethodPost); err != nil {
		return 0, err
	}
	return c.Get(ctx)
}

func (c *Client) do(ctx context.Context, method string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/disfluency", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.c.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return 0, fmt.Errorf("%w: %s %s: %s: %s", ErrUnreachable, method, c.base, resp.Status, strings.TrimSpace(string(body)))
	}

	var out CountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decode: %v", ErrUnreachable, err)
	}
	return out.Count, nil
}
