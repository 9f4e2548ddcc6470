package webclient

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBody caps how much of an upstream response is read into memory.
const maxBody = 32 << 20

// NewDefault returns an HTTP client with sane timeouts.
func NewDefault(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Send executes req and returns the status code with the fully read body.
func Send(client *http.Client, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}
