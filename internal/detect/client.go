// Package detect forwards call audio to the external analysis service and
// carries its verdicts back into the signaling plane. The model itself is a
// collaborator reached over HTTP; nothing here computes a verdict.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/frostbyte/callguard/internal/domain"
)

type Client struct {
	url string
	hc  *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url: url,
		hc:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Analyze submits one finite audio chunk and returns the service verdict.
func (c *Client) Analyze(ctx context.Context, chunk []byte) (domain.Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(chunk))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("analyze request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Verdict{}, fmt.Errorf("analyze request: unexpected status %d", resp.StatusCode)
	}

	var v domain.Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return domain.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	return v, nil
}
