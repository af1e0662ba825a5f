package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is the validation endpoint boundary. Check reports either the
// console's structured decision or a transport-level error; it never
// retries on its own.
type Client interface {
	Check(ctx context.Context, code string) (*Result, error)
}

// HTTPClient submits codes to the event console's check endpoint. Both
// admissions and rejections come back as structured 200 responses; any
// other status is a transport failure.
type HTTPClient struct {
	Endpoint string
	EventID  string
	client   *http.Client
}

func NewHTTPClient(endpoint, eventID string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		Endpoint: endpoint,
		EventID:  eventID,
		client:   &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	Code    string `json:"code"`
	EventID string `json:"event_id,omitempty"`
}

func (c *HTTPClient) Check(ctx context.Context, code string) (*Result, error) {
	body, err := json.Marshal(checkRequest{Code: code, EventID: c.EventID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validation endpoint returned %d", resp.StatusCode)
	}

	result := &Result{}
	if err = json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("failed to parse validation response: %w", err)
	}
	if !result.Status.IsValid() {
		return nil, fmt.Errorf("validation response missing status")
	}
	return result, nil
}
