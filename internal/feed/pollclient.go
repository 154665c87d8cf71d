package feed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// PollClient fetches the alert history endpoint. The endpoint returns the
// same overlapping window on every call; deduplication happens downstream.
type PollClient struct {
	httpClient *resty.Client
	log        *zap.SugaredLogger
}

// NewPollClient creates a history client with the given request timeout.
func NewPollClient(pollURL string, timeout time.Duration, log *zap.SugaredLogger) *PollClient {
	client := resty.New().
		SetBaseURL(pollURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &PollClient{
		httpClient: client,
		log:        log,
	}
}

// FetchHistory performs one poll and returns the raw records. An empty body
// is a valid quiet-period response, not an error.
func (c *PollClient) FetchHistory() ([]HistoryRecord, error) {
	resp, err := c.httpClient.R().Get("")
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %d from history endpoint", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, nil
	}

	var records []HistoryRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse history response: %w", err)
	}

	c.log.Debugw("Fetched alert history", "recordCount", len(records))

	return records, nil
}
