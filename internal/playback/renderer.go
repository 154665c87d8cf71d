package playback

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// rendererTimeout bounds each device command.
const rendererTimeout = 10 * time.Second

// playRequest is the body of a renderer play command.
type playRequest struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

// volumeRequest is the body of a renderer volume command.
type volumeRequest struct {
	Level int `json:"level"`
}

// RendererClient drives one network media renderer over its HTTP control
// endpoint. It satisfies Playable.
type RendererClient struct {
	httpClient *resty.Client
	log        *zap.SugaredLogger
}

// NewRendererClient creates a client for the renderer at address.
func NewRendererClient(address string, log *zap.SugaredLogger) *RendererClient {
	client := resty.New().
		SetBaseURL(fmt.Sprintf("http://%s", address)).
		SetTimeout(rendererTimeout).
		SetHeader("Content-Type", "application/json")

	return &RendererClient{
		httpClient: client,
		log:        log,
	}
}

// Play starts playback of mediaURL on the renderer. Each command carries a
// fresh session ID so retried commands are distinguishable in device logs.
func (c *RendererClient) Play(ctx context.Context, mediaURL string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(playRequest{URL: mediaURL, SessionID: uuid.NewString()}).
		Post("/play")

	if err != nil {
		return fmt.Errorf("play command failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("play command rejected with HTTP %d", resp.StatusCode())
	}

	return nil
}

// SetVolume sets the renderer volume to level percent.
func (c *RendererClient) SetVolume(ctx context.Context, level int) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(volumeRequest{Level: level}).
		Post("/volume")

	if err != nil {
		return fmt.Errorf("volume command failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("volume command rejected with HTTP %d", resp.StatusCode())
	}

	return nil
}
