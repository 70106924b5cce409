// Package push delivers notifications through an FCM-style HTTP gateway.
package push

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/johanmaxwell/server-toilet/internal/config"
)

// Sender sends one notification to one recipient token. A failed send is
// reported, never retried by callers.
type Sender interface {
	Send(ctx context.Context, token, title, body string) error
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type sendRequest struct {
	Token        string       `json:"token"`
	Notification notification `json:"notification"`
}

type sendResponse struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// Client is the resty-backed push gateway client.
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewClient creates a push client.
func NewClient(cfg *config.PushConfig, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Client{
		httpClient: client,
		logger:     logger,
	}
}

// Send delivers one notification.
func (c *Client) Send(ctx context.Context, token, title, body string) error {
	request := sendRequest{
		Token: token,
		Notification: notification{
			Title: title,
			Body:  body,
		},
	}

	var response sendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/v1/messages:send")

	if err != nil {
		return fmt.Errorf("failed to call push gateway: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("push gateway error: %s (status: %d)", resp.Status(), resp.StatusCode())
	}

	c.logger.Debug("Notification sent",
		zap.String("message_name", response.Name),
	)

	return nil
}
