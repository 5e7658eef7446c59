// Package meta is a minimal Graph API client for sending Instagram direct
// messages on behalf of the configured business account.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"instagate/internal/log"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v24.0"

	// maxErrorBodyBytes caps how much of an error response is retained.
	maxErrorBodyBytes = 4 * 1024
)

// Config holds Graph API client settings.
type Config struct {
	AccessToken string
	BusinessID  string
	APIVersion  string
	// BaseURL overrides the Graph API host, used by tests.
	BaseURL string
	Timeout time.Duration
}

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api: status %d: %s", e.StatusCode, e.Body)
}

// Client calls the Graph API send-message endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	businessID  string
	apiVersion  string
	logger      *slog.Logger
}

func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		businessID:  cfg.BusinessID,
		apiVersion:  apiVersion,
		logger:      log.WithComponent("meta"),
	}
}

type sendMessageRequest struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// SendText sends a text message to recipientID. A non-2xx response is returned
// as *APIError. The access token travels in the query string; transport errors
// are stripped of the request URL so the token never appears in error text,
// logs, or persisted reply records.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	var body sendMessageRequest
	body.Recipient.ID = recipientID
	body.Message.Text = text

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages?%s",
		c.baseURL, c.apiVersion, c.businessID,
		url.Values{"access_token": {c.accessToken}}.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the full request URL, access token included;
		// the error text ends up logged and persisted, so strip the URL.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Error("send message failed",
			"recipient_id", recipientID,
			"status", resp.StatusCode,
		)
		return &APIError{StatusCode: resp.StatusCode, Body: string(detail)}
	}

	c.logger.Info("message sent", "recipient_id", recipientID)
	return nil
}
