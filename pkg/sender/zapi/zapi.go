// Package zapi sends WhatsApp text messages through a Z-API instance.
package zapi

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
	"strings"
	"time"

	"zapreply/pkg/config"
	"zapreply/pkg/logger"
	sendertypes "zapreply/pkg/sender/types"
)

const (
	senderName = "zapi"

	clientTokenHeader = "Client-Token"
	maxResponseBytes  = 64 << 10
)

// Client posts replies to the instance send-text endpoint. One attempt per call.
type Client struct {
	httpClient     *http.Client
	endpoint       string
	clientToken    string
	requestTimeout time.Duration
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func New(cfg *config.Config) (*Client, error) {
	zcfg := cfg.Sender.ZAPI
	instanceID := strings.TrimSpace(zcfg.InstanceID)
	instanceToken := strings.TrimSpace(zcfg.InstanceToken)
	clientToken := strings.TrimSpace(zcfg.ClientToken)
	switch {
	case instanceID == "":
		return nil, errors.New("sender.zapi.instance_id is required")
	case instanceToken == "":
		return nil, errors.New("sender.zapi.instance_token is required")
	case clientToken == "":
		return nil, errors.New("sender.zapi.client_token is required")
	}

	endpoint, err := sendTextURL(zcfg.BaseURL, instanceID, instanceToken)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient:     &http.Client{},
		endpoint:       endpoint,
		clientToken:    clientToken,
		requestTimeout: time.Duration(cfg.SenderTimeoutSeconds()) * time.Second,
	}, nil
}

func (c *Client) Name() string {
	return senderName
}

// Send performs the POST and reports the backend answer. A non-2xx answer returns both the
// populated Result and a status_error.
func (c *Client) Send(ctx context.Context, msg sendertypes.Message) (sendertypes.Result, error) {
	if err := sendertypes.Validate(msg); err != nil {
		return sendertypes.Result{}, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := senderLogger()
	startedAt := time.Now()

	payload, err := json.Marshal(sendTextRequest{Phone: msg.Target, Message: msg.Text})
	if err != nil {
		return sendertypes.Result{}, sendertypes.NewError(sendertypes.ErrorEncode, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return sendertypes.Result{}, sendertypes.NewError(sendertypes.ErrorEncode, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(clientTokenHeader, c.clientToken)

	log.Debug("send request started", "target", msg.Target, "content", logger.Preview(msg.Text))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug("send request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return sendertypes.Result{}, sendertypes.NewError(sendertypes.ErrorTransport, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.Debug("send response read failed", "status", resp.StatusCode, "error", err)
	}

	result := sendertypes.Result{
		Delivered:  resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
	log.Debug("send request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"status", result.StatusCode,
		"body", logger.Preview(result.Body),
	)
	if !result.Delivered {
		return result, sendertypes.StatusError(result.StatusCode)
	}

	return result, nil
}

func senderLogger() *slog.Logger {
	return slog.Default().With("component", "sender.zapi")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func sendTextURL(baseURL string, instanceID string, instanceToken string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "https://api.z-api.io"
	}

	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("sender.zapi.base_url is invalid: %q", baseURL)
	}

	return fmt.Sprintf("%s/instances/%s/token/%s/send-text",
		base, url.PathEscape(instanceID), url.PathEscape(instanceToken)), nil
}
