// Package telegram delivers replies to a Telegram chat through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"zapreply/pkg/config"
	"zapreply/pkg/logger"
	sendertypes "zapreply/pkg/sender/types"

	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
)

const senderName = "telegram"

// Client sends one SendMessage call per reply. Targets are numeric chat ids.
type Client struct {
	bot            *telego.Bot
	requestTimeout time.Duration
}

func New(cfg *config.Config) (*Client, error) {
	return newClient(cfg.Sender.Telegram.Token, time.Duration(cfg.SenderTimeoutSeconds())*time.Second)
}

func newClient(token string, requestTimeout time.Duration, opts ...telego.BotOption) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("sender.telegram.token is required")
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	return &Client{bot: bot, requestTimeout: requestTimeout}, nil
}

func (c *Client) Name() string {
	return senderName
}

func (c *Client) Send(ctx context.Context, msg sendertypes.Message) (sendertypes.Result, error) {
	if err := sendertypes.Validate(msg); err != nil {
		return sendertypes.Result{}, err
	}

	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Target), 10, 64)
	if err != nil {
		return sendertypes.Result{}, sendertypes.NewError(sendertypes.ErrorInvalidTarget, "telegram chat id must be numeric")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := senderLogger()
	startedAt := time.Now()
	log.Debug("send request started", "chat_id", chatID, "content", logger.Preview(msg.Text))

	sent, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Text))
	if err != nil {
		log.Debug("send request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)

		var apiErr *ta.Error
		if errors.As(err, &apiErr) {
			return sendertypes.Result{StatusCode: apiErr.ErrorCode, Body: apiErr.Description},
				sendertypes.StatusError(apiErr.ErrorCode)
		}
		return sendertypes.Result{}, sendertypes.NewError(sendertypes.ErrorTransport, err.Error())
	}

	log.Debug("send request completed",
		"duration_ms", time.Since(startedAt).Milliseconds(),
		"message_id", sent.MessageID,
	)
	return sendertypes.Result{
		Delivered:  true,
		StatusCode: http.StatusOK,
		Body:       strconv.Itoa(sent.MessageID),
	}, nil
}

func senderLogger() *slog.Logger {
	return slog.Default().With("component", "sender.telegram")
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}
