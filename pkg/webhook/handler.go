// Package webhook receives inbound message events, filters them, and replies through the
// configured sender. Every accepted event is acknowledged with 2xx so the provider never retries.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"zapreply/pkg/config"
	"zapreply/pkg/guard"
	"zapreply/pkg/inbound"
	"zapreply/pkg/logger"
	"zapreply/pkg/metrics"
	"zapreply/pkg/reply"
	"zapreply/pkg/requestid"
	"zapreply/pkg/sender"
	sendertypes "zapreply/pkg/sender/types"
)

// MaxRequestBodySize bounds the payload read; larger bodies are handled as empty payloads.
const MaxRequestBodySize = 1 << 20

const onlineMessage = "Webhook online. Use POST."

// Resolver chooses the reply text for a proceed-classified event.
type Resolver interface {
	Resolve(ctx context.Context, event inbound.Event) reply.OutboundReply
}

type Options struct {
	Config *config.Config
	// Resolver defaults to an echo-only reply.Resolver.
	Resolver Resolver
	// Sender may be nil only when the configuration is incomplete.
	Sender sender.Sender
	Log    *slog.Logger
}

type Handler struct {
	normalize inbound.Options
	policy    guard.Policy
	missing   []string
	resolver  Resolver
	sender    sender.Sender
	log       *slog.Logger
}

type ack struct {
	OK          bool     `json:"ok"`
	Message     string   `json:"message,omitempty"`
	Ignored     bool     `json:"ignored,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Disposition string   `json:"disposition,omitempty"`
	Sent        *bool    `json:"sent,omitempty"`
	Target      string   `json:"target,omitempty"`
	ReplySource string   `json:"reply_source,omitempty"`
	SendStatus  int      `json:"send_status,omitempty"`
	SendError   string   `json:"send_error,omitempty"`
	Error       string   `json:"error,omitempty"`
	Missing     []string `json:"missing,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`
}

func New(opts Options) *Handler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	cfg := opts.Config
	h := &Handler{
		missing:  cfg.MissingCredentials(),
		resolver: opts.Resolver,
		sender:   opts.Sender,
		log:      log.With("component", "webhook.handler"),
	}
	if cfg != nil {
		h.normalize = inbound.Options{DigitsOnly: cfg.Webhook.DigitsOnly}
		h.policy = guard.Policy{EchoMarker: cfg.Reply.EchoMarker, AllowGroups: cfg.Reply.AllowGroups}
	} else {
		h.policy = guard.DefaultPolicy()
	}
	if len(h.missing) == 0 && h.sender == nil {
		h.missing = []string{"sender"}
	}
	if h.resolver == nil {
		h.resolver = reply.NewResolver(reply.Options{Log: log})
	}

	return h
}

// Configured reports whether POST requests will be processed.
func (h *Handler) Configured() bool {
	return len(h.missing) == 0
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := requestid.FromContext(r.Context())
	if requestID == "" {
		requestID = requestid.New()
		w.Header().Set(requestid.Header, requestID)
	}
	log := h.log.With("request_id", requestID)

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error("Webhook handler panic",
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
			metrics.ObserveRejected("panic")
			h.writeJSON(w, log, http.StatusInternalServerError, ack{Error: "internal error", RequestID: requestID})
		}
	}()

	switch r.Method {
	case http.MethodGet:
		h.writeJSON(w, log, http.StatusOK, ack{OK: true, Message: onlineMessage, RequestID: requestID})
		return
	case http.MethodPost:
	default:
		log.Warn("Method not allowed for webhook", "method", r.Method)
		metrics.ObserveRejected("method_not_allowed")
		w.Header().Set("Allow", "GET, POST")
		h.writeJSON(w, log, http.StatusMethodNotAllowed, ack{Error: "method not allowed", RequestID: requestID})
		return
	}

	if !h.Configured() {
		log.Error("Webhook configuration incomplete", "missing", h.missing)
		metrics.ObserveRejected("missing_config")
		h.writeJSON(w, log, http.StatusInternalServerError, ack{
			Error:     "missing required configuration",
			Missing:   h.missing,
			RequestID: requestID,
		})
		return
	}

	raw := h.readBody(w, r, log)
	event := inbound.Normalize(raw, h.normalize)
	disposition := guard.Classify(event, h.policy)
	metrics.ObserveDisposition(string(disposition))

	log = log.With("target", event.ChatTarget, "disposition", string(disposition))
	log.Debug("Received webhook event",
		"event_type", event.EventType,
		"raw_keys", event.RawKeys,
		"from_me", event.Flags.FromMe,
		"status_event", event.Flags.IsStatusEvent,
		"group", event.Flags.IsGroup,
		"content", logger.Preview(event.Text),
	)

	if disposition.Ignored() {
		log.Info("Ignoring webhook event", "reason", disposition.Reason())
		h.writeJSON(w, log, http.StatusOK, ack{
			OK:          true,
			Ignored:     true,
			Reason:      disposition.Reason(),
			Disposition: string(disposition),
			RequestID:   requestID,
		})
		return
	}

	// The provider may hang up once it has delivered; the reply must still go out.
	ctx := context.WithoutCancel(r.Context())

	resolvedAt := time.Now()
	out := h.resolver.Resolve(ctx, event)
	metrics.ObserveReply(string(out.Source), time.Since(resolvedAt))

	result, err := h.send(ctx, log, out)
	response := ack{
		OK:          true,
		Sent:        &result.Delivered,
		Target:      out.ChatTarget,
		ReplySource: string(out.Source),
		SendStatus:  result.StatusCode,
		RequestID:   requestID,
	}
	if err != nil {
		response.SendError = sendertypes.CategoryFromError(err)
	}

	h.writeJSON(w, log, http.StatusOK, response)
}

func (h *Handler) send(ctx context.Context, log *slog.Logger, out reply.OutboundReply) (sendertypes.Result, error) {
	backend := h.sender.Name()
	startedAt := time.Now()

	result, err := h.sender.Send(ctx, sendertypes.Message{Target: out.ChatTarget, Text: out.Text})
	elapsed := time.Since(startedAt)
	if err != nil {
		category := sendertypes.CategoryFromError(err)
		metrics.ObserveSend(backend, category, elapsed)
		log.Error("Failed to send reply",
			"backend", backend,
			"reply_source", string(out.Source),
			"status", result.StatusCode,
			"body", logger.Preview(result.Body),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return result, err
	}

	metrics.ObserveSend(backend, "delivered", elapsed)
	log.Info("Sent reply",
		"backend", backend,
		"reply_source", string(out.Source),
		"status", result.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
		"content", logger.Preview(out.Text),
	)
	return result, nil
}

// readBody never fails: read errors and oversized bodies yield an empty payload.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, log *slog.Logger) []byte {
	if r.Body == nil {
		return nil
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err != nil {
		log.Warn("Failed to read webhook body, treating as empty payload", "error", err)
		return nil
	}

	return raw
}

func (h *Handler) writeJSON(w http.ResponseWriter, log *slog.Logger, statusCode int, payload ack) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn("Failed to write webhook response", "error", err)
	}
}
