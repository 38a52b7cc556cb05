package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sendertypes "zapreply/pkg/sender/types"

	"github.com/mymmrac/telego"
)

const testToken = "123456:ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghi"

func TestNewRequiresToken(t *testing.T) {
	if _, err := newClient("  ", time.Second); err == nil {
		t.Fatal("expected error when token is missing")
	}
}

func TestSendRejectsNonNumericTarget(t *testing.T) {
	client, err := newClient(testToken, time.Second)
	if err != nil {
		t.Fatalf("newClient error: %v", err)
	}

	_, err = client.Send(context.Background(), sendertypes.Message{Target: "5511abc", Text: "oi"})
	if category := sendertypes.CategoryFromError(err); category != sendertypes.ErrorInvalidTarget {
		t.Fatalf("category = %q, want %q", category, sendertypes.ErrorInvalidTarget)
	}
}

func TestSendMessage(t *testing.T) {
	var (
		mu      sync.Mutex
		paths   []string
		payload map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
	}))
	t.Cleanup(server.Close)

	client, err := newClient(testToken, time.Second, telego.WithAPIServer(server.URL))
	if err != nil {
		t.Fatalf("newClient error: %v", err)
	}

	result, err := client.Send(context.Background(), sendertypes.Message{Target: "42", Text: "Olá!"})
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if !result.Delivered || result.StatusCode != http.StatusOK || result.Body != "7" {
		t.Fatalf("result = %+v, want delivered message 7", result)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || !strings.HasSuffix(paths[0], "/sendMessage") {
		t.Fatalf("paths = %v, want one sendMessage call", paths)
	}
	if payload["text"] != "Olá!" {
		t.Fatalf("text = %v, want Olá!", payload["text"])
	}
	if chatID, _ := payload["chat_id"].(float64); chatID != 42 {
		t.Fatalf("chat_id = %v, want 42", payload["chat_id"])
	}
}

func TestSendMapsAPIErrorToStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	t.Cleanup(server.Close)

	client, err := newClient(testToken, time.Second, telego.WithAPIServer(server.URL))
	if err != nil {
		t.Fatalf("newClient error: %v", err)
	}

	result, err := client.Send(context.Background(), sendertypes.Message{Target: "42", Text: "oi"})
	if category := sendertypes.CategoryFromError(err); category != sendertypes.ErrorStatus {
		t.Fatalf("category = %q, want %q (err %v)", category, sendertypes.ErrorStatus, err)
	}
	if result.Delivered || result.StatusCode != 400 {
		t.Fatalf("result = %+v, want undelivered 400", result)
	}
}
