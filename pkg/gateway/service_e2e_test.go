package gateway

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"zapreply/pkg/logger"
	"zapreply/pkg/reply"
	sendertypes "zapreply/pkg/sender/types"
	"zapreply/pkg/webhook"

	"github.com/stretchr/testify/require"
)

func TestGatewayServiceRunE2EWebhookReplies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port := freeTCPPort(t)
	cfg := configuredConfig()
	cfg.Gateway.Port = port
	cfg.Generation.Enabled = true
	cfg.Generation.Provider = "opencode"

	client := &toggledHealthProvider{}
	s := &recordingSender{}
	handler := webhook.New(webhook.Options{
		Config:   cfg,
		Resolver: reply.NewResolver(reply.Options{Generator: client, Log: logger.Discard()}),
		Sender:   s,
		Log:      logger.Discard(),
	})
	svc, err := NewService(cfg, handler, client, logger.Discard())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, baseURL+"/readyz", 2*time.Second))

	payloads := []string{
		`{"phone":"5511999999999","text":{"message":"qual o horário?"}}`,
		`{"phone":"5511999999999","fromMe":true,"text":{"message":"Recebi: ok:qual o horário?"}}`,
		`{"phone":"5511888888888","text":{"message":"bom dia"}}`,
		`{"phone":"5511777777777","text":{"message":"Recebi: \"loop\""}}`,
	}
	for _, payload := range payloads {
		response, err := http.Post(baseURL+"/webhook", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, response.StatusCode)
		require.NotEmpty(t, response.Header.Get("X-Request-ID"))
		require.NoError(t, response.Body.Close())
	}

	require.Equal(t, []sendertypes.Message{
		{Target: "5511999999999", Text: reply.DefaultEchoLabel + " ok:qual o horário?"},
		{Target: "5511888888888", Text: reply.DefaultEchoLabel + " " + reply.DefaultGreeting},
	}, s.sent())

	metricsResponse, err := http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(metricsResponse.Body)
	require.NoError(t, err)
	require.NoError(t, metricsResponse.Body.Close())
	require.Contains(t, string(body), "zapreply_webhook_events_total")
	require.Contains(t, string(body), `disposition="ignored_echo"`)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(7 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestGatewayServiceReadyzTransitionsOnProviderHealthRecovery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port := freeTCPPort(t)
	cfg := configuredConfig()
	cfg.Gateway.Port = port

	client := &toggledHealthProvider{}
	svc := newTestService(t, cfg, &recordingSender{}, client)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second))

	client.setHealthErr(fmt.Errorf("temporary provider outage"))
	err := svc.checkProviderHealth(context.Background())
	require.Error(t, err)
	require.Equal(t, http.StatusServiceUnavailable, waitHTTPStatus(t, readyURL, 2*time.Second))

	client.setHealthErr(nil)
	err = svc.checkProviderHealth(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, readyURL, 2*time.Second))

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(7 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestGatewayServiceRunFailsWhenPortTaken(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	cfg := configuredConfig()
	cfg.Gateway.Port = listener.Addr().(*net.TCPAddr).Port
	svc := newTestService(t, cfg, &recordingSender{}, nil)

	require.Error(t, svc.Run(context.Background()))
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			return statusCode
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
