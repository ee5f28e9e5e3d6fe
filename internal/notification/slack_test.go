package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSlackClient_Defaults(t *testing.T) {
	client := NewSlackClient(SlackClientConfig{WebhookURL: StaticURL("https://hooks.example.com")})

	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want default %v", client.httpClient.Timeout, 10*time.Second)
	}
	if client.maxRetries != 3 {
		t.Errorf("maxRetries = %v, want default %v", client.maxRetries, 3)
	}
	if client.backoff != time.Second {
		t.Errorf("backoff = %v, want default %v", client.backoff, time.Second)
	}
	if client.logger == nil {
		t.Error("logger should not be nil")
	}
}

func TestSlackClient_Send_Payload(t *testing.T) {
	var got SlackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST request, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSlackClient(SlackClientConfig{
		WebhookURL: StaticURL(server.URL),
		Channel:    "aws-error-notice",
		Username:   "skt-batch-alerts",
		MaxRetries: 1,
	})

	if err := client.Send(context.Background(), "<Batch Job Failed - dev>"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	want := SlackPayload{Channel: "aws-error-notice", Username: "skt-batch-alerts", Text: "<Batch Job Failed - dev>"}
	if got != want {
		t.Errorf("payload = %+v, want %+v", got, want)
	}
}

func TestSlackClient_Send_Retry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSlackClient(SlackClientConfig{
		WebhookURL: StaticURL(server.URL),
		MaxRetries: 3,
		Backoff:    time.Millisecond,
	})

	if err := client.Send(context.Background(), "test"); err != nil {
		t.Errorf("Send() error = %v, want nil", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestSlackClient_Send_AllRetriesFail(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid_payload"))
	}))
	defer server.Close()

	client := NewSlackClient(SlackClientConfig{
		WebhookURL: StaticURL(server.URL),
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})

	if err := client.Send(context.Background(), "test"); err == nil {
		t.Error("Send() error = nil, want error")
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestSlackClient_Send_URLSourceError(t *testing.T) {
	client := NewSlackClient(SlackClientConfig{
		WebhookURL: func(context.Context) (string, error) {
			return "", errors.New("secret missing")
		},
	})

	if err := client.Send(context.Background(), "test"); err == nil {
		t.Error("Send() error = nil, want error")
	}

	if err := NewSlackClient(SlackClientConfig{}).Send(context.Background(), "test"); err == nil {
		t.Error("Send() without URL source should fail")
	}
}

func TestSlackClient_Send_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewSlackClient(SlackClientConfig{
		WebhookURL: StaticURL(server.URL),
		MaxRetries: 3,
		Backoff:    time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := client.Send(ctx, "test"); err == nil {
		t.Error("Send() error = nil, want context error")
	}
}
