package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(baseURL string) *DefaultClient {
	return NewClient(Options{
		BaseURL:         baseURL,
		Timeout:         5 * time.Second,
		RetryAttempts:   2,
		RetryBackoff:    time.Millisecond,
		RetryMaxBackoff: 5 * time.Millisecond,
	})
}

func envelopeBody(data any, errorCode, errorMessage string) string {
	raw, _ := json.Marshal(data)
	body, _ := json.Marshal(map[string]any{
		"requestId":    1,
		"version":      "stable",
		"data":         json.RawMessage(raw),
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})
	return string(body)
}

func TestPostReturnsDataField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		fmt.Fprint(w, envelopeBody(map[string]int{"value": 42}, "", ""))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	data, err := client.Post(context.Background(), "test-endpoint", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	var got map[string]int
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if got["value"] != 42 {
		t.Errorf("data.value = %d, want 42", got["value"])
	}
}

func TestPostSendsToken(t *testing.T) {
	var gotToken atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get("X-Auth-Token"))
		fmt.Fprint(w, envelopeBody(nil, "", ""))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.SetToken("secret-token")
	if _, err := client.Post(context.Background(), "login-app-guest", nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got := gotToken.Load().(string); got != "secret-token" {
		t.Errorf("X-Auth-Token = %q, want %q", got, "secret-token")
	}

	client.ClearToken()
	if _, err := client.Post(context.Background(), "login-app-guest", nil); err != nil {
		t.Fatalf("Post after ClearToken: %v", err)
	}
	if got := gotToken.Load().(string); got != "" {
		t.Errorf("X-Auth-Token after ClearToken = %q, want empty", got)
	}
}

func TestPostErrorCodeMapping(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"AUTH_INVALID", ErrAuth},
		{"AUTH_KEY_INVALID", ErrAuth},
		{"AUTH_UNAUTHORIZED", ErrUnauthorized},
		{"RATE_LIMIT", ErrRateLimit},
		{"DATASET_AUTH", ErrDatasetAuth},
		{"INPUT_INVALID", ErrService},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, envelopeBody(nil, tt.code, "boom"))
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.Post(context.Background(), "scene-search", nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Post error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPostRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, envelopeBody("ok", "", ""))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	data, err := client.Post(context.Background(), "scene-search", nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if string(data) != `"ok"` {
		t.Errorf("data = %s, want \"ok\"", data)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestPostDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, envelopeBody(nil, "AUTH_INVALID", "bad credentials"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Post(context.Background(), "login", nil)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("Post error = %v, want ErrAuth", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (auth failures must not be retried)", got)
	}
}

func TestPostExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.Post(context.Background(), "scene-search", nil)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("Post error = %v, want ErrServer", err)
	}
	// RetryAttempts=2 means 3 total attempts.
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestPostDefaultRetriesTransientOnce(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, envelopeBody("tok", "", ""))
	}))
	defer server.Close()

	// RetryAttempts left at zero falls back to the default of one retry.
	client := NewClient(Options{
		BaseURL:      server.URL,
		RetryBackoff: time.Millisecond,
	})
	data, err := client.Post(context.Background(), "login", nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if string(data) != `"tok"` {
		t.Errorf("data = %s, want \"tok\"", data)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2 (one retry by default)", got)
	}
}

func TestPostNegativeRetryAttemptsDisablesRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Options{
		BaseURL:       server.URL,
		RetryAttempts: -1,
		RetryBackoff:  time.Millisecond,
	})
	_, err := client.Post(context.Background(), "scene-search", nil)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("Post error = %v, want ErrServer", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestFetchStreamsBody(t *testing.T) {
	payload := "archive-bytes"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="scene.tar.gz"`)
		fmt.Fprint(w, payload)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Fetch(context.Background(), server.URL+"/download/abc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()

	if resp.Filename != "scene.tar.gz" {
		t.Errorf("Filename = %q, want scene.tar.gz", resp.Filename)
	}
	if resp.ContentLength != int64(len(payload)) {
		t.Errorf("ContentLength = %d, want %d", resp.ContentLength, len(payload))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != payload {
		t.Errorf("body = %q, want %q", body, payload)
	}
}

func TestFetchStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusUnauthorized, ErrAuth},
		{http.StatusTooManyRequests, ErrRateLimit},
		{http.StatusInternalServerError, ErrServer},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.Fetch(context.Background(), server.URL)
			if !errors.Is(err, tt.want) {
				t.Errorf("Fetch error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	transient := []error{
		ErrNetwork,
		ErrServer,
		ErrRateLimit,
		fmt.Errorf("wrapped: %w", ErrNetwork),
	}
	for _, err := range transient {
		if !IsTransient(err) {
			t.Errorf("IsTransient(%v) = false, want true", err)
		}
	}

	permanent := []error{
		ErrAuth,
		ErrUnauthorized,
		ErrDatasetAuth,
		ErrService,
		ErrNotFound,
		ErrForbidden,
		errors.New("something else"),
	}
	for _, err := range permanent {
		if IsTransient(err) {
			t.Errorf("IsTransient(%v) = true, want false", err)
		}
	}
}

func TestDispositionFilename(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`attachment; filename="LT05_L1TP.tar.gz"`, "LT05_L1TP.tar.gz"},
		{`attachment; filename=plain.zip`, "plain.zip"},
		{``, ""},
		{`attachment`, ""},
	}
	for _, tt := range tests {
		if got := dispositionFilename(tt.header); got != tt.want {
			t.Errorf("dispositionFilename(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestPostContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Post(ctx, "scene-search", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Post error = %v, want context.DeadlineExceeded", err)
	}
}
