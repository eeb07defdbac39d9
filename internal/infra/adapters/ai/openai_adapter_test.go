package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/ports/adapter"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *OpenAIAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := NewOpenAIAdapter("test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}
	a.base = srv.URL
	return a
}

func TestOpenAIChatReturnsFirstChoice(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello back"}}]}`))
	})

	got, err := a.Chat(context.Background(), []adapter.Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "hello back" {
		t.Errorf("reply = %q", got)
	}
}

func TestOpenAIChatClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimited},
		{"server error", http.StatusBadGateway, domain.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := a.Chat(context.Background(), []adapter.Message{{Role: "user", Content: "x"}})
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	t.Run("client error is permanent", func(t *testing.T) {
		a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		_, err := a.Chat(context.Background(), []adapter.Message{{Role: "user", Content: "x"}})
		if err == nil || domain.Transient(err) {
			t.Errorf("err = %v, want a permanent failure", err)
		}
	})
}
