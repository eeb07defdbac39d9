package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"whatsapp-approval-relay/internal/domain"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *BridgeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := zerolog.Nop()
	return NewBridgeClient(srv.URL, t.TempDir(), 5*time.Second, &log)
}

func TestSendTextPostsRecipientAndMessage(t *testing.T) {
	var got sendRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true}`))
	})

	if err := c.SendText(context.Background(), "123@s.whatsapp.net", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Recipient != "123@s.whatsapp.net" || got.Message != "hello" {
		t.Errorf("request = %+v", got)
	}
}

func TestSendTextReportsBridgeRefusal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":false,"Message":"not connected"}`))
	})
	if err := c.SendText(context.Background(), "x", "y"); err == nil {
		t.Fatal("refused send must return an error")
	}
}

func TestSendTextUnavailableOnServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := c.SendText(context.Background(), "x", "y")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestDownloadMediaReturnsPath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/download" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"Filename":"pic.jpg","Path":"/store/abc/pic.jpg"}`))
	})
	mf, err := c.DownloadMedia(context.Background(), "m1", "abc")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if mf.Path != "/store/abc/pic.jpg" || mf.Filename != "pic.jpg" {
		t.Errorf("file = %+v", mf)
	}
}

func TestFindRecentMediaPicksNewestFile(t *testing.T) {
	log := zerolog.Nop()
	store := t.TempDir()
	c := NewBridgeClient("http://unused", store, time.Second, &log)

	dir := filepath.Join(store, "conv-1")
	os.MkdirAll(dir, 0o755)
	old := filepath.Join(dir, "old.jpg")
	newer := filepath.Join(dir, "new.jpg")
	os.WriteFile(old, []byte("a"), 0o644)
	os.WriteFile(newer, []byte("b"), 0o644)
	past := time.Now().Add(-time.Hour)
	os.Chtimes(old, past, past)

	if got := c.FindRecentMedia("conv-1"); got != newer {
		t.Errorf("recent = %s, want %s", got, newer)
	}
	if got := c.FindRecentMedia("missing-conv"); got != "" {
		t.Errorf("missing conversation should yield empty, got %s", got)
	}
}
