package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"whatsapp-approval-relay/internal/domain"
	"whatsapp-approval-relay/internal/domain/ports/adapter"
	"whatsapp-approval-relay/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.RelayAdapter = (*BridgeClient)(nil)

// BridgeClient talks to the local WhatsApp bridge over its REST API. The
// bridge owns the session and the media store; this client only asks it to
// send, download and (dis)connect.
type BridgeClient struct {
	base     string // e.g., http://localhost:8080/api
	storeDir string
	client   *http.Client
	log      *zerolog.Logger
}

func NewBridgeClient(base, storeDir string, timeout time.Duration, log *zerolog.Logger) *BridgeClient {
	l := log.With().Str("component", "bridge_client").Logger()
	return &BridgeClient{
		base:     base,
		storeDir: storeDir,
		client:   &http.Client{Timeout: timeout},
		log:      &l,
	}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	MediaPath string `json:"media_path,omitempty"`
}

type bridgeResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"Message"`
	Filename string `json:"Filename"`
	Path     string `json:"Path"`
}

func (b *BridgeClient) post(ctx context.Context, path string, body any) (*bridgeResponse, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge %s: %w", path, domain.ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("bridge %s http %d: %w", path, resp.StatusCode, domain.ErrUnavailable)
	}

	var br bridgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("bridge %s decode: %w", path, err)
	}
	return &br, nil
}

func (b *BridgeClient) SendText(ctx context.Context, conversationID, text string) error {
	br, err := b.post(ctx, "/send", sendRequest{Recipient: conversationID, Message: text})
	if err != nil {
		metrics.IncBridgeSend("text", "error")
		return err
	}
	if !br.Success {
		metrics.IncBridgeSend("text", "refused")
		return fmt.Errorf("bridge refused send: %s", br.Message)
	}
	metrics.IncBridgeSend("text", "ok")
	return nil
}

func (b *BridgeClient) SendMedia(ctx context.Context, conversationID, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	br, err := b.post(ctx, "/send", sendRequest{Recipient: conversationID, MediaPath: abs})
	if err != nil {
		metrics.IncBridgeSend("media", "error")
		return err
	}
	if !br.Success {
		metrics.IncBridgeSend("media", "refused")
		return fmt.Errorf("bridge refused media send: %s", br.Message)
	}
	metrics.IncBridgeSend("media", "ok")
	return nil
}

func (b *BridgeClient) DownloadMedia(ctx context.Context, messageID, conversationID string) (adapter.MediaFile, error) {
	br, err := b.post(ctx, "/download", struct {
		MessageID string `json:"message_id"`
		ChatJID   string `json:"chat_jid"`
	}{MessageID: messageID, ChatJID: conversationID})
	if err != nil {
		return adapter.MediaFile{}, err
	}
	if !br.Success {
		return adapter.MediaFile{}, fmt.Errorf("bridge download failed: %s", br.Message)
	}
	return adapter.MediaFile{Filename: br.Filename, Path: br.Path}, nil
}

// FindRecentMedia walks the bridge store for the conversation and returns the
// most recently modified file. Used when a download reports success but no
// usable path.
func (b *BridgeClient) FindRecentMedia(conversationID string) string {
	dir := filepath.Join(b.storeDir, conversationID)
	var newest string
	var newestMod time.Time
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.ModTime().After(newestMod) {
			newestMod = info.ModTime()
			newest = p
		}
		return nil
	})
	if err != nil {
		b.log.Debug().Err(err).Str("dir", dir).Msg("recent media walk failed")
		return ""
	}
	return newest
}

func (b *BridgeClient) Login(ctx context.Context) error {
	br, err := b.post(ctx, "/session/login", struct{}{})
	if err != nil {
		return err
	}
	if !br.Success {
		return fmt.Errorf("bridge login failed: %s", br.Message)
	}
	return nil
}

func (b *BridgeClient) Logout(ctx context.Context) error {
	br, err := b.post(ctx, "/session/logout", struct{}{})
	if err != nil {
		return err
	}
	if !br.Success {
		return fmt.Errorf("bridge logout failed: %s", br.Message)
	}
	return nil
}
