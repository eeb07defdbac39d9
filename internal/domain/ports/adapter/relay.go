package adapter

import "context"

// MediaFile locates a file the bridge has materialized on local disk.
type MediaFile struct {
	Filename string
	Path     string
}

// RelayAdapter is the port for the outbound delivery channel (the WhatsApp
// bridge). Send calls report success explicitly; network faults surface as
// domain.ErrUnavailable.
type RelayAdapter interface {
	SendText(ctx context.Context, conversationID, text string) error
	SendMedia(ctx context.Context, conversationID, path string) error

	// DownloadMedia asks the bridge to (re-)fetch media for a message and
	// returns its local location.
	DownloadMedia(ctx context.Context, messageID, conversationID string) (MediaFile, error)

	// FindRecentMedia is the best-effort fallback when a download yields no
	// path: the most recently modified file in the conversation's store
	// directory, or "".
	FindRecentMedia(conversationID string) string

	// Session controls, exposed to the operator out of band.
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
}
