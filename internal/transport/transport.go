// Package transport defines the capability interface the bridge core
// programs against, plus the shared session state record. The concrete
// WhatsApp implementation lives in internal/wameow; tests inject fakes.
package transport

import (
	"context"
	"errors"

	"github.com/openclaw/wa-bridge/internal/domain"
)

// Sentinel errors the HTTP layer maps to status codes.
var (
	ErrNotFound = errors.New("not found")
	ErrNoMedia  = errors.New("message has no media")
)

// SearchOptions narrows a SearchMessages call.
type SearchOptions struct {
	Limit  int
	ChatID string
}

// MessageHandler receives each inbound message event, one at a time, in the
// order the transport delivers them.
type MessageHandler func(msg *domain.IncomingMessage)

// Client is the façade over the external chat session. All operations may
// fail; errors surface as 5xx at the HTTP layer.
type Client interface {
	// Initialize starts (or restarts) the session. Pairing, reconnects and
	// lifecycle state transitions happen behind this call.
	Initialize(ctx context.Context) error

	// Destroy tears the session down. Used on shutdown only.
	Destroy() error

	// OnMessage registers the inbound message handler. Must be called
	// before Initialize.
	OnMessage(handler MessageHandler)

	GetChats(ctx context.Context) ([]domain.Chat, error)
	GetChatByID(ctx context.Context, chatID string) (*domain.Chat, error)
	GetContacts(ctx context.Context) ([]domain.Contact, error)
	GetContact(ctx context.Context, chatID string) (*domain.Contact, error)
	SearchMessages(ctx context.Context, query string, opts SearchOptions) ([]domain.Message, error)
	SendMessage(ctx context.Context, chatID, text string) (messageID string, err error)
	FetchMessages(ctx context.Context, chatID string, limit int) ([]domain.Message, error)
	DownloadMedia(ctx context.Context, chatID, serializedID string) (*domain.Media, error)
}
