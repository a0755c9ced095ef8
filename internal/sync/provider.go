package sync

import (
	"context"
	"errors"
	"time"
)

// ProviderName represents email provider types
type ProviderName string

const (
	ProviderGoogle    ProviderName = "GOOGLE"
	ProviderMicrosoft ProviderName = "MICROSOFT"
)

// Sentinel errors providers map their API failures onto. Handlers
// branch on these with errors.Is; the original provider error stays
// in the chain for logging.
var (
	// ErrMessageNotFound means the message was deleted or is no longer
	// fetchable even though history still references it
	ErrMessageNotFound = errors.New("message not found")

	// ErrCheckpointStale means the provider rejected the stored history
	// baseline as too old or invalid
	ErrCheckpointStale = errors.New("checkpoint stale")

	// ErrAuth covers expired or revoked credentials and failed token refresh
	ErrAuth = errors.New("authentication failed")

	// ErrNotImplemented is returned by stub provider capabilities
	ErrNotImplemented = errors.New("not implemented")
)

// Message represents normalized email content across providers
type Message struct {
	Provider ProviderName
	ID       string // provider ID (Gmail: Id, Outlook: id)
	ThreadID string // provider thread/conversation id
	Subject  string
	Sender   string
	Snippet  string
	Labels   []string
	Date     time.Time
}

// ChangeEvent represents one message-added history record
type ChangeEvent struct {
	HistoryID uint64 // history record the message arrived in
	MessageID string
	ThreadID  string
	Labels    []string
}

// MailProvider interface for provider-agnostic triage
type MailProvider interface {
	// ChangesSince lists messages added after lastID, plus the highest
	// history record ID seen while listing
	ChangesSince(ctx context.Context, lastID uint64) ([]ChangeEvent, uint64, error)

	// FetchMessage fetches full message content by provider ID
	FetchMessage(ctx context.Context, id string) (*Message, error)

	// ApplyLabel tags a message, creating the label on first use
	ApplyLabel(ctx context.Context, id, label string) error

	// CurrentHistoryID reports the mailbox's present history position
	CurrentHistoryID(ctx context.Context) (uint64, error)
}
