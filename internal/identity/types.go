// Package identity manages the per-channel alternate-sender objects (webhook
// id + secret token) messages are relayed through.
package identity

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means no identity has been created for the channel yet.
	ErrNotFound = errors.New("channel identity not found")
	// ErrPermissionDenied means the platform refused to create the identity.
	ErrPermissionDenied = errors.New("identity creation denied by platform permissions")
)

// Record is one stored channel identity, keyed by the parent channel id.
type Record struct {
	ChannelID    string
	WebhookID    string
	WebhookToken string
}

// Channel is the minimal channel shape the manager needs for thread routing.
type Channel struct {
	ID       string
	ParentID string
	Thread   bool
}

// Store persists identities across restarts.
type Store interface {
	Get(ctx context.Context, channelID string) (Record, error)
	// PutIfAbsent inserts rec unless a row already exists, returning the
	// canonical stored record and whether rec won the insert.
	PutIfAbsent(ctx context.Context, rec Record) (Record, bool, error)
}

// Platform creates identities and describes channels.
type Platform interface {
	ChannelInfo(ctx context.Context, channelID string) (Channel, error)
	CreateIdentity(ctx context.Context, channelID string) (Record, error)
}
