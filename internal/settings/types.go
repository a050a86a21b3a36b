// Package settings holds per-(owner, scope) autoproxy configuration and the
// resolution state machine that picks a fallback persona when no tag matches.
package settings

import "context"

// Mode is the autoproxy mode of a settings row.
type Mode string

const (
	// ModeUnset on a guild row inherits the global row's mode.
	ModeUnset      Mode = ""
	ModeDisabled   Mode = "disabled"
	ModeSwitchedIn Mode = "switched_in"
	ModeLatch      Mode = "latch"
	// ModePersona pins autoproxy to a fixed persona name.
	ModePersona Mode = "persona"
)

// GlobalScope is the guild id of the global settings row.
const GlobalScope = ""

// Row is one stored settings row. GuildID is GlobalScope for the global row.
type Row struct {
	OwnerID      string
	GuildID      string
	Mode         Mode
	ModePersona  string
	LatchPersona string
}

// Store is the persistence surface the resolver needs.
type Store interface {
	// GetOrCreate returns the raw row for (ownerID, guildID), creating the
	// default row on first access. No inheritance is applied.
	GetOrCreate(ctx context.Context, ownerID, guildID string) (Row, error)
	// Update persists a full row.
	Update(ctx context.Context, row Row) error
}
