package settings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mosaicbot/mosaic/internal/persona"
)

// Resolved is the effective autoproxy configuration for one event, together
// with the scope whose row supplied the mode. The latch slot always belongs
// to that scope.
type Resolved struct {
	Mode         Mode
	ModePersona  string
	LatchPersona string
	Scope        string
}

// Resolver applies one level of scope inheritance: a guild row with an unset
// mode falls back to the global row; an explicit guild mode overrides it.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(log *slog.Logger, store Store) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:  store,
		logger: log.With(slog.String("service", "settings/resolver")),
	}
}

// Effective returns the mode governing (ownerID, guildID), creating default
// rows as needed. guildID may be GlobalScope for direct messages.
func (r *Resolver) Effective(ctx context.Context, ownerID, guildID string) (Resolved, error) {
	row, err := r.store.GetOrCreate(ctx, ownerID, guildID)
	if err != nil {
		return Resolved{}, fmt.Errorf("settings row %q: %w", guildID, err)
	}
	if row.Mode != ModeUnset || guildID == GlobalScope {
		return Resolved{
			Mode:         row.Mode,
			ModePersona:  row.ModePersona,
			LatchPersona: row.LatchPersona,
			Scope:        guildID,
		}, nil
	}

	global, err := r.store.GetOrCreate(ctx, ownerID, GlobalScope)
	if err != nil {
		return Resolved{}, fmt.Errorf("global settings row: %w", err)
	}
	return Resolved{
		Mode:         global.Mode,
		ModePersona:  global.ModePersona,
		LatchPersona: global.LatchPersona,
		Scope:        GlobalScope,
	}, nil
}

// ResolveAutoproxy picks the fallback persona for an event with no tag match.
// A nil persona means the event passes through untouched.
func (r *Resolver) ResolveAutoproxy(ctx context.Context, ownerID, guildID string, personas []persona.Persona) (*persona.Persona, error) {
	res, err := r.Effective(ctx, ownerID, guildID)
	if err != nil {
		return nil, err
	}

	switch res.Mode {
	case ModeDisabled, ModeUnset:
		return nil, nil
	case ModeSwitchedIn:
		for i := range personas {
			if personas[i].Pinned {
				return &personas[i], nil
			}
		}
		return nil, nil
	case ModeLatch:
		if res.LatchPersona == "" {
			return nil, nil
		}
		return byName(personas, res.LatchPersona), nil
	case ModePersona:
		// a deleted or renamed persona resolves to none, not an error
		return byName(personas, res.ModePersona), nil
	default:
		r.logger.Warn("unknown autoproxy mode", slog.String("mode", string(res.Mode)))
		return nil, nil
	}
}

// UpdateLatch overwrites the latch slot of the scope that supplied the
// effective mode. It must be called only after a manual (tag-based) match;
// any mode other than Latch is a no-op. An empty personaName clears the slot.
func (r *Resolver) UpdateLatch(ctx context.Context, ownerID, guildID, personaName string) error {
	res, err := r.Effective(ctx, ownerID, guildID)
	if err != nil {
		return err
	}
	if res.Mode != ModeLatch {
		return nil
	}

	row, err := r.store.GetOrCreate(ctx, ownerID, res.Scope)
	if err != nil {
		return fmt.Errorf("latch row %q: %w", res.Scope, err)
	}
	row.LatchPersona = personaName
	if err := r.store.Update(ctx, row); err != nil {
		return fmt.Errorf("update latch: %w", err)
	}
	return nil
}

// ClearLatch empties the scope-appropriate latch slot (explicit un-latch).
func (r *Resolver) ClearLatch(ctx context.Context, ownerID, guildID string) error {
	return r.UpdateLatch(ctx, ownerID, guildID, "")
}

func byName(personas []persona.Persona, name string) *persona.Persona {
	for i := range personas {
		if personas[i].Name == name {
			return &personas[i]
		}
	}
	return nil
}
