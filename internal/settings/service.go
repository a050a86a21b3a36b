package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mosaicbot/mosaic/internal/db"
)

// Service is the PostgreSQL-backed settings store.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*Service)(nil)

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "settings")),
	}
}

// GetOrCreate returns the raw (ownerID, guildID) row. Missing rows are
// created idempotently: the global row defaults to SwitchedIn, guild rows
// default to inherit (unset mode). Creating a guild row also ensures the
// global row exists so inheritance always has a target.
func (s *Service) GetOrCreate(ctx context.Context, ownerID, guildID string) (Row, error) {
	row, err := s.get(ctx, ownerID, guildID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Row{}, fmt.Errorf("get settings: %w", err)
	}

	mode := ModeSwitchedIn
	if guildID != GlobalScope {
		mode = ModeUnset
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO autoproxy_settings (owner_id, guild_id, mode)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (owner_id, guild_id) DO NOTHING`,
		ownerID, guildID, modeToPg(mode))
	if err != nil {
		return Row{}, fmt.Errorf("create settings: %w", err)
	}

	if guildID != GlobalScope {
		if _, err := s.GetOrCreate(ctx, ownerID, GlobalScope); err != nil {
			return Row{}, err
		}
	}

	row, err = s.get(ctx, ownerID, guildID)
	if err != nil {
		return Row{}, fmt.Errorf("get settings after create: %w", err)
	}
	return row, nil
}

// Update persists a full settings row.
func (s *Service) Update(ctx context.Context, row Row) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE autoproxy_settings
		 SET mode = $3, mode_persona = $4, latch_persona = $5, updated_at = now()
		 WHERE owner_id = $1 AND guild_id = $2`,
		row.OwnerID, row.GuildID, modeToPg(row.Mode),
		db.ToPgText(row.ModePersona), db.ToPgText(row.LatchPersona))
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("update settings: row (%s, %q) does not exist", row.OwnerID, row.GuildID)
	}
	return nil
}

// SetMode is the external settings-update surface: it rewrites the mode of
// one scope row, clearing the latch slot when leaving Latch mode.
func (s *Service) SetMode(ctx context.Context, ownerID, guildID string, mode Mode, modePersona string) error {
	row, err := s.GetOrCreate(ctx, ownerID, guildID)
	if err != nil {
		return err
	}
	row.Mode = mode
	row.ModePersona = ""
	if mode == ModePersona {
		row.ModePersona = modePersona
	}
	if mode != ModeLatch {
		row.LatchPersona = ""
	}
	return s.Update(ctx, row)
}

func (s *Service) get(ctx context.Context, ownerID, guildID string) (Row, error) {
	var row Row
	var mode, modePersona, latchPersona pgtype.Text

	r := s.pool.QueryRow(ctx,
		`SELECT owner_id, guild_id, mode, mode_persona, latch_persona
		 FROM autoproxy_settings WHERE owner_id = $1 AND guild_id = $2`,
		ownerID, guildID)
	if err := r.Scan(&row.OwnerID, &row.GuildID, &mode, &modePersona, &latchPersona); err != nil {
		return Row{}, err
	}
	row.Mode = Mode(db.TextToString(mode))
	row.ModePersona = db.TextToString(modePersona)
	row.LatchPersona = db.TextToString(latchPersona)
	return row, nil
}

func modeToPg(mode Mode) pgtype.Text {
	return pgtype.Text{String: string(mode), Valid: mode != ModeUnset}
}
