package collective

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mosaicbot/mosaic/internal/db"
)

// Service provides collective persistence over PostgreSQL.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "collective")),
	}
}

// GetOrCreate returns the owner's collective, creating a default-public row
// on first access.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (Collective, error) {
	c, err := s.get(ctx, ownerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Collective{}, fmt.Errorf("get collective: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO collectives (owner_id, is_public) VALUES ($1, TRUE)
		 ON CONFLICT (owner_id) DO NOTHING`, ownerID)
	if err != nil {
		return Collective{}, fmt.Errorf("create collective: %w", err)
	}
	c, err = s.get(ctx, ownerID)
	if err != nil {
		return Collective{}, fmt.Errorf("get collective after create: %w", err)
	}
	return c, nil
}

// EditRequest carries optional field updates; nil fields are left unchanged.
// An explicitly empty Tag clears the collective tag.
type EditRequest struct {
	Name     *string
	Bio      *string
	Pronouns *string
	Public   *bool
	Tag      *string
}

// Edit applies the non-nil fields of req to the owner's collective.
func (s *Service) Edit(ctx context.Context, ownerID string, req EditRequest) (Collective, error) {
	current, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return Collective{}, err
	}

	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Bio != nil {
		current.Bio = *req.Bio
	}
	if req.Pronouns != nil {
		current.Pronouns = *req.Pronouns
	}
	if req.Public != nil {
		current.Public = *req.Public
	}
	if req.Tag != nil {
		current.Tag = *req.Tag
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE collectives SET name = $2, bio = $3, pronouns = $4, tag = $5, is_public = $6, updated_at = now()
		 WHERE owner_id = $1`,
		ownerID, db.ToPgText(current.Name), db.ToPgText(current.Bio),
		db.ToPgText(current.Pronouns), db.ToPgText(current.Tag), current.Public)
	if err != nil {
		return Collective{}, fmt.Errorf("edit collective: %w", err)
	}
	return current, nil
}

// RecordSwitch prepends a switch log entry (unswitch when persona is empty)
// and persists the bounded history.
func (s *Service) RecordSwitch(ctx context.Context, ownerID, personaName, prevPersonaName string) error {
	current, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return err
	}

	logs := prependSwitch(current.SwitchLogs, SwitchLog{
		Date:        time.Now().UTC(),
		Persona:     personaName,
		PrevPersona: prevPersonaName,
		Unswitch:    personaName == "",
	})
	raw, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("encode switch logs: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE collectives SET switch_logs = $2, updated_at = now() WHERE owner_id = $1`,
		ownerID, raw)
	if err != nil {
		return fmt.Errorf("record switch: %w", err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, ownerID string) (Collective, error) {
	var c Collective
	var name, bio, pronouns, tag pgtype.Text
	var rawLogs []byte

	row := s.pool.QueryRow(ctx,
		`SELECT owner_id, name, bio, pronouns, tag, is_public, switch_logs
		 FROM collectives WHERE owner_id = $1`, ownerID)
	if err := row.Scan(&c.OwnerID, &name, &bio, &pronouns, &tag, &c.Public, &rawLogs); err != nil {
		return Collective{}, err
	}

	c.Name = db.TextToString(name)
	c.Bio = db.TextToString(bio)
	c.Pronouns = db.TextToString(pronouns)
	c.Tag = db.TextToString(tag)
	if len(rawLogs) > 0 {
		if err := json.Unmarshal(rawLogs, &c.SwitchLogs); err != nil {
			s.logger.Warn("unmarshal switch logs failed",
				slog.String("owner_id", ownerID), slog.Any("error", err))
		}
	}
	return c, nil
}
