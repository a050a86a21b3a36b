package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mosaicbot/mosaic/internal/db"
)

var ErrPersonaNotFound = errors.New("persona not found")

// Service provides persona persistence over PostgreSQL.
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
		logger: log.With(slog.String("service", "persona")),
	}
}

const personaColumns = `owner_id, name, display_name, avatar_url, is_public, pinned, bio, pronouns, tag_prefix, tag_suffix, created_at`

// List returns the owner's personas in stable order (creation time, then name).
func (s *Service) List(ctx context.Context, ownerID string) ([]Persona, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+personaColumns+` FROM personas WHERE owner_id = $1 ORDER BY created_at, name`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	var personas []Persona
	pinned := 0
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		if p.Pinned {
			pinned++
		}
		personas = append(personas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	if pinned > 1 {
		// should be impossible under the partial unique index
		s.logger.Error("invariant violation: multiple pinned personas",
			slog.String("owner_id", ownerID), slog.Int("pinned", pinned))
	}
	return personas, nil
}

// Get returns the owner's persona with the given name.
func (s *Service) Get(ctx context.Context, ownerID, name string) (Persona, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+personaColumns+` FROM personas WHERE owner_id = $1 AND name = $2`,
		ownerID, name)
	p, err := scanPersona(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Persona{}, ErrPersonaNotFound
		}
		return Persona{}, fmt.Errorf("get persona: %w", err)
	}
	return p, nil
}

// Create inserts a new persona.
func (s *Service) Create(ctx context.Context, p Persona) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO personas (owner_id, name, display_name, avatar_url, is_public, pinned, bio, pronouns, tag_prefix, tag_suffix)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.OwnerID, p.Name, db.ToPgText(p.DisplayName), p.AvatarURL, p.Public, p.Pinned,
		db.ToPgText(p.Bio), db.ToPgText(p.Pronouns), db.ToPgText(p.Tag.Prefix), db.ToPgText(p.Tag.Suffix))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("persona %q already exists", p.Name)
		}
		return fmt.Errorf("create persona: %w", err)
	}
	return nil
}

// EditRequest carries optional field updates; nil fields are left unchanged.
type EditRequest struct {
	Name        *string
	DisplayName *string
	Bio         *string
	Pronouns    *string
	Selector    *string
	Public      *bool
	AvatarURL   *string
}

// Edit applies the non-nil fields of req to the named persona.
func (s *Service) Edit(ctx context.Context, ownerID, name string, req EditRequest) (Persona, error) {
	current, err := s.Get(ctx, ownerID, name)
	if err != nil {
		return Persona{}, err
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		current.Name = strings.TrimSpace(*req.Name)
	}
	if req.DisplayName != nil {
		current.DisplayName = *req.DisplayName
	}
	if req.Bio != nil {
		current.Bio = *req.Bio
	}
	if req.Pronouns != nil {
		current.Pronouns = *req.Pronouns
	}
	if req.Selector != nil {
		tag := ParseSelector(*req.Selector)
		if tag.Prefix != "" {
			current.Tag.Prefix = tag.Prefix
		}
		if tag.Suffix != "" {
			current.Tag.Suffix = tag.Suffix
		}
	}
	if req.Public != nil {
		current.Public = *req.Public
	}
	if req.AvatarURL != nil && *req.AvatarURL != "" {
		current.AvatarURL = *req.AvatarURL
	}

	cmd, err := s.pool.Exec(ctx,
		`UPDATE personas SET name = $3, display_name = $4, avatar_url = $5, is_public = $6,
		        bio = $7, pronouns = $8, tag_prefix = $9, tag_suffix = $10, updated_at = now()
		 WHERE owner_id = $1 AND name = $2`,
		ownerID, name, current.Name, db.ToPgText(current.DisplayName), current.AvatarURL,
		current.Public, db.ToPgText(current.Bio), db.ToPgText(current.Pronouns),
		db.ToPgText(current.Tag.Prefix), db.ToPgText(current.Tag.Suffix))
	if err != nil {
		return Persona{}, fmt.Errorf("edit persona: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return Persona{}, ErrPersonaNotFound
	}
	return current, nil
}

// Delete removes the named persona.
func (s *Service) Delete(ctx context.Context, ownerID, name string) error {
	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM personas WHERE owner_id = $1 AND name = $2`, ownerID, name)
	if err != nil {
		return fmt.Errorf("delete persona: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrPersonaNotFound
	}
	return nil
}

// DeleteAll removes every persona owned by ownerID (bulk reset).
func (s *Service) DeleteAll(ctx context.Context, ownerID string) (int64, error) {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM personas WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("reset personas: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// Pin marks the named persona as switched-in, clearing any previous pin in the
// same transaction so at most one persona per owner is ever pinned.
func (s *Service) Pin(ctx context.Context, ownerID, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pin persona: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE personas SET pinned = FALSE, updated_at = now() WHERE owner_id = $1 AND pinned`,
		ownerID); err != nil {
		return fmt.Errorf("clear pinned persona: %w", err)
	}
	cmd, err := tx.Exec(ctx,
		`UPDATE personas SET pinned = TRUE, updated_at = now() WHERE owner_id = $1 AND name = $2`,
		ownerID, name)
	if err != nil {
		return fmt.Errorf("pin persona: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrPersonaNotFound
	}
	return tx.Commit(ctx)
}

// Unpin clears the owner's switched-in persona, if any.
func (s *Service) Unpin(ctx context.Context, ownerID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE personas SET pinned = FALSE, updated_at = now() WHERE owner_id = $1 AND pinned`,
		ownerID)
	if err != nil {
		return fmt.Errorf("unpin persona: %w", err)
	}
	return nil
}

func scanPersona(row pgx.Row) (Persona, error) {
	var p Persona
	var displayName, bio, pronouns, tPrefix, tSuffix pgtype.Text
	var createdAt pgtype.Timestamptz
	err := row.Scan(&p.OwnerID, &p.Name, &displayName, &p.AvatarURL, &p.Public, &p.Pinned,
		&bio, &pronouns, &tPrefix, &tSuffix, &createdAt)
	if err != nil {
		return Persona{}, err
	}
	p.DisplayName = db.TextToString(displayName)
	p.Bio = db.TextToString(bio)
	p.Pronouns = db.TextToString(pronouns)
	p.Tag = Tag{Prefix: db.TextToString(tPrefix), Suffix: db.TextToString(tSuffix)}
	p.CreatedAt = db.TimeFromPg(createdAt)
	return p, nil
}
