// Package ledger maps relayed message ids back to the original author and the
// persona used, enabling retraction and attribution lookups.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mosaicbot/mosaic/internal/db"
)

var ErrRecordNotFound = errors.New("relay record not found")

// Record ties a relayed message to its original author and persona.
type Record struct {
	MessageID   string
	OwnerID     string
	PersonaName string
	ChannelID   string
	GuildID     string
	CreatedAt   time.Time
}

// Service is the PostgreSQL-backed ownership ledger.
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
		logger: log.With(slog.String("service", "ledger")),
	}
}

// Put records a successful relay. Records are immutable once written.
func (s *Service) Put(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO relay_records (message_id, owner_id, persona_name, channel_id, guild_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (message_id) DO NOTHING`,
		rec.MessageID, rec.OwnerID, rec.PersonaName, rec.ChannelID, rec.GuildID)
	if err != nil {
		return fmt.Errorf("put relay record: %w", err)
	}
	return nil
}

// Get returns the record for a relayed message id.
func (s *Service) Get(ctx context.Context, messageID string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT message_id, owner_id, persona_name, channel_id, guild_id, created_at
		 FROM relay_records WHERE message_id = $1`, messageID)
	return scanRecord(row)
}

// MostRecent returns the owner's newest relay record.
func (s *Service) MostRecent(ctx context.Context, ownerID string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT message_id, owner_id, persona_name, channel_id, guild_id, created_at
		 FROM relay_records WHERE owner_id = $1
		 ORDER BY created_at DESC, message_id DESC LIMIT 1`, ownerID)
	return scanRecord(row)
}

// Delete removes a record after its relayed message is retracted.
func (s *Service) Delete(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM relay_records WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("delete relay record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var createdAt pgtype.Timestamptz
	err := row.Scan(&rec.MessageID, &rec.OwnerID, &rec.PersonaName, &rec.ChannelID, &rec.GuildID, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, fmt.Errorf("scan relay record: %w", err)
	}
	rec.CreatedAt = db.TimeFromPg(createdAt)
	return rec, nil
}
