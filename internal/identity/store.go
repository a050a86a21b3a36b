package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the PostgreSQL-backed identity store.
type PgStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*PgStore)(nil)

func NewPgStore(log *slog.Logger, pool *pgxpool.Pool) *PgStore {
	if log == nil {
		log = slog.Default()
	}
	return &PgStore{
		pool:   pool,
		logger: log.With(slog.String("service", "identity/store")),
	}
}

func (s *PgStore) Get(ctx context.Context, channelID string) (Record, error) {
	var rec Record
	row := s.pool.QueryRow(ctx,
		`SELECT channel_id, webhook_id, webhook_token FROM channel_identities WHERE channel_id = $1`,
		channelID)
	if err := row.Scan(&rec.ChannelID, &rec.WebhookID, &rec.WebhookToken); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get channel identity: %w", err)
	}
	return rec, nil
}

func (s *PgStore) PutIfAbsent(ctx context.Context, rec Record) (Record, bool, error) {
	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO channel_identities (channel_id, webhook_id, webhook_token)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (channel_id) DO NOTHING`,
		rec.ChannelID, rec.WebhookID, rec.WebhookToken)
	if err != nil {
		return Record{}, false, fmt.Errorf("put channel identity: %w", err)
	}
	if cmd.RowsAffected() > 0 {
		return rec, true, nil
	}
	canonical, err := s.Get(ctx, rec.ChannelID)
	if err != nil {
		return Record{}, false, err
	}
	return canonical, false, nil
}
