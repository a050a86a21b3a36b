// Package guild holds per-guild relay configuration.
package guild

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

// Guild is one guild's relay configuration. ProxyLogChannelID is empty when
// the guild has not enabled proxy logs.
type Guild struct {
	ID                string
	ProxyLogChannelID string
}

// Service is the PostgreSQL-backed guild store.
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
		logger: log.With(slog.String("service", "guild")),
	}
}

// GetOrCreate returns the guild row, creating a default on first access.
func (s *Service) GetOrCreate(ctx context.Context, guildID string) (Guild, error) {
	g, err := s.get(ctx, guildID)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Guild{}, fmt.Errorf("get guild: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO guilds (guild_id) VALUES ($1) ON CONFLICT (guild_id) DO NOTHING`, guildID)
	if err != nil {
		return Guild{}, fmt.Errorf("create guild: %w", err)
	}
	g, err = s.get(ctx, guildID)
	if err != nil {
		return Guild{}, fmt.Errorf("get guild after create: %w", err)
	}
	return g, nil
}

// SetProxyLogChannel points the guild's proxy log at a channel; empty clears it.
func (s *Service) SetProxyLogChannel(ctx context.Context, guildID, channelID string) error {
	if _, err := s.GetOrCreate(ctx, guildID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE guilds SET proxy_log_channel_id = $2 WHERE guild_id = $1`,
		guildID, db.ToPgText(channelID))
	if err != nil {
		return fmt.Errorf("set proxy log channel: %w", err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, guildID string) (Guild, error) {
	var g Guild
	var logChannel pgtype.Text
	row := s.pool.QueryRow(ctx,
		`SELECT guild_id, proxy_log_channel_id FROM guilds WHERE guild_id = $1`, guildID)
	if err := row.Scan(&g.ID, &logChannel); err != nil {
		return Guild{}, err
	}
	g.ProxyLogChannelID = db.TextToString(logChannel)
	return g, nil
}
