package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	migrationsfs "github.com/mosaicbot/mosaic/db"
	"github.com/mosaicbot/mosaic/internal/collective"
	"github.com/mosaicbot/mosaic/internal/config"
	"github.com/mosaicbot/mosaic/internal/db"
	"github.com/mosaicbot/mosaic/internal/discord"
	"github.com/mosaicbot/mosaic/internal/gateway"
	"github.com/mosaicbot/mosaic/internal/guild"
	"github.com/mosaicbot/mosaic/internal/identity"
	"github.com/mosaicbot/mosaic/internal/ledger"
	"github.com/mosaicbot/mosaic/internal/logger"
	"github.com/mosaicbot/mosaic/internal/persona"
	"github.com/mosaicbot/mosaic/internal/relay"
	"github.com/mosaicbot/mosaic/internal/settings"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool, nil
}

func provideSession(cfg config.Config) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return session, nil
}

func provideAdapter(log *slog.Logger, cfg config.Config, session *discordgo.Session) *discord.Adapter {
	return discord.NewAdapter(log, session, cfg.Discord.WebhookName)
}

func provideIdentityManager(log *slog.Logger, pool *pgxpool.Pool, adapter *discord.Adapter) *identity.Manager {
	return identity.NewManager(log, identity.NewPgStore(log, pool), adapter)
}

func provideTransformer(log *slog.Logger, cfg config.Config, adapter *discord.Adapter, records *ledger.Service) *relay.Transformer {
	return relay.NewTransformer(log, adapter, records,
		cfg.Discord.DefaultAvatarURL, cfg.Relay.MaxAttachmentBytes)
}

func provideExecutor(
	log *slog.Logger,
	adapter *discord.Adapter,
	personas *persona.Service,
	collectives *collective.Service,
	resolver *settings.Resolver,
	identities *identity.Manager,
	records *ledger.Service,
	guilds *guild.Service,
	transform *relay.Transformer,
) *relay.Executor {
	return relay.NewExecutor(log, adapter, personas, collectives, resolver,
		identities, records, guilds, transform)
}

func provideReactions(log *slog.Logger, adapter *discord.Adapter, personas *persona.Service, identities *identity.Manager, records *ledger.Service) *relay.Reactions {
	return relay.NewReactions(log, adapter, personas, identities, records)
}

func provideResolver(log *slog.Logger, store *settings.Service) *settings.Resolver {
	return settings.NewResolver(log, store)
}

func provideGateway(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, session *discordgo.Session, executor *relay.Executor, reactions *relay.Reactions) *gateway.Gateway {
	gw := gateway.New(log, session, executor, reactions,
		time.Duration(cfg.Relay.EventTimeoutSeconds)*time.Second)
	lc.Append(fx.Hook{
		OnStart: gw.Start,
		OnStop:  gw.Stop,
	})
	return gw
}

func runMigrate(args []string) {
	cfg, err := provideConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := provideLogger(cfg)

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mosaic migrate <up|down|version|force N>")
		os.Exit(1)
	}
	migrations, err := db.SubMigrations(migrationsfs.MigrationsFS)
	if err != nil {
		log.Error("migration source", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.RunMigrate(log, cfg.Postgres, migrations, args[0], args[1:]); err != nil {
		log.Error("migrate failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}

	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideSession,
			provideAdapter,

			persona.NewService,
			collective.NewService,
			settings.NewService,
			ledger.NewService,
			guild.NewService,

			provideResolver,
			provideIdentityManager,
			provideTransformer,
			provideExecutor,
			provideReactions,
			provideGateway,
		),
		fx.Invoke(func(*gateway.Gateway) {}),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}
