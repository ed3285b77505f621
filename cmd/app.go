package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/chxlky/trello-matrix-bot/database"
	"github.com/chxlky/trello-matrix-bot/integrations"
	"github.com/chxlky/trello-matrix-bot/internal/config"
	"github.com/chxlky/trello-matrix-bot/internal/options"
	"github.com/chxlky/trello-matrix-bot/internal/resolver"
	"github.com/chxlky/trello-matrix-bot/internal/watch"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds the collaborators shared by the server and the CLI commands.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	trello   *integrations.TrelloClient
	matrix   *integrations.MatrixClient
	watches  *database.WatchStore
	tokens   *database.TokenStore
	webhooks *database.WebhookStore
	options  *options.Store
	resolver *resolver.Resolver
	bus      *options.RedisBus
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db := database.Init(cfg.Database.Path)

	matrixClient, err := integrations.NewMatrixClient(cfg.Matrix.HomeserverURL, cfg.Matrix.AccessToken)
	if err != nil {
		return nil, err
	}
	botUserID, err := matrixClient.WhoAmI(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to identify bot account: %w", err)
	}
	zap.L().Info("Authenticated with Matrix", zap.String("userID", botUserID))

	a := &app{
		cfg:      cfg,
		db:       db,
		trello:   integrations.NewTrelloClient(cfg.Trello.APIKey, cfg.Trello.APIToken, cfg.Trello.CallbackURL),
		matrix:   matrixClient,
		watches:  &database.WatchStore{DB: db},
		tokens:   &database.TokenStore{DB: db},
		webhooks: &database.WebhookStore{DB: db},
	}

	records := &integrations.MatrixRecordStore{Client: matrixClient}
	a.options = options.NewStore(records, a.watches, "_"+botUserID)
	a.resolver = resolver.New(a.trello, a.options)

	if cfg.Redis.Addr != "" {
		bus, err := options.NewRedisBus(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Channel)
		if err != nil {
			return nil, err
		}
		if err := bus.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.options.SetNotifier(bus)
		a.bus = bus
	}

	return a, nil
}

// broadcastInvalidator recomputes locally and tells the other instances.
type broadcastInvalidator struct {
	store *options.Store
	bus   *options.RedisBus
}

func (b broadcastInvalidator) OnConfigRecordChanged(ctx context.Context, roomID string) error {
	if err := b.store.OnConfigRecordChanged(ctx, roomID); err != nil {
		return err
	}
	return b.bus.ConfigChanged(ctx, roomID)
}

func (a *app) watchService() *watch.Service {
	var invalidator watch.Invalidator = a.options
	if a.bus != nil {
		invalidator = broadcastInvalidator{store: a.options, bus: a.bus}
	}
	return &watch.Service{
		Tokens:      a.tokens,
		Resolver:    a.resolver,
		Trello:      a.trello,
		Webhooks:    a.webhooks,
		Watches:     a.watches,
		Invalidator: invalidator,
		IsWebhookExists: func(err error) bool {
			return errors.Is(err, integrations.ErrWebhookExists)
		},
	}
}

func (a *app) close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			zap.L().Error("Error closing redis", zap.Error(err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			zap.L().Error("Error closing database", zap.Error(err))
		} else {
			zap.L().Info("Database connection closed.")
		}
	}
}
