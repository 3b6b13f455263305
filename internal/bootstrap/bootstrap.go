package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/adapter/cache"
	"github.com/smallbiznis/valora-filing/internal/adapter/taxapi"
	"github.com/smallbiznis/valora-filing/internal/config"
	"github.com/smallbiznis/valora-filing/internal/poller"
	"github.com/smallbiznis/valora-filing/internal/repository"
)

const connectTimeout = 10 * time.Second

// NewLogger builds a development or production logger by environment and installs it globally.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// NewSnowflake returns the id node for local submission records.
func NewSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// NewTaxClient builds the authenticated TaxBandits client from configuration.
func NewTaxClient(cfg config.Config, logger *zap.Logger) *taxapi.Client {
	return taxapi.NewClient(
		taxapi.Credentials{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			UserToken:    cfg.UserToken,
			Sandbox:      cfg.Sandbox,
		},
		taxapi.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		taxapi.WithLogger(logger),
		taxapi.WithSandboxEndpoints(taxapi.Endpoints{OAuthURL: cfg.SandboxOAuthURL, APIURL: cfg.SandboxAPIURL}),
		taxapi.WithProductionEndpoints(taxapi.Endpoints{OAuthURL: cfg.ProductionOAuthURL, APIURL: cfg.ProductionAPIURL}),
	)
}

// NewPoller builds the status poller from the POLL_* settings.
func NewPoller(cfg config.Config, logger *zap.Logger) *poller.Poller {
	return poller.New(poller.Config{
		InitialInterval: cfg.PollInitialInterval,
		LongInterval:    cfg.PollLongInterval,
		SwitchAfter:     cfg.PollSwitchAfter,
		MaxDuration:     cfg.PollMaxDuration,
	}, poller.WithLogger(logger))
}

// OpenRepository connects the configured submission store. The returned close
// function releases its connections.
func OpenRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (repository.SubmissionRepository, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		repo := repository.NewPostgresSubmissionRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("submission store ready", zap.String("backend", cfg.StoreBackend))
		return repo, pool.Close, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("submission store ready", zap.String("backend", cfg.StoreBackend), zap.Duration("ttl", cfg.SubmissionTTL))
		return cache.NewRedisSubmissionStore(client, cfg.SubmissionTTL), func() { _ = client.Close() }, nil

	case config.StoreMemory, "":
		logger.Info("submission store ready", zap.String("backend", config.StoreMemory))
		return repository.NewMemorySubmissionRepo(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
