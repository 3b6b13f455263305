package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/adapter/taxapi"
	"github.com/smallbiznis/valora-filing/internal/bootstrap"
	"github.com/smallbiznis/valora-filing/internal/config"
	httptransport "github.com/smallbiznis/valora-filing/internal/http"
	"github.com/smallbiznis/valora-filing/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-filing/internal/http/middleware"
	apimiddleware "github.com/smallbiznis/valora-filing/internal/middleware"
	"github.com/smallbiznis/valora-filing/internal/poller"
	"github.com/smallbiznis/valora-filing/internal/repository"
	"github.com/smallbiznis/valora-filing/internal/server"
	"github.com/smallbiznis/valora-filing/internal/service"
	"github.com/smallbiznis/valora-filing/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			bootstrap.NewLogger,
			newTelemetry,
			bootstrap.NewSnowflake,
			bootstrap.NewTaxClient,
			newRequester,
			bootstrap.NewPoller,
			newTracker,
			newSubmissionRepository,
			newRegistry,
			handler.NewFilingHandler,
			httpmiddleware.NewAuth,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, warmToken, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newRequester(client *taxapi.Client) taxapi.Requester {
	return client
}

func newTracker(lc fx.Lifecycle, p *poller.Poller, logger *zap.Logger) *service.Tracker {
	tracker := service.NewTracker(p, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping poll sessions", zap.Int("active", tracker.Active()))
			return tracker.StopAll(ctx)
		},
	})
	return tracker
}

func newSubmissionRepository(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.SubmissionRepository, error) {
	repo, closeFn, err := bootstrap.OpenRepository(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeFn()
			return nil
		},
	})
	return repo, nil
}

func newRegistry(client taxapi.Requester, repo repository.SubmissionRepository, tracker *service.Tracker, node *snowflake.Node, logger *zap.Logger) *service.Registry {
	return service.NewRegistry(client, repo, tracker, node, service.WithLogger(logger))
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

// warmToken fetches the first access token in the background so bad credentials show
// up in the logs at startup rather than on the first filing.
func warmToken(lc fx.Lifecycle, client *taxapi.Client, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if _, err := client.Authenticate(ctx); err != nil {
					logger.Warn("initial tax api authentication failed", zap.Error(err))
					return
				}
				logger.Info("tax api authenticated", zap.Bool("sandbox", client.Sandbox()))
			}()
			return nil
		},
	})
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
