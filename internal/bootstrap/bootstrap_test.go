package bootstrap_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-filing/internal/bootstrap"
	"github.com/smallbiznis/valora-filing/internal/config"
	"github.com/smallbiznis/valora-filing/internal/repository"
)

func TestOpenRepositoryMemory(t *testing.T) {
	repo, closeFn, err := bootstrap.OpenRepository(context.Background(), config.Config{StoreBackend: config.StoreMemory}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &repository.MemorySubmissionRepo{}, repo)

	_, _, err = bootstrap.OpenRepository(context.Background(), config.Config{StoreBackend: "sqlite"}, nil)
	require.Error(t, err)
}

func TestNewTaxClientAndPoller(t *testing.T) {
	cfg := config.Config{
		ClientID:            "client",
		ClientSecret:        "0123456789abcdef0123456789abcdef",
		UserToken:           "user",
		Sandbox:             true,
		SandboxOAuthURL:     config.DefaultSandboxOAuthURL,
		SandboxAPIURL:       config.DefaultSandboxAPIURL,
		HTTPTimeout:         time.Second,
		PollInitialInterval: 2 * time.Second,
	}
	client := bootstrap.NewTaxClient(cfg, zap.NewNop())
	require.True(t, client.HasCredentials())
	require.True(t, client.Sandbox())
	require.False(t, client.IsAuthenticated())

	p := bootstrap.NewPoller(cfg, zap.NewNop())
	require.Equal(t, 2*time.Second, p.Config().InitialInterval)
	require.Equal(t, time.Hour, p.Config().MaxDuration)
}
