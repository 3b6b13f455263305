package service_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
	"github.com/smallbiznis/valora-filing/internal/poller"
	"github.com/smallbiznis/valora-filing/internal/repository"
	"github.com/smallbiznis/valora-filing/internal/service"
)

type nopRequester struct{}

func (nopRequester) Request(context.Context, string, string, any, any) error { return nil }

func TestRegistryFor(t *testing.T) {
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	repo := repository.NewMemorySubmissionRepo()
	reg := service.NewRegistry(nopRequester{}, repo, service.NewTracker(poller.New(poller.Config{}), nil), node)

	s, err := reg.For("formw2")
	require.NoError(t, err)
	require.Equal(t, "FormW2", s.FormPath())

	_, err = reg.For("Form8879")
	require.ErrorIs(t, err, filing.ErrUnknownForm)

	_, _, err = reg.ForSubmission(context.Background(), 42)
	require.ErrorIs(t, err, filing.ErrSubmissionNotFound)
}
