package filing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/valora-filing/internal/domain/filing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to filing.State
		ok       bool
	}{
		{filing.StateInProgress, filing.StateFiled, true},
		{filing.StateInProgress, filing.StateRejected, true},
		{filing.StateInProgress, filing.StateAccepted, false},
		{filing.StateFiled, filing.StateAccepted, true},
		{filing.StateFiled, filing.StateRejected, true},
		{filing.StateFiled, filing.StateInProgress, false},
		{filing.StateAccepted, filing.StateFiled, false},
		{filing.StateAccepted, filing.StateRejected, false},
		{filing.StateRejected, filing.StateInProgress, false},
		{filing.StateRejected, filing.StateAccepted, false},
		{filing.StateAccepted, filing.StateAccepted, true},
		{filing.State("Bogus"), filing.StateFiled, false},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.ok, filing.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	now := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	sub := filing.NewFormSubmission(1, "FormW2", now)
	observed := []filing.State{sub.State}

	attempts := []filing.State{
		filing.StateFiled,
		filing.StateInProgress,
		filing.StateAccepted,
		filing.StateFiled,
		filing.StateRejected,
		filing.StateInProgress,
	}
	for i, next := range attempts {
		err := sub.Advance(next, now.Add(time.Duration(i+1)*time.Minute))
		if err != nil {
			require.True(t, errors.Is(err, filing.ErrInvalidTransition))
		}
		observed = append(observed, sub.State)
	}

	require.Equal(t, filing.StateAccepted, sub.State)
	require.NotNil(t, sub.FiledAt)
	require.NotNil(t, sub.CompletedAt)

	highest := -1
	order := map[filing.State]int{
		filing.StateInProgress: 0,
		filing.StateFiled:      1,
		filing.StateAccepted:   2,
		filing.StateRejected:   2,
	}
	for _, s := range observed {
		require.GreaterOrEqual(t, order[s], highest, "state went backwards: %v", observed)
		highest = order[s]
	}
}

func TestObserveResolvesAcknowledgement(t *testing.T) {
	now := time.Now()

	t.Run("pending keeps filed", func(t *testing.T) {
		sub := filedSubmission(now)
		require.NoError(t, sub.Observe(filing.StatusResult{Status: "TRANSMITTED", AcknowledgementStatus: "Pending"}, now))
		require.Equal(t, filing.StateFiled, sub.State)
		require.NotNil(t, sub.LastStatus)
	})

	t.Run("accepted", func(t *testing.T) {
		sub := filedSubmission(now)
		require.NoError(t, sub.Observe(filing.StatusResult{AcknowledgementStatus: "ACCEPTED"}, now))
		require.Equal(t, filing.StateAccepted, sub.State)
	})

	t.Run("rejected", func(t *testing.T) {
		sub := filedSubmission(now)
		require.NoError(t, sub.Observe(filing.StatusResult{AcknowledgementStatus: "rejected"}, now))
		require.Equal(t, filing.StateRejected, sub.State)
	})

	t.Run("agency errors on a terminal status reject", func(t *testing.T) {
		sub := filedSubmission(now)
		result := filing.StatusResult{
			AcknowledgementStatus: "Accepted",
			IRSErrors:             []filing.IRSError{{Code: "R0000-504", Message: "TIN mismatch"}},
		}
		require.NoError(t, sub.Observe(result, now))
		require.Equal(t, filing.StateRejected, sub.State)
		require.Len(t, sub.IRSErrors, 1)
	})
}

func TestParseState(t *testing.T) {
	s, err := filing.ParseState("filed")
	require.NoError(t, err)
	require.Equal(t, filing.StateFiled, s)

	_, err = filing.ParseState("cancelled")
	require.Error(t, err)
}

func filedSubmission(now time.Time) *filing.FormSubmission {
	sub := filing.NewFormSubmission(7, "Form1099NEC", now)
	sub.SubmissionID = "sub-1"
	_ = sub.Advance(filing.StateFiled, now)
	return sub
}
