package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to EnrollmentStatus }{
		{StatusPending, StatusInAnalysis},
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusWaitlist},
		{StatusPending, StatusRejected},
		{StatusInAnalysis, StatusConfirmed},
		{StatusInAnalysis, StatusWaitlist},
		{StatusInAnalysis, StatusRejected},
	}
	for _, tc := range allowed {
		require.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	// Terminal statuses never move again, and the flow never goes backwards.
	denied := []struct{ from, to EnrollmentStatus }{
		{StatusInAnalysis, StatusPending},
		{StatusConfirmed, StatusInAnalysis},
		{StatusConfirmed, StatusRejected},
		{StatusWaitlist, StatusConfirmed},
		{StatusRejected, StatusPending},
		{StatusPending, StatusPending},
	}
	for _, tc := range denied {
		require.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []EnrollmentStatus{StatusPending, StatusInAnalysis, StatusConfirmed, StatusWaitlist, StatusRejected} {
		require.True(t, ValidStatus(s))
	}
	require.False(t, ValidStatus("APPROVED"))
	require.False(t, ValidStatus(""))
}

func TestTokenPattern(t *testing.T) {
	for _, token := range []string{"R00001", "R99999"} {
		require.True(t, TokenPattern.MatchString(token), token)
	}
	for _, token := range []string{"r00001", "R0001", "R000001", "X00001", "00001"} {
		require.False(t, TokenPattern.MatchString(token), token)
	}
}

func TestSeatHoldingStatuses(t *testing.T) {
	holding := map[EnrollmentStatus]bool{}
	for _, s := range SeatHoldingStatuses {
		holding[s] = true
	}
	require.True(t, holding[StatusPending])
	require.True(t, holding[StatusInAnalysis])
	require.True(t, holding[StatusConfirmed])
	require.False(t, holding[StatusWaitlist])
	require.False(t, holding[StatusRejected])
}
