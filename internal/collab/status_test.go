package collab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{StatusScheduled, StatusActive, true},
		{StatusScheduled, StatusPaused, false},
		{StatusScheduled, StatusEnded, false},
		{StatusScheduled, StatusArchived, false},
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusEnded, true},
		{StatusActive, StatusArchived, false},
		{StatusActive, StatusScheduled, false},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusEnded, true},
		{StatusPaused, StatusArchived, false},
		{StatusEnded, StatusArchived, true},
		{StatusEnded, StatusActive, false},
		{StatusEnded, StatusPaused, false},
		{StatusArchived, StatusActive, false},
		{StatusArchived, StatusEnded, false},
	}

	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusScheduled.Terminal())
	require.False(t, StatusActive.Terminal())
	require.False(t, StatusPaused.Terminal())
	require.True(t, StatusEnded.Terminal())
	require.True(t, StatusArchived.Terminal())
}

func TestStatusValid(t *testing.T) {
	require.True(t, StatusScheduled.Valid())
	require.True(t, StatusArchived.Valid())
	require.False(t, SessionStatus("cancelled").Valid())
	require.False(t, SessionStatus("").Valid())
}
