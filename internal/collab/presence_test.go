package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresenceSweepEvictsSilentConnections(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewPresenceTracker()

	tracker.Track("conn-a", base)
	tracker.Track("conn-b", base)
	tracker.Track("conn-c", base)
	require.Equal(t, 3, tracker.Len())

	// conn-b keeps heartbeating; the others fall silent.
	tracker.Touch("conn-b", base.Add(50*time.Second))

	expired := tracker.Sweep(base.Add(70*time.Second), time.Minute)
	require.Equal(t, []string{"conn-a", "conn-c"}, expired)
	require.Equal(t, 1, tracker.Len())

	// Swept connections are gone; a second sweep finds nothing.
	require.Empty(t, tracker.Sweep(base.Add(71*time.Second), time.Minute))
}

func TestPresenceTouchIgnoresUnknownConnections(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewPresenceTracker()

	tracker.Touch("ghost", base)
	require.Zero(t, tracker.Len())
}

func TestPresenceForget(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewPresenceTracker()

	tracker.Track("conn-a", base)
	tracker.Forget("conn-a")
	require.Zero(t, tracker.Len())
	require.Empty(t, tracker.Sweep(base.Add(time.Hour), time.Minute))
}

func TestPresenceSweepExactBoundaryIsNotExpired(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := NewPresenceTracker()

	tracker.Track("conn-a", base)

	// Silence equal to the timeout is still within bounds.
	require.Empty(t, tracker.Sweep(base.Add(time.Minute), time.Minute))
	require.Equal(t, []string{"conn-a"}, tracker.Sweep(base.Add(time.Minute+time.Nanosecond), time.Minute))
}
