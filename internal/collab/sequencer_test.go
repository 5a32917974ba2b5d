package collab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequencerIsGapless(t *testing.T) {
	seq := NewSequencer(0)
	require.Zero(t, seq.Last())

	for want := uint64(1); want <= 100; want++ {
		require.Equal(t, want, seq.Next())
	}
	require.Equal(t, uint64(100), seq.Last())
}

func TestSequencerResumesAfterRecoveredHistory(t *testing.T) {
	seq := NewSequencer(41)
	require.Equal(t, uint64(41), seq.Last())
	require.Equal(t, uint64(42), seq.Next())
	require.Equal(t, uint64(43), seq.Next())
}
