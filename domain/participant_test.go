package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipant_AdvanceLastRead_Monotonic(t *testing.T) {
	p := Participant{User: "alice", Room: "r1"}
	now := time.Now().UTC()

	require.True(t, p.AdvanceLastRead(now))
	require.Equal(t, now, *p.LastRead)

	// Earlier or equal timestamps never regress the cursor.
	require.False(t, p.AdvanceLastRead(now))
	require.False(t, p.AdvanceLastRead(now.Add(-time.Minute)))
	require.Equal(t, now, *p.LastRead)

	later := now.Add(time.Second)
	require.True(t, p.AdvanceLastRead(later))
	require.Equal(t, later, *p.LastRead)
}
