package model

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionClone(t *testing.T) {
	t.Run("copies are independent", func(t *testing.T) {
		deadline := time.Now()
		s := &Session{
			ID:            "ABCDE",
			Roster:        pq.StringArray{"a", "b"},
			Ballots:       Ballots{"a": "b"},
			PhaseDeadline: &deadline,
			LastResult:    &RoundResult{VoteCounts: map[string]int{"b": 1}},
			Participants:  []Participant{{PlayerID: "a"}, {PlayerID: "b"}},
		}

		c := s.Clone()
		c.Roster[0] = "z"
		c.Ballots["a"] = "z"
		*c.PhaseDeadline = deadline.Add(time.Hour)
		c.LastResult.VoteCounts["b"] = 9
		c.Participants[0].VotesReceived = 3

		assert.Equal(t, "a", s.Roster[0])
		assert.Equal(t, "b", s.Ballots["a"])
		assert.Equal(t, deadline, *s.PhaseDeadline)
		assert.Equal(t, 1, s.LastResult.VoteCounts["b"])
		assert.Equal(t, 0, s.Participants[0].VotesReceived)
	})

	t.Run("nil session clones to nil", func(t *testing.T) {
		var s *Session
		assert.Nil(t, s.Clone())
	})
}

func TestRemoveParticipant(t *testing.T) {
	s := &Session{
		Roster:       pq.StringArray{"a", "b", "c"},
		Participants: []Participant{{PlayerID: "a"}, {PlayerID: "b"}, {PlayerID: "c"}},
	}
	s.RemoveParticipant("b")

	assert.Equal(t, pq.StringArray{"a", "c"}, s.Roster)
	require.Len(t, s.Participants, 2)
	assert.Nil(t, s.Participant("b"))
	assert.False(t, s.InRoster("b"))
}

func TestBallotsSQL(t *testing.T) {
	t.Run("nil ballots store as empty object", func(t *testing.T) {
		var b Ballots
		v, err := b.Value()
		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), v)
	})

	t.Run("scan from bytes", func(t *testing.T) {
		var b Ballots
		require.NoError(t, b.Scan([]byte(`{"a":"b","c":"b"}`)))
		assert.Equal(t, map[string]int{"b": 2}, b.Counts())
	})

	t.Run("scan rejects unknown types", func(t *testing.T) {
		var b Ballots
		assert.Error(t, b.Scan(42))
	})
}

func TestRoundResultScanNull(t *testing.T) {
	var r RoundResult
	require.NoError(t, r.Scan(nil))
	assert.Empty(t, r.VotedOutID)
}

func TestParticipantIsAlive(t *testing.T) {
	now := time.Now()
	p := Participant{LastHeartbeatAt: now.Add(-90 * time.Second)}
	assert.True(t, p.IsAlive(now, 2*time.Minute))
	assert.False(t, p.IsAlive(now, time.Minute))
}
