package game

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/imposter-server-go/internal/model"
)

var t0 = time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

func newSession(ids ...string) *model.Session {
	s := &model.Session{
		ID:                "ABCDE",
		CreatorID:         ids[0],
		MaxPlayers:        8,
		Status:            model.StatusWaiting,
		Phase:             model.PhaseNone,
		Ballots:           model.Ballots{},
		DiscussionSeconds: 180,
		VotingSeconds:     60,
	}
	for i, id := range ids {
		s.Roster = append(s.Roster, id)
		s.Participants = append(s.Participants, model.Participant{
			PlayerID:    id,
			DisplayName: "name-" + id,
			JoinedAt:    t0.Add(time.Duration(i) * time.Second),
		})
	}
	return s
}

func TestPickImposter(t *testing.T) {
	t.Run("fails on empty roster", func(t *testing.T) {
		_, err := PickImposter(nil, rand.New(rand.NewPCG(1, 2)))
		assert.ErrorIs(t, err, ErrEmptyRoster)
	})

	t.Run("same seed picks same imposter", func(t *testing.T) {
		roster := []string{"a", "b", "c", "d"}
		first, err := PickImposter(roster, rand.New(rand.NewPCG(7, 7)))
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := PickImposter(roster, rand.New(rand.NewPCG(7, 7)))
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("every member can be picked", func(t *testing.T) {
		roster := []string{"a", "b", "c", "d"}
		rng := rand.New(rand.NewPCG(1, 1))
		seen := map[string]int{}
		for i := 0; i < 2000; i++ {
			id, _ := PickImposter(roster, rng)
			seen[id]++
		}
		assert.Len(t, seen, 4)
		for _, n := range seen {
			assert.InDelta(t, 500, n, 150)
		}
	})
}

func TestAssignRoles(t *testing.T) {
	s := newSession("a", "b", "c")
	require.NoError(t, AssignRoles(s, "Lion", "Tiger", rand.New(rand.NewPCG(3, 4))))

	assert.Equal(t, "Lion", s.PlayerTopic)
	assert.Equal(t, "Tiger", s.ImposterTopic)
	assert.True(t, s.InRoster(s.ImposterID))

	imposters := 0
	for _, p := range s.Participants {
		if p.IsImposter {
			imposters++
			assert.Equal(t, s.ImposterID, p.PlayerID)
		}
	}
	assert.Equal(t, 1, imposters)
}

func TestTallyVotes(t *testing.T) {
	t.Run("strict majority is voted out", func(t *testing.T) {
		s := newSession("a", "b", "c", "d")
		ballots := model.Ballots{"a": "c", "b": "c", "c": "a", "d": "c"}

		tally := TallyVotes(ballots, s.Participants)
		assert.Equal(t, "c", tally.VotedOutID)
		assert.False(t, tally.IsTie)
		assert.Equal(t, 3, tally.Counts["c"])
	})

	t.Run("tie goes to earliest joiner", func(t *testing.T) {
		s := newSession("a", "b", "c", "d")
		ballots := model.Ballots{"a": "d", "b": "c", "c": "d", "d": "c"}

		for i := 0; i < 20; i++ {
			tally := TallyVotes(ballots, s.Participants)
			assert.Equal(t, "c", tally.VotedOutID)
			assert.True(t, tally.IsTie)
		}
	})

	t.Run("tie uses joinedAt not roster position", func(t *testing.T) {
		s := newSession("a", "b", "c")
		s.Participants[2].JoinedAt = t0.Add(-time.Minute)
		ballots := model.Ballots{"a": "b", "c": "b", "b": "c", "x": "c"}

		tally := TallyVotes(ballots, s.Participants)
		assert.Equal(t, "c", tally.VotedOutID)
	})

	t.Run("identical join times fall back to roster order", func(t *testing.T) {
		s := newSession("a", "b", "c")
		for i := range s.Participants {
			s.Participants[i].JoinedAt = t0
		}
		ballots := model.Ballots{"a": "c", "c": "b"}

		tally := TallyVotes(ballots, s.Participants)
		assert.Equal(t, "b", tally.VotedOutID)
	})

	t.Run("no ballots votes nobody out", func(t *testing.T) {
		s := newSession("a", "b")
		tally := TallyVotes(model.Ballots{}, s.Participants)
		assert.Empty(t, tally.VotedOutID)
		assert.False(t, tally.IsTie)
	})
}

func TestPhases(t *testing.T) {
	start := func(t *testing.T) *model.Session {
		s := newSession("a", "b", "c", "d")
		require.NoError(t, StartRound(s, "Lion", "Tiger", rand.New(rand.NewPCG(1, 2)), t0))
		return s
	}

	t.Run("start opens discussion", func(t *testing.T) {
		s := start(t)
		assert.Equal(t, model.StatusPlaying, s.Status)
		assert.Equal(t, model.PhaseDiscussion, s.Phase)
		assert.Equal(t, 1, s.Round)
		require.NotNil(t, s.StartedAt)
		require.NotNil(t, s.PhaseDeadline)
		assert.Equal(t, t0.Add(180*time.Second), *s.PhaseDeadline)
	})

	t.Run("new round keeps startedAt", func(t *testing.T) {
		s := start(t)
		require.NoError(t, StartRound(s, "Cat", "Dog", rand.New(rand.NewPCG(5, 6)), t0.Add(time.Hour)))
		assert.Equal(t, t0, *s.StartedAt)
		assert.Equal(t, 2, s.Round)
	})

	t.Run("expire before deadline is a no-op", func(t *testing.T) {
		s := start(t)
		assert.False(t, Expire(s, t0.Add(179*time.Second)))
		assert.Equal(t, model.PhaseDiscussion, s.Phase)
	})

	t.Run("expired discussion moves to voting once", func(t *testing.T) {
		s := start(t)
		s.Ballots = model.Ballots{"a": "b"}
		now := t0.Add(200 * time.Second)

		assert.True(t, Expire(s, now))
		assert.Equal(t, model.PhaseVoting, s.Phase)
		assert.Empty(t, s.Ballots)
		assert.Equal(t, now.Add(60*time.Second), *s.PhaseDeadline)

		assert.False(t, Expire(s, now))
	})

	t.Run("expired voting resolves", func(t *testing.T) {
		s := start(t)
		EnterVoting(s, t0)
		s.Ballots = model.Ballots{"a": s.ImposterID}

		assert.True(t, Expire(s, t0.Add(61*time.Second)))
		assert.Equal(t, model.PhaseResult, s.Phase)
		assert.Nil(t, s.PhaseDeadline)
		require.NotNil(t, s.LastResult)
	})

	t.Run("resolve catches the imposter", func(t *testing.T) {
		s := start(t)
		EnterVoting(s, t0)
		var voters []string
		for _, id := range s.Roster {
			if id != s.ImposterID {
				voters = append(voters, id)
			}
		}
		for _, v := range voters {
			s.Ballots[v] = s.ImposterID
		}
		s.Ballots[s.ImposterID] = voters[0]

		r := Resolve(s, t0)
		assert.True(t, r.IsImposterCaught)
		assert.Equal(t, s.ImposterID, r.VotedOutID)
		assert.Equal(t, model.WinnersPlayers, r.Winners)
		assert.Equal(t, "Lion", r.PlayerTopic)
		assert.Equal(t, "Tiger", r.ImposterTopic)
		assert.Equal(t, 3, s.Participant(s.ImposterID).VotesReceived)
	})

	t.Run("resolve with no ballots lets the imposter win", func(t *testing.T) {
		s := start(t)
		EnterVoting(s, t0)
		r := Resolve(s, t0)
		assert.False(t, r.IsImposterCaught)
		assert.Empty(t, r.VotedOutID)
		assert.Equal(t, model.WinnersImposter, r.Winners)
	})

	t.Run("waiting sessions never expire", func(t *testing.T) {
		s := newSession("a", "b")
		deadline := t0
		s.PhaseDeadline = &deadline
		assert.False(t, Expire(s, t0.Add(time.Hour)))
	})
}

func TestAllVoted(t *testing.T) {
	s := newSession("a", "b")
	s.Roster = pq.StringArray{"a", "b"}
	s.Ballots = model.Ballots{"a": "b"}
	assert.False(t, AllVoted(s))
	s.Ballots["b"] = "a"
	assert.True(t, AllVoted(s))
}

func TestEnd(t *testing.T) {
	s := newSession("a", "b")
	End(s, t0)
	End(s, t0.Add(time.Hour))
	assert.Equal(t, model.StatusEnded, s.Status)
	assert.Equal(t, t0, *s.EndedAt)
}
