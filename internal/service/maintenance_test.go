package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/imposter-server-go/internal/errors"
	"github.com/openclaw/imposter-server-go/internal/model"
	"github.com/openclaw/imposter-server-go/internal/repository"
)

func (f *fixture) heartbeatAll(t *testing.T, id string, players []string, skip string) {
	t.Helper()
	for _, p := range players {
		if p == skip {
			continue
		}
		require.NoError(t, f.svc.Heartbeat(context.Background(), id, p))
	}
}

// assertImposterBound checks that a playing session has exactly one imposter
// and that it is the one the session names.
func assertImposterBound(t *testing.T, s *model.Session) {
	t.Helper()
	if s.Status != model.StatusPlaying {
		return
	}
	var flagged []string
	for _, p := range s.Participants {
		if p.IsImposter {
			flagged = append(flagged, p.PlayerID)
		}
	}
	assert.Equal(t, []string{s.ImposterID}, flagged)
}

func TestCleanupInactive(t *testing.T) {
	ctx := context.Background()

	t.Run("ends a game left with one player", func(t *testing.T) {
		f := newFixture(t)
		id, players := f.started(t, 2)

		f.clock.Advance(100 * time.Second)
		f.heartbeatAll(t, id, players, players[0])
		f.clock.Advance(30 * time.Second)

		res, err := f.svc.CleanupInactive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.PlayersRemoved)
		assert.Equal(t, 1, res.SessionsEnded)

		s := f.session(t, id)
		assert.Equal(t, model.StatusEnded, s.Status)
		assert.NotNil(t, s.EndedAt)
		assert.Equal(t, []string{players[1]}, []string(s.Roster))
		assert.Equal(t, players[1], s.CreatorID)
		assert.Len(t, s.Participants, 1)
	})

	t.Run("imposter leaving forfeits the round", func(t *testing.T) {
		f := newFixture(t)
		id, players := f.started(t, 4)
		imposter := f.session(t, id).ImposterID

		f.clock.Advance(100 * time.Second)
		f.heartbeatAll(t, id, players, imposter)
		f.clock.Advance(30 * time.Second)

		res, err := f.svc.CleanupInactive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.PlayersRemoved)
		assert.Equal(t, 1, res.SessionsEnded)

		s := f.session(t, id)
		assert.Equal(t, model.StatusEnded, s.Status)
		assert.Equal(t, model.PhaseResult, s.Phase)
		require.NotNil(t, s.LastResult)
		assert.True(t, s.LastResult.Forfeit)
		assert.Equal(t, imposter, s.LastResult.ImposterID)
		assert.Equal(t, model.WinnersPlayers, s.LastResult.Winners)
	})

	t.Run("imposter leaving during result ends the game", func(t *testing.T) {
		f := newFixture(t)
		id, players := f.started(t, 4)
		imposter := f.session(t, id).ImposterID
		_, err := f.svc.TransitionToVoting(ctx, id)
		require.NoError(t, err)
		_, err = f.svc.EndVoting(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.PhaseResult, f.session(t, id).Phase)

		f.clock.Advance(100 * time.Second)
		f.heartbeatAll(t, id, players, imposter)
		f.clock.Advance(30 * time.Second)

		res, err := f.svc.CleanupInactive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.PlayersRemoved)
		assert.Equal(t, 1, res.SessionsEnded)

		s := f.session(t, id)
		assert.Equal(t, model.StatusEnded, s.Status)
		assert.NotNil(t, s.EndedAt)
		assert.Len(t, s.Roster, 3)
		assertImposterBound(t, s)

		require.NotNil(t, s.LastResult)
		assert.False(t, s.LastResult.Forfeit)
		assert.Equal(t, imposter, s.LastResult.ImposterID)
		assert.Equal(t, model.WinnersImposter, s.LastResult.Winners)

		_, err = f.svc.NewRound(ctx, id, s.CreatorID)
		requireCode(t, err, apperrors.ErrCodeInvalidState)
	})

	t.Run("drops ballots cast by and for removed players", func(t *testing.T) {
		f := newFixture(t, func(s *Settings) { s.VotingDuration = 10 * time.Minute })
		id, players := f.started(t, 4)
		imposter := f.session(t, id).ImposterID
		_, err := f.svc.TransitionToVoting(ctx, id)
		require.NoError(t, err)

		var crew []string
		for _, p := range players {
			if p != imposter {
				crew = append(crew, p)
			}
		}
		leaver := crew[0]
		_, err = f.svc.Vote(ctx, id, leaver, crew[1])
		require.NoError(t, err)
		_, err = f.svc.Vote(ctx, id, crew[1], leaver)
		require.NoError(t, err)
		_, err = f.svc.Vote(ctx, id, crew[2], imposter)
		require.NoError(t, err)

		f.clock.Advance(30 * time.Second)
		f.heartbeatAll(t, id, players, leaver)
		f.clock.Advance(100 * time.Second)

		res, err := f.svc.CleanupInactive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.PlayersRemoved)
		assert.Zero(t, res.SessionsEnded)

		s := f.session(t, id)
		assert.Equal(t, model.PhaseVoting, s.Phase)
		assertImposterBound(t, s)
		assert.NotContains(t, []string(s.Roster), leaver)
		assert.Equal(t, model.Ballots{crew[2]: imposter}, s.Ballots)
		assert.Equal(t, 1, s.Participant(imposter).VotesReceived)
		assert.Zero(t, s.Participant(crew[1]).VotesReceived)
	})

	t.Run("hands the lobby to the next player", func(t *testing.T) {
		f := newFixture(t)
		id, players := f.lobby(t, 3)

		f.clock.Advance(100 * time.Second)
		f.heartbeatAll(t, id, players, players[0])
		f.clock.Advance(30 * time.Second)

		res, err := f.svc.CleanupInactive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.PlayersRemoved)
		assert.Zero(t, res.SessionsEnded)

		s := f.session(t, id)
		assert.Equal(t, model.StatusWaiting, s.Status)
		assert.Equal(t, players[1], s.CreatorID)
		assert.Equal(t, []string{players[1], players[2]}, []string(s.Roster))
	})

	t.Run("leaves live sessions alone", func(t *testing.T) {
		f := newFixture(t)
		id, _ := f.lobby(t, 3)
		before := f.session(t, id).Version

		res, err := f.svc.CleanupInactive(ctx)
		require.NoError(t, err)
		assert.Zero(t, res.PlayersRemoved)
		assert.Equal(t, before, f.session(t, id).Version)
	})
}

func (f *fixture) end(t *testing.T, id string) {
	t.Helper()
	s := f.session(t, id)
	s.Status = model.StatusEnded
	require.NoError(t, f.store.Update(context.Background(), s))
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes ended sessions and stale lobbies", func(t *testing.T) {
		f := newFixture(t)
		staleLobby, _ := f.lobby(t, 1)
		f.clock.Advance(31 * time.Minute)
		freshLobby, _ := f.lobby(t, 1)
		ended, _ := f.lobby(t, 2)
		f.end(t, ended)
		playing, _ := f.started(t, 2)

		removed, err := f.svc.Cleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		for id, kept := range map[string]bool{staleLobby: false, ended: false, freshLobby: true, playing: true} {
			s, err := f.store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, kept, s != nil, id)
		}
	})

	t.Run("deletes games past retention", func(t *testing.T) {
		f := newFixture(t)
		id, _ := f.started(t, 2)
		f.clock.Advance(7 * time.Hour)

		removed, err := f.svc.Cleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		s, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestExpirePhases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.started(t, 3)
	idle, _ := f.started(t, 2)

	n, err := f.svc.ExpirePhases(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(181 * time.Second)
	n, err = f.svc.ExpirePhases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.PhaseVoting, f.session(t, id).Phase)
	assert.Equal(t, model.PhaseVoting, f.session(t, idle).Phase)

	f.clock.Advance(61 * time.Second)
	n, err = f.svc.ExpirePhases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.PhaseResult, f.session(t, id).Phase)

	n, err = f.svc.ExpirePhases(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// snapshotStore serves List from a fixed snapshot, as a sweep sees sessions
// listed before another request touched them.
type snapshotStore struct {
	repository.SessionStore
	listed []model.Session
}

func (s snapshotStore) List(ctx context.Context, filter repository.ListFilter) ([]model.Session, error) {
	return s.listed, nil
}

func TestExpirePhasesSkipsAlreadyAdvanced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, players := f.started(t, 3)

	f.clock.Advance(181 * time.Second)
	listed, err := f.store.List(ctx, repository.ListFilter{Statuses: []model.SessionStatus{model.StatusPlaying}})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = f.svc.GetState(ctx, id, players[0])
	require.NoError(t, err)
	version := f.session(t, id).Version

	svc := NewGameService(snapshotStore{SessionStore: f.store, listed: listed}, f.topics, testSettings(),
		WithClock(f.clock.Now))
	n, err := svc.ExpirePhases(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	s := f.session(t, id)
	assert.Equal(t, model.PhaseVoting, s.Phase)
	assert.Equal(t, version, s.Version)
}
