package jobs

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/imposter-server-go/internal/model"
	"github.com/openclaw/imposter-server-go/internal/repository"
	"github.com/openclaw/imposter-server-go/internal/service"
	"github.com/openclaw/imposter-server-go/internal/topic"
)

type mockSweeper struct {
	mock.Mock
}

func (m *mockSweeper) ExpirePhases(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockSweeper) CleanupInactive(ctx context.Context) (*service.CleanupInactiveResult, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*service.CleanupInactiveResult)
	return res, args.Error(1)
}

func (m *mockSweeper) Cleanup(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type countingSweeper struct {
	expire, inactive, cleanup atomic.Int32
}

func (c *countingSweeper) ExpirePhases(context.Context) (int, error) {
	c.expire.Add(1)
	return 0, nil
}

func (c *countingSweeper) CleanupInactive(context.Context) (*service.CleanupInactiveResult, error) {
	c.inactive.Add(1)
	return &service.CleanupInactiveResult{}, nil
}

func (c *countingSweeper) Cleanup(context.Context) (int, error) {
	c.cleanup.Add(1)
	return 0, nil
}

func TestSweepJob(t *testing.T) {
	t.Run("creates job with correct interval", func(t *testing.T) {
		job := NewSweepJob(&mockSweeper{}, 5*time.Minute)

		assert.NotNil(t, job)
		assert.Equal(t, 5*time.Minute, job.interval)
	})

	t.Run("runs every step on start", func(t *testing.T) {
		sweeper := &countingSweeper{}

		job := NewSweepJob(sweeper, time.Hour)
		job.Start()
		require.Eventually(t, func() bool {
			return sweeper.cleanup.Load() == 1
		}, time.Second, 5*time.Millisecond)
		job.Stop()

		assert.EqualValues(t, 1, sweeper.expire.Load())
		assert.EqualValues(t, 1, sweeper.inactive.Load())
	})

	t.Run("a failing step does not stop the others", func(t *testing.T) {
		sweeper := &mockSweeper{}
		sweeper.On("ExpirePhases", mock.Anything).Return(0, errors.New("store down"))
		sweeper.On("CleanupInactive", mock.Anything).Return(nil, errors.New("store down"))
		sweeper.On("Cleanup", mock.Anything).Return(0, nil)

		job := NewSweepJob(sweeper, time.Hour)
		job.sweep()

		sweeper.AssertNumberOfCalls(t, "ExpirePhases", 1)
		sweeper.AssertNumberOfCalls(t, "CleanupInactive", 1)
		sweeper.AssertNumberOfCalls(t, "Cleanup", 1)
	})

	t.Run("ticks repeatedly until stopped", func(t *testing.T) {
		sweeper := &countingSweeper{}

		job := NewSweepJob(sweeper, 10*time.Millisecond)
		job.Start()
		require.Eventually(t, func() bool {
			return sweeper.cleanup.Load() >= 3
		}, time.Second, 5*time.Millisecond)
		job.Stop()

		runs := sweeper.cleanup.Load()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, runs, sweeper.cleanup.Load())
		assert.Equal(t, runs, sweeper.expire.Load())
	})
}

func TestSweepJobWithGameService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	store := repository.NewMemoryStore()
	topics := topic.ProviderFunc(func(context.Context, topic.Request) (topic.Pair, error) {
		return topic.Pair{PlayerTopic: "Lion", ImposterTopic: "Tiger"}, nil
	})
	svc := service.NewGameService(store, topics, service.Settings{
		DiscussionDuration: time.Minute,
		VotingDuration:     time.Minute,
		HeartbeatTimeout:   time.Hour,
		SessionRetention:   time.Hour,
		StaleLobbyAge:      time.Hour,
		AvailableWindow:    time.Hour,
		DefaultMaxPlayers:  4,
		MaxPlayersCeiling:  8,
		CommitRetries:      3,
	}, service.WithClock(func() time.Time { return now }), service.WithRand(rand.New(rand.NewPCG(1, 2))))

	created, err := svc.Create(ctx, service.CreateParams{Category: "animals", PlayerName: "Host"})
	require.NoError(t, err)
	_, err = svc.Join(ctx, created.SessionID, "Guest")
	require.NoError(t, err)
	_, err = svc.Start(ctx, created.SessionID, created.PlayerID)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	NewSweepJob(svc, time.Hour).sweep()

	s, err := store.Get(ctx, created.SessionID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, model.PhaseVoting, s.Phase)
}
