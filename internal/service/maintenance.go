package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/imposter-server-go/internal/errors"
	"github.com/openclaw/imposter-server-go/internal/game"
	"github.com/openclaw/imposter-server-go/internal/metrics"
	"github.com/openclaw/imposter-server-go/internal/model"
	"github.com/openclaw/imposter-server-go/internal/repository"
)

type CleanupInactiveResult struct {
	PlayersRemoved int `json:"playersRemoved"`
	SessionsEnded  int `json:"sessionsEnded"`
}

// CleanupInactive removes participants whose heartbeat is older than the
// liveness threshold from waiting and playing sessions. A session left empty,
// without its imposter, or with fewer than two players mid-game, is ended.
func (s *GameService) CleanupInactive(ctx context.Context) (*CleanupInactiveResult, error) {
	sessions, err := s.store.List(ctx, repository.ListFilter{
		Statuses: []model.SessionStatus{model.StatusWaiting, model.StatusPlaying},
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	res := &CleanupInactiveResult{}
	for _, summary := range sessions {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		var removed []string
		var ended bool
		sess, err := s.mutate(ctx, "cleanup_inactive", summary.ID, func(sess *model.Session, now time.Time) error {
			removed, ended = s.removeInactive(sess, now)
			if len(removed) == 0 {
				return errNoChange
			}
			return nil
		})
		if err != nil {
			if !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
				log.Warn().Err(err).Str("sessionId", summary.ID).Msg("cleanup-inactive skipped session")
			}
			continue
		}
		if len(removed) == 0 {
			continue
		}

		res.PlayersRemoved += len(removed)
		if ended {
			res.SessionsEnded++
		}
		log.Info().
			Str("sessionId", sess.ID).
			Strs("removed", removed).
			Bool("ended", ended).
			Str("creatorId", sess.CreatorID).
			Msg("inactive players removed")
	}

	metrics.RecordCleanup("inactive_players", res.PlayersRemoved)
	return res, nil
}

// removeInactive drops stale participants from sess and repairs what depended
// on them. It returns the removed ids and whether the session was ended.
func (s *GameService) removeInactive(sess *model.Session, now time.Time) ([]string, bool) {
	var stale []string
	for _, p := range sess.Participants {
		if !p.IsAlive(now, s.settings.HeartbeatTimeout) {
			stale = append(stale, p.PlayerID)
		}
	}
	if len(stale) == 0 {
		return nil, false
	}

	var imposterGone bool
	var imposterName string
	for _, id := range stale {
		if id == sess.ImposterID {
			imposterGone = true
			if p := sess.Participant(id); p != nil {
				imposterName = p.DisplayName
			}
		}
		for voter, target := range sess.Ballots {
			if voter == id || target == id {
				delete(sess.Ballots, voter)
			}
		}
		sess.RemoveParticipant(id)
	}
	game.RecountVotes(sess)

	if !sess.InRoster(sess.CreatorID) && len(sess.Roster) > 0 {
		sess.CreatorID = sess.Roster[0]
	}

	ended := false
	switch {
	case len(sess.Roster) == 0:
		ended = true
	case sess.Status == model.StatusPlaying && imposterGone:
		// A resolved round keeps its result; only an open round is forfeited.
		if sess.Phase != model.PhaseResult {
			game.Forfeit(sess, imposterName, now)
		}
		ended = true
	case sess.Status == model.StatusPlaying && len(sess.Roster) < 2:
		ended = true
	}
	if ended {
		game.End(sess, now)
	}
	return stale, ended
}

// Cleanup deletes ended sessions, sessions older than the retention period
// and lobbies that never started within the stale-lobby threshold. Sessions
// written since they were listed are left for the next pass.
func (s *GameService) Cleanup(ctx context.Context) (int, error) {
	sessions, err := s.store.List(ctx, repository.ListFilter{})
	if err != nil {
		return 0, apperrors.Database(err)
	}

	now := s.now()
	removed := 0
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !s.expendable(&sess, now) {
			continue
		}

		err := s.store.Delete(ctx, sess.ID, sess.Version)
		switch {
		case err == nil:
			removed++
			log.Debug().
				Str("sessionId", sess.ID).
				Str("status", string(sess.Status)).
				Msg("session swept")
		case errors.Is(err, repository.ErrVersionConflict), errors.Is(err, repository.ErrNotFound):
			// Written or removed concurrently.
		default:
			log.Error().Err(err).Str("sessionId", sess.ID).Msg("failed to delete session")
		}
	}

	metrics.RecordCleanup("sessions", removed)
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("stale sessions cleaned up")
	}
	return removed, nil
}

func (s *GameService) expendable(sess *model.Session, now time.Time) bool {
	age := now.Sub(sess.CreatedAt)
	switch {
	case sess.Status == model.StatusEnded:
		return true
	case age > s.settings.SessionRetention:
		return true
	case sess.Status == model.StatusWaiting && age > s.settings.StaleLobbyAge:
		return true
	}
	return false
}

// ExpirePhases advances every playing session whose deadline has passed.
// It performs the same step a read would, for sessions nobody is polling.
// Sessions a concurrent reader already advanced are not counted.
func (s *GameService) ExpirePhases(ctx context.Context) (int, error) {
	sessions, err := s.store.List(ctx, repository.ListFilter{
		Statuses: []model.SessionStatus{model.StatusPlaying},
	})
	if err != nil {
		return 0, apperrors.Database(err)
	}

	now := s.now()
	advanced := 0
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return advanced, ctx.Err()
		}
		if sess.PhaseDeadline == nil || now.Before(*sess.PhaseDeadline) {
			continue
		}
		_, expired, err := s.commit(ctx, "expire_phases", sess.ID, func(*model.Session, time.Time) error {
			return errNoChange
		})
		if err != nil {
			if !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
				log.Warn().Err(err).Str("sessionId", sess.ID).Msg("phase expiry skipped session")
			}
			continue
		}
		if expired {
			advanced++
		}
	}
	return advanced, nil
}
