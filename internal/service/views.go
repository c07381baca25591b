package service

import (
	"context"
	"time"

	apperrors "github.com/openclaw/imposter-server-go/internal/errors"
	"github.com/openclaw/imposter-server-go/internal/model"
	"github.com/openclaw/imposter-server-go/internal/repository"
	"github.com/openclaw/imposter-server-go/internal/util"
)

type PlayerView struct {
	PlayerID      string `json:"playerId"`
	PlayerName    string `json:"playerName"`
	IsAlive       bool   `json:"isAlive"`
	VotesReceived int    `json:"votesReceived"`
	IsCreator     bool   `json:"isCreator"`
}

// StateView is what any caller may see of a session. Imposter flags are never
// included; the caller's own topic is, when they are a member of a running game.
type StateView struct {
	SessionID         string              `json:"sessionId"`
	Category          string              `json:"category"`
	Status            model.SessionStatus `json:"status"`
	Phase             model.Phase         `json:"phase"`
	PhaseDeadline     *time.Time          `json:"phaseDeadline,omitempty"`
	SecondsRemaining  int                 `json:"secondsRemaining"`
	Round             int                 `json:"round"`
	CreatorID         string              `json:"creatorId"`
	PlayerCount       int                 `json:"playerCount"`
	MaxPlayers        int                 `json:"maxPlayers"`
	DiscussionSeconds int                 `json:"discussionSeconds"`
	VotingSeconds     int                 `json:"votingSeconds"`
	Voters            []string            `json:"voters"`
	Players           []PlayerView        `json:"players"`
	YourTopic         string              `json:"yourTopic,omitempty"`
	TopicType         model.TopicType     `json:"topicType,omitempty"`
	LastResult        *model.RoundResult  `json:"lastResult,omitempty"`
	Version           int64               `json:"version"`
}

// GetState returns the session as seen by requesterID, which may be empty.
// A non-empty requester who is not in the roster gets NotFound.
func (s *GameService) GetState(ctx context.Context, sessionID, requesterID string) (*StateView, error) {
	if requesterID != "" && !util.IsValidUUID(requesterID) {
		return nil, apperrors.NotFound("Player")
	}
	sess, err := s.observe(ctx, "get_state", sessionID)
	if err != nil {
		return nil, err
	}
	if requesterID != "" && !sess.InRoster(requesterID) {
		return nil, apperrors.NotFound("Player")
	}
	return s.stateView(sess, requesterID), nil
}

func (s *GameService) stateView(sess *model.Session, requesterID string) *StateView {
	now := s.now()
	v := &StateView{
		SessionID:         sess.ID,
		Category:          sess.Category,
		Status:            sess.Status,
		Phase:             sess.Phase,
		PhaseDeadline:     sess.PhaseDeadline,
		Round:             sess.Round,
		CreatorID:         sess.CreatorID,
		PlayerCount:       len(sess.Roster),
		MaxPlayers:        sess.MaxPlayers,
		DiscussionSeconds: sess.DiscussionSeconds,
		VotingSeconds:     sess.VotingSeconds,
		Voters:            []string{},
		Players:           make([]PlayerView, 0, len(sess.Participants)),
		Version:           sess.Version,
	}
	if sess.PhaseDeadline != nil {
		if remaining := sess.PhaseDeadline.Sub(now); remaining > 0 {
			v.SecondsRemaining = int(remaining.Round(time.Second) / time.Second)
		}
	}

	for _, p := range sess.Participants {
		v.Players = append(v.Players, PlayerView{
			PlayerID:      p.PlayerID,
			PlayerName:    p.DisplayName,
			IsAlive:       p.IsAlive(now, s.settings.HeartbeatTimeout),
			VotesReceived: p.VotesReceived,
			IsCreator:     sess.IsCreator(p.PlayerID),
		})
		if _, voted := sess.Ballots[p.PlayerID]; voted {
			v.Voters = append(v.Voters, p.PlayerID)
		}
	}

	if sess.Status == model.StatusPlaying && sess.InRoster(requesterID) {
		if requesterID == sess.ImposterID {
			v.YourTopic, v.TopicType = sess.ImposterTopic, model.TopicTypeImposter
		} else {
			v.YourTopic, v.TopicType = sess.PlayerTopic, model.TopicTypePlayer
		}
	}
	if sess.Phase == model.PhaseResult {
		v.LastResult = sess.LastResult
	}
	return v
}

type ResultPlayer struct {
	PlayerID      string `json:"playerId"`
	PlayerName    string `json:"playerName"`
	VotesReceived int    `json:"votesReceived"`
	IsImposter    bool   `json:"isImposter"`
}

type ResultView struct {
	*model.RoundResult
	Players []ResultPlayer `json:"players"`
}

// GetResult returns the last round's outcome. Only available in the result phase.
func (s *GameService) GetResult(ctx context.Context, sessionID string) (*ResultView, error) {
	sess, err := s.observe(ctx, "get_result", sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Phase != model.PhaseResult || sess.LastResult == nil {
		return nil, apperrors.InvalidState("Results are not ready to be revealed")
	}

	players := make([]ResultPlayer, 0, len(sess.Participants))
	for _, p := range sess.Participants {
		players = append(players, ResultPlayer{
			PlayerID:      p.PlayerID,
			PlayerName:    p.DisplayName,
			VotesReceived: sess.LastResult.VoteCounts[p.PlayerID],
			IsImposter:    p.PlayerID == sess.LastResult.ImposterID,
		})
	}
	return &ResultView{RoundResult: sess.LastResult, Players: players}, nil
}

type AvailableGame struct {
	SessionID   string    `json:"sessionId"`
	Category    string    `json:"category"`
	PlayerCount int       `json:"playerCount"`
	MaxPlayers  int       `json:"maxPlayers"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListAvailable returns joinable lobbies created within the available window, newest first.
func (s *GameService) ListAvailable(ctx context.Context) ([]AvailableGame, error) {
	sessions, err := s.store.List(ctx, repository.ListFilter{
		Statuses: []model.SessionStatus{model.StatusWaiting},
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	cutoff := s.now().Add(-s.settings.AvailableWindow)
	games := make([]AvailableGame, 0, len(sessions))
	for _, sess := range sessions {
		if sess.CreatedAt.Before(cutoff) || sess.IsFull() {
			continue
		}
		games = append(games, AvailableGame{
			SessionID:   sess.ID,
			Category:    sess.Category,
			PlayerCount: len(sess.Roster),
			MaxPlayers:  sess.MaxPlayers,
			CreatedAt:   sess.CreatedAt,
		})
	}
	return games, nil
}

// observe loads a session for reading, committing any pending phase expiry first.
func (s *GameService) observe(ctx context.Context, op, sessionID string) (*model.Session, error) {
	return s.mutate(ctx, op, sessionID, func(*model.Session, time.Time) error {
		return errNoChange
	})
}
