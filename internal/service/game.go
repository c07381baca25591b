package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/imposter-server-go/internal/config"
	apperrors "github.com/openclaw/imposter-server-go/internal/errors"
	"github.com/openclaw/imposter-server-go/internal/game"
	"github.com/openclaw/imposter-server-go/internal/metrics"
	"github.com/openclaw/imposter-server-go/internal/model"
	"github.com/openclaw/imposter-server-go/internal/repository"
	"github.com/openclaw/imposter-server-go/internal/topic"
	"github.com/openclaw/imposter-server-go/internal/util"
)

// errNoChange tells mutate that the operation itself has nothing to write.
// Pending lazy expiry is still committed.
var errNoChange = errors.New("no change")

type Settings struct {
	DiscussionDuration time.Duration
	VotingDuration     time.Duration
	HeartbeatTimeout   time.Duration
	SessionRetention   time.Duration
	StaleLobbyAge      time.Duration
	AvailableWindow    time.Duration
	DefaultMaxPlayers  int
	MaxPlayersCeiling  int
	CommitRetries      int
	AutoEndVoting      bool
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DiscussionDuration: cfg.DiscussionDuration(),
		VotingDuration:     cfg.VotingDuration(),
		HeartbeatTimeout:   cfg.HeartbeatTimeout(),
		SessionRetention:   cfg.SessionRetention(),
		StaleLobbyAge:      cfg.StaleLobbyAge(),
		AvailableWindow:    cfg.AvailableWindow(),
		DefaultMaxPlayers:  cfg.DefaultMaxPlayers,
		MaxPlayersCeiling:  cfg.MaxPlayersCeiling,
		CommitRetries:      cfg.CommitRetries,
		AutoEndVoting:      cfg.AutoEndVoting,
	}
}

// GameService is the only writer of session state. Every mutation loads the
// session, applies pending phase expiry, re-validates its own preconditions
// and commits through the store's version check, retrying on conflict.
type GameService struct {
	store    repository.SessionStore
	topics   topic.Provider
	settings Settings
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*GameService)

func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

// WithRand sets the random source used for imposter selection.
func WithRand(rng *rand.Rand) Option {
	return func(s *GameService) { s.rng = rng }
}

func NewGameService(store repository.SessionStore, topics topic.Provider, settings Settings, opts ...Option) *GameService {
	s := &GameService{
		store:    store,
		topics:   topics,
		settings: settings,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.settings.CommitRetries < 1 {
		s.settings.CommitRetries = 1
	}
	return s
}

type CreateParams struct {
	Category   string
	PlayerName string
	MaxPlayers int
}

type CreateResult struct {
	SessionID  string `json:"sessionId"`
	PlayerID   string `json:"playerId"`
	Category   string `json:"category"`
	MaxPlayers int    `json:"maxPlayers"`
}

func (s *GameService) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	category, ok := util.CleanCategory(params.Category, config.MaxCategoryLength)
	if !ok {
		return nil, apperrors.InvalidInput("game_category", "must be 1-50 characters")
	}
	name, err := cleanName(params.PlayerName)
	if err != nil {
		return nil, err
	}

	maxPlayers := params.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = s.settings.DefaultMaxPlayers
	}
	if maxPlayers < config.MinPlayers || maxPlayers > s.settings.MaxPlayersCeiling {
		return nil, apperrors.InvalidInput("max_players", "out of range").
			WithDetails(map[string]int{"min": config.MinPlayers, "max": s.settings.MaxPlayersCeiling})
	}

	now := s.now()
	creatorID := uuid.NewString()
	session := &model.Session{
		CreatorID:         creatorID,
		Category:          category,
		MaxPlayers:        maxPlayers,
		Status:            model.StatusWaiting,
		Phase:             model.PhaseNone,
		Roster:            []string{creatorID},
		Ballots:           model.Ballots{},
		DiscussionSeconds: int(s.settings.DiscussionDuration / time.Second),
		VotingSeconds:     int(s.settings.VotingDuration / time.Second),
		CreatedAt:         now,
		UpdatedAt:         now,
		Participants: []model.Participant{{
			PlayerID:        creatorID,
			DisplayName:     name,
			JoinedAt:        now,
			LastHeartbeatAt: now,
		}},
	}

	for attempt := 0; attempt < config.SessionCodeAttempts; attempt++ {
		code, err := util.RandomCode(config.SessionCodeChars, config.SessionCodeLength)
		if err != nil {
			return nil, apperrors.Internal("Failed to generate session code").WithCause(err)
		}
		session.ID = code
		for i := range session.Participants {
			session.Participants[i].SessionID = code
		}

		err = s.store.Insert(ctx, session)
		if errors.Is(err, repository.ErrAlreadyExists) {
			log.Debug().Str("sessionId", code).Msg("session code collision, retrying")
			continue
		}
		if err != nil {
			return nil, apperrors.Database(err)
		}

		metrics.RecordSessionCreated()
		log.Info().
			Str("sessionId", code).
			Str("creatorId", creatorID).
			Str("category", category).
			Int("maxPlayers", maxPlayers).
			Msg("game session created")

		return &CreateResult{
			SessionID:  code,
			PlayerID:   creatorID,
			Category:   category,
			MaxPlayers: maxPlayers,
		}, nil
	}

	return nil, apperrors.Internal("Could not allocate a session code")
}

type JoinResult struct {
	PlayerID    string `json:"playerId"`
	PlayerCount int    `json:"playerCount"`
}

func (s *GameService) Join(ctx context.Context, sessionID, playerName string) (*JoinResult, error) {
	name, err := cleanName(playerName)
	if err != nil {
		return nil, err
	}

	playerID := uuid.NewString()
	sess, err := s.mutate(ctx, "join", sessionID, func(sess *model.Session, now time.Time) error {
		switch sess.Status {
		case model.StatusEnded:
			return apperrors.InvalidState("Game has ended")
		case model.StatusPlaying:
			return apperrors.InvalidState("Game has already started")
		}
		if sess.IsFull() {
			return apperrors.Capacity().WithDetails(map[string]int{"maxPlayers": sess.MaxPlayers})
		}

		sess.Roster = append(sess.Roster, playerID)
		sess.Participants = append(sess.Participants, model.Participant{
			SessionID:       sess.ID,
			PlayerID:        playerID,
			DisplayName:     name,
			JoinedAt:        now,
			LastHeartbeatAt: now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", sess.ID).
		Str("playerId", playerID).
		Int("playerCount", len(sess.Roster)).
		Msg("player joined")

	return &JoinResult{PlayerID: playerID, PlayerCount: len(sess.Roster)}, nil
}

type RoundStartResult struct {
	Status           model.SessionStatus `json:"status"`
	Phase            model.Phase         `json:"phase"`
	Round            int                 `json:"round"`
	ImposterAssigned bool                `json:"imposterAssigned"`
	PhaseDeadline    *time.Time          `json:"phaseDeadline,omitempty"`
}

func (s *GameService) Start(ctx context.Context, sessionID, requesterID string) (*RoundStartResult, error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkStartable(current, requesterID); err != nil {
		return nil, err
	}

	pair, err := s.fetchTopics(ctx, current.Category, topic.Pair{})
	if err != nil {
		return nil, err
	}

	sess, err := s.mutate(ctx, "start", sessionID, func(sess *model.Session, now time.Time) error {
		if err := checkStartable(sess, requesterID); err != nil {
			return err
		}
		return s.startRound(sess, pair, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordRoundStarted("start")
	log.Info().
		Str("sessionId", sess.ID).
		Str("imposterId", sess.ImposterID).
		Int("players", len(sess.Roster)).
		Int64("version", sess.Version).
		Msg("game started")

	return roundStartResult(sess), nil
}

func checkStartable(sess *model.Session, requesterID string) error {
	if !sess.IsCreator(requesterID) {
		return apperrors.Unauthorized("Only the creator can start the game")
	}
	if sess.Status != model.StatusWaiting {
		return apperrors.InvalidState("Game has already started")
	}
	if len(sess.Roster) < config.MinPlayers {
		return apperrors.InsufficientPlayers(config.MinPlayers)
	}
	return nil
}

func (s *GameService) NewRound(ctx context.Context, sessionID, requesterID string) (*RoundStartResult, error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// Expiry may already have produced the result phase this call is waiting for.
	game.Expire(current, s.now())
	if err := checkNewRound(current, requesterID); err != nil {
		return nil, err
	}

	previous := topic.Pair{PlayerTopic: current.PlayerTopic, ImposterTopic: current.ImposterTopic}
	pair, err := s.fetchTopics(ctx, current.Category, previous)
	if err != nil {
		return nil, err
	}

	sess, err := s.mutate(ctx, "new_round", sessionID, func(sess *model.Session, now time.Time) error {
		if err := checkNewRound(sess, requesterID); err != nil {
			return err
		}
		return s.startRound(sess, pair, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordRoundStarted("new_round")
	log.Info().
		Str("sessionId", sess.ID).
		Str("imposterId", sess.ImposterID).
		Int("round", sess.Round).
		Msg("new round started")

	return roundStartResult(sess), nil
}

func checkNewRound(sess *model.Session, requesterID string) error {
	if !sess.IsCreator(requesterID) {
		return apperrors.Unauthorized("Only the creator can start a new round")
	}
	if sess.Status != model.StatusPlaying || sess.Phase != model.PhaseResult {
		return apperrors.InvalidState("A new round can only start from the result phase")
	}
	if len(sess.Roster) < config.MinPlayers {
		return apperrors.InsufficientPlayers(config.MinPlayers)
	}
	return nil
}

func (s *GameService) startRound(sess *model.Session, pair topic.Pair, now time.Time) error {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	if err := game.StartRound(sess, pair.PlayerTopic, pair.ImposterTopic, s.rng, now); err != nil {
		return apperrors.Internal("Failed to assign roles").WithCause(err)
	}
	return nil
}

func roundStartResult(sess *model.Session) *RoundStartResult {
	return &RoundStartResult{
		Status:           sess.Status,
		Phase:            sess.Phase,
		Round:            sess.Round,
		ImposterAssigned: sess.ImposterID != "",
		PhaseDeadline:    sess.PhaseDeadline,
	}
}

// fetchTopics runs outside the commit loop so a conflict never repeats the provider call.
func (s *GameService) fetchTopics(ctx context.Context, category string, previous topic.Pair) (topic.Pair, error) {
	pair, err := s.topics.GenerateTopics(ctx, topic.Request{Category: category, Previous: previous})
	if err == nil {
		err = pair.Validate()
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("category", category).
			Msg("topic generation failed")
		return topic.Pair{}, apperrors.TopicUnavailable(err)
	}
	return pair, nil
}

type PhaseResult struct {
	Phase         model.Phase `json:"phase"`
	PhaseDeadline *time.Time  `json:"phaseDeadline,omitempty"`
}

func (s *GameService) TransitionToVoting(ctx context.Context, sessionID string) (*PhaseResult, error) {
	sess, err := s.mutate(ctx, "transition_voting", sessionID, func(sess *model.Session, now time.Time) error {
		if sess.Status != model.StatusPlaying || sess.Phase != model.PhaseDiscussion {
			return apperrors.InvalidState("Not in discussion phase").
				WithDetails(map[string]model.Phase{"phase": sess.Phase})
		}
		game.EnterVoting(sess, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("sessionId", sess.ID).
		Str("phase", string(sess.Phase)).
		Msg("voting opened")

	return &PhaseResult{Phase: sess.Phase, PhaseDeadline: sess.PhaseDeadline}, nil
}

type VoteResult struct {
	VotesCast    int                `json:"votesCast"`
	TotalPlayers int                `json:"totalPlayers"`
	Resolved     bool               `json:"resolved"`
	Result       *model.RoundResult `json:"result,omitempty"`
}

func (s *GameService) Vote(ctx context.Context, sessionID, voterID, targetID string) (*VoteResult, error) {
	if voterID == "" {
		return nil, apperrors.MissingRequired("player_id")
	}
	if targetID == "" {
		return nil, apperrors.MissingRequired("voted_for_id")
	}

	var resolved bool
	sess, err := s.mutate(ctx, "vote", sessionID, func(sess *model.Session, now time.Time) error {
		resolved = false
		if sess.Status != model.StatusPlaying || sess.Phase != model.PhaseVoting {
			return apperrors.InvalidState("Not in voting phase")
		}
		if !sess.InRoster(voterID) {
			return apperrors.NotFound("Player")
		}
		if !sess.InRoster(targetID) {
			return apperrors.NotFound("Vote target")
		}
		if voterID == targetID {
			return apperrors.SelfVote()
		}

		if sess.Ballots == nil {
			sess.Ballots = model.Ballots{}
		}
		sess.Ballots[voterID] = targetID
		game.RecountVotes(sess)

		if s.settings.AutoEndVoting && game.AllVoted(sess) {
			game.Resolve(sess, now)
			resolved = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordVote()
	log.Info().
		Str("sessionId", sess.ID).
		Str("playerId", voterID).
		Int("ballots", len(sess.Ballots)).
		Msg("vote registered")

	res := &VoteResult{
		VotesCast:    len(sess.Ballots),
		TotalPlayers: len(sess.Roster),
		Resolved:     resolved,
	}
	if resolved {
		metrics.RecordRoundResolved(sess.LastResult.Winners, "all_voted")
		res.Result = sess.LastResult
	}
	return res, nil
}

func (s *GameService) EndVoting(ctx context.Context, sessionID string) (*model.RoundResult, error) {
	sess, err := s.mutate(ctx, "end_voting", sessionID, func(sess *model.Session, now time.Time) error {
		if sess.Status != model.StatusPlaying || sess.Phase != model.PhaseVoting {
			return apperrors.InvalidState("Not in voting phase")
		}
		game.Resolve(sess, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r := sess.LastResult
	metrics.RecordRoundResolved(r.Winners, "end_voting")
	log.Info().
		Str("sessionId", sess.ID).
		Str("votedOutId", r.VotedOutID).
		Str("imposterId", r.ImposterID).
		Bool("imposterCaught", r.IsImposterCaught).
		Bool("tie", r.IsTie).
		Msg("voting ended")

	return r, nil
}

func (s *GameService) Heartbeat(ctx context.Context, sessionID, playerID string) error {
	if playerID == "" {
		return apperrors.MissingRequired("player_id")
	}
	_, err := s.mutate(ctx, "heartbeat", sessionID, func(sess *model.Session, now time.Time) error {
		p := sess.Participant(playerID)
		if p == nil {
			return apperrors.NotFound("Player")
		}
		p.LastHeartbeatAt = now
		return nil
	})
	return err
}

// Delete removes the session. Only the creator may delete; a second delete
// reports NotFound.
func (s *GameService) Delete(ctx context.Context, sessionID, requesterID string) error {
	for attempt := 0; attempt < s.settings.CommitRetries; attempt++ {
		sess, err := s.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if !sess.IsCreator(requesterID) {
			return apperrors.Unauthorized("Only the creator can delete the game")
		}

		err = s.store.Delete(ctx, sess.ID, sess.Version)
		switch {
		case err == nil:
			log.Info().
				Str("sessionId", sess.ID).
				Str("playerId", requesterID).
				Msg("game session deleted")
			return nil
		case errors.Is(err, repository.ErrVersionConflict):
			metrics.RecordConflict("delete", false)
			continue
		case errors.Is(err, repository.ErrNotFound):
			return apperrors.NotFound("Game session")
		default:
			return apperrors.Database(err)
		}
	}

	metrics.RecordConflict("delete", true)
	return apperrors.Conflict("Game is busy, try again")
}

func (s *GameService) load(ctx context.Context, sessionID string) (*model.Session, error) {
	id := util.NormalizeSessionCode(sessionID)
	if !util.IsValidSessionCode(id, config.SessionCodeChars, config.SessionCodeLength) {
		return nil, apperrors.NotFound("Game session")
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if sess == nil {
		return nil, apperrors.NotFound("Game session")
	}
	return sess, nil
}

// mutate runs fn against a freshly loaded copy of the session and commits the
// result with a version-checked update. Expired phases are advanced before fn
// sees the session; that advancement is committed even when fn fails.
func (s *GameService) mutate(
	ctx context.Context,
	op string,
	sessionID string,
	fn func(sess *model.Session, now time.Time) error,
) (*model.Session, error) {
	sess, _, err := s.commit(ctx, op, sessionID, fn)
	return sess, err
}

// commit is mutate that also reports whether this call committed a phase
// expiry. It is false when a concurrent writer advanced the phase first.
func (s *GameService) commit(
	ctx context.Context,
	op string,
	sessionID string,
	fn func(sess *model.Session, now time.Time) error,
) (*model.Session, bool, error) {
	for attempt := 0; attempt < s.settings.CommitRetries; attempt++ {
		current, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, false, err
		}

		now := s.now()
		expired := game.Expire(current, now)
		next := current.Clone()
		opErr := fn(next, now)

		target := next
		if opErr != nil {
			if !expired {
				if errors.Is(opErr, errNoChange) {
					return current, false, nil
				}
				return nil, false, opErr
			}
			target = current
		}

		target.UpdatedAt = now
		err = s.store.Update(ctx, target)
		switch {
		case err == nil:
			if expired {
				s.logExpiry(current, target.Version)
			}
			if opErr != nil && !errors.Is(opErr, errNoChange) {
				return nil, expired, opErr
			}
			return target, expired, nil
		case errors.Is(err, repository.ErrVersionConflict):
			metrics.RecordConflict(op, false)
			log.Debug().
				Str("sessionId", current.ID).
				Str("operation", op).
				Int("attempt", attempt+1).
				Msg("version conflict, retrying")
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, false, apperrors.NotFound("Game session")
		default:
			log.Error().
				Err(err).
				Str("sessionId", current.ID).
				Str("operation", op).
				Msg("failed to commit session")
			return nil, false, apperrors.Database(err)
		}
	}

	metrics.RecordConflict(op, true)
	log.Warn().
		Str("sessionId", sessionID).
		Str("operation", op).
		Int("retries", s.settings.CommitRetries).
		Msg("gave up after repeated version conflicts")
	return nil, false, apperrors.Conflict("Game is busy, try again")
}

func (s *GameService) logExpiry(sess *model.Session, version int64) {
	if sess.Phase == model.PhaseResult && sess.LastResult != nil {
		metrics.RecordRoundResolved(sess.LastResult.Winners, "deadline")
	}
	log.Info().
		Str("sessionId", sess.ID).
		Str("phase", string(sess.Phase)).
		Int64("version", version).
		Msg("phase deadline passed, advanced")
}

func cleanName(name string) (string, error) {
	cleaned, ok := util.CleanDisplayName(name, config.MaxDisplayNameLength)
	if !ok {
		if cleaned == "" {
			return "", apperrors.MissingRequired("player_name")
		}
		return "", apperrors.InvalidInput("player_name", "use 1-30 letters, digits, spaces, '_' or '-'")
	}
	return cleaned, nil
}
