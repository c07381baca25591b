package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/imposter-server-go/internal/audit"
	"github.com/openclaw/imposter-server-go/internal/config"
	apperrors "github.com/openclaw/imposter-server-go/internal/errors"
	"github.com/openclaw/imposter-server-go/internal/middleware"
	"github.com/openclaw/imposter-server-go/internal/service"
)

type GameHandler struct {
	gameService *service.GameService
	limiter     middleware.Limiter
	adminKey    *middleware.AdminKeyMiddleware
}

// NewGameHandler builds the /api surface. A nil limiter disables per-IP
// limits; a nil adminKey leaves the maintenance routes open.
func NewGameHandler(
	gameService *service.GameService,
	limiter middleware.Limiter,
	adminKey *middleware.AdminKeyMiddleware,
) *GameHandler {
	return &GameHandler{
		gameService: gameService,
		limiter:     limiter,
		adminKey:    adminKey,
	}
}

func (h *GameHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.limit("create", config.RateLimitCreate)).Post("/game/create", h.Create)

	r.Route("/game/{sessionID}", func(r chi.Router) {
		r.With(h.limit("read", config.RateLimitRead)).Get("/", h.GetState)
		r.With(h.limit("read", config.RateLimitRead)).Get("/result", h.GetResult)
		r.With(h.limit("delete", config.RateLimitDelete)).Delete("/", h.Delete)
		r.With(h.limit("join", config.RateLimitJoin)).Post("/join", h.Join)
		r.With(h.limit("start", config.RateLimitStart)).Post("/start", h.Start)
		r.With(h.limit("transition", config.RateLimitTransition)).Post("/transition-voting", h.TransitionToVoting)
		r.With(h.limit("vote", config.RateLimitVote)).Post("/vote", h.Vote)
		r.With(h.limit("end_voting", config.RateLimitEndVoting)).Post("/end-voting", h.EndVoting)
		r.With(h.limit("new_round", config.RateLimitNewRound)).Post("/new-round", h.NewRound)
		r.With(h.limit("heartbeat", config.RateLimitHeartbeat)).Post("/heartbeat", h.Heartbeat)
	})

	r.With(h.limit("list", config.RateLimitList)).Get("/games/available", h.ListAvailable)

	r.Group(func(r chi.Router) {
		if h.adminKey != nil {
			r.Use(h.adminKey.Handler)
		}
		r.Post("/games/cleanup-inactive", h.CleanupInactive)
		r.Post("/games/cleanup", h.Cleanup)
	})

	return r
}

func (h *GameHandler) limit(scope string, perWindow int) func(http.Handler) http.Handler {
	if h.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.NewIPRateLimitMiddleware(h.limiter, scope, perWindow, config.RateLimitWindow).Handler
}

type createRequest struct {
	PlayerName   string `json:"player_name"`
	GameCategory string `json:"game_category"`
	MaxPlayers   int    `json:"max_players"`
}

type playerRequest struct {
	PlayerName string `json:"player_name"`
	PlayerID   string `json:"player_id"`
}

type voteRequest struct {
	PlayerID   string `json:"player_id"`
	VotedForID string `json:"voted_for_id"`
}

// POST /api/game/create
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.gameService.Create(r.Context(), service.CreateParams{
		Category:   req.GameCategory,
		PlayerName: req.PlayerName,
		MaxPlayers: req.MaxPlayers,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCreate,
		SessionID: result.SessionID,
		PlayerID:  result.PlayerID,
		Details:   map[string]interface{}{"category": result.Category, "maxPlayers": result.MaxPlayers},
	})
	writeJSON(w, http.StatusOK, result)
}

// POST /api/game/{sessionID}/join
func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.gameService.Join(r.Context(), chi.URLParam(r, "sessionID"), req.PlayerName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /api/game/{sessionID}/start
func (h *GameHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	result, err := h.gameService.Start(r.Context(), sessionID, req.PlayerID)
	if err != nil {
		h.auditDenied(r, err, sessionID, req.PlayerID, "start")
		writeError(w, r, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventGameStart,
		SessionID: sessionID,
		PlayerID:  req.PlayerID,
	})
	writeJSON(w, http.StatusOK, result)
}

// GET /api/game/{sessionID}?player_id=
func (h *GameHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.gameService.GetState(r.Context(), chi.URLParam(r, "sessionID"), r.URL.Query().Get("player_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GET /api/game/{sessionID}/result
func (h *GameHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.gameService.GetResult(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /api/game/{sessionID}/transition-voting
func (h *GameHandler) TransitionToVoting(w http.ResponseWriter, r *http.Request) {
	result, err := h.gameService.TransitionToVoting(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /api/game/{sessionID}/vote
func (h *GameHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.gameService.Vote(r.Context(), chi.URLParam(r, "sessionID"), req.PlayerID, req.VotedForID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /api/game/{sessionID}/end-voting
func (h *GameHandler) EndVoting(w http.ResponseWriter, r *http.Request) {
	result, err := h.gameService.EndVoting(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// POST /api/game/{sessionID}/new-round
func (h *GameHandler) NewRound(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	result, err := h.gameService.NewRound(r.Context(), sessionID, req.PlayerID)
	if err != nil {
		h.auditDenied(r, err, sessionID, req.PlayerID, "new_round")
		writeError(w, r, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventNewRound,
		SessionID: sessionID,
		PlayerID:  req.PlayerID,
		Details:   map[string]interface{}{"round": result.Round},
	})
	writeJSON(w, http.StatusOK, result)
}

// POST /api/game/{sessionID}/heartbeat
func (h *GameHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.gameService.Heartbeat(r.Context(), chi.URLParam(r, "sessionID"), req.PlayerID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DELETE /api/game/{sessionID}?player_id=
func (h *GameHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		writeError(w, r, apperrors.MissingRequired("player_id"))
		return
	}

	if err := h.gameService.Delete(r.Context(), sessionID, playerID); err != nil {
		h.auditDenied(r, err, sessionID, playerID, "delete")
		writeError(w, r, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionDelete,
		SessionID: sessionID,
		PlayerID:  playerID,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /api/games/available?limit=&offset=
func (h *GameHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	games, err := h.gameService.ListAvailable(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	page := ParsePagination(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"games": Page(games, page),
		"total": len(games),
	})
}

// POST /api/games/cleanup-inactive
func (h *GameHandler) CleanupInactive(w http.ResponseWriter, r *http.Request) {
	result, err := h.gameService.CleanupInactive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type: audit.EventCleanupInactive,
		Details: map[string]interface{}{
			"playersRemoved": result.PlayersRemoved,
			"sessionsEnded":  result.SessionsEnded,
		},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"removed":       result.PlayersRemoved,
		"sessionsEnded": result.SessionsEnded,
	})
}

// POST /api/games/cleanup
func (h *GameHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.gameService.Cleanup(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventCleanup,
		Details: map[string]interface{}{"removed": removed},
	})
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *GameHandler) auditDenied(r *http.Request, err error, sessionID, playerID, action string) {
	if !apperrors.HasCode(err, apperrors.ErrCodeUnauthorized) {
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventCreatorDenied,
		SessionID: sessionID,
		PlayerID:  playerID,
		Details:   map[string]interface{}{"action": action},
	})
}
