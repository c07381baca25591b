package repository

import (
	"context"
	"errors"
	"sort"

	"github.com/openclaw/imposter-server-go/internal/model"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrVersionConflict = errors.New("session version conflict")
	ErrAlreadyExists   = errors.New("session already exists")
)

// ListFilter narrows List. An empty Statuses matches every session.
type ListFilter struct {
	Statuses []model.SessionStatus
}

func (f ListFilter) matches(s *model.Session) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// SessionStore persists sessions together with their participants.
//
// Every write is conditional on Session.Version: Update and Delete succeed
// only when the stored version still equals the one the caller read, and a
// successful Update leaves both the stored and the in-memory version
// incremented by one.
type SessionStore interface {
	// Get returns the session with participants in roster order, or nil when absent.
	Get(ctx context.Context, id string) (*model.Session, error)
	// Insert stores a new session at version 1.
	Insert(ctx context.Context, s *model.Session) error
	// Update replaces the session and its participants. Participants no
	// longer present in s are removed.
	Update(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, id string, version int64) error
	// List returns session summaries without participants, newest first.
	List(ctx context.Context, filter ListFilter) ([]model.Session, error)
	Ping(ctx context.Context) error
}

// orderByRoster sorts participants to match the session's roster order.
func orderByRoster(s *model.Session) {
	pos := make(map[string]int, len(s.Roster))
	for i, id := range s.Roster {
		pos[id] = i
	}
	sort.SliceStable(s.Participants, func(i, j int) bool {
		return pos[s.Participants[i].PlayerID] < pos[s.Participants[j].PlayerID]
	})
}

func sortNewestFirst(sessions []model.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}
