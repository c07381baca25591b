package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type Session struct {
	ID                string         `db:"id" json:"id"`
	CreatorID         string         `db:"creator_id" json:"creatorId"`
	Category          string         `db:"category" json:"category"`
	PlayerTopic       string         `db:"player_topic" json:"playerTopic"`
	ImposterTopic     string         `db:"imposter_topic" json:"imposterTopic"`
	MaxPlayers        int            `db:"max_players" json:"maxPlayers"`
	Status            SessionStatus  `db:"status" json:"status"`
	Phase             Phase          `db:"phase" json:"phase"`
	PhaseDeadline     *time.Time     `db:"phase_deadline" json:"phaseDeadline,omitempty"`
	Roster            pq.StringArray `db:"roster" json:"roster"`
	ImposterID        string         `db:"imposter_id" json:"imposterId"`
	Ballots           Ballots        `db:"ballots" json:"ballots"`
	LastResult        *RoundResult   `db:"last_result" json:"lastResult,omitempty"`
	Round             int            `db:"round" json:"round"`
	DiscussionSeconds int            `db:"discussion_seconds" json:"discussionSeconds"`
	VotingSeconds     int            `db:"voting_seconds" json:"votingSeconds"`
	Version           int64          `db:"version" json:"version"`
	CreatedAt         time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updatedAt"`
	StartedAt         *time.Time     `db:"started_at" json:"startedAt,omitempty"`
	EndedAt           *time.Time     `db:"ended_at" json:"endedAt,omitempty"`

	// Participants in roster order. Stored separately from the session row.
	Participants []Participant `db:"-" json:"-"`
}

// Participant returns the roster member with the given id, or nil.
func (s *Session) Participant(playerID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].PlayerID == playerID {
			return &s.Participants[i]
		}
	}
	return nil
}

func (s *Session) InRoster(playerID string) bool {
	for _, id := range s.Roster {
		if id == playerID {
			return true
		}
	}
	return false
}

func (s *Session) IsCreator(playerID string) bool {
	return playerID != "" && playerID == s.CreatorID
}

func (s *Session) IsFull() bool {
	return len(s.Roster) >= s.MaxPlayers
}

// RemoveParticipant drops playerID from both the roster and the participant list.
func (s *Session) RemoveParticipant(playerID string) {
	roster := make(pq.StringArray, 0, len(s.Roster))
	for _, id := range s.Roster {
		if id != playerID {
			roster = append(roster, id)
		}
	}
	s.Roster = roster

	participants := make([]Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.PlayerID != playerID {
			participants = append(participants, p)
		}
	}
	s.Participants = participants
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.PhaseDeadline = cloneTime(s.PhaseDeadline)
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	if s.Roster != nil {
		c.Roster = append(pq.StringArray(nil), s.Roster...)
	}
	c.Ballots = s.Ballots.Clone()
	c.LastResult = s.LastResult.Clone()
	if s.Participants != nil {
		c.Participants = append([]Participant(nil), s.Participants...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Ballots maps voter id to voted-for id. Persisted as JSONB.
type Ballots map[string]string

func (b Ballots) Clone() Ballots {
	if b == nil {
		return nil
	}
	c := make(Ballots, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// Counts returns the number of ballots pointing at each target.
func (b Ballots) Counts() map[string]int {
	counts := make(map[string]int, len(b))
	for _, target := range b {
		counts[target]++
	}
	return counts
}

func (b Ballots) Value() (driver.Value, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(b))
}

func (b *Ballots) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("scan ballots: %w", err)
	}
	if data == nil {
		*b = Ballots{}
		return nil
	}
	m := Ballots{}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("scan ballots: %w", err)
	}
	*b = m
	return nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", src)
	}
}
