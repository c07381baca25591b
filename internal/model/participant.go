package model

import "time"

type Participant struct {
	SessionID       string    `db:"session_id" json:"sessionId"`
	PlayerID        string    `db:"player_id" json:"playerId"`
	DisplayName     string    `db:"display_name" json:"displayName"`
	IsImposter      bool      `db:"is_imposter" json:"isImposter"`
	VotesReceived   int       `db:"votes_received" json:"votesReceived"`
	JoinedAt        time.Time `db:"joined_at" json:"joinedAt"`
	LastHeartbeatAt time.Time `db:"last_heartbeat_at" json:"lastHeartbeatAt"`
}

// IsAlive reports whether the participant has sent a heartbeat within timeout of now.
func (p Participant) IsAlive(now time.Time, timeout time.Duration) bool {
	return now.Sub(p.LastHeartbeatAt) <= timeout
}
