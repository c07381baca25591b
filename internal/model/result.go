package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RoundResult is the outcome of one voting round.
type RoundResult struct {
	VotedOutID       string         `json:"votedOutId"`
	VotedOutName     string         `json:"votedOutName"`
	IsImposterCaught bool           `json:"isImposterCaught"`
	ImposterID       string         `json:"imposterId"`
	ImposterName     string         `json:"imposterName"`
	Winners          string         `json:"winners"`
	IsTie            bool           `json:"isTie"`
	Forfeit          bool           `json:"forfeit,omitempty"`
	VoteCounts       map[string]int `json:"voteCounts"`
	PlayerTopic      string         `json:"playerTopic"`
	ImposterTopic    string         `json:"imposterTopic"`
	Message          string         `json:"message"`
	ResolvedAt       time.Time      `json:"resolvedAt"`
}

func (r *RoundResult) Clone() *RoundResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.VoteCounts != nil {
		c.VoteCounts = make(map[string]int, len(r.VoteCounts))
		for k, v := range r.VoteCounts {
			c.VoteCounts[k] = v
		}
	}
	return &c
}

func (r RoundResult) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *RoundResult) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("scan round result: %w", err)
	}
	if data == nil {
		return nil
	}
	return json.Unmarshal(data, r)
}
