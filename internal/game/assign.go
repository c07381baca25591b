// Package game holds the pure rules of an imposter round: role assignment,
// vote tallying and phase transitions. Nothing here performs I/O; callers
// load a session, apply these functions to it and persist the result.
package game

import (
	"errors"
	"math/rand/v2"

	"github.com/openclaw/imposter-server-go/internal/model"
)

var ErrEmptyRoster = errors.New("game: roster is empty")

// PickImposter selects one roster member uniformly at random from rng.
func PickImposter(roster []string, rng *rand.Rand) (string, error) {
	if len(roster) == 0 {
		return "", ErrEmptyRoster
	}
	return roster[rng.IntN(len(roster))], nil
}

// AssignRoles binds the topic pair and marks exactly one participant as the imposter.
func AssignRoles(s *model.Session, playerTopic, imposterTopic string, rng *rand.Rand) error {
	imposterID, err := PickImposter(s.Roster, rng)
	if err != nil {
		return err
	}

	s.PlayerTopic = playerTopic
	s.ImposterTopic = imposterTopic
	s.ImposterID = imposterID
	for i := range s.Participants {
		s.Participants[i].IsImposter = s.Participants[i].PlayerID == imposterID
	}
	return nil
}
