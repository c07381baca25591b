package game

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/openclaw/imposter-server-go/internal/model"
)

// StartRound assigns roles and opens the discussion phase. Used for both the
// first round and every new round.
func StartRound(s *model.Session, playerTopic, imposterTopic string, rng *rand.Rand, now time.Time) error {
	if err := AssignRoles(s, playerTopic, imposterTopic, rng); err != nil {
		return err
	}

	s.Status = model.StatusPlaying
	s.Ballots = model.Ballots{}
	s.LastResult = nil
	s.Round++
	resetVotes(s)
	if s.StartedAt == nil {
		started := now
		s.StartedAt = &started
	}
	setPhase(s, model.PhaseDiscussion, now, time.Duration(s.DiscussionSeconds)*time.Second)
	return nil
}

// EnterVoting clears ballots and opens the voting phase.
func EnterVoting(s *model.Session, now time.Time) {
	s.Ballots = model.Ballots{}
	resetVotes(s)
	setPhase(s, model.PhaseVoting, now, time.Duration(s.VotingSeconds)*time.Second)
}

// RecountVotes sets every participant's votesReceived from the current ballots.
func RecountVotes(s *model.Session) {
	counts := s.Ballots.Counts()
	for i := range s.Participants {
		s.Participants[i].VotesReceived = counts[s.Participants[i].PlayerID]
	}
}

// Resolve tallies the ballots, records the round result and moves to the result phase.
func Resolve(s *model.Session, now time.Time) *model.RoundResult {
	RecountVotes(s)
	t := TallyVotes(s.Ballots, s.Participants)

	r := &model.RoundResult{
		VotedOutID:    t.VotedOutID,
		ImposterID:    s.ImposterID,
		IsTie:         t.IsTie,
		VoteCounts:    t.Counts,
		PlayerTopic:   s.PlayerTopic,
		ImposterTopic: s.ImposterTopic,
		ResolvedAt:    now,
	}
	if p := s.Participant(s.ImposterID); p != nil {
		r.ImposterName = p.DisplayName
	}
	if p := s.Participant(t.VotedOutID); p != nil {
		r.VotedOutName = p.DisplayName
	}

	r.IsImposterCaught = t.VotedOutID != "" && t.VotedOutID == s.ImposterID
	switch {
	case r.IsImposterCaught:
		r.Winners = model.WinnersPlayers
		r.Message = "Imposter caught!"
	case t.VotedOutID == "":
		r.Winners = model.WinnersImposter
		r.Message = "No votes were cast. Imposter escaped!"
	case t.IsTie:
		r.Winners = model.WinnersImposter
		r.Message = fmt.Sprintf("Tie! %s joined first and was voted out. Imposter escaped!", r.VotedOutName)
	default:
		r.Winners = model.WinnersImposter
		r.Message = "Imposter escaped!"
	}

	s.LastResult = r
	setPhase(s, model.PhaseResult, now, 0)
	return r
}

// Forfeit ends the round because the imposter left; the other players win.
func Forfeit(s *model.Session, imposterName string, now time.Time) *model.RoundResult {
	r := &model.RoundResult{
		ImposterID:       s.ImposterID,
		ImposterName:     imposterName,
		IsImposterCaught: false,
		Forfeit:          true,
		Winners:          model.WinnersPlayers,
		VoteCounts:       s.Ballots.Counts(),
		PlayerTopic:      s.PlayerTopic,
		ImposterTopic:    s.ImposterTopic,
		Message:          "The imposter left the game.",
		ResolvedAt:       now,
	}
	s.LastResult = r
	setPhase(s, model.PhaseResult, now, 0)
	return r
}

// Expire advances a playing session whose phase deadline has passed:
// discussion moves to voting, voting is resolved. It reports whether
// the session changed. At most one step is taken per call.
func Expire(s *model.Session, now time.Time) bool {
	if s.Status != model.StatusPlaying || s.PhaseDeadline == nil || now.Before(*s.PhaseDeadline) {
		return false
	}
	switch s.Phase {
	case model.PhaseDiscussion:
		EnterVoting(s, now)
		return true
	case model.PhaseVoting:
		Resolve(s, now)
		return true
	}
	return false
}

// End moves the session to its terminal status.
func End(s *model.Session, now time.Time) {
	s.Status = model.StatusEnded
	s.PhaseDeadline = nil
	if s.EndedAt == nil {
		ended := now
		s.EndedAt = &ended
	}
}

// AllVoted reports whether every roster member holds a ballot.
func AllVoted(s *model.Session) bool {
	if len(s.Roster) == 0 {
		return false
	}
	for _, id := range s.Roster {
		if _, ok := s.Ballots[id]; !ok {
			return false
		}
	}
	return true
}

func setPhase(s *model.Session, phase model.Phase, now time.Time, d time.Duration) {
	s.Phase = phase
	if d <= 0 {
		s.PhaseDeadline = nil
		return
	}
	deadline := now.Add(d)
	s.PhaseDeadline = &deadline
}

func resetVotes(s *model.Session) {
	for i := range s.Participants {
		s.Participants[i].VotesReceived = 0
	}
}
