package game

import "github.com/openclaw/imposter-server-go/internal/model"

// Tally is the raw outcome of counting a ballot set.
type Tally struct {
	VotedOutID string
	Counts     map[string]int
	// IsTie is set when more than one candidate shared the top count.
	IsTie bool
}

// TallyVotes picks the participant with the most ballots. Ties go to the
// candidate who joined earliest; identical join times fall back to roster
// order. With no ballots nobody is voted out.
func TallyVotes(ballots model.Ballots, participants []model.Participant) Tally {
	counts := ballots.Counts()
	t := Tally{Counts: counts}

	top := 0
	var leader *model.Participant
	tied := 0
	for i := range participants {
		p := &participants[i]
		n := counts[p.PlayerID]
		if n == 0 {
			continue
		}
		switch {
		case n > top:
			top, leader, tied = n, p, 1
		case n == top:
			tied++
			if p.JoinedAt.Before(leader.JoinedAt) {
				leader = p
			}
		}
	}

	if leader != nil {
		t.VotedOutID = leader.PlayerID
		t.IsTie = tied > 1
	}
	return t
}
