package model

type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusPlaying SessionStatus = "playing"
	StatusEnded   SessionStatus = "ended"
)

type Phase string

const (
	PhaseNone       Phase = "none"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhaseResult     Phase = "result"
)

type TopicType string

const (
	TopicTypePlayer   TopicType = "player"
	TopicTypeImposter TopicType = "imposter"
)

// Winners values carried by RoundResult.
const (
	WinnersPlayers  = "all other players"
	WinnersImposter = "imposter"
)
