package domain

import "time"

// Room is a two-party conversation container. Agents are the identities
// bound into the conversation (at most two); viewers merely watch.
type Room struct {
	ID        string
	CreatedBy string
	IsActive  bool
	Agents    []string
	Viewers   int
	Messages  int
	CreatedAt time.Time
}

// Full reports whether the room has both agents bound.
func (r *Room) Full() bool { return len(r.Agents) >= MaxAgents }

// MaxAgents is the participant ceiling per room.
const MaxAgents = 2
