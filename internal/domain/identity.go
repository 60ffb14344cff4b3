package domain

import (
	"crypto/rand"
	"strings"
)

// Identities are opaque strings classified by prefix: "agent_" ids may
// send messages, "viewer_" ids only watch. A viewer is promoted when
// the store confirms its id inside a room's agent set.
const (
	AgentPrefix  = "agent_"
	ViewerPrefix = "viewer_"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
const idLength = 9

func NewAgentID() string  { return AgentPrefix + randomID() }
func NewViewerID() string { return ViewerPrefix + randomID() }

func IsAgent(id string) bool { return strings.HasPrefix(id, AgentPrefix) }

func randomID() string {
	buf := make([]byte, idLength)
	_, _ = rand.Read(buf)
	var b strings.Builder
	b.Grow(idLength)
	for _, c := range buf {
		b.WriteByte(idAlphabet[int(c)%len(idAlphabet)])
	}
	return b.String()
}
