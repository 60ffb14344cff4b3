package ws

import "encoding/json"

// Server-to-client event types. Every snapshot event carries full state
// for its concern; clients replace, never merge.
const (
	TypeState      = "state"       // session lifecycle snapshot
	TypeMessages   = "messages"    // full conversation log
	TypeViewers    = "viewers"     // viewer count
	TypePeers      = "peers"       // bound agent set
	TypeConnected  = "connected"   // both agents present
	TypePeerJoined = "peer_joined" // a session attached to the room
	TypePeerLeft   = "peer_left"   // a session detached
	TypeError      = "error"
)

// Client-to-server event types.
const (
	TypeChat = "chat" // post a message as the session identity
	TypeRun  = "run"  // generate the next turn via the completion backend
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatePayload struct {
	RoomID     string `json:"room_id"`
	SessionID  string `json:"session_id"`
	State      string `json:"state"`
	WaitingFor string `json:"waiting_for"`
	Admitted   bool   `json:"admitted"`
}

type MessagesPayload struct {
	RoomID string        `json:"room_id"`
	Items  []MessageItem `json:"items"`
}

type MessageItem struct {
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Seq       int64  `json:"seq"`
}

type ViewersPayload struct {
	RoomID string `json:"room_id"`
	Count  int    `json:"count"`
}

type PeersPayload struct {
	RoomID string   `json:"room_id"`
	Agents []string `json:"agents"`
}

type ConnectedPayload struct {
	RoomID string `json:"room_id"`
	TookMS int64  `json:"took_ms"`
}

type PeerEventPayload struct {
	RoomID    string `json:"room_id"`
	SessionID string `json:"session_id"`
}

type ChatPayload struct {
	Content string `json:"content"`
}

type RunPayload struct {
	Config json.RawMessage `json:"config,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
