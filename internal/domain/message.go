package domain

// Message is one entry of a room's append-only log. Immutable once
// written; Seq is a per-room monotonic sequence number so the render
// layer keeps per-writer order even when the transport does not.
type Message struct {
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"` // RFC3339
	Seq       int64  `json:"seq"`
}
