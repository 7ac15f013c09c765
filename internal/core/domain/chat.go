package domain

import "time"

// ChatMessageMaxLen caps chat message bodies, in runes.
const ChatMessageMaxLen = 500

// ChatHistorySize is how many recent messages a joining viewer receives.
const ChatHistorySize = 50

// ChatRingCapacity bounds the per-session message ring.
const ChatRingCapacity = 500

// ChatMessage lives only as long as its session; never persisted.
type ChatMessage struct {
	ID          string    `json:"id"`
	AuthorID    UserID    `json:"author_id"`
	AuthorName  string    `json:"author_name"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_at"`
	IsStreamer  bool      `json:"is_streamer"`
	IsModerator bool      `json:"is_moderator"`
}
