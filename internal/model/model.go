package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultSessionID marks the transient conversation that is never written
// to durable storage.
const DefaultSessionID = "default"

// SourceMetadata identifies where a retrieved chunk came from. The page
// number is a pointer because the backend sends null for sources without
// pagination.
type SourceMetadata struct {
	Source   string `json:"source"`
	Page     *int   `json:"page,omitempty"`
	FileHash string `json:"file_hash,omitempty"`
	Title    string `json:"title,omitempty"`
	DocNum   int    `json:"doc_num,omitempty"`
}

// Source is one retrieved document chunk backing an answer.
type Source struct {
	Content  string         `json:"content"`
	Metadata SourceMetadata `json:"metadata"`
}

// Message is one finalized conversation turn. The in-flight assistant
// answer lives in controller scratch state, not here.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Sources []Source `json:"sources,omitempty"`
}

// Session is one resumable conversation thread. ID is client-generated;
// ConversationID is assigned by the server and learned from a stream
// event, so it may be empty until the first completed exchange.
type Session struct {
	ID             string    `json:"id"`
	Messages       []Message `json:"messages"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// SessionCache is the serialized form of all durable sessions, ordered
// newest-first.
type SessionCache struct {
	Version  int       `json:"version"`
	Sessions []Session `json:"sessions"`
}
