package stream

import (
	"encoding/json"

	"retrievai-client/internal/model"
)

// Event types the chat endpoint emits, in their usual arrival order. Any
// subset may be absent or duplicated; consumers tolerate both.
const (
	EventStart      = "start"
	EventRetrieving = "retrieving"
	EventSources    = "sources"
	EventThinking   = "thinking"
	EventToken      = "token"
	EventDone       = "done"
	EventSaved      = "saved"
	EventError      = "error"
)

// Event is one decoded wire frame. Content is type-specific and left raw
// until the consumer knows what to expect.
type Event struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

type statusContent struct {
	Message string `json:"message"`
}

type sourcesContent struct {
	Sources []model.Source `json:"sources"`
	Count   int            `json:"count"`
}

// DonePayload carries the finalized answer. Answer may be empty, in which
// case the consumer falls back to its token accumulator.
type DonePayload struct {
	Answer     string `json:"answer"`
	TokenCount int    `json:"token_count"`
}

// SavedPayload reports the server-side persistence of the exchange,
// including the conversation id assigned on the first one.
type SavedPayload struct {
	MessageID      int64  `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// ErrorPayload is a backend-reported failure, distinct from a transport
// failure.
type ErrorPayload struct {
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

// StatusMessage extracts the advisory text carried by retrieving and
// thinking events. Undecodable content yields an empty string.
func (e Event) StatusMessage() string {
	var c statusContent
	if err := json.Unmarshal(e.Content, &c); err != nil {
		return ""
	}
	return c.Message
}

func (e Event) Token() (string, error) {
	var token string
	err := json.Unmarshal(e.Content, &token)
	return token, err
}

func (e Event) Sources() ([]model.Source, error) {
	var c sourcesContent
	if err := json.Unmarshal(e.Content, &c); err != nil {
		return nil, err
	}
	return c.Sources, nil
}

func (e Event) Done() (DonePayload, error) {
	var p DonePayload
	err := json.Unmarshal(e.Content, &p)
	return p, err
}

func (e Event) Saved() (SavedPayload, error) {
	var p SavedPayload
	err := json.Unmarshal(e.Content, &p)
	return p, err
}

func (e Event) ErrorInfo() (ErrorPayload, error) {
	var p ErrorPayload
	err := json.Unmarshal(e.Content, &p)
	return p, err
}
