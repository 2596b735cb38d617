package core

import (
	"maps"
	"slices"
	"time"
)

// Session is a durable conversation transcript plus arbitrary key/value
// state. Flows load a session's messages as their starting history and
// append the messages each run produced, so a knowledge-base conversation
// can span multiple questions.
type Session struct {
	ID        string
	Messages  []FlowMessage
	State     map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession creates an empty session with the given id.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		State:     make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep enough copy that callers can mutate freely. Message
// values are copied; Custom payloads are shared.
func (s *Session) Clone() *Session {
	return &Session{
		ID:        s.ID,
		Messages:  slices.Clone(s.Messages),
		State:     maps.Clone(s.State),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// AddMessages appends messages to the transcript.
func (s *Session) AddMessages(msgs ...FlowMessage) {
	s.Messages = append(s.Messages, msgs...)
	s.UpdatedAt = time.Now()
}

// MergeState merges a key/value delta into the session state.
func (s *Session) MergeState(delta map[string]any) {
	if s.State == nil {
		s.State = make(map[string]any, len(delta))
	}
	maps.Copy(s.State, delta)
	s.UpdatedAt = time.Now()
}

// SessionStore persists conversation transcripts between flow runs.
type SessionStore interface {
	// Get returns the session with the given id, creating it lazily.
	Get(sessionID string) (*Session, error)

	// AppendMessages adds messages to an existing or newly created session.
	AppendMessages(sessionID string, msgs ...FlowMessage) error

	// ApplyDelta merges a key/value delta into the session state.
	ApplyDelta(sessionID string, delta map[string]any) error
}
