package store

import (
	"encoding/json"
	"time"
)

// Status is the session lifecycle status.
//
// StatusCompleted is part of the persisted vocabulary for UI coloring, but the
// router folds a successful turn back to StatusIdle rather than resting on it.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Session is the durable record of one conversation with the agent.
// The store owns these rows exclusively; other components hold ids only.
type Session struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Title         string    `json:"title"`
	Cwd           string    `json:"cwd,omitempty"`
	Status        Status    `json:"status"`
	AgentResumeID string    `json:"agentResumeId,omitempty"`
	LastPrompt    string    `json:"lastPrompt,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MessageRecord is one append-only entry in a session's message log.
// Payload is the raw JSON of the streamed message, stored as emitted.
type MessageRecord struct {
	Seq       uint64          `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string          `gorm:"index" json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// History bundles a session with its full message log in append order.
type History struct {
	Session  Session
	Messages []json.RawMessage
}

// SessionUpdate describes a partial session mutation. Nil fields are left
// untouched; UpdatedAt is bumped whenever at least one field is set.
type SessionUpdate struct {
	Title         *string
	Cwd           *string
	Status        *Status
	AgentResumeID *string
	LastPrompt    *string
}

// Ptr returns a pointer to v, for building SessionUpdate values inline.
func Ptr[T any](v T) *T {
	return &v
}

func (u SessionUpdate) changes() map[string]any {
	m := make(map[string]any)
	if u.Title != nil {
		m["title"] = *u.Title
	}
	if u.Cwd != nil {
		m["cwd"] = *u.Cwd
	}
	if u.Status != nil {
		m["status"] = *u.Status
	}
	if u.AgentResumeID != nil {
		m["agent_resume_id"] = *u.AgentResumeID
	}
	if u.LastPrompt != nil {
		m["last_prompt"] = *u.LastPrompt
	}
	return m
}
