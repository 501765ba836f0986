package router

import (
	"encoding/json"

	"github.com/vikramships/coworker-core/gate"
	"github.com/vikramships/coworker-core/search"
	"github.com/vikramships/coworker-core/store"
)

// Command is a client-to-server message. Payload shape depends on Type.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is a server-to-client message. Payload is one of the typed
// payload structs below, selected by Type.
type ServerEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Client command payloads.

type StartPayload struct {
	Title        string   `json:"title"`
	Prompt       string   `json:"prompt"`
	Cwd          string   `json:"cwd,omitempty"`
	AllowedTools []string `json:"allowedTools,omitempty"`
}

type ContinuePayload struct {
	SessionID string `json:"sessionId"`
	Prompt    string `json:"prompt"`
}

// SessionRefPayload addresses a single session, used by stop, delete,
// and history commands.
type SessionRefPayload struct {
	SessionID string `json:"sessionId"`
}

// RecentCwdsPayload bounds the recent-directories query. Zero means a
// default limit.
type RecentCwdsPayload struct {
	Limit int `json:"limit,omitempty"`
}

type PermissionResponsePayload struct {
	SessionID string        `json:"sessionId"`
	ToolUseID string        `json:"toolUseId"`
	Result    gate.Decision `json:"result"`
}

type FdFindPayload struct {
	Root    string           `json:"root"`
	Pattern string           `json:"pattern"`
	Options search.FdOptions `json:"options,omitempty"`
}

type FdListPayload struct {
	Root    string           `json:"root"`
	Options search.FdOptions `json:"options,omitempty"`
}

type RgSearchPayload struct {
	Root    string           `json:"root"`
	Query   string           `json:"query"`
	Options search.RgOptions `json:"options,omitempty"`
}

type RgFilesPayload struct {
	Root    string `json:"root"`
	Pattern string `json:"pattern,omitempty"`
	Options struct {
		Ext string `json:"ext,omitempty"`
	} `json:"options,omitempty"`
}

type ScoutFindPayload struct {
	Root    string `json:"root"`
	Pattern string `json:"pattern"`
	Limit   int    `json:"limit,omitempty"`
}

type ScoutSearchPayload struct {
	Root  string `json:"root"`
	Query string `json:"query"`
	Ext   string `json:"ext,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type ScoutListPayload struct {
	Root string `json:"root"`
}

// Server event payloads.

type StatusPayload struct {
	SessionID string       `json:"sessionId"`
	Status    store.Status `json:"status"`
	Title     string       `json:"title,omitempty"`
	Cwd       string       `json:"cwd,omitempty"`
	Error     string       `json:"error,omitempty"`
}

type SessionListPayload struct {
	Sessions []store.Session `json:"sessions"`
}

type HistoryPayload struct {
	SessionID string            `json:"sessionId"`
	Status    store.Status      `json:"status"`
	Messages  []json.RawMessage `json:"messages"`
}

type DeletedPayload struct {
	SessionID string `json:"sessionId"`
}

type CwdsPayload struct {
	Cwds []string `json:"cwds"`
}

type StreamMessagePayload struct {
	SessionID string          `json:"sessionId"`
	Message   json.RawMessage `json:"message"`
}

type UserPromptPayload struct {
	SessionID string `json:"sessionId"`
	Prompt    string `json:"prompt"`
}

type PermissionRequestPayload struct {
	SessionID string          `json:"sessionId"`
	ToolUseID string          `json:"toolUseId"`
	ToolName  string          `json:"toolName"`
	Input     json.RawMessage `json:"input,omitempty"`
}

type RunnerErrorPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

type FilesPayload struct {
	Files []search.FileInfo `json:"files"`
}

type MatchesPayload struct {
	Results []search.Match `json:"results"`
}

type FileNamesPayload struct {
	Files []string `json:"files"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
