// Package gate holds pending tool-approval requests and bridges an
// asynchronous user decision back into the runner's execution path.
//
// Each request is a single-assignment future: the runner registers it and
// blocks on the decision channel, a later permission.response resolves it
// exactly once. Resolving an unknown or already-resolved request is a silent
// no-op so late or duplicate decisions never crash anything.
package gate

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/vikramships/coworker-core/logger"
)

// Behavior is the user's decision on a tool-approval request.
type Behavior string

const (
	BehaviorAllow Behavior = "allow"
	BehaviorDeny  Behavior = "deny"
)

// Decision is the outcome of a permission request.
type Decision struct {
	Behavior Behavior `json:"behavior"`
	// UpdatedInput optionally replaces the tool input on allow.
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`
	// Message carries the deny reason, if any.
	Message string `json:"message,omitempty"`
}

// Request describes a tool call awaiting approval.
type Request struct {
	SessionID string          `json:"sessionId"`
	ToolUseID string          `json:"toolUseId"`
	ToolName  string          `json:"toolName"`
	Input     json.RawMessage `json:"input"`
}

// Pending is a registered request plus its single-assignment decision slot.
type Pending struct {
	Request

	ch   chan Decision
	once sync.Once
}

// Decision returns the channel the runner awaits. It receives exactly one value.
func (p *Pending) Decision() <-chan Decision {
	return p.ch
}

func (p *Pending) fulfill(d Decision) {
	p.once.Do(func() {
		p.ch <- d
	})
}

// Gate is the in-memory registry of outstanding permission requests,
// scoped per session. Never persisted.
type Gate struct {
	mu      sync.Mutex
	pending map[string]map[string]*Pending // sessionID → toolUseID → request
	log     *slog.Logger
}

// New creates an empty Gate.
func New() *Gate {
	return &Gate{
		pending: make(map[string]map[string]*Pending),
		log:     logger.WithComponent("gate"),
	}
}

// Register stores a request and returns its pending decision. If a request is
// already registered under the same key it is abandoned (denied) and replaced.
func (g *Gate) Register(sessionID, toolUseID, toolName string, input json.RawMessage) *Pending {
	p := &Pending{
		Request: Request{
			SessionID: sessionID,
			ToolUseID: toolUseID,
			ToolName:  toolName,
			Input:     input,
		},
		ch: make(chan Decision, 1),
	}

	g.mu.Lock()
	byTool, ok := g.pending[sessionID]
	if !ok {
		byTool = make(map[string]*Pending)
		g.pending[sessionID] = byTool
	}
	old := byTool[toolUseID]
	byTool[toolUseID] = p
	g.mu.Unlock()

	if old != nil {
		g.log.Debug("replacing pending permission request", "sessionID", sessionID, "toolUseID", toolUseID)
		old.fulfill(Decision{Behavior: BehaviorDeny, Message: "Request superseded"})
	}

	g.log.Debug("permission request registered", "sessionID", sessionID, "toolUseID", toolUseID, "tool", toolName)
	return p
}

// Resolve fulfills the pending request with the given decision and removes it.
// Unknown or already-resolved keys are a silent no-op.
func (g *Gate) Resolve(sessionID, toolUseID string, d Decision) {
	g.mu.Lock()
	var p *Pending
	if byTool, ok := g.pending[sessionID]; ok {
		p = byTool[toolUseID]
		delete(byTool, toolUseID)
		if len(byTool) == 0 {
			delete(g.pending, sessionID)
		}
	}
	g.mu.Unlock()

	if p == nil {
		g.log.Debug("resolve for unknown permission request ignored", "sessionID", sessionID, "toolUseID", toolUseID)
		return
	}
	p.fulfill(d)
	g.log.Debug("permission request resolved", "sessionID", sessionID, "toolUseID", toolUseID, "behavior", d.Behavior)
}

// ClearSession abandons every pending request for the session, denying each so
// blocked runners unblock. Called when a session is stopped or deleted.
func (g *Gate) ClearSession(sessionID string) {
	g.mu.Lock()
	byTool := g.pending[sessionID]
	delete(g.pending, sessionID)
	g.mu.Unlock()

	for _, p := range byTool {
		p.fulfill(Decision{Behavior: BehaviorDeny, Message: "Session stopped"})
	}
	if len(byTool) > 0 {
		g.log.Debug("cleared pending permission requests", "sessionID", sessionID, "count", len(byTool))
	}
}

// PendingFor returns the currently pending requests for a session, for UI
// restoration after reconnect.
func (g *Gate) PendingFor(sessionID string) []Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	byTool := g.pending[sessionID]
	reqs := make([]Request, 0, len(byTool))
	for _, p := range byTool {
		reqs = append(reqs, p.Request)
	}
	return reqs
}
