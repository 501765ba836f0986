// Package router is the dispatch core: it receives client commands, drives
// the session store and agent runner, and fans resulting server events out to
// subscribers.
//
// Event ordering contract: emit persists an event's durable effect (status
// change, recorded message) before broadcasting it, so a client that replays
// history after reconnect never sees an event the store does not know about.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vikramships/coworker-core/agent"
	"github.com/vikramships/coworker-core/gate"
	"github.com/vikramships/coworker-core/logger"
	"github.com/vikramships/coworker-core/metrics"
	"github.com/vikramships/coworker-core/search"
	"github.com/vikramships/coworker-core/store"
	"github.com/vikramships/coworker-core/title"
)

// userPromptRecord is the persisted form of a stream.user_prompt event,
// stored alongside agent messages so history replay interleaves correctly.
type userPromptRecord struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

// Subscriber receives every broadcast server event.
type Subscriber func(ev ServerEvent)

// turn tracks one in-flight agent run for a session. done flips exactly once,
// whether the turn ends by terminal result, start failure, stop, or delete.
type turn struct {
	handle  agent.Handle
	done    bool
	started time.Time
}

// Router owns the command surface. At most one live turn exists per session;
// starting a new turn supersedes (aborts) the previous one.
type Router struct {
	store  *store.Store
	gate   *gate.Gate
	runner agent.Runner
	search *search.Service
	titles title.Generator
	log    *slog.Logger

	mu      sync.Mutex
	subs    map[int]Subscriber
	nextSub int
	turns   map[string]*turn

	// emitMu serializes persist+broadcast so subscribers observe events in
	// the same order their effects reached the store.
	emitMu sync.Mutex

	wg sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithTitleGenerator enables async title generation for untitled sessions.
func WithTitleGenerator(g title.Generator) Option {
	return func(r *Router) { r.titles = g }
}

// New creates a Router over the given store, gate, runner, and search service.
func New(st *store.Store, g *gate.Gate, runner agent.Runner, svc *search.Service, opts ...Option) *Router {
	r := &Router{
		store:  st,
		gate:   g,
		runner: runner,
		search: svc,
		log:    logger.WithComponent("router"),
		subs:   make(map[int]Subscriber),
		turns:  make(map[string]*turn),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a subscriber and returns its id for Unsubscribe.
func (r *Router) Subscribe(fn Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	return id
}

// Unsubscribe removes a subscriber. Unknown ids are a no-op.
func (r *Router) Unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// Dispatch routes one client command. The context must outlive the work the
// command spawns: agent turns and search helpers keep running after Dispatch
// returns and stop when ctx is canceled.
//
// Command failures surface as events, not return values, mirroring how
// clients consume them.
func (r *Router) Dispatch(ctx context.Context, cmd Command) {
	metrics.RecordCommand(cmd.Type)
	r.log.Debug("dispatch", "type", cmd.Type)

	switch cmd.Type {
	case "session.start":
		r.handleStart(ctx, cmd.Payload)
	case "session.continue":
		r.handleContinue(ctx, cmd.Payload)
	case "session.stop":
		r.handleStop(cmd.Payload)
	case "session.delete":
		r.handleDelete(cmd.Payload)
	case "session.list":
		r.handleList()
	case "session.history":
		r.handleHistory(cmd.Payload)
	case "session.recent_cwds":
		r.handleRecentCwds(cmd.Payload)
	case "permission.response":
		r.handlePermissionResponse(cmd.Payload)
	case "fd.find":
		r.handleFdFind(ctx, cmd.Payload)
	case "fd.list":
		r.handleFdList(ctx, cmd.Payload)
	case "rg.search":
		r.handleRgSearch(ctx, cmd.Payload)
	case "rg.files":
		r.handleRgFiles(ctx, cmd.Payload)
	case "scout.find":
		r.handleScoutFind(ctx, cmd.Payload)
	case "scout.search":
		r.handleScoutSearch(ctx, cmd.Payload)
	case "scout.list":
		r.handleScoutList(ctx, cmd.Payload)
	default:
		r.log.Warn("unknown command type ignored", "type", cmd.Type)
	}
}

// Wait blocks until all spawned background work (search helpers, title
// generation) has finished. Agent turns are not awaited; abort them first.
func (r *Router) Wait() {
	r.wg.Wait()
}

// AbortAll aborts every in-flight turn. Used at daemon shutdown.
func (r *Router) AbortAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.turns {
		if t.handle != nil {
			t.handle.Abort()
		}
	}
}

// emit persists the durable effect of an event, then broadcasts it. Store
// failures are reported as a runner.error but do not suppress the broadcast:
// subscribers still learn the live state even when the disk disagrees.
func (r *Router) emit(ev ServerEvent) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	var persistErr error
	var sessionID string
	switch p := ev.Payload.(type) {
	case StatusPayload:
		sessionID = p.SessionID
		persistErr = r.store.UpdateSession(p.SessionID, store.SessionUpdate{Status: store.Ptr(p.Status)})
	case StreamMessagePayload:
		sessionID = p.SessionID
		persistErr = r.store.RecordMessage(p.SessionID, p.Message)
	case UserPromptPayload:
		sessionID = p.SessionID
		rec, err := json.Marshal(userPromptRecord{Type: "user_prompt", Prompt: p.Prompt})
		if err == nil {
			err = r.store.RecordMessage(p.SessionID, rec)
		}
		persistErr = err
	}

	metrics.RecordEvent(ev.Type)
	r.broadcast(ev)

	if persistErr != nil {
		r.log.Error("persisting event failed", "type", ev.Type, "sessionID", sessionID, "error", persistErr)
		errEv := ServerEvent{Type: "runner.error", Payload: RunnerErrorPayload{
			SessionID: sessionID,
			Message:   fmt.Sprintf("persisting %s failed: %v", ev.Type, persistErr),
		}}
		metrics.RecordEvent(errEv.Type)
		r.broadcast(errEv)
	}
}

func (r *Router) broadcast(ev ServerEvent) {
	r.mu.Lock()
	subs := make([]Subscriber, 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func (r *Router) emitRunnerError(sessionID, message string) {
	r.emit(ServerEvent{Type: "runner.error", Payload: RunnerErrorPayload{SessionID: sessionID, Message: message}})
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("malformed payload: %w", err)
	}
	return v, nil
}

// Session lifecycle.

func (r *Router) handleStart(ctx context.Context, raw json.RawMessage) {
	p, err := decode[StartPayload](raw)
	if err != nil {
		r.emitRunnerError("", err.Error())
		return
	}

	t := p.Title
	untitled := t == ""
	if untitled {
		t = title.Heuristic(p.Prompt)
	}

	sess, err := r.store.CreateSession(p.Cwd, t, p.Prompt)
	if err != nil {
		r.emitRunnerError("", fmt.Sprintf("creating session: %v", err))
		return
	}

	if err := r.store.UpdateSession(sess.ID, store.SessionUpdate{
		Status:     store.Ptr(store.StatusRunning),
		LastPrompt: store.Ptr(p.Prompt),
	}); err != nil {
		r.log.Error("marking session running failed", "sessionID", sess.ID, "error", err)
	}
	r.emit(ServerEvent{Type: "session.status", Payload: StatusPayload{
		SessionID: sess.ID, Status: store.StatusRunning, Title: sess.Title, Cwd: sess.Cwd,
	}})
	r.emit(ServerEvent{Type: "stream.user_prompt", Payload: UserPromptPayload{SessionID: sess.ID, Prompt: p.Prompt}})

	if untitled && r.titles != nil {
		r.generateTitle(sess.ID, p.Prompt)
	}

	r.startTurn(ctx, sess, p.Prompt, "", p.AllowedTools)
}

func (r *Router) handleContinue(ctx context.Context, raw json.RawMessage) {
	p, err := decode[ContinuePayload](raw)
	if err != nil {
		r.emitRunnerError("", err.Error())
		return
	}

	sess, err := r.store.GetSession(p.SessionID)
	if err != nil {
		r.emitRunnerError(p.SessionID, fmt.Sprintf("loading session: %v", err))
		return
	}
	if sess == nil {
		r.emitRunnerError("", "Unknown session")
		return
	}
	if sess.AgentResumeID == "" {
		r.emitRunnerError(sess.ID, "Session has no resume id yet.")
		return
	}

	if err := r.store.UpdateSession(sess.ID, store.SessionUpdate{
		Status:     store.Ptr(store.StatusRunning),
		LastPrompt: store.Ptr(p.Prompt),
	}); err != nil {
		r.log.Error("marking session running failed", "sessionID", sess.ID, "error", err)
	}
	r.emit(ServerEvent{Type: "session.status", Payload: StatusPayload{
		SessionID: sess.ID, Status: store.StatusRunning, Title: sess.Title, Cwd: sess.Cwd,
	}})
	r.emit(ServerEvent{Type: "stream.user_prompt", Payload: UserPromptPayload{SessionID: sess.ID, Prompt: p.Prompt}})

	r.startTurn(ctx, sess, p.Prompt, sess.AgentResumeID, nil)
}

// startTurn launches one agent run. A previous live turn for the session is
// aborted first, so a session never has two runs racing for its stream.
func (r *Router) startTurn(ctx context.Context, sess *store.Session, prompt, resumeID string, allowedTools []string) {
	t := &turn{started: time.Now()}

	r.mu.Lock()
	old := r.turns[sess.ID]
	var oldHandle agent.Handle
	superseded := old != nil && !old.done
	if superseded {
		old.done = true
		oldHandle = old.handle
	}
	r.turns[sess.ID] = t
	r.mu.Unlock()

	if superseded {
		if oldHandle != nil {
			oldHandle.Abort()
		}
		r.gate.ClearSession(sess.ID)
		metrics.TurnFinished(time.Since(old.started))
		r.log.Info("superseded previous turn", "sessionID", sess.ID)
	}

	metrics.TurnStarted()

	params := agent.Params{
		Prompt:       prompt,
		SessionID:    sess.ID,
		Cwd:          sess.Cwd,
		ResumeID:     resumeID,
		AllowedTools: allowedTools,
		Gate:         r.gate,
		OnEvent: func(msg json.RawMessage) {
			r.onAgentEvent(sess, t, msg)
		},
		OnSessionUpdate: func(upd store.SessionUpdate) {
			if err := r.store.UpdateSession(sess.ID, upd); err != nil {
				r.log.Error("session update failed", "sessionID", sess.ID, "error", err)
			}
		},
		OnPermissionRequest: func(req gate.Request) {
			r.emit(ServerEvent{Type: "permission.request", Payload: PermissionRequestPayload{
				SessionID: req.SessionID,
				ToolUseID: req.ToolUseID,
				ToolName:  req.ToolName,
				Input:     req.Input,
			}})
		},
	}

	handle, err := r.runner.Run(ctx, params)
	if err != nil {
		if r.endTurn(sess.ID, t) {
			metrics.TurnFinished(time.Since(t.started))
		}
		r.emit(ServerEvent{Type: "session.status", Payload: StatusPayload{
			SessionID: sess.ID,
			Status:    store.StatusError,
			Title:     sess.Title,
			Cwd:       sess.Cwd,
			Error:     err.Error(),
		}})
		return
	}

	// The turn may already have finished (or been stopped) by the time Run
	// returned. Install the handle only into a still-live turn.
	r.mu.Lock()
	if !t.done {
		t.handle = handle
	}
	r.mu.Unlock()
}

// onAgentEvent runs on the runner's reader goroutine.
func (r *Router) onAgentEvent(sess *store.Session, t *turn, msg json.RawMessage) {
	r.emit(ServerEvent{Type: "stream.message", Payload: StreamMessagePayload{SessionID: sess.ID, Message: msg}})

	if !agent.IsTerminal(msg) {
		return
	}
	if !r.endTurn(sess.ID, t) {
		return
	}
	r.gate.ClearSession(sess.ID)
	metrics.TurnFinished(time.Since(t.started))
	r.emit(ServerEvent{Type: "session.status", Payload: StatusPayload{
		SessionID: sess.ID, Status: store.StatusIdle, Title: sess.Title, Cwd: sess.Cwd,
	}})
}

// endTurn marks t finished and removes it from the live map if it is still
// the session's current turn. Returns false if t had already ended.
func (r *Router) endTurn(sessionID string, t *turn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	if r.turns[sessionID] == t {
		delete(r.turns, sessionID)
	}
	return true
}

func (r *Router) handleStop(raw json.RawMessage) {
	p, err := decode[SessionRefPayload](raw)
	if err != nil {
		r.emitRunnerError("", err.Error())
		return
	}

	sess, err := r.store.GetSession(p.SessionID)
	if err != nil || sess == nil {
		return
	}

	r.abortTurn(sess.ID)
	r.gate.ClearSession(sess.ID)

	// Always land on idle, even when nothing was running.
	r.emit(ServerEvent{Type: "session.status", Payload: StatusPayload{
		SessionID: sess.ID, Status: store.StatusIdle, Title: sess.Title, Cwd: sess.Cwd,
	}})
}

func (r *Router) handleDelete(raw json.RawMessage) {
	p, err := decode[SessionRefPayload](raw)
	if err != nil {
		r.emitRunnerError("", err.Error())
		return
	}

	r.abortTurn(p.SessionID)
	r.gate.ClearSession(p.SessionID)

	// Delete and announce unconditionally; the session may already be gone
	// and a duplicate session.deleted is harmless.
	if err := r.store.DeleteSession(p.SessionID); err != nil {
		r.log.Error("deleting session failed", "sessionID", p.SessionID, "error", err)
	}
	r.emit(ServerEvent{Type: "session.deleted", Payload: DeletedPayload{SessionID: p.SessionID}})
}

// abortTurn ends the session's live turn, if any, and aborts its handle.
func (r *Router) abortTurn(sessionID string) {
	r.mu.Lock()
	t := r.turns[sessionID]
	var handle agent.Handle
	if t != nil && !t.done {
		t.done = true
		handle = t.handle
		delete(r.turns, sessionID)
	}
	r.mu.Unlock()

	if t == nil {
		return
	}
	if handle != nil {
		handle.Abort()
	}
	metrics.TurnFinished(time.Since(t.started))
}

func (r *Router) handleList() {
	sessions, err := r.store.ListSessions()
	if err != nil {
		r.emitRunnerError("", fmt.Sprintf("listing sessions: %v", err))
		return
	}
	r.emit(ServerEvent{Type: "session.list", Payload: SessionListPayload{Sessions: sessions}})
}

func (r *Router) handleHistory(raw json.RawMessage) {
	p, err := decode[SessionRefPayload](raw)
	if err != nil {
		r.emitRunnerError("", err.Error())
		return
	}

	history, err := r.store.GetSessionHistory(p.SessionID)
	if err != nil {
		r.emitRunnerError(p.SessionID, fmt.Sprintf("loading history: %v", err))
		return
	}
	if history == nil {
		r.emitRunnerError("", "Unknown session")
		return
	}
	r.emit(ServerEvent{Type: "session.history", Payload: HistoryPayload{
		SessionID: history.Session.ID,
		Status:    history.Session.Status,
		Messages:  history.Messages,
	}})
}

func (r *Router) handleRecentCwds(raw json.RawMessage) {
	limit := 10
	if len(raw) > 0 {
		if p, err := decode[RecentCwdsPayload](raw); err == nil && p.Limit > 0 {
			limit = p.Limit
		}
	}

	cwds, err := r.store.ListRecentCwds(limit)
	if err != nil {
		r.emitRunnerError("", fmt.Sprintf("listing recent directories: %v", err))
		return
	}
	if cwds == nil {
		cwds = []string{}
	}
	r.emit(ServerEvent{Type: "session.recent_cwds", Payload: CwdsPayload{Cwds: cwds}})
}

func (r *Router) handlePermissionResponse(raw json.RawMessage) {
	p, err := decode[PermissionResponsePayload](raw)
	if err != nil {
		r.emitRunnerError("", err.Error())
		return
	}

	sess, err := r.store.GetSession(p.SessionID)
	if err != nil || sess == nil {
		return
	}

	// Resolve is a silent no-op for unknown or already-decided requests, so
	// duplicate or late responses never error.
	r.gate.Resolve(p.SessionID, p.ToolUseID, p.Result)
	metrics.RecordPermissionDecision(string(p.Result.Behavior))
}

// generateTitle asks the model for a better title off the dispatch path and
// announces it via a status event when it lands.
func (r *Router) generateTitle(sessionID, prompt string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		generated, err := r.titles.Generate(ctx, prompt)
		if err != nil || generated == "" {
			if err != nil {
				r.log.Warn("title generation failed", "sessionID", sessionID, "error", err)
			}
			return
		}

		if err := r.store.UpdateSession(sessionID, store.SessionUpdate{Title: store.Ptr(generated)}); err != nil {
			r.log.Error("saving generated title failed", "sessionID", sessionID, "error", err)
			return
		}
		sess, err := r.store.GetSession(sessionID)
		if err != nil || sess == nil {
			return
		}
		r.emit(ServerEvent{Type: "session.status", Payload: StatusPayload{
			SessionID: sess.ID, Status: sess.Status, Title: sess.Title, Cwd: sess.Cwd,
		}})
	}()
}
