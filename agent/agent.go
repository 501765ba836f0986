// Package agent wraps invocation of the external coding-agent CLI for a single
// conversational turn. The agent binary is a black box: given a prompt, an
// optional resume id, and a working directory, it emits a stream of typed JSON
// messages and terminates.
//
// The package is organized into focused modules:
//   - agent.go: Runner contract and turn parameters
//   - cli_runner.go: real CLI process invocation and stream pumping
//   - parsing.go: stream-json line parsing and control messages
//   - mock_runner.go: scriptable runner for tests
package agent

import (
	"context"
	"encoding/json"

	"github.com/vikramships/coworker-core/gate"
	"github.com/vikramships/coworker-core/store"
)

// Params configures one conversational turn.
type Params struct {
	// Prompt is the user prompt text for this turn.
	Prompt string

	// SessionID scopes logging, permission requests, and session updates.
	SessionID string

	// Cwd is the working directory the agent runs in. Empty means inherited.
	Cwd string

	// ResumeID continues a previous agent-side conversation when set.
	ResumeID string

	// AllowedTools are pre-approved tool names passed to the agent.
	AllowedTools []string

	// OnEvent receives each streamed message, in emission order, including the
	// terminal result message. Called from the runner's reader goroutine.
	OnEvent func(payload json.RawMessage)

	// OnSessionUpdate is a fire-and-forget side channel for opportunistic
	// session mutations (e.g. a newly learned resume id). It has no ordering
	// relationship to OnEvent beyond happening sometime during the run.
	OnSessionUpdate func(upd store.SessionUpdate)

	// OnPermissionRequest is invoked when the agent asks to use a tool that
	// requires approval, after the request has been registered with Gate.
	OnPermissionRequest func(req gate.Request)

	// Gate holds the pending approval until a decision arrives.
	Gate *gate.Gate
}

// Handle is the abort capability for an in-flight turn. Abort is best-effort
// and non-blocking: callers must not rely on further OnEvent calls after it.
type Handle interface {
	Abort()
}

// Runner invokes the agent for single turns. Implementations must return from
// Run once the underlying process has started (not once it finishes), handing
// back the abort handle; a failure to even start returns an error and no handle.
type Runner interface {
	Run(ctx context.Context, p Params) (Handle, error)
}
