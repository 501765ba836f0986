package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/vikramships/coworker-core/gate"
	"github.com/vikramships/coworker-core/logger"
	"github.com/vikramships/coworker-core/store"
)

const (
	// DefaultBinary is the agent CLI binary resolved from PATH.
	DefaultBinary = "claude"

	// PermissionTimeout is how long a turn waits for a permission decision.
	// 5 minutes allows users to read the prompt, check documentation, or
	// switch tasks. If this expires, the tool use is denied.
	PermissionTimeout = 5 * time.Minute

	// maxLineSize is the scanner buffer cap for a single stream-json line.
	// Tool results can embed whole files, so lines get large.
	maxLineSize = 10 * 1024 * 1024
)

// CLIRunner invokes the agent CLI in stream-json mode, one process per turn.
type CLIRunner struct {
	binary            string
	permissionTimeout time.Duration
}

// CLIOption configures a CLIRunner.
type CLIOption func(*CLIRunner)

// WithBinary overrides the agent binary path.
func WithBinary(path string) CLIOption {
	return func(r *CLIRunner) { r.binary = path }
}

// WithPermissionTimeout overrides the permission decision timeout.
func WithPermissionTimeout(d time.Duration) CLIOption {
	return func(r *CLIRunner) { r.permissionTimeout = d }
}

// NewCLIRunner creates a runner for the agent CLI.
func NewCLIRunner(opts ...CLIOption) *CLIRunner {
	r := &CLIRunner{
		binary:            DefaultBinary,
		permissionTimeout: PermissionTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// turnHandle is the abort capability for one in-flight turn.
type turnHandle struct {
	cancel    context.CancelFunc
	abortOnce sync.Once
	log       *slog.Logger
}

// Abort requests best-effort cancellation: the turn's context is cancelled,
// which kills the agent process. It does not wait for process exit.
func (h *turnHandle) Abort() {
	h.abortOnce.Do(func() {
		h.log.Debug("aborting turn")
		h.cancel()
	})
}

// Run starts the agent process for one turn. It returns once the process has
// started; streaming continues on a background goroutine until the terminal
// result message or process exit.
func (r *CLIRunner) Run(ctx context.Context, p Params) (Handle, error) {
	log := logger.WithSession(p.SessionID)

	args := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
	}
	if p.ResumeID != "" {
		args = append(args, "--resume", p.ResumeID)
	}
	if len(p.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(p.AllowedTools, ","))
	}

	turnCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(turnCtx, r.binary, args...)
	cmd.Dir = p.Cwd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		cancel()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		cancel()
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		cancel()
		return nil, fmt.Errorf("failed to start agent process: %w", err)
	}
	log.Debug("agent process started", "pid", cmd.Process.Pid, "resume", p.ResumeID != "")

	// Open the raw stream log for this session. Failure is non-fatal.
	var streamLog *os.File
	if path, pathErr := logger.StreamLogPath(p.SessionID); pathErr == nil {
		if f, openErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); openErr == nil {
			streamLog = f
		} else {
			log.Warn("failed to open stream log file", "path", path, "error", openErr)
		}
	}

	turn := &runningTurn{
		params: p,
		runner: r,
		ctx:    turnCtx,
		stdin:  stdin,
		log:    log,
		stream: streamLog,
	}

	// Send the prompt, then pump the stream. stderr is drained so the
	// process never blocks on a full pipe.
	if err := turn.writeInput(newPromptInput(p.Prompt)); err != nil {
		log.Warn("failed to send prompt", "error", err)
	}
	go turn.drainStderr(stderr)
	go func() {
		defer cancel()
		turn.pumpStream(stdout)
		stdin.Close()
		if streamLog != nil {
			streamLog.Close()
		}
		if waitErr := cmd.Wait(); waitErr != nil && turnCtx.Err() == nil {
			log.Debug("agent process exited with error", "error", waitErr)
		}
	}()

	return &turnHandle{cancel: cancel, log: log}, nil
}

// runningTurn carries the per-turn streaming state.
type runningTurn struct {
	params  Params
	runner  *CLIRunner
	ctx     context.Context
	stdin   io.WriteCloser
	stdinMu sync.Mutex
	log     *slog.Logger
	stream  *os.File
}

func (t *runningTurn) writeInput(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.stdinMu.Lock()
	defer t.stdinMu.Unlock()
	_, err = t.stdin.Write(append(data, '\n'))
	return err
}

// pumpStream reads stream-json lines until EOF, dispatching each message.
func (t *runningTurn) pumpStream(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if t.stream != nil {
			fmt.Fprintln(t.stream, line)
		}

		msg := parseStreamLine(line)
		if msg == nil {
			if strings.TrimSpace(line) != "" {
				t.log.Debug("skipping unparseable agent output", "line", truncateForLog(line))
			}
			continue
		}

		switch msg.Type {
		case "system":
			if msg.Subtype == "init" && msg.SessionID != "" {
				t.sessionUpdate(store.SessionUpdate{AgentResumeID: store.Ptr(msg.SessionID)})
			}

		case "control_request":
			if msg.Request.Subtype == "can_use_tool" {
				t.handlePermissionRequest(msg)
			}

		case "assistant", "user":
			t.emit(json.RawMessage(line))

		case "result":
			if msg.SessionID != "" {
				t.sessionUpdate(store.SessionUpdate{AgentResumeID: store.Ptr(msg.SessionID)})
			}
			t.emit(json.RawMessage(line))

		default:
			t.log.Debug("ignoring agent message", "type", msg.Type, "subtype", msg.Subtype)
		}
	}

	if err := scanner.Err(); err != nil && t.ctx.Err() == nil {
		t.log.Warn("agent stream read error", "error", err)
	}
}

func (t *runningTurn) emit(payload json.RawMessage) {
	if t.params.OnEvent != nil {
		t.params.OnEvent(payload)
	}
}

func (t *runningTurn) sessionUpdate(upd store.SessionUpdate) {
	if t.params.OnSessionUpdate != nil {
		t.params.OnSessionUpdate(upd)
	}
}

// handlePermissionRequest registers the approval with the gate, surfaces it to
// the router, and answers the agent once a decision (or timeout/abort) arrives.
// The wait happens off the stream-pumping goroutine so unrelated messages keep
// flowing while the user decides.
func (t *runningTurn) handlePermissionRequest(msg *streamMessage) {
	if t.params.Gate == nil {
		t.respondPermission(msg.RequestID, gate.Decision{
			Behavior: gate.BehaviorDeny,
			Message:  "No permission gate configured",
		})
		return
	}

	toolUseID := msg.Request.ToolUseID
	if toolUseID == "" {
		toolUseID = msg.RequestID
	}

	pending := t.params.Gate.Register(t.params.SessionID, toolUseID, msg.Request.ToolName, msg.Request.Input)
	t.log.Debug("tool approval requested", "tool", msg.Request.ToolName, "toolUseID", toolUseID)

	if t.params.OnPermissionRequest != nil {
		t.params.OnPermissionRequest(pending.Request)
	}

	requestID := msg.RequestID
	sessionID := t.params.SessionID
	go func() {
		var d gate.Decision
		select {
		case d = <-pending.Decision():
		case <-time.After(t.runner.permissionTimeout):
			d = gate.Decision{Behavior: gate.BehaviorDeny, Message: "Permission request timed out"}
			t.params.Gate.Resolve(sessionID, toolUseID, d)
		case <-t.ctx.Done():
			d = gate.Decision{Behavior: gate.BehaviorDeny, Message: "Turn aborted"}
			t.params.Gate.Resolve(sessionID, toolUseID, d)
		}
		t.respondPermission(requestID, d)
	}()
}

func (t *runningTurn) respondPermission(requestID string, d gate.Decision) {
	resp := controlResponse{
		Type: "control_response",
		Response: controlResponseBody{
			Subtype:   "success",
			RequestID: requestID,
			Response:  d,
		},
	}
	if err := t.writeInput(resp); err != nil && t.ctx.Err() == nil {
		t.log.Warn("failed to send permission response", "error", err)
	}
}

func (t *runningTurn) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			t.log.Debug("agent stderr", "line", truncateForLog(line))
		}
	}
}

// Ensure CLIRunner implements Runner at compile time.
var _ Runner = (*CLIRunner)(nil)
var _ Handle = (*turnHandle)(nil)
