package agent

import (
	"encoding/json"
	"strings"
)

// streamMessage is the subset of the agent's stream-json output the runner
// inspects. Full payloads are passed through to OnEvent untouched; this struct
// only pulls out the fields needed for routing and side effects.
type streamMessage struct {
	Type      string `json:"type"`       // "system", "assistant", "user", "result", "control_request"
	Subtype   string `json:"subtype"`    // "init", "success", "error_during_execution", ...
	SessionID string `json:"session_id"` // agent-side conversation id (the resume id)
	RequestID string `json:"request_id"` // control_request correlation id

	Request struct {
		Subtype   string          `json:"subtype"`   // "can_use_tool"
		ToolName  string          `json:"tool_name"` // e.g. "Bash", "Edit"
		ToolUseID string          `json:"tool_use_id"`
		Input     json.RawMessage `json:"input"`
	} `json:"request"`
}

// controlResponse answers a control_request on the agent's stdin.
type controlResponse struct {
	Type     string              `json:"type"` // "control_response"
	Response controlResponseBody `json:"response"`
}

type controlResponseBody struct {
	Subtype   string `json:"subtype"` // "success"
	RequestID string `json:"request_id"`
	Response  any    `json:"response"`
}

// streamInput is a user message sent to the agent's stdin in stream-json mode.
type streamInput struct {
	Type    string `json:"type"` // "user"
	Message struct {
		Role    string `json:"role"` // "user"
		Content []struct {
			Type string `json:"type"` // "text"
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

func newPromptInput(prompt string) streamInput {
	var in streamInput
	in.Type = "user"
	in.Message.Role = "user"
	in.Message.Content = append(in.Message.Content, struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "text", Text: prompt})
	return in
}

// parseStreamLine parses one line of agent output. Non-JSON lines (the CLI can
// emit informational text with --verbose) return nil and are skipped.
func parseStreamLine(line string) *streamMessage {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "{") {
		return nil
	}
	var msg streamMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return nil
	}
	if msg.Type == "" {
		return nil
	}
	return &msg
}

// MessageType returns the "type" discriminator of a streamed payload, or ""
// when the payload is not a recognizable message.
func MessageType(payload json.RawMessage) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.Type
}

// IsTerminal reports whether a streamed payload is the turn's terminal result
// message.
func IsTerminal(payload json.RawMessage) bool {
	return MessageType(payload) == "result"
}

// truncateForLog shortens long lines for debug logging.
func truncateForLog(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
