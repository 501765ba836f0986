package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikramships/coworker-core/store"
)

// collectEvents gathers OnEvent payloads and signals when a terminal result arrives.
type eventCollector struct {
	mu     sync.Mutex
	events []json.RawMessage
	done   chan struct{}
}

func newEventCollector() *eventCollector {
	return &eventCollector{done: make(chan struct{})}
}

func (c *eventCollector) onEvent(payload json.RawMessage) {
	c.mu.Lock()
	c.events = append(c.events, payload)
	c.mu.Unlock()
	if IsTerminal(payload) {
		close(c.done)
	}
}

func (c *eventCollector) wait(t *testing.T) []json.RawMessage {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("terminal result never arrived")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]json.RawMessage, len(c.events))
	copy(events, c.events)
	return events
}

func TestMockRunnerEmitsScriptThenResult(t *testing.T) {
	m := NewMockRunner()
	m.Script = []json.RawMessage{
		json.RawMessage(`{"type":"assistant","n":1}`),
		json.RawMessage(`{"type":"assistant","n":2}`),
	}

	c := newEventCollector()
	h, err := m.Run(context.Background(), Params{SessionID: "s1", OnEvent: c.onEvent})
	require.NoError(t, err)
	require.NotNil(t, h)

	events := c.wait(t)
	require.Len(t, events, 3)
	assert.JSONEq(t, `{"type":"assistant","n":1}`, string(events[0]))
	assert.JSONEq(t, `{"type":"assistant","n":2}`, string(events[1]))
	assert.True(t, IsTerminal(events[2]))
}

func TestMockRunnerStartErr(t *testing.T) {
	m := NewMockRunner()
	m.StartErr = errors.New("spawn failed")

	h, err := m.Run(context.Background(), Params{SessionID: "s1"})
	require.Error(t, err)
	assert.Nil(t, h)
	assert.Len(t, m.Runs(), 1)
}

func TestMockRunnerDeliversResumeID(t *testing.T) {
	m := NewMockRunner()
	m.ResumeID = "resume-9"

	var mu sync.Mutex
	var got string
	c := newEventCollector()
	_, err := m.Run(context.Background(), Params{
		SessionID: "s1",
		OnEvent:   c.onEvent,
		OnSessionUpdate: func(upd store.SessionUpdate) {
			mu.Lock()
			defer mu.Unlock()
			if upd.AgentResumeID != nil {
				got = *upd.AgentResumeID
			}
		},
	})
	require.NoError(t, err)
	c.wait(t)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "resume-9", got)
}

func TestMockRunnerHoldResult(t *testing.T) {
	m := NewMockRunner()
	m.HoldResult = true

	c := newEventCollector()
	_, err := m.Run(context.Background(), Params{SessionID: "s1", OnEvent: c.onEvent})
	require.NoError(t, err)

	select {
	case <-c.done:
		t.Fatal("result emitted before release")
	case <-time.After(50 * time.Millisecond):
	}

	m.ReleaseResult()
	c.wait(t)
}

func TestMockRunnerAbortStopsEmission(t *testing.T) {
	m := NewMockRunner()
	m.HoldResult = true

	c := newEventCollector()
	h, err := m.Run(context.Background(), Params{SessionID: "s1", OnEvent: c.onEvent})
	require.NoError(t, err)

	h.Abort()
	m.ReleaseResult()

	select {
	case <-c.done:
		t.Fatal("aborted run should not emit its result")
	case <-time.After(100 * time.Millisecond):
	}

	mh := m.Handles()[0]
	assert.True(t, mh.Aborted())
}
