package gate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndResolve(t *testing.T) {
	g := New()

	p := g.Register("s1", "tu1", "Bash", json.RawMessage(`{"command":"ls"}`))
	g.Resolve("s1", "tu1", Decision{Behavior: BehaviorAllow})

	select {
	case d := <-p.Decision():
		assert.Equal(t, BehaviorAllow, d.Behavior)
	case <-time.After(time.Second):
		t.Fatal("decision never arrived")
	}
}

func TestResolveUnknownIsNoOp(t *testing.T) {
	g := New()

	// Must not panic or block
	g.Resolve("nobody", "nothing", Decision{Behavior: BehaviorAllow})
}

func TestDoubleResolveIsNoOp(t *testing.T) {
	g := New()

	p := g.Register("s1", "tu1", "Edit", nil)
	g.Resolve("s1", "tu1", Decision{Behavior: BehaviorDeny, Message: "no"})
	g.Resolve("s1", "tu1", Decision{Behavior: BehaviorAllow})

	d := <-p.Decision()
	assert.Equal(t, BehaviorDeny, d.Behavior)

	// No second value is ever delivered
	select {
	case d := <-p.Decision():
		t.Fatalf("unexpected second decision: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClearSessionDeniesPending(t *testing.T) {
	g := New()

	p1 := g.Register("s1", "tu1", "Bash", nil)
	p2 := g.Register("s1", "tu2", "Edit", nil)
	other := g.Register("s2", "tu1", "Bash", nil)

	g.ClearSession("s1")

	for _, p := range []*Pending{p1, p2} {
		select {
		case d := <-p.Decision():
			assert.Equal(t, BehaviorDeny, d.Behavior)
		case <-time.After(time.Second):
			t.Fatal("abandoned request was not denied")
		}
	}

	// Other sessions untouched
	select {
	case <-other.Decision():
		t.Fatal("unrelated session's request was resolved")
	case <-time.After(50 * time.Millisecond):
	}

	// Late resolve after clear is a harmless no-op
	g.Resolve("s1", "tu1", Decision{Behavior: BehaviorAllow})
}

func TestRegisterReplacesExistingKey(t *testing.T) {
	g := New()

	old := g.Register("s1", "tu1", "Bash", nil)
	fresh := g.Register("s1", "tu1", "Bash", nil)

	select {
	case d := <-old.Decision():
		assert.Equal(t, BehaviorDeny, d.Behavior)
	case <-time.After(time.Second):
		t.Fatal("superseded request was not denied")
	}

	g.Resolve("s1", "tu1", Decision{Behavior: BehaviorAllow})
	d := <-fresh.Decision()
	assert.Equal(t, BehaviorAllow, d.Behavior)
}

func TestPendingFor(t *testing.T) {
	g := New()

	assert.Empty(t, g.PendingFor("s1"))

	g.Register("s1", "tu1", "Bash", json.RawMessage(`{}`))
	reqs := g.PendingFor("s1")
	require.Len(t, reqs, 1)
	assert.Equal(t, "tu1", reqs[0].ToolUseID)
	assert.Equal(t, "Bash", reqs[0].ToolName)

	g.Resolve("s1", "tu1", Decision{Behavior: BehaviorAllow})
	assert.Empty(t, g.PendingFor("s1"))
}
