package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikramships/coworker-core/agent"
	pexec "github.com/vikramships/coworker-core/exec"
	"github.com/vikramships/coworker-core/gate"
	"github.com/vikramships/coworker-core/router"
	"github.com/vikramships/coworker-core/search"
	"github.com/vikramships/coworker-core/store"
)

// safeBuffer is a goroutine-safe write buffer.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestRouter(t *testing.T) (*router.Router, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc := search.NewService(search.WithExecutor(pexec.NewMockExecutor(nil)))
	return router.New(st, gate.New(), agent.NewMockRunner(), svc), st
}

func (b *safeBuffer) eventTypes() []string {
	var types []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev struct {
			Type string `json:"type"`
		}
		if json.Unmarshal([]byte(line), &ev) == nil {
			types = append(types, ev.Type)
		}
	}
	return types
}

func TestServeDispatchesCommandsAndWritesEvents(t *testing.T) {
	r, st := newTestRouter(t)
	_, err := st.CreateSession("/tmp", "T", "p")
	require.NoError(t, err)

	in := strings.NewReader(`{"type":"session.list"}` + "\n")
	out := &safeBuffer{}

	tr := New(r, in, out)
	err = tr.Serve(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, typ := range out.eventTypes() {
			if typ == "session.list" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	var ev struct {
		Type    string `json:"type"`
		Payload struct {
			Sessions []json.RawMessage `json:"sessions"`
		} `json:"payload"`
	}
	line := strings.TrimSpace(out.String())
	require.NoError(t, json.Unmarshal([]byte(line), &ev))
	assert.Len(t, ev.Payload.Sessions, 1)
}

func TestServeSkipsMalformedLines(t *testing.T) {
	r, st := newTestRouter(t)
	_, err := st.CreateSession("/tmp", "T", "p")
	require.NoError(t, err)

	in := strings.NewReader("not json\n\n" + `{"payload":{}}` + "\n" + `{"type":"session.list"}` + "\n")
	out := &safeBuffer{}

	require.NoError(t, New(r, in, out).Serve(context.Background()))

	types := out.eventTypes()
	assert.Equal(t, []string{"session.list"}, types)
}

func TestServeReturnsOnCancel(t *testing.T) {
	r, _ := newTestRouter(t)

	pr, pw := io.Pipe()
	defer pw.Close()
	out := &safeBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(r, pr, out).Serve(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeReturnsOnEOF(t *testing.T) {
	r, _ := newTestRouter(t)

	pr, pw := io.Pipe()
	out := &safeBuffer{}

	done := make(chan error, 1)
	go func() {
		done <- New(r, pr, out).Serve(context.Background())
	}()

	require.NoError(t, pw.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after EOF")
	}
}
