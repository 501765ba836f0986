package agent

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/vikramships/coworker-core/store"
)

// DefaultMockResult is the terminal message a MockRunner emits when no custom
// result is scripted.
var DefaultMockResult = json.RawMessage(`{"type":"result","subtype":"success","result":"done"}`)

// MockHandle is the abort handle returned by MockRunner.
type MockHandle struct {
	aborted atomic.Bool
	abortCh chan struct{}
	once    sync.Once
}

// Abort marks the handle aborted and stops any further scripted emissions.
func (h *MockHandle) Abort() {
	h.once.Do(func() {
		h.aborted.Store(true)
		close(h.abortCh)
	})
}

// Aborted reports whether Abort has been called.
func (h *MockHandle) Aborted() bool {
	return h.aborted.Load()
}

// MockRunner is a scriptable Runner for tests. Each Run emits the scripted
// events followed by a terminal result message, on a background goroutine,
// mimicking the real streaming behavior.
type MockRunner struct {
	mu sync.Mutex

	// StartErr, when set, makes Run fail as if the process could not launch.
	StartErr error

	// Script is the sequence of non-terminal messages emitted per run.
	Script []json.RawMessage

	// Result overrides the terminal message. Nil means DefaultMockResult.
	Result json.RawMessage

	// ResumeID, when set, is delivered once via OnSessionUpdate.
	ResumeID string

	// HoldResult, when true, withholds the terminal message until
	// ReleaseResult is called (or the handle is aborted). This lets tests
	// observe the running state.
	HoldResult bool

	runs    []Params
	handles []*MockHandle
	release chan struct{}
}

// NewMockRunner creates a MockRunner with an empty script.
func NewMockRunner() *MockRunner {
	return &MockRunner{release: make(chan struct{})}
}

// Run records the params and starts the scripted emission.
func (m *MockRunner) Run(ctx context.Context, p Params) (Handle, error) {
	m.mu.Lock()
	if m.StartErr != nil {
		err := m.StartErr
		m.runs = append(m.runs, p)
		m.mu.Unlock()
		return nil, err
	}

	h := &MockHandle{abortCh: make(chan struct{})}
	m.runs = append(m.runs, p)
	m.handles = append(m.handles, h)
	script := m.Script
	result := m.Result
	if result == nil {
		result = DefaultMockResult
	}
	resumeID := m.ResumeID
	hold := m.HoldResult
	release := m.release
	m.mu.Unlock()

	go func() {
		if resumeID != "" && p.OnSessionUpdate != nil {
			p.OnSessionUpdate(store.SessionUpdate{AgentResumeID: store.Ptr(resumeID)})
		}
		for _, msg := range script {
			select {
			case <-h.abortCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			if p.OnEvent != nil {
				p.OnEvent(msg)
			}
		}
		if hold {
			select {
			case <-release:
			case <-h.abortCh:
				return
			case <-ctx.Done():
				return
			}
		}
		if h.Aborted() {
			return
		}
		if p.OnEvent != nil {
			p.OnEvent(result)
		}
	}()

	return h, nil
}

// ReleaseResult lets held turns emit their terminal message.
func (m *MockRunner) ReleaseResult() {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.release:
	default:
		close(m.release)
	}
}

// Runs returns a copy of the recorded run parameters.
func (m *MockRunner) Runs() []Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]Params, len(m.runs))
	copy(runs, m.runs)
	return runs
}

// Handles returns a copy of the handles issued so far.
func (m *MockRunner) Handles() []*MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	handles := make([]*MockHandle, len(m.handles))
	copy(handles, m.handles)
	return handles
}

// Ensure MockRunner implements Runner at compile time.
var _ Runner = (*MockRunner)(nil)
var _ Handle = (*MockHandle)(nil)
