package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vikramships/coworker-core/paths"
)

func setupTestLogger(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	paths.Reset()
	Reset()
	t.Cleanup(func() {
		Reset()
		paths.Reset()
	})
	return tmpDir
}

func TestInitCreatesLogFile(t *testing.T) {
	tmpDir := setupTestLogger(t)
	logPath := filepath.Join(tmpDir, "logs", "test.log")

	if err := Init(logPath); err != nil {
		t.Fatalf("Init: %v", err)
	}

	Get().Info("hello")
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing entry, got: %s", data)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	tmpDir := setupTestLogger(t)
	first := filepath.Join(tmpDir, "first.log")
	second := filepath.Join(tmpDir, "second.log")

	if err := Init(first); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(second); err != nil {
		t.Fatalf("second Init: %v", err)
	}

	Get().Info("entry")
	Close()

	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Error("second Init should be a no-op when already initialized")
	}
}

func TestWithSessionAttachesField(t *testing.T) {
	tmpDir := setupTestLogger(t)
	logPath := filepath.Join(tmpDir, "session.log")

	if err := Init(logPath); err != nil {
		t.Fatalf("Init: %v", err)
	}

	WithSession("sess-42").Info("session log entry")
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "sessionID=sess-42") {
		t.Errorf("log entry missing sessionID field, got: %s", data)
	}
}

func TestWithComponentAttachesField(t *testing.T) {
	tmpDir := setupTestLogger(t)
	logPath := filepath.Join(tmpDir, "component.log")

	if err := Init(logPath); err != nil {
		t.Fatalf("Init: %v", err)
	}

	WithComponent("router").Info("component log entry")
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "component=router") {
		t.Errorf("log entry missing component field, got: %s", data)
	}
}

func TestSetDebugControlsLevel(t *testing.T) {
	tmpDir := setupTestLogger(t)
	logPath := filepath.Join(tmpDir, "debug.log")

	if err := Init(logPath); err != nil {
		t.Fatalf("Init: %v", err)
	}

	Get().Debug("hidden")
	SetDebug(true)
	Get().Debug("visible")
	Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry logged before SetDebug(true)")
	}
	if !strings.Contains(string(data), "visible") {
		t.Error("debug entry missing after SetDebug(true)")
	}
}

func TestStreamLogPath(t *testing.T) {
	setupTestLogger(t)

	p, err := StreamLogPath("abc")
	if err != nil {
		t.Fatalf("StreamLogPath: %v", err)
	}
	if !strings.HasSuffix(p, filepath.Join("logs", "stream-abc.log")) {
		t.Errorf("unexpected stream log path: %q", p)
	}
}

func TestClearLogs(t *testing.T) {
	setupTestLogger(t)

	defaultPath, err := DefaultLogPath()
	if err != nil {
		t.Fatalf("DefaultLogPath: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(defaultPath), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{defaultPath, filepath.Join(filepath.Dir(defaultPath), "stream-x.log")} {
		if err := os.WriteFile(name, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	count, err := ClearLogs()
	if err != nil {
		t.Fatalf("ClearLogs: %v", err)
	}
	if count != 2 {
		t.Errorf("ClearLogs removed %d files, want 2", count)
	}
}
