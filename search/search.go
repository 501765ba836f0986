// Package search shells out to the file-search helper binaries (fd, ripgrep,
// scout) and returns their structured results.
//
// Helpers are one-shot external commands with a bounded timeout and a capped
// output buffer. A non-zero exit with no output is treated as "no matches",
// not an error: fd and rg both exit 1 when nothing matched.
package search

import (
	"context"
	"time"

	pexec "github.com/vikramships/coworker-core/exec"
)

// HelperTimeout bounds each helper invocation. After this the operation is
// treated as failed rather than hanging the caller.
const HelperTimeout = 30 * time.Second

// FileInfo is one file entry returned by fd or scout.
type FileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size,omitempty"`
}

// Match is one content match returned by rg or scout.
type Match struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// Service invokes the search helpers with explicit dependency injection.
// Each Service instance holds its own executor, enabling proper testing and
// avoiding global state.
type Service struct {
	executor pexec.CommandExecutor
	timeout  time.Duration

	fdBin    string
	rgBin    string
	scoutBin string
}

// Option configures a Service.
type Option func(*Service)

// WithExecutor injects a custom command executor (primarily for tests).
func WithExecutor(e pexec.CommandExecutor) Option {
	return func(s *Service) { s.executor = e }
}

// WithTimeout overrides the per-invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithBinaries overrides the helper binary paths (bundled builds ship their
// own fd/rg next to the app).
func WithBinaries(fd, rg, scout string) Option {
	return func(s *Service) {
		if fd != "" {
			s.fdBin = fd
		}
		if rg != "" {
			s.rgBin = rg
		}
		if scout != "" {
			s.scoutBin = scout
		}
	}
}

// NewService creates a search service using the real executor and helpers
// resolved from PATH.
func NewService(opts ...Option) *Service {
	s := &Service{
		executor: pexec.NewRealExecutor(),
		timeout:  HelperTimeout,
		fdBin:    "fd",
		rgBin:    "rg",
		scoutBin: "scout",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run invokes a helper with the service timeout. A non-zero exit with no
// stdout yields empty output and no error; a timeout is a real error.
func (s *Service) run(ctx context.Context, root, bin string, args ...string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stdout, _, err := s.executor.Run(runCtx, root, bin, args...)
	if ctxErr := runCtx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil && len(stdout) == 0 {
		return nil, nil
	}
	return stdout, nil
}
