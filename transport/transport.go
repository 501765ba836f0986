// Package transport speaks the wire protocol: newline-delimited JSON commands
// in, newline-delimited JSON events out. The desktop shell owns the other end
// of the pipe; this side stays dumb and just bridges to the router.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/vikramships/coworker-core/logger"
	"github.com/vikramships/coworker-core/router"
)

// maxLineSize bounds one inbound command line. Prompts can carry pasted
// files, so this is generous.
const maxLineSize = 10 * 1024 * 1024

// Transport bridges a duplex byte stream to the router.
type Transport struct {
	router *router.Router
	in     io.Reader
	out    io.Writer
	log    *slog.Logger

	outMu sync.Mutex
}

// New creates a transport over the given reader and writer.
func New(r *router.Router, in io.Reader, out io.Writer) *Transport {
	return &Transport{
		router: r,
		in:     in,
		out:    out,
		log:    logger.WithComponent("transport"),
	}
}

// Serve subscribes to router events and reads commands until the input
// closes or ctx is canceled. Returns nil on clean EOF and on cancellation.
//
// A blocked read on a pipe cannot be interrupted, so scanning happens on its
// own goroutine; on cancellation that goroutine is abandoned and dies with
// the process.
func (t *Transport) Serve(ctx context.Context) error {
	sub := t.router.Subscribe(t.send)
	defer t.router.Unsubscribe(sub)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(t.in)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			// nil means the client closed the pipe.
			return err
		case line := <-lines:
			t.handleLine(ctx, line)
		}
	}
}

func (t *Transport) handleLine(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	var cmd router.Command
	if err := json.Unmarshal([]byte(line), &cmd); err != nil {
		t.log.Warn("discarding malformed command line", "error", err)
		return
	}
	if cmd.Type == "" {
		t.log.Warn("discarding command without type")
		return
	}
	t.router.Dispatch(ctx, cmd)
}

// send writes one event line. Called from router broadcast, potentially from
// several goroutines; the mutex keeps lines whole.
func (t *Transport) send(ev router.ServerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		t.log.Error("marshaling event failed", "type", ev.Type, "error", err)
		return
	}

	t.outMu.Lock()
	defer t.outMu.Unlock()
	if _, err := t.out.Write(append(data, '\n')); err != nil {
		t.log.Error("writing event failed", "type", ev.Type, "error", err)
	}
}
