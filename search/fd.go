package search

import (
	"context"
	"strconv"
	"strings"
)

// FdOptions control fd invocations.
type FdOptions struct {
	Hidden bool   `json:"hidden,omitempty"`
	Ext    string `json:"ext,omitempty"`
	Type   string `json:"type,omitempty"` // "file", "dir", or "symlink"
	Limit  int    `json:"limit,omitempty"`
}

func fdArgs(opts FdOptions) []string {
	var args []string
	if opts.Hidden {
		args = append(args, "-H")
	}
	if opts.Type != "" {
		// fd takes the single-letter type code: f, d, l
		args = append(args, "-t", opts.Type[:1])
	}
	if opts.Ext != "" {
		args = append(args, "-e", opts.Ext)
	}
	if opts.Limit > 0 {
		args = append(args, "--max-results", strconv.Itoa(opts.Limit))
	}
	return args
}

// FdFind searches for files matching pattern under root.
func (s *Service) FdFind(ctx context.Context, root, pattern string, opts FdOptions) ([]FileInfo, error) {
	args := append([]string{pattern}, fdArgs(opts)...)
	out, err := s.run(ctx, root, s.fdBin, args...)
	if err != nil {
		return nil, err
	}
	return parseFileLines(out), nil
}

// FdList lists files under root without a pattern.
func (s *Service) FdList(ctx context.Context, root string, opts FdOptions) ([]FileInfo, error) {
	out, err := s.run(ctx, root, s.fdBin, fdArgs(opts)...)
	if err != nil {
		return nil, err
	}
	return parseFileLines(out), nil
}

// parseFileLines converts newline-separated paths into FileInfo entries.
// Always returns a non-nil slice so empty results serialize as [].
func parseFileLines(out []byte) []FileInfo {
	files := []FileInfo{}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		files = append(files, FileInfo{Path: line})
	}
	return files
}
