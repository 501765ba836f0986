package search

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// RgOptions control ripgrep content searches.
type RgOptions struct {
	Ext           string `json:"ext,omitempty"`
	Glob          string `json:"glob,omitempty"`
	Context       int    `json:"context,omitempty"`
	CaseSensitive bool   `json:"caseSensitive,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// rgJSONLine is one entry of rg's --json output. Only "match" entries carry
// the fields we need; other types (begin, end, context, summary) are skipped.
type rgJSONLine struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		LineNumber int `json:"line_number"`
		Line       struct {
			Text string `json:"text"`
		} `json:"lines"`
	} `json:"data"`
}

// RgSearch runs a content search under root and returns matching lines.
func (s *Service) RgSearch(ctx context.Context, root, query string, opts RgOptions) ([]Match, error) {
	args := []string{"--json", "-e", query}
	if opts.Ext != "" {
		args = append(args, "-g", "*."+opts.Ext)
	}
	if opts.Glob != "" {
		args = append(args, "-g", opts.Glob)
	}
	if opts.Context > 0 {
		args = append(args, "-C", strconv.Itoa(opts.Context))
	}
	if !opts.CaseSensitive {
		args = append(args, "-i")
	}

	out, err := s.run(ctx, root, s.rgBin, args...)
	if err != nil {
		return nil, err
	}

	matches := []Match{}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry rgJSONLine
		if jsonErr := json.Unmarshal([]byte(line), &entry); jsonErr != nil {
			continue
		}
		if entry.Type != "match" {
			continue
		}
		matches = append(matches, Match{
			Path:    entry.Data.Path.Text,
			Line:    entry.Data.LineNumber,
			Content: strings.TrimSpace(entry.Data.Line.Text),
		})
		if opts.Limit > 0 && len(matches) >= opts.Limit {
			break
		}
	}
	return matches, nil
}

// RgFiles lists files rg would search under root. A pattern filters file
// names as a glob; ext restricts by extension.
func (s *Service) RgFiles(ctx context.Context, root, pattern, ext string) ([]string, error) {
	args := []string{"--files"}
	if pattern != "" {
		args = append(args, "-g", pattern)
	}
	if ext != "" {
		args = append(args, "-g", "*."+ext)
	}

	out, err := s.run(ctx, root, s.rgBin, args...)
	if err != nil {
		return nil, err
	}

	files := []string{}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	return files, nil
}
