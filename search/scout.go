package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Scout is an indexing search helper that must be installed in PATH.
// Unlike fd and rg it takes the root as a flag and prints a JSON document.

// ScoutFindOptions control scout file-name searches.
type ScoutFindOptions struct {
	Limit     int   `json:"limit,omitempty"`
	Gitignore *bool `json:"gitignore,omitempty"`
}

// ScoutSearchOptions control scout content searches.
type ScoutSearchOptions struct {
	Ext   string `json:"ext,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// ScoutListOptions control scout directory listings.
type ScoutListOptions struct {
	Gitignore *bool `json:"gitignore,omitempty"`
}

func (s *Service) runScout(ctx context.Context, args []string, v any) error {
	out, err := s.run(ctx, "", s.scoutBin, args...)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return nil
	}
	if err := json.Unmarshal(out, v); err != nil {
		return fmt.Errorf("scout returned malformed output: %w", err)
	}
	return nil
}

// ScoutFind searches file names matching pattern under root.
func (s *Service) ScoutFind(ctx context.Context, root, pattern string, opts ScoutFindOptions) ([]FileInfo, error) {
	args := []string{"find", pattern, "--root", root}
	if opts.Limit > 0 {
		args = append(args, "--limit", strconv.Itoa(opts.Limit))
	}
	if opts.Gitignore != nil {
		args = append(args, "--gitignore", strconv.FormatBool(*opts.Gitignore))
	}

	files := []FileInfo{}
	if err := s.runScout(ctx, args, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// ScoutSearch runs a content search under root.
func (s *Service) ScoutSearch(ctx context.Context, root, query string, opts ScoutSearchOptions) ([]Match, error) {
	args := []string{"search", query, "--root", root}
	if opts.Ext != "" {
		args = append(args, "--ext", opts.Ext)
	}
	if opts.Limit > 0 {
		args = append(args, "--limit", strconv.Itoa(opts.Limit))
	}

	matches := []Match{}
	if err := s.runScout(ctx, args, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// ScoutList lists files under root.
func (s *Service) ScoutList(ctx context.Context, root string, opts ScoutListOptions) ([]FileInfo, error) {
	args := []string{"list", "--root", root}
	if opts.Gitignore != nil {
		args = append(args, "--gitignore", strconv.FormatBool(*opts.Gitignore))
	}

	files := []FileInfo{}
	if err := s.runScout(ctx, args, &files); err != nil {
		return nil, err
	}
	return files, nil
}
