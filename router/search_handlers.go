package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vikramships/coworker-core/metrics"
	"github.com/vikramships/coworker-core/search"
)

// Search commands run on worker goroutines so a slow helper never blocks the
// dispatch loop. Results and failures come back as events like everything else.

func (r *Router) async(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

func (r *Router) emitSearchError(eventType, message string) {
	r.emit(ServerEvent{Type: eventType, Payload: ErrorPayload{Message: message}})
}

func (r *Router) handleFdFind(ctx context.Context, raw json.RawMessage) {
	p, err := decode[FdFindPayload](raw)
	if err != nil {
		r.emitSearchError("fd.error", err.Error())
		return
	}
	r.async(func() {
		start := time.Now()
		files, err := r.search.FdFind(ctx, p.Root, p.Pattern, p.Options)
		metrics.RecordSearch("fd", time.Since(start))
		if err != nil {
			r.emitSearchError("fd.error", err.Error())
			return
		}
		r.emit(ServerEvent{Type: "fd.find.result", Payload: FilesPayload{Files: files}})
	})
}

func (r *Router) handleFdList(ctx context.Context, raw json.RawMessage) {
	p, err := decode[FdListPayload](raw)
	if err != nil {
		r.emitSearchError("fd.error", err.Error())
		return
	}
	r.async(func() {
		start := time.Now()
		files, err := r.search.FdList(ctx, p.Root, p.Options)
		metrics.RecordSearch("fd", time.Since(start))
		if err != nil {
			r.emitSearchError("fd.error", err.Error())
			return
		}
		r.emit(ServerEvent{Type: "fd.list.result", Payload: FilesPayload{Files: files}})
	})
}

func (r *Router) handleRgSearch(ctx context.Context, raw json.RawMessage) {
	p, err := decode[RgSearchPayload](raw)
	if err != nil {
		r.emitSearchError("rg.error", err.Error())
		return
	}
	r.async(func() {
		start := time.Now()
		results, err := r.search.RgSearch(ctx, p.Root, p.Query, p.Options)
		metrics.RecordSearch("rg", time.Since(start))
		if err != nil {
			r.emitSearchError("rg.error", err.Error())
			return
		}
		r.emit(ServerEvent{Type: "rg.search.result", Payload: MatchesPayload{Results: results}})
	})
}

func (r *Router) handleRgFiles(ctx context.Context, raw json.RawMessage) {
	p, err := decode[RgFilesPayload](raw)
	if err != nil {
		r.emitSearchError("rg.error", err.Error())
		return
	}
	r.async(func() {
		start := time.Now()
		files, err := r.search.RgFiles(ctx, p.Root, p.Pattern, p.Options.Ext)
		metrics.RecordSearch("rg", time.Since(start))
		if err != nil {
			r.emitSearchError("rg.error", err.Error())
			return
		}
		r.emit(ServerEvent{Type: "rg.files.result", Payload: FileNamesPayload{Files: files}})
	})
}

func (r *Router) handleScoutFind(ctx context.Context, raw json.RawMessage) {
	p, err := decode[ScoutFindPayload](raw)
	if err != nil {
		r.emitSearchError("scout.error", err.Error())
		return
	}
	r.async(func() {
		start := time.Now()
		files, err := r.search.ScoutFind(ctx, p.Root, p.Pattern, search.ScoutFindOptions{Limit: p.Limit})
		metrics.RecordSearch("scout", time.Since(start))
		if err != nil {
			r.emitSearchError("scout.error", err.Error())
			return
		}
		r.emit(ServerEvent{Type: "scout.find.result", Payload: FilesPayload{Files: files}})
	})
}

func (r *Router) handleScoutSearch(ctx context.Context, raw json.RawMessage) {
	p, err := decode[ScoutSearchPayload](raw)
	if err != nil {
		r.emitSearchError("scout.error", err.Error())
		return
	}
	r.async(func() {
		start := time.Now()
		results, err := r.search.ScoutSearch(ctx, p.Root, p.Query, search.ScoutSearchOptions{Ext: p.Ext, Limit: p.Limit})
		metrics.RecordSearch("scout", time.Since(start))
		if err != nil {
			r.emitSearchError("scout.error", err.Error())
			return
		}
		r.emit(ServerEvent{Type: "scout.search.result", Payload: MatchesPayload{Results: results}})
	})
}

func (r *Router) handleScoutList(ctx context.Context, raw json.RawMessage) {
	p, err := decode[ScoutListPayload](raw)
	if err != nil {
		r.emitSearchError("scout.error", err.Error())
		return
	}
	r.async(func() {
		start := time.Now()
		files, err := r.search.ScoutList(ctx, p.Root, search.ScoutListOptions{})
		metrics.RecordSearch("scout", time.Since(start))
		if err != nil {
			r.emitSearchError("scout.error", err.Error())
			return
		}
		r.emit(ServerEvent{Type: "scout.list.result", Payload: FilesPayload{Files: files}})
	})
}
