package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/inkstone/inkstone/internal/checksum"
	"github.com/inkstone/inkstone/internal/db"
	"github.com/inkstone/inkstone/internal/schema"
)

// Result aggregates the outcome of one sync run. Success is true only when
// the error list, including deletion-propagation errors, is empty.
type Result struct {
	Uploaded       int      `json:"uploaded"`
	Downloaded     int      `json:"downloaded"`
	Deleted        int      `json:"deleted"`
	SkippedDeleted int      `json:"skippedDeleted"`
	Conflicts      int      `json:"conflicts"`
	Errors         []string `json:"errors"`
	Success        bool     `json:"success"`
}

// addError records a per-item failure keyed by the project title. A failure
// that indicates a remote conflict is additionally counted as a conflict.
func (r *Result) addError(title string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", title, err))
	if errors.Is(err, ErrConflict) || strings.Contains(strings.ToLower(err.Error()), "conflict") {
		r.Conflicts++
	}
}

func (r *Result) finish() *Result {
	r.Success = len(r.Errors) == 0
	return r
}

// Engine reconciles the local store against the remote sync API.
//
// One Run is one linear pass with no persisted state machine: deletion
// propagation, metadata diff, then per-project transfers decided by
// version-then-timestamp comparison. Remote calls are sequential so the
// order of transfers is deterministic. The engine is not reentrant; callers
// serialize invocations themselves.
type Engine struct {
	db     *db.DB
	client *Client
	logger *log.Logger
}

// NewEngine creates a sync engine over an open store and API client.
// If logger is nil, a default logger writing to stderr is used.
func NewEngine(database *db.DB, client *Client, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{db: database, client: client, logger: logger}
}

// precondition verifies the caller is authenticated and the account is
// approved, with a fresh server-side check. Any failure aborts the run with
// a single reported error and no partial work.
func (e *Engine) precondition(ctx context.Context, res *Result) bool {
	if !e.client.HasToken() {
		res.Errors = append(res.Errors, fmt.Sprintf("sync: %v", ErrUnauthorized))
		return false
	}
	approved, err := e.client.AccountStatus(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("sync: %v", err))
		return false
	}
	if !approved {
		res.Errors = append(res.Errors, fmt.Sprintf("sync: %v", ErrNotApproved))
		return false
	}
	return true
}

// Run performs one full bidirectional sync pass and returns its result.
// Failures never escape as errors: every outcome, including an aborted
// precondition, is reported through the Result.
func (e *Engine) Run(ctx context.Context) *Result {
	res := &Result{}
	if !e.precondition(ctx, res) {
		return res.finish()
	}

	e.propagateDeletions(ctx, res)

	remote, err := e.client.ListProjects(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("sync: %v", err))
		return res.finish()
	}
	locals, err := e.db.ListProjects(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("sync: %v", err))
		return res.finish()
	}

	remoteByID := make(map[string]ProjectMeta, len(remote))
	for _, m := range remote {
		remoteByID[m.ID] = m
	}
	localByID := make(map[string]*schema.Project, len(locals))
	for _, p := range locals {
		localByID[p.ID] = p
	}

	// Local -> remote direction: upload what is missing remotely, otherwise
	// let the higher version win, ties broken by wall-clock timestamps.
	for _, p := range locals {
		meta, ok := remoteByID[p.ID]
		if !ok {
			e.upload(ctx, res, p)
			continue
		}
		switch {
		case p.Version > meta.Version:
			e.upload(ctx, res, p)
		case p.Version < meta.Version:
			e.download(ctx, res, meta)
		default:
			remoteModified := parseTimestamp(meta.LastModifiedAt)
			switch {
			case p.UpdatedAt.After(remoteModified):
				e.upload(ctx, res, p)
			case remoteModified.After(p.UpdatedAt):
				e.download(ctx, res, meta)
			}
		}
	}

	// Remote -> local direction: download what is missing locally, unless a
	// tombstone says the user deleted it here before this run.
	for _, meta := range remote {
		if _, ok := localByID[meta.ID]; ok {
			continue
		}
		tombstoned, err := e.db.IsTombstoned(ctx, meta.ID)
		if err != nil {
			res.addError(meta.Title, err)
			continue
		}
		if tombstoned {
			res.SkippedDeleted++
			e.logger.Printf("Skipping deleted project %s (%s)", meta.ID, meta.Title)
			continue
		}
		e.download(ctx, res, meta)
	}

	res.finish()
	if res.Success {
		stamp := time.Now().UTC().Format(time.RFC3339Nano)
		if err := e.db.SetSetting(ctx, db.SettingLastSyncAt, stamp); err != nil {
			e.logger.Printf("Failed to record last sync time: %v", err)
		}
	}
	return res
}

// propagateDeletions pushes every unsynced tombstone to the remote. A 404 is
// success (the remote already lacks the project). Per-item failures are
// collected without aborting the loop; afterwards old synced tombstones are
// purged.
func (e *Engine) propagateDeletions(ctx context.Context, res *Result) {
	tombstones, err := e.db.ListUnsyncedTombstones(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("sync: %v", err))
		return
	}

	for _, t := range tombstones {
		if err := e.client.DeleteProject(ctx, t.ID); err != nil {
			res.addError(t.Title, err)
			continue
		}
		if err := e.db.MarkTombstoneSynced(ctx, t.ID); err != nil {
			res.addError(t.Title, err)
			continue
		}
		res.Deleted++
		e.logger.Printf("Propagated deletion of %s (%s)", t.ID, t.Title)
	}

	if n, err := e.db.PurgeSyncedTombstones(ctx); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("sync: %v", err))
	} else if n > 0 {
		e.logger.Printf("Purged %d old tombstones", n)
	}
}

// upload exports the full aggregate, serializes and checksums it, and sends
// it to the remote. A success stamps synced_at locally.
func (e *Engine) upload(ctx context.Context, res *Result, p *schema.Project) {
	agg, err := e.db.ExportAggregate(ctx, p.ID)
	if err != nil {
		res.addError(p.Title, err)
		return
	}
	payload, err := json.Marshal(agg)
	if err != nil {
		res.addError(p.Title, fmt.Errorf("failed to serialize aggregate: %w", err))
		return
	}

	item := UploadItem{
		ID:             p.ID,
		Title:          p.Title,
		Data:           string(payload),
		LastModifiedAt: p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Checksum:       checksum.Sum(string(payload)),
	}
	if err := e.client.Upload(ctx, item); err != nil {
		res.addError(p.Title, err)
		return
	}
	if err := e.db.MarkProjectSynced(ctx, p.ID); err != nil {
		res.addError(p.Title, err)
		return
	}
	res.Uploaded++
	e.logger.Printf("Uploaded %s (%s)", p.ID, p.Title)
}

// download fetches the remote snapshot and writes it through the upsert
// path, adopting the remote's version and last-modified timestamp so the
// next run sees both sides as equal.
func (e *Engine) download(ctx context.Context, res *Result, meta ProjectMeta) {
	dp, err := e.client.Download(ctx, meta.ID)
	if err != nil {
		res.addError(meta.Title, err)
		return
	}

	agg := dp.Data
	if agg.Project == nil {
		res.addError(meta.Title, fmt.Errorf("snapshot missing root project"))
		return
	}
	lastModified := parseTimestamp(dp.LastModifiedAt)
	if lastModified.IsZero() {
		lastModified = parseTimestamp(meta.LastModifiedAt)
	}
	if !lastModified.IsZero() {
		agg.Project.UpdatedAt = lastModified
	}
	if meta.Version > 0 {
		agg.Project.Version = meta.Version
	}

	if err := e.db.UpsertAggregate(ctx, agg); err != nil {
		res.addError(meta.Title, err)
		return
	}
	res.Downloaded++
	e.logger.Printf("Downloaded %s (%s)", meta.ID, meta.Title)
}

// UploadProjects uploads an explicit list of local projects through the
// batch endpoint, with the same per-item error discipline as a full run.
func (e *Engine) UploadProjects(ctx context.Context, projectIDs []string) *Result {
	res := &Result{}
	if !e.precondition(ctx, res) {
		return res.finish()
	}

	var items []UploadItem
	titleByID := make(map[string]string, len(projectIDs))
	for _, id := range projectIDs {
		agg, err := e.db.ExportAggregate(ctx, id)
		if err != nil {
			res.addError(id, err)
			continue
		}
		payload, err := json.Marshal(agg)
		if err != nil {
			res.addError(agg.Project.Title, fmt.Errorf("failed to serialize aggregate: %w", err))
			continue
		}
		titleByID[id] = agg.Project.Title
		items = append(items, UploadItem{
			ID:             id,
			Title:          agg.Project.Title,
			Data:           string(payload),
			LastModifiedAt: agg.Project.UpdatedAt.UTC().Format(time.RFC3339Nano),
			Checksum:       checksum.Sum(string(payload)),
		})
	}
	if len(items) == 0 {
		return res.finish()
	}

	batch, err := e.client.BatchUpload(ctx, items)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("sync: %v", err))
		return res.finish()
	}

	failed := make(map[string]bool, len(batch.Errors))
	for _, item := range batch.Errors {
		failed[item.ID] = true
		title := titleByID[item.ID]
		if title == "" {
			title = item.ID
		}
		res.addError(title, errors.New(item.Error))
	}
	for _, item := range items {
		if failed[item.ID] {
			continue
		}
		if err := e.db.MarkProjectSynced(ctx, item.ID); err != nil {
			res.addError(item.Title, err)
			continue
		}
		res.Uploaded++
	}
	return res.finish()
}

// RestoreAll downloads every remote project. Tombstoned ids are still
// skipped: restoring a project the user deleted locally would only be
// re-deleted by the next run's deletion propagation.
func (e *Engine) RestoreAll(ctx context.Context) *Result {
	res := &Result{}
	if !e.precondition(ctx, res) {
		return res.finish()
	}

	remote, err := e.client.ListProjects(ctx)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("sync: %v", err))
		return res.finish()
	}

	for _, meta := range remote {
		tombstoned, err := e.db.IsTombstoned(ctx, meta.ID)
		if err != nil {
			res.addError(meta.Title, err)
			continue
		}
		if tombstoned {
			res.SkippedDeleted++
			continue
		}
		e.download(ctx, res, meta)
	}
	return res.finish()
}

// parseTimestamp parses a remote ISO-8601 timestamp, zero time on failure.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
