// Package runner drives one sync batch: for each configured entity type it
// resolves the delta watermark, fetches and transforms the changed entities
// and writes them as chunk files.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/siqueiraa/HubSync/pkg/batch"
	"github.com/siqueiraa/HubSync/pkg/entity"
	"github.com/siqueiraa/HubSync/pkg/journal"
	"github.com/siqueiraa/HubSync/pkg/mapping"
	"github.com/siqueiraa/HubSync/pkg/transform"
	"github.com/siqueiraa/HubSync/pkg/watermark"
)

const defaultDirMode = 0o755

// Journal records the outcome of each entity type run.
type Journal interface {
	Record(e journal.Entry) error
}

// Archiver copies a written chunk somewhere else.
type Archiver interface {
	Upload(ctx context.Context, entityType string, f batch.File) error
}

// Notifier announces a written chunk.
type Notifier interface {
	FileWritten(ctx context.Context, entityType string, startedAt time.Time, f batch.File) error
}

// Options wires a Runner. Journal, Archive and Notify are optional.
type Options struct {
	Mappings    []mapping.EntityMapping
	Repository  entity.Repository
	Transformer *transform.Transformer
	Writer      *batch.Writer
	Watermarks  watermark.Resolver

	Journal Journal
	Archive Archiver
	Notify  Notifier

	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner runs sync batches. Entity types are processed one after another.
type Runner struct {
	opts Options
	now  func() time.Time
}

// Report is the outcome of one entity type run.
type Report struct {
	EntityType string
	StartedAt  time.Time
	Watermark  watermark.Mark
	Fetched    int
	Written    int
	Skipped    int
	Dropped    int
	Files      []batch.File
	Duration   time.Duration
	Err        error
}

// New returns a Runner.
func New(opts Options) *Runner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{opts: opts, now: now}
}

// EnsureFolders creates missing folders.
func EnsureFolders(dirs ...string) error {
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return err
		}
		log.Printf("[Runner] WARNING: Creating folder %s", dir)
		if err := os.MkdirAll(dir, defaultDirMode); err != nil {
			return fmt.Errorf("failed to create folder %s: %w", dir, err)
		}
	}
	return nil
}

// RunAll runs every configured entity type. A failing entity type is logged
// and the batch continues with the next one. Mappings without a definition
// name are skipped.
func (r *Runner) RunAll(ctx context.Context) []Report {
	batchStart := r.now()
	log.Printf("[Runner] Starting download batch. Start time: %s", batchStart.Format(time.RFC3339))

	var reports []Report
	for _, m := range r.opts.Mappings {
		if m.EntityDefinition == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			log.Printf("[Runner] Batch interrupted: %v", err)
			break
		}

		rep := r.RunEntityType(ctx, m)
		if rep.Err != nil {
			log.Printf("[Runner] Error syncing %s: %v", m.EntityDefinition, rep.Err)
		}
		reports = append(reports, rep)
	}

	end := r.now()
	log.Printf("[Runner] Completed download batch at %s. total runtime in seconds: %.3f",
		end.Format(time.RFC3339), end.Sub(batchStart).Seconds())
	return reports
}

// RunEntityType syncs one entity type. Failures are returned in Report.Err;
// chunk files written before a failure stay in place.
func (r *Runner) RunEntityType(ctx context.Context, m mapping.EntityMapping) (rep Report) {
	start := r.now()
	rep = Report{EntityType: m.EntityDefinition, StartedAt: start}
	defer func() {
		rep.Duration = r.now().Sub(start)
		r.record(rep)
	}()

	mark, err := r.opts.Watermarks.Resolve(m.EntityDefinition)
	if err != nil {
		rep.Err = fmt.Errorf("resolve watermark: %w", err)
		return rep
	}
	rep.Watermark = mark
	log.Printf("[Runner] Downloading %s. Start time: %s. Last download time: %s",
		m.EntityDefinition, start.Format(time.RFC3339), formatMark(mark))

	entities := r.opts.Repository.FetchEntitiesByType(ctx, m.EntityDefinition, mark.Since)
	res, err := r.opts.Transformer.TransformAll(ctx, m, entities)
	rep.Fetched = res.Fetched
	rep.Skipped = res.Skipped
	rep.Dropped = res.Dropped
	if err != nil {
		rep.Err = err
		return rep
	}

	count := len(res.Records)
	log.Printf("[Runner] Downloaded %d entities of type %s (%d skipped, %d dropped). Started at: %s, total runtime in seconds: %.3f",
		count, m.EntityDefinition, res.Skipped, res.Dropped, start.Format(time.RFC3339), r.now().Sub(start).Seconds())
	if count == 0 {
		log.Printf("[Runner] No entities found - nothing to save. Skipping save for %s.", m.EntityDefinition)
		return rep
	}

	files, err := r.opts.Writer.Write(m.EntityDefinition, start, res.Records)
	rep.Files = files
	for _, f := range files {
		rep.Written += f.Count
		r.publish(ctx, m.EntityDefinition, start, f)
	}
	if err != nil {
		rep.Err = fmt.Errorf("write %s batch: %w", m.EntityDefinition, err)
	}
	return rep
}

// publish hands a written file to the archive and the notifier. Their
// failures never fail the run.
func (r *Runner) publish(ctx context.Context, entityType string, start time.Time, f batch.File) {
	if r.opts.Archive != nil {
		if err := r.opts.Archive.Upload(ctx, entityType, f); err != nil {
			log.Printf("[Runner] Failed to archive %s: %v", f.Name, err)
		}
	}
	if r.opts.Notify != nil {
		if err := r.opts.Notify.FileWritten(ctx, entityType, start, f); err != nil {
			log.Printf("[Runner] Failed to notify %s: %v", f.Name, err)
		}
	}
}

func (r *Runner) record(rep Report) {
	if r.opts.Journal == nil {
		return
	}
	e := journal.Entry{
		EntityType: rep.EntityType,
		StartedAt:  rep.StartedAt,
		Watermark:  rep.Watermark.Since,
		Fetched:    rep.Fetched,
		Written:    rep.Written,
		Skipped:    rep.Skipped,
		Dropped:    rep.Dropped,
		Duration:   rep.Duration,
	}
	for _, f := range rep.Files {
		e.Files = append(e.Files, f.Name)
	}
	if rep.Err != nil {
		e.Error = rep.Err.Error()
	}
	if err := r.opts.Journal.Record(e); err != nil {
		log.Printf("[Runner] Failed to journal %s run: %v", rep.EntityType, err)
	}
}

func formatMark(m watermark.Mark) string {
	if m.IsFull() {
		return "none (full sync)"
	}
	return m.Since.Format(time.RFC3339)
}
