package runner

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siqueiraa/HubSync/pkg/batch"
	"github.com/siqueiraa/HubSync/pkg/entity"
	"github.com/siqueiraa/HubSync/pkg/entity/entitytest"
	"github.com/siqueiraa/HubSync/pkg/journal"
	"github.com/siqueiraa/HubSync/pkg/mapping"
	"github.com/siqueiraa/HubSync/pkg/transform"
	"github.com/siqueiraa/HubSync/pkg/watermark"
)

var (
	ns        = uuid.MustParse("9f3a1c2e-4b5d-4e6f-8a7b-0c1d2e3f4a5b")
	batchTime = time.Date(2023, 2, 15, 12, 0, 0, 0, time.Local)
	errFetch  = errors.New("scroll expired")
)

type memJournal struct {
	entries []journal.Entry
}

func (m *memJournal) Record(e journal.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

type fileLog struct {
	names []string
	err   error
}

func (f *fileLog) Upload(_ context.Context, entityType string, file batch.File) error {
	f.names = append(f.names, entityType+"/"+file.Name)
	return f.err
}

func (f *fileLog) FileWritten(_ context.Context, entityType string, _ time.Time, file batch.File) error {
	f.names = append(f.names, entityType+"/"+file.Name)
	return f.err
}

// failingType fails the scroll of one entity type.
type failingType struct {
	entity.Repository
	typeName string
}

func (f failingType) FetchEntitiesByType(ctx context.Context, typeName string, since time.Time) iter.Seq2[*entity.Entity, error] {
	if typeName == f.typeName {
		return func(yield func(*entity.Entity, error) bool) {
			yield(nil, errFetch)
		}
	}
	return f.Repository.FetchEntitiesByType(ctx, typeName, since)
}

type fixture struct {
	incoming  string
	processed string
	repo      *entitytest.Repository
	journal   *memJournal
	archive   *fileLog
	notify    *fileLog
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	f := &fixture{
		incoming:  filepath.Join(dir, "incoming"),
		processed: filepath.Join(dir, "processed"),
		repo:      entitytest.NewRepository(),
		journal:   &memJournal{},
		archive:   &fileLog{},
		notify:    &fileLog{},
		now:       batchTime,
	}
	require.NoError(t, EnsureFolders(f.incoming, f.processed))
	return f
}

func (f *fixture) runner(t *testing.T, repo entity.Repository, perFile int, mappings ...mapping.EntityMapping) *Runner {
	t.Helper()
	w, err := batch.NewWriter(f.incoming, perFile)
	require.NoError(t, err)
	return New(Options{
		Mappings:   mappings,
		Repository: repo,
		Transformer: transform.New(transform.Options{
			Repository:      repo,
			Namespace:       ns,
			BaseURL:         "https://hub.example.com",
			DeliveryHostURL: "https://delivery.example.com",
		}),
		Writer:     w,
		Watermarks: watermark.Resolver{Incoming: f.incoming, Processed: f.processed, Overlap: 30 * time.Second},
		Journal:    f.journal,
		Archive:    f.archive,
		Notify:     f.notify,
		Now:        func() time.Time { return f.now },
	})
}

func (f *fixture) addContent(id int64, modified time.Time) {
	f.repo.Add(entitytest.New(id, "content."+string(rune('a'+id)), "M.Content").
		Prop("Title", "String", "Item").
		Modified(modified).
		Build())
}

func readChunk(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, jsoniter.Unmarshal(data, &out))
	return out
}

func TestRunEntityTypeWritesChunks(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 3; id++ {
		f.addContent(id, batchTime.Add(-time.Hour))
	}
	r := f.runner(t, f.repo, 2, mapping.EntityMapping{EntityDefinition: "M.Content"})

	rep := r.RunEntityType(context.Background(), mapping.EntityMapping{EntityDefinition: "M.Content"})
	require.NoError(t, rep.Err)
	assert.True(t, rep.Watermark.IsFull())
	assert.Equal(t, 3, rep.Fetched)
	assert.Equal(t, 3, rep.Written)
	require.Len(t, rep.Files, 2)
	assert.Equal(t, "M.Content_20230215T120000_000.json", rep.Files[0].Name)
	assert.Equal(t, "M.Content_20230215T120000_001.json", rep.Files[1].Name)

	chunk := readChunk(t, filepath.Join(f.incoming, rep.Files[1].Name))
	require.Len(t, chunk, 1)
	assert.Equal(t, float64(3), chunk[0]["id"])

	assert.Equal(t, []string{"M.Content/" + rep.Files[0].Name, "M.Content/" + rep.Files[1].Name}, f.archive.names)
	assert.Equal(t, f.archive.names, f.notify.names)

	require.Len(t, f.journal.entries, 1)
	e := f.journal.entries[0]
	assert.Equal(t, "M.Content", e.EntityType)
	assert.Equal(t, 3, e.Written)
	assert.Equal(t, []string{rep.Files[0].Name, rep.Files[1].Name}, e.Files)
	assert.Empty(t, e.Error)
}

func TestRunEntityTypeIsIncremental(t *testing.T) {
	f := newFixture(t)
	f.addContent(1, batchTime.Add(-time.Hour))
	f.addContent(2, batchTime.Add(-10*time.Second))
	m := mapping.EntityMapping{EntityDefinition: "M.Content"}
	r := f.runner(t, f.repo, 100, m)

	first := r.RunEntityType(context.Background(), m)
	require.NoError(t, first.Err)
	assert.Equal(t, 2, first.Written)

	// The first file moves on to processed, as the downstream importer does.
	require.NoError(t, os.Rename(
		filepath.Join(f.incoming, first.Files[0].Name),
		filepath.Join(f.processed, first.Files[0].Name)))

	f.addContent(3, batchTime.Add(30*time.Minute))
	f.now = batchTime.Add(time.Hour)
	second := r.RunEntityType(context.Background(), m)
	require.NoError(t, second.Err)

	assert.Equal(t, first.Files[0].Name, second.Watermark.File)
	assert.True(t, second.Watermark.Since.Equal(batchTime.Add(-30*time.Second)))
	// Entity 2 falls inside the overlap and is extracted again.
	assert.Equal(t, 2, second.Written)
	require.Len(t, second.Files, 1)
	assert.Equal(t, "M.Content_20230215T130000_000.json", second.Files[0].Name)

	chunk := readChunk(t, second.Files[0].Path)
	assert.Equal(t, float64(2), chunk[0]["id"])
	assert.Equal(t, float64(3), chunk[1]["id"])
}

func TestRunEntityTypeNothingToSave(t *testing.T) {
	f := newFixture(t)
	m := mapping.EntityMapping{EntityDefinition: "M.Content"}
	r := f.runner(t, f.repo, 100, m)

	rep := r.RunEntityType(context.Background(), m)
	require.NoError(t, rep.Err)
	assert.Zero(t, rep.Fetched)
	assert.Empty(t, rep.Files)

	entries, err := os.ReadDir(f.incoming)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Len(t, f.journal.entries, 1)
}

func TestRunEntityTypeDropsFailingEntity(t *testing.T) {
	f := newFixture(t)
	f.addContent(1, batchTime)
	f.repo.Add(entitytest.New(2, "content.broken", "M.Content").
		Prop("Title", "String", "Broken").
		Reader(entitytest.FailingReader{Values: entity.Values{}, Property: "Title", Err: errors.New("bad value")}).
		Build())
	f.addContent(3, batchTime)
	m := mapping.EntityMapping{EntityDefinition: "M.Content"}
	r := f.runner(t, f.repo, 100, m)

	rep := r.RunEntityType(context.Background(), m)
	require.NoError(t, rep.Err)
	assert.Equal(t, 3, rep.Fetched)
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 2, rep.Written)
}

func TestRunAllContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.addContent(1, batchTime)
	f.repo.Add(entitytest.New(7, "asset.7", "M.Asset").Prop("Title", "String", "Asset").Build())
	repo := failingType{Repository: f.repo, typeName: "M.Content"}
	r := f.runner(t, repo, 100,
		mapping.EntityMapping{EntityDefinition: "M.Content"},
		mapping.EntityMapping{},
		mapping.EntityMapping{EntityDefinition: "M.Asset"},
	)

	reports := r.RunAll(context.Background())
	require.Len(t, reports, 2, "mappings without a definition are skipped")

	assert.ErrorIs(t, reports[0].Err, errFetch)
	assert.Empty(t, reports[0].Files)

	require.NoError(t, reports[1].Err)
	assert.Equal(t, 1, reports[1].Written)
	assert.FileExists(t, filepath.Join(f.incoming, "M.Asset_20230215T120000_000.json"))

	require.Len(t, f.journal.entries, 2)
	assert.Contains(t, f.journal.entries[0].Error, "scroll expired")
}

func TestRunAllStopsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	r := f.runner(t, f.repo, 100, mapping.EntityMapping{EntityDefinition: "M.Content"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, r.RunAll(ctx))
}

func TestPublishFailuresDoNotFailTheRun(t *testing.T) {
	f := newFixture(t)
	f.addContent(1, batchTime)
	f.archive.err = errors.New("bucket gone")
	f.notify.err = errors.New("broker down")
	m := mapping.EntityMapping{EntityDefinition: "M.Content"}
	r := f.runner(t, f.repo, 100, m)

	rep := r.RunEntityType(context.Background(), m)
	require.NoError(t, rep.Err)
	assert.Equal(t, 1, rep.Written)
	assert.Len(t, f.archive.names, 1)
	assert.Len(t, f.notify.names, 1)
}

func TestEnsureFolders(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "web", "incoming")

	require.NoError(t, EnsureFolders(nested, dir))
	assert.DirExists(t, nested)
	require.NoError(t, EnsureFolders(nested))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	assert.Error(t, EnsureFolders(filepath.Join(file, "sub")))
}

func TestRunEntityTypeCountsSkipped(t *testing.T) {
	f := newFixture(t)
	f.addContent(1, batchTime)
	f.repo.Add(entitytest.New(0, "content.noid", "M.Content").Modified(batchTime).Build())
	f.repo.Add(entitytest.New(4, "", "M.Content").Modified(batchTime).Build())
	m := mapping.EntityMapping{EntityDefinition: "M.Content"}
	r := f.runner(t, f.repo, 100, m)

	rep := r.RunEntityType(context.Background(), m)
	require.NoError(t, rep.Err)
	assert.Equal(t, 3, rep.Fetched)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 1, rep.Written)

	require.Len(t, f.journal.entries, 1)
	assert.Equal(t, 2, f.journal.entries[0].Skipped)
}
