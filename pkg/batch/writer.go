package batch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/siqueiraa/HubSync/pkg/record"
)

// Map keys are sorted so equal input produces equal bytes. Markup is already
// encoded and must not be escaped a second time.
var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// File describes one written chunk.
type File struct {
	Name     string
	Path     string
	Count    int
	Checksum string
	Bytes    int
}

// Writer writes chunk files into one folder.
type Writer struct {
	dir     string
	perFile int
}

// NewWriter returns a Writer for dir holding at most perFile records per
// file.
func NewWriter(dir string, perFile int) (*Writer, error) {
	if perFile <= 0 {
		return nil, ErrInvalidChunkSize
	}
	return &Writer{dir: dir, perFile: perFile}, nil
}

// Write stores records of entityType as chunk files named after start and
// returns them in index order. Nothing is written for empty input. A file is
// either complete or absent; files written before a failure are kept.
func (w *Writer) Write(entityType string, start time.Time, records []*record.Record) ([]File, error) {
	chunks, err := Partition(records, w.perFile)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(chunks))
	for i, chunk := range chunks {
		name := FileName(entityType, start, i)
		data, err := json.Marshal(chunk)
		if err != nil {
			return files, fmt.Errorf("encode %s: %w", name, err)
		}

		path := filepath.Join(w.dir, name)
		if err := writeAtomic(w.dir, name, data); err != nil {
			return files, err
		}

		f := File{
			Name:     name,
			Path:     path,
			Count:    len(chunk),
			Checksum: Checksum(data),
			Bytes:    len(data),
		}
		log.Printf("[Batch] Saved %d entities of type %s to %s", f.Count, entityType, path)
		files = append(files, f)
	}
	return files, nil
}

// Checksum returns the hex xxhash64 of data.
func Checksum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// writeAtomic writes data next to its destination and renames it into
// place. The temporary name never matches the chunk file pattern.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
