// Package batch splits snapshot records into chunk files and writes them
// atomically into the incoming folder.
package batch

import (
	"errors"
	"fmt"
	"time"

	"github.com/siqueiraa/HubSync/pkg/record"
)

// TimestampLayout is the start-time segment of chunk file names. The
// watermark resolver parses it back.
const TimestampLayout = "20060102T150405"

// ErrInvalidChunkSize is returned for a non-positive records-per-file limit.
var ErrInvalidChunkSize = errors.New("max entity count per file must be positive")

// FileName returns "<entityType>_<start>_<index>.json".
func FileName(entityType string, start time.Time, index int) string {
	return fmt.Sprintf("%s_%s_%03d.json", entityType, start.Format(TimestampLayout), index)
}

// Partition splits records into ceil(len/size) contiguous chunks of at
// most size records. Empty input yields no chunks.
func Partition(records []*record.Record, size int) ([][]*record.Record, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	var chunks [][]*record.Record
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		chunks = append(chunks, records[start:end])
	}
	return chunks, nil
}
