// Package record defines the flat snapshot record written for every
// extracted entity.
package record

import (
	"time"

	"github.com/google/uuid"

	"github.com/siqueiraa/HubSync/pkg/identity"
)

// TimestampLayout renders lastmodified as a round-trip ISO-8601 timestamp
// with seven fractional digits.
const TimestampLayout = "2006-01-02T15:04:05.0000000Z07:00"

// MinTimestamp is written when the source supplies no timestamp.
const MinTimestamp = "0001-01-01T00:00:00.0000000"

// Record is one snapshot entry. JSON member names are consumed downstream
// and must not change.
type Record struct {
	ID           int64             `json:"id"`
	Identifier   string            `json:"identifier"`
	SitecoreID   uuid.UUID         `json:"sitecoreid"`
	LastModified string            `json:"lastmodified"`
	Fields       map[string]any    `json:"fields"`
	Relations    map[string]string `json:"relations"`
}

// New builds an empty record. The derived identifier is computed once here.
func New(id int64, identifier string, ts *time.Time, namespace uuid.UUID) *Record {
	return &Record{
		ID:           id,
		Identifier:   identifier,
		SitecoreID:   identity.ForSourceID(namespace, id),
		LastModified: FormatTimestamp(ts),
		Fields:       make(map[string]any),
		Relations:    make(map[string]string),
	}
}

// FormatTimestamp renders ts with TimestampLayout, or MinTimestamp for nil.
func FormatTimestamp(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return MinTimestamp
	}
	return ts.Format(TimestampLayout)
}
