// Package identity derives the stable cross-system identifiers written into
// every snapshot record.
//
// Identifiers are RFC 4122 §4.3 name-based UUIDs (version 5, SHA-1). The
// namespace is configured once per deployment; the name for a source entity
// is its numeric id rendered in decimal and repeated three times. Both rules
// are frozen: changing either one re-keys every item already imported
// downstream.
package identity

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Derive returns the version 5 UUID for content within namespace.
func Derive(namespace uuid.UUID, content []byte) uuid.UUID {
	return uuid.NewSHA1(namespace, content)
}

// SourceName returns the name used to derive the identifier of a source
// entity, e.g. 42 -> "424242".
func SourceName(id int64) string {
	s := strconv.FormatInt(id, 10)
	return s + s + s
}

// ForSourceID derives the identifier of the source entity with the given
// numeric id.
func ForSourceID(namespace uuid.UUID, id int64) uuid.UUID {
	return Derive(namespace, []byte(SourceName(id)))
}

// JoinUpper derives the identifier of every id and joins them with "|",
// upper-cased, the way relation values are written downstream.
func JoinUpper(namespace uuid.UUID, ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, ForSourceID(namespace, id).String())
	}
	return strings.ToUpper(strings.Join(parts, "|"))
}
