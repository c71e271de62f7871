package transform

import (
	"log"

	"golang.org/x/text/language"
)

// Recorder receives the diagnostics of a transformation. It is passed in
// explicitly so the transformer has no ambient logging dependency.
type Recorder interface {
	// EntityDropped reports an entity removed from the batch because
	// transforming it failed.
	EntityDropped(entityID int64, err error)
	// CultureFallback reports a culture-sensitive property read with the
	// fallback culture.
	CultureFallback(entityID int64, property string, culture language.Tag)
	// PublicLinkCreated reports a public link materialised in the repository.
	PublicLinkCreated(assetID int64, resource string, linkID int64)
}

// LogRecorder writes diagnostics through the standard logger.
type LogRecorder struct{}

var _ Recorder = LogRecorder{}

func (LogRecorder) EntityDropped(entityID int64, err error) {
	log.Printf("[Transform] Error processing entity ID: %d. Error: %v", entityID, err)
}

func (LogRecorder) CultureFallback(entityID int64, property string, culture language.Tag) {
	log.Printf("[Transform] Entity %d: property %s read with culture %s", entityID, property, culture)
}

func (LogRecorder) PublicLinkCreated(assetID int64, resource string, linkID int64) {
	log.Printf("[Transform] Created public link %d (%s) for asset %d", linkID, resource, assetID)
}

// nopRecorder discards everything.
type nopRecorder struct{}

func (nopRecorder) EntityDropped(int64, error) {}
func (nopRecorder) CultureFallback(int64, string, language.Tag) {}
func (nopRecorder) PublicLinkCreated(int64, string, int64) {}
