package transform

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/siqueiraa/HubSync/pkg/entity"
	"github.com/siqueiraa/HubSync/pkg/entity/entitytest"
)

const (
	testBaseURL  = "https://hub.example.com"
	testDelivery = "https://delivery.example.com"

	// Derived identifiers of ids 5 and 9 in testNamespace.
	id5 = "9F901527-D3AE-5EBB-92F1-3910967E6FBD"
	id9 = "E9A449CF-69CE-5815-AD34-45CDDB8D7F94"
)

var (
	testNamespace = uuid.MustParse("9f3a1c2e-4b5d-4e6f-8a7b-0c1d2e3f4a5b")
	testTime      = time.Date(2023, 2, 15, 12, 0, 0, 0, time.UTC)
	errBroken     = errors.New("broken property")
)

// captureRecorder keeps everything it is told.
type captureRecorder struct {
	mu        sync.Mutex
	dropped   map[int64]error
	fallbacks []string
	created   []int64
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{dropped: map[int64]error{}}
}

func (c *captureRecorder) EntityDropped(id int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped[id] = err
}

func (c *captureRecorder) CultureFallback(_ int64, property string, culture language.Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbacks = append(c.fallbacks, property+"@"+culture.String())
}

func (c *captureRecorder) PublicLinkCreated(_ int64, _ string, linkID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, linkID)
}

func newTestTransformer(repo entity.Repository, rec Recorder) *Transformer {
	return New(Options{
		Repository:      repo,
		Namespace:       testNamespace,
		BaseURL:         testBaseURL + "/",
		DeliveryHostURL: testDelivery,
		Recorder:        rec,
	})
}

// heroAsset is an asset with dimensions for the bigthumbnail rendition.
func heroAsset() *entity.Entity {
	return entitytest.New(300, "asset.hero", entity.AssetDefinition).
		Prop("Title", "String", "Hero").
		Prop("FileName", "String", "hero.jpg").
		Hidden("Renditions", map[string]any{
			"bigthumbnail": map[string]any{
				"properties": map[string]any{"width": "1200", "height": "800"},
			},
		}).
		Hidden("FileProperties", map[string]any{
			"properties": map[string]any{"width": "4000", "height": "3000"},
		}).
		Renditions("bigthumbnail", "thumbnail", "downloadOriginal").
		Modified(testTime).
		Build()
}

// publicLink is an existing public link of asset for resource.
func publicLink(id, assetID int64, resource, hash string) *entity.Entity {
	return entitytest.New(id, "link", entity.PublicLinkDefinition).
		Hidden("Resource", resource).
		Hidden("VersionHash", hash).
		Hidden("RelativeUrl", "hero-image/"+resource).
		Rel(entity.AssetToPublicLink, assetID).
		Build()
}

// decorateLinks fills server-generated members of created public links.
func decorateLinks(e *entity.Entity) {
	vals := e.Values.(entity.Values)
	res, _ := e.String("Resource")
	vals["VersionHash"] = entity.Plain("v-" + res)
	vals["RelativeUrl"] = entity.Plain("generated/" + res)
}
