package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/siqueiraa/HubSync/pkg/entity"
)

const (
	// DefaultResource is the resource queried when no rendition is given.
	DefaultResource = "downloadoriginal"
	// defaultCreateResource is the resource written when a link for the
	// default rendition has to be created.
	defaultCreateResource = "downloadOriginal"
)

// markupEncoder HTML-encodes link markup before it is stored as a field.
var markupEncoder = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// LinkBuilder resolves public links of asset renditions and renders the
// image markup the downstream CMS stores in image fields.
type LinkBuilder struct {
	repo         entity.Repository
	baseURL      string
	deliveryHost string
	rec          Recorder
}

// NewLinkBuilder returns a LinkBuilder. Trailing slashes of the URLs are
// trimmed.
func NewLinkBuilder(repo entity.Repository, baseURL, deliveryHost string, rec Recorder) *LinkBuilder {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &LinkBuilder{
		repo:         repo,
		baseURL:      strings.TrimRight(baseURL, "/"),
		deliveryHost: strings.TrimRight(deliveryHost, "/"),
		rec:          rec,
	}
}

// Resolve returns the public link of the asset rendition, creating it in
// the repository when none exists yet.
func (b *LinkBuilder) Resolve(ctx context.Context, assetID int64, rendition string) (*entity.Entity, error) {
	resource := DefaultResource
	if rendition != "" {
		resource = strings.ToLower(rendition)
	}

	link, err := b.repo.QueryFirst(ctx, entity.Criteria{
		Definition: entity.PublicLinkDefinition,
		Relation:   entity.AssetToPublicLink,
		ParentID:   assetID,
		Property:   entity.PropResource,
		Value:      resource,
	})
	if err != nil {
		return nil, fmt.Errorf("query public link %s of asset %d: %w", resource, assetID, err)
	}
	if link != nil {
		return link, nil
	}

	name := rendition
	if name == "" {
		name = defaultCreateResource
	}
	id, err := b.repo.CreateAndPersist(ctx, entity.PublicLinkDefinition,
		map[string]any{entity.PropResource: name},
		[]entity.RelationLink{{Name: entity.AssetToPublicLink, Role: entity.RoleChild, IDs: []int64{assetID}}},
	)
	if err != nil {
		return nil, fmt.Errorf("create public link %s of asset %d: %w", name, assetID, err)
	}

	link, err = b.repo.FetchEntityByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch public link %d: %w", id, err)
	}
	if link == nil {
		return nil, fmt.Errorf("public link %d of asset %d: %w", id, assetID, ErrLinkNotFound)
	}
	b.rec.PublicLinkCreated(assetID, name, id)
	return link, nil
}

// Markup renders the image element for asset served through link.
func (b *LinkBuilder) Markup(asset, link *entity.Entity) (string, error) {
	versionHash, err := link.String(entity.PropVersionHash)
	if err != nil {
		return "", err
	}
	resource, err := link.String(entity.PropResource)
	if err != nil {
		return "", err
	}
	relativeURL, err := link.String(entity.PropRelativeURL)
	if err != nil {
		return "", err
	}
	title, err := asset.String(entity.PropTitle)
	if err != nil {
		return "", err
	}
	fileName, err := asset.String(entity.PropFileName)
	if err != nil {
		return "", err
	}

	width, height, err := dimensions(asset, resource)
	if err != nil {
		return "", err
	}

	alt := title
	if alt == "" {
		alt = fileName
	}
	widthAttr := ""
	if width != "" {
		widthAttr = fmt.Sprintf(`width="%s"`, width)
	}
	heightAttr := ""
	if height != "" {
		heightAttr = fmt.Sprintf(`height="%s"`, height)
	}

	return fmt.Sprintf(
		`<image stylelabs-content-id="%d" thumbnailsrc="%s/api/gateway/%d/thumbnail" src="%s/api/public/content/%s?v=%s" stylelabs-content-type="Image" alt="%s" %s %s />`,
		asset.ID, b.baseURL, asset.ID, b.deliveryHost, relativeURL, versionHash, alt, heightAttr, widthAttr,
	), nil
}

// EncodedMarkup resolves the link of the asset rendition and returns the
// HTML-encoded markup.
func (b *LinkBuilder) EncodedMarkup(ctx context.Context, asset *entity.Entity, rendition string) (string, error) {
	link, err := b.Resolve(ctx, asset.ID, rendition)
	if err != nil {
		return "", err
	}
	markup, err := b.Markup(asset, link)
	if err != nil {
		return "", fmt.Errorf("render link of asset %d: %w", asset.ID, err)
	}
	return markupEncoder.Replace(markup), nil
}

// dimensions reads width and height of resource from the asset's
// Renditions block, falling back to FileProperties.
func dimensions(asset *entity.Entity, resource string) (width, height string, err error) {
	if resource != "" {
		renditions, err := structured(asset, entity.PropRenditions)
		if err != nil {
			return "", "", err
		}
		props := path(renditions, resource, "properties")
		width, height = dimension(props["width"]), dimension(props["height"])
	}

	if width == "" || height == "" {
		fileProps, err := structured(asset, entity.PropFileProperties)
		if err != nil {
			return "", "", err
		}
		props := path(fileProps, "properties")
		if width == "" {
			width = dimension(props["width"])
		}
		if height == "" {
			height = dimension(props["height"])
		}
	}
	return width, height, nil
}

func structured(e *entity.Entity, name string) (map[string]any, error) {
	l, err := e.Lookup(name)
	if err != nil {
		return nil, err
	}
	m, _ := l.Value.(map[string]any)
	return m, nil
}

// path walks nested objects and returns the object at keys, or nil.
func path(m map[string]any, keys ...string) map[string]any {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func dimension(v any) string {
	switch d := v.(type) {
	case string:
		return d
	case float64:
		return strconv.FormatFloat(d, 'f', -1, 64)
	case int:
		return strconv.Itoa(d)
	case int64:
		return strconv.FormatInt(d, 10)
	case fmt.Stringer:
		return d.String()
	default:
		return ""
	}
}
