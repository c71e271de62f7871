package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/siqueiraa/HubSync/pkg/entity"
	"github.com/siqueiraa/HubSync/pkg/identity"
	"github.com/siqueiraa/HubSync/pkg/mapping"
	"github.com/siqueiraa/HubSync/pkg/record"
)

// applyRelation adds the contribution of one relation to rec: an identifier
// list in Relations, or an image link in Fields for rendition relations.
func (t *Transformer) applyRelation(ctx context.Context, m mapping.EntityMapping, e *entity.Entity, rel entity.Relation, rec *record.Record) error {
	name := strings.ToLower(rel.Name)
	if name == "" || len(rel.IDs) == 0 {
		return nil
	}

	if !m.IsRenditionRelation(name) {
		rec.Relations[name] = identity.JoinUpper(t.namespace, rel.IDs)
		return nil
	}

	// Asset to asset rendition relations are not resolved.
	if e.IsAsset() {
		return nil
	}

	markup, ok, err := t.embeddedAsset(ctx, m, rel)
	if err != nil {
		return fmt.Errorf("relation %s: %w", rel.Name, err)
	}
	if !ok {
		return nil
	}
	if _, taken := rec.Fields[name]; taken {
		return fmt.Errorf("relation %s: %w", rel.Name, ErrFieldConflict)
	}
	rec.Fields[name] = markup
	return nil
}

// embeddedAsset resolves the image link of a rendition relation. Image
// fields hold a single asset, so only the first related id is used.
func (t *Transformer) embeddedAsset(ctx context.Context, m mapping.EntityMapping, rel entity.Relation) (string, bool, error) {
	id := rel.IDs[0]
	asset, err := t.repo.FetchEntityByID(ctx, id)
	if err != nil {
		return "", false, fmt.Errorf("fetch related entity %d: %w", id, err)
	}

	rendition := m.RenditionFor(rel.Name)
	if rendition == "" || asset == nil || !asset.IsAsset() {
		return "", false, nil
	}

	markup, err := t.links.EncodedMarkup(ctx, asset, rendition)
	if err != nil {
		return "", false, err
	}
	return markup, markup != "", nil
}
