// Package transform maps repository entities onto snapshot records.
//
// One entity yields at most one record. Properties become fields, plain
// relations become lists of derived identifiers, and image relations and
// asset renditions become encoded image links backed by public links in the
// repository. A failure is contained to the entity that caused it.
package transform

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/siqueiraa/HubSync/pkg/entity"
	"github.com/siqueiraa/HubSync/pkg/mapping"
	"github.com/siqueiraa/HubSync/pkg/record"
)

// DefaultCulture is the culture used to read culture-sensitive properties.
var DefaultCulture = language.AmericanEnglish

// Options configures a Transformer.
type Options struct {
	Repository      entity.Repository
	Namespace       uuid.UUID
	BaseURL         string
	DeliveryHostURL string
	// Recorder defaults to LogRecorder.
	Recorder Recorder
	// FallbackCulture defaults to DefaultCulture.
	FallbackCulture language.Tag
}

// Transformer converts entities of one or more entity types into records.
// It is not safe for concurrent use; entities are processed one at a time.
type Transformer struct {
	repo            entity.Repository
	namespace       uuid.UUID
	links           *LinkBuilder
	rec             Recorder
	fallbackCulture language.Tag
}

// New returns a Transformer.
func New(opts Options) *Transformer {
	rec := opts.Recorder
	if rec == nil {
		rec = LogRecorder{}
	}
	culture := opts.FallbackCulture
	if culture == language.Und {
		culture = DefaultCulture
	}
	return &Transformer{
		repo:            opts.Repository,
		namespace:       opts.Namespace,
		links:           NewLinkBuilder(opts.Repository, opts.BaseURL, opts.DeliveryHostURL, rec),
		rec:             rec,
		fallbackCulture: culture,
	}
}

// Result is the outcome of transforming a stream of entities.
type Result struct {
	Records []*record.Record
	Fetched int
	Skipped int
	Dropped int
}

// TransformAll transforms every entity of the sequence in order. Entities
// that fail are reported to the Recorder and left out. The returned error
// is the failure of the sequence itself; Result then holds what was
// transformed before it.
func (t *Transformer) TransformAll(ctx context.Context, m mapping.EntityMapping, entities iter.Seq2[*entity.Entity, error]) (Result, error) {
	var res Result
	for e, err := range entities {
		if err != nil {
			return res, fmt.Errorf("fetch %s entities: %w", m.EntityDefinition, err)
		}
		res.Fetched++

		rec, err := t.Transform(ctx, m, e)
		if err != nil {
			res.Dropped++
			id := int64(0)
			if e != nil {
				id = e.ID
			}
			t.rec.EntityDropped(id, err)
			continue
		}
		if rec == nil {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// Transform builds the record of one entity. It returns nil, nil for
// entities without a numeric id or identifier. Errors, including panics,
// are returned as *EntityError.
func (t *Transformer) Transform(ctx context.Context, m mapping.EntityMapping, e *entity.Entity) (rec *record.Record, err error) {
	if e == nil || e.ID == 0 || e.Identifier == "" {
		return nil, nil
	}

	defer func() {
		if p := recover(); p != nil {
			rec, err = nil, &EntityError{EntityID: e.ID, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	rec, err = t.transform(ctx, m, e)
	if err != nil {
		return nil, &EntityError{EntityID: e.ID, Err: err}
	}
	return rec, nil
}

func (t *Transformer) transform(ctx context.Context, m mapping.EntityMapping, e *entity.Entity) (*record.Record, error) {
	rec := record.New(e.ID, e.Identifier, e.Timestamp(), t.namespace)

	for _, p := range e.Properties {
		name, value, ok, err := t.normalizeField(m, e, p)
		if err != nil {
			return nil, err
		}
		if ok {
			rec.Fields[name] = value
		}
	}

	if e.IsAsset() && m.HasRenditions() {
		for _, r := range e.Renditions {
			prefix, ok := m.MatchRendition(r.Name)
			if !ok {
				continue
			}
			markup, err := t.links.EncodedMarkup(ctx, e, r.Name)
			if err != nil {
				return nil, fmt.Errorf("rendition %s: %w", r.Name, err)
			}
			if markup != "" {
				rec.Fields[prefix] = markup
			}
		}
	}

	for _, rel := range e.Relations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := t.applyRelation(ctx, m, e, rel, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
