// Package entitytest provides an in-memory entity.Repository and entity
// builders for tests.
package entitytest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/siqueiraa/HubSync/pkg/entity"
)

// Repository is an in-memory entity.Repository. Entities are yielded by
// FetchEntitiesByType in insertion order.
type Repository struct {
	mu       sync.Mutex
	entities []*entity.Entity
	nextID   int64

	// FetchErr makes FetchEntitiesByType fail after yielding FetchErrAfter entities.
	FetchErr      error
	FetchErrAfter int
	// GetErr maps ids to errors returned by FetchEntityByID.
	GetErr map[int64]error
	// QueryErr is returned by QueryFirst.
	QueryErr error
	// OnCreate runs on every created entity before it is stored.
	OnCreate func(e *entity.Entity)

	Creates int
	Queries int
	Gets    int
}

var _ entity.Repository = (*Repository)(nil)

// NewRepository returns a repository holding entities.
func NewRepository(entities ...*entity.Entity) *Repository {
	r := &Repository{nextID: 100000}
	for _, e := range entities {
		r.Add(e)
	}
	return r
}

// Add stores an entity.
func (r *Repository) Add(e *entity.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = append(r.entities, e)
}

// ByDefinition returns the stored entities of the given definition.
func (r *Repository) ByDefinition(def string) []*entity.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Entity
	for _, e := range r.entities {
		if strings.EqualFold(e.DefinitionName, def) {
			out = append(out, e)
		}
	}
	return out
}

func (r *Repository) FetchEntitiesByType(ctx context.Context, typeName string, modifiedAfter time.Time) iter.Seq2[*entity.Entity, error] {
	return func(yield func(*entity.Entity, error) bool) {
		yielded := 0
		for _, e := range r.ByDefinition(typeName) {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if r.FetchErr != nil && yielded == r.FetchErrAfter {
				yield(nil, r.FetchErr)
				return
			}
			if ts := e.Timestamp(); ts != nil && ts.Before(modifiedAfter) {
				continue
			}
			yielded++
			if !yield(e, nil) {
				return
			}
		}
		if r.FetchErr != nil && yielded == r.FetchErrAfter {
			yield(nil, r.FetchErr)
		}
	}
}

func (r *Repository) FetchEntityByID(_ context.Context, id int64) (*entity.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Gets++
	if err, ok := r.GetErr[id]; ok {
		return nil, err
	}
	for _, e := range r.entities {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (r *Repository) QueryFirst(_ context.Context, c entity.Criteria) (*entity.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Queries++
	if r.QueryErr != nil {
		return nil, r.QueryErr
	}
	for _, e := range r.entities {
		if matches(e, c) {
			return e, nil
		}
	}
	return nil, nil
}

func matches(e *entity.Entity, c entity.Criteria) bool {
	if c.Definition != "" && !strings.EqualFold(e.DefinitionName, c.Definition) {
		return false
	}
	if c.Relation != "" {
		rel, ok := e.Relation(c.Relation)
		if !ok || !containsID(rel.IDs, c.ParentID) {
			return false
		}
	}
	if c.Property != "" {
		got, err := e.String(c.Property)
		if err != nil || !strings.EqualFold(got, c.Value) {
			return false
		}
	}
	return true
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (r *Repository) CreateAndPersist(_ context.Context, typeName string, properties map[string]any, relations []entity.RelationLink) (int64, error) {
	if typeName == "" {
		return 0, errors.New("entitytest: definition name is required")
	}
	r.mu.Lock()
	r.Creates++
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	vals := entity.Values{}
	for k, v := range properties {
		vals[k] = entity.Plain(v)
	}
	e := &entity.Entity{
		ID:             id,
		Identifier:     fmt.Sprintf("%s.%d", typeName, id),
		DefinitionName: typeName,
		Values:         vals,
	}
	for _, rl := range relations {
		e.Relations = append(e.Relations, entity.Relation{Name: rl.Name, IDs: append([]int64(nil), rl.IDs...)})
	}
	if r.OnCreate != nil {
		r.OnCreate(e)
	}
	r.Add(e)
	return id, nil
}

// Builder assembles test entities.
type Builder struct {
	e *entity.Entity
}

// New starts an entity with the given id, identifier and definition.
func New(id int64, identifier, definition string) *Builder {
	return &Builder{e: &entity.Entity{
		ID:             id,
		Identifier:     identifier,
		DefinitionName: definition,
		Values:         entity.Values{},
	}}
}

// Prop adds a culture-invariant property.
func (b *Builder) Prop(name, dataType string, v any) *Builder {
	b.e.Properties = append(b.e.Properties, entity.Property{Name: name, DataType: dataType})
	b.e.Values.(entity.Values)[name] = entity.Plain(v)
	return b
}

// LocalizedProp adds a culture-sensitive property.
func (b *Builder) LocalizedProp(name, dataType string, cultures map[string]any) *Builder {
	b.e.Properties = append(b.e.Properties, entity.Property{Name: name, DataType: dataType})
	b.e.Values.(entity.Values)[name] = entity.Localized(cultures)
	return b
}

// Hidden stores a value without declaring it as a property member, the way
// system blocks such as Renditions are carried.
func (b *Builder) Hidden(name string, v any) *Builder {
	b.e.Values.(entity.Values)[name] = entity.Plain(v)
	return b
}

// Rel adds a relation.
func (b *Builder) Rel(name string, ids ...int64) *Builder {
	b.e.Relations = append(b.e.Relations, entity.Relation{Name: name, IDs: ids})
	return b
}

// Renditions adds renditions by name.
func (b *Builder) Renditions(names ...string) *Builder {
	for _, n := range names {
		b.e.Renditions = append(b.e.Renditions, entity.Rendition{Name: n})
	}
	return b
}

// Modified sets the modified-on timestamp.
func (b *Builder) Modified(ts time.Time) *Builder {
	b.e.ModifiedOn = &ts
	return b
}

// Created sets the created-on timestamp.
func (b *Builder) Created(ts time.Time) *Builder {
	b.e.CreatedOn = &ts
	return b
}

// Reader replaces the value reader.
func (b *Builder) Reader(r entity.ValueReader) *Builder {
	b.e.Values = r
	return b
}

// Build returns the entity.
func (b *Builder) Build() *entity.Entity {
	return b.e
}

// FailingReader fails every read of the named property with Err.
type FailingReader struct {
	entity.Values
	Property string
	Err      error
}

func (f FailingReader) Value(name string) (entity.Lookup, error) {
	if strings.EqualFold(name, f.Property) {
		return entity.Lookup{}, f.Err
	}
	return f.Values.Value(name)
}

func (f FailingReader) CultureValue(name string, culture language.Tag) (entity.Lookup, error) {
	if strings.EqualFold(name, f.Property) {
		return entity.Lookup{}, f.Err
	}
	return f.Values.CultureValue(name, culture)
}
