package entity

import (
	"context"
	"iter"
	"time"
)

// Role is the side of a relation an entity sits on.
type Role int

const (
	RoleParent Role = iota
	RoleChild
)

// RelationLink sets a relation on a new entity. With RoleChild the new
// entity becomes a child of the entities in IDs.
type RelationLink struct {
	Name string
	Role Role
	IDs  []int64
}

// Criteria selects entities of Definition that are children of ParentID
// through Relation and whose Property equals Value. Empty members do not
// constrain the match.
type Criteria struct {
	Definition string
	Relation   string
	ParentID   int64
	Property   string
	Value      string
}

// Repository is the port to the remote content repository. Calls block
// until the repository answers.
type Repository interface {
	// FetchEntitiesByType lazily yields every entity of typeName modified on
	// or after modifiedAfter, in repository order. A non-nil error ends the
	// sequence.
	FetchEntitiesByType(ctx context.Context, typeName string, modifiedAfter time.Time) iter.Seq2[*Entity, error]

	// FetchEntityByID returns nil, nil when the entity does not exist.
	FetchEntityByID(ctx context.Context, id int64) (*Entity, error)

	// QueryFirst returns the first match, or nil, nil when nothing matches.
	QueryFirst(ctx context.Context, c Criteria) (*Entity, error)

	// CreateAndPersist stores a new entity and returns its id.
	CreateAndPersist(ctx context.Context, typeName string, properties map[string]any, relations []RelationLink) (int64, error)
}
