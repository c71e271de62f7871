// Package entity models the read-only view of content repository entities
// that the sync engine consumes, and the narrow repository port it talks to.
package entity

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Well-known definition, relation and property names of the content repository.
const (
	AssetDefinition      = "M.Asset"
	PublicLinkDefinition = "M.PublicLink"
	AssetToPublicLink    = "AssetToPublicLink"

	PropResource       = "Resource"
	PropVersionHash    = "VersionHash"
	PropRelativeURL    = "RelativeUrl"
	PropTitle          = "Title"
	PropFileName       = "FileName"
	PropRenditions     = "Renditions"
	PropFileProperties = "FileProperties"
)

// StringArrayType is the declared data type of multi-value string properties.
const StringArrayType = "string[]"

// Property describes one member of an entity. Its value is read through the
// entity's ValueReader.
type Property struct {
	Name     string
	DataType string
}

// IsStringArray reports whether the property is declared as a multi-value
// string (case-insensitive).
func (p Property) IsStringArray() bool {
	return strings.EqualFold(p.DataType, StringArrayType)
}

// Relation is a named relation with the ordered ids of its related entities.
type Relation struct {
	Name string
	IDs  []int64
}

// Rendition is a derived form of an asset, e.g. "thumbnail".
type Rendition struct {
	Name      string
	Locations []string
}

// Entity is a snapshot of one repository entity. ID is zero when the
// repository did not supply a numeric id.
type Entity struct {
	ID             int64
	Identifier     string
	DefinitionName string
	CreatedOn      *time.Time
	ModifiedOn     *time.Time
	Properties     []Property
	Relations      []Relation
	Renditions     []Rendition
	Values         ValueReader
}

// IsAsset reports whether the entity is of the asset definition.
func (e *Entity) IsAsset() bool {
	return e != nil && strings.EqualFold(e.DefinitionName, AssetDefinition)
}

// Timestamp returns the best available change timestamp: modified-on, else
// created-on, else nil.
func (e *Entity) Timestamp() *time.Time {
	if e.ModifiedOn != nil {
		return e.ModifiedOn
	}
	return e.CreatedOn
}

// Relation returns the relation with the given name (case-insensitive).
func (e *Entity) Relation(name string) (Relation, bool) {
	for _, r := range e.Relations {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Relation{}, false
}

// Lookup reads a property value through the entity's ValueReader. Entities
// without a reader report every property as absent.
func (e *Entity) Lookup(name string) (Lookup, error) {
	if e.Values == nil {
		return Lookup{State: Absent}, nil
	}
	return e.Values.Value(name)
}

// LookupCulture reads a property value for an explicit culture.
func (e *Entity) LookupCulture(name string, culture language.Tag) (Lookup, error) {
	if e.Values == nil {
		return Lookup{State: Absent}, nil
	}
	return e.Values.CultureValue(name, culture)
}

// String returns the value of a scalar string property, or "" when the
// property is absent, localized or not a string.
func (e *Entity) String(name string) (string, error) {
	l, err := e.Lookup(name)
	if err != nil {
		return "", err
	}
	if l.State != Found {
		return "", nil
	}
	s, _ := l.Value.(string)
	return s, nil
}
