package mapping

import (
	"strings"
)

// EntityMapping configures how one entity definition is projected into
// snapshot records.
//
//	entityDefinition: M.Content
//	includedFields: [Title, Body]
//	renditionRelations:
//	  ContentToHeroImage: bigthumbnail
//	renditions: [thumbnail]
type EntityMapping struct {
	EntityDefinition string `yaml:"entityDefinition"`
	// Empty means every property is included. Names match exactly.
	IncludedFields []string `yaml:"includedFields,omitempty"`
	// Relation name (case-insensitive) -> rendition used to turn the related
	// asset into an image link field.
	RenditionRelations map[string]string `yaml:"renditionRelations,omitempty"`
	// Rendition name prefixes resolved to link fields when the entity itself
	// is an asset.
	Renditions []string `yaml:"renditions,omitempty"`
}

// Includes reports whether the property passes the allow-list.
func (m EntityMapping) Includes(property string) bool {
	if len(m.IncludedFields) == 0 {
		return true
	}
	for _, f := range m.IncludedFields {
		if f == property {
			return true
		}
	}
	return false
}

// IsRenditionRelation reports whether relation is configured as an
// embedded-asset relation (case-insensitive).
func (m EntityMapping) IsRenditionRelation(relation string) bool {
	for k := range m.RenditionRelations {
		if strings.EqualFold(k, relation) {
			return true
		}
	}
	return false
}

// RenditionFor returns the rendition configured for relation, or "" when
// none is configured.
func (m EntityMapping) RenditionFor(relation string) string {
	if v, ok := m.RenditionRelations[relation]; ok {
		return v
	}
	for k, v := range m.RenditionRelations {
		if strings.EqualFold(k, relation) {
			return v
		}
	}
	return ""
}

// MatchRendition returns the first configured rendition prefix that name
// starts with (case-insensitive).
func (m EntityMapping) MatchRendition(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, prefix := range m.Renditions {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return prefix, true
		}
	}
	return "", false
}

// HasRenditions reports whether direct rendition links are configured.
func (m EntityMapping) HasRenditions() bool {
	return len(m.Renditions) > 0
}
