package contenthub

import (
	"context"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/siqueiraa/HubSync/pkg/entity"
)

type linkResource struct {
	Href string `json:"href"`
}

type relationResource struct {
	Parent   *linkResource  `json:"parent,omitempty"`
	Parents  []linkResource `json:"parents,omitempty"`
	Child    *linkResource  `json:"child,omitempty"`
	Children []linkResource `json:"children,omitempty"`
}

type entityResource struct {
	ID               *int64                      `json:"id"`
	Identifier       string                      `json:"identifier"`
	CreatedOn        *time.Time                  `json:"created_on"`
	ModifiedOn       *time.Time                  `json:"modified_on"`
	EntityDefinition *linkResource               `json:"entitydefinition"`
	Properties       map[string]any              `json:"properties"`
	Relations        map[string]relationResource `json:"relations"`
	Renditions       map[string][]linkResource   `json:"renditions"`
}

// lastSegment returns the last path segment of href.
func lastSegment(href string) string {
	href = strings.TrimRight(href, "/")
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	return path.Base(href)
}

// idFromHref reads the entity id at the end of an entity href.
func idFromHref(href string) (int64, bool) {
	id, err := strconv.ParseInt(lastSegment(href), 10, 64)
	return id, err == nil
}

func (r relationResource) ids() []int64 {
	var links []linkResource
	if r.Parent != nil {
		links = append(links, *r.Parent)
	}
	links = append(links, r.Parents...)
	if r.Child != nil {
		links = append(links, *r.Child)
	}
	links = append(links, r.Children...)

	ids := make([]int64, 0, len(links))
	for _, l := range links {
		if id, ok := idFromHref(l.Href); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// looksLocalized reports whether v is an object keyed by culture names
// such as "en-US".
func looksLocalized(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.Contains(k, "-") {
			return false
		}
		if _, err := language.Parse(k); err != nil {
			return false
		}
	}
	return true
}

// toEntity converts a REST resource. Definitions that cannot be loaded are
// logged and the property types are inferred from the values.
func (c *Client) toEntity(ctx context.Context, r entityResource) *entity.Entity {
	e := &entity.Entity{
		Identifier: r.Identifier,
		CreatedOn:  r.CreatedOn,
		ModifiedOn: r.ModifiedOn,
	}
	if r.ID != nil {
		e.ID = *r.ID
	}
	if r.EntityDefinition != nil {
		e.DefinitionName = lastSegment(r.EntityDefinition.Href)
	}

	var def *definition
	if e.DefinitionName != "" {
		d, err := c.definitions.get(ctx, e.DefinitionName)
		if err != nil {
			log.Printf("[ContentHub] Definition %s unavailable, inferring property types: %v", e.DefinitionName, err)
		}
		def = d
	}

	values := make(entity.Values, len(r.Properties))
	for _, name := range propertyOrder(def, r.Properties) {
		raw := r.Properties[name]
		m, declared := def.member(name)

		dataType := inferDataType(raw)
		localized := looksLocalized(raw)
		if declared {
			dataType = m.dataType()
			localized = m.IsMultiLanguage
		}

		e.Properties = append(e.Properties, entity.Property{Name: name, DataType: dataType})
		if localized {
			cultures, _ := raw.(map[string]any)
			values[name] = entity.Localized(cultures)
		} else {
			values[name] = entity.Plain(raw)
		}
	}
	e.Values = values

	relNames := make([]string, 0, len(r.Relations))
	for name := range r.Relations {
		relNames = append(relNames, name)
	}
	sort.Strings(relNames)
	for _, name := range relNames {
		e.Relations = append(e.Relations, entity.Relation{Name: name, IDs: r.Relations[name].ids()})
	}

	rendNames := make([]string, 0, len(r.Renditions))
	for name := range r.Renditions {
		rendNames = append(rendNames, name)
	}
	sort.Strings(rendNames)
	for _, name := range rendNames {
		rend := entity.Rendition{Name: name}
		for _, l := range r.Renditions[name] {
			rend.Locations = append(rend.Locations, l.Href)
		}
		e.Renditions = append(e.Renditions, rend)
	}
	return e
}

// propertyOrder lists the properties of props in definition order, followed
// by undeclared ones sorted by name.
func propertyOrder(def *definition, props map[string]any) []string {
	seen := make(map[string]bool, len(props))
	out := make([]string, 0, len(props))
	if def != nil {
		for _, name := range def.order {
			for k := range props {
				if !seen[k] && strings.EqualFold(k, name) {
					seen[k] = true
					out = append(out, k)
				}
			}
		}
	}
	var rest []string
	for k := range props {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
