package contenthub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/siqueiraa/HubSync/pkg/entity"
)

type memberResource struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	DataType        string `json:"data_type"`
	IsMultiLanguage bool   `json:"is_multilanguage"`
	IsMultiValue    bool   `json:"is_multivalue"`
}

type definitionResource struct {
	Name         string `json:"name"`
	MemberGroups []struct {
		Name    string           `json:"name"`
		Members []memberResource `json:"members"`
	} `json:"member_groups"`
}

// definition holds the property members of an entity definition.
type definition struct {
	name    string
	order   []string
	members map[string]memberResource // keyed by lower-cased name
}

func newDefinition(r definitionResource) *definition {
	d := &definition{name: r.Name, members: make(map[string]memberResource)}
	for _, g := range r.MemberGroups {
		for _, m := range g.Members {
			if m.Name == "" || m.DataType == "" {
				continue
			}
			d.order = append(d.order, m.Name)
			d.members[strings.ToLower(m.Name)] = m
		}
	}
	return d
}

func (d *definition) member(name string) (memberResource, bool) {
	if d == nil {
		return memberResource{}, false
	}
	m, ok := d.members[strings.ToLower(name)]
	return m, ok
}

// dataType returns the declared type of a member; multi-value members get
// a "[]" suffix.
func (m memberResource) dataType() string {
	t := m.DataType
	if m.IsMultiValue && !strings.HasSuffix(t, "[]") {
		t += "[]"
	}
	return t
}

// definitionCache caches definitions by name. Concurrent misses for the
// same name share one request.
type definitionCache struct {
	cache *lru.Cache[string, *definition]
	group singleflight.Group
	fetch func(ctx context.Context, name string) (*definition, error)
}

func newDefinitionCache(size int, fetch func(context.Context, string) (*definition, error)) (*definitionCache, error) {
	cache, err := lru.New[string, *definition](size)
	if err != nil {
		return nil, err
	}
	return &definitionCache{cache: cache, fetch: fetch}, nil
}

func (d *definitionCache) get(ctx context.Context, name string) (*definition, error) {
	if def, ok := d.cache.Get(name); ok {
		return def, nil
	}
	v, err, _ := d.group.Do(name, func() (any, error) {
		def, err := d.fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		d.cache.Add(name, def)
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*definition), nil
}

func (c *Client) fetchDefinition(ctx context.Context, name string) (*definition, error) {
	var r definitionResource
	if _, err := c.do(ctx, http.MethodGet, "/api/entitydefinitions/"+url.PathEscape(name), nil, &r); err != nil {
		return nil, fmt.Errorf("entity definition %s: %w", name, err)
	}
	if r.Name == "" {
		r.Name = name
	}
	return newDefinition(r), nil
}

// inferDataType guesses the data type of a property without a declared
// member.
func inferDataType(v any) string {
	switch val := v.(type) {
	case string:
		return "String"
	case bool:
		return "Boolean"
	case float64:
		return "Decimal"
	case []any:
		if _, err := entity.Strings(val); err == nil {
			return entity.StringArrayType
		}
		return "Json"
	case map[string]any:
		return "Json"
	default:
		return "String"
	}
}
