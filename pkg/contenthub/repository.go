package contenthub

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/siqueiraa/HubSync/pkg/entity"
	"github.com/siqueiraa/HubSync/pkg/record"
)

const (
	// scrollKeepAlive is how long the server keeps a scroll cursor between pages.
	scrollKeepAlive   = "00:00:30"
	loadConfiguration = "Full"
)

type scrollRequest struct {
	Query             string `json:"query,omitempty"`
	ScrollID          string `json:"scroll_id,omitempty"`
	ScrollTime        string `json:"scroll_time"`
	LoadConfiguration string `json:"load_configuration,omitempty"`
}

type pageResource struct {
	Items      []entityResource `json:"items"`
	TotalItems int64            `json:"total_items"`
	ScrollID   string           `json:"scroll_id"`
}

type createRequest struct {
	EntityDefinition linkResource                `json:"entitydefinition"`
	Properties       map[string]any              `json:"properties"`
	Relations        map[string]relationResource `json:"relations,omitempty"`
}

type createResponse struct {
	ID int64 `json:"id"`
}

// quote renders s as a query string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// deltaQuery selects entities of typeName modified at or after since.
func deltaQuery(typeName string, since time.Time) string {
	return fmt.Sprintf("Definition.Name==%s AND ModifiedOn>=%s",
		quote(typeName), quote(since.UTC().Format(record.TimestampLayout)))
}

// criteriaQuery renders c in the query language.
func criteriaQuery(c entity.Criteria) string {
	var parts []string
	if c.Definition != "" {
		parts = append(parts, "Definition.Name=="+quote(c.Definition))
	}
	if c.Relation != "" {
		parts = append(parts, fmt.Sprintf("Parent(%s).id==%d", quote(c.Relation), c.ParentID))
	}
	if c.Property != "" {
		parts = append(parts, fmt.Sprintf("String(%s)==%s", quote(c.Property), quote(c.Value)))
	}
	return strings.Join(parts, " AND ")
}

// FetchEntitiesByType scrolls through every entity of typeName modified at
// or after modifiedAfter. Pages are requested as the sequence is consumed.
func (c *Client) FetchEntitiesByType(ctx context.Context, typeName string, modifiedAfter time.Time) iter.Seq2[*entity.Entity, error] {
	return func(yield func(*entity.Entity, error) bool) {
		req := scrollRequest{
			Query:             deltaQuery(typeName, modifiedAfter),
			ScrollTime:        scrollKeepAlive,
			LoadConfiguration: loadConfiguration,
		}
		for {
			var page pageResource
			if _, err := c.do(ctx, http.MethodPost, "/api/scroll", req, &page); err != nil {
				yield(nil, fmt.Errorf("scroll %s: %w", typeName, err))
				return
			}
			if len(page.Items) == 0 {
				return
			}
			for _, item := range page.Items {
				if !yield(c.toEntity(ctx, item), nil) {
					return
				}
			}
			if page.ScrollID == "" {
				return
			}
			req = scrollRequest{ScrollID: page.ScrollID, ScrollTime: scrollKeepAlive}
		}
	}
}

// FetchEntityByID returns nil, nil when the entity does not exist.
func (c *Client) FetchEntityByID(ctx context.Context, id int64) (*entity.Entity, error) {
	var r entityResource
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/entities/%d", id), nil, &r)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.toEntity(ctx, r), nil
}

// QueryFirst returns the first entity matching criteria. Failing queries
// are logged and reported as no match.
func (c *Client) QueryFirst(ctx context.Context, criteria entity.Criteria) (*entity.Entity, error) {
	query := criteriaQuery(criteria)
	v := url.Values{}
	v.Set("query", query)
	v.Set("take", "1")

	var page pageResource
	if _, err := c.do(ctx, http.MethodGet, "/api/entities/query?"+v.Encode(), nil, &page); err != nil {
		log.Printf("[ContentHub] Error retrieving entity with query: %s. Error: %v", query, err)
		return nil, nil
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return c.toEntity(ctx, page.Items[0]), nil
}

// CreateAndPersist creates an entity and returns its id.
func (c *Client) CreateAndPersist(ctx context.Context, typeName string, properties map[string]any, relations []entity.RelationLink) (int64, error) {
	req := createRequest{
		EntityDefinition: linkResource{Href: c.url("/api/entitydefinitions/" + url.PathEscape(typeName))},
		Properties:       properties,
	}
	if req.Properties == nil {
		req.Properties = map[string]any{}
	}
	for _, rl := range relations {
		if req.Relations == nil {
			req.Relations = make(map[string]relationResource)
		}
		req.Relations[rl.Name] = c.relationLinks(rl)
	}

	var out createResponse
	resp, err := c.do(ctx, http.MethodPost, "/api/entities", req, &out)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", typeName, err)
	}
	if out.ID != 0 {
		return out.ID, nil
	}
	if id, ok := idFromHref(resp.Header.Get("Location")); ok {
		return id, nil
	}
	return 0, fmt.Errorf("create %s: response carries no entity id", typeName)
}

// relationLinks renders a relation of a new entity. The new entity is the
// child of parents it links to with RoleChild.
func (c *Client) relationLinks(rl entity.RelationLink) relationResource {
	links := make([]linkResource, 0, len(rl.IDs))
	for _, id := range rl.IDs {
		links = append(links, linkResource{Href: c.url(fmt.Sprintf("/api/entities/%d", id))})
	}

	var r relationResource
	switch {
	case rl.Role == entity.RoleChild && len(links) == 1:
		r.Parent = &links[0]
	case rl.Role == entity.RoleChild:
		r.Parents = links
	default:
		r.Children = links
	}
	return r
}
