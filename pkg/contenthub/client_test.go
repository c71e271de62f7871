package contenthub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/siqueiraa/HubSync/pkg/entity"
)

// hub is a minimal Content Hub REST API.
type hub struct {
	t   *testing.T
	srv *httptest.Server

	tokens      atomic.Int32
	definitions atomic.Int32
	scrolls     []scrollRequest
	queries     []string
	created     []map[string]any

	mu      sync.Mutex
	pages   [][]string
	failing bool
}

func newHub(t *testing.T) *hub {
	h := &hub{t: t}
	h.srv = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hub) client(t *testing.T) *Client {
	t.Helper()
	c, err := New(Options{
		Endpoint:     h.srv.URL + "/",
		ClientID:     "client",
		ClientSecret: "secret",
		UserName:     "sync",
		Password:     "pass",
		HTTPClient:   h.srv.Client(),
	})
	require.NoError(t, err)
	return c
}

func (h *hub) entityJSON(id int64, def string, modified string) string {
	base := h.srv.URL
	return fmt.Sprintf(`{
		"id": %d,
		"identifier": "%s.%d",
		"entitydefinition": {"href": "%s/api/entitydefinitions/%s"},
		"created_on": "2022-01-01T00:00:00Z",
		"modified_on": %s,
		"properties": {
			"Title": "Item %d",
			"Description": {"en-US": "Hello", "fr-FR": "Bonjour"},
			"Tags": ["red", "blue"],
			"Extra": {"en-GB": "Colour"},
			"Renditions": {"thumbnail": {"properties": {"width": "100", "height": "80"}}}
		},
		"relations": {
			"ContentToTag": {"children": [{"href": "%s/api/entities/5"}, {"href": "%s/api/entities/9"}]},
			"AssetToPublicLink": {"parent": {"href": "%s/api/entities/300"}},
			"Empty": {}
		},
		"renditions": {
			"thumbnail": [{"href": "%s/api/gateway/%d/thumbnail"}],
			"downloadOriginal": [{"href": "%s/api/gateway/%d/original"}]
		}
	}`, id, def, id, base, def, modified, id, base, base, base, base, id, base, id)
}

func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/token" {
		require.NoError(h.t, r.ParseForm())
		assert.Equal(h.t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(h.t, "sync", r.PostForm.Get("username"))
		assert.Equal(h.t, "pass", r.PostForm.Get("password"))
		assert.Equal(h.t, "client", r.PostForm.Get("client_id"))
		h.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
		return
	}
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/entitydefinitions/M.Asset":
		h.definitions.Add(1)
		io.WriteString(w, `{"name":"M.Asset","member_groups":[{"name":"General","members":[
			{"name":"Title","type":"Property","data_type":"String"},
			{"name":"Description","type":"Property","data_type":"String","is_multilanguage":true},
			{"name":"Tags","type":"Property","data_type":"String","is_multivalue":true},
			{"name":"Renditions","type":"Property","data_type":"Json"},
			{"name":"AssetToPublicLink","type":"Relation"}
		]}]}`)

	case strings.HasPrefix(r.URL.Path, "/api/entitydefinitions/"):
		w.WriteHeader(http.StatusInternalServerError)

	case r.URL.Path == "/api/scroll":
		var req scrollRequest
		require.NoError(h.t, json.NewDecoder(r.Body).Decode(&req))
		h.mu.Lock()
		h.scrolls = append(h.scrolls, req)
		failing := h.failing
		var page []string
		if len(h.pages) > 0 {
			page, h.pages = h.pages[0], h.pages[1:]
		}
		h.mu.Unlock()
		if failing && req.ScrollID != "" {
			w.WriteHeader(http.StatusGone)
			io.WriteString(w, `{"error":"scroll expired"}`)
			return
		}
		fmt.Fprintf(w, `{"items":[%s],"scroll_id":"s1","total_items":3}`, strings.Join(page, ","))

	case r.URL.Path == "/api/entities/query":
		q := r.URL.Query().Get("query")
		h.mu.Lock()
		h.queries = append(h.queries, q)
		h.mu.Unlock()
		assert.Equal(h.t, "1", r.URL.Query().Get("take"))
		switch {
		case strings.Contains(q, "broken"):
			w.WriteHeader(http.StatusBadRequest)
		case strings.Contains(q, "Parent('AssetToPublicLink').id==300"):
			fmt.Fprintf(w, `{"items":[%s],"total_items":1}`, h.entityJSON(500, "M.PublicLink", "null"))
		default:
			io.WriteString(w, `{"items":[],"total_items":0}`)
		}

	case r.URL.Path == "/api/entities/300" && r.Method == http.MethodGet:
		io.WriteString(w, h.entityJSON(300, "M.Asset", `"2023-02-15T12:00:00Z"`))

	case r.URL.Path == "/api/entities" && r.Method == http.MethodPost:
		var body map[string]any
		require.NoError(h.t, json.NewDecoder(r.Body).Decode(&body))
		h.mu.Lock()
		h.created = append(h.created, body)
		n := len(h.created)
		h.mu.Unlock()
		if n%2 == 1 {
			w.Header().Set("Location", fmt.Sprintf("%s/api/entities/%d", h.srv.URL, 7000+n))
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%d}`, 7000+n)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func collect(t *testing.T, seq func(func(*entity.Entity, error) bool)) ([]*entity.Entity, error) {
	t.Helper()
	var out []*entity.Entity
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func TestNewValidatesOptions(t *testing.T) {
	valid := Options{Endpoint: "https://hub", ClientID: "c", ClientSecret: "s", UserName: "u", Password: "p"}
	_, err := New(valid)
	require.NoError(t, err)

	for _, mutate := range []func(*Options){
		func(o *Options) { o.Endpoint = "" },
		func(o *Options) { o.ClientID = "" },
		func(o *Options) { o.ClientSecret = "" },
		func(o *Options) { o.UserName = "" },
		func(o *Options) { o.Password = "" },
	} {
		o := valid
		mutate(&o)
		_, err := New(o)
		assert.Error(t, err)
	}
}

func TestFetchEntitiesByTypeScrolls(t *testing.T) {
	h := newHub(t)
	ts := `"2023-02-15T12:00:00Z"`
	h.pages = [][]string{
		{h.entityJSON(1, "M.Asset", ts), h.entityJSON(2, "M.Asset", ts)},
		{h.entityJSON(3, "M.Asset", ts)},
	}
	c := h.client(t)
	since := time.Date(2023, 2, 15, 11, 59, 30, 0, time.UTC)

	got, err := collect(t, c.FetchEntitiesByType(context.Background(), "M.Asset", since))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].ID, got[1].ID, got[2].ID})

	require.Len(t, h.scrolls, 3)
	assert.Equal(t, "Definition.Name=='M.Asset' AND ModifiedOn>='2023-02-15T11:59:30.0000000Z'", h.scrolls[0].Query)
	assert.Equal(t, "00:00:30", h.scrolls[0].ScrollTime)
	assert.Equal(t, "Full", h.scrolls[0].LoadConfiguration)
	assert.Equal(t, "s1", h.scrolls[1].ScrollID)
	assert.Empty(t, h.scrolls[1].Query)

	assert.Equal(t, int32(1), h.tokens.Load(), "the token is reused")
	assert.Equal(t, int32(1), h.definitions.Load(), "the definition is cached")
}

func TestFetchEntitiesByTypeStopsEarly(t *testing.T) {
	h := newHub(t)
	h.pages = [][]string{{h.entityJSON(1, "M.Asset", "null"), h.entityJSON(2, "M.Asset", "null")}}
	c := h.client(t)

	for range c.FetchEntitiesByType(context.Background(), "M.Asset", time.Time{}) {
		break
	}
	assert.Len(t, h.scrolls, 1)
}

func TestFetchEntitiesByTypeError(t *testing.T) {
	h := newHub(t)
	h.pages = [][]string{{h.entityJSON(1, "M.Asset", "null")}}
	h.failing = true
	c := h.client(t)

	got, err := collect(t, c.FetchEntitiesByType(context.Background(), "M.Asset", time.Time{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "410")
	assert.Len(t, got, 1)
}

func TestDecodeEntity(t *testing.T) {
	h := newHub(t)
	c := h.client(t)

	e, err := c.FetchEntityByID(context.Background(), 300)
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, int64(300), e.ID)
	assert.Equal(t, "M.Asset.300", e.Identifier)
	assert.Equal(t, "M.Asset", e.DefinitionName)
	assert.True(t, e.IsAsset())
	require.NotNil(t, e.ModifiedOn)
	assert.True(t, e.ModifiedOn.Equal(time.Date(2023, 2, 15, 12, 0, 0, 0, time.UTC)))

	// Declared members first, in definition order.
	names := make([]string, len(e.Properties))
	for i, p := range e.Properties {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"Title", "Description", "Tags", "Renditions", "Extra"}, names)
	assert.True(t, e.Properties[2].IsStringArray())
	assert.Equal(t, "Json", e.Properties[3].DataType)

	title, err := e.String("Title")
	require.NoError(t, err)
	assert.Equal(t, "Item 300", title)

	l, err := e.Lookup("Description")
	require.NoError(t, err)
	assert.Equal(t, entity.NeedsLocale, l.State)
	l, err = e.LookupCulture("Description", language.AmericanEnglish)
	require.NoError(t, err)
	assert.Equal(t, "Hello", l.Value)

	// Undeclared culture-keyed objects are localized too.
	l, err = e.Lookup("Extra")
	require.NoError(t, err)
	assert.Equal(t, entity.NeedsLocale, l.State)

	rel, ok := e.Relation("contenttotag")
	require.True(t, ok)
	assert.Equal(t, []int64{5, 9}, rel.IDs)
	rel, ok = e.Relation("AssetToPublicLink")
	require.True(t, ok)
	assert.Equal(t, []int64{300}, rel.IDs)
	rel, ok = e.Relation("Empty")
	require.True(t, ok)
	assert.Empty(t, rel.IDs)

	require.Len(t, e.Renditions, 2)
	assert.Equal(t, "downloadOriginal", e.Renditions[0].Name)
	assert.Equal(t, "thumbnail", e.Renditions[1].Name)
	assert.Len(t, e.Renditions[1].Locations, 1)
}

func TestDecodeWithoutDefinition(t *testing.T) {
	h := newHub(t)
	c := h.client(t)

	e, err := c.QueryFirst(context.Background(), entity.Criteria{
		Definition: entity.PublicLinkDefinition,
		Relation:   entity.AssetToPublicLink,
		ParentID:   300,
		Property:   entity.PropResource,
		Value:      "thumbnail",
	})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(500), e.ID)
	assert.Nil(t, e.ModifiedOn)

	types := map[string]string{}
	for _, p := range e.Properties {
		types[p.Name] = p.DataType
	}
	assert.Equal(t, "String", types["Title"])
	assert.Equal(t, entity.StringArrayType, types["Tags"])
	assert.Equal(t, "Json", types["Renditions"])

	l, err := e.Lookup("Description")
	require.NoError(t, err)
	assert.Equal(t, entity.NeedsLocale, l.State)
}

func TestFetchEntityByIDNotFound(t *testing.T) {
	c := newHub(t).client(t)

	e, err := c.FetchEntityByID(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestQueryFirst(t *testing.T) {
	h := newHub(t)
	c := h.client(t)
	ctx := context.Background()

	e, err := c.QueryFirst(ctx, entity.Criteria{
		Definition: entity.PublicLinkDefinition,
		Relation:   entity.AssetToPublicLink,
		ParentID:   301,
		Property:   entity.PropResource,
		Value:      "it's",
	})
	require.NoError(t, err)
	assert.Nil(t, e)
	require.Len(t, h.queries, 1)
	assert.Equal(t,
		`Definition.Name=='M.PublicLink' AND Parent('AssetToPublicLink').id==301 AND String('Resource')=='it\'s'`,
		h.queries[0])

	e, err = c.QueryFirst(ctx, entity.Criteria{Definition: "broken"})
	assert.NoError(t, err, "query failures read as no match")
	assert.Nil(t, e)
}

func TestCreateAndPersist(t *testing.T) {
	h := newHub(t)
	c := h.client(t)
	ctx := context.Background()
	links := []entity.RelationLink{{Name: entity.AssetToPublicLink, Role: entity.RoleChild, IDs: []int64{300}}}

	id, err := c.CreateAndPersist(ctx, entity.PublicLinkDefinition, map[string]any{"Resource": "thumbnail"}, links)
	require.NoError(t, err)
	assert.Equal(t, int64(7001), id, "id read from the Location header")

	id, err = c.CreateAndPersist(ctx, entity.PublicLinkDefinition, map[string]any{"Resource": "preview"}, links)
	require.NoError(t, err)
	assert.Equal(t, int64(7002), id, "id read from the body")

	require.Len(t, h.created, 2)
	body := h.created[0]
	assert.Equal(t, h.srv.URL+"/api/entitydefinitions/M.PublicLink", body["entitydefinition"].(map[string]any)["href"])
	assert.Equal(t, map[string]any{"Resource": "thumbnail"}, body["properties"])
	rel := body["relations"].(map[string]any)["AssetToPublicLink"].(map[string]any)
	assert.Equal(t, h.srv.URL+"/api/entities/300", rel["parent"].(map[string]any)["href"])
}

func TestRelationLinks(t *testing.T) {
	c := &Client{endpoint: "https://hub"}

	r := c.relationLinks(entity.RelationLink{Role: entity.RoleChild, IDs: []int64{1, 2}})
	assert.Nil(t, r.Parent)
	assert.Len(t, r.Parents, 2)

	r = c.relationLinks(entity.RelationLink{Role: entity.RoleParent, IDs: []int64{3}})
	require.Len(t, r.Children, 1)
	assert.Equal(t, "https://hub/api/entities/3", r.Children[0].Href)
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "M.Asset", lastSegment("https://hub/api/entitydefinitions/M.Asset"))
	assert.Equal(t, "42", lastSegment("https://hub/api/entities/42/"))
	assert.Equal(t, "42", lastSegment("https://hub/api/entities/42?culture=en-US"))

	_, ok := idFromHref("https://hub/api/entities/abc")
	assert.False(t, ok)
}

func TestDefinitionCacheCoalesces(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	cache, err := newDefinitionCache(4, func(context.Context, string) (*definition, error) {
		calls.Add(1)
		<-release
		return &definition{name: "M.Asset"}, nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := cache.get(context.Background(), "M.Asset")
			assert.NoError(t, err)
			assert.Equal(t, "M.Asset", d.name)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	_, err = cache.get(context.Background(), "M.Asset")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
