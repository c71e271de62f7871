// Package contenthub implements entity.Repository over the Content Hub REST
// API, authenticating with an OAuth2 resource owner password grant.
package contenthub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/oauth2"

	"github.com/siqueiraa/HubSync/pkg/entity"
)

const (
	defaultTimeout       = 100 * time.Second
	defaultDefinitionLRU = 128
	maxErrorBody         = 512
)

// ErrNotFound is returned for requests answered with 404.
var ErrNotFound = errors.New("not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures a Client. All connection settings are required.
type Options struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	UserName     string
	Password     string
	Timeout      time.Duration
	// DefinitionCacheSize bounds the entity definition cache.
	DefinitionCacheSize int
	// HTTPClient is the base client for token and API requests.
	HTTPClient *http.Client
}

// Client talks to one Content Hub instance.
type Client struct {
	endpoint    string
	http        *http.Client
	definitions *definitionCache
}

var _ entity.Repository = (*Client)(nil)

// New validates opts and returns a Client. No request is made until the
// first call.
func New(opts Options) (*Client, error) {
	required := []struct{ name, value string }{
		{"endpoint", opts.Endpoint},
		{"client id", opts.ClientID},
		{"client secret", opts.ClientSecret},
		{"user name", opts.UserName},
		{"password", opts.Password},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("content hub %s is required", r.name)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: timeout}
	}

	endpoint := strings.TrimRight(opts.Endpoint, "/")
	conf := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  endpoint + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	src := oauth2.ReuseTokenSource(nil, &passwordSource{
		ctx:      context.WithValue(context.Background(), oauth2.HTTPClient, base),
		conf:     conf,
		userName: opts.UserName,
		password: opts.Password,
	})

	c := &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: src, Base: base.Transport},
		},
	}

	size := opts.DefinitionCacheSize
	if size <= 0 {
		size = defaultDefinitionLRU
	}
	defs, err := newDefinitionCache(size, c.fetchDefinition)
	if err != nil {
		return nil, err
	}
	c.definitions = defs
	return c, nil
}

// passwordSource requests a new token with the user's credentials.
type passwordSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	userName string
	password string
}

func (s *passwordSource) Token() (*oauth2.Token, error) {
	tok, err := s.conf.PasswordCredentialsToken(s.ctx, s.userName, s.password)
	if err != nil {
		return nil, fmt.Errorf("content hub token: %w", err)
	}
	return tok, nil
}

func (c *Client) url(path string) string {
	return c.endpoint + path
}

// do sends a request and decodes a JSON response into out when out is not
// nil. The response is returned for header access.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(snippet))
	}

	if out != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp, fmt.Errorf("read %s %s: %w", method, path, err)
		}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return resp, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
	}
	return resp, nil
}
