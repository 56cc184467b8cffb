package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/storefront-client/pkg/client"
)

// Resource is a REST collection under one endpoint.
type Resource struct {
	client   *client.Client
	endpoint string
}

// NewResource returns a collection helper for endpoint.
func NewResource(c *client.Client, endpoint string) *Resource {
	return &Resource{client: c, endpoint: strings.TrimRight(client.NormalizeEndpoint(endpoint), "/")}
}

// Endpoint returns the collection path.
func (r *Resource) Endpoint() string {
	return r.endpoint
}

// List fetches the collection. query is appended as a query string.
func (r *Resource) List(ctx context.Context, query url.Values) (json.RawMessage, error) {
	endpoint := r.endpoint
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return r.client.Get(ctx, endpoint)
}

// Get fetches one item.
func (r *Resource) Get(ctx context.Context, id string) (json.RawMessage, error) {
	return r.client.Get(ctx, r.item(id))
}

// Create posts a new item.
func (r *Resource) Create(ctx context.Context, body any) (json.RawMessage, error) {
	return r.client.Post(ctx, r.endpoint, body)
}

// Update replaces one item.
func (r *Resource) Update(ctx context.Context, id string, body any) (json.RawMessage, error) {
	return r.client.Put(ctx, r.item(id), body)
}

// Delete removes one item.
func (r *Resource) Delete(ctx context.Context, id string) (json.RawMessage, error) {
	return r.client.Delete(ctx, r.item(id))
}

func (r *Resource) item(id string) string {
	return fmt.Sprintf("%s/%s", r.endpoint, url.PathEscape(id))
}
