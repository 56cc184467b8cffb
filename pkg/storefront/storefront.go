// Package storefront provides typed helpers over the API client for the
// calls the storefront and admin dashboard make: authentication flows,
// catalog and order collections, and the operational status page.
package storefront

import (
	"github.com/Sternrassler/storefront-client/pkg/client"
)

// Collection endpoints.
const (
	EndpointProducts  = "/products"
	EndpointLicenses  = "/licenses"
	EndpointOrders    = "/orders"
	EndpointResellers = "/resellers"
	EndpointCart      = "/cart"
	EndpointStatus    = "/status"
)

// Storefront groups the helpers around one client.
type Storefront struct {
	Auth      *Auth
	Products  *Resource
	Licenses  *Resource
	Orders    *Resource
	Resellers *Resource
	Cart      *Resource

	client *client.Client
}

// New wires every helper to c.
func New(c *client.Client) *Storefront {
	return &Storefront{
		Auth:      &Auth{client: c},
		Products:  NewResource(c, EndpointProducts),
		Licenses:  NewResource(c, EndpointLicenses),
		Orders:    NewResource(c, EndpointOrders),
		Resellers: NewResource(c, EndpointResellers),
		Cart:      NewResource(c, EndpointCart),
		client:    c,
	}
}

// Client returns the underlying API client.
func (s *Storefront) Client() *client.Client {
	return s.client
}
