package storefront

import (
	"context"

	"github.com/Sternrassler/storefront-client/pkg/client"
)

// ServiceStatus is one row of the operational status page.
type ServiceStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Status is the operational status payload.
type Status struct {
	Status    string          `json:"status"`
	Services  []ServiceStatus `json:"services,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

// Operational reports whether the overall status is "operational" or "ok".
func (s Status) Operational() bool {
	return s.Status == "operational" || s.Status == "ok"
}

// Status fetches the operational status page data.
func (s *Storefront) Status(ctx context.Context) (Status, error) {
	payload, err := s.client.Get(ctx, EndpointStatus)
	if err != nil {
		return Status{}, err
	}
	return client.Decode[Status](payload)
}
