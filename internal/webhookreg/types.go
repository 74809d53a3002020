package webhookreg

import (
	"context"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/domain"
)

const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// WebhookStore persists managed webhook records.
type WebhookStore interface {
	// FindEnabledByBaseURL returns the enabled record for a base url, or nil
	// when none exists.
	FindEnabledByBaseURL(ctx context.Context, baseURL string) (*domain.ManagedWebhook, error)

	// FindByRoutingID resolves the record addressed by a callback routing
	// identifier, or nil when unknown.
	FindByRoutingID(ctx context.Context, routingID string) (*domain.ManagedWebhook, error)

	Insert(ctx context.Context, webhook *domain.ManagedWebhook) error
	Delete(ctx context.Context, endpointID string) error
}

// EndpointAPI is the slice of the billing api the registrar needs.
type EndpointAPI interface {
	CreateWebhookEndpoint(ctx context.Context, callbackURL string, enabledEvents []string) (*billingapi.WebhookEndpoint, error)
	GetWebhookEndpoint(ctx context.Context, endpointID string) (*billingapi.WebhookEndpoint, error)
	DeleteWebhookEndpoint(ctx context.Context, endpointID string) error
}
