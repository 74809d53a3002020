package webhookreg

import (
	"context"
	"strings"
	"time"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type registrarMetrics struct {
	webhooksReused  prometheus.Counter
	webhooksCreated prometheus.Counter
	webhooksDeleted prometheus.Counter
}

var metrics *registrarMetrics

func init() {
	metrics = new(registrarMetrics)

	metrics.webhooksReused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sync_managed_webhooks_reused",
		Help: "The number of startups that reused an existing managed webhook",
	})

	metrics.webhooksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sync_managed_webhooks_created",
		Help: "The number of managed webhooks created on the remote platform",
	})

	metrics.webhooksDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sync_managed_webhooks_deleted",
		Help: "The number of managed webhooks deleted from the remote platform",
	})
}

// Registrar idempotently manages the remote webhook subscription.  Reuse is
// keyed on base url equality, not the full callback url, so a restarted
// process with the same base url rediscovers its own subscription while a
// different deployment always gets its own.
type Registrar struct {
	store WebhookStore
	api   EndpointAPI
}

func NewRegistrar(store WebhookStore, api EndpointAPI) *Registrar {
	return &Registrar{
		store: store,
		api:   api,
	}
}

// FindOrCreateManagedWebhook reuses the persisted webhook for baseURL when one
// exists and the remote platform still knows its endpoint; otherwise it
// creates a new subscription.  The remote-existence check covers a crash
// between remote create and local persist on an earlier startup - a persisted
// identifier is never trusted blindly.
func (r *Registrar) FindOrCreateManagedWebhook(ctx context.Context, baseURL string, enabledEvents []string) (*domain.ManagedWebhook, error) {

	log := logger.Log.WithFields(logrus.Fields{"base_url": baseURL})

	existing, err := r.store.FindEnabledByBaseURL(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		_, err := r.api.GetWebhookEndpoint(ctx, existing.EndpointID)
		if err == nil {
			log.WithFields(logrus.Fields{"endpoint_id": existing.EndpointID, "routing_id": existing.RoutingID}).Info("Reusing managed webhook")
			metrics.webhooksReused.Inc()
			return existing, nil
		}

		if !billingapi.IsNotFound(err) {
			return nil, err
		}

		log.WithFields(logrus.Fields{"endpoint_id": existing.EndpointID}).Warn("Persisted webhook endpoint no longer exists remotely, recreating")
		if err := r.store.Delete(ctx, existing.EndpointID); err != nil {
			return nil, err
		}
	}

	return r.CreateManagedWebhook(ctx, baseURL, enabledEvents)
}

// CreateManagedWebhook always creates a new remote subscription, bypassing the
// reuse check.
func (r *Registrar) CreateManagedWebhook(ctx context.Context, baseURL string, enabledEvents []string) (*domain.ManagedWebhook, error) {

	log := logger.Log.WithFields(logrus.Fields{"base_url": baseURL})

	routingID := uuid.NewString()
	callbackURL := BuildCallbackURL(baseURL, routingID)

	endpoint, err := r.api.CreateWebhookEndpoint(ctx, callbackURL, enabledEvents)
	if err != nil {
		return nil, err
	}

	webhook := &domain.ManagedWebhook{
		EndpointID:    endpoint.ID,
		RoutingID:     routingID,
		BaseURL:       baseURL,
		CallbackURL:   callbackURL,
		EnabledEvents: enabledEvents,
		Status:        StatusEnabled,
		CreatedAt:     time.Now(),
	}

	if err := r.store.Insert(ctx, webhook); err != nil {
		// Best effort release of the half-created subscription.
		if deleteErr := r.api.DeleteWebhookEndpoint(ctx, endpoint.ID); deleteErr != nil && !billingapi.IsNotFound(deleteErr) {
			logger.LogWithError(log, "Unable to release webhook endpoint after persist failure", deleteErr)
		}
		return nil, err
	}

	log.WithFields(logrus.Fields{"endpoint_id": endpoint.ID, "routing_id": routingID}).Info("Created managed webhook")
	metrics.webhooksCreated.Inc()

	return webhook, nil
}

// DeleteManagedWebhook removes the remote subscription and the local record.
// A subscription that is already gone remotely is not an error.
func (r *Registrar) DeleteManagedWebhook(ctx context.Context, endpointID string) error {

	log := logger.Log.WithFields(logrus.Fields{"endpoint_id": endpointID})

	err := r.api.DeleteWebhookEndpoint(ctx, endpointID)
	if err != nil && !billingapi.IsNotFound(err) {
		return err
	}

	if err := r.store.Delete(ctx, endpointID); err != nil {
		return err
	}

	log.Info("Deleted managed webhook")
	metrics.webhooksDeleted.Inc()

	return nil
}

// FindByRoutingID resolves the managed webhook a callback url addresses.
func (r *Registrar) FindByRoutingID(ctx context.Context, routingID string) (*domain.ManagedWebhook, error) {
	return r.store.FindByRoutingID(ctx, routingID)
}

// BuildCallbackURL embeds the routing identifier into the webhook callback
// url so deployments sharing infrastructure do not collide.
func BuildCallbackURL(baseURL string, routingID string) string {
	return strings.TrimRight(baseURL, "/") + "/webhooks/" + routingID
}
