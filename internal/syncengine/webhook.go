package syncengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/schema"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type webhookEnvelope struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	APIVersion string `json:"api_version"`
	Created    int64  `json:"created"`
	Data       struct {
		Object map[string]interface{} `json:"object"`
	} `json:"data"`
}

// ProcessWebhook verifies a webhook delivery and dispatches its payload to the
// write path.  Verification happens before anything touches the database; an
// invalid delivery performs no write.  When a routing identifier is present it
// must resolve to a known managed webhook.
func (e *Engine) ProcessWebhook(ctx context.Context, rawBody []byte, signatureHeader string, routingID string) error {

	if routingID != "" {
		if err := e.verifyRoutingID(ctx, routingID); err != nil {
			metrics.webhooksProcessed.With(prometheus.Labels{"result": "unknown_routing_id"}).Inc()
			return err
		}
	}

	if err := VerifySignature(rawBody, signatureHeader, e.cfg.WebhookSigningSecret, e.cfg.WebhookSignatureTolerance); err != nil {
		metrics.webhooksProcessed.With(prometheus.Labels{"result": "invalid_signature"}).Inc()
		return err
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		metrics.webhooksProcessed.With(prometheus.Labels{"result": "malformed_payload"}).Inc()
		return fmt.Errorf("%w: unable to parse event payload", ErrInvalidSignature)
	}

	log := logger.Log.WithFields(logrus.Fields{"event_id": envelope.ID, "event_type": envelope.Type})

	lastSyncedAt := time.Unix(envelope.Created, 0)

	objectName := stringField(envelope.Data.Object, "object")
	objectSchema, supported := schema.ForPayloadObject(objectName)
	if !supported {
		// Unknown object types are acknowledged and skipped so the remote
		// platform does not redeliver them forever.
		log.WithFields(logrus.Fields{"object": objectName}).Debug("Ignoring event for unsupported object type")
		metrics.webhooksProcessed.With(prometheus.Labels{"result": "ignored"}).Inc()
		return e.recordEvent(ctx, rawBody, lastSyncedAt)
	}

	if err := e.upsertPayload(ctx, objectSchema, envelope.Data.Object, lastSyncedAt); err != nil {
		metrics.webhooksProcessed.With(prometheus.Labels{"result": "error"}).Inc()
		return err
	}

	if err := e.recordEvent(ctx, rawBody, lastSyncedAt); err != nil {
		metrics.webhooksProcessed.With(prometheus.Labels{"result": "error"}).Inc()
		return err
	}

	log.Debug("Processed webhook event")
	metrics.webhooksProcessed.With(prometheus.Labels{"result": "processed"}).Inc()

	return nil
}

// recordEvent stores the event envelope itself for auditability and replay.
func (e *Engine) recordEvent(ctx context.Context, rawBody []byte, lastSyncedAt time.Time) error {

	eventSchema, ok := schema.Lookup("event")
	if !ok {
		return nil
	}

	payload, err := decodePayload(rawBody)
	if err != nil {
		return err
	}

	return e.writeRow(ctx, eventSchema, payload, lastSyncedAt)
}

func (e *Engine) verifyRoutingID(ctx context.Context, routingID string) error {

	if e.webhooks == nil {
		return fmt.Errorf("%w: routing identifiers are not configured", ErrInvalidSignature)
	}

	if _, ok := e.webhookCache.Get(routingID); ok {
		return nil
	}

	webhook, err := e.webhooks.FindByRoutingID(ctx, routingID)
	if err != nil {
		return err
	}

	if webhook == nil {
		return fmt.Errorf("%w: unknown routing identifier", ErrInvalidSignature)
	}

	e.webhookCache.Add(routingID, webhook)

	return nil
}
