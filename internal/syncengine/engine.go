package syncengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/schema"
	"github.com/billingops/billing-sync-connector/internal/syncrun"
	"github.com/billingops/billing-sync-connector/internal/upsert"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Engine is the top level sync orchestrator.  It processes inbound webhook
// payloads, drives paginated backfill one page at a time, and exposes single
// entity resync.  All write paths share the same upsert guard, so rows
// converge to the payload with the latest last_synced_at regardless of
// arrival order.
type Engine struct {
	cfg          *config.Config
	database     *sql.DB
	api          ObjectAPI
	runs         syncrun.RunCoordinator
	webhooks     WebhookResolver
	publisher    ChangePublisher
	webhookCache *expirable.LRU[string, *domain.ManagedWebhook]
}

// NewEngine wires the orchestrator.  webhooks and publisher may be nil when
// routing-id verification or change fanout are not in play.
func NewEngine(cfg *config.Config, database *sql.DB, api ObjectAPI, runs syncrun.RunCoordinator, webhooks WebhookResolver, publisher ChangePublisher) *Engine {
	return &Engine{
		cfg:          cfg,
		database:     database,
		api:          api,
		runs:         runs,
		webhooks:     webhooks,
		publisher:    publisher,
		webhookCache: expirable.NewLRU[string, *domain.ManagedWebhook](cfg.WebhookCacheSize, nil, cfg.WebhookCacheTtl),
	}
}

// SupportedSyncObjects returns the object types the engine knows how to
// backfill.  An external scheduler fans out one backfill trigger per type.
func SupportedSyncObjects() []domain.ObjectType {
	return schema.SupportedSyncObjects()
}

// SyncSingleEntity fetches one object by its natural key and writes it through
// the upsert path, independent of any run.
func (e *Engine) SyncSingleEntity(ctx context.Context, objectType domain.ObjectType, id string) error {

	objectSchema, ok := schema.Lookup(objectType)
	if !ok || objectType == "invoice_line_item" {
		return fmt.Errorf("%w: %s", ErrUnsupportedObjectType, objectType)
	}

	path := objectSchema.ListPath
	if path == "" {
		path = "/v1/" + objectSchema.Table
	}

	raw, err := e.api.Get(ctx, path+"/"+url.PathEscape(id))
	if err != nil {
		return err
	}

	payload, err := decodePayload(raw)
	if err != nil {
		return err
	}

	return e.upsertPayload(ctx, objectSchema, payload, time.Now())
}

// upsertPayload writes one raw object and its embedded sub-entities.  The
// guard inside the generated statement keeps older payloads from overwriting
// newer ones; the write and the guard are one atomic statement.
func (e *Engine) upsertPayload(ctx context.Context, objectSchema *schema.ObjectSchema, payload map[string]interface{}, lastSyncedAt time.Time) error {

	if e.cfg.BackfillRelatedEntities {
		if err := e.ensureRelatedEntities(ctx, objectSchema, payload); err != nil {
			return err
		}
	}

	if e.cfg.AutoExpandLists {
		if err := e.expandEmbeddedLists(ctx, objectSchema, payload); err != nil {
			return err
		}
	}

	if err := e.writeRow(ctx, objectSchema, payload, lastSyncedAt); err != nil {
		return err
	}

	return e.writeEmbeddedEntities(ctx, objectSchema, payload, lastSyncedAt)
}

func (e *Engine) writeRow(ctx context.Context, objectSchema *schema.ObjectSchema, payload map[string]interface{}, lastSyncedAt time.Time) error {

	callDurationTimer := prometheus.NewTimer(metrics.upsertDuration)
	defer callDurationTimer.ObserveDuration()

	rawData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	columns := objectSchema.ExtractColumns(payload)
	columns = append(columns,
		upsert.Column{Name: "account_id", Type: "text", Value: e.cfg.SyncAccountId},
		upsert.Column{Name: "raw_data", Type: "jsonb", Value: string(rawData)},
		upsert.Column{Name: upsert.LastSyncedColumn, Type: "timestamptz", Value: lastSyncedAt},
	)

	statement, err := upsert.Build(e.cfg.SyncDatabaseSchema, objectSchema.Table, columns, objectSchema.ConflictTarget)
	if err != nil {
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.SyncDatabaseQueryTimeout)
	defer cancel()

	if _, err := e.database.ExecContext(queryCtx, statement.SQL, statement.Args...); err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "object": objectSchema.Object}).Error("Entity upsert failed")
		return err
	}

	metrics.entitiesUpserted.With(prometheus.Labels{"object": string(objectSchema.Object)}).Inc()

	e.publishChange(ctx, objectSchema, payload, lastSyncedAt)

	return nil
}

func (e *Engine) publishChange(ctx context.Context, objectSchema *schema.ObjectSchema, payload map[string]interface{}, lastSyncedAt time.Time) {
	if e.publisher == nil {
		return
	}

	id, _ := payload["id"].(string)
	change := EntityChange{
		Object:       objectSchema.Object,
		ID:           id,
		AccountID:    domain.AccountID(e.cfg.SyncAccountId),
		LastSyncedAt: lastSyncedAt,
	}

	// Fanout is best effort; a failed publish never fails the write.
	if err := e.publisher.PublishChange(ctx, change); err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "object": objectSchema.Object, "id": id}).Warn("Unable to publish entity change")
	}
}

// relatedEntityFields names the reference fields that must resolve to an
// already-synced row before an object is written, keeping foreign keys safe
// when events arrive ahead of their referents.
var relatedEntityFields = map[domain.ObjectType][]struct {
	field  string
	object domain.ObjectType
}{
	"subscription":   {{"customer", "customer"}},
	"invoice":        {{"customer", "customer"}, {"subscription", "subscription"}},
	"charge":         {{"customer", "customer"}, {"invoice", "invoice"}},
	"payment_intent": {{"customer", "customer"}},
	"payment_method": {{"customer", "customer"}},
	"setup_intent":   {{"customer", "customer"}},
	"credit_note":    {{"customer", "customer"}, {"invoice", "invoice"}},
	"refund":         {{"charge", "charge"}},
	"dispute":        {{"charge", "charge"}},
}

func (e *Engine) ensureRelatedEntities(ctx context.Context, objectSchema *schema.ObjectSchema, payload map[string]interface{}) error {

	for _, relation := range relatedEntityFields[objectSchema.Object] {
		id := referenceID(payload[relation.field])
		if id == "" {
			continue
		}

		relatedSchema, ok := schema.Lookup(relation.object)
		if !ok {
			continue
		}

		exists, err := e.entityExists(ctx, relatedSchema.Table, id)
		if err != nil {
			return err
		}

		if exists {
			continue
		}

		logger.Log.WithFields(logrus.Fields{"object": relation.object, "id": id}).Debug("Backfilling related entity")

		if err := e.SyncSingleEntity(ctx, relation.object, id); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) entityExists(ctx context.Context, table string, id string) (bool, error) {

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SyncDatabaseQueryTimeout)
	defer cancel()

	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s.%s WHERE id = $1)`, e.cfg.SyncDatabaseSchema, table)
	err := e.database.QueryRowContext(ctx, query, id).Scan(&exists)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "table": table}).Error("Entity existence check failed")
		return false, err
	}

	return exists, nil
}

// expandEmbeddedLists re-fetches embedded lists that arrived truncated so the
// stored payload is complete.
func (e *Engine) expandEmbeddedLists(ctx context.Context, objectSchema *schema.ObjectSchema, payload map[string]interface{}) error {

	switch objectSchema.Object {
	case "subscription":
		return e.expandList(ctx, payload, "items", "/v1/subscription_items",
			url.Values{"subscription": []string{stringField(payload, "id")}})
	case "invoice":
		id := stringField(payload, "id")
		if id == "" {
			return nil
		}
		return e.expandList(ctx, payload, "lines", "/v1/invoices/"+url.PathEscape(id)+"/lines", nil)
	}

	return nil
}

func (e *Engine) expandList(ctx context.Context, payload map[string]interface{}, field string, path string, filters url.Values) error {

	embedded, ok := payload[field].(map[string]interface{})
	if !ok {
		return nil
	}

	hasMore, _ := embedded["has_more"].(bool)
	if !hasMore {
		return nil
	}

	var complete []interface{}
	cursor := ""

	for {
		page, err := e.api.List(ctx, path, billingapi.ListParams{
			Limit:         e.cfg.BackfillPageSize,
			StartingAfter: cursor,
			Filters:       filters,
		})
		if err != nil {
			return err
		}

		for _, raw := range page.Data {
			item, err := decodePayload(raw)
			if err != nil {
				return err
			}
			complete = append(complete, item)
		}

		if !page.HasMore {
			break
		}
		cursor = page.LastID()
	}

	embedded["data"] = complete
	embedded["has_more"] = false

	return nil
}

// writeEmbeddedEntities explodes the sub-entity lists carried inside a payload
// into their own typed tables.
func (e *Engine) writeEmbeddedEntities(ctx context.Context, objectSchema *schema.ObjectSchema, payload map[string]interface{}, lastSyncedAt time.Time) error {

	switch objectSchema.Object {
	case "subscription":
		itemSchema, _ := schema.Lookup("subscription_item")
		for _, item := range embeddedListData(payload, "items") {
			item["subscription"] = payload["id"]
			if err := e.writeRow(ctx, itemSchema, item, lastSyncedAt); err != nil {
				return err
			}
		}
	case "invoice":
		lineSchema, _ := schema.Lookup("invoice_line_item")
		for _, line := range embeddedListData(payload, "lines") {
			line["invoice_id"] = payload["id"]
			if err := e.writeRow(ctx, lineSchema, line, lastSyncedAt); err != nil {
				return err
			}
		}
	}

	return nil
}

func embeddedListData(payload map[string]interface{}, field string) []map[string]interface{} {
	embedded, ok := payload[field].(map[string]interface{})
	if !ok {
		return nil
	}

	items, ok := embedded["data"].([]interface{})
	if !ok {
		return nil
	}

	var result []map[string]interface{}
	for _, item := range items {
		if entry, ok := item.(map[string]interface{}); ok {
			result = append(result, entry)
		}
	}
	return result
}

func decodePayload(raw json.RawMessage) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unable to parse object payload: %w", err)
	}
	return payload, nil
}

func referenceID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		id, _ := v["id"].(string)
		return id
	}
	return ""
}

func stringField(payload map[string]interface{}, field string) string {
	value, _ := payload[field].(string)
	return value
}
