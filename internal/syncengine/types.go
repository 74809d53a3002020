package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/domain"
)

var ErrUnsupportedObjectType = errors.New("unsupported sync object type")

// ObjectAPI is the slice of the billing api client the engine drives.
type ObjectAPI interface {
	List(ctx context.Context, path string, params billingapi.ListParams) (*billingapi.ListPage, error)
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// WebhookResolver resolves the managed webhook a routing identifier addresses.
type WebhookResolver interface {
	FindByRoutingID(ctx context.Context, routingID string) (*domain.ManagedWebhook, error)
}

// EntityChange describes one successful upsert, published to the optional
// change fanout.
type EntityChange struct {
	Object       domain.ObjectType `json:"object"`
	ID           string            `json:"id"`
	AccountID    domain.AccountID  `json:"account"`
	LastSyncedAt time.Time         `json:"last_synced_at"`
}

// ChangePublisher fans out entity changes to downstream consumers.
type ChangePublisher interface {
	PublishChange(ctx context.Context, change EntityChange) error
}

// BackfillResult reports one page's worth of progress.  HasMore signals the
// caller to invoke again; the engine keeps no state between calls beyond the
// run coordinator rows and the remote pagination cursor.
type BackfillResult struct {
	Object         domain.ObjectType `json:"object"`
	ProcessedCount int               `json:"processedCount"`
	HasMore        bool              `json:"hasMore"`
	RunAccount     domain.AccountID  `json:"runAccount"`
	RunStartedAt   time.Time         `json:"runStartedAt"`
}

// BackfillSummary is the aggregate outcome of a full processUntilDone loop.
type BackfillSummary struct {
	ProcessedCounts map[domain.ObjectType]int `json:"processedCounts"`
	TotalProcessed  int                       `json:"totalProcessed"`
	RunAccount      domain.AccountID          `json:"runAccount"`
	RunStartedAt    time.Time                 `json:"runStartedAt"`
}
