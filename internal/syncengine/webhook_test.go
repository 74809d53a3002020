package syncengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/billingops/billing-sync-connector/internal/domain"

	"github.com/go-playground/assert/v2"
)

type fakeWebhookResolver struct {
	webhooks map[string]*domain.ManagedWebhook
	calls    int
}

func (f *fakeWebhookResolver) FindByRoutingID(ctx context.Context, routingID string) (*domain.ManagedWebhook, error) {
	f.calls++
	return f.webhooks[routingID], nil
}

// The engines in these tests carry a nil database handle on purpose: a
// rejected delivery must not reach the write path, and reaching it would
// panic the test.

func TestProcessWebhookRejectsMissingSignature(t *testing.T) {
	engine := NewEngine(testEngineConfig(), nil, &fakeObjectAPI{}, newFakeRunCoordinator(), nil, nil)

	err := engine.ProcessWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "", "")

	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestProcessWebhookRejectsWrongSecret(t *testing.T) {
	engine := NewEngine(testEngineConfig(), nil, &fakeObjectAPI{}, newFakeRunCoordinator(), nil, nil)

	payload := []byte(`{"id":"evt_1","type":"customer.updated","created":1700000000,"data":{"object":{"object":"customer","id":"cus_1"}}}`)
	header := BuildSignatureHeader(time.Now(), payload, "whsec_wrong")

	err := engine.ProcessWebhook(context.Background(), payload, header, "")

	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestProcessWebhookRejectsMalformedPayload(t *testing.T) {
	engine := NewEngine(testEngineConfig(), nil, &fakeObjectAPI{}, newFakeRunCoordinator(), nil, nil)

	payload := []byte(`this is not json`)
	header := BuildSignatureHeader(time.Now(), payload, testSigningSecret)

	err := engine.ProcessWebhook(context.Background(), payload, header, "")

	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestProcessWebhookRejectsUnknownRoutingID(t *testing.T) {
	resolver := &fakeWebhookResolver{webhooks: map[string]*domain.ManagedWebhook{}}
	engine := NewEngine(testEngineConfig(), nil, &fakeObjectAPI{}, newFakeRunCoordinator(), resolver, nil)

	payload := []byte(`{"id":"evt_1"}`)
	header := BuildSignatureHeader(time.Now(), payload, testSigningSecret)

	err := engine.ProcessWebhook(context.Background(), payload, header, "not-a-routing-id")

	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	assert.Equal(t, resolver.calls, 1)
}

func TestProcessWebhookRejectsRoutingIDWithoutResolver(t *testing.T) {
	engine := NewEngine(testEngineConfig(), nil, &fakeObjectAPI{}, newFakeRunCoordinator(), nil, nil)

	payload := []byte(`{"id":"evt_1"}`)
	header := BuildSignatureHeader(time.Now(), payload, testSigningSecret)

	err := engine.ProcessWebhook(context.Background(), payload, header, "some-routing-id")

	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestProcessWebhookCachesRoutingIDLookups(t *testing.T) {
	resolver := &fakeWebhookResolver{webhooks: map[string]*domain.ManagedWebhook{
		"known-routing-id": {EndpointID: "we_1", RoutingID: "known-routing-id"},
	}}
	engine := NewEngine(testEngineConfig(), nil, &fakeObjectAPI{}, newFakeRunCoordinator(), resolver, nil)

	// Invalid signatures keep the deliveries away from the write path; the
	// routing id check still runs and populates the cache.
	for i := 0; i < 3; i++ {
		err := engine.ProcessWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "", "known-routing-id")
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	}

	assert.Equal(t, resolver.calls, 1)
}
