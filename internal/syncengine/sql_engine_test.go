//go:build sql
// +build sql

package syncengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/db"
	"github.com/billingops/billing-sync-connector/internal/syncrun"
)

type staticObjectAPI struct {
	entities  map[string]json.RawMessage
	pages     []*billingapi.ListPage
	listCalls int
}

func (s *staticObjectAPI) List(ctx context.Context, path string, params billingapi.ListParams) (*billingapi.ListPage, error) {
	s.listCalls++
	if len(s.pages) > 0 {
		page := s.pages[0]
		s.pages = s.pages[1:]
		return page, nil
	}
	return &billingapi.ListPage{Object: "list"}, nil
}

func (s *staticObjectAPI) Get(ctx context.Context, path string) (json.RawMessage, error) {
	raw, ok := s.entities[path]
	if !ok {
		return nil, &billingapi.APIError{Kind: billingapi.ErrorKindNotFound, StatusCode: 404, Message: "not found"}
	}
	return raw, nil
}

func testSqlEngine(t *testing.T) (*Engine, *sql.DB, *config.Config, *staticObjectAPI) {
	cfg := config.GetConfig()
	cfg.SyncAccountId = "acct_engine_test"
	cfg.WebhookSigningSecret = testSigningSecret
	cfg.BackfillRelatedEntities = false
	cfg.AutoExpandLists = false

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		t.Fatal("Unable to connect to database: ", err)
	}

	api := &staticObjectAPI{entities: make(map[string]json.RawMessage)}

	runCoordinator, err := syncrun.NewSqlRunCoordinator(cfg, database)
	if err != nil {
		t.Fatal("unexpected error while creating the run coordinator", err)
	}

	return NewEngine(cfg, database, api, runCoordinator, nil, nil), database, cfg, api
}

func cleanupRuns(database *sql.DB, schemaName string, account string) {
	database.Exec(fmt.Sprintf(`DELETE FROM %s.sync_run_cursors WHERE account_id = $1`, schemaName), account)
	database.Exec(fmt.Sprintf(`DELETE FROM %s.sync_runs WHERE account_id = $1`, schemaName), account)
}

func cleanupEntity(database *sql.DB, schemaName string, table string, account string) {
	database.Exec(fmt.Sprintf(`DELETE FROM "%s"."%s" WHERE "account_id" = $1`, schemaName, table), account)
}

func customerEvent(eventID string, customerID string, email string, created int64) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"%s","type":"customer.updated","created":%d,"data":{"object":{"id":"%s","object":"customer","email":"%s"}}}`,
		eventID, created, customerID, email))
}

func readCustomerEmail(t *testing.T, database *sql.DB, schemaName string, customerID string) string {
	var email string
	err := database.QueryRow(
		fmt.Sprintf(`SELECT "email" FROM "%s"."customers" WHERE "id" = $1`, schemaName),
		customerID).Scan(&email)
	if err != nil {
		t.Fatal("unable to read back the customer row", err)
	}
	return email
}

func TestWebhookDeliveryWritesTheEntity(t *testing.T) {
	engine, database, cfg, _ := testSqlEngine(t)
	defer cleanupEntity(database, cfg.SyncDatabaseSchema, "customers", cfg.SyncAccountId)
	defer cleanupEntity(database, cfg.SyncDatabaseSchema, "events", cfg.SyncAccountId)

	payload := customerEvent("evt_sql_1", "cus_sql_1", "fred@flintstone.com", time.Now().Unix())
	header := BuildSignatureHeader(time.Now(), payload, testSigningSecret)

	if err := engine.ProcessWebhook(context.TODO(), payload, header, ""); err != nil {
		t.Fatal("unexpected error processing a valid delivery", err)
	}

	email := readCustomerEmail(t, database, cfg.SyncDatabaseSchema, "cus_sql_1")
	if email != "fred@flintstone.com" {
		t.Fatal("unexpected customer email: ", email)
	}

	// the event envelope itself lands in the events table
	var eventCount int
	err := database.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM "%s"."events" WHERE "id" = $1`, cfg.SyncDatabaseSchema),
		"evt_sql_1").Scan(&eventCount)
	if err != nil {
		t.Fatal("unable to count event rows", err)
	}
	if eventCount != 1 {
		t.Fatal("expected exactly one event row, got ", eventCount)
	}
}

func TestStaleDeliveryDoesNotOverwriteNewerState(t *testing.T) {
	engine, database, cfg, _ := testSqlEngine(t)
	defer cleanupEntity(database, cfg.SyncDatabaseSchema, "customers", cfg.SyncAccountId)
	defer cleanupEntity(database, cfg.SyncDatabaseSchema, "events", cfg.SyncAccountId)

	now := time.Now().Unix()

	newer := customerEvent("evt_sql_2", "cus_sql_2", "current@example.com", now)
	header := BuildSignatureHeader(time.Now(), newer, testSigningSecret)
	if err := engine.ProcessWebhook(context.TODO(), newer, header, ""); err != nil {
		t.Fatal("unexpected error processing the newer delivery", err)
	}

	// a delayed redelivery of older state arrives after the newer one
	stale := customerEvent("evt_sql_3", "cus_sql_2", "stale@example.com", now-3600)
	header = BuildSignatureHeader(time.Now(), stale, testSigningSecret)
	if err := engine.ProcessWebhook(context.TODO(), stale, header, ""); err != nil {
		t.Fatal("unexpected error processing the stale delivery", err)
	}

	email := readCustomerEmail(t, database, cfg.SyncDatabaseSchema, "cus_sql_2")
	if email != "current@example.com" {
		t.Fatal("stale delivery overwrote newer state: ", email)
	}
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	engine, database, cfg, _ := testSqlEngine(t)
	defer cleanupEntity(database, cfg.SyncDatabaseSchema, "customers", cfg.SyncAccountId)
	defer cleanupEntity(database, cfg.SyncDatabaseSchema, "events", cfg.SyncAccountId)

	payload := customerEvent("evt_sql_4", "cus_sql_4", "barney@rubble.com", time.Now().Unix())

	for i := 0; i < 3; i++ {
		header := BuildSignatureHeader(time.Now(), payload, testSigningSecret)
		if err := engine.ProcessWebhook(context.TODO(), payload, header, ""); err != nil {
			t.Fatal("unexpected error on redelivery ", i, err)
		}
	}

	var customerCount int
	err := database.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM "%s"."customers" WHERE "id" = $1`, cfg.SyncDatabaseSchema),
		"cus_sql_4").Scan(&customerCount)
	if err != nil {
		t.Fatal("unable to count customer rows", err)
	}
	if customerCount != 1 {
		t.Fatal("expected exactly one customer row, got ", customerCount)
	}
}

func customerPage(hasMore bool, ids ...string) *billingapi.ListPage {
	page := &billingapi.ListPage{Object: "list", HasMore: hasMore}
	for _, id := range ids {
		page.Data = append(page.Data, json.RawMessage(fmt.Sprintf(
			`{"id":"%s","object":"customer","email":"%s@example.com"}`, id, id)))
	}
	return page
}

func TestBackfillWritesEveryPagedObject(t *testing.T) {
	engine, database, cfg, api := testSqlEngine(t)
	defer cleanupRuns(database, cfg.SyncDatabaseSchema, cfg.SyncAccountId)
	defer cleanupEntity(database, cfg.SyncDatabaseSchema, "customers", cfg.SyncAccountId)
	cleanupRuns(database, cfg.SyncDatabaseSchema, cfg.SyncAccountId)

	api.pages = []*billingapi.ListPage{
		customerPage(true, "cus_page_1", "cus_page_2"),
		customerPage(true, "cus_page_3", "cus_page_4"),
		customerPage(false, "cus_page_5"),
	}

	expectedHasMore := []bool{true, true, false}
	totalProcessed := 0

	for i, wantMore := range expectedHasMore {
		result, err := engine.ProcessNext(context.TODO(), domain.AccountID(cfg.SyncAccountId), "customer", "worker")
		if err != nil {
			t.Fatal("unexpected error processing page ", i, err)
		}
		if result.HasMore != wantMore {
			t.Fatalf("page %d: expected hasMore %v, got %v", i, wantMore, result.HasMore)
		}
		totalProcessed += result.ProcessedCount
	}

	if totalProcessed != 5 {
		t.Fatal("expected the cumulative processed count to cover every remote object, got ", totalProcessed)
	}
	if api.listCalls != 3 {
		t.Fatal("expected exactly one list call per page, got ", api.listCalls)
	}

	var rowCount int
	err := database.QueryRow(
		fmt.Sprintf(`SELECT COUNT(*) FROM "%s"."customers" WHERE "id" LIKE 'cus_page_%%'`, cfg.SyncDatabaseSchema)).Scan(&rowCount)
	if err != nil {
		t.Fatal("unable to count customer rows", err)
	}
	if rowCount != 5 {
		t.Fatal("expected a row per remote object, got ", rowCount)
	}

	var recorded int64
	err = database.QueryRow(
		fmt.Sprintf(`SELECT "total_processed" FROM %s.sync_runs WHERE "account_id" = $1`, cfg.SyncDatabaseSchema),
		cfg.SyncAccountId).Scan(&recorded)
	if err != nil {
		t.Fatal("unable to read back the run progress", err)
	}
	if recorded != 5 {
		t.Fatal("expected the run progress counter to accumulate every item, got ", recorded)
	}

	// the completed cursor short circuits any further page fetches
	result, err := engine.ProcessNext(context.TODO(), domain.AccountID(cfg.SyncAccountId), "customer", "worker")
	if err != nil {
		t.Fatal("unexpected error after completion", err)
	}
	if result.ProcessedCount != 0 || result.HasMore {
		t.Fatalf("expected a no-op after completion, got %+v", result)
	}
	if api.listCalls != 3 {
		t.Fatal("expected no further list calls after completion, got ", api.listCalls)
	}
}

func TestSyncSingleEntityWritesThroughTheUpsertPath(t *testing.T) {
	engine, database, cfg, api := testSqlEngine(t)
	defer cleanupEntity(database, cfg.SyncDatabaseSchema, "customers", cfg.SyncAccountId)

	api.entities["/v1/customers/cus_sql_5"] = json.RawMessage(
		`{"id":"cus_sql_5","object":"customer","email":"wilma@flintstone.com"}`)

	if err := engine.SyncSingleEntity(context.TODO(), "customer", "cus_sql_5"); err != nil {
		t.Fatal("unexpected error syncing a single entity", err)
	}

	email := readCustomerEmail(t, database, cfg.SyncDatabaseSchema, "cus_sql_5")
	if email != "wilma@flintstone.com" {
		t.Fatal("unexpected customer email: ", email)
	}
}
