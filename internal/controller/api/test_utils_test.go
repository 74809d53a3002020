package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/syncengine"
	"github.com/billingops/billing-sync-connector/internal/syncrun"
)

const testSigningSecret = "whsec_controller_test"

func init() {
	logger.InitLogger()
}

type stubRunCoordinator struct {
	run       *domain.SyncRun
	completed map[domain.ObjectType]bool
}

func newStubRunCoordinator() *stubRunCoordinator {
	return &stubRunCoordinator{
		run: &domain.SyncRun{
			AccountID: "acct_test",
			StartedAt: time.Now(),
			Status:    domain.RunStatusPending,
		},
		completed: make(map[domain.ObjectType]bool),
	}
}

func (s *stubRunCoordinator) GetOrCreateRun(ctx context.Context, accountID domain.AccountID, triggeredBy string) (*domain.SyncRun, error) {
	return s.run, nil
}

func (s *stubRunCoordinator) GetActiveRun(ctx context.Context, accountID domain.AccountID) (*domain.SyncRun, error) {
	return s.run, nil
}

func (s *stubRunCoordinator) JoinOrCreateRun(ctx context.Context, accountID domain.AccountID, triggeredBy string) (*domain.SyncRun, bool, error) {
	return s.run, true, nil
}

func (s *stubRunCoordinator) RecordProgress(ctx context.Context, run *domain.SyncRun, processedDelta int) error {
	return nil
}

func (s *stubRunCoordinator) CloseRun(ctx context.Context, run *domain.SyncRun, status domain.RunStatus, errorMessage string) error {
	return nil
}

func (s *stubRunCoordinator) GetCursor(ctx context.Context, run *domain.SyncRun, object domain.ObjectType) (*syncrun.BackfillCursor, error) {
	return &syncrun.BackfillCursor{Object: object}, nil
}

func (s *stubRunCoordinator) SaveCursor(ctx context.Context, run *domain.SyncRun, object domain.ObjectType, cursor string, completed bool) error {
	if completed {
		s.completed[object] = true
	}
	return nil
}

func (s *stubRunCoordinator) CompletedObjects(ctx context.Context, run *domain.SyncRun) ([]domain.ObjectType, error) {
	var objects []domain.ObjectType
	for object := range s.completed {
		objects = append(objects, object)
	}
	return objects, nil
}

type stubObjectAPI struct {
	page *billingapi.ListPage
	err  error
}

func (s *stubObjectAPI) List(ctx context.Context, path string, params billingapi.ListParams) (*billingapi.ListPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.page, nil
}

func (s *stubObjectAPI) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return nil, &billingapi.APIError{Kind: billingapi.ErrorKindNotFound, StatusCode: 404, Message: "not found"}
}

func testConfig() *config.Config {
	cfg := config.GetConfig()
	cfg.SyncAccountId = "acct_test"
	cfg.WebhookSigningSecret = testSigningSecret
	cfg.BackfillRelatedEntities = false
	cfg.AutoExpandLists = false
	cfg.ServiceToServiceCredentials = map[string]interface{}{"test_client_1": "12345"}
	return cfg
}

func testEngine(cfg *config.Config, api syncengine.ObjectAPI, runs syncrun.RunCoordinator) *syncengine.Engine {
	return syncengine.NewEngine(cfg, nil, api, runs, nil, nil)
}
