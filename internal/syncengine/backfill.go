package syncengine

import (
	"context"
	"time"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/schema"

	"github.com/sirupsen/logrus"
)

// ProcessNext joins (or creates) the account's active run and processes
// exactly one page of the given object type.  It always returns in bounded
// time: one page fetch, one batch of writes, no internal looping.  Callers
// with an execution-time budget re-invoke while HasMore is true.
func (e *Engine) ProcessNext(ctx context.Context, accountID domain.AccountID, objectType domain.ObjectType, triggeredBy string) (*BackfillResult, error) {

	objectSchema, ok := schema.Lookup(objectType)
	if !ok || objectSchema.ListPath == "" {
		return nil, ErrUnsupportedObjectType
	}

	run, _, err := e.runs.JoinOrCreateRun(ctx, accountID, triggeredBy)
	if err != nil {
		return nil, err
	}

	result, err := e.processPage(ctx, run, objectSchema)
	if err != nil {
		e.failRun(ctx, run, err)
		return nil, err
	}

	if !result.HasMore {
		if err := e.maybeCloseRun(ctx, run); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// ProcessUntilDone loops ProcessNext's page step for each requested object
// type until no pages remain.  The run coordinator is consulted exactly once
// for the whole loop.  Intended for callers without an execution-time limit.
func (e *Engine) ProcessUntilDone(ctx context.Context, accountID domain.AccountID, objectTypes []domain.ObjectType, triggeredBy string) (*BackfillSummary, error) {

	if len(objectTypes) == 0 {
		objectTypes = schema.SupportedSyncObjects()
	}

	run, _, err := e.runs.JoinOrCreateRun(ctx, accountID, triggeredBy)
	if err != nil {
		return nil, err
	}

	summary := &BackfillSummary{
		ProcessedCounts: make(map[domain.ObjectType]int),
		RunAccount:      run.AccountID,
		RunStartedAt:    run.StartedAt,
	}

	for _, objectType := range objectTypes {
		objectSchema, ok := schema.Lookup(objectType)
		if !ok || objectSchema.ListPath == "" {
			e.failRun(ctx, run, ErrUnsupportedObjectType)
			return nil, ErrUnsupportedObjectType
		}

		for {
			result, err := e.processPage(ctx, run, objectSchema)
			if err != nil {
				e.failRun(ctx, run, err)
				return nil, err
			}

			summary.ProcessedCounts[objectType] += result.ProcessedCount
			summary.TotalProcessed += result.ProcessedCount

			if !result.HasMore {
				break
			}
		}
	}

	if err := e.maybeCloseRun(ctx, run); err != nil {
		return nil, err
	}

	return summary, nil
}

// processPage fetches one page via the retrying api client and writes every
// object on it.  The cursor row keeps progress durable so a later stateless
// invocation resumes where this one stopped.
func (e *Engine) processPage(ctx context.Context, run *domain.SyncRun, objectSchema *schema.ObjectSchema) (*BackfillResult, error) {

	result := &BackfillResult{
		Object:       objectSchema.Object,
		RunAccount:   run.AccountID,
		RunStartedAt: run.StartedAt,
	}

	cursor, err := e.runs.GetCursor(ctx, run, objectSchema.Object)
	if err != nil {
		return nil, err
	}

	if cursor.CompletedAt != nil {
		return result, nil
	}

	page, err := e.api.List(ctx, objectSchema.ListPath, billingapi.ListParams{
		Limit:         e.cfg.BackfillPageSize,
		StartingAfter: cursor.Cursor,
	})
	if err != nil {
		return nil, err
	}

	lastSyncedAt := time.Now()

	for _, raw := range page.Data {
		payload, err := decodePayload(raw)
		if err != nil {
			return nil, err
		}

		if err := e.upsertPayload(ctx, objectSchema, payload, lastSyncedAt); err != nil {
			return nil, err
		}

		result.ProcessedCount++
	}

	if result.ProcessedCount > 0 {
		if err := e.runs.RecordProgress(ctx, run, result.ProcessedCount); err != nil {
			return nil, err
		}
	}

	if err := e.runs.SaveCursor(ctx, run, objectSchema.Object, page.LastID(), !page.HasMore); err != nil {
		return nil, err
	}

	metrics.pagesProcessed.Inc()

	result.HasMore = page.HasMore

	return result, nil
}

// maybeCloseRun closes the run once every supported object type has finished
// its backfill.  Workers for different types race here; CloseRun is idempotent
// so whichever observes completion last wins harmlessly.
func (e *Engine) maybeCloseRun(ctx context.Context, run *domain.SyncRun) error {

	completed, err := e.runs.CompletedObjects(ctx, run)
	if err != nil {
		return err
	}

	completedSet := make(map[domain.ObjectType]bool, len(completed))
	for _, objectType := range completed {
		completedSet[objectType] = true
	}

	for _, objectType := range schema.SupportedSyncObjects() {
		if !completedSet[objectType] {
			return nil
		}
	}

	return e.runs.CloseRun(ctx, run, domain.RunStatusComplete, "")
}

func (e *Engine) failRun(ctx context.Context, run *domain.SyncRun, cause error) {
	if err := e.runs.CloseRun(ctx, run, domain.RunStatusError, cause.Error()); err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "account": run.AccountID}).Error("Unable to record sync run failure")
	}
}
