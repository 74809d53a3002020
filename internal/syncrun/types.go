package syncrun

import (
	"context"
	"errors"
	"time"

	"github.com/billingops/billing-sync-connector/internal/domain"
)

// ErrNoActiveRun means both the create path and the fallback read raced to
// completion before this caller observed anything.  The caller decides whether
// to try again; the coordinator never retries internally.
var ErrNoActiveRun = errors.New("sync run coordination failed: no run could be created or joined")

// BackfillCursor records how far one object type's backfill has progressed
// within a run, so stateless invocations can resume where the previous one
// stopped.
type BackfillCursor struct {
	Object      domain.ObjectType
	Cursor      string
	CompletedAt *time.Time
}

// RunCoordinator arbitrates sync run lifecycle state so independent callers
// sharing a database converge on one logical run per account.
type RunCoordinator interface {
	// GetOrCreateRun atomically creates a run if none is active.  A nil run
	// with a nil error means a concurrent caller won the race - that is the
	// expected outcome, not a fault.
	GetOrCreateRun(ctx context.Context, accountID domain.AccountID, triggeredBy string) (*domain.SyncRun, error)

	// GetActiveRun returns the currently active run, or nil if none.
	GetActiveRun(ctx context.Context, accountID domain.AccountID) (*domain.SyncRun, error)

	// JoinOrCreateRun resolves to an active run either way.  The bool reports
	// whether this caller created it.  Fails with ErrNoActiveRun when both
	// paths miss.
	JoinOrCreateRun(ctx context.Context, accountID domain.AccountID, triggeredBy string) (*domain.SyncRun, bool, error)

	// RecordProgress increments the run's item counter.  Safe to call from
	// many cooperating callers referencing the same run identity.
	RecordProgress(ctx context.Context, run *domain.SyncRun, processedDelta int) error

	// CloseRun transitions the run to a terminal status.  Closing an already
	// closed run is a no-op.
	CloseRun(ctx context.Context, run *domain.SyncRun, status domain.RunStatus, errorMessage string) error

	GetCursor(ctx context.Context, run *domain.SyncRun, object domain.ObjectType) (*BackfillCursor, error)
	SaveCursor(ctx context.Context, run *domain.SyncRun, object domain.ObjectType, cursor string, completed bool) error
	CompletedObjects(ctx context.Context, run *domain.SyncRun) ([]domain.ObjectType, error)
}
