package syncrun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// SqlRunCoordinator persists run state in postgres.  The partial unique index
// on (account_id) over active statuses is the only mutual exclusion primitive;
// callers may be separate processes with no shared memory.
type SqlRunCoordinator struct {
	database     *sql.DB
	queryTimeout time.Duration
	runsTable    string
	cursorsTable string
}

func NewSqlRunCoordinator(cfg *config.Config, database *sql.DB) (*SqlRunCoordinator, error) {
	return &SqlRunCoordinator{
		database:     database,
		queryTimeout: cfg.SyncDatabaseQueryTimeout,
		runsTable:    cfg.SyncDatabaseSchema + ".sync_runs",
		cursorsTable: cfg.SyncDatabaseSchema + ".sync_run_cursors",
	}, nil
}

func (rc *SqlRunCoordinator) GetOrCreateRun(ctx context.Context, accountID domain.AccountID, triggeredBy string) (*domain.SyncRun, error) {

	callDurationTimer := prometheus.NewTimer(metrics.runCreationDuration)
	defer callDurationTimer.ObserveDuration()

	log := logger.Log.WithFields(logrus.Fields{"account": accountID, "triggered_by": triggeredBy})

	ctx, cancel := context.WithTimeout(ctx, rc.queryTimeout)
	defer cancel()

	statement, err := rc.database.Prepare(fmt.Sprintf(
		`INSERT INTO %s (account_id, started_at, status, total_processed, triggered_by)
            VALUES ($1, now(), 'pending', 0, $2)
            RETURNING started_at`, rc.runsTable))
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	var startedAt time.Time
	err = statement.QueryRowContext(ctx, accountID, triggeredBy).Scan(&startedAt)

	if err != nil {
		var pqError *pq.Error
		if errors.As(err, &pqError) && string(pqError.Code) == pgerrcode.UniqueViolation {
			// A concurrent caller created the run first.  Expected race outcome.
			metrics.runCreationRaces.Inc()
			log.Debug("Lost the run creation race to a concurrent caller")
			return nil, nil
		}

		logger.LogWithError(log, "SQL query failed", err)
		return nil, err
	}

	log.WithFields(logrus.Fields{"started_at": startedAt}).Info("Created a new sync run")

	return &domain.SyncRun{
		AccountID:   accountID,
		StartedAt:   startedAt,
		Status:      domain.RunStatusPending,
		TriggeredBy: triggeredBy,
	}, nil
}

func (rc *SqlRunCoordinator) GetActiveRun(ctx context.Context, accountID domain.AccountID) (*domain.SyncRun, error) {

	callDurationTimer := prometheus.NewTimer(metrics.runLookupDuration)
	defer callDurationTimer.ObserveDuration()

	log := logger.Log.WithFields(logrus.Fields{"account": accountID})

	ctx, cancel := context.WithTimeout(ctx, rc.queryTimeout)
	defer cancel()

	statement, err := rc.database.Prepare(fmt.Sprintf(
		`SELECT started_at, closed_at, status, error_message, total_processed, triggered_by
            FROM %s
            WHERE account_id = $1 AND status IN ('pending', 'running')
            ORDER BY started_at DESC
            LIMIT 1`, rc.runsTable))
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	run := domain.SyncRun{AccountID: accountID}
	var closedAt sql.NullTime
	var errorMessage sql.NullString

	err = statement.QueryRowContext(ctx, accountID).Scan(
		&run.StartedAt, &closedAt, &run.Status, &errorMessage, &run.TotalProcessed, &run.TriggeredBy)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		logger.LogWithError(log, "SQL query failed", err)
		return nil, err
	}

	if closedAt.Valid {
		run.ClosedAt = &closedAt.Time
	}
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}

	return &run, nil
}

func (rc *SqlRunCoordinator) JoinOrCreateRun(ctx context.Context, accountID domain.AccountID, triggeredBy string) (*domain.SyncRun, bool, error) {

	run, err := rc.GetOrCreateRun(ctx, accountID, triggeredBy)
	if err != nil {
		return nil, false, err
	}

	if run != nil {
		return run, true, nil
	}

	run, err = rc.GetActiveRun(ctx, accountID)
	if err != nil {
		return nil, false, err
	}

	if run == nil {
		// Both paths raced to completion before this caller observed anything.
		logger.Log.WithFields(logrus.Fields{"account": accountID}).Error("Unable to create or join a sync run")
		return nil, false, ErrNoActiveRun
	}

	return run, false, nil
}

func (rc *SqlRunCoordinator) RecordProgress(ctx context.Context, run *domain.SyncRun, processedDelta int) error {

	log := runLogger(run)

	ctx, cancel := context.WithTimeout(ctx, rc.queryTimeout)
	defer cancel()

	statement, err := rc.database.Prepare(fmt.Sprintf(
		`UPDATE %s
            SET total_processed = total_processed + $3, status = 'running'
            WHERE account_id = $1 AND started_at = $2 AND closed_at IS NULL`, rc.runsTable))
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	_, err = statement.ExecContext(ctx, run.AccountID, run.StartedAt, processedDelta)
	if err != nil {
		logger.LogWithError(log, "SQL query failed", err)
		return err
	}

	run.Status = domain.RunStatusRunning
	run.TotalProcessed += int64(processedDelta)

	return nil
}

func (rc *SqlRunCoordinator) CloseRun(ctx context.Context, run *domain.SyncRun, status domain.RunStatus, errorMessage string) error {

	log := runLogger(run)

	ctx, cancel := context.WithTimeout(ctx, rc.queryTimeout)
	defer cancel()

	statement, err := rc.database.Prepare(fmt.Sprintf(
		`UPDATE %s
            SET closed_at = now(), status = $3, error_message = NULLIF($4, '')
            WHERE account_id = $1 AND started_at = $2 AND closed_at IS NULL`, rc.runsTable))
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	results, err := statement.ExecContext(ctx, run.AccountID, run.StartedAt, status, errorMessage)
	if err != nil {
		logger.LogWithError(log, "SQL query failed", err)
		return err
	}

	rowsAffected, _ := results.RowsAffected()
	if rowsAffected == 0 {
		// Another caller closed the run first.  Closing twice is a no-op.
		log.Debug("Sync run was already closed")
		return nil
	}

	run.Status = status
	run.ErrorMessage = errorMessage
	now := time.Now()
	run.ClosedAt = &now

	log.WithFields(logrus.Fields{"status": status}).Info("Closed sync run")
	metrics.runsClosed.With(prometheus.Labels{"status": string(status)}).Inc()

	return nil
}

func (rc *SqlRunCoordinator) GetCursor(ctx context.Context, run *domain.SyncRun, object domain.ObjectType) (*BackfillCursor, error) {

	log := runLogger(run)

	ctx, cancel := context.WithTimeout(ctx, rc.queryTimeout)
	defer cancel()

	statement, err := rc.database.Prepare(fmt.Sprintf(
		`SELECT list_cursor, completed_at FROM %s
            WHERE account_id = $1 AND run_started_at = $2 AND object = $3`, rc.cursorsTable))
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	cursor := BackfillCursor{Object: object}
	var completedAt sql.NullTime

	err = statement.QueryRowContext(ctx, run.AccountID, run.StartedAt, object).Scan(&cursor.Cursor, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return &cursor, nil
		}

		logger.LogWithError(log, "SQL query failed", err)
		return nil, err
	}

	if completedAt.Valid {
		cursor.CompletedAt = &completedAt.Time
	}

	return &cursor, nil
}

func (rc *SqlRunCoordinator) SaveCursor(ctx context.Context, run *domain.SyncRun, object domain.ObjectType, cursor string, completed bool) error {

	log := runLogger(run)

	ctx, cancel := context.WithTimeout(ctx, rc.queryTimeout)
	defer cancel()

	statement, err := rc.database.Prepare(fmt.Sprintf(
		`INSERT INTO %s (account_id, run_started_at, object, list_cursor, completed_at)
            VALUES ($1, $2, $3, $4, CASE WHEN $5 THEN now() ELSE NULL END)
            ON CONFLICT (account_id, run_started_at, object)
            DO UPDATE SET list_cursor = EXCLUDED.list_cursor, completed_at = EXCLUDED.completed_at`, rc.cursorsTable))
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	_, err = statement.ExecContext(ctx, run.AccountID, run.StartedAt, object, cursor, completed)
	if err != nil {
		logger.LogWithError(log, "SQL query failed", err)
		return err
	}

	return nil
}

func (rc *SqlRunCoordinator) CompletedObjects(ctx context.Context, run *domain.SyncRun) ([]domain.ObjectType, error) {

	log := runLogger(run)

	ctx, cancel := context.WithTimeout(ctx, rc.queryTimeout)
	defer cancel()

	statement, err := rc.database.Prepare(fmt.Sprintf(
		`SELECT object FROM %s
            WHERE account_id = $1 AND run_started_at = $2 AND completed_at IS NOT NULL
            ORDER BY object`, rc.cursorsTable))
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	rows, err := statement.QueryContext(ctx, run.AccountID, run.StartedAt)
	if err != nil {
		logger.LogWithError(log, "SQL query failed", err)
		return nil, err
	}
	defer rows.Close()

	var completed []domain.ObjectType
	for rows.Next() {
		var object domain.ObjectType
		if err := rows.Scan(&object); err != nil {
			logger.LogWithError(log, "SQL scan failed.  Skipping row.", err)
			continue
		}
		completed = append(completed, object)
	}

	return completed, rows.Err()
}

func runLogger(run *domain.SyncRun) *logrus.Entry {
	return logger.Log.WithFields(logrus.Fields{"account": run.AccountID, "run_started_at": run.StartedAt})
}
