package webhookreg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"

	"github.com/sirupsen/logrus"
)

type SqlWebhookStore struct {
	database     *sql.DB
	queryTimeout time.Duration
	table        string
}

func NewSqlWebhookStore(cfg *config.Config, database *sql.DB) (*SqlWebhookStore, error) {
	return &SqlWebhookStore{
		database:     database,
		queryTimeout: cfg.SyncDatabaseQueryTimeout,
		table:        cfg.SyncDatabaseSchema + ".managed_webhooks",
	}, nil
}

func (ws *SqlWebhookStore) FindEnabledByBaseURL(ctx context.Context, baseURL string) (*domain.ManagedWebhook, error) {

	return ws.findOne(ctx,
		fmt.Sprintf(`SELECT endpoint_id, routing_id, base_url, callback_url, enabled_events, status, created_at
            FROM %s
            WHERE base_url = $1 AND status = 'enabled'
            ORDER BY created_at
            LIMIT 1`, ws.table),
		baseURL)
}

func (ws *SqlWebhookStore) FindByRoutingID(ctx context.Context, routingID string) (*domain.ManagedWebhook, error) {

	return ws.findOne(ctx,
		fmt.Sprintf(`SELECT endpoint_id, routing_id, base_url, callback_url, enabled_events, status, created_at
            FROM %s
            WHERE routing_id = $1`, ws.table),
		routingID)
}

func (ws *SqlWebhookStore) findOne(ctx context.Context, query string, arg interface{}) (*domain.ManagedWebhook, error) {

	log := logger.Log.WithFields(logrus.Fields{"table": ws.table})

	ctx, cancel := context.WithTimeout(ctx, ws.queryTimeout)
	defer cancel()

	statement, err := ws.database.Prepare(query)
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return nil, err
	}
	defer statement.Close()

	var webhook domain.ManagedWebhook
	var enabledEventsString sql.NullString

	err = statement.QueryRowContext(ctx, arg).Scan(
		&webhook.EndpointID, &webhook.RoutingID, &webhook.BaseURL, &webhook.CallbackURL,
		&enabledEventsString, &webhook.Status, &webhook.CreatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		logger.LogWithError(log, "SQL query failed", err)
		return nil, err
	}

	if enabledEventsString.Valid {
		if err := json.Unmarshal([]byte(enabledEventsString.String), &webhook.EnabledEvents); err != nil {
			logger.LogWithError(log, "Unable to parse enabled events from database", err)
		}
	}

	return &webhook, nil
}

func (ws *SqlWebhookStore) Insert(ctx context.Context, webhook *domain.ManagedWebhook) error {

	log := logger.Log.WithFields(logrus.Fields{"endpoint_id": webhook.EndpointID})

	enabledEventsString, err := json.Marshal(webhook.EnabledEvents)
	if err != nil {
		logger.LogWithError(log, "Unable to marshal enabled events", err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ws.queryTimeout)
	defer cancel()

	statement, err := ws.database.Prepare(fmt.Sprintf(
		`INSERT INTO %s (endpoint_id, routing_id, base_url, callback_url, enabled_events, status, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`, ws.table))
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	_, err = statement.ExecContext(ctx,
		webhook.EndpointID, webhook.RoutingID, webhook.BaseURL, webhook.CallbackURL,
		string(enabledEventsString), webhook.Status, webhook.CreatedAt)
	if err != nil {
		logger.LogWithError(log, "SQL query failed", err)
		return err
	}

	return nil
}

func (ws *SqlWebhookStore) Delete(ctx context.Context, endpointID string) error {

	log := logger.Log.WithFields(logrus.Fields{"endpoint_id": endpointID})

	ctx, cancel := context.WithTimeout(ctx, ws.queryTimeout)
	defer cancel()

	statement, err := ws.database.Prepare(fmt.Sprintf(`DELETE FROM %s WHERE endpoint_id = $1`, ws.table))
	if err != nil {
		logger.LogWithError(log, "SQL Prepare failed", err)
		return err
	}
	defer statement.Close()

	_, err = statement.ExecContext(ctx, endpointID)
	if err != nil {
		logger.LogWithError(log, "SQL query failed", err)
		return err
	}

	return nil
}
