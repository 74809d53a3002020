package main

import (
	"context"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/db"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/syncengine"
	"github.com/billingops/billing-sync-connector/internal/syncrun"

	"github.com/sirupsen/logrus"
)

func startBackfill(objectName string) {

	logger.InitLogger()
	defer logger.FlushLogger()

	logger.Log.Info("Starting Billing-Sync-Connector backfill")

	cfg := config.GetConfig()
	logger.Log.Info("Billing-Sync-Connector configuration:\n", cfg)

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		logger.LogFatalError("Unable to connect to database: ", err)
	}

	billingClient := billingapi.NewClient(cfg)

	runCoordinator, err := syncrun.NewSqlRunCoordinator(cfg, database)
	if err != nil {
		logger.LogFatalError("Unable to create run coordinator", err)
	}

	engine := syncengine.NewEngine(cfg, database, billingClient, runCoordinator, nil, nil)

	var objectTypes []domain.ObjectType
	if objectName != "" {
		objectTypes = []domain.ObjectType{domain.ObjectType(objectName)}
	}

	summary, err := engine.ProcessUntilDone(context.Background(), domain.AccountID(cfg.SyncAccountId), objectTypes, "backfill-cli")
	if err != nil {
		logger.LogFatalError("Backfill failed", err)
	}

	for objectType, count := range summary.ProcessedCounts {
		logger.Log.WithFields(logrus.Fields{
			"object":    objectType,
			"processed": count}).Info("Backfill object type complete")
	}

	logger.Log.Info("Backfill complete")
}
