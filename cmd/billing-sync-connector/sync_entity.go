package main

import (
	"context"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/db"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/syncengine"

	"github.com/sirupsen/logrus"
)

func startSingleEntitySync(objectName string, entityId string) {

	logger.InitLogger()
	defer logger.FlushLogger()

	if objectName == "" || entityId == "" {
		logger.Log.Fatal("Both --object and --id are required")
	}

	cfg := config.GetConfig()
	logger.Log.Info("Billing-Sync-Connector configuration:\n", cfg)

	database, err := db.InitializeDatabaseConnection(cfg)
	if err != nil {
		logger.LogFatalError("Unable to connect to database: ", err)
	}

	billingClient := billingapi.NewClient(cfg)

	engine := syncengine.NewEngine(cfg, database, billingClient, nil, nil, nil)

	err = engine.SyncSingleEntity(context.Background(), domain.ObjectType(objectName), entityId)
	if err != nil {
		logger.LogFatalError("Unable to sync entity", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"object": objectName,
		"id":     entityId}).Info("Entity refreshed")
}
