package main

import (
	"context"
	"fmt"

	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/platform/utils/jwt_utils"
)

const schedulerTokenExpiryMinutes = 60

func startSchedulerTokenGeneration() {

	logger.InitLogger()
	defer logger.FlushLogger()

	cfg := config.GetConfig()

	generator, err := jwt_utils.NewHmacBasedJwtGenerator(cfg.SchedulerJwtSigningKey, cfg.SyncAccountId, schedulerTokenExpiryMinutes)
	if err != nil {
		logger.LogFatalError("Unable to build the token generator", err)
	}

	token, err := generator(context.Background())
	if err != nil {
		logger.LogFatalError("Unable to generate a scheduler token", err)
	}

	fmt.Println(token)
}
