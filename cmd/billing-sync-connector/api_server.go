package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/controller/api"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/platform/db"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/platform/utils"
	"github.com/billingops/billing-sync-connector/internal/syncengine"
	"github.com/billingops/billing-sync-connector/internal/syncrun"
	"github.com/billingops/billing-sync-connector/internal/webhookreg"
	"github.com/redhatinsights/platform-go-middlewares/request_id"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func startBillingSyncApiServer(listenAddr string) {

	logger.InitLogger()
	defer logger.FlushLogger()

	logger.Log.Info("Starting Billing-Sync-Connector service")

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

	webhookStore, err := webhookreg.NewSqlWebhookStore(cfg, database)
	if err != nil {
		logger.LogFatalError("Unable to create webhook store", err)
	}

	registrar := webhookreg.NewRegistrar(webhookStore, billingClient)

	webhook := registerManagedWebhook(cfg, registrar)

	kafkaPublisher := buildChangePublisher(cfg)

	// A typed nil inside the interface would defeat the engine's nil check
	var publisher syncengine.ChangePublisher
	if kafkaPublisher != nil {
		publisher = kafkaPublisher
	}

	engine := syncengine.NewEngine(cfg, database, billingClient, runCoordinator, registrar, publisher)

	apiMux := mux.NewRouter()
	apiMux.Use(request_id.ConfiguredRequestID("x-request-id"))

	monitoringServer := api.NewMonitoringServer(apiMux, cfg, database)
	monitoringServer.Routes()

	webhookReceiver := api.NewWebhookReceiver(engine, apiMux, cfg.UrlBasePath, cfg)
	webhookReceiver.Routes()

	workerReceiver := api.NewWorkerReceiver(engine, apiMux, cfg.UrlBasePath, cfg)
	workerReceiver.Routes()

	schedulerReceiver := api.NewSchedulerReceiver(engine, apiMux, cfg.UrlBasePath, cfg)
	schedulerReceiver.Routes()

	apiSrv := utils.StartHTTPServer(listenAddr, "api", apiMux)

	signalChan := make(chan os.Signal, 1)

	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan

	logger.Log.Info("Received signal to shutdown: ", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HttpShutdownTimeout)
	defer cancel()

	utils.ShutdownHTTPServer(ctx, "api", apiSrv)

	unregisterManagedWebhook(ctx, cfg, registrar, webhook)

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.LogError("Error closing the change publisher", err)
		}
	}

	logger.Log.Info("Billing-Sync-Connector shutting down")
}

func registerManagedWebhook(cfg *config.Config, registrar *webhookreg.Registrar) *domain.ManagedWebhook {

	if cfg.WebhookBaseUrl == "" {
		logger.Log.Info("No webhook base url configured, skipping webhook registration")
		return nil
	}

	webhook, err := registrar.FindOrCreateManagedWebhook(context.Background(), cfg.WebhookBaseUrl, cfg.WebhookEnabledEvents)
	if err != nil {
		logger.LogFatalError("Unable to register the managed webhook", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"endpoint_id": webhook.EndpointID,
		"routing_id":  webhook.RoutingID}).Info("Managed webhook registered")

	return webhook
}

func unregisterManagedWebhook(ctx context.Context, cfg *config.Config, registrar *webhookreg.Registrar, webhook *domain.ManagedWebhook) {

	if webhook == nil || cfg.WebhookPersistOnShutdown {
		return
	}

	if err := registrar.DeleteManagedWebhook(ctx, webhook.EndpointID); err != nil {
		logger.LogError("Unable to remove the managed webhook during shutdown", err)
		return
	}

	logger.Log.WithFields(logrus.Fields{"endpoint_id": webhook.EndpointID}).Info("Managed webhook removed")
}

func buildChangePublisher(cfg *config.Config) *syncengine.KafkaChangePublisher {

	if cfg.FanoutEnabled == false {
		return nil
	}

	logger.Log.Info("Enabling the kafka entity change fanout")

	return syncengine.NewKafkaChangePublisher(cfg)
}
