package api

import (
	"context"
	"net/http"
	"time"

	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/middlewares"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/syncengine"
	"github.com/redhatinsights/platform-go-middlewares/request_id"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// schedulerWorkTimeout bounds each fanned out backfill page since the
// scheduler does not wait around for the results.
const schedulerWorkTimeout = 5 * time.Minute

type SchedulerReceiver struct {
	engine    *syncengine.Engine
	router    *mux.Router
	config    *config.Config
	urlPrefix string
}

func NewSchedulerReceiver(engine *syncengine.Engine, r *mux.Router, urlPrefix string, cfg *config.Config) *SchedulerReceiver {
	return &SchedulerReceiver{
		engine:    engine,
		router:    r,
		config:    cfg,
		urlPrefix: urlPrefix,
	}
}

func (sr *SchedulerReceiver) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	bmw := &middlewares.BearerAuthMiddleware{
		Impl:          sr.config.SchedulerAuthImpl,
		Psk:           sr.config.SchedulerPsk,
		JwtSigningKey: sr.config.SchedulerJwtSigningKey,
		Account:       sr.config.SyncAccountId,
	}

	securedSubRouter := sr.router.PathPrefix(sr.urlPrefix).Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		bmw.Authenticate)

	securedSubRouter.HandleFunc("/scheduler", sr.handleTick()).Methods(http.MethodPost)
}

type schedulerResponse struct {
	Scheduled []domain.ObjectType `json:"scheduled"`
}

func (sr *SchedulerReceiver) handleTick() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		requestId := request_id.GetReqID(req.Context())
		logger := logger.Log.WithFields(logrus.Fields{
			"account":    principal.GetAccount(),
			"request_id": requestId})

		accountID := domain.AccountID(principal.GetAccount())
		objectTypes := syncengine.SupportedSyncObjects()

		logger.WithFields(logrus.Fields{"object_count": len(objectTypes)}).Info("Scheduling backfill work items")

		for _, objectType := range objectTypes {
			go sr.runWorkItem(accountID, objectType, logger)
		}

		writeJSONResponse(w, http.StatusOK, schedulerResponse{Scheduled: objectTypes})
	}
}

func (sr *SchedulerReceiver) runWorkItem(accountID domain.AccountID, objectType domain.ObjectType, logger *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), schedulerWorkTimeout)
	defer cancel()

	result, err := sr.engine.ProcessNext(ctx, accountID, objectType, "scheduler")
	if err != nil {
		logger.WithFields(logrus.Fields{"error": err, "object": objectType}).Error("Scheduled backfill work item failed")
		return
	}

	logger.WithFields(logrus.Fields{
		"object":    objectType,
		"processed": result.ProcessedCount,
		"has_more":  result.HasMore}).Info("Scheduled backfill work item complete")
}
