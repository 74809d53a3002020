package api

import (
	"errors"
	"net/http"

	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/middlewares"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/syncengine"
	"github.com/redhatinsights/platform-go-middlewares/request_id"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type WorkerReceiver struct {
	engine    *syncengine.Engine
	router    *mux.Router
	config    *config.Config
	urlPrefix string
}

func NewWorkerReceiver(engine *syncengine.Engine, r *mux.Router, urlPrefix string, cfg *config.Config) *WorkerReceiver {
	return &WorkerReceiver{
		engine:    engine,
		router:    r,
		config:    cfg,
		urlPrefix: urlPrefix,
	}
}

func (wr *WorkerReceiver) Routes() {
	mmw := &middlewares.MetricsMiddleware{}
	amw := &middlewares.AuthMiddleware{Secrets: wr.config.ServiceToServiceCredentials}

	securedSubRouter := wr.router.PathPrefix(wr.urlPrefix).Subrouter()
	securedSubRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics,
		amw.Authenticate)

	securedSubRouter.HandleFunc("/worker", wr.handleWorkItem()).Methods(http.MethodPost)
}

type workerRequest struct {
	Object string `json:"object" validate:"required"`
}

func (wr *WorkerReceiver) handleWorkItem() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		principal, _ := middlewares.GetPrincipal(req.Context())
		requestId := request_id.GetReqID(req.Context())
		logger := logger.Log.WithFields(logrus.Fields{
			"account":    principal.GetAccount(),
			"request_id": requestId})

		var workRequest workerRequest

		body := http.MaxBytesReader(w, req.Body, 1048576)

		if err := decodeJSON(body, &workRequest); err != nil {
			errMsg := "Unable to process json input"
			logger.WithFields(logrus.Fields{"error": err}).Debug(errMsg)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusBadRequest,
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		// Entity rows are always written under the configured sync account.
		// A run keyed by any other account would silently diverge from the
		// rows it tracks, so only the configured account is serviced.
		if principal.GetAccount() != wr.config.SyncAccountId {
			errMsg := "Account is not serviced by this connector"
			logger.Info(errMsg)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusForbidden,
				Detail: principal.GetAccount()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		logger = logger.WithFields(logrus.Fields{"object": workRequest.Object})
		logger.Info("Processing backfill work item")

		result, err := wr.engine.ProcessNext(req.Context(),
			domain.AccountID(principal.GetAccount()),
			domain.ObjectType(workRequest.Object),
			"worker")

		if errors.Is(err, syncengine.ErrUnsupportedObjectType) {
			errMsg := "Unsupported object type"
			logger.Info(errMsg)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusBadRequest,
				Detail: workRequest.Object}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Info("Error processing backfill work item")
			errorResponse := errorResponse{Title: "Error processing backfill work item",
				Status: http.StatusInternalServerError,
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		logger.WithFields(logrus.Fields{
			"processed": result.ProcessedCount,
			"has_more":  result.HasMore}).Info("Backfill work item complete")

		writeJSONResponse(w, http.StatusOK, result)
	}
}
