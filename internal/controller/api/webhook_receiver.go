package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/billingops/billing-sync-connector/internal/config"
	"github.com/billingops/billing-sync-connector/internal/middlewares"
	"github.com/billingops/billing-sync-connector/internal/platform/logger"
	"github.com/billingops/billing-sync-connector/internal/syncengine"
	"github.com/redhatinsights/platform-go-middlewares/request_id"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const signatureHeader = "Stripe-Signature"

type WebhookReceiver struct {
	engine    *syncengine.Engine
	router    *mux.Router
	config    *config.Config
	urlPrefix string
}

func NewWebhookReceiver(engine *syncengine.Engine, r *mux.Router, urlPrefix string, cfg *config.Config) *WebhookReceiver {
	return &WebhookReceiver{
		engine:    engine,
		router:    r,
		config:    cfg,
		urlPrefix: urlPrefix,
	}
}

func (wr *WebhookReceiver) Routes() {
	mmw := &middlewares.MetricsMiddleware{}

	// Webhook deliveries are authenticated by their hmac signature, not by
	// platform credentials.
	subRouter := wr.router.PathPrefix(wr.urlPrefix).Subrouter()
	subRouter.Use(logger.AccessLoggerMiddleware,
		mmw.RecordHTTPMetrics)

	subRouter.HandleFunc("/webhooks", wr.handleWebhook()).Methods(http.MethodPost)
	subRouter.HandleFunc("/webhooks/{routingId}", wr.handleWebhook()).Methods(http.MethodPost)
}

type webhookAck struct {
	Received bool `json:"received"`
}

func (wr *WebhookReceiver) handleWebhook() http.HandlerFunc {

	return func(w http.ResponseWriter, req *http.Request) {

		requestId := request_id.GetReqID(req.Context())
		routingId := mux.Vars(req)["routingId"]
		logger := logger.Log.WithFields(logrus.Fields{
			"routing_id": routingId,
			"request_id": requestId})

		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, 1048576))
		if err != nil {
			errMsg := "Unable to read webhook payload"
			logger.WithFields(logrus.Fields{"error": err}).Debug(errMsg)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusBadRequest,
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		err = wr.engine.ProcessWebhook(req.Context(), body, req.Header.Get(signatureHeader), routingId)

		if errors.Is(err, syncengine.ErrInvalidSignature) {
			errMsg := "Webhook delivery rejected"
			logger.WithFields(logrus.Fields{"error": err}).Info(errMsg)
			errorResponse := errorResponse{Title: errMsg,
				Status: http.StatusBadRequest,
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		if err != nil {
			logger.WithFields(logrus.Fields{"error": err}).Error("Error processing webhook delivery")
			errorResponse := errorResponse{Title: "Error processing webhook delivery",
				Status: http.StatusInternalServerError,
				Detail: err.Error()}
			writeJSONResponse(w, errorResponse.Status, errorResponse)
			return
		}

		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
	}
}
