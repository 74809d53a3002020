package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/billingops/billing-sync-connector/internal/syncengine"

	"github.com/gorilla/mux"
)

const (
	URL_BASE_PATH    = "/api/billing-sync/v1"
	WEBHOOK_ENDPOINT = URL_BASE_PATH + "/webhooks"
)

var _ = Describe("WebhookReceiver", func() {

	var (
		wr      *WebhookReceiver
		payload []byte
	)

	BeforeEach(func() {
		cfg := testConfig()
		apiMux := mux.NewRouter()

		engine := testEngine(cfg, &stubObjectAPI{}, newStubRunCoordinator())

		wr = NewWebhookReceiver(engine, apiMux, URL_BASE_PATH, cfg)
		wr.Routes()

		payload = []byte(`{"id":"evt_1","type":"customer.updated","created":1756000000,"data":{"object":{"id":"cus_1","object":"customer"}}}`)
	})

	Describe("Receiving a webhook delivery", func() {
		Context("Without a signature header", func() {
			It("Should reject the delivery", func() {

				req, err := http.NewRequest("POST", WEBHOOK_ENDPOINT, bytes.NewReader(payload))
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))

				var m map[string]interface{}
				json.Unmarshal(rr.Body.Bytes(), &m)
				Expect(m).Should(HaveKey("title"))
				Expect(m).Should(HaveKey("detail"))
			})
		})

		Context("With a signature produced by the wrong secret", func() {
			It("Should reject the delivery", func() {

				req, err := http.NewRequest("POST", WEBHOOK_ENDPOINT, bytes.NewReader(payload))
				Expect(err).NotTo(HaveOccurred())

				req.Header.Add("Stripe-Signature",
					syncengine.BuildSignatureHeader(time.Now(), payload, "whsec_someone_elses_secret"))

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("With a valid signature over a payload that is not json", func() {
			It("Should reject the delivery", func() {

				garbage := []byte("this is not json")

				req, err := http.NewRequest("POST", WEBHOOK_ENDPOINT, bytes.NewReader(garbage))
				Expect(err).NotTo(HaveOccurred())

				req.Header.Add("Stripe-Signature",
					syncengine.BuildSignatureHeader(time.Now(), garbage, testSigningSecret))

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("Addressed to an unknown routing identifier", func() {
			It("Should reject the delivery", func() {

				req, err := http.NewRequest("POST", WEBHOOK_ENDPOINT+"/bogus-routing-id", bytes.NewReader(payload))
				Expect(err).NotTo(HaveOccurred())

				req.Header.Add("Stripe-Signature",
					syncengine.BuildSignatureHeader(time.Now(), payload, testSigningSecret))

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})
		})

		Context("With a GET request", func() {
			It("Should not match the route", func() {

				req, err := http.NewRequest("GET", WEBHOOK_ENDPOINT, nil)
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
			})
		})
	})
})
