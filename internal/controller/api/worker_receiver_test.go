package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/billingops/billing-sync-connector/internal/billingapi"
	"github.com/billingops/billing-sync-connector/internal/domain"
	"github.com/billingops/billing-sync-connector/internal/middlewares"
	"github.com/billingops/billing-sync-connector/internal/syncengine"

	"github.com/gorilla/mux"
)

const (
	TOKEN_HEADER_CLIENT_NAME  = middlewares.PSKClientIdHeader
	TOKEN_HEADER_ACCOUNT_NAME = middlewares.PSKAccountHeader
	TOKEN_HEADER_PSK_NAME     = middlewares.PSKHeader
	WORKER_ENDPOINT           = URL_BASE_PATH + "/worker"
)

func addWorkerAuthHeaders(req *http.Request) {
	req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "test_client_1")
	req.Header.Add(TOKEN_HEADER_ACCOUNT_NAME, "acct_test")
	req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")
}

var _ = Describe("WorkerReceiver", func() {

	var (
		wr *WorkerReceiver
	)

	BeforeEach(func() {
		cfg := testConfig()
		apiMux := mux.NewRouter()

		api := &stubObjectAPI{page: &billingapi.ListPage{Object: "list", HasMore: false}}
		engine := testEngine(cfg, api, newStubRunCoordinator())

		wr = NewWorkerReceiver(engine, apiMux, URL_BASE_PATH, cfg)
		wr.Routes()
	})

	Describe("Processing a backfill work item", func() {
		Context("Without pre-shared-key headers", func() {
			It("Should be rejected as unauthorized", func() {

				req, err := http.NewRequest("POST", WORKER_ENDPOINT, strings.NewReader(`{"object": "customer"}`))
				Expect(err).NotTo(HaveOccurred())

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			})
		})

		Context("With an invalid pre-shared-key", func() {
			It("Should be rejected as unauthorized", func() {

				req, err := http.NewRequest("POST", WORKER_ENDPOINT, strings.NewReader(`{"object": "customer"}`))
				Expect(err).NotTo(HaveOccurred())

				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "test_client_1")
				req.Header.Add(TOKEN_HEADER_ACCOUNT_NAME, "acct_test")
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "not-the-psk")

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			})
		})

		Context("With valid credentials for a different account", func() {
			It("Should be rejected as forbidden", func() {

				req, err := http.NewRequest("POST", WORKER_ENDPOINT, strings.NewReader(`{"object": "customer"}`))
				Expect(err).NotTo(HaveOccurred())

				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "test_client_1")
				req.Header.Add(TOKEN_HEADER_ACCOUNT_NAME, "acct_someone_else")
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusForbidden))

				var m map[string]interface{}
				json.Unmarshal(rr.Body.Bytes(), &m)
				Expect(m["detail"]).To(Equal("acct_someone_else"))
			})
		})

		Context("With valid credentials", func() {
			It("Should reject a request that is not json", func() {

				req, err := http.NewRequest("POST", WORKER_ENDPOINT, strings.NewReader("not json"))
				Expect(err).NotTo(HaveOccurred())

				addWorkerAuthHeaders(req)

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})

			It("Should reject a request without an object field", func() {

				req, err := http.NewRequest("POST", WORKER_ENDPOINT, strings.NewReader(`{"fred": "flintstone"}`))
				Expect(err).NotTo(HaveOccurred())

				addWorkerAuthHeaders(req)

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))
			})

			It("Should reject an unsupported object type", func() {

				req, err := http.NewRequest("POST", WORKER_ENDPOINT, strings.NewReader(`{"object": "spaceship"}`))
				Expect(err).NotTo(HaveOccurred())

				addWorkerAuthHeaders(req)

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusBadRequest))

				var m map[string]interface{}
				json.Unmarshal(rr.Body.Bytes(), &m)
				Expect(m).Should(HaveKey("title"))
				Expect(m["detail"]).To(Equal("spaceship"))
			})

			It("Should process a page for a supported object type", func() {

				req, err := http.NewRequest("POST", WORKER_ENDPOINT, strings.NewReader(`{"object": "customer"}`))
				Expect(err).NotTo(HaveOccurred())

				addWorkerAuthHeaders(req)

				rr := httptest.NewRecorder()

				wr.router.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))

				var result syncengine.BackfillResult
				err = json.Unmarshal(rr.Body.Bytes(), &result)
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Object).To(Equal(domain.ObjectType("customer")))
				Expect(result.ProcessedCount).To(Equal(0))
				Expect(result.HasMore).To(BeFalse())
			})
		})
	})
})
