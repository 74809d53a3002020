package middlewares_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/billingops/billing-sync-connector/internal/middlewares"
	"github.com/billingops/billing-sync-connector/internal/platform/utils/jwt_utils"
)

const (
	TOKEN_HEADER_CLIENT_NAME    = middlewares.PSKClientIdHeader
	TOKEN_HEADER_ACCOUNT_NAME   = middlewares.PSKAccountHeader
	TOKEN_HEADER_PSK_NAME       = middlewares.PSKHeader
	authFailure                 = "Authentication failed"
	EXPECTED_ACCOUNT_FROM_TOKEN = "acct_0000001"
)

func GetTestHandler(expectedAccount string) http.HandlerFunc {
	fn := func(rw http.ResponseWriter, req *http.Request) {
		principal, ok := middlewares.GetPrincipal(req.Context())
		Expect(ok).To(Equal(true))
		Expect(principal.GetAccount()).To(Equal(expectedAccount))
	}

	return http.HandlerFunc(fn)
}

func boiler(req *http.Request, expectedStatusCode int, expectedBody string, expectedAccount string, handler http.Handler) {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	Expect(rr.Code).To(Equal(expectedStatusCode))
	Expect(rr.Body.String()).To(Equal(expectedBody))
}

var _ = Describe("Auth", func() {
	var (
		req *http.Request
		amw *middlewares.AuthMiddleware
	)

	BeforeEach(func() {
		knownSecrets := make(map[string]interface{})
		knownSecrets["test_client_1"] = "12345"
		amw = &middlewares.AuthMiddleware{Secrets: knownSecrets}

		r, err := http.NewRequest("POST", "/api/billing-sync/v1/worker", nil)
		if err != nil {
			panic("Test error unable to get new request")
		}
		req = r
	})

	Describe("Using token authentication", func() {
		Context("With no missing token auth headers", func() {
			It("Should return 200 when the key is correct", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "test_client_1")
				req.Header.Add(TOKEN_HEADER_ACCOUNT_NAME, EXPECTED_ACCOUNT_FROM_TOKEN)
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")

				boiler(req, 200, "", EXPECTED_ACCOUNT_FROM_TOKEN,
					amw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
			})

			It("Should return a 401 when the key is incorrect", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "test_client_1")
				req.Header.Add(TOKEN_HEADER_ACCOUNT_NAME, EXPECTED_ACCOUNT_FROM_TOKEN)
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "678910")

				boiler(req, 401, authFailure+"\n", EXPECTED_ACCOUNT_FROM_TOKEN,
					amw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
			})

			It("Should return a 401 when the client id is unknown", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "test_client_nil")
				req.Header.Add(TOKEN_HEADER_ACCOUNT_NAME, EXPECTED_ACCOUNT_FROM_TOKEN)
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")

				boiler(req, 401, authFailure+"\n", EXPECTED_ACCOUNT_FROM_TOKEN,
					amw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
			})
		})

		Context("With missing token auth headers", func() {
			It("Should return 401 when the client id header is missing", func() {
				req.Header.Add(TOKEN_HEADER_ACCOUNT_NAME, EXPECTED_ACCOUNT_FROM_TOKEN)
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")

				boiler(req, 401, authFailure+"\n", "dont care",
					amw.Authenticate(GetTestHandler("dont care")))
			})

			It("Should return 401 when the account header is missing", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "test_client_1")
				req.Header.Add(TOKEN_HEADER_PSK_NAME, "12345")

				boiler(req, 401, authFailure+"\n", "dont care",
					amw.Authenticate(GetTestHandler("dont care")))
			})

			It("Should return 401 when the psk header is missing", func() {
				req.Header.Add(TOKEN_HEADER_CLIENT_NAME, "test_client_1")
				req.Header.Add(TOKEN_HEADER_ACCOUNT_NAME, EXPECTED_ACCOUNT_FROM_TOKEN)

				boiler(req, 401, authFailure+"\n", "dont care",
					amw.Authenticate(GetTestHandler("dont care")))
			})
		})
	})
})

var _ = Describe("BearerAuth", func() {
	var (
		req *http.Request
	)

	BeforeEach(func() {
		r, err := http.NewRequest("POST", "/api/billing-sync/v1/scheduler", nil)
		if err != nil {
			panic("Test error unable to get new request")
		}
		req = r
	})

	Describe("Using a pre-shared bearer token", func() {
		var bmw *middlewares.BearerAuthMiddleware

		BeforeEach(func() {
			bmw = &middlewares.BearerAuthMiddleware{
				Impl:    middlewares.BearerAuthPsk,
				Psk:     "scheduler-secret",
				Account: EXPECTED_ACCOUNT_FROM_TOKEN,
			}
		})

		It("Should return 200 when the token matches", func() {
			req.Header.Add("Authorization", "Bearer scheduler-secret")

			boiler(req, 200, "", EXPECTED_ACCOUNT_FROM_TOKEN,
				bmw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
		})

		It("Should return 401 when the token does not match", func() {
			req.Header.Add("Authorization", "Bearer not-the-secret")

			boiler(req, 401, authFailure+"\n", EXPECTED_ACCOUNT_FROM_TOKEN,
				bmw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
		})

		It("Should return 401 when the authorization header is missing", func() {
			boiler(req, 401, authFailure+"\n", EXPECTED_ACCOUNT_FROM_TOKEN,
				bmw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
		})

		It("Should return 401 when the authorization header has no bearer prefix", func() {
			req.Header.Add("Authorization", "scheduler-secret")

			boiler(req, 401, authFailure+"\n", EXPECTED_ACCOUNT_FROM_TOKEN,
				bmw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
		})
	})

	Describe("Using a signed jwt", func() {
		var bmw *middlewares.BearerAuthMiddleware

		BeforeEach(func() {
			bmw = &middlewares.BearerAuthMiddleware{
				Impl:          middlewares.BearerAuthJwt,
				JwtSigningKey: "jwt-signing-key",
				Account:       EXPECTED_ACCOUNT_FROM_TOKEN,
			}
		})

		It("Should return 200 when the jwt was signed with the shared key", func() {
			generator, err := jwt_utils.NewHmacBasedJwtGenerator("jwt-signing-key", EXPECTED_ACCOUNT_FROM_TOKEN, 5)
			Expect(err).NotTo(HaveOccurred())

			token, err := generator(context.TODO())
			Expect(err).NotTo(HaveOccurred())

			req.Header.Add("Authorization", "Bearer "+token)

			boiler(req, 200, "", EXPECTED_ACCOUNT_FROM_TOKEN,
				bmw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
		})

		It("Should return 401 when the jwt was signed with a different key", func() {
			generator, err := jwt_utils.NewHmacBasedJwtGenerator("some-other-key", EXPECTED_ACCOUNT_FROM_TOKEN, 5)
			Expect(err).NotTo(HaveOccurred())

			token, err := generator(context.TODO())
			Expect(err).NotTo(HaveOccurred())

			req.Header.Add("Authorization", "Bearer "+token)

			boiler(req, 401, authFailure+"\n", EXPECTED_ACCOUNT_FROM_TOKEN,
				bmw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
		})

		It("Should return 401 when the jwt has expired", func() {
			generator, err := jwt_utils.NewHmacBasedJwtGenerator("jwt-signing-key", EXPECTED_ACCOUNT_FROM_TOKEN, -5)
			Expect(err).NotTo(HaveOccurred())

			token, err := generator(context.TODO())
			Expect(err).NotTo(HaveOccurred())

			req.Header.Add("Authorization", "Bearer "+token)

			boiler(req, 401, authFailure+"\n", EXPECTED_ACCOUNT_FROM_TOKEN,
				bmw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
		})

		It("Should return 401 when the token is not a jwt", func() {
			req.Header.Add("Authorization", "Bearer this-is-not-a-jwt")

			boiler(req, 401, authFailure+"\n", EXPECTED_ACCOUNT_FROM_TOKEN,
				bmw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
		})
	})

	Describe("With a misconfigured implementation", func() {
		It("Should return 401", func() {
			bmw := &middlewares.BearerAuthMiddleware{Impl: "carrier-pigeon", Account: EXPECTED_ACCOUNT_FROM_TOKEN}

			req.Header.Add("Authorization", "Bearer anything")

			boiler(req, 401, authFailure+"\n", EXPECTED_ACCOUNT_FROM_TOKEN,
				bmw.Authenticate(GetTestHandler(EXPECTED_ACCOUNT_FROM_TOKEN)))
		})
	})
})
