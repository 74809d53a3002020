package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/billingops/billing-sync-connector/internal/platform/logger"

	"github.com/golang-jwt/jwt"
	"github.com/sirupsen/logrus"
)

const (
	authErrorMessage   = "Authentication failed"
	authErrorLogHeader = "Authentication error: "
	PSKClientIdHeader  = "x-billing-sync-client-id"
	PSKAccountHeader   = "x-billing-sync-account"
	PSKHeader          = "x-billing-sync-psk"
)

// Principal interface can be implemented and expanded by various principal objects (type depends on middleware being used)
type Principal interface {
	GetAccount() string
}

type key int

var principalKey key

type serviceToServicePrincipal struct {
	account, clientID string
}

func (sp serviceToServicePrincipal) GetAccount() string {
	return sp.account
}

func (sp serviceToServicePrincipal) GetClientID() string {
	return sp.clientID
}

type bearerPrincipal struct {
	account string
}

func (bp bearerPrincipal) GetAccount() string {
	return bp.account
}

// GetPrincipal takes the request context and returns the principal object the
// authentication middleware attached.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

type serviceCredentials struct {
	clientID string
	account  string
	psk      string
}

func newServiceCredentials(clientID, account, psk string) (*serviceCredentials, error) {
	switch {
	case clientID == "":
		return nil, errors.New(authErrorLogHeader + "Missing " + PSKClientIdHeader + " header")
	case account == "":
		return nil, errors.New(authErrorLogHeader + "Missing " + PSKAccountHeader + " header")
	case psk == "":
		return nil, errors.New(authErrorLogHeader + "Missing " + PSKHeader + " header")
	}
	return &serviceCredentials{
		clientID: clientID,
		account:  account,
		psk:      psk,
	}, nil
}

type serviceCredentialsValidator struct {
	knownServiceCredentials map[string]interface{}
}

func (scv *serviceCredentialsValidator) validate(sc *serviceCredentials) error {
	switch {
	case scv.knownServiceCredentials[sc.clientID] == nil:
		return errors.New(authErrorLogHeader + "Provided ClientID not attached to any known keys")
	case sc.psk != scv.knownServiceCredentials[sc.clientID]:
		return errors.New(authErrorLogHeader + "Provided PSK does not match known key for this client")
	}
	return nil
}

// AuthMiddleware allows the passage of parameters into the Authenticate middleware
type AuthMiddleware struct {
	Secrets map[string]interface{}
}

// Authenticate validates the pre-shared-key headers used for service to
// service calls (worker invocations).
func (amw *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr, err := newServiceCredentials(
			r.Header.Get(PSKClientIdHeader),
			r.Header.Get(PSKAccountHeader),
			r.Header.Get(PSKHeader),
		)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Debug("Authentication failure")
			http.Error(w, authErrorMessage, 401)
			return
		}
		logger.Log.Debugf("Received service to service request from %v using account:%v", sr.clientID, sr.account)
		validator := serviceCredentialsValidator{knownServiceCredentials: amw.Secrets}
		if err := validator.validate(sr); err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Debug("Authentication failure")
			http.Error(w, authErrorMessage, 401)
			return
		}

		var principal Principal = serviceToServicePrincipal{account: sr.account, clientID: sr.clientID}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

const (
	BearerAuthPsk = "psk"
	BearerAuthJwt = "jwt"
)

// BearerAuthMiddleware checks the authorization header of scheduler
// invocations, either against a static pre-shared token or by validating an
// hmac signed jwt, depending on configuration.
type BearerAuthMiddleware struct {
	Impl          string
	Psk           string
	JwtSigningKey string
	Account       string
}

func (bmw *BearerAuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err}).Debug("Authentication failure")
			http.Error(w, authErrorMessage, 401)
			return
		}

		switch bmw.Impl {
		case BearerAuthPsk:
			if bmw.Psk == "" || token != bmw.Psk {
				logger.Log.Debug(authErrorLogHeader + "Provided bearer token does not match the configured key")
				http.Error(w, authErrorMessage, 401)
				return
			}
		case BearerAuthJwt:
			if err := bmw.validateJwt(token); err != nil {
				logger.Log.WithFields(logrus.Fields{"error": err}).Debug("Authentication failure")
				http.Error(w, authErrorMessage, 401)
				return
			}
		default:
			logger.Log.Error("Invalid bearer auth impl configured: ", bmw.Impl)
			http.Error(w, authErrorMessage, 401)
			return
		}

		var principal Principal = bearerPrincipal{account: bmw.Account}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (bmw *BearerAuthMiddleware) validateJwt(token string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(authErrorLogHeader + "Unexpected jwt signing method")
		}
		return []byte(bmw.JwtSigningKey), nil
	})
	if err != nil {
		return err
	}

	if !parsed.Valid {
		return errors.New(authErrorLogHeader + "Invalid jwt")
	}

	return nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New(authErrorLogHeader + "Missing authorization header")
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", errors.New(authErrorLogHeader + "Malformed authorization header")
	}

	return token, nil
}
