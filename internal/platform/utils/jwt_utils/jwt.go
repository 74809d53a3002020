package jwt_utils

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/billingops/billing-sync-connector/internal/platform/logger"

	"github.com/golang-jwt/jwt"
	"github.com/sirupsen/logrus"
)

type schedulerInfo struct {
	Account   string `json:"account"`
	AuthGroup string `json:"auth-group"`
}

type customClaims struct {
	*jwt.StandardClaims
	schedulerInfo
}

const (
	HmacTokenGenerator = "jwt_hmac_generator"
	FileTokenGenerator = "jwt_file_reader"
)

func createHmacToken(account string, group string, exp time.Time, signingKey []byte) (string, error) {
	t := jwt.New(jwt.GetSigningMethod("HS256"))
	t.Claims = &customClaims{
		&jwt.StandardClaims{
			ExpiresAt: exp.UTC().Unix(),
		},
		schedulerInfo{account, group},
	}
	t.Header["kid"] = "billing-sync-scheduler"
	return t.SignedString(signingKey)
}

type JwtGenerator func(c context.Context) (string, error)

func NewHmacBasedJwtGenerator(signingKey string, account string, tokenExpiryMinutes int) (JwtGenerator, error) {
	if signingKey == "" {
		return nil, errors.New("Cannot generate scheduler tokens without a signing key")
	}
	key := []byte(signingKey)
	return func(context.Context) (string, error) {
		expiryDate := time.Now().Add(time.Minute * time.Duration(tokenExpiryMinutes))
		logger.Log.Info("Generating an HMAC JWT token with expiry : ", expiryDate)
		return createHmacToken(account, "scheduler", expiryDate, key)
	}, nil
}

func NewFileBasedJwtGenerator(filename string) (JwtGenerator, error) {
	logger.Log.Debug("Loading JWT from a file: ", filename)

	jwtBytes, err := os.ReadFile(filename)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err}).Error("Could not read jwt from file")
		return nil, err
	}

	jwtText := strings.TrimSpace(string(jwtBytes))

	return func(context.Context) (string, error) {
		return jwtText, nil
	}, nil
}
