// Package auth verifies bearer tokens issued by the identity provider.
// The token's subject is the user identity the valuation store keys on.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const contextKeyUserID = "auth.user_id"

var ErrMissingSubject = errors.New("token has no subject")

type Verifier struct {
	secret []byte
	logger *logrus.Logger
}

// NewVerifier returns nil when no secret is configured, which makes every
// request anonymous
func NewVerifier(secret string, logger *logrus.Logger) *Verifier {
	if secret == "" {
		return nil
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Verifier{secret: []byte(secret), logger: logger}
}

// Verify parses an HS256 token and returns its subject
func (v *Verifier) Verify(tokenStr string) (string, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("invalid subject claim: %w", err)
	}
	if sub == "" {
		return "", ErrMissingSubject
	}
	return sub, nil
}

// Sign issues a token for sub. Used by the CLI and tests.
func (v *Verifier) Sign(sub string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = sub
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// OptionalAuth lets requests without a token through as anonymous. A token
// that is present but invalid is rejected.
func OptionalAuth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.Request)
		if tokenStr == "" || v == nil {
			c.Next()
			return
		}

		sub, err := v.Verify(tokenStr)
		if err != nil {
			v.logger.WithError(err).Warn("Rejected bearer token")
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set(contextKeyUserID, sub)
		c.Next()
	}
}

// UserID returns the authenticated identity, or "" for anonymous requests
func UserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
