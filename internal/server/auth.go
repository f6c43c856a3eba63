package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	obscontext "github.com/smallbiznis/recoverly/internal/observability/context"
	"go.uber.org/zap"
)

const contextTenantIDKey = "tenant_id"

var errAuthNotConfigured = errors.New("auth_not_configured")

// TokenAuth validates HS256 bearer tokens whose subject is the tenant id.
type TokenAuth struct {
	secret []byte
}

func NewTokenAuth(secret string) *TokenAuth {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &TokenAuth{}
	}
	return &TokenAuth{secret: []byte(secret)}
}

// Issue signs a token for tenantID. Used by operators and tests.
func (a *TokenAuth) Issue(tenantID string, ttl time.Duration, now time.Time) (string, error) {
	if len(a.secret) == 0 {
		return "", errAuthNotConfigured
	}
	claims := jwt.RegisteredClaims{
		Subject:  tenantID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Validate returns the tenant id bound to the token.
func (a *TokenAuth) Validate(raw string) (string, error) {
	if len(a.secret) == 0 {
		return "", errAuthNotConfigured
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return "", ErrUnauthorized
	}
	tenantID := strings.TrimSpace(claims.Subject)
	if tenantID == "" {
		return "", ErrUnauthorized
	}
	return tenantID, nil
}

// TenantAuthRequired resolves the tenant from the bearer token. It fails closed when no secret is configured.
func (s *Server) TenantAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		tenantID, err := s.auth.Validate(parts[1])
		if err != nil {
			s.log.Debug("auth.token_rejected", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextTenantIDKey, tenantID)
		c.Request = c.Request.WithContext(obscontext.WithTenantID(c.Request.Context(), tenantID))
		c.Next()
	}
}

func tenantIDFromContext(c *gin.Context) (string, bool) {
	tenantID := strings.TrimSpace(c.GetString(contextTenantIDKey))
	return tenantID, tenantID != ""
}
