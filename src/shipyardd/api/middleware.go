package api

import (
	"net/http"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/shipyardd/api/common"
	"github.com/gin-gonic/gin"
)

// authRequired rejects requests without a valid token. It lets everything
// through when authentication is disabled.
func (a *API) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.jwtService == nil {
			c.Next()
			return
		}

		claims, err := common.GetTokenClaimsFromRequest(c, a.jwtService)
		if err != nil {
			message := "Authentication required"
			if errors.Is(err, errors.ErrTokenExpired) {
				message = "Token has expired"
			} else if errors.Is(err, errors.ErrTokenInvalid) {
				message = "Invalid token"
			}
			common.AbortUnauthorized(c, message)
			return
		}

		common.SetClaims(c, claims)
		c.Next()
	}
}

// rateLimit returns middleware that applies limit per caller. Authenticated
// callers are keyed by user ID, everyone else by client IP. It must run
// after authRequired so the claims are in place.
func (a *API) rateLimit(scope string, limit func(RateLimitConfig) int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.rateLimiter == nil {
			c.Next()
			return
		}

		key := scope + ":ip:" + c.ClientIP()
		if claims := common.GetClaimsFromContext(c); claims != nil && claims.UserID != "" {
			key = scope + ":user:" + claims.UserID
		}

		if !a.rateLimiter.Allow(key, limit(a.rateLimiter.config)) {
			c.Header("Retry-After", "60")
			resp := errors.ErrRateLimited.ToResponse()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
				Error:   http.StatusText(http.StatusTooManyRequests),
				Code:    http.StatusTooManyRequests,
				Message: resp.Message,
				Reason:  resp.Error,
			})
			return
		}
		c.Next()
	}
}

func submitLimit(cfg RateLimitConfig) int { return cfg.SubmitsPerMin }

func writeLimit(cfg RateLimitConfig) int { return cfg.WritesPerMin }
