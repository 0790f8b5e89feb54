// Package common holds the helpers shared by the shipyardd HTTP handlers.
package common

import (
	"net/http"
	"strconv"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/shipyardd/auth"
	"github.com/gin-gonic/gin"
)

const (
	DefaultPaginationLimit = 50
	MaxPaginationLimit     = 500

	claimsKey = "claims"
)

// SetClaims stores validated token claims on the request context
func SetClaims(c *gin.Context, claims *auth.TokenClaims) {
	c.Set(claimsKey, claims)
}

// GetClaimsFromContext retrieves the token claims stored by auth middleware
func GetClaimsFromContext(c *gin.Context) *auth.TokenClaims {
	if claims, exists := c.Get(claimsKey); exists {
		if tokenClaims, ok := claims.(*auth.TokenClaims); ok {
			return tokenClaims
		}
	}
	return nil
}

// GetTokenFromRequest returns the raw token from X-Subject-Token, a Bearer
// Authorization header or the token query parameter, in that order
func GetTokenFromRequest(c *gin.Context) string {
	token := c.GetHeader("X-Subject-Token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	// EventSource cannot set headers
	if token == "" {
		token = c.Query("token")
	}

	return token
}

// GetTokenClaimsFromRequest extracts and validates JWT claims from the request
func GetTokenClaimsFromRequest(c *gin.Context, jwtService *auth.JWTService) (*auth.TokenClaims, error) {
	if jwtService == nil {
		return nil, errors.ErrNoToken
	}
	return jwtService.ValidateToken(GetTokenFromRequest(c))
}

// GetPaginationParams extracts limit and offset from query parameters
func GetPaginationParams(c *gin.Context, maxLimit int) (int, int) {
	limit := DefaultPaginationLimit
	offset := 0

	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			limit = parsed
		}
	}

	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}

// RespondError answers with the status and message carried by err. Foreign
// errors become a generic 500 so their text does not leak.
func RespondError(c *gin.Context, err error) {
	status := errors.GetHTTPStatus(err)
	resp := errors.NewResponse(err)

	c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: resp.Message,
		Reason:  resp.Error,
	})
}

// BadRequest sends a 400 Bad Request response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Bad request",
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

// NotFound sends a 404 Not Found response
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "Not found",
		Code:    http.StatusNotFound,
		Message: message,
	})
}

// InternalError sends a 500 Internal Server Error response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "Internal server error",
		Code:    http.StatusInternalServerError,
		Message: message,
	})
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "Unauthorized",
		Code:    http.StatusUnauthorized,
		Message: message,
	})
}

// Conflict sends a 409 Conflict response
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, ErrorResponse{
		Error:   "Conflict",
		Code:    http.StatusConflict,
		Message: message,
	})
}

// ServiceUnavailable sends a 503 Service Unavailable response
func ServiceUnavailable(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:   "Service unavailable",
		Code:    http.StatusServiceUnavailable,
		Message: message,
	})
}

// BadGateway sends a 502 Bad Gateway response
func BadGateway(c *gin.Context, message string) {
	c.JSON(http.StatusBadGateway, ErrorResponse{
		Error:   "Bad gateway",
		Code:    http.StatusBadGateway,
		Message: message,
	})
}

// AbortUnauthorized aborts the request with a 401 Unauthorized response
func AbortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Error:   "Unauthorized",
		Code:    http.StatusUnauthorized,
		Message: message,
	})
}
