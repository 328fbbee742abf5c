package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerTokenKey is the gin context key holding the raw access token.
const BearerTokenKey = "bearer_token"

const unauthorizedMessage = "Could not validate credentials"

// RequireBearer extracts the access token from "Authorization: Bearer <token>".
// Every malformed header yields the same 401 so callers learn nothing about why.
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			AbortWithError(c, http.StatusUnauthorized, unauthorizedMessage, nil)
			return
		}

		c.Set(BearerTokenKey, token)
		c.Next()
	}
}

// GetBearerToken returns the token stored by RequireBearer.
func GetBearerToken(c *gin.Context) (string, bool) {
	v, ok := c.Get(BearerTokenKey)
	if !ok {
		return "", false
	}
	token, ok := v.(string)
	return token, ok && token != ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
