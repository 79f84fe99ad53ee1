// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/datary/services/sandbox/store"
)

// Context keys for the authenticated session.
const (
	userKey  = "datary_user"
	tokenKey = "datary_token"
)

// GetUser returns the user stored by AuthMiddleware. The bool is false on
// routes that are not authenticated.
func GetUser(c *gin.Context) (store.User, bool) {
	if v, ok := c.Get(userKey); ok {
		user, ok := v.(store.User)
		return user, ok
	}
	return store.User{}, false
}

// AuthMiddleware rejects requests without a valid session token.
//
// # Description
//
// Extracts the bearer token from the Authorization header, resolves it to
// a user through the store and saves both in the Gin context. Unknown or
// missing tokens abort with 401.
//
// # Examples
//
//	authed := router.Group("/")
//	authed.Use(AuthMiddleware(st))
func AuthMiddleware(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		user, err := st.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userKey, user)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// extractBearerToken returns the token of "Authorization: Bearer <token>".
// The scheme is case-insensitive; anything else yields "".
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
