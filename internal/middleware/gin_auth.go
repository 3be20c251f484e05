package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinRequireAuth adapts the net/http AuthMiddleware to Gin.
// Auth decisions stay session-based and provider-agnostic.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return bridge(auth.RequireAuth)
}

// GinOptionalAuth adapts OptionalAuth to Gin.
func GinOptionalAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return bridge(auth.OptionalAuth)
}

func bridge(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		// the wrapped middleware already answered
		if c.Writer.Written() {
			c.Abort()
		}
	}
}
