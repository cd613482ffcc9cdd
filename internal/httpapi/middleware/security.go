package middleware

import "github.com/gin-gonic/gin"

// SecurityHeaders sets the same baseline response headers regardless of
// environment: this is an operator control plane with no third-party
// content to sandbox against, so the per-environment CSP relaxation the
// prior implementation carried for its SPA frontend does not apply here.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
