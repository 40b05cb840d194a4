package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/auth"
)

// AdminAuth middleware checks for admin token
func AdminAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Admin-Token")

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin token required",
			})
			return
		}

		if !auth.TokenEqual(token, adminToken) {
			log.WithFields(log.Fields{
				"client_ip": c.ClientIP(),
				"path":      c.FullPath(),
			}).Warn("Rejected admin request with invalid token")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin token",
			})
			return
		}

		c.Next()
	}
}
