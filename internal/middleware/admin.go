package middleware

import (
	"net/http"                       // HTTP status codes
	"wallet_ledger/internal/storage" // User lookup

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminOnlyMiddleware checks the user's role from storage on each request
func AdminOnlyMiddleware(users storage.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := UserID(c) // Get userID from context
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		user, err := users.GetByID(c.Request.Context(), userID) // Fetch user from storage
		if err != nil || !user.IsAdmin() {
			// Unknown users and non-admins look the same
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next() // Admin, proceed to the next handler
	}
}
