package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenCookieName is the cookie checked when no Authorization header is sent.
const TokenCookieName = "speedbench_token"

// TokenMiddleware guards the history API with a shared token, taken from
// "Authorization: Bearer <token>" or the speedbench_token cookie. An empty
// token disables the check.
func TokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if presented == "" {
			cookie, err := c.Cookie(TokenCookieName)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Missing token"})
				return
			}
			presented = cookie
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid token"})
			return
		}
		c.Next()
	}
}
