package frontend

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/rtmp-auth/internal/cryptox"
)

const basicAuthRealm = `Basic realm="rtmp-auth"`

// basicAuth requires the configured user and a password matching the bcrypt
// hash. It is a no-op without a hash.
func (h *Handler) basicAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.passwordHash == "" {
			c.Next()
			return
		}

		user, password, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.username)) != 1 ||
			!cryptox.CheckPassword(h.passwordHash, []byte(password)) {
			c.Header("WWW-Authenticate", basicAuthRealm)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
