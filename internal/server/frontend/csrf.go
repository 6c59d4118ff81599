package frontend

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
)

const (
	csrfCookie   = "rtmp_auth_csrf"
	csrfField    = "csrf_token"
	csrfCtxKey   = "csrf_token"
	csrfValidity = 12 * time.Hour
)

// csrfClaims identify one browser session. The token is stored in a cookie
// and repeated in every form; both must match and carry a valid signature.
type csrfClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

func generateCSRFToken(secret []byte, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, csrfClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(csrfValidity)),
		},
		Nonce: uuid.NewString(),
	})

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func verifyCSRFToken(tokenString string, secret []byte, now time.Time) error {
	claims := &csrfClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Nonce == "" {
		return common.ErrInvalidToken
	}
	return nil
}

// csrfMiddleware issues a token on safe requests and checks it on POST.
func (h *Handler) csrfMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := h.clock.Now()
		secret := h.store.Secret()

		cookie, err := c.Cookie(csrfCookie)
		if err != nil || verifyCSRFToken(cookie, secret, now) != nil {
			cookie = ""
		}

		if c.Request.Method == http.MethodPost {
			if err := checkSubmittedToken(cookie, c.PostForm(csrfField)); err != nil {
				h.logger.Warn(c.Request.Context(), "csrf check failed", "path", c.Request.URL.Path, "error", err)
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if cookie == "" {
			cookie, err = generateCSRFToken(secret, now)
			if err != nil {
				h.logger.Error(c.Request.Context(), "failed to issue csrf token", "error", err)
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.SetSameSite(http.SameSiteStrictMode)
			c.SetCookie(csrfCookie, cookie, int(csrfValidity.Seconds()), h.cookiePath(), "", !h.insecure, true)
		}

		c.Set(csrfCtxKey, cookie)
		c.Next()
	}
}

func checkSubmittedToken(cookie, submitted string) error {
	if cookie == "" {
		return errors.New("missing or invalid csrf cookie")
	}
	if submitted == "" {
		return errors.New("missing csrf form field")
	}
	if subtle.ConstantTimeCompare([]byte(cookie), []byte(submitted)) != 1 {
		return common.ErrInvalidToken
	}
	return nil
}
