package adminhttp

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/saga-travel-orchestrator/internal/httpresponse"
)

// errInvalidToken covers every bearer-token validation failure; the
// specific cause is never surfaced to the caller.
var errInvalidToken = errors.New("invalid or expired admin token")

// JWTGuard returns a gin middleware enforcing a valid HMAC-signed
// (HS256, HS384 or HS512) bearer token signed with secret, grounded on the source auth service's
// jwt.Parse/SigningMethodHMAC validation shape.
func JWTGuard(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			httpresponse.Unauthorized(c, errInvalidToken.Error())
			c.Abort()
			return
		}
		tokenString := strings.TrimPrefix(header, prefix)

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errInvalidToken
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			httpresponse.Unauthorized(c, errInvalidToken.Error())
			c.Abort()
			return
		}

		c.Next()
	}
}
