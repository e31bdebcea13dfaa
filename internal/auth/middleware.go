package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const CtxUserID = "uid"

// CookieName is where the login handler stores the token; the original
// single-page client authenticates with credentials:include.
const CookieName = "gz_token"

// TokenFromRequest looks for a JWT in the Authorization header, the token
// query parameter (websocket upgrade), or the session cookie, in that order.
func TokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if t := c.Query("token"); t != "" {
		return t
	}
	if t, err := c.Cookie(CookieName); err == nil {
		return t
	}
	return ""
}

func JWTMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := TokenFromRequest(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(secret, tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Next()
	}
}

func MustUserID(c *gin.Context) string {
	if v, ok := c.Get(CtxUserID); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
