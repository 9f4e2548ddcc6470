package webserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role claim required on admin routes.
const RoleAdmin = "admin"

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs an HS256 admin token for subject valid for ttl.
func IssueAdminToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("webserver: empty jwt secret")
	}
	now := time.Now()
	claims := AdminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func JWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "missing bearer token"})
			return
		}
		var claims AdminClaims
		tok, err := jwt.ParseWithClaims(h[7:], &claims,
			func(*jwt.Token) (interface{}, error) { return secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		)
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "invalid token"})
			return
		}
		if claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"err": "admin access required"})
			return
		}
		c.Set("sub", claims.Subject)
		c.Next()
	}
}
