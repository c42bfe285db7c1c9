package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxClaims = "pnw_operator_claims"

// RequireOperator returns a Gin middleware that enforces a valid operator
// Bearer token of any role.
func RequireOperator(tokens *TokenIssuer) gin.HandlerFunc {
	return RequireRole(tokens)
}

// RequireRole returns a Gin middleware that enforces a valid operator
// Bearer token whose role is one of roles. Admins always pass.
// With no roles listed any authenticated operator passes.
func RequireRole(tokens *TokenIssuer, roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer operator token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		if !hasRole(claims.Role, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "role " + string(claims.Role) + " may not perform this operation",
			})
			return
		}

		c.Set(ctxClaims, claims)
		c.Next()
	}
}

// ClaimsFromCtx returns the operator claims set by RequireOperator or
// RequireRole, or nil.
func ClaimsFromCtx(c *gin.Context) *Claims {
	v, _ := c.Get(ctxClaims)
	claims, _ := v.(*Claims)
	return claims
}

func hasRole(have Role, want []Role) bool {
	if len(want) == 0 || have == RoleAdmin {
		return true
	}
	for _, r := range want {
		if r == have {
			return true
		}
	}
	return false
}
