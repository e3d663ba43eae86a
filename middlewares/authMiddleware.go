package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/graniteval/assessor_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and seeds the request context
// with the caller's municipality, user and role. Requests without an
// Authorization header pass through untenanted; handlers that need a tenant
// reject them via the context helpers.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claims, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		ctx = utils.SetTokenInContext(ctx, auth)
		ctx = utils.SetMunicipalityIdInContext(ctx, claims.MunicipalityId)
		ctx = utils.SetUserIdInContext(ctx, claims.UserId)
		ctx = utils.SetUserNameInContext(ctx, claims.UserName)
		if strings.EqualFold(claims.Role, "admin") {
			ctx = utils.SetIsAdminInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
