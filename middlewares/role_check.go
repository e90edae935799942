package middlewares

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/utils"
)

// RequireRoles lets the request through when the caller has one of roles.
// Admins pass every check.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextRole)
		if !exists {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		role, _ := userRole.(string)
		if role != models.RoleAdmin && !slices.Contains(roles, role) {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("%s access required", roles[0]))
			c.Abort()
			return
		}

		c.Next()
	}
}
