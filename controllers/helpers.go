package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/utils"
)

// bindJSON decodes the body into req and answers 400 on failure. The body
// is cached so middleware may have read it first.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindBodyWith(req, binding.JSON); err != nil {
		utils.RespondAppError(c, apperrors.Validation("%s", err.Error()))
		return false
	}
	return true
}

// pageParams reads ?cursor= and ?limit= for paged listings.
func pageParams(c *gin.Context) (string, int, bool) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.RespondAppError(c, apperrors.Validation("limit must be a non-negative integer"))
			return "", 0, false
		}
		limit = n
	}
	return c.Query("cursor"), limit, true
}
