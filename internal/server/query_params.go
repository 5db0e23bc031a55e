package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/invoicekits/invoicekits/pkg/db/pagination"
)

// pathID validates a snowflake path parameter and returns it as a string,
// the form services accept.
func pathID(c *gin.Context, name string) (string, bool) {
	raw := strings.TrimSpace(c.Param(name))
	if parsed, err := snowflake.ParseString(raw); err != nil || parsed == 0 {
		AbortWithError(c, newValidationError(name, "invalid_id", "invalid id"))
		return "", false
	}
	return raw, true
}

func parsePagination(c *gin.Context) (pagination.Pagination, bool) {
	page := pagination.Pagination{PageToken: strings.TrimSpace(c.Query("page_token"))}
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be a positive integer"))
			return page, false
		}
		page.PageSize = size
	}
	return page, true
}
