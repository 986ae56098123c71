package util

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Pagination bounds shared by every list endpoint
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// ParseInt parses a string to an integer, returning defaultValue if parsing fails
func ParseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultValue
}

// ParseBool parses an optional boolean query value. The second return is false
// when the value is empty or not a boolean.
func ParseBool(s string) (bool, bool) {
	if s == "" {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return v, true
}

// ParsePagination reads limit/offset from the query string and clamps them
func ParsePagination(c *gin.Context) (limit, offset int) {
	limit = ParseInt(c.Query("limit"), DefaultPageLimit)
	offset = ParseInt(c.Query("offset"), 0)
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

