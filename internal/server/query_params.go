package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	membershipdomain "github.com/smallbiznis/orgservice/internal/membership/domain"
	"github.com/smallbiznis/orgservice/pkg/db/pagination"
)

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	parsed, err := snowflake.ParseString(raw)
	if err != nil || parsed <= 0 {
		return 0, newValidationError(name, "invalid_id", "invalid id")
	}
	return parsed, nil
}

func parsePageRequest(c *gin.Context) (membershipdomain.PageRequest, error) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		return membershipdomain.PageRequest{}, newValidationError("page_size", "invalid_page_size", "page_size must be a number")
	}
	if query.PageSize < 0 {
		return membershipdomain.PageRequest{}, newValidationError("page_size", "invalid_page_size", "page_size must not be negative")
	}
	return membershipdomain.PageRequest{
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	}, nil
}
