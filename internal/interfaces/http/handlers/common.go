// Package handlers implements the HTTP endpoints of "kgeval serve".
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/kgeval/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parsePagination reads page and page_size, both 1-based and bounded.
func parsePagination(c *gin.Context) (page, pageSize int) {
	page, pageSize = 1, defaultPageSize
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= maxPageSize {
		pageSize = v
	}
	return page, pageSize
}

func writeError(c *gin.Context, status int, code errors.ErrorCode, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: string(code), Message: msg})
}

// writeAppError maps application errors to HTTP status codes.
func writeAppError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	switch {
	case errors.IsNotFound(err):
		writeError(c, http.StatusNotFound, code, err.Error())
	case errors.IsCode(err, errors.ErrCodeValidation), errors.IsCode(err, errors.ErrCodeBadRequest):
		writeError(c, http.StatusBadRequest, code, err.Error())
	case errors.IsCode(err, errors.ErrCodeServiceUnavailable):
		writeError(c, http.StatusServiceUnavailable, code, "service unavailable")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, errors.ErrCodeInternal, "internal server error")
	}
}
