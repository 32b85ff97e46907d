// Package handler holds the helpers shared by the HTTP handlers in its
// subpackages.
package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/httputil"
)

// ParamID parses the :name path parameter, answering 400 when it is not a
// UUID.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// Bind decodes and validates the JSON body, answering 400 on failure.
func Bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid request body", err))
		return false
	}
	return true
}

// Page reads the pagination query parameters.
func Page(c *gin.Context) model.Page {
	page, size := httputil.PageParams(c)
	return model.Page{Page: page, PageSize: size}
}

// List writes a paginated response.
func List(c *gin.Context, data interface{}, page model.Page, total int64) {
	httputil.RespondWithPagination(c, data, page.Page, page.PageSize, int(total))
}

// QueryUUID parses an optional UUID query parameter.
func QueryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid "+name, err))
		return nil, false
	}
	return &id, true
}

// QueryTime parses an optional RFC 3339 or YYYY-MM-DD query parameter.
func QueryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	httputil.RespondWithError(c, errors.BadRequest("invalid "+name, nil))
	return nil, false
}
