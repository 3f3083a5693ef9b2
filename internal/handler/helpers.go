package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rstamps01/rag-app-sub001/internal/pkg/errcode"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
	"github.com/rstamps01/rag-app-sub001/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrValidation):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "server busy, try again later")
	case errors.Is(err, appErr.ErrEmbedderUnavailable):
		response.Error(c, errcode.ErrEmbedderUnavailable, "embedding model unavailable")
	case errors.Is(err, appErr.ErrGeneratorUnavailable):
		response.Error(c, errcode.ErrGeneratorUnavailable, "generation model unavailable")
	case errors.Is(err, appErr.ErrResourceUnavailable):
		response.Error(c, errcode.ErrIndexUnavailable, "backend unavailable")
	case errors.Is(err, appErr.ErrConfiguration):
		response.Error(c, errcode.ErrConfiguration, "configuration error")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}
