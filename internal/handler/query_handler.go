package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/rstamps01/rag-app-sub001/internal/pkg/errcode"
	"github.com/rstamps01/rag-app-sub001/internal/pkg/response"
	"github.com/rstamps01/rag-app-sub001/internal/service"
)

type QueryHandler struct {
	queries *service.QueryService
}

func NewQueryHandler(queries *service.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

type askRequest struct {
	Query      string `json:"query"`
	Department string `json:"department"`
}

func (h *QueryHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	rec, err := h.queries.Answer(c.Request.Context(), &service.QueryRequest{
		Query:      req.Query,
		Department: req.Department,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rec)
}

func (h *QueryHandler) Get(c *gin.Context) {
	rec, err := h.queries.GetQuery(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rec)
}

func (h *QueryHandler) List(c *gin.Context) {
	recs, err := h.queries.ListQueries(c.Request.Context(), c.Query("department"),
		queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"queries": recs})
}
