package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/kgeval/internal/domain/run"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// RunHandler serves the validation run history.
type RunHandler struct {
	repo   run.Repository
	logger logging.Logger
}

// NewRunHandler creates a RunHandler.
func NewRunHandler(repo run.Repository, log logging.Logger) *RunHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RunHandler{repo: repo, logger: log}
}

// ListRunsResponse is one page of runs.
type ListRunsResponse struct {
	Runs     []*run.Record `json:"runs"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// List handles GET /api/v1/runs?dataset=&net_name=&page=&page_size=.
func (h *RunHandler) List(c *gin.Context) {
	page, pageSize := parsePagination(c)
	runs, err := h.repo.List(c.Request.Context(), run.ListFilter{
		Dataset: c.Query("dataset"),
		NetName: c.Query("net_name"),
		Limit:   pageSize,
		Offset:  (page - 1) * pageSize,
	})
	if err != nil {
		h.logger.Error("failed to list runs", logging.Err(err))
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListRunsResponse{Runs: runs, Page: page, PageSize: pageSize})
}

// Get handles GET /api/v1/runs/:id.
func (h *RunHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		writeAppError(c, errors.New(errors.ErrCodeValidation, "run id must be a UUID").WithDetail(id))
		return
	}
	rec, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
