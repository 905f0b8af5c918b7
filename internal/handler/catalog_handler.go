package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pre-enrollment-api/internal/service"
	"github.com/noah-isme/pre-enrollment-api/pkg/response"
)

// CatalogHandler serves the public subject and plan catalogs.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Subjects godoc
// @Summary List subjects
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *CatalogHandler) Subjects(c *gin.Context) {
	subjects, err := h.catalog.Subjects(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// Plans godoc
// @Summary List plans
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /plans [get]
func (h *CatalogHandler) Plans(c *gin.Context) {
	plans, err := h.catalog.Plans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plans, nil)
}

// Plan godoc
// @Summary Get one plan
// @Tags Catalog
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} response.Envelope
// @Router /plans/{id} [get]
func (h *CatalogHandler) Plan(c *gin.Context) {
	plan, err := h.catalog.Plan(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}
