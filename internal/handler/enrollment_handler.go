package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	"github.com/noah-isme/pre-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
	"github.com/noah-isme/pre-enrollment-api/pkg/response"
)

// EnrollmentHandler exposes pre-enrollment endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	exports     *service.ExportService
	stats       *service.StatsService
	metrics     *service.MetricsService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, exports *service.ExportService, stats *service.StatsService, metrics *service.MetricsService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, exports: exports, stats: stats, metrics: metrics}
}

// Submit godoc
// @Summary Submit a pre-enrollment
// @Tags Pre-Enrollments
// @Accept json
// @Produce json
// @Param payload body service.SubmitEnrollmentRequest true "Wizard payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /pre-enrollments [post]
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SubmitEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		h.metrics.RecordSubmission("error", 0)
		response.Error(c, err)
		return
	}
	h.metrics.RecordSubmission("success", 1)
	h.stats.Invalidate(c.Request.Context())
	response.Created(c, result)
}

// Latest godoc
// @Summary Get the caller's newest submission and its siblings
// @Tags Pre-Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pre-enrollments/latest [get]
func (h *EnrollmentHandler) Latest(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.enrollments.Latest(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UpdateBasicData godoc
// @Summary Update the caller's applicant data on one submission
// @Tags Pre-Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Pre-enrollment ID"
// @Param payload body service.UpdateBasicDataRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /pre-enrollments/{id} [put]
func (h *EnrollmentHandler) UpdateBasicData(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateBasicDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.UpdateBasicData(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List pre-enrollments for review
// @Tags Pre-Enrollments
// @Produce json
// @Param status query string false "Filter by status"
// @Param classId query string false "Filter by class"
// @Param search query string false "Search name, email or token"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/pre-enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := listFilterFromQuery(c)
	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// UpdateStatus godoc
// @Summary Apply a review decision
// @Tags Pre-Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Pre-enrollment ID"
// @Param payload body service.UpdateStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/pre-enrollments/{id} [patch]
func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollments.SetStatus(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordStatusChange(string(result.Status))
	h.stats.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export the filtered listing as CSV or PDF
// @Tags Pre-Enrollments
// @Produce text/csv
// @Param status query string false "Filter by status"
// @Param classId query string false "Filter by class"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /admin/pre-enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	filter := listFilterFromQuery(c)
	file, err := h.exports.Enrollments(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func listFilterFromQuery(c *gin.Context) models.EnrollmentFilter {
	var filter models.EnrollmentFilter
	filter.ClassID = c.Query("classId")
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}
