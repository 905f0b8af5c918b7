package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pre-enrollment-api/internal/models"
	"github.com/noah-isme/pre-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
	"github.com/noah-isme/pre-enrollment-api/pkg/response"
)

// AdminHandler groups the staff panel endpoints: dashboard stats, the audit
// trail, reset attempt counters and portal settings.
type AdminHandler struct {
	stats   *service.StatsService
	logs    *service.ActionLogService
	resets  *service.PasswordResetService
	configs *service.ConfigService
	metrics *service.MetricsService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(stats *service.StatsService, logs *service.ActionLogService, resets *service.PasswordResetService, configs *service.ConfigService, metrics *service.MetricsService) *AdminHandler {
	return &AdminHandler{stats: stats, logs: logs, resets: resets, configs: configs, metrics: metrics}
}

// Stats godoc
// @Summary Dashboard counters
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, cached, err := h.stats.Dashboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordCacheOperation(cached)
	response.JSON(c, http.StatusOK, stats, nil, map[string]interface{}{"cached": cached})
}

// ActionLogs godoc
// @Summary List audit entries
// @Tags Admin
// @Produce json
// @Param action query string false "Filter by action kind"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/action-logs [get]
func (h *AdminHandler) ActionLogs(c *gin.Context) {
	var filter models.ActionLogFilter
	filter.Action = c.Query("action")
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	logs, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// ResetAttempts godoc
// @Summary List password reset attempt counters
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/password-reset-attempts [get]
func (h *AdminHandler) ResetAttempts(c *gin.Context) {
	attempts, err := h.resets.ListAttempts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempts, nil)
}

// GetConfig godoc
// @Summary Read portal settings
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/config [get]
func (h *AdminHandler) GetConfig(c *gin.Context) {
	values, err := h.configs.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, values, nil)
}

// UpdateConfig godoc
// @Summary Update portal settings
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Key/value settings"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/config [put]
func (h *AdminHandler) UpdateConfig(c *gin.Context) {
	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.configs.Update(c.Request.Context(), claims.UserID, values); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": len(values)}, nil)
}

// PublicConfig godoc
// @Summary Read the public portal settings
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /config [get]
func (h *AdminHandler) PublicConfig(c *gin.Context) {
	values, err := h.configs.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	public := map[string]string{}
	for _, key := range []string{
		models.ConfigSuccessMessage,
		models.ConfigWhatsappMessage,
		models.ConfigSchedulingStartDate,
		models.ConfigSchedulingEndDate,
	} {
		if v, ok := values[key]; ok {
			public[key] = v
		}
	}
	response.JSON(c, http.StatusOK, public, nil)
}
