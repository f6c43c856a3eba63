package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
)

type updateReminderSettingsRequest struct {
	IsActive              *bool   `json:"is_active"`
	DelayMinutesFirst     *int    `json:"delay_minutes_first"`
	DelayMinutesSecond    *int    `json:"delay_minutes_second"`
	TemplateFirstID       *string `json:"template_first_id"`
	TemplateSecondID      *string `json:"template_second_id"`
	SecondReminderEnabled *bool   `json:"second_reminder_enabled"`
}

type createReminderTemplateRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	TextContent string `json:"text_content"`
	ImageURL    string `json:"image_url"`
}

func (s *Server) GetReminderSettings(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.reminderSvc.GetSettings(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateReminderSettings(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateReminderSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reminderSvc.UpdateSettings(c.Request.Context(), tenantID, reminderdomain.UpdateSettingsRequest{
		IsActive:              req.IsActive,
		DelayMinutesFirst:     req.DelayMinutesFirst,
		DelayMinutesSecond:    req.DelayMinutesSecond,
		TemplateFirstID:       trimmedPtr(req.TemplateFirstID),
		TemplateSecondID:      trimmedPtr(req.TemplateSecondID),
		SecondReminderEnabled: req.SecondReminderEnabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReminderTemplates(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.reminderSvc.ListTemplates(c.Request.Context(), tenantID, strings.TrimSpace(c.Query("type")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateReminderTemplate(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createReminderTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reminderSvc.CreateTemplate(c.Request.Context(), tenantID, reminderdomain.CreateTemplateRequest{
		Name:        strings.TrimSpace(req.Name),
		Type:        strings.TrimSpace(req.Type),
		TextContent: req.TextContent,
		ImageURL:    strings.TrimSpace(req.ImageURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// DeleteReminderTemplate soft-deletes the template; carts already reminded keep their history.
func (s *Server) DeleteReminderTemplate(c *gin.Context) {
	tenantID, ok := tenantIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.reminderSvc.DeactivateTemplate(c.Request.Context(), tenantID, strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
