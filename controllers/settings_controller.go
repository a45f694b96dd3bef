package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forumkit/forumkit/services"
	"github.com/forumkit/forumkit/utils"
)

// SettingsController exposes the board-wide settings store to admins.
type SettingsController struct {
	settings *services.SettingsService
}

// NewSettingsController wires the settings endpoints.
func NewSettingsController(settings *services.SettingsService) *SettingsController {
	return &SettingsController{settings: settings}
}

// Get returns every setting decoded by its value type.
func (s *SettingsController) Get(ctx *gin.Context) {
	dict, err := s.settings.AsDict()
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, dict)
}

// Update writes a batch of settings. Unknown keys reject the whole batch.
func (s *SettingsController) Update(ctx *gin.Context) {
	var values map[string]interface{}
	if err := ctx.ShouldBindJSON(&values); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40002, "invalid request body")
		return
	}
	if err := s.settings.Update(values); err != nil {
		writeError(ctx, err)
		return
	}
	dict, err := s.settings.AsDict()
	if err != nil {
		writeError(ctx, err)
		return
	}
	utils.Success(ctx, dict)
}
