package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/services"
	"github.com/savagetongue/mess-connect0209/utils"
)

// MenuController serves the weekly menu and the mess settings.
type MenuController struct {
	Settings *services.SettingsService
}

func NewMenuController(settings *services.SettingsService) *MenuController {
	return &MenuController{Settings: settings}
}

func (mc *MenuController) GetMenu(c *gin.Context) {
	menu, err := mc.Settings.Menu(c.Request.Context())
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Weekly menu", menu)
}

func (mc *MenuController) UpdateMenu(c *gin.Context) {
	var body struct {
		Days []models.MenuDay `json:"days" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	menu, err := mc.Settings.ReplaceMenu(c.Request.Context(), body.Days)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu updated", menu)
}

func (mc *MenuController) GetSettings(c *gin.Context) {
	s, err := mc.Settings.Settings(c.Request.Context())
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Settings", s)
}

// GetFee returns the monthly fee in minor units and formatted.
func (mc *MenuController) GetFee(c *gin.Context) {
	s, err := mc.Settings.Settings(c.Request.Context())
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Monthly fee", gin.H{
		"monthlyFee": s.MonthlyFee,
		"display":    utils.FormatMinorUnits(s.MonthlyFee, "INR"),
	})
}

func (mc *MenuController) UpdateFee(c *gin.Context) {
	var body struct {
		Fee int64 `json:"fee" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	s, err := mc.Settings.UpdateFee(c.Request.Context(), body.Fee)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Fee updated", s)
}

func (mc *MenuController) UpdateRules(c *gin.Context) {
	var body struct {
		Rules string `json:"rules" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	s, err := mc.Settings.UpdateRules(c.Request.Context(), body.Rules)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Rules updated", s)
}
