package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/savagetongue/mess-connect0209/services"
	"github.com/savagetongue/mess-connect0209/utils"
)

type AdminController struct {
	Admin    *services.AdminService
	Payments *services.PaymentService
}

func NewAdminController(admin *services.AdminService, payments *services.PaymentService) *AdminController {
	return &AdminController{Admin: admin, Payments: payments}
}

// GetDashboardStats returns student counts and this month's revenue.
func (ac *AdminController) GetDashboardStats(c *gin.Context) {
	stats, err := ac.Admin.Stats(c.Request.Context())
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Dashboard stats", stats)
}

// GetPaymentMetrics returns the ledger counters since startup.
func (ac *AdminController) GetPaymentMetrics(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "Payment metrics", ac.Payments.Monitor().GetMetrics())
}

// ClearAllData wipes every entity type and restores the seed accounts. The
// per-type report is returned even when some deletes failed.
func (ac *AdminController) ClearAllData(c *gin.Context) {
	report, err := ac.Admin.ClearAllData(c.Request.Context())
	if err != nil {
		utils.ErrorLogger.Errorf("Clear all data incomplete: %v", err)
		c.JSON(http.StatusInternalServerError, utils.JSONResponse{
			Status:  false,
			Message: "some data could not be cleared",
			Kind:    "store_inconsistency",
			Data:    report,
		})
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All data cleared", report)
}
