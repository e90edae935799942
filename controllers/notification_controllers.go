package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/savagetongue/mess-connect0209/middlewares"
	"github.com/savagetongue/mess-connect0209/services"
	"github.com/savagetongue/mess-connect0209/utils"
)

type NotificationController struct {
	Notifications *services.NotificationService
}

func NewNotificationController(notifications *services.NotificationService) *NotificationController {
	return &NotificationController{Notifications: notifications}
}

type messageBody struct {
	Message string `json:"message" binding:"required"`
}

// NotifyStudent sends one student a message.
func (nc *NotificationController) NotifyStudent(c *gin.Context) {
	var body messageBody
	if !bindJSON(c, &body) {
		return
	}
	notif, err := nc.Notifications.Notify(c.Request.Context(), c.Param("id"), body.Message)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Notification sent", notif)
}

// Broadcast messages every approved student.
func (nc *NotificationController) Broadcast(c *gin.Context) {
	var body messageBody
	if !bindJSON(c, &body) {
		return
	}
	sent, err := nc.Notifications.Broadcast(c.Request.Context(), body.Message)
	if err != nil {
		if sent > 0 {
			c.Header("X-Recipients-Notified", strconv.Itoa(sent))
		}
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Broadcast sent", gin.H{"recipients": sent})
}

func (nc *NotificationController) MyNotifications(c *gin.Context) {
	userID, _ := middlewares.CurrentUser(c)
	notifs, err := nc.Notifications.For(c.Request.Context(), userID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notifications", gin.H{"notifications": notifs})
}
