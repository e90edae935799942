package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/middlewares"
	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/services"
	"github.com/savagetongue/mess-connect0209/utils"
)

// FeedbackController handles complaints and suggestions. Students create
// and read their own; managers list all and reply.
type FeedbackController struct {
	Stores *services.Stores
}

func NewFeedbackController(stores *services.Stores) *FeedbackController {
	return &FeedbackController{Stores: stores}
}

type replyBody struct {
	Reply string `json:"reply" binding:"required"`
}

func (fc *FeedbackController) author(c *gin.Context) (models.User, bool) {
	userID, _ := middlewares.CurrentUser(c)
	user, err := fc.Stores.Users.Get(c.Request.Context(), userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("account no longer exists"))
		return user, false
	}
	if err != nil {
		utils.RespondAppError(c, err)
		return user, false
	}
	return user, true
}

// CreateComplaint accepts text and an optional image as a data URI string.
func (fc *FeedbackController) CreateComplaint(c *gin.Context) {
	var body struct {
		Text        string `json:"text" binding:"required"`
		ImageBase64 string `json:"imageBase64"`
	}
	if !bindJSON(c, &body) {
		return
	}
	if len(strings.TrimSpace(body.Text)) < 10 {
		utils.RespondAppError(c, apperrors.Validation("complaint must be at least 10 characters long"))
		return
	}
	user, ok := fc.author(c)
	if !ok {
		return
	}

	complaint, err := fc.Stores.Complaints.Create(c.Request.Context(), models.Complaint{
		ID:          uuid.NewString(),
		StudentID:   user.ID,
		StudentName: user.Name,
		Text:        strings.TrimSpace(body.Text),
		ImageBase64: body.ImageBase64,
		CreatedAt:   time.Now().UnixMilli(),
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Complaint submitted", complaint)
}

func (fc *FeedbackController) MyComplaints(c *gin.Context) {
	all, err := fc.Stores.Complaints.List(c.Request.Context())
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	userID, _ := middlewares.CurrentUser(c)
	mine := make([]models.Complaint, 0)
	for _, complaint := range all {
		if complaint.StudentID == userID {
			mine = append(mine, complaint)
		}
	}
	utils.RespondJSON(c, http.StatusOK, "Complaints", gin.H{"complaints": mine})
}

// AllComplaints pages through every complaint in submission order.
func (fc *FeedbackController) AllComplaints(c *gin.Context) {
	cursor, limit, ok := pageParams(c)
	if !ok {
		return
	}
	page, err := fc.Stores.Complaints.Page(c.Request.Context(), cursor, limit)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Complaints", gin.H{"complaints": page.Items, "next": page.Next})
}

func (fc *FeedbackController) ReplyComplaint(c *gin.Context) {
	var body replyBody
	if !bindJSON(c, &body) {
		return
	}
	if strings.TrimSpace(body.Reply) == "" {
		utils.RespondAppError(c, apperrors.Validation("reply cannot be empty"))
		return
	}
	complaint, err := fc.Stores.Complaints.Patch(c.Request.Context(), c.Param("id"), map[string]interface{}{"reply": body.Reply})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reply added successfully", complaint)
}

func (fc *FeedbackController) CreateSuggestion(c *gin.Context) {
	var body struct {
		Text string `json:"text" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	if len(strings.TrimSpace(body.Text)) < 10 {
		utils.RespondAppError(c, apperrors.Validation("suggestion must be at least 10 characters long"))
		return
	}
	user, ok := fc.author(c)
	if !ok {
		return
	}

	suggestion, err := fc.Stores.Suggestions.Create(c.Request.Context(), models.Suggestion{
		ID:          uuid.NewString(),
		StudentID:   user.ID,
		StudentName: user.Name,
		Text:        strings.TrimSpace(body.Text),
		CreatedAt:   time.Now().UnixMilli(),
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Suggestion submitted", suggestion)
}

func (fc *FeedbackController) MySuggestions(c *gin.Context) {
	all, err := fc.Stores.Suggestions.List(c.Request.Context())
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	userID, _ := middlewares.CurrentUser(c)
	mine := make([]models.Suggestion, 0)
	for _, s := range all {
		if s.StudentID == userID {
			mine = append(mine, s)
		}
	}
	utils.RespondJSON(c, http.StatusOK, "Suggestions", gin.H{"suggestions": mine})
}

func (fc *FeedbackController) AllSuggestions(c *gin.Context) {
	cursor, limit, ok := pageParams(c)
	if !ok {
		return
	}
	page, err := fc.Stores.Suggestions.Page(c.Request.Context(), cursor, limit)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Suggestions", gin.H{"suggestions": page.Items, "next": page.Next})
}

func (fc *FeedbackController) ReplySuggestion(c *gin.Context) {
	var body replyBody
	if !bindJSON(c, &body) {
		return
	}
	if strings.TrimSpace(body.Reply) == "" {
		utils.RespondAppError(c, apperrors.Validation("reply cannot be empty"))
		return
	}
	suggestion, err := fc.Stores.Suggestions.Patch(c.Request.Context(), c.Param("id"), map[string]interface{}{"reply": body.Reply})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reply added successfully", suggestion)
}
