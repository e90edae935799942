package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/services"
	"github.com/savagetongue/mess-connect0209/utils"
)

// NoteController is the manager's to-do list.
type NoteController struct {
	Stores *services.Stores
}

func NewNoteController(stores *services.Stores) *NoteController {
	return &NoteController{Stores: stores}
}

func (nc *NoteController) GetNotes(c *gin.Context) {
	cursor, limit, ok := pageParams(c)
	if !ok {
		return
	}
	page, err := nc.Stores.Notes.Page(c.Request.Context(), cursor, limit)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notes", gin.H{"notes": page.Items, "next": page.Next})
}

func (nc *NoteController) CreateNote(c *gin.Context) {
	var body struct {
		Text string `json:"text" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		utils.RespondAppError(c, apperrors.Validation("note cannot be empty"))
		return
	}
	note, err := nc.Stores.Notes.Create(c.Request.Context(), models.Note{
		ID:        uuid.NewString(),
		Text:      strings.TrimSpace(body.Text),
		CreatedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Note created", note)
}

// UpdateNote toggles completion.
func (nc *NoteController) UpdateNote(c *gin.Context) {
	var body struct {
		Completed *bool `json:"completed" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	note, err := nc.Stores.Notes.Patch(c.Request.Context(), c.Param("id"), map[string]interface{}{"completed": *body.Completed})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Note updated", note)
}

func (nc *NoteController) DeleteNote(c *gin.Context) {
	deleted, err := nc.Stores.Notes.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if !deleted {
		utils.RespondAppError(c, apperrors.NotFound("note not found"))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Note deleted successfully", gin.H{"id": c.Param("id")})
}
