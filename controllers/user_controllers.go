package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/savagetongue/mess-connect0209/middlewares"
	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/services"
	"github.com/savagetongue/mess-connect0209/utils"
)

type UserController struct {
	Users *services.UserService
}

func NewUserController(users *services.UserService) *UserController {
	return &UserController{Users: users}
}

// Register creates a student account awaiting approval.
func (uc *UserController) Register(c *gin.Context) {
	var req services.RegisterInput
	if !bindJSON(c, &req) {
		return
	}

	user, err := uc.Users.Register(c.Request.Context(), req)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Registration successful, awaiting approval", user)
}

// Login returns a JWT, or only the account status for students who are not
// approved yet.
func (uc *UserController) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &input) {
		return
	}

	res, err := uc.Users.Login(c.Request.Context(), input.Email, input.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	if res.Token == "" {
		utils.RespondJSON(c, http.StatusOK, "Account is "+res.Status, gin.H{"status": res.Status})
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Login successful", res)
}

// Logout revokes the caller's token until it expires.
func (uc *UserController) Logout(c *gin.Context) {
	token := c.GetString(middlewares.ContextToken)
	expiresAt := time.Time{}
	if claims, err := utils.ParseToken(token); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	utils.BlacklistToken(token, expiresAt)
	utils.RespondJSON(c, http.StatusOK, "Logged out", nil)
}

func (uc *UserController) GetProfile(c *gin.Context) {
	userID, _ := middlewares.CurrentUser(c)
	user, err := uc.Users.Get(c.Request.Context(), userID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Profile", user.View())
}

func (uc *UserController) ListStudents(c *gin.Context) {
	students, err := uc.Users.Students(c.Request.Context())
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Students", gin.H{"students": students})
}

func (uc *UserController) ApproveStudent(c *gin.Context) {
	uc.setStatus(c, models.StatusApproved)
}

func (uc *UserController) RejectStudent(c *gin.Context) {
	uc.setStatus(c, models.StatusRejected)
}

func (uc *UserController) setStatus(c *gin.Context, status string) {
	user, err := uc.Users.SetStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.InfoLogger.Printf("Student %s is now %s", user.ID, status)
	utils.RespondJSON(c, http.StatusOK, "Student "+status, user)
}

func (uc *UserController) DeleteStudent(c *gin.Context) {
	if err := uc.Users.DeleteStudent(c.Request.Context(), c.Param("id")); err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Student deleted", gin.H{"id": c.Param("id")})
}
