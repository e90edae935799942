package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/utils"
)

const (
	AdminEmail   = "admin@messconnect.com"
	ManagerEmail = "manager@messconnect.com"
)

// ErrInvalidCredentials is returned by Login for a wrong email or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

type RegisterInput struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required,min=10"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginResult carries a token for active accounts. Students awaiting
// approval, or rejected, get only their Status.
type LoginResult struct {
	User   *models.UserView `json:"user,omitempty"`
	Token  string           `json:"token,omitempty"`
	Status string           `json:"status"`
}

type UserService struct {
	stores     *Stores
	bcryptCost int
}

func NewUserService(stores *Stores) *UserService {
	return &UserService{stores: stores, bcryptCost: bcrypt.DefaultCost}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a pending student account keyed by email.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.UserView, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.Validation("invalid email address")
	}
	if len(strings.TrimSpace(in.Name)) < 2 {
		return nil, apperrors.Validation("name must be at least 2 characters")
	}
	if len(in.Password) < 6 {
		return nil, apperrors.Validation("password must be at least 6 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user, err := s.stores.Users.Create(ctx, models.User{
		ID:           email,
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hashed),
		Role:         models.RoleStudent,
		Status:       models.StatusPending,
	})
	if errors.Is(err, apperrors.ErrConflict) {
		return nil, apperrors.Conflict("user with this email already exists")
	}
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.Printf("New student registered: %s", user.ID)
	view := user.View()
	return &view, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.stores.Users.Get(ctx, normalizeEmail(email))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.Role == models.RoleStudent && user.Status != models.StatusApproved {
		return &LoginResult{Status: user.Status}, nil
	}

	token, err := utils.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	view := user.View()
	return &LoginResult{User: &view, Token: token, Status: user.Status}, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.stores.Users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Students lists student accounts without credentials.
func (s *UserService) Students(ctx context.Context) ([]models.UserView, error) {
	users, err := s.stores.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserView, 0)
	for _, u := range users {
		if u.Role == models.RoleStudent {
			out = append(out, u.View())
		}
	}
	return out, nil
}

// SetStatus approves or rejects a student.
func (s *UserService) SetStatus(ctx context.Context, id, status string) (*models.UserView, error) {
	if status != models.StatusApproved && status != models.StatusRejected && status != models.StatusPending {
		return nil, apperrors.Validation("unknown status %q", status)
	}
	user, err := s.stores.Users.Mutate(ctx, id, func(u *models.User) error {
		if u.Role != models.RoleStudent {
			return apperrors.Validation("%s is not a student", u.ID)
		}
		u.Status = status
		return nil
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("student not found")
	}
	if err != nil {
		return nil, err
	}
	view := user.View()
	return &view, nil
}

func (s *UserService) DeleteStudent(ctx context.Context, id string) error {
	user, err := s.stores.Users.Get(ctx, id)
	if err == nil && user.Role != models.RoleStudent {
		return apperrors.Validation("%s is not a student", id)
	}
	deleted, err := s.stores.Users.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.NotFound("student not found")
	}
	return nil
}

// SeedAccounts creates the admin and manager accounts if they are missing.
func (s *UserService) SeedAccounts(ctx context.Context, password string) error {
	seeds := []models.User{
		{ID: AdminEmail, Name: "Admin", Phone: "0000000000", Role: models.RoleAdmin, Status: models.StatusApproved},
		{ID: ManagerEmail, Name: "Manager", Phone: "1111111111", Role: models.RoleManager, Status: models.StatusApproved},
	}
	for _, u := range seeds {
		exists, err := s.stores.Users.Exists(ctx, u.ID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
		if err != nil {
			return err
		}
		u.PasswordHash = string(hashed)
		if _, err := s.stores.Users.GetOrCreate(ctx, u); err != nil {
			return err
		}
		utils.InfoLogger.Printf("Seeded %s account %s", u.Role, u.ID)
	}
	return nil
}
