package models

import "github.com/savagetongue/mess-connect0209/entity"

const (
	RoleStudent = "student"
	RoleManager = "manager"
	RoleAdmin   = "admin"

	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// User is keyed by email address.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	PasswordHash string `json:"passwordHash"`
	Role         string `json:"role"`
	Status       string `json:"status"`
}

func (u User) EntityID() string { return u.ID }

// UserView is a User without credentials, safe to send to clients.
type UserView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (u User) View() UserView {
	return UserView{ID: u.ID, Name: u.Name, Phone: u.Phone, Role: u.Role, Status: u.Status}
}

var UserDescriptor = entity.Descriptor[User]{
	TypeName:  "user",
	IndexName: "users",
	Initial:   User{Role: RoleStudent, Status: StatusPending},
}
