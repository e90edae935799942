package models

import "github.com/savagetongue/mess-connect0209/entity"

// Notification is addressed to one student.
type Notification struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"createdAt"`
}

func (n Notification) EntityID() string { return n.ID }

var NotificationDescriptor = entity.Descriptor[Notification]{
	TypeName:  "notification",
	IndexName: "notifications",
}
