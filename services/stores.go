package services

import (
	"github.com/savagetongue/mess-connect0209/database"
	"github.com/savagetongue/mess-connect0209/entity"
	"github.com/savagetongue/mess-connect0209/models"
)

// Stores holds one indexed entity store per entity type, all sharing a backend.
type Stores struct {
	Users         *entity.Store[models.User]
	Complaints    *entity.Store[models.Complaint]
	Suggestions   *entity.Store[models.Suggestion]
	Menu          *entity.Store[models.WeeklyMenu]
	Payments      *entity.Store[models.Payment]
	GuestPayments *entity.Store[models.GuestPayment]
	Notes         *entity.Store[models.Note]
	Settings      *entity.Store[models.Setting]
	Notifications *entity.Store[models.Notification]
	Orders        *entity.Store[models.PaymentOrder]
	PeriodClaims  *entity.Store[models.PaymentPeriod]
	Verifications *entity.Store[models.PaymentVerification]
}

func NewStores(backend database.Backend) *Stores {
	return &Stores{
		Users:         entity.MustNew(models.UserDescriptor, backend),
		Complaints:    entity.MustNew(models.ComplaintDescriptor, backend),
		Suggestions:   entity.MustNew(models.SuggestionDescriptor, backend),
		Menu:          entity.MustNew(models.MenuDescriptor, backend),
		Payments:      entity.MustNew(models.PaymentDescriptor, backend),
		GuestPayments: entity.MustNew(models.GuestPaymentDescriptor, backend),
		Notes:         entity.MustNew(models.NoteDescriptor, backend),
		Settings:      entity.MustNew(models.SettingDescriptor, backend),
		Notifications: entity.MustNew(models.NotificationDescriptor, backend),
		Orders:        entity.MustNew(models.PaymentOrderDescriptor, backend),
		PeriodClaims:  entity.MustNew(models.PaymentPeriodDescriptor, backend),
		Verifications: entity.MustNew(models.PaymentVerificationDescriptor, backend),
	}
}
