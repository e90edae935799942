package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/utils"
)

const broadcastWorkers = 8

type NotificationService struct {
	stores *Stores
	now    func() time.Time
}

func NewNotificationService(stores *Stores) *NotificationService {
	return &NotificationService{stores: stores, now: time.Now}
}

func validMessage(msg string) error {
	if len(strings.TrimSpace(msg)) < 10 {
		return apperrors.Validation("message must be at least 10 characters")
	}
	return nil
}

// Notify sends msg to one existing student.
func (s *NotificationService) Notify(ctx context.Context, studentID, msg string) (*models.Notification, error) {
	if err := validMessage(msg); err != nil {
		return nil, err
	}
	user, err := s.stores.Users.Get(ctx, studentID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("student not found")
	}
	if err != nil {
		return nil, err
	}
	n, err := s.create(ctx, user.ID, msg)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Broadcast sends msg to every approved student and returns how many
// notifications were written, also when some writes failed.
func (s *NotificationService) Broadcast(ctx context.Context, msg string) (int, error) {
	if err := validMessage(msg); err != nil {
		return 0, err
	}
	users, err := s.stores.Users.List(ctx)
	if err != nil {
		return 0, err
	}

	var recipients []string
	for _, u := range users {
		if u.Role == models.RoleStudent && u.Status == models.StatusApproved {
			recipients = append(recipients, u.ID)
		}
	}

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(broadcastWorkers)
	for _, id := range recipients {
		g.Go(func() error {
			if _, err := s.create(gctx, id, msg); err != nil {
				return err
			}
			sent.Add(1)
			return nil
		})
	}
	err = g.Wait()
	n := int(sent.Load())
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"sent":       n,
			"recipients": len(recipients),
		}).Errorf("Broadcast stopped early: %v", err)
		return n, err
	}
	utils.InfoLogger.Printf("Broadcast sent to %d students", n)
	return n, nil
}

func (s *NotificationService) create(ctx context.Context, userID, msg string) (models.Notification, error) {
	return s.stores.Notifications.Create(ctx, models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Message:   strings.TrimSpace(msg),
		CreatedAt: s.now().UnixMilli(),
	})
}

// For lists a user's notifications, newest first.
func (s *NotificationService) For(ctx context.Context, userID string) ([]models.Notification, error) {
	all, err := s.stores.Notifications.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].UserID == userID {
			out = append(out, all[i])
		}
	}
	return out, nil
}
