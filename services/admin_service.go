package services

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/savagetongue/mess-connect0209/entity"
	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/utils"
)

// Stats is the manager dashboard. Revenue is in minor units.
type Stats struct {
	TotalStudents    int   `json:"totalStudents"`
	PendingApprovals int   `json:"pendingApprovals"`
	MonthlyRevenue   int64 `json:"monthlyRevenue"`
}

// WipeReport maps entity type to what DeleteMany did with its ids.
type WipeReport map[string]entity.BulkResult

type AdminService struct {
	stores       *Stores
	payments     *PaymentService
	users        *UserService
	seedPassword string
}

func NewAdminService(stores *Stores, payments *PaymentService, users *UserService, seedPassword string) *AdminService {
	return &AdminService{stores: stores, payments: payments, users: users, seedPassword: seedPassword}
}

func (s *AdminService) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.stores.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{}
	for _, u := range users {
		if u.Role != models.RoleStudent {
			continue
		}
		switch u.Status {
		case models.StatusApproved:
			stats.TotalStudents++
		case models.StatusPending:
			stats.PendingApprovals++
		}
	}
	if stats.MonthlyRevenue, err = s.payments.MonthlyRevenue(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

type wiper interface {
	TypeName() string
	Wipe(ctx context.Context) (entity.BulkResult, error)
}

func (s *AdminService) wipers() []wiper {
	st := s.stores
	return []wiper{
		st.Users, st.Complaints, st.Suggestions, st.Menu, st.Payments, st.GuestPayments,
		st.Notes, st.Settings, st.Notifications, st.Orders, st.PeriodClaims, st.Verifications,
	}
}

// ClearAllData wipes every entity type and then re-creates the seeded
// accounts. Types are wiped concurrently. The report covers every type even
// when some of them failed.
func (s *AdminService) ClearAllData(ctx context.Context) (WipeReport, error) {
	report := WipeReport{}
	var mu sync.Mutex
	var errs []error

	var g errgroup.Group
	for _, w := range s.wipers() {
		g.Go(func() error {
			res, err := w.Wipe(ctx)
			mu.Lock()
			defer mu.Unlock()
			report[w.TypeName()] = res
			if err != nil {
				errs = append(errs, err)
				utils.ErrorLogger.WithFields(logrus.Fields{
					"entity": w.TypeName(),
					"failed": len(res.Failed),
				}).Errorf("Clear all data left records behind: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := s.users.SeedAccounts(ctx, s.seedPassword); err != nil {
		errs = append(errs, err)
	}
	utils.InfoLogger.Println("All data cleared, seed accounts restored")
	return report, errors.Join(errs...)
}
