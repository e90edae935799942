package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/models"
	"github.com/savagetongue/mess-connect0209/utils"
)

// PeriodLayout formats a billing period, e.g. 2024-06.
const PeriodLayout = "2006-01"

// ledgerNamespace seeds the deterministic ids of gateway-verified payments.
var ledgerNamespace = uuid.MustParse("5b0b7f0e-5c2a-4f43-9a53-6d2f4c8e1a10")

// Gateway is the payment provider as the ledger sees it.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*RazorpayOrder, error)
	FetchOrder(ctx context.Context, orderID string) (*RazorpayOrder, error)
	CheckOrderStatus(ctx context.Context, orderID string) (string, error)
	VerifySignature(orderID, paymentID, signature string) bool
	Currency() string
	KeyID() string
}

// PayerContext identifies who pays: a registered student, or a guest by
// name and phone.
type PayerContext struct {
	StudentID  string `json:"studentId,omitempty"`
	GuestName  string `json:"name,omitempty"`
	GuestPhone string `json:"phone,omitempty"`
}

func (p PayerContext) key() string {
	if p.StudentID != "" {
		return "student:" + p.StudentID
	}
	return "guest:" + p.GuestName + ":" + p.GuestPhone
}

// OrderResult is what the checkout client needs to open the gateway.
type OrderResult struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	KeyID    string `json:"keyId"`
}

// VerifyRequest is the checkout callback payload.
type VerifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
	Amount    int64
	Payer     PayerContext
}

// VerifyResult holds exactly one of Payment or GuestPayment. Duplicate is set
// when the ledger entry already existed from an earlier callback.
type VerifyResult struct {
	Payment      *models.Payment      `json:"payment,omitempty"`
	GuestPayment *models.GuestPayment `json:"guestPayment,omitempty"`
	Duplicate    bool                 `json:"duplicate"`
}

// Financials is the manager's view of every ledger entry.
type Financials struct {
	Students      []models.UserView     `json:"students"`
	Payments      []models.Payment      `json:"payments"`
	GuestPayments []models.GuestPayment `json:"guestPayments"`
}

// PaymentService owns the ledger: order creation, callback verification and
// cash marking. At most one paid Payment exists per (student, period).
type PaymentService struct {
	stores   *Stores
	gateway  Gateway
	monitor  *PaymentMonitor
	now      func() time.Time
	inflight singleflight.Group
}

// PaymentOption tunes a PaymentService.
type PaymentOption func(*PaymentService)

// WithClock replaces time.Now, mainly for tests around period boundaries.
func WithClock(now func() time.Time) PaymentOption {
	return func(s *PaymentService) { s.now = now }
}

func WithMonitor(m *PaymentMonitor) PaymentOption {
	return func(s *PaymentService) { s.monitor = m }
}

func NewPaymentService(stores *Stores, gateway Gateway, opts ...PaymentOption) *PaymentService {
	s := &PaymentService{
		stores:  stores,
		gateway: gateway,
		monitor: NewPaymentMonitor(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PaymentService) Monitor() *PaymentMonitor { return s.monitor }

// CurrentPeriod is the billing period at the service's clock.
func (s *PaymentService) CurrentPeriod() string {
	return s.now().Format(PeriodLayout)
}

// CreateOrder asks the gateway for an order of amount minor units. A student
// who already paid this period is refused before the gateway is called.
func (s *PaymentService) CreateOrder(ctx context.Context, amount int64, payer PayerContext) (*OrderResult, error) {
	if amount <= 0 {
		return nil, apperrors.Validation("amount must be positive")
	}
	student, err := s.resolvePayer(ctx, payer)
	if err != nil {
		return nil, err
	}

	period := s.CurrentPeriod()
	notes := map[string]string{"app_name": "Mess Connect"}
	if student != nil {
		paid, err := s.stores.PeriodClaims.Exists(ctx, models.PeriodClaimID(student.ID, period))
		if err != nil {
			return nil, err
		}
		if paid {
			return nil, apperrors.Conflict("already paid this period")
		}
		notes["payment_type"] = "student_due"
		notes["student_id"] = student.ID
		notes["student_name"] = student.Name
		notes["period"] = period
	} else {
		notes["payment_type"] = "guest_payment"
		notes["guest_name"] = payer.GuestName
		notes["guest_phone"] = payer.GuestPhone
	}

	// One receipt per call; the gateway client resends it on retries.
	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	order, err := s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   amount,
		Currency: s.gateway.Currency(),
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		s.monitor.gatewayFailed()
		utils.ErrorLogger.WithFields(logrus.Fields{
			"receipt": receipt,
			"payer":   payer.key(),
		}).Errorf("Gateway order creation failed: %v", err)
		return nil, err
	}

	currency := order.Currency
	if currency == "" {
		currency = s.gateway.Currency()
	}
	record := models.PaymentOrder{
		ID:         order.ID,
		Amount:     amount,
		Currency:   currency,
		Receipt:    receipt,
		GuestName:  payer.GuestName,
		GuestPhone: payer.GuestPhone,
		Status:     models.OrderStatusCreated,
		CreatedAt:  s.now().UnixMilli(),
	}
	if student != nil {
		record.StudentID = student.ID
		record.GuestName, record.GuestPhone = "", ""
	}
	if _, err := s.stores.Orders.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record order %s: %w", order.ID, err)
	}
	s.monitor.orderCreated()

	return &OrderResult{
		OrderID:  order.ID,
		Amount:   amount,
		Currency: currency,
		Receipt:  receipt,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// Verify checks a checkout callback and records the payment. Repeating a
// verified callback returns the entry written the first time.
func (s *PaymentService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, apperrors.Validation("orderId, paymentId and signature are required")
	}
	if req.Amount <= 0 {
		return nil, apperrors.Validation("amount must be positive")
	}
	if !s.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		s.monitor.verified("signature_invalid")
		utils.InfoLogger.WithFields(logrus.Fields{
			"order_id":   req.OrderID,
			"payment_id": req.PaymentID,
		}).Warn("Payment signature mismatch")
		return nil, apperrors.New(apperrors.KindSignatureInvalid, "payment verification failed, signature mismatch")
	}

	key := strings.Join([]string{req.OrderID, req.PaymentID, strconv.FormatInt(req.Amount, 10), req.Payer.key()}, "|")
	v, err, _ := s.inflight.Do(key, func() (interface{}, error) {
		return s.recordVerified(ctx, req)
	})
	if err != nil {
		s.monitor.verified("rejected")
		return nil, err
	}
	res := v.(*VerifyResult)
	if res.Duplicate {
		s.monitor.verified("duplicate")
	} else {
		s.monitor.verified("recorded")
	}
	return res, nil
}

func (s *PaymentService) recordVerified(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	log := utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":   req.OrderID,
		"payment_id": req.PaymentID,
	})

	ledgerID := LedgerID(req.OrderID, req.PaymentID)
	if res, err := s.recordedEntry(ctx, ledgerID, req.Payer); res != nil || err != nil {
		return res, err
	}

	student, err := s.resolvePayer(ctx, req.Payer)
	if err != nil {
		return nil, err
	}
	if err := s.checkOrder(ctx, req); err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.claimVerification(ctx, ledgerID, req, now); err != nil {
		return nil, err
	}

	var res *VerifyResult
	if student != nil {
		payment, dup, err := s.recordStudentPayment(ctx, models.Payment{
			ID:        ledgerID,
			UserID:    student.ID,
			UserName:  student.Name,
			Amount:    req.Amount,
			Method:    models.MethodRazorpay,
			OrderID:   req.OrderID,
			PaymentID: req.PaymentID,
		})
		if err != nil {
			s.releaseVerification(ctx, ledgerID, req.Payer)
			return nil, err
		}
		res = &VerifyResult{Payment: &payment, Duplicate: dup}
	} else {
		guest, dup, err := s.recordGuestPayment(ctx, models.GuestPayment{
			ID:        ledgerID,
			Name:      req.Payer.GuestName,
			Phone:     req.Payer.GuestPhone,
			Amount:    req.Amount,
			OrderID:   req.OrderID,
			PaymentID: req.PaymentID,
			CreatedAt: now.UnixMilli(),
		})
		if err != nil {
			s.releaseVerification(ctx, ledgerID, req.Payer)
			return nil, err
		}
		res = &VerifyResult{GuestPayment: &guest, Duplicate: dup}
	}

	s.markOrderPaid(ctx, req.OrderID, req.PaymentID, ledgerID)
	log.WithField("ledger_id", ledgerID).Info("Payment verified")
	return res, nil
}

// recordedEntry looks for the ledger entry of a verified payment in both the
// student and the guest ledger. An entry owned by another payer is a Conflict.
func (s *PaymentService) recordedEntry(ctx context.Context, ledgerID string, payer PayerContext) (*VerifyResult, error) {
	payment, err := s.stores.Payments.Get(ctx, ledgerID)
	switch {
	case err == nil:
		if payment.UserID != payer.StudentID {
			return nil, apperrors.Conflict("payment already recorded for another payer")
		}
		return &VerifyResult{Payment: &payment, Duplicate: true}, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, err
	}

	guest, err := s.stores.GuestPayments.Get(ctx, ledgerID)
	switch {
	case err == nil:
		if payer.StudentID != "" || guest.Name != payer.GuestName || guest.Phone != payer.GuestPhone {
			return nil, apperrors.Conflict("payment already recorded for another payer")
		}
		return &VerifyResult{GuestPayment: &guest, Duplicate: true}, nil
	case errors.Is(err, apperrors.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// claimVerification reserves the (order, payment) pair for req's payer. The
// same payer may pass again; its ledger writes use the same id.
func (s *PaymentService) claimVerification(ctx context.Context, ledgerID string, req VerifyRequest, now time.Time) error {
	for round := 0; round < 2; round++ {
		_, err := s.stores.Verifications.Create(ctx, models.PaymentVerification{
			ID:        ledgerID,
			OrderID:   req.OrderID,
			PaymentID: req.PaymentID,
			Payer:     req.Payer.key(),
			CreatedAt: now.UnixMilli(),
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return err
		}
		holder, err := s.stores.Verifications.Get(ctx, ledgerID)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if holder.Payer == req.Payer.key() {
			return nil
		}
		return apperrors.Conflict("payment already recorded for another payer")
	}
	return apperrors.Conflict("payment is being recorded, try again")
}

// releaseVerification frees a claim whose ledger entry never got written.
func (s *PaymentService) releaseVerification(ctx context.Context, ledgerID string, payer PayerContext) {
	holder, err := s.stores.Verifications.Get(ctx, ledgerID)
	if err != nil || holder.Payer != payer.key() {
		return
	}
	if res, err := s.recordedEntry(ctx, ledgerID, payer); res != nil || err != nil {
		return
	}
	if _, err := s.stores.Verifications.Delete(ctx, ledgerID); err != nil {
		utils.ErrorLogger.WithField("ledger_id", ledgerID).Errorf("Could not release payment verification: %v", err)
	}
}

// checkOrder compares req with the order it pays. An order this service did
// not store is read back from the gateway, which must report it paid.
func (s *PaymentService) checkOrder(ctx context.Context, req VerifyRequest) error {
	order, err := s.stores.Orders.Get(ctx, req.OrderID)
	if err == nil {
		return checkOrderMatches(order, req)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	utils.InfoLogger.WithField("order_id", req.OrderID).Warn("Order not stored here, checking it with the gateway")
	remote, err := s.gateway.FetchOrder(ctx, req.OrderID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Validation("order %s is unknown to the gateway", req.OrderID)
	}
	if err != nil {
		return err
	}
	return s.checkGatewayOrder(*remote, req)
}

func (s *PaymentService) checkGatewayOrder(order RazorpayOrder, req VerifyRequest) error {
	if order.Amount != req.Amount {
		return apperrors.Validation("amount %d does not match order amount %d", req.Amount, order.Amount)
	}
	if order.Status != "paid" {
		return apperrors.Validation("order %s is %s at the gateway, not paid", order.ID, order.Status)
	}
	if student := order.Notes["student_id"]; student != "" && student != req.Payer.StudentID {
		return apperrors.Validation("payer does not match the order")
	}
	if period := order.Notes["period"]; period != "" && period != s.CurrentPeriod() {
		return apperrors.Validation("order %s was for period %s", order.ID, period)
	}
	return nil
}

func checkOrderMatches(order models.PaymentOrder, req VerifyRequest) error {
	if order.Amount != req.Amount {
		return apperrors.Validation("amount %d does not match order amount %d", req.Amount, order.Amount)
	}
	if order.StudentID != "" || req.Payer.StudentID != "" {
		if order.StudentID != req.Payer.StudentID {
			return apperrors.Validation("payer does not match the order")
		}
	} else if order.GuestName != req.Payer.GuestName || order.GuestPhone != req.Payer.GuestPhone {
		return apperrors.Validation("payer does not match the order")
	}
	if order.Status == models.OrderStatusPaid && order.PaymentID != "" && order.PaymentID != req.PaymentID {
		return apperrors.Conflict("order %s was already paid by another payment", order.ID)
	}
	return nil
}

func (s *PaymentService) markOrderPaid(ctx context.Context, orderID, paymentID, ledgerID string) {
	_, err := s.stores.Orders.Mutate(ctx, orderID, func(o *models.PaymentOrder) error {
		o.Status = models.OrderStatusPaid
		o.PaymentID = paymentID
		o.LedgerID = ledgerID
		return nil
	})
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"order_id":   orderID,
			"payment_id": paymentID,
		}).Errorf("Payment recorded but order not marked paid: %v", err)
	}
}

// MarkAsPaid records a cash payment for the student's current period.
func (s *PaymentService) MarkAsPaid(ctx context.Context, studentID string, amount int64) (*models.Payment, error) {
	if amount <= 0 {
		return nil, apperrors.Validation("amount must be positive")
	}
	if studentID == "" {
		return nil, apperrors.Validation("studentId is required")
	}
	student, err := s.resolvePayer(ctx, PayerContext{StudentID: studentID})
	if err != nil {
		return nil, err
	}
	payment, _, err := s.recordStudentPayment(ctx, models.Payment{
		ID:       uuid.NewString(),
		UserID:   student.ID,
		UserName: student.Name,
		Amount:   amount,
		Method:   models.MethodCash,
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// recordStudentPayment claims the (student, period) slot and writes the
// payment. A claim already held by p.ID is a retry of the same payment and
// is allowed through.
func (s *PaymentService) recordStudentPayment(ctx context.Context, p models.Payment) (models.Payment, bool, error) {
	now := s.now()
	p.Month = now.Format(PeriodLayout)
	p.Status = models.PaymentStatusPaid
	p.CreatedAt = now.UnixMilli()

	claimID := models.PeriodClaimID(p.UserID, p.Month)
	if err := s.claimPeriod(ctx, claimID, p.ID, now); err != nil {
		return models.Payment{}, false, err
	}

	created, err := s.stores.Payments.Create(ctx, p)
	if errors.Is(err, apperrors.ErrConflict) {
		existing, getErr := s.stores.Payments.Get(ctx, p.ID)
		if getErr != nil {
			return models.Payment{}, false, getErr
		}
		return existing, true, nil
	}
	if err != nil {
		s.releaseClaim(ctx, claimID, p.ID)
		return models.Payment{}, false, err
	}

	s.monitor.recorded(p.Method)
	return created, false, nil
}

func (s *PaymentService) claimPeriod(ctx context.Context, claimID, paymentID string, now time.Time) error {
	// Two rounds: the holder may release its claim between our create and get.
	for round := 0; round < 2; round++ {
		_, err := s.stores.PeriodClaims.Create(ctx, models.PaymentPeriod{
			ID:        claimID,
			PaymentID: paymentID,
			CreatedAt: now.UnixMilli(),
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return err
		}
		holder, err := s.stores.PeriodClaims.Get(ctx, claimID)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if holder.PaymentID == paymentID {
			return nil
		}
		return apperrors.Conflict("already paid this period")
	}
	return apperrors.Conflict("already paid this period")
}

// releaseClaim frees a period claim whose payment never got written.
func (s *PaymentService) releaseClaim(ctx context.Context, claimID, paymentID string) {
	log := utils.ErrorLogger.WithFields(logrus.Fields{"claim": claimID, "ledger_id": paymentID})
	holder, err := s.stores.PeriodClaims.Get(ctx, claimID)
	if err != nil || holder.PaymentID != paymentID {
		return
	}
	if exists, err := s.stores.Payments.Exists(ctx, paymentID); err != nil || exists {
		return
	}
	if _, err := s.stores.PeriodClaims.Delete(ctx, claimID); err != nil {
		log.Errorf("Could not release period claim: %v", err)
	}
}

func (s *PaymentService) recordGuestPayment(ctx context.Context, g models.GuestPayment) (models.GuestPayment, bool, error) {
	created, err := s.stores.GuestPayments.Create(ctx, g)
	if errors.Is(err, apperrors.ErrConflict) {
		existing, getErr := s.stores.GuestPayments.Get(ctx, g.ID)
		if getErr != nil {
			return models.GuestPayment{}, false, getErr
		}
		return existing, true, nil
	}
	if err != nil {
		return models.GuestPayment{}, false, err
	}
	s.monitor.recorded(models.MethodGuest)
	return created, false, nil
}

// resolvePayer returns the student for a student payer, nil for a guest.
func (s *PaymentService) resolvePayer(ctx context.Context, payer PayerContext) (*models.User, error) {
	if payer.StudentID != "" {
		user, err := s.stores.Users.Get(ctx, payer.StudentID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("student %s not found", payer.StudentID)
		}
		if err != nil {
			return nil, err
		}
		return &user, nil
	}
	if strings.TrimSpace(payer.GuestName) != "" && strings.TrimSpace(payer.GuestPhone) != "" {
		return nil, nil
	}
	return nil, apperrors.Validation("payer must be a student or a guest with name and phone")
}

// DeletePayment removes a ledger entry and frees its period slot.
func (s *PaymentService) DeletePayment(ctx context.Context, id string) error {
	payment, err := s.stores.Payments.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.stores.Payments.Delete(ctx, id); err != nil {
		return err
	}
	claimID := models.PeriodClaimID(payment.UserID, payment.Month)
	holder, err := s.stores.PeriodClaims.Get(ctx, claimID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if holder.PaymentID == id {
		_, err = s.stores.PeriodClaims.Delete(ctx, claimID)
	}
	return err
}

// PaymentsFor lists one student's payments.
func (s *PaymentService) PaymentsFor(ctx context.Context, userID string) ([]models.Payment, error) {
	all, err := s.stores.Payments.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Payment, 0)
	for _, p := range all {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Financials lists every student and ledger entry.
func (s *PaymentService) Financials(ctx context.Context) (*Financials, error) {
	users, err := s.stores.Users.List(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := s.stores.Payments.List(ctx)
	if err != nil {
		return nil, err
	}
	guests, err := s.stores.GuestPayments.List(ctx)
	if err != nil {
		return nil, err
	}
	f := &Financials{
		Students:      make([]models.UserView, 0),
		Payments:      payments,
		GuestPayments: guests,
	}
	for _, u := range users {
		if u.Role == models.RoleStudent {
			f.Students = append(f.Students, u.View())
		}
	}
	if f.Payments == nil {
		f.Payments = []models.Payment{}
	}
	if f.GuestPayments == nil {
		f.GuestPayments = []models.GuestPayment{}
	}
	return f, nil
}

// MonthlyRevenue sums, in minor units, every payment made in the calendar
// month of the service's clock.
func (s *PaymentService) MonthlyRevenue(ctx context.Context) (int64, error) {
	now := s.now()
	inMonth := func(ms int64) bool {
		t := time.UnixMilli(ms).In(now.Location())
		return t.Year() == now.Year() && t.Month() == now.Month()
	}

	payments, err := s.stores.Payments.List(ctx)
	if err != nil {
		return 0, err
	}
	guests, err := s.stores.GuestPayments.List(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, p := range payments {
		if p.Status == models.PaymentStatusPaid && inMonth(p.CreatedAt) {
			total += p.Amount
		}
	}
	for _, g := range guests {
		if inMonth(g.CreatedAt) {
			total += g.Amount
		}
	}
	return total, nil
}

// OrderStatus returns the stored order and, for unpaid ones, the gateway's
// view of it.
func (s *PaymentService) OrderStatus(ctx context.Context, orderID string) (*models.PaymentOrder, string, error) {
	order, err := s.stores.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, "", err
	}
	if order.Status == models.OrderStatusPaid {
		return &order, "paid", nil
	}
	status, err := s.gateway.CheckOrderStatus(ctx, orderID)
	if err != nil {
		return &order, "", err
	}
	return &order, status, nil
}

// LedgerID is the ledger entry id for a gateway payment. Retried callbacks
// for the same (order, payment) map to the same entry.
func LedgerID(orderID, paymentID string) string {
	return uuid.NewSHA1(ledgerNamespace, []byte(orderID+"|"+paymentID)).String()
}
