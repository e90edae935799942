package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/database"
	"github.com/savagetongue/mess-connect0209/entity"
	"github.com/savagetongue/mess-connect0209/models"
)

var june = time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) PaymentOption {
	return WithClock(func() time.Time { return t })
}

func verifyRequest(orderID, paymentID string, amount int64, payer PayerContext) VerifyRequest {
	return VerifyRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: SignPayment(testKeySecret, orderID, paymentID),
		Amount:    amount,
		Payer:     payer,
	}
}

func TestPaymentFlow_StudentEndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.gateway.fixedID = "order_abc"
	env.addStudent(t, "s1", models.StatusApproved)
	payer := PayerContext{StudentID: "s1"}

	order, err := env.payments.CreateOrder(ctx, 300000, payer)
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.OrderID)
	assert.Equal(t, testKeyID, order.KeyID)
	assert.Equal(t, "INR", order.Currency)
	assert.LessOrEqual(t, len(order.Receipt), 40)

	res, err := env.payments.Verify(ctx, verifyRequest("order_abc", "pay_1", 300000, payer))
	require.NoError(t, err)
	require.NotNil(t, res.Payment)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "s1", res.Payment.UserID)
	assert.Equal(t, "2024-06", res.Payment.Month)
	assert.Equal(t, models.MethodRazorpay, res.Payment.Method)
	assert.Equal(t, models.PaymentStatusPaid, res.Payment.Status)
	assert.Equal(t, LedgerID("order_abc", "pay_1"), res.Payment.ID)

	payments, err := env.stores.Payments.List(ctx)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	stored, status, err := env.payments.OrderStatus(ctx, "order_abc")
	require.NoError(t, err)
	assert.Equal(t, "paid", status)
	assert.Equal(t, "pay_1", stored.PaymentID)

	_, err = env.payments.CreateOrder(ctx, 300000, payer)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	m := env.payments.Monitor().GetMetrics()
	assert.Equal(t, int64(1), m.OrdersCreated)
	assert.Equal(t, int64(1), m.SuccessfulPayments)
}

func TestVerify_RepeatedCallbackIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)
	payer := PayerContext{StudentID: "s1"}

	order, err := env.payments.CreateOrder(ctx, 300000, payer)
	require.NoError(t, err)
	req := verifyRequest(order.OrderID, "pay_1", 300000, payer)

	first, err := env.payments.Verify(ctx, req)
	require.NoError(t, err)
	second, err := env.payments.Verify(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, first.Payment.CreatedAt, second.Payment.CreatedAt)

	payments, err := env.stores.Payments.List(ctx)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	assert.Equal(t, int64(1), env.payments.Monitor().GetMetrics().DuplicateCallbacks)
}

func TestVerify_ConcurrentCallbacksWriteOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)
	payer := PayerContext{StudentID: "s1"}

	order, err := env.payments.CreateOrder(ctx, 300000, payer)
	require.NoError(t, err)
	req := verifyRequest(order.OrderID, "pay_1", 300000, payer)

	const callers = 16
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.payments.Verify(ctx, req)
			errs[i] = err
			if err == nil {
				ids[i] = res.Payment.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, LedgerID(order.OrderID, "pay_1"), ids[i])
	}
	payments, err := env.stores.Payments.List(ctx)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestVerify_TwoPaymentsSamePeriodOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)
	payer := PayerContext{StudentID: "s1"}

	o1, err := env.payments.CreateOrder(ctx, 300000, payer)
	require.NoError(t, err)
	o2, err := env.payments.CreateOrder(ctx, 300000, payer)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, o := range []*OrderResult{o1, o2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.payments.Verify(ctx, verifyRequest(o.OrderID, "pay_"+o.OrderID, 300000, payer))
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, apperrors.ErrConflict)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	payments, err := env.stores.Payments.List(ctx)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestVerify_Rejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)
	env.addStudent(t, "s2", models.StatusApproved)
	payer := PayerContext{StudentID: "s1"}

	order, err := env.payments.CreateOrder(ctx, 300000, payer)
	require.NoError(t, err)

	tampered := verifyRequest(order.OrderID, "pay_1", 300000, payer)
	tampered.Signature = SignPayment("wrong", order.OrderID, "pay_1")

	tests := []struct {
		name string
		req  VerifyRequest
		kind apperrors.Kind
	}{
		{"bad signature", tampered, apperrors.KindSignatureInvalid},
		{"missing ids", VerifyRequest{Amount: 300000, Payer: payer}, apperrors.KindValidation},
		{"zero amount", verifyRequest(order.OrderID, "pay_1", 0, payer), apperrors.KindValidation},
		{"amount differs from order", verifyRequest(order.OrderID, "pay_1", 100, payer), apperrors.KindValidation},
		{"payer differs from order", verifyRequest(order.OrderID, "pay_1", 300000, PayerContext{StudentID: "s2"}), apperrors.KindValidation},
		{"unknown student", verifyRequest("order_other", "pay_1", 300000, PayerContext{StudentID: "ghost"}), apperrors.KindNotFound},
		{"no payer", verifyRequest("order_other", "pay_1", 300000, PayerContext{}), apperrors.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.payments.Verify(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}

	payments, err := env.stores.Payments.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)
	claims, err := env.stores.PeriodClaims.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestVerify_GuestPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	guest := PayerContext{GuestName: "Visitor", GuestPhone: "9000000000"}

	order, err := env.payments.CreateOrder(ctx, 15000, guest)
	require.NoError(t, err)

	res, err := env.payments.Verify(ctx, verifyRequest(order.OrderID, "pay_g", 15000, guest))
	require.NoError(t, err)
	require.NotNil(t, res.GuestPayment)
	assert.Nil(t, res.Payment)
	assert.Equal(t, "Visitor", res.GuestPayment.Name)

	again, err := env.payments.Verify(ctx, verifyRequest(order.OrderID, "pay_g", 15000, guest))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	guests, err := env.stores.GuestPayments.List(ctx)
	require.NoError(t, err)
	assert.Len(t, guests, 1)
}

func TestVerify_UnknownOrderIsCheckedWithGateway(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)
	payer := PayerContext{StudentID: "s1"}
	env.gateway.setOrder(RazorpayOrder{ID: "order_paid", Amount: 300000, Status: "paid",
		Notes: OrderNotes{"student_id": "s1", "period": "2024-06"}})
	env.gateway.setOrder(RazorpayOrder{ID: "order_open", Amount: 300000, Status: "attempted"})
	env.gateway.setOrder(RazorpayOrder{ID: "order_may", Amount: 300000, Status: "paid",
		Notes: OrderNotes{"student_id": "s1", "period": "2024-05"}})
	env.gateway.setOrder(RazorpayOrder{ID: "order_s2", Amount: 300000, Status: "paid",
		Notes: OrderNotes{"student_id": "s2"}})

	tests := []struct {
		name    string
		orderID string
		amount  int64
	}{
		{"amount differs from gateway order", "order_paid", 1},
		{"order not paid at gateway", "order_open", 300000},
		{"order from another period", "order_may", 300000},
		{"order for another student", "order_s2", 300000},
		{"order unknown to gateway", "order_nowhere", 300000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.payments.Verify(ctx, verifyRequest(tt.orderID, "pay_"+tt.orderID, tt.amount, payer))
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}
	payments, err := env.stores.Payments.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)

	res, err := env.payments.Verify(ctx, verifyRequest("order_paid", "pay_1", 300000, payer))
	require.NoError(t, err)
	assert.Equal(t, "order_paid", res.Payment.OrderID)
	assert.Equal(t, int64(300000), res.Payment.Amount)
}

func TestVerify_ReplayAfterWipeIsCheckedWithGateway(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.gateway.fixedID = "order_abc"
	env.addStudent(t, "s1", models.StatusApproved)
	payer := PayerContext{StudentID: "s1"}

	_, err := env.payments.CreateOrder(ctx, 300000, payer)
	require.NoError(t, err)
	_, err = env.payments.Verify(ctx, verifyRequest("order_abc", "pay_1", 300000, payer))
	require.NoError(t, err)
	env.gateway.markPaid("order_abc")

	for _, w := range []interface {
		Wipe(context.Context) (entity.BulkResult, error)
	}{env.stores.Orders, env.stores.Payments, env.stores.PeriodClaims, env.stores.Verifications} {
		_, err := w.Wipe(ctx)
		require.NoError(t, err)
	}

	_, err = env.payments.Verify(ctx, verifyRequest("order_abc", "pay_1", 1, payer))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	payments, err := env.stores.Payments.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestVerify_OnePairOneLedgerEntryAcrossPayers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)
	env.gateway.setOrder(RazorpayOrder{ID: "order_x", Amount: 100, Status: "paid"})
	guest := PayerContext{GuestName: "G", GuestPhone: "9000000000"}

	_, err := env.payments.Verify(ctx, verifyRequest("order_x", "pay_x", 100, guest))
	require.NoError(t, err)

	_, err = env.payments.Verify(ctx, verifyRequest("order_x", "pay_x", 100, PayerContext{StudentID: "s1"}))
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	again, err := env.payments.Verify(ctx, verifyRequest("order_x", "pay_x", 100, guest))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)

	payments, err := env.stores.Payments.List(ctx)
	require.NoError(t, err)
	guests, err := env.stores.GuestPayments.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, len(payments)+len(guests))
}

func TestVerify_ConcurrentPayersRecordOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)
	env.gateway.setOrder(RazorpayOrder{ID: "order_x", Amount: 100, Status: "paid"})
	payers := []PayerContext{
		{GuestName: "G", GuestPhone: "9000000000"},
		{StudentID: "s1"},
		{GuestName: "H", GuestPhone: "9111111111"},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(payers)*4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.payments.Verify(ctx, verifyRequest("order_x", "pay_x", 100, payers[i%len(payers)]))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, apperrors.ErrConflict)
		}
	}
	payments, err := env.stores.Payments.List(ctx)
	require.NoError(t, err)
	guests, err := env.stores.GuestPayments.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, len(payments)+len(guests))
}

func TestMarkAsPaid_ConcurrentCallsRecordOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)

	const callers = 12
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.payments.MarkAsPaid(ctx, "s1", 300000)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	}
	assert.Equal(t, 1, ok)

	payments, err := env.payments.PaymentsFor(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, models.MethodCash, payments[0].Method)
}

func TestMarkAsPaid_NextPeriodIsSeparate(t *testing.T) {
	ctx := context.Background()
	now := june
	env := newTestEnv(t, WithClock(func() time.Time { return now }))
	env.addStudent(t, "s1", models.StatusApproved)

	_, err := env.payments.MarkAsPaid(ctx, "s1", 300000)
	require.NoError(t, err)
	_, err = env.payments.MarkAsPaid(ctx, "s1", 300000)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	now = now.AddDate(0, 1, 0)
	p, err := env.payments.MarkAsPaid(ctx, "s1", 300000)
	require.NoError(t, err)
	assert.Equal(t, "2024-07", p.Month)
}

func TestMarkAsPaid_Validation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.payments.MarkAsPaid(context.Background(), "s1", 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = env.payments.MarkAsPaid(context.Background(), "", 100)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = env.payments.MarkAsPaid(context.Background(), "ghost", 100)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// failingListing fails inserts of one kind while fail is set.
type failingListing struct {
	database.Listing
	kind string
	fail bool
}

func (f *failingListing) InsertListed(ctx context.Context, kind, id string, data []byte, index string) error {
	if f.fail && kind == f.kind {
		return errors.New("disk full")
	}
	return f.Listing.InsertListed(ctx, kind, id, data, index)
}

func TestMarkAsPaid_FailedWriteReleasesPeriod(t *testing.T) {
	ctx := context.Background()
	backend := database.NewMemoryBackend()
	listing := &failingListing{Listing: backend.Listing, kind: models.PaymentDescriptor.TypeName, fail: true}
	backend.Listing = listing
	env := newTestEnvWith(t, backend, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)

	_, err := env.payments.MarkAsPaid(ctx, "s1", 300000)
	require.Error(t, err)
	exists, err := env.stores.PeriodClaims.Exists(ctx, models.PeriodClaimID("s1", "2024-06"))
	require.NoError(t, err)
	assert.False(t, exists)

	listing.fail = false
	_, err = env.payments.MarkAsPaid(ctx, "s1", 300000)
	assert.NoError(t, err)
}

func TestVerify_FailedWriteReleasesVerification(t *testing.T) {
	ctx := context.Background()
	backend := database.NewMemoryBackend()
	listing := &failingListing{Listing: backend.Listing, kind: models.GuestPaymentDescriptor.TypeName, fail: true}
	backend.Listing = listing
	env := newTestEnvWith(t, backend, fixedClock(june))
	env.gateway.setOrder(RazorpayOrder{ID: "order_x", Amount: 100, Status: "paid"})
	guest := PayerContext{GuestName: "G", GuestPhone: "9000000000"}

	_, err := env.payments.Verify(ctx, verifyRequest("order_x", "pay_x", 100, guest))
	require.Error(t, err)
	exists, err := env.stores.Verifications.Exists(ctx, LedgerID("order_x", "pay_x"))
	require.NoError(t, err)
	assert.False(t, exists)

	listing.fail = false
	env.addStudent(t, "s1", models.StatusApproved)
	res, err := env.payments.Verify(ctx, verifyRequest("order_x", "pay_x", 100, PayerContext{StudentID: "s1"}))
	require.NoError(t, err)
	assert.NotNil(t, res.Payment)
}

func TestDeletePayment_FreesPeriod(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)

	p, err := env.payments.MarkAsPaid(ctx, "s1", 300000)
	require.NoError(t, err)
	require.NoError(t, env.payments.DeletePayment(ctx, p.ID))

	_, err = env.payments.MarkAsPaid(ctx, "s1", 300000)
	assert.NoError(t, err)
	assert.ErrorIs(t, env.payments.DeletePayment(ctx, "missing"), apperrors.ErrNotFound)
}

func TestCreateOrder_GatewayFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)
	env.gateway.failNext(1, 400, `{"error":{"description":"Authentication failed"}}`)

	_, err := env.payments.CreateOrder(ctx, 300000, PayerContext{StudentID: "s1"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindGateway, apperrors.KindOf(err))

	orders, err := env.stores.Orders.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, int64(1), env.payments.Monitor().GetMetrics().GatewayFailures)
}

func TestCreateOrder_RefusesPaidPeriodWithoutCallingGateway(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, fixedClock(june))
	env.addStudent(t, "s1", models.StatusApproved)
	_, err := env.payments.MarkAsPaid(ctx, "s1", 300000)
	require.NoError(t, err)

	_, err = env.payments.CreateOrder(ctx, 300000, PayerContext{StudentID: "s1"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 0, env.gateway.hitCount())
}

func TestMonthlyRevenueAndFinancials(t *testing.T) {
	ctx := context.Background()
	now := june
	env := newTestEnv(t, WithClock(func() time.Time { return now }))
	env.addStudent(t, "s1", models.StatusApproved)
	env.addStudent(t, "s2", models.StatusApproved)

	_, err := env.payments.MarkAsPaid(ctx, "s1", 300000)
	require.NoError(t, err)
	guest := PayerContext{GuestName: "Visitor", GuestPhone: "9000000000"}
	order, err := env.payments.CreateOrder(ctx, 15000, guest)
	require.NoError(t, err)
	_, err = env.payments.Verify(ctx, verifyRequest(order.OrderID, "pay_g", 15000, guest))
	require.NoError(t, err)

	now = now.AddDate(0, 1, 0)
	_, err = env.payments.MarkAsPaid(ctx, "s2", 250000)
	require.NoError(t, err)

	revenue, err := env.payments.MonthlyRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), revenue)

	now = june
	revenue, err = env.payments.MonthlyRevenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(315000), revenue)

	f, err := env.payments.Financials(ctx)
	require.NoError(t, err)
	assert.Len(t, f.Students, 2)
	assert.Len(t, f.Payments, 2)
	assert.Len(t, f.GuestPayments, 1)
}

func TestLedgerIDIsDeterministic(t *testing.T) {
	assert.Equal(t, LedgerID("order_abc", "pay_1"), LedgerID("order_abc", "pay_1"))
	assert.NotEqual(t, LedgerID("order_abc", "pay_1"), LedgerID("order_abc", "pay_2"))
	assert.NotEqual(t, LedgerID("order_a", "bc|pay"), LedgerID("order_abc", "pay_1"))
}
