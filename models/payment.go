package models

import "github.com/savagetongue/mess-connect0209/entity"

const (
	PaymentStatusPaid = "paid"
	PaymentStatusDue  = "due"

	MethodRazorpay = "razorpay"
	MethodCash     = "cash"
	MethodGuest    = "guest_payment"

	OrderStatusCreated = "created"
	OrderStatusPaid    = "paid"
)

// Payment is a ledger entry for a registered student. Amount is in minor
// units and Month is the billing period, YYYY-MM.
type Payment struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Amount    int64  `json:"amount"`
	Month     string `json:"month"`
	Status    string `json:"status"`
	Method    string `json:"method"`
	OrderID   string `json:"orderId,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

func (p Payment) EntityID() string { return p.ID }

var PaymentDescriptor = entity.Descriptor[Payment]{
	TypeName:  "payment",
	IndexName: "payments",
	Initial:   Payment{Status: PaymentStatusDue, Method: MethodRazorpay},
}

// GuestPayment is a ledger entry for a one-off visitor.
type GuestPayment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Amount    int64  `json:"amount"`
	OrderID   string `json:"orderId,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

func (g GuestPayment) EntityID() string { return g.ID }

var GuestPaymentDescriptor = entity.Descriptor[GuestPayment]{
	TypeName:  "guestPayment",
	IndexName: "guestPayments",
}

// PaymentOrder records what was asked of the gateway, keyed by the gateway's
// order id, so a verification can be checked against it.
type PaymentOrder struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	StudentID  string `json:"studentId,omitempty"`
	GuestName  string `json:"guestName,omitempty"`
	GuestPhone string `json:"guestPhone,omitempty"`
	Status     string `json:"status"`
	PaymentID  string `json:"paymentId,omitempty"`
	LedgerID   string `json:"ledgerId,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

func (o PaymentOrder) EntityID() string { return o.ID }

var PaymentOrderDescriptor = entity.Descriptor[PaymentOrder]{
	TypeName:  "paymentOrder",
	IndexName: "paymentOrders",
	Initial:   PaymentOrder{Status: OrderStatusCreated},
}

// PaymentPeriod claims a (student, period) slot for exactly one paid
// Payment. Creating it is the uniqueness check.
type PaymentPeriod struct {
	ID        string `json:"id"`
	PaymentID string `json:"paymentId"`
	CreatedAt int64  `json:"createdAt"`
}

func (p PaymentPeriod) EntityID() string { return p.ID }

func PeriodClaimID(userID, period string) string {
	return userID + ":" + period
}

var PaymentPeriodDescriptor = entity.Descriptor[PaymentPeriod]{
	TypeName:  "paymentPeriod",
	IndexName: "paymentPeriods",
}

// PaymentVerification claims a gateway (order, payment) pair for one ledger
// entry, whichever store it lands in. Its id is the ledger id.
type PaymentVerification struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Payer     string `json:"payer"`
	CreatedAt int64  `json:"createdAt"`
}

func (v PaymentVerification) EntityID() string { return v.ID }

var PaymentVerificationDescriptor = entity.Descriptor[PaymentVerification]{
	TypeName:  "paymentVerification",
	IndexName: "paymentVerifications",
}
