package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/savagetongue/mess-connect0209/middlewares"
	"github.com/savagetongue/mess-connect0209/services"
	"github.com/savagetongue/mess-connect0209/utils"
)

type PaymentController struct {
	Payments *services.PaymentService
}

func NewPaymentController(payments *services.PaymentService) *PaymentController {
	return &PaymentController{Payments: payments}
}

type payerFields struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
}

func (p payerFields) payer() services.PayerContext {
	return services.PayerContext{StudentID: p.StudentID, GuestName: p.Name, GuestPhone: p.Phone}
}

// CreateOrder opens a gateway order for a student's dues or a guest meal.
// Amounts are minor units.
func (pc *PaymentController) CreateOrder(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount" binding:"required,gt=0"`
		payerFields
	}
	if !bindJSON(c, &req) {
		return
	}

	order, err := pc.Payments.CreateOrder(c.Request.Context(), req.Amount, req.payer())
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Order created", gin.H{
		"id":       order.OrderID,
		"amount":   order.Amount,
		"currency": order.Currency,
		"receipt":  order.Receipt,
		"keyId":    order.KeyID,
	})
}

// VerifyPayment handles the checkout callback.
func (pc *PaymentController) VerifyPayment(c *gin.Context) {
	var req struct {
		OrderID   string `json:"razorpay_order_id" binding:"required"`
		PaymentID string `json:"razorpay_payment_id" binding:"required"`
		Signature string `json:"razorpay_signature" binding:"required"`
		Amount    int64  `json:"amount" binding:"required,gt=0"`
		payerFields
	}
	if !bindJSON(c, &req) {
		return
	}

	res, err := pc.Payments.Verify(c.Request.Context(), services.VerifyRequest{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    req.Amount,
		Payer:     req.payer(),
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	message := "Payment verified successfully"
	if res.Duplicate {
		message = "Payment already recorded"
	}
	utils.RespondJSON(c, http.StatusOK, message, res)
}

// MarkAsPaid records a cash payment for the current period.
func (pc *PaymentController) MarkAsPaid(c *gin.Context) {
	var req struct {
		StudentID string `json:"studentId" binding:"required"`
		Amount    int64  `json:"amount" binding:"required,gt=0"`
	}
	if !bindJSON(c, &req) {
		return
	}

	payment, err := pc.Payments.MarkAsPaid(c.Request.Context(), req.StudentID, req.Amount)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment recorded", payment)
}

// GetOrderStatus reports a stored order and the gateway's view of it.
func (pc *PaymentController) GetOrderStatus(c *gin.Context) {
	order, status, err := pc.Payments.OrderStatus(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order status", gin.H{"order": order, "status": status})
}

func (pc *PaymentController) DeletePayment(c *gin.Context) {
	if err := pc.Payments.DeletePayment(c.Request.Context(), c.Param("payment_id")); err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment deleted", gin.H{"id": c.Param("payment_id")})
}

// StudentDues lists the caller's own payments.
func (pc *PaymentController) StudentDues(c *gin.Context) {
	userID, _ := middlewares.CurrentUser(c)
	payments, err := pc.Payments.PaymentsFor(c.Request.Context(), userID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment history", gin.H{
		"payments": payments,
		"period":   pc.Payments.CurrentPeriod(),
	})
}

func (pc *PaymentController) Financials(c *gin.Context) {
	f, err := pc.Payments.Financials(c.Request.Context())
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Financials", f)
}
