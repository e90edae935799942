package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/savagetongue/mess-connect0209/apperrors"
	"github.com/savagetongue/mess-connect0209/config"
	"github.com/savagetongue/mess-connect0209/utils"
)

const (
	defaultRazorpayURL = "https://api.razorpay.com"
	defaultBackoff     = 250 * time.Millisecond
)

// RazorpayConfig holds Razorpay configuration
type RazorpayConfig struct {
	KeyID       string
	KeySecret   string
	BaseURL     string
	Currency    string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// RazorpayConfigFrom maps the process configuration onto the client's.
func RazorpayConfigFrom(g config.Gateway) RazorpayConfig {
	return RazorpayConfig{
		KeyID:       g.KeyID,
		KeySecret:   g.KeySecret,
		BaseURL:     g.BaseURL,
		Currency:    g.Currency,
		Timeout:     g.Timeout,
		MaxAttempts: g.MaxAttempts,
	}
}

// RazorpayService handles Razorpay API interactions
type RazorpayService struct {
	config     RazorpayConfig
	httpClient *http.Client
}

// OrderRequest is the body of an order creation call. Amount is in minor units.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// RazorpayOrder represents the fields of a Razorpay order we use
type RazorpayOrder struct {
	ID       string     `json:"id"`
	Amount   int64      `json:"amount"`
	Currency string     `json:"currency"`
	Receipt  string     `json:"receipt"`
	Status   string     `json:"status"`
	Notes    OrderNotes `json:"notes,omitempty"`
}

// OrderNotes are the key/value notes attached to an order. Razorpay sends an
// empty JSON array when there are none.
type OrderNotes map[string]string

func (n *OrderNotes) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		*n = nil
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// NewRazorpayService creates a new instance of RazorpayService
func NewRazorpayService(cfg RazorpayConfig) *RazorpayService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRazorpayURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &RazorpayService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// ValidateConfig validates Razorpay configuration
func (rs *RazorpayService) ValidateConfig() error {
	if rs.config.KeyID == "" {
		return apperrors.Gateway("RAZORPAY_KEY_ID is not set")
	}
	if rs.config.KeySecret == "" {
		return apperrors.Gateway("RAZORPAY_KEY_SECRET is not set")
	}
	return nil
}

func (rs *RazorpayService) Currency() string { return rs.config.Currency }

func (rs *RazorpayService) KeyID() string { return rs.config.KeyID }

// CreateOrder creates an order at the gateway. The same body, and so the same
// receipt, is sent on every attempt. Only transport errors, 429 and 5xx are
// retried.
func (rs *RazorpayService) CreateOrder(ctx context.Context, req OrderRequest) (*RazorpayOrder, error) {
	if err := rs.ValidateConfig(); err != nil {
		return nil, err
	}
	if req.Currency == "" {
		req.Currency = rs.config.Currency
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	log := utils.InfoLogger.WithFields(logrus.Fields{
		"receipt": req.Receipt,
		"amount":  req.Amount,
	})

	var lastErr error
	for attempt := 1; attempt <= rs.config.MaxAttempts; attempt++ {
		order, retryable, err := rs.postOrder(ctx, body)
		if err == nil {
			log.WithField("order_id", order.ID).Info("Razorpay order created")
			return order, nil
		}
		lastErr = err
		if !retryable || attempt == rs.config.MaxAttempts {
			break
		}
		wait := rs.config.Backoff << (attempt - 1)
		log.WithField("attempt", attempt).Warnf("Razorpay order creation failed, retrying in %v: %v", wait, err)
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.KindGateway, ctx.Err(), "order creation cancelled")
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (rs *RazorpayService) postOrder(ctx context.Context, body []byte) (*RazorpayOrder, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, rs.config.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.SetBasicAuth(rs.config.KeyID, rs.config.KeySecret)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := rs.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, apperrors.Wrap(apperrors.KindGateway, err, "order creation cancelled")
		}
		return nil, true, apperrors.Wrap(apperrors.KindGateway, err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, apperrors.Wrap(apperrors.KindGateway, err, "error reading gateway response")
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		return nil, retryable, gatewayFailure(resp.StatusCode, respBody)
	}

	var order RazorpayOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, false, apperrors.Wrap(apperrors.KindGateway, err, "unreadable gateway response")
	}
	if order.ID == "" {
		return nil, false, apperrors.Gateway("gateway response has no order id")
	}
	return &order, false, nil
}

func gatewayFailure(status int, body []byte) error {
	var rzErr razorpayError
	if err := json.Unmarshal(body, &rzErr); err == nil && rzErr.Error.Description != "" {
		return apperrors.Gateway("%s", rzErr.Error.Description)
	}
	return apperrors.Gateway("payment gateway returned HTTP %d", status)
}

// FetchOrder reads an order back from the gateway. An unknown id is NotFound.
func (rs *RazorpayService) FetchOrder(ctx context.Context, orderID string) (*RazorpayOrder, error) {
	if err := rs.ValidateConfig(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rs.config.BaseURL+"/v1/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.SetBasicAuth(rs.config.KeyID, rs.config.KeySecret)
	req.Header.Set("Accept", "application/json")

	resp, err := rs.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGateway, err, "payment gateway unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGateway, err, "error reading gateway response")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("order %s not found at gateway", orderID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, gatewayFailure(resp.StatusCode, body)
	}

	var order RazorpayOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, apperrors.Wrap(apperrors.KindGateway, err, "unreadable gateway response")
	}
	return &order, nil
}

// CheckOrderStatus fetches an order and maps its status to ours.
func (rs *RazorpayService) CheckOrderStatus(ctx context.Context, orderID string) (string, error) {
	order, err := rs.FetchOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	return mapOrderStatus(order.Status), nil
}

// mapOrderStatus maps Razorpay order status to internal status
func mapOrderStatus(status string) string {
	switch status {
	case "paid":
		return "paid"
	case "created", "attempted":
		return "pending"
	default:
		return "unknown"
	}
}

// Sign returns the hex HMAC-SHA256 of orderID|paymentID under the key secret.
func (rs *RazorpayService) Sign(orderID, paymentID string) string {
	return SignPayment(rs.config.KeySecret, orderID, paymentID)
}

// VerifySignature checks a checkout callback signature in constant time.
// The hex strings are compared byte for byte.
func (rs *RazorpayService) VerifySignature(orderID, paymentID, signature string) bool {
	if rs.config.KeySecret == "" {
		return false
	}
	return hmac.Equal([]byte(rs.Sign(orderID, paymentID)), []byte(signature))
}

func SignPayment(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
