package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/savagetongue/mess-connect0209/database"
	"github.com/savagetongue/mess-connect0209/models"
)

const (
	testKeyID     = "rzp_test_key"
	testKeySecret = "rzp_test_secret"
)

// fakeRazorpay serves /v1/orders the way the gateway does. The first
// failures requests answer with failStatus.
type fakeRazorpay struct {
	*httptest.Server

	mu         sync.Mutex
	hits       int
	failures   int
	failStatus int
	failBody   string
	nextID     int
	fixedID    string
	receipts   []string
	orders     map[string]RazorpayOrder
	authOK     bool
}

func newFakeRazorpay(t *testing.T) *fakeRazorpay {
	t.Helper()
	f := &fakeRazorpay{orders: map[string]RazorpayOrder{}, authOK: true}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeRazorpay) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++

	user, pass, ok := r.BasicAuth()
	if !ok || user != testKeyID || pass != testKeySecret {
		f.authOK = false
	}
	var req OrderRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.receipts = append(f.receipts, req.Receipt)
	}
	if f.failures > 0 {
		f.failures--
		w.WriteHeader(f.failStatus)
		fmt.Fprint(w, f.failBody)
		return
	}

	switch r.Method {
	case http.MethodPost:
		id := f.fixedID
		if id == "" {
			f.nextID++
			id = fmt.Sprintf("order_%d", f.nextID)
		}
		order := RazorpayOrder{
			ID: id, Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created", Notes: req.Notes,
		}
		f.orders[id] = order
		json.NewEncoder(w).Encode(order)
	case http.MethodGet:
		id := r.URL.Path[len("/v1/orders/"):]
		order, ok := f.orders[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`)
			return
		}
		json.NewEncoder(w).Encode(order)
	}
}

func (f *fakeRazorpay) setOrder(o RazorpayOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

// markPaid flips a known order to paid, as the gateway does on capture.
func (f *fakeRazorpay) markPaid(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[id]
	o.Status = "paid"
	f.orders[id] = o
}

func (f *fakeRazorpay) failNext(n, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures, f.failStatus, f.failBody = n, status, body
}

func (f *fakeRazorpay) hitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

func (f *fakeRazorpay) seenReceipts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.receipts...)
}

func (f *fakeRazorpay) client() *RazorpayService {
	return NewRazorpayService(RazorpayConfig{
		KeyID:       testKeyID,
		KeySecret:   testKeySecret,
		BaseURL:     f.URL,
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	})
}

type testEnv struct {
	stores   *Stores
	gateway  *fakeRazorpay
	payments *PaymentService
	users    *UserService
}

func newTestEnv(t *testing.T, opts ...PaymentOption) *testEnv {
	t.Helper()
	return newTestEnvWith(t, database.NewMemoryBackend(), opts...)
}

func newTestEnvWith(t *testing.T, backend database.Backend, opts ...PaymentOption) *testEnv {
	t.Helper()
	stores := NewStores(backend)
	gw := newFakeRazorpay(t)
	users := NewUserService(stores)
	users.bcryptCost = bcrypt.MinCost
	return &testEnv{
		stores:   stores,
		gateway:  gw,
		payments: NewPaymentService(stores, gw.client(), opts...),
		users:    users,
	}
}

func (e *testEnv) addStudent(t *testing.T, id, status string) models.User {
	t.Helper()
	u, err := e.stores.Users.Create(context.Background(), models.User{
		ID: id, Name: "Student " + id, Phone: "9876543210", Role: models.RoleStudent, Status: status,
	})
	require.NoError(t, err)
	return u
}
