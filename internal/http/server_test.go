package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-expenses/internal/log"
	"wedding-expenses/internal/metrics"
	"wedding-expenses/internal/services"
	"wedding-expenses/internal/storage/memory"
)

var fixedNow = time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)

type testServer struct {
	*Server
	t *testing.T
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	svc := services.NewExpenseService(memory.New(), services.Options{
		Now: func() time.Time { return fixedNow },
	})
	if opts.Logger == nil {
		opts.Logger = log.New(log.Config{Output: io.Discard})
	}
	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = []string{"http://localhost:5173"}
	}
	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, t: t}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type expenseJSON struct {
	ID              int64   `json:"_id"`
	Category        string  `json:"category"`
	Description     string  `json:"description"`
	Amount          float64 `json:"amount"`
	Date            string  `json:"date"`
	Vendor          string  `json:"vendor"`
	PaymentStatus   string  `json:"paymentStatus"`
	TotalPaid       float64 `json:"totalPaid"`
	RemainingAmount float64 `json:"remainingAmount"`
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := ts.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	}
}

type failingReady struct{ ExpenseService }

func (failingReady) Ready(context.Context) error { return errors.New("db down") }

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := NewServer(":0", failingReady{}, Options{Logger: log.New(log.Config{Output: io.Discard})})
	defer srv.Shutdown(context.Background())

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestExpenseLifecycle(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(http.MethodPost, "/api/expenses",
		`{"category":"Venue","description":"Villa","amount":1000,"date":"2025-09-20","vendor":"Villa Rosa","paymentStatus":"Paid"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[expenseJSON](t, rr)
	assert.Equal(t, 1000.0, created.TotalPaid)
	assert.Equal(t, 0.0, created.RemainingAmount)
	assert.True(t, strings.HasPrefix(created.Date, "2025-09-20"), created.Date)

	rr = ts.do(http.MethodGet, "/api/expenses/"+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Villa Rosa", decode[expenseJSON](t, rr).Vendor)

	rr = ts.do(http.MethodPut, "/api/expenses/"+itoa(created.ID),
		`{"paymentStatus":"Partially Paid","remainingAmount":400}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[expenseJSON](t, rr)
	assert.Equal(t, "Partially Paid", updated.PaymentStatus)
	assert.Equal(t, 600.0, updated.TotalPaid)
	assert.Equal(t, 400.0, updated.RemainingAmount)
	assert.Equal(t, "Villa", updated.Description)

	rr = ts.do(http.MethodDelete, "/api/expenses/"+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Expense deleted"}`, rr.Body.String())

	rr = ts.do(http.MethodGet, "/api/expenses/"+itoa(created.ID), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"message":"Expense not found"}`, rr.Body.String())
}

func TestCreateValidation(t *testing.T) {
	ts := newTestServer(t, Options{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"category":`},
		{"empty body", ``},
		{"unknown category", `{"category":"Cake","description":"x","amount":10}`},
		{"missing description", `{"category":"Venue","amount":10}`},
		{"negative amount", `{"category":"Venue","description":"x","amount":-5}`},
		{"missing amount", `{"category":"Venue","description":"x"}`},
		{"partial without remaining", `{"category":"Venue","description":"x","amount":10,"paymentStatus":"Partially Paid"}`},
		{"remaining not below amount", `{"category":"Venue","description":"x","amount":10,"paymentStatus":"Partially Paid","remainingAmount":10}`},
		{"bad date", `{"category":"Venue","description":"x","amount":10,"date":"yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(http.MethodPost, "/api/expenses", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[messageResponse](t, rr).Message)
		})
	}

	rr := ts.do(http.MethodGet, "/api/expenses", "")
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestAmountLimits(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, amount := range []string{"60000000000000000", "1000000000000.01", `"60000000000000000"`} {
		rr := ts.do(http.MethodPost, "/api/expenses", `{"category":"Venue","description":"x","amount":`+amount+`}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "amount %s: %s", amount, rr.Body.String())
	}

	for i := 0; i < 2; i++ {
		rr := ts.do(http.MethodPost, "/api/expenses", `{"category":"Venue","description":"Castle","amount":1000000000000}`)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := ts.do(http.MethodGet, "/api/expenses/total", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total":2000000000000}`, rr.Body.String())

	rr = ts.do(http.MethodPost, "/api/expenses/1/payments", `{"amount":1000000000000.01}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
}

func TestInvalidIDs(t *testing.T) {
	ts := newTestServer(t, Options{})

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/expenses/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodDelete, "/api/expenses/-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/expenses/abc/payments", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPut, "/api/expenses/42", `{"vendor":"x"}`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/expenses/42/invoices", "").Code)
}

func TestAggregatesAndFilters(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(http.MethodGet, "/api/expenses/total", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total":0}`, rr.Body.String())

	for _, body := range []string{
		`{"category":"Venue","description":"Villa","amount":1000,"paymentStatus":"Paid"}`,
		`{"category":"Music","description":"Band","amount":250.5}`,
		`{"category":"Venue","description":"Chapel","amount":300,"paymentStatus":"Partially Paid","remainingAmount":100}`,
	} {
		require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/expenses", body).Code)
	}

	rr = ts.do(http.MethodGet, "/api/expenses/total", "")
	assert.JSONEq(t, `{"total":1550.5}`, rr.Body.String())

	rr = ts.do(http.MethodGet, "/api/expenses/category/Venue", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]expenseJSON](t, rr), 2)

	rr = ts.do(http.MethodGet, "/api/expenses/status/Partially%20Paid", "")
	require.Equal(t, http.StatusOK, rr.Code)
	partial := decode[[]expenseJSON](t, rr)
	require.Len(t, partial, 1)
	assert.Equal(t, "Chapel", partial[0].Description)

	rr = ts.do(http.MethodGet, "/api/expenses/status/Overdue", "")
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = ts.do(http.MethodGet, "/api/expenses/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[
		{"_id":"Paid","count":1,"totalAmount":1000,"totalPaid":1000,"totalRemaining":0},
		{"_id":"Pending","count":1,"totalAmount":250.5,"totalPaid":0,"totalRemaining":250.5},
		{"_id":"Partially Paid","count":1,"totalAmount":300,"totalPaid":200,"totalRemaining":100}
	]`, rr.Body.String())
}

func TestPayments(t *testing.T) {
	ts := newTestServer(t, Options{})

	rr := ts.do(http.MethodPost, "/api/expenses", `{"category":"Photography","description":"Photos","amount":400}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := itoa(decode[expenseJSON](t, rr).ID)

	rr = ts.do(http.MethodPost, "/api/expenses/"+id+"/payments", `{"amount":500}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(http.MethodPost, "/api/expenses/"+id+"/payments", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = ts.do(http.MethodPost, "/api/expenses/999/payments", `{"amount":10}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodPost, "/api/expenses/"+id+"/payments", `{"amount":150,"notes":"deposit"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	recorded := decode[struct {
		Expense expenseJSON `json:"expense"`
		Payment struct {
			ExpenseID int64   `json:"expenseId"`
			Amount    float64 `json:"amount"`
			Notes     string  `json:"notes"`
		} `json:"payment"`
	}](t, rr)
	assert.Equal(t, "Partially Paid", recorded.Expense.PaymentStatus)
	assert.Equal(t, 250.0, recorded.Expense.RemainingAmount)
	assert.Equal(t, 150.0, recorded.Payment.Amount)
	assert.Equal(t, "deposit", recorded.Payment.Notes)

	rr = ts.do(http.MethodPost, "/api/expenses/"+id+"/payments", `{"amount":"250"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.do(http.MethodGet, "/api/expenses/"+id, "")
	assert.Equal(t, "Paid", decode[expenseJSON](t, rr).PaymentStatus)

	rr = ts.do(http.MethodGet, "/api/expenses/"+id+"/payments", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]map[string]any](t, rr), 2)

	rr = ts.do(http.MethodGet, "/api/expenses/999/payments", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRateLimitOnWrites(t *testing.T) {
	m := metrics.New()
	ts := newTestServer(t, Options{RateLimitPerMinute: 2, Metrics: m})

	body := `{"category":"Other","description":"Favors","amount":5}`
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/expenses", body).Code)
	}
	rr := ts.do(http.MethodPost, "/api/expenses", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/expenses", "").Code)

	rr = ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "wedding_expenses_http_rate_limited_total 1")
	assert.Contains(t, rr.Body.String(), `route="POST /api/expenses"`)
}

func TestRateLimitTrustsConfiguredProxies(t *testing.T) {
	ts := newTestServer(t, Options{RateLimitPerMinute: 1, TrustedProxies: []string{"192.0.2.0/24"}})

	post := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/expenses",
			strings.NewReader(`{"category":"Other","description":"Favors","amount":5}`))
		req.RemoteAddr = "192.0.2.10:4000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rr := httptest.NewRecorder()
		ts.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusCreated, post("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.1"))
	assert.Equal(t, http.StatusCreated, post("198.51.100.2"), "each forwarded client has its own bucket")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)

	assert.Less(t, rr.Code, 300)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
