package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wedding-expenses/internal/core"
)

// Accepted date layouts, most specific first. Date inputs send YYYY-MM-DD.
var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// dateValue decodes RFC 3339 timestamps, plain dates or epoch milliseconds.
// Empty strings and null leave it zero.
type dateValue struct {
	time.Time
}

func (d *dateValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid date %s", data)
		}
		d.Time = time.UnixMilli(ms).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

type expenseRequest struct {
	Category        *core.Category      `json:"category"`
	Description     *string             `json:"description"`
	Amount          *core.Money         `json:"amount"`
	Date            *dateValue          `json:"date"`
	Vendor          *string             `json:"vendor"`
	PaymentStatus   *core.PaymentStatus `json:"paymentStatus"`
	RemainingAmount *core.Money         `json:"remainingAmount"`
	TotalPaid       *core.Money         `json:"totalPaid"`
}

func (r expenseRequest) toNewExpense() core.NewExpense {
	in := core.NewExpense{
		Amount:          r.Amount,
		RemainingAmount: r.RemainingAmount,
		TotalPaid:       r.TotalPaid,
	}
	if r.Category != nil {
		in.Category = *r.Category
	}
	if r.Description != nil {
		in.Description = *r.Description
	}
	if r.Date != nil {
		in.Date = r.Date.Time
	}
	if r.Vendor != nil {
		in.Vendor = *r.Vendor
	}
	if r.PaymentStatus != nil {
		in.PaymentStatus = *r.PaymentStatus
	}
	return in
}

func (r expenseRequest) toPatch() core.ExpensePatch {
	p := core.ExpensePatch{
		Category:        r.Category,
		Description:     r.Description,
		Amount:          r.Amount,
		Vendor:          r.Vendor,
		PaymentStatus:   r.PaymentStatus,
		RemainingAmount: r.RemainingAmount,
		TotalPaid:       r.TotalPaid,
	}
	if r.Date != nil && !r.Date.IsZero() {
		p.Date = &r.Date.Time
	}
	return p
}

type paymentRequest struct {
	Amount core.Money `json:"amount"`
	Notes  string     `json:"notes"`
}

type expenseResponse struct {
	ID              int64              `json:"_id"`
	Category        core.Category      `json:"category"`
	Description     string             `json:"description"`
	Amount          core.Money         `json:"amount"`
	Date            time.Time          `json:"date"`
	Vendor          string             `json:"vendor"`
	PaymentStatus   core.PaymentStatus `json:"paymentStatus"`
	TotalPaid       core.Money         `json:"totalPaid"`
	RemainingAmount core.Money         `json:"remainingAmount"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

func newExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:              e.ID,
		Category:        e.Category,
		Description:     e.Description,
		Amount:          e.Amount,
		Date:            e.Date,
		Vendor:          e.Vendor,
		PaymentStatus:   e.PaymentStatus,
		TotalPaid:       e.TotalPaid,
		RemainingAmount: e.RemainingAmount,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func newExpenseList(expenses []core.Expense) []expenseResponse {
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, newExpenseResponse(e))
	}
	return out
}

type paymentResponse struct {
	ID        int64      `json:"_id"`
	ExpenseID int64      `json:"expenseId"`
	Amount    core.Money `json:"amount"`
	Notes     string     `json:"notes"`
	Date      time.Time  `json:"date"`
}

func newPaymentResponse(p core.Payment) paymentResponse {
	return paymentResponse{
		ID:        p.ID,
		ExpenseID: p.ExpenseID,
		Amount:    p.Amount,
		Notes:     p.Notes,
		Date:      p.Date,
	}
}

type summaryResponse struct {
	Status         core.PaymentStatus `json:"_id"`
	Count          int                `json:"count"`
	TotalAmount    core.Money         `json:"totalAmount"`
	TotalPaid      core.Money         `json:"totalPaid"`
	TotalRemaining core.Money         `json:"totalRemaining"`
}

type totalResponse struct {
	Total core.Money `json:"total"`
}

type paymentRecordedResponse struct {
	Expense expenseResponse `json:"expense"`
	Payment paymentResponse `json:"payment"`
}
