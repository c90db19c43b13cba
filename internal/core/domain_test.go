package core

import (
	"errors"
	"testing"
	"time"
)

var now = time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)

func money(units int64) *Money {
	return &Money{Cents: units * 100}
}

func TestBuildPaidSettlesEverything(t *testing.T) {
	e, err := NewExpense{
		Category:      CategoryVenue,
		Description:   "Villa reception",
		Amount:        money(1000),
		PaymentStatus: StatusPaid,
	}.Build(now)
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if e.TotalPaid.Cents != 100000 || e.RemainingAmount.Cents != 0 {
		t.Fatalf("paid expense: totalPaid=%v remaining=%v", e.TotalPaid, e.RemainingAmount)
	}
}

func TestBuildDefaults(t *testing.T) {
	e, err := NewExpense{Category: CategoryMusic, Description: "DJ", Amount: money(300)}.Build(now)
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if e.PaymentStatus != StatusPending {
		t.Fatalf("expected Pending default, got %q", e.PaymentStatus)
	}
	if !e.Date.Equal(now) {
		t.Fatalf("expected date to default to now, got %v", e.Date)
	}
	if e.TotalPaid.Cents != 0 || e.RemainingAmount.Cents != 30000 {
		t.Fatalf("pending expense: totalPaid=%v remaining=%v", e.TotalPaid, e.RemainingAmount)
	}
}

func TestBuildPartiallyPaid(t *testing.T) {
	base := NewExpense{
		Category:      CategoryCatering,
		Description:   "Dinner",
		Amount:        money(1000),
		PaymentStatus: StatusPartiallyPaid,
	}

	ok := base
	ok.RemainingAmount = money(400)
	e, err := ok.Build(now)
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if e.TotalPaid.Cents != 60000 || e.RemainingAmount.Cents != 40000 {
		t.Fatalf("partial expense: totalPaid=%v remaining=%v", e.TotalPaid, e.RemainingAmount)
	}

	for _, remaining := range []*Money{money(1000), money(1500), money(0)} {
		bad := base
		bad.RemainingAmount = remaining
		if _, err := bad.Build(now); !IsValidation(err) {
			t.Fatalf("remaining=%v: expected validation error, got %v", remaining, err)
		}
	}

	if _, err := base.Build(now); !errors.Is(err, ErrMissingRemaining) {
		t.Fatalf("expected ErrMissingRemaining, got %v", err)
	}
}

func TestBuildRejectsInvalidFields(t *testing.T) {
	bads := []NewExpense{
		{Category: "Flowers", Description: "x", Amount: money(1)},
		{Category: CategoryOther, Description: "   ", Amount: money(1)},
		{Category: CategoryOther, Description: "x"},
		{Category: CategoryOther, Description: "x", Amount: &Money{Cents: -1}},
		{Category: CategoryOther, Description: "x", Amount: &Money{Cents: MaxAmountCents + 1}},
		{Category: CategoryOther, Description: "x", Amount: money(1), PaymentStatus: "Overdue"},
	}
	for i, n := range bads {
		if _, err := n.Build(now); !IsValidation(err) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestBuildAcceptsMaximumAmount(t *testing.T) {
	e, err := NewExpense{
		Category:      CategoryVenue,
		Description:   "Castle",
		Amount:        &Money{Cents: MaxAmountCents},
		PaymentStatus: StatusPaid,
	}.Build(now)
	if err != nil {
		t.Fatalf("expected ok at the maximum, got %v", err)
	}
	if e.TotalPaid.Cents != MaxAmountCents {
		t.Fatalf("totalPaid=%v", e.TotalPaid)
	}

	if err := (Payment{Amount: Money{Cents: MaxAmountCents + 1}}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for oversized payment, got %v", err)
	}
}

func TestApplyPatch(t *testing.T) {
	e, err := NewExpense{
		Category:        CategoryAttire,
		Description:     "Dress",
		Amount:          money(800),
		PaymentStatus:   StatusPartiallyPaid,
		RemainingAmount: money(300),
	}.Build(now)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	paid := StatusPaid
	if err := e.Apply(ExpensePatch{PaymentStatus: &paid}, now); err != nil {
		t.Fatalf("apply paid: %v", err)
	}
	if e.RemainingAmount.Cents != 0 || e.TotalPaid.Cents != 80000 {
		t.Fatalf("after Paid: totalPaid=%v remaining=%v", e.TotalPaid, e.RemainingAmount)
	}

	// Keeps the previous totalPaid when no new figures are sent.
	partial := StatusPartiallyPaid
	e2 := e
	if err := e2.Apply(ExpensePatch{PaymentStatus: &partial}, now); !IsValidation(err) {
		t.Fatalf("expected validation error moving Paid->Partially Paid without figures, got %v", err)
	}

	desc := "Wedding dress"
	if err := e.Apply(ExpensePatch{Description: &desc, PaymentStatus: &partial, RemainingAmount: money(100)}, now); err != nil {
		t.Fatalf("apply partial: %v", err)
	}
	if e.Description != desc || e.TotalPaid.Cents != 70000 {
		t.Fatalf("unexpected merge: %+v", e)
	}

	if err := e.Apply(ExpensePatch{Amount: money(900)}, now); err != nil {
		t.Fatalf("apply amount: %v", err)
	}
	if e.TotalPaid.Cents != 70000 || e.RemainingAmount.Cents != 20000 {
		t.Fatalf("amount change: totalPaid=%v remaining=%v", e.TotalPaid, e.RemainingAmount)
	}
}

func TestRecordPayment(t *testing.T) {
	e, err := NewExpense{Category: CategoryPhotography, Description: "Photographer", Amount: money(500)}.Build(now)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if err := e.RecordPayment(Money{}, now); !IsValidation(err) {
		t.Fatalf("expected validation error for zero payment, got %v", err)
	}
	if err := e.RecordPayment(*money(200), now); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if e.PaymentStatus != StatusPartiallyPaid || e.RemainingAmount.Cents != 30000 {
		t.Fatalf("after first payment: %+v", e)
	}
	if err := e.RecordPayment(*money(301), now); !errors.Is(err, ErrPaymentOverBudget) {
		t.Fatalf("expected ErrPaymentOverBudget, got %v", err)
	}
	if err := e.RecordPayment(*money(300), now); err != nil {
		t.Fatalf("settling payment: %v", err)
	}
	if e.PaymentStatus != StatusPaid || e.RemainingAmount.Cents != 0 {
		t.Fatalf("after settling: %+v", e)
	}
}

func TestSummarize(t *testing.T) {
	mk := func(status PaymentStatus, amount, paid int64) Expense {
		return Expense{PaymentStatus: status, Amount: Money{amount}, TotalPaid: Money{paid}, RemainingAmount: Money{amount - paid}}
	}
	got := Summarize([]Expense{
		mk(StatusPending, 100, 0),
		mk(StatusPartiallyPaid, 300, 100),
		mk(StatusPending, 50, 0),
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %+v", got)
	}
	if got[0].Status != StatusPending || got[0].Count != 2 || got[0].TotalAmount.Cents != 150 {
		t.Fatalf("unexpected pending group: %+v", got[0])
	}
	if got[1].Status != StatusPartiallyPaid || got[1].TotalPaid.Cents != 100 || got[1].TotalRemaining.Cents != 200 {
		t.Fatalf("unexpected partial group: %+v", got[1])
	}
	if SumAmounts(nil).Cents != 0 {
		t.Fatalf("expected zero sum for no expenses")
	}
}
