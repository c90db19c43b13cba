package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	CategoryVenue          Category = "Venue"
	CategoryCatering       Category = "Catering"
	CategoryDecoration     Category = "Decoration"
	CategoryAttire         Category = "Attire"
	CategoryPhotography    Category = "Photography"
	CategoryMusic          Category = "Music"
	CategoryTransportation Category = "Transportation"
	CategoryOther          Category = "Other"
)

const (
	StatusPaid          PaymentStatus = "Paid"
	StatusPending       PaymentStatus = "Pending"
	StatusPartiallyPaid PaymentStatus = "Partially Paid"
)

const (
	maxDescriptionLen = 200
	maxNotesLen       = 500
)

type (
	Category      string
	PaymentStatus string

	Money struct {
		Cents int64
	}

	// Expense is one budgeted line item with payment tracking.
	Expense struct {
		ID              int64
		Category        Category
		Description     string
		Amount          Money
		Date            time.Time
		Vendor          string
		PaymentStatus   PaymentStatus
		TotalPaid       Money
		RemainingAmount Money
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	// Payment is one instalment recorded against an expense.
	Payment struct {
		ID        int64
		ExpenseID int64
		Amount    Money
		Notes     string
		Date      time.Time
	}
)

// Categories lists the accepted categories in display order.
var Categories = []Category{
	CategoryVenue, CategoryCatering, CategoryDecoration, CategoryAttire,
	CategoryPhotography, CategoryMusic, CategoryTransportation, CategoryOther,
}

// PaymentStatuses lists the accepted statuses in display order.
var PaymentStatuses = []PaymentStatus{StatusPaid, StatusPending, StatusPartiallyPaid}

var (
	ErrNotFound          = errors.New("expense not found")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyDescription  = errors.New("empty description")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidStatus     = errors.New("invalid payment status")
	ErrMissingRemaining  = errors.New("remaining amount is required for partially paid expenses")
	ErrPaymentOverBudget = errors.New("payment amount exceeds remaining balance")
)

// ValidationError reports a rejected field. It unwraps to the sentinel that
// caused it so callers can still match with errors.Is.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	for _, v := range PaymentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Validate checks field rules and the payment invariants.
func (e Expense) Validate() error {
	if !e.Category.Valid() {
		return invalid("category", fmt.Errorf("%w %q", ErrInvalidCategory, e.Category))
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return invalid("description", ErrEmptyDescription)
	}
	if len(e.Description) > maxDescriptionLen {
		return invalid("description", fmt.Errorf("description too long (max %d characters)", maxDescriptionLen))
	}
	if e.Amount.Cents < 0 || e.Amount.Cents > MaxAmountCents {
		return invalid("amount", ErrInvalidAmount)
	}
	if e.Date.IsZero() {
		return invalid("date", errors.New("date cannot be zero"))
	}
	if !e.PaymentStatus.Valid() {
		return invalid("paymentStatus", fmt.Errorf("%w %q", ErrInvalidStatus, e.PaymentStatus))
	}
	if e.TotalPaid.Add(e.RemainingAmount) != e.Amount {
		return invalid("totalPaid", errors.New("totalPaid and remainingAmount must add up to amount"))
	}
	switch e.PaymentStatus {
	case StatusPaid:
		if e.RemainingAmount.Cents != 0 {
			return invalid("remainingAmount", errors.New("paid expenses have nothing remaining"))
		}
	case StatusPending:
		if e.TotalPaid.Cents != 0 {
			return invalid("totalPaid", errors.New("pending expenses have nothing paid"))
		}
	case StatusPartiallyPaid:
		if e.TotalPaid.Cents <= 0 || e.TotalPaid.Cents >= e.Amount.Cents {
			return invalid("remainingAmount", errors.New("partially paid expenses need a remaining amount between zero and the amount"))
		}
	}
	return nil
}

// settle derives totalPaid and remainingAmount from the payment status.
// remaining and paid are the caller-supplied figures, either may be nil.
func (e *Expense) settle(remaining, paid *Money) error {
	switch e.PaymentStatus {
	case StatusPaid:
		e.TotalPaid = e.Amount
	case StatusPending:
		e.TotalPaid = Money{}
	case StatusPartiallyPaid:
		switch {
		case remaining != nil:
			if remaining.Cents >= e.Amount.Cents {
				return invalid("remainingAmount", errors.New("remaining amount must be less than the total amount"))
			}
			if remaining.Cents <= 0 {
				return invalid("remainingAmount", errors.New("remaining amount must be greater than zero"))
			}
			e.TotalPaid = e.Amount.Sub(*remaining)
		case paid != nil:
			e.TotalPaid = *paid
		}
	default:
		return invalid("paymentStatus", fmt.Errorf("%w %q", ErrInvalidStatus, e.PaymentStatus))
	}
	e.RemainingAmount = e.Amount.Sub(e.TotalPaid)
	return e.Validate()
}

// NewExpense carries the fields accepted when an expense is created.
// Amount is required; RemainingAmount or TotalPaid only matter for
// partially paid expenses.
type NewExpense struct {
	Category        Category
	Description     string
	Amount          *Money
	Date            time.Time
	Vendor          string
	PaymentStatus   PaymentStatus
	RemainingAmount *Money
	TotalPaid       *Money
}

// Build validates the input and returns the expense to store. A zero date
// defaults to now and an empty status to Pending.
func (n NewExpense) Build(now time.Time) (Expense, error) {
	if n.Amount == nil {
		return Expense{}, invalid("amount", errors.New("amount is required"))
	}
	e := Expense{
		Category:      n.Category,
		Description:   strings.TrimSpace(n.Description),
		Amount:        *n.Amount,
		Date:          n.Date,
		Vendor:        strings.TrimSpace(n.Vendor),
		PaymentStatus: n.PaymentStatus,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if e.Date.IsZero() {
		e.Date = now
	}
	if e.PaymentStatus == "" {
		e.PaymentStatus = StatusPending
	}
	if e.PaymentStatus == StatusPartiallyPaid && n.RemainingAmount == nil && n.TotalPaid == nil {
		return Expense{}, invalid("remainingAmount", ErrMissingRemaining)
	}
	if err := e.settle(n.RemainingAmount, n.TotalPaid); err != nil {
		return Expense{}, err
	}
	return e, nil
}

// ExpensePatch holds the subset of fields sent with an update. Nil means
// "leave unchanged".
type ExpensePatch struct {
	Category        *Category
	Description     *string
	Amount          *Money
	Date            *time.Time
	Vendor          *string
	PaymentStatus   *PaymentStatus
	RemainingAmount *Money
	TotalPaid       *Money
}

// Apply merges the patch into e and re-derives the payment figures. For a
// partially paid expense without new figures the previous totalPaid is kept.
func (e *Expense) Apply(p ExpensePatch, now time.Time) error {
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Date != nil && !p.Date.IsZero() {
		e.Date = *p.Date
	}
	if p.Vendor != nil {
		e.Vendor = strings.TrimSpace(*p.Vendor)
	}
	if p.PaymentStatus != nil {
		e.PaymentStatus = *p.PaymentStatus
	}
	e.UpdatedAt = now
	return e.settle(p.RemainingAmount, p.TotalPaid)
}

// RecordPayment adds an instalment to the expense. The status becomes Paid
// once nothing remains, Partially Paid otherwise.
func (e *Expense) RecordPayment(amount Money, now time.Time) error {
	if amount.Cents <= 0 {
		return invalid("amount", errors.New("payment amount must be greater than 0"))
	}
	remaining := e.Amount.Sub(e.TotalPaid)
	if amount.Cents > remaining.Cents {
		return invalid("amount", fmt.Errorf("%w (%s)", ErrPaymentOverBudget, remaining))
	}
	e.TotalPaid = e.TotalPaid.Add(amount)
	e.RemainingAmount = e.Amount.Sub(e.TotalPaid)
	if e.RemainingAmount.Cents == 0 {
		e.PaymentStatus = StatusPaid
	} else {
		e.PaymentStatus = StatusPartiallyPaid
	}
	e.UpdatedAt = now
	return e.Validate()
}

func (p Payment) Validate() error {
	if p.Amount.Cents <= 0 {
		return invalid("amount", errors.New("payment amount must be greater than 0"))
	}
	if p.Amount.Cents > MaxAmountCents {
		return invalid("amount", ErrInvalidAmount)
	}
	if len(p.Notes) > maxNotesLen {
		return invalid("notes", fmt.Errorf("notes too long (max %d characters)", maxNotesLen))
	}
	return nil
}
