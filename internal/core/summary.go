package core

// StatusSummary aggregates expenses sharing one payment status.
type StatusSummary struct {
	Status         PaymentStatus
	Count          int
	TotalAmount    Money
	TotalPaid      Money
	TotalRemaining Money
}

// Summarize groups expenses by payment status. Only statuses with at least one
// expense are returned, in PaymentStatuses order.
func Summarize(expenses []Expense) []StatusSummary {
	byStatus := make(map[PaymentStatus]*StatusSummary, len(PaymentStatuses))
	for _, e := range expenses {
		s, ok := byStatus[e.PaymentStatus]
		if !ok {
			s = &StatusSummary{Status: e.PaymentStatus}
			byStatus[e.PaymentStatus] = s
		}
		s.Count++
		s.TotalAmount = s.TotalAmount.Add(e.Amount)
		s.TotalPaid = s.TotalPaid.Add(e.TotalPaid)
		s.TotalRemaining = s.TotalRemaining.Add(e.RemainingAmount)
	}
	return OrderSummaries(byStatus)
}

// OrderSummaries flattens a per-status map into PaymentStatuses order.
func OrderSummaries(byStatus map[PaymentStatus]*StatusSummary) []StatusSummary {
	out := make([]StatusSummary, 0, len(byStatus))
	for _, st := range PaymentStatuses {
		if s, ok := byStatus[st]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// SumAmounts totals the amount of every expense; zero for none.
func SumAmounts(expenses []Expense) Money {
	var total Money
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// ExpenseFilter narrows a listing. Nil fields match everything; set fields
// match exactly.
type ExpenseFilter struct {
	Category *Category
	Status   *PaymentStatus
}

// Matches reports whether e passes the filter.
func (f ExpenseFilter) Matches(e Expense) bool {
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	if f.Status != nil && e.PaymentStatus != *f.Status {
		return false
	}
	return true
}
