package http

import (
	"net/http"

	"wedding-expenses/internal/core"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseList(expenses))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.svc.Create(r.Context(), req.toNewExpense())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newExpenseResponse(e))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseResponse(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.svc.Update(r.Context(), id, req.toPatch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseResponse(e))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Expense deleted")
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	total, err := s.svc.Total(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totalResponse{Total: total})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]summaryResponse, 0, len(summary))
	for _, sm := range summary {
		out = append(out, summaryResponse{
			Status:         sm.Status,
			Count:          sm.Count,
			TotalAmount:    sm.TotalAmount,
			TotalPaid:      sm.TotalPaid,
			TotalRemaining: sm.TotalRemaining,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleExpenseSubresource serves the two-segment GET routes:
// category/{category}, status/{status} and {id}/payments.
func (s *Server) handleExpenseSubresource(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")

	switch {
	case first == "category":
		s.listFiltered(w, r, func() ([]core.Expense, error) {
			return s.svc.ListByCategory(r.Context(), core.Category(second))
		})
	case first == "status":
		s.listFiltered(w, r, func() ([]core.Expense, error) {
			return s.svc.ListByStatus(r.Context(), core.PaymentStatus(second))
		})
	case second == "payments":
		s.handleListPayments(w, r, first)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) listFiltered(w http.ResponseWriter, r *http.Request, list func() ([]core.Expense, error)) {
	expenses, err := list()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpenseList(expenses))
}
