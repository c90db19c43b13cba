package http

import (
	"net/http"
)

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, p, err := s.svc.RecordPayment(r.Context(), id, req.Amount, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentRecordedResponse{
		Expense: newExpenseResponse(e),
		Payment: newPaymentResponse(p),
	})
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := parseID(rawID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payments, err := s.svc.ListPayments(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, newPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}
