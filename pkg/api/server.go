// Package api exposes the swap workflow over HTTP. Business refusals come
// back with their reason; transport failures are reported generically and
// detailed only in logs.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"xmrbridge/pkg/oracle"
	"xmrbridge/pkg/swap"
)

// Server handles the swap HTTP API.
type Server struct {
	svc    *swap.Service
	logger *slog.Logger
}

// NewServer creates an API server over the swap service.
func NewServer(svc *swap.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Router mounts the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/quote", s.handleQuote)
		r.Post("/swaps/{id}/accept", s.handleAccept)
		r.Get("/swaps/{id}", s.handleStatus)
		r.Post("/swaps/{id}/settle", s.handleSettle)
	})

	return r
}

type quoteRequest struct {
	Invoice       string `json:"invoice"`
	RefundAddress string `json:"refund_address"`
}

type sessionResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	PaymentHash  string `json:"payment_hash,omitempty"`
	AmountBTC    string `json:"amount_btc,omitempty"`
	Description  string `json:"description,omitempty"`
	Rate         string `json:"rate,omitempty"`
	FeeRate      string `json:"fee_rate,omitempty"`
	XMRAmountDue string `json:"xmr_amount_due,omitempty"`
	Subaddress   string `json:"subaddress,omitempty"`
	PaymentURI   string `json:"payment_uri,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

type statusResponse struct {
	sessionResponse
	PaymentReceived  bool   `json:"payment_received"`
	AcceptedXMR      string `json:"accepted_xmr,omitempty"`
	PendingXMR       string `json:"pending_xmr,omitempty"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	session, err := s.svc.CreateQuote(r.Context(), req.Invoice, req.RefundAddress)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.sessionToResponse(session))
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Accept(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.sessionToResponse(session))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	session, status, err := s.svc.CheckPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := statusResponse{sessionResponse: s.sessionToResponse(session)}
	if remaining := time.Until(session.ExpiresAt); remaining > 0 && !session.Status.Terminal() {
		resp.RemainingSeconds = int64(remaining.Seconds())
	}
	if status != nil {
		resp.PaymentReceived = status.Received
		resp.AcceptedXMR = status.AcceptedTotal.StringFixed(12)
		resp.PendingXMR = status.PendingTotal.StringFixed(12)
	}
	resp.PaymentReceived = resp.PaymentReceived || session.Status == swap.StatusPaymentDetected

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Settle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.sessionToResponse(session))
}

func (s *Server) sessionToResponse(session swap.Session) sessionResponse {
	resp := sessionResponse{
		ID:          session.ID,
		Status:      string(session.Status),
		PaymentHash: session.PaymentHash,
		Description: session.Description,
		Subaddress:  session.Subaddress,
		PaymentURI:  s.svc.PaymentURI(session),
	}
	if !session.AmountBTC.IsZero() {
		resp.AmountBTC = session.AmountBTC.String()
		resp.Rate = session.ExchangeRate.String()
		resp.FeeRate = session.FeeRate.String()
		resp.XMRAmountDue = session.XMRAmountDue.StringFixed(12)
	}
	if !session.ExpiresAt.IsZero() {
		resp.ExpiresAt = session.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// writeServiceError maps service errors onto HTTP responses. Business errors
// carry their reason; transport errors stay generic with details in logs only.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, swap.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "swap session not found", err)
	case swap.IsBusinessError(err):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error(), err)
	case errors.Is(err, oracle.ErrRateUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "exchange rate unavailable, try again", err)
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "upstream error, try again", nil)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request rejected", "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
