package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/services"
)

type accountRequest struct {
	Name          string           `json:"name"`
	Type          string           `json:"type"`
	Category      string           `json:"category"`
	Balance       *decimal.Decimal `json:"balance"`
	Currency      string           `json:"currency"`
	InterestRate  *decimal.Decimal `json:"interest_rate"`
	DueDate       *string          `json:"due_date"`
	PaymentAmount *decimal.Decimal `json:"payment_amount"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	account := core.Account{
		UserID:        userID,
		Name:          req.Name,
		Type:          core.AccountType(req.Type),
		Category:      req.Category,
		Currency:      req.Currency,
		InterestRate:  req.InterestRate,
		PaymentAmount: req.PaymentAmount,
	}
	if req.Balance != nil {
		account.Balance = *req.Balance
	}
	if req.DueDate != nil {
		due, err := parseDate(*req.DueDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		account.DueDate = &due
	}

	created, err := s.accounts.CreateAccount(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateReports(userID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	accounts, err := s.accounts.ListAccounts(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	account, err := s.accounts.GetAccount(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

type accountUpdateRequest struct {
	Name          *string          `json:"name"`
	Type          *string          `json:"type"`
	Category      *string          `json:"category"`
	Balance       *decimal.Decimal `json:"balance"`
	Currency      *string          `json:"currency"`
	InterestRate  *decimal.Decimal `json:"interest_rate"`
	DueDate       *string          `json:"due_date"`
	PaymentAmount *decimal.Decimal `json:"payment_amount"`
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req accountUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	changes := services.AccountChanges{
		Name:          req.Name,
		Balance:       req.Balance,
		Currency:      req.Currency,
		Category:      req.Category,
		InterestRate:  req.InterestRate,
		PaymentAmount: req.PaymentAmount,
	}
	if req.Type != nil {
		t := core.AccountType(*req.Type)
		changes.Type = &t
	}
	if req.DueDate != nil {
		var due time.Time
		if due, err = parseDate(*req.DueDate); err != nil {
			writeError(w, r, err)
			return
		}
		changes.DueDate = &due
	}

	updated, err := s.accounts.UpdateAccount(r.Context(), userID, id, changes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateReports(userID)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.accounts.DeleteAccount(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateReports(userID)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, services.AccountTemplates())
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.accounts.ApplyTemplate(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateReports(userID)
	writeJSON(w, http.StatusCreated, created)
}
