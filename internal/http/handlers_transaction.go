package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/services"
	"tally/internal/storage"
)

type transactionRequest struct {
	Description     string           `json:"description"`
	Amount          string           `json:"amount"`
	Date            string           `json:"date"`
	FromAccountID   int64            `json:"from_account_id"`
	ToAccountID     int64            `json:"to_account_id"`
	CategoryID      *int64           `json:"category_id"`
	Notes           string           `json:"notes"`
	PrincipalAmount *decimal.Decimal `json:"principal_amount"`
	InterestAmount  *decimal.Decimal `json:"interest_amount"`
	FeeAmount       *decimal.Decimal `json:"fee_amount"`
	IsExtraPayment  bool             `json:"is_extra_payment"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	date := time.Now()
	if req.Date != "" {
		if date, err = parseDate(req.Date); err != nil {
			writeError(w, r, err)
			return
		}
	}

	tx := core.Transaction{
		UserID:          userID,
		Description:     req.Description,
		Amount:          amount,
		Date:            date,
		FromAccountID:   req.FromAccountID,
		ToAccountID:     req.ToAccountID,
		CategoryID:      req.CategoryID,
		Notes:           req.Notes,
		PrincipalAmount: req.PrincipalAmount,
		InterestAmount:  req.InterestAmount,
		FeeAmount:       req.FeeAmount,
		IsExtraPayment:  req.IsExtraPayment,
	}

	created, err := s.ledger.CreateTransaction(r.Context(), tx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateReports(userID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filter := storage.TransactionFilter{
		AccountID:  parseInt64Query(r, "account_id"),
		CategoryID: parseInt64Query(r, "category_id"),
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:      parseIntQuery(r, "limit", 100),
		Offset:     parseIntQuery(r, "offset", 0),
	}
	if filter.From, err = parseDateQuery(r, "from"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.To, err = parseDateQuery(r, "to"); err != nil {
		writeError(w, r, err)
		return
	}

	transactions, err := s.repo.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
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

	tx, err := s.repo.GetTransaction(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type transactionUpdateRequest struct {
	Description     *string          `json:"description"`
	Amount          *string          `json:"amount"`
	Date            *string          `json:"date"`
	FromAccountID   *int64           `json:"from_account_id"`
	ToAccountID     *int64           `json:"to_account_id"`
	CategoryID      *int64           `json:"category_id"`
	Notes           *string          `json:"notes"`
	PrincipalAmount *decimal.Decimal `json:"principal_amount"`
	InterestAmount  *decimal.Decimal `json:"interest_amount"`
	FeeAmount       *decimal.Decimal `json:"fee_amount"`
	IsExtraPayment  *bool            `json:"is_extra_payment"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
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

	var req transactionUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	changes := services.TransactionChanges{
		Description:     req.Description,
		FromAccountID:   req.FromAccountID,
		ToAccountID:     req.ToAccountID,
		CategoryID:      req.CategoryID,
		Notes:           req.Notes,
		PrincipalAmount: req.PrincipalAmount,
		InterestAmount:  req.InterestAmount,
		FeeAmount:       req.FeeAmount,
		IsExtraPayment:  req.IsExtraPayment,
	}
	if req.Amount != nil {
		amount, err := core.ParseAmount(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		changes.Amount = &amount
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		changes.Date = &date
	}

	updated, err := s.ledger.UpdateTransaction(r.Context(), userID, id, changes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateReports(userID)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
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

	if err := s.ledger.DeleteTransaction(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateReports(userID)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type importItemRequest struct {
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	FromAccountID *int64 `json:"from_account_id"`
	ToAccountID   *int64 `json:"to_account_id"`
	CategoryID    *int64 `json:"category_id"`
	Notes         string `json:"notes"`
}

type importRequest struct {
	Transactions         []importItemRequest `json:"transactions"`
	DefaultFromAccountID *int64              `json:"default_from_account_id"`
	DefaultToAccountID   *int64              `json:"default_to_account_id"`
}

type importItemResponse struct {
	Success     bool              `json:"success"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type importResponse struct {
	Imported int                  `json:"imported"`
	Failed   int                  `json:"failed"`
	Results  []importItemResponse `json:"results"`
}

func (s *Server) handleImportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]services.ImportItem, 0, len(req.Transactions))
	for _, it := range req.Transactions {
		item := services.ImportItem{
			Description:   it.Description,
			Amount:        it.Amount,
			FromAccountID: it.FromAccountID,
			ToAccountID:   it.ToAccountID,
			CategoryID:    it.CategoryID,
			Notes:         it.Notes,
		}
		if it.Date != "" {
			date, err := parseDate(it.Date)
			if err != nil {
				writeError(w, r, err)
				return
			}
			item.Date = &date
		}
		items = append(items, item)
	}

	results, err := s.ledger.ImportTransactions(r.Context(), userID, items, services.ImportDefaults{
		FromAccountID: req.DefaultFromAccountID,
		ToAccountID:   req.DefaultToAccountID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := importResponse{Results: make([]importItemResponse, 0, len(results))}
	for _, res := range results {
		item := importItemResponse{Success: res.Success, Error: res.Err}
		if res.Success {
			tx := res.Transaction
			item.Transaction = &tx
			resp.Imported++
		} else {
			resp.Failed++
		}
		resp.Results = append(resp.Results, item)
	}

	s.invalidateReports(userID)
	writeJSON(w, http.StatusOK, resp)
}

type categoryRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	categories, err := s.repo.ListCategories(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, err := ownerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	category := core.Category{
		UserID: userID,
		Name:   req.Name,
		Type:   core.CategoryType(req.Type),
		Color:  req.Color,
		Icon:   req.Icon,
	}
	if err := category.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.repo.CreateCategory(r.Context(), &category); err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateReports(userID)
	writeJSON(w, http.StatusCreated, category)
}
