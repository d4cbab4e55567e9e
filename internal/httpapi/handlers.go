package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"bank-core/internal/domain"
	"bank-core/internal/engine"
	"bank-core/internal/qr"
	"bank-core/internal/store"
)

type Handlers struct {
	st  store.Store
	eng *engine.Engine
	reg *qr.Registry
}

func NewHandlers(st store.Store, eng *engine.Engine, reg *qr.Registry) *Handlers {
	return &Handlers{st: st, eng: eng, reg: reg}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	// Validation, rejected before any side effect
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrDestinationNotFound),
		errors.Is(err, domain.ErrQRNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrIdempotencyConflict),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict

	case errors.Is(err, domain.ErrQRExpired):
		return http.StatusGone

	// Verified under lock, recorded as failed
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrAccountNotActive),
		errors.Is(err, domain.ErrLimitExceeded),
		errors.Is(err, domain.ErrQRInactive):
		return http.StatusUnprocessableEntity

	// Context / timeouts
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	// Don't leak internals on 5xx.
	if code >= 500 {
		return "internal error"
	}
	return err.Error()
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	code := httpStatusForErr(err)
	writeErr(w, code, publicErrMessage(code, err))
}

func (h *Handlers) OpenAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.OpenAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	acc := domain.Account{
		Number:         req.AccountNumber,
		Balance:        req.InitialBalance,
		MinimumBalance: req.MinimumBalance,
		DailyLimit:     req.DailyLimit,
		Status:         domain.AccountActive,
	}
	if err := h.st.CreateAccount(ctx, acc); err != nil {
		h.fail(w, err)
		return
	}

	created, err := h.st.GetAccount(ctx, req.AccountNumber)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse(created))
}

// GET /v1/accounts/{number}
func (h *Handlers) GetAccountByPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	number := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if number == "" || strings.Contains(number, "/") {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	acc, err := h.st.GetAccount(ctx, number)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse(acc))
}

func accountResponse(acc domain.Account) domain.AccountResponse {
	return domain.AccountResponse{
		AccountNumber:  acc.Number,
		Balance:        acc.Balance,
		MinimumBalance: acc.MinimumBalance,
		DailyLimit:     acc.DailyLimit,
		Status:         acc.Status,
	}
}

func (h *Handlers) PostTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.TransferAPIRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tx, err := h.eng.ExecuteTransfer(ctx, engine.TransferRequest{
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		Amount:      req.Amount,
		Type:        req.Type,
		Reference:   req.Reference,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewTransactionResponse(tx))
}

// GET /v1/transactions/{uuid}
func (h *Handlers) GetTransactionByPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/v1/transactions/"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	tx, err := h.st.GetTransaction(ctx, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewTransactionResponse(tx))
}

func (h *Handlers) IssueQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.IssueQRRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	desc, err := h.reg.Issue(ctx, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}

func (h *Handlers) RedeemQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.RedeemQRRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tx, err := h.reg.Redeem(ctx, req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.NewTransactionResponse(tx))
}

// POST /v1/qr/{uuid}/deactivate
func (h *Handlers) QRByPath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/qr/")
	parts := strings.Split(path, "/")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		id, err := uuid.Parse(parts[0])
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid qr id")
			return
		}
		desc, err := h.reg.Get(ctx, id)
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, desc)

	case len(parts) == 2 && parts[1] == "deactivate" && r.Method == http.MethodPost:
		id, err := uuid.Parse(parts[0])
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid qr id")
			return
		}
		var req struct {
			AccountNumber string `json:"account_number"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid json")
			return
		}
		if err := h.reg.Deactivate(ctx, id, req.AccountNumber); err != nil {
			h.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"active": false})

	default:
		writeErr(w, http.StatusNotFound, "not found")
	}
}
