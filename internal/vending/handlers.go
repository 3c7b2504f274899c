package vending

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-vending/internal/common"
	"github.com/noah-isme/backend-vending/internal/grid"
	"github.com/noah-isme/backend-vending/internal/inventory"
	"github.com/noah-isme/backend-vending/internal/lock"
	"github.com/noah-isme/backend-vending/internal/money"
	"github.com/noah-isme/backend-vending/internal/obs"
)

// Handler exposes the machine's public operations over HTTP.
type Handler struct {
	Machine  *Machine
	Locker   lock.Locker
	LockTTL  time.Duration
	Validate *validator.Validate
}

type selectionRequest struct {
	Item string `json:"item" validate:"required_without=Key,max=120"`
	Key  string `json:"key" validate:"required_without=Item,max=12"`
}

type insertRequest struct {
	Pieces []string `json:"pieces" validate:"required,min=1,max=50,dive,required"`
}

type removeRequest struct {
	Item string `json:"item" validate:"required,max=120"`
}

// Routes mounts the machine endpoints on r. Insert endpoints are wrapped in
// insertMiddleware when given.
func (h *Handler) Routes(r chi.Router, insertMiddleware ...func(http.Handler) http.Handler) {
	r.Get("/items", h.Items)
	r.Get("/slots", h.Slots)
	r.Get("/balance", h.Balance)
	r.Get("/reserve", h.Reserve)
	r.Post("/selection", h.Select)
	r.Group(func(g chi.Router) {
		g.Use(insertMiddleware...)
		g.Post("/coins", h.InsertCoins)
		g.Post("/notes", h.InsertNotes)
	})
	r.Post("/refund", h.Refund)
	r.Post("/order", h.Collect)
	r.Post("/admin/remove", h.Remove)
}

// Items lists the selectable items.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "list_items")
	var items []inventory.Item
	if !h.guard(w, r, func(context.Context) error {
		items = h.Machine.ListInstockItems()
		return nil
	}) {
		return
	}
	if items == nil {
		items = []inventory.Item{}
	}
	common.Data(w, http.StatusOK, items)
}

// Slots returns the grid layout.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "list_slots")
	common.Data(w, http.StatusOK, h.Machine.Slots())
}

// Balance reports the running balance and transaction state.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "balance")
	owner := h.Machine.Owner()
	resp := map[string]any{
		"balance": h.Machine.CurrentBalance(),
		"state":   h.Machine.State(),
		"busy":    owner != "" && owner != common.Caller(r),
	}
	if it, ok := h.Machine.Selection(); ok {
		resp["selection"] = it
	}
	common.Data(w, http.StatusOK, resp)
}

// Reserve reports the change reserve.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "reserve")
	common.Data(w, http.StatusOK, h.Machine.Reserve())
}

// Select picks an item by name or selection key and returns its price.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "select")
	var req selectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	var selected inventory.Item
	if !h.own(w, r, func(ctx context.Context) error {
		if key := strings.TrimSpace(req.Key); key != "" {
			it, err := h.Machine.SelectByKey(ctx, key)
			selected = it
			return err
		}
		price, err := h.Machine.SelectItemAndGetPrice(ctx, inventory.Item{Name: strings.TrimSpace(req.Item)})
		selected = inventory.Item{Name: strings.TrimSpace(req.Item), Price: price}
		return err
	}) {
		return
	}
	common.Data(w, http.StatusOK, selected)
}

// InsertCoins feeds coins into the machine.
func (h *Handler) InsertCoins(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "insert_coin")
	h.insert(w, r, h.Machine.InsertCoin)
}

// InsertNotes feeds notes into the machine.
func (h *Handler) InsertNotes(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "insert_note")
	h.insert(w, r, h.Machine.InsertNote)
}

func (h *Handler) insert(w http.ResponseWriter, r *http.Request, fn func(...money.Piece) error) {
	var req insertRequest
	if !h.decode(w, r, &req) {
		return
	}
	pieces, err := money.ParsePieces(req.Pieces)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var balance money.Money
	if !h.own(w, r, func(context.Context) error {
		if err := fn(pieces...); err != nil {
			return err
		}
		balance = h.Machine.CurrentBalance()
		return nil
	}) {
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"balance": balance})
}

// Refund returns every inserted piece.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "refund")
	var refunded money.Change
	if !h.own(w, r, func(ctx context.Context) error {
		refunded = h.Machine.RefundAndReturnChange(ctx)
		return nil
	}) {
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"change": refunded})
}

// Collect completes the purchase.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "collect")
	var order Order
	if !h.own(w, r, func(ctx context.Context) error {
		var err error
		order, err = h.Machine.CollectItemOrder(ctx)
		return err
	}) {
		return
	}
	common.Data(w, http.StatusCreated, order)
}

// Remove takes one unit of an item out of the grid.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	obs.MarkOperation(r.Context(), "remove_item")
	var req removeRequest
	if !h.decode(w, r, &req) {
		return
	}
	var pos grid.Position
	if !h.guard(w, r, func(context.Context) error {
		var err error
		pos, err = h.Machine.RemoveItem(strings.TrimSpace(req.Item))
		return err
	}) {
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"slot": pos.Key()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, common.NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, err))
		return false
	}
	v := h.Validate
	if v == nil {
		v = validator.New()
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		details := map[string]string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		writeError(w, r, common.NewAppError("VALIDATION_FAILED", "invalid payload", http.StatusBadRequest, err).WithDetails(details))
		return false
	}
	return true
}

// guard runs fn under the machine lock and writes the error response on
// failure. It reports whether the caller should continue.
func (h *Handler) guard(w http.ResponseWriter, r *http.Request, fn func(context.Context) error) bool {
	var err error
	if h.Locker != nil {
		err = h.Locker.WithLock(r.Context(), lock.MachineKey(h.Machine.ID()), h.LockTTL, fn)
	} else {
		err = fn(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

// own is guard for operations that open, feed or close a transaction. The
// caller must be the one the open transaction belongs to, if any.
func (h *Handler) own(w http.ResponseWriter, r *http.Request, fn func(context.Context) error) bool {
	caller := common.Caller(r)
	return h.guard(w, r, func(ctx context.Context) error {
		if err := h.Machine.Claim(caller); err != nil {
			return err
		}
		return fn(ctx)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	obs.MarkError(r.Context(), appErr.Code)
	common.WriteError(w, appErr)
}

func toAppError(err error) *common.AppError {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, grid.ErrInvalidKeyFormat):
		return common.NewAppError("INVALID_KEY_FORMAT", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, grid.ErrOutOfBounds):
		return common.NewAppError("OUT_OF_BOUNDS", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, grid.ErrItemNotFound):
		return common.NewAppError("ITEM_NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, inventory.ErrEmptySlot):
		return common.NewAppError("EMPTY_SLOT", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, ErrSoldOut):
		return common.NewAppError("SOLD_OUT", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrNotFullyPaid):
		return common.NewAppError("NOT_FULLY_PAID", err.Error(), http.StatusPaymentRequired, err)
	case errors.Is(err, ErrInsufficientChange):
		return common.NewAppError("INSUFFICIENT_CHANGE", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrNoSelection):
		return common.NewAppError("NO_SELECTION", err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrWrongKind), errors.Is(err, money.ErrUnknownPiece):
		return common.NewAppError("INVALID_PIECE", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrTransactionOwned):
		return common.NewAppError("MACHINE_BUSY", "another terminal has a transaction open", http.StatusConflict, err)
	case errors.Is(err, lock.ErrBusy), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError("MACHINE_BUSY", "machine is busy", http.StatusServiceUnavailable, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
