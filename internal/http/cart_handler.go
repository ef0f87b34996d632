package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/service"
)

// CartEngine is the part of service.Engine the handlers use.
type CartEngine interface {
	Load(ctx context.Context, session string) domain.Cart
	Totals(ctx context.Context, session string) domain.Totals
	Add(ctx context.Context, session string, req service.AddRequest) (domain.Cart, error)
	SetQuantity(ctx context.Context, session, productID, size, color string, qty int) (domain.Cart, error)
	Remove(ctx context.Context, session, productID, size, color string) (domain.Cart, error)
	Clear(ctx context.Context, session string) error
}

type CartHandler struct {
	engine  CartEngine
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(engine CartEngine, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		engine:  engine,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	ProductID     string  `json:"product_id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Image         string  `json:"image,omitempty"`
	Slug          string  `json:"slug,omitempty"`
	Size          string  `json:"size,omitempty"`
	Color         string  `json:"color,omitempty"`
	Quantity      int     `json:"quantity"`
	SizeRequired  bool    `json:"size_required,omitempty"`
	ColorRequired bool    `json:"color_required,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartLineDTO struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Image     string  `json:"image,omitempty"`
	Slug      string  `json:"slug,omitempty"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
	Quantity  int     `json:"quantity"`
}

type CartResponse struct {
	Lines  []CartLineDTO `json:"lines"`
	Totals domain.Totals `json:"totals"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func toCartResponse(c domain.Cart) CartResponse {
	lines := make([]CartLineDTO, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, CartLineDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.UnitPrice,
			Image:     l.ImageRef,
			Slug:      l.Slug,
			Size:      l.Size,
			Color:     l.Color,
			Quantity:  l.Quantity,
		})
	}
	return CartResponse{Lines: lines, Totals: c.Totals()}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(h.engine.Load(ctx, sessionID)))
}

func (h *CartHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, h.engine.Totals(ctx, sessionID))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart, err := h.engine.Add(ctx, sessionID, service.AddRequest{
		ProductID:     req.ProductID,
		Name:          req.Name,
		UnitPrice:     req.Price,
		ImageRef:      req.Image,
		Slug:          req.Slug,
		Size:          req.Size,
		Color:         req.Color,
		Quantity:      req.Quantity,
		SizeRequired:  req.SizeRequired,
		ColorRequired: req.ColorRequired,
	})
	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, toCartResponse(cart))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	q := r.URL.Query()
	cart, err := h.engine.SetQuantity(ctx, sessionID, productID, q.Get("size"), q.Get("color"), req.Quantity)
	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	cart, err := h.engine.Remove(ctx, sessionID, productID, q.Get("size"), q.Get("color"))
	if err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(cart))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := h.engine.Clear(ctx, sessionID); err != nil {
		h.handleEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(domain.Cart{}))
}

func (h *CartHandler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "session_required", "missing cart session")
		return "", false
	}
	return sessionID, true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	productID := strings.TrimSpace(chi.URLParam(r, "product_id"))
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return "", false
	}
	return productID, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}

// handleEngineError maps engine errors to HTTP status codes.
func (h *CartHandler) handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		status := http.StatusBadRequest
		if vErr.Code == domain.CodeOutOfStock {
			status = http.StatusConflict
		}
		respondError(w, status, strings.ToLower(vErr.Code.String()), vErr.Message)
	case errors.Is(err, service.ErrSessionRequired):
		respondError(w, http.StatusUnauthorized, "session_required", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, domain.ErrPersistenceWrite), errors.Is(err, domain.ErrPersistenceRead):
		h.logger.Error("cart storage unavailable",
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "cart storage is unavailable")
	default:
		h.logger.Error("cart operation failed",
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
