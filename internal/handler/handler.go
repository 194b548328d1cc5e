// Package handler содержит HTTP-обработчики API сервиса promobox.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wp-deepak/promobox/internal/middleware"
	"github.com/wp-deepak/promobox/internal/model"
	"github.com/wp-deepak/promobox/internal/promo"
	"github.com/wp-deepak/promobox/internal/repository"
	"github.com/wp-deepak/promobox/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetBanner(ctx context.Context) (*model.Banner, error)
	QuoteCart(ctx context.Context, subtotalCents int64, lines []model.CartLine) (*model.CartQuote, error)
	GetPromotionSettings(ctx context.Context) (*model.PromotionSettings, error)
	SavePromotionSettings(ctx context.Context, settings model.PromotionSettings) error
	ResetPromotionSettings(ctx context.Context) error
	SetProductFoodBox(ctx context.Context, cfg model.FoodBoxConfig) error
	CreateOrder(ctx context.Context, order model.Order, items []model.OrderItem) error
	ListFoodBoxOrders(ctx context.Context, limit int) ([]model.FoodBoxOrderRow, error)
	UpdateFulfillment(ctx context.Context, orderNumber string, status model.FulfillmentStatus, receivedDate *time.Time) error
}

// Handler реализует HTTP-обработчики API сервиса promobox.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	adminLogin     string
	adminPassword  string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, adminLogin, adminPassword string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		adminLogin:     adminLogin,
		adminPassword:  adminPassword,
	}
}

// toCents переводит сумму в рублях/долларах в целые центы.
func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(v int64) float64 {
	return float64(v) / 100
}

type bannerResponse struct {
	Active     bool    `json:"active"`
	Percentage float64 `json:"percentage,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// GetBanner возвращает состояние промо-баннера витрины.
func (h *Handler) GetBanner(w http.ResponseWriter, r *http.Request) {
	banner, err := h.service.GetBanner(r.Context())
	if err != nil {
		h.logger.Error("get banner error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, bannerResponse{
		Active:     banner.Active,
		Percentage: banner.Percentage,
		Message:    banner.Message,
	})
}

type quoteLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type quoteRequest struct {
	Subtotal float64            `json:"subtotal"`
	Lines    []quoteLineRequest `json:"lines"`
}

type feeResponse struct {
	Label  string  `json:"label"`
	Amount float64 `json:"amount"`
}

type quoteLineResponse struct {
	ProductID       int64    `json:"product_id"`
	Quantity        int      `json:"quantity"`
	FoodBoxUnitCost *float64 `json:"food_box_unit_price,omitempty"`
}

type quoteResponse struct {
	Subtotal float64             `json:"subtotal"`
	Fees     []feeResponse       `json:"fees"`
	Lines    []quoteLineResponse `json:"lines"`
	Total    float64             `json:"total"`
}

// QuoteCart рассчитывает корректировки корзины: скидку и наценку за фудбоксы.
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Subtotal < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	lines := make([]model.CartLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, model.CartLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
		})
	}

	quote, err := h.service.QuoteCart(r.Context(), toCents(req.Subtotal), lines)
	if err != nil {
		h.logger.Error("quote cart error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := quoteResponse{
		Subtotal: fromCents(quote.SubtotalCents),
		Fees:     make([]feeResponse, 0, len(quote.Fees)),
		Lines:    make([]quoteLineResponse, 0, len(quote.Lines)),
		Total:    fromCents(quote.TotalCents),
	}
	for _, fee := range quote.Fees {
		resp.Fees = append(resp.Fees, feeResponse{
			Label:  fee.Label,
			Amount: fromCents(fee.AmountCents),
		})
	}
	for _, line := range quote.Lines {
		lr := quoteLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		}
		if line.FoodBoxEnabled && line.FoodBoxPriceCents > 0 {
			price := fromCents(line.FoodBoxPriceCents)
			lr.FoodBoxUnitCost = &price
		}
		resp.Lines = append(resp.Lines, lr)
	}

	writeJSON(w, resp)
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login аутентифицирует администратора и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if h.adminPassword == "" {
		// Без пароля в конфигурации админский вход закрыт полностью.
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	loginOK := subtle.ConstantTimeCompare([]byte(req.Login), []byte(h.adminLogin)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.adminPassword)) == 1
	if !loginOK || !passwordOK {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.authMiddleware.SetAuthCookie(w, req.Login)
	w.WriteHeader(http.StatusOK)
}

// GetPromotionSettings возвращает сохранённые настройки акции.
func (h *Handler) GetPromotionSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetPromotionSettings(r.Context())
	if err != nil {
		h.logger.Error("get promotion settings error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, settings)
}

// SavePromotionSettings сохраняет настройки акции.
func (h *Handler) SavePromotionSettings(w http.ResponseWriter, r *http.Request) {
	var settings model.PromotionSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SavePromotionSettings(r.Context(), settings); err != nil {
		var invalidErr *promo.InvalidPromotionError
		if errors.As(err, &invalidErr) {
			http.Error(w, invalidErr.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("save promotion settings error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ResetPromotionSettings удаляет настройки акции.
func (h *Handler) ResetPromotionSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetPromotionSettings(r.Context()); err != nil {
		h.logger.Error("reset promotion settings error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type foodBoxRequest struct {
	Enabled bool    `json:"enabled"`
	Price   float64 `json:"price"`
}

// SetProductFoodBox сохраняет настройку фудбокса для товара.
func (h *Handler) SetProductFoodBox(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req foodBoxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err = h.service.SetProductFoodBox(r.Context(), model.FoodBoxConfig{
		ProductID:  productID,
		Enabled:    req.Enabled,
		PriceCents: toCents(req.Price),
	})
	if err != nil {
		if errors.Is(err, service.ErrNegativeFoodBoxPrice) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("set product food box error", zap.Error(err), zap.Int64("productID", productID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type orderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type orderRequest struct {
	Number   string             `json:"number"`
	Customer string             `json:"customer"`
	Status   string             `json:"status"`
	Items    []orderItemRequest `json:"items"`
}

// CreateOrder регистрирует заказ для учёта фудбоксов.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Number == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, model.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	err := h.service.CreateOrder(r.Context(), model.Order{
		Number:     req.Number,
		Customer:   req.Customer,
		ShopStatus: model.OrderStatus(req.Status),
	}, items)
	if err != nil {
		if errors.Is(err, repository.ErrOrderExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("create order error", zap.Error(err), zap.String("order", req.Number))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type foodBoxOrderResponse struct {
	Number        string  `json:"number"`
	Customer      string  `json:"customer"`
	ShopStatus    string  `json:"shop_status"`
	TotalQuantity int     `json:"total_quantity"`
	TotalPrice    float64 `json:"total_price"`
	Status        string  `json:"status"`
	ReceivedDate  string  `json:"received_date,omitempty"`
}

// ListFoodBoxOrders возвращает строки страницы управления фудбоксами.
func (h *Handler) ListFoodBoxOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	rows, err := h.service.ListFoodBoxOrders(r.Context(), limit)
	if err != nil {
		h.logger.Error("list food box orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(rows) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]foodBoxOrderResponse, 0, len(rows))
	for _, row := range rows {
		item := foodBoxOrderResponse{
			Number:        row.Number,
			Customer:      row.Customer,
			ShopStatus:    string(row.ShopStatus),
			TotalQuantity: row.TotalQuantity,
			TotalPrice:    fromCents(row.TotalPriceCents),
			Status:        string(row.Status),
		}
		if row.ReceivedDate != nil {
			item.ReceivedDate = row.ReceivedDate.Format(time.DateOnly)
		}
		resp = append(resp, item)
	}

	writeJSON(w, resp)
}

type fulfillmentRequest struct {
	Status       string `json:"status"`
	ReceivedDate string `json:"received_date"`
}

// UpdateFulfillment вручную обновляет статус выдачи фудбокса по заказу.
func (h *Handler) UpdateFulfillment(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "number")

	var req fulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var receivedDate *time.Time
	if req.ReceivedDate != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, req.ReceivedDate, time.UTC)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		receivedDate = &parsed
	}

	err := h.service.UpdateFulfillment(r.Context(), orderNumber, model.FulfillmentStatus(req.Status), receivedDate)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFulfillmentStatus) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update fulfillment error", zap.Error(err), zap.String("order", orderNumber))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
