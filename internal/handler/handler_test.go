package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wp-deepak/promobox/internal/middleware"
	"github.com/wp-deepak/promobox/internal/model"
	"github.com/wp-deepak/promobox/internal/promo"
	"github.com/wp-deepak/promobox/internal/repository"
	"github.com/wp-deepak/promobox/internal/service"
)

type stubService struct {
	banner    *model.Banner
	bannerErr error

	quote    *model.CartQuote
	quoteErr error

	settings        *model.PromotionSettings
	settingsErr     error
	saveSettingsErr error
	resetErr        error

	foodBoxErr error

	createOrderErr error

	foodBoxRows    []model.FoodBoxOrderRow
	foodBoxRowsErr error

	fulfillmentErr    error
	fulfillmentStatus model.FulfillmentStatus
	fulfillmentDate   *time.Time
	fulfillmentOrder  string
}

func (s *stubService) GetBanner(ctx context.Context) (*model.Banner, error) {
	return s.banner, s.bannerErr
}

func (s *stubService) QuoteCart(ctx context.Context, subtotalCents int64, lines []model.CartLine) (*model.CartQuote, error) {
	return s.quote, s.quoteErr
}

func (s *stubService) GetPromotionSettings(ctx context.Context) (*model.PromotionSettings, error) {
	return s.settings, s.settingsErr
}

func (s *stubService) SavePromotionSettings(ctx context.Context, settings model.PromotionSettings) error {
	return s.saveSettingsErr
}

func (s *stubService) ResetPromotionSettings(ctx context.Context) error {
	return s.resetErr
}

func (s *stubService) SetProductFoodBox(ctx context.Context, cfg model.FoodBoxConfig) error {
	return s.foodBoxErr
}

func (s *stubService) CreateOrder(ctx context.Context, order model.Order, items []model.OrderItem) error {
	return s.createOrderErr
}

func (s *stubService) ListFoodBoxOrders(ctx context.Context, limit int) ([]model.FoodBoxOrderRow, error) {
	return s.foodBoxRows, s.foodBoxRowsErr
}

func (s *stubService) UpdateFulfillment(ctx context.Context, orderNumber string, status model.FulfillmentStatus, receivedDate *time.Time) error {
	s.fulfillmentOrder = orderNumber
	s.fulfillmentStatus = status
	s.fulfillmentDate = receivedDate
	return s.fulfillmentErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth, "admin", "pass")
}

func adminCookie(t *testing.T, h *Handler) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, "admin")
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no admin cookie set")
	}
	return cookies[0]
}

func TestGetBanner_JSON(t *testing.T) {
	svc := &stubService{
		banner: &model.Banner{
			Active:     true,
			Percentage: 10,
			Message:    promo.BannerMessage(10),
		},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/promo/banner", nil)
	rec := httptest.NewRecorder()

	h.GetBanner(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp bannerResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Active || resp.Percentage != 10 {
		t.Fatalf("unexpected banner: %+v", resp)
	}
}

func TestQuoteCart_ResponseShape(t *testing.T) {
	svc := &stubService{
		quote: &model.CartQuote{
			SubtotalCents: 20000,
			Fees: []model.Fee{
				{Label: promo.CartDiscountLabel, AmountCents: -2000},
				{Label: promo.FoodBoxChargeLabel, AmountCents: 1500},
			},
			Lines: []model.CartLine{
				{ProductID: 1, Quantity: 3, FoodBoxEnabled: true, FoodBoxPriceCents: 500},
				{ProductID: 2, Quantity: 2},
			},
			TotalCents: 19500,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(quoteRequest{
		Subtotal: 200,
		Lines: []quoteLineRequest{
			{ProductID: 1, Quantity: 3},
			{ProductID: 2, Quantity: 2},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/cart/quote", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.QuoteCart(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp quoteResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Subtotal != 200 || resp.Total != 195 {
		t.Fatalf("subtotal/total = %v/%v, want 200/195", resp.Subtotal, resp.Total)
	}
	if len(resp.Fees) != 2 {
		t.Fatalf("fees = %+v, want 2", resp.Fees)
	}
	if resp.Fees[0].Label != promo.CartDiscountLabel || resp.Fees[0].Amount != -20 {
		t.Fatalf("discount fee = %+v, want -20 %q", resp.Fees[0], promo.CartDiscountLabel)
	}
	if resp.Lines[0].FoodBoxUnitCost == nil || *resp.Lines[0].FoodBoxUnitCost != 5 {
		t.Fatalf("line 0 food box price = %v, want 5", resp.Lines[0].FoodBoxUnitCost)
	}
	if resp.Lines[1].FoodBoxUnitCost != nil {
		t.Fatalf("line 1 must have no food box price")
	}
}

func TestQuoteCart_NegativeSubtotal(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body := []byte(`{"subtotal":-1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/cart/quote", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.QuoteCart(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestLogin_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(loginRequest{Login: "admin", Password: "pass"})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("login must set a session cookie")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(loginRequest{Login: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestLogin_DisabledWithoutPassword(t *testing.T) {
	logger := zap.NewNop()
	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(&stubService{}, logger, auth, "admin", "")

	body, _ := json.Marshal(loginRequest{Login: "admin", Password: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestSavePromotionSettings_BadRequestOnInvalid(t *testing.T) {
	svc := &stubService{
		saveSettingsErr: &promo.InvalidPromotionError{Field: "percentage", Reason: "must be within [0,100]"},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(model.PromotionSettings{StartDate: "2024-06-01", Percentage: "150"})
	req := httptest.NewRequest(http.MethodPut, "/api/admin/promo/settings", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.SavePromotionSettings(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/promo/settings", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestListFoodBoxOrders_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/foodbox/orders", nil)
	req.AddCookie(adminCookie(t, h))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}

func TestListFoodBoxOrders_JSONResponse(t *testing.T) {
	received := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	svc := &stubService{
		foodBoxRows: []model.FoodBoxOrderRow{
			{
				Number:          "A-1001",
				Customer:        "John Doe",
				ShopStatus:      model.OrderStatusCompleted,
				TotalQuantity:   3,
				TotalPriceCents: 1500,
				Status:          model.FulfillmentReceived,
				ReceivedDate:    &received,
			},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/foodbox/orders?limit=20", nil)
	req.AddCookie(adminCookie(t, h))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp []foodBoxOrderResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("rows = %d, want 1", len(resp))
	}
	row := resp[0]
	if row.Number != "A-1001" || row.TotalPrice != 15 || row.Status != "RECEIVED" {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.ReceivedDate != "2024-06-03" {
		t.Fatalf("received date = %q, want 2024-06-03", row.ReceivedDate)
	}
}

func TestUpdateFulfillment_OK(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := []byte(`{"status":"RECEIVED","received_date":"2024-06-03"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/foodbox/orders/A-1001/status", bytes.NewReader(body))
	req.AddCookie(adminCookie(t, h))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
	if svc.fulfillmentOrder != "A-1001" {
		t.Fatalf("order = %q, want A-1001", svc.fulfillmentOrder)
	}
	if svc.fulfillmentStatus != model.FulfillmentReceived {
		t.Fatalf("status = %s, want RECEIVED", svc.fulfillmentStatus)
	}
	if svc.fulfillmentDate == nil || svc.fulfillmentDate.Format(time.DateOnly) != "2024-06-03" {
		t.Fatalf("date = %v, want 2024-06-03", svc.fulfillmentDate)
	}
}

func TestUpdateFulfillment_BadDate(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body := []byte(`{"status":"RECEIVED","received_date":"03.06.2024"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/foodbox/orders/A-1001/status", bytes.NewReader(body))
	req.AddCookie(adminCookie(t, h))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestUpdateFulfillment_UnknownOrder(t *testing.T) {
	svc := &stubService{fulfillmentErr: repository.ErrOrderNotFound}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := []byte(`{"status":"RECEIVED"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/foodbox/orders/A-9999/status", bytes.NewReader(body))
	req.AddCookie(adminCookie(t, h))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestUpdateFulfillment_InvalidStatus(t *testing.T) {
	svc := &stubService{fulfillmentErr: service.ErrInvalidFulfillmentStatus}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := []byte(`{"status":"SHIPPED"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/foodbox/orders/A-1001/status", bytes.NewReader(body))
	req.AddCookie(adminCookie(t, h))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestCreateOrder_Conflict(t *testing.T) {
	svc := &stubService{createOrderErr: repository.ErrOrderExists}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(orderRequest{
		Number:   "A-1001",
		Customer: "John Doe",
		Items:    []orderItemRequest{{ProductID: 1, Quantity: 2}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateOrder(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestResetPromotionSettings_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/promo/settings", nil)
	rec := httptest.NewRecorder()

	h.ResetPromotionSettings(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}
