// Package service реализует бизнес-логику сервиса promobox.
package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/wp-deepak/promobox/internal/model"
	"github.com/wp-deepak/promobox/internal/promo"
	"github.com/wp-deepak/promobox/internal/repository"
	"github.com/wp-deepak/promobox/internal/shop"
)

// ErrInvalidFulfillmentStatus возвращается при попытке установить неизвестный статус выдачи.
var (
	ErrInvalidFulfillmentStatus = errors.New("invalid fulfillment status")
	// ErrNegativeFoodBoxPrice возвращается при попытке сохранить отрицательную цену фудбокса.
	ErrNegativeFoodBoxPrice = errors.New("food box price must not be negative")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetPromotionSettings(ctx context.Context) (*model.PromotionSettings, error)
	SavePromotionSettings(ctx context.Context, s model.PromotionSettings) error
	DeletePromotionSettings(ctx context.Context) error
	SaveFoodBoxConfig(ctx context.Context, cfg model.FoodBoxConfig) error
	GetFoodBoxConfigs(ctx context.Context, productIDs []int64) (map[int64]model.FoodBoxConfig, error)
	CreateOrder(ctx context.Context, order model.Order, items []model.OrderItem) error
	ListFoodBoxOrders(ctx context.Context, limit int) ([]model.FoodBoxOrderRow, error)
	SetFulfillment(ctx context.Context, orderNumber string, status model.FulfillmentStatus, receivedDate *time.Time) error
	MarkFulfillmentReceived(ctx context.Context, orderNumber string, receivedDate time.Time) error
	GetOrdersForSync(ctx context.Context, limit int) ([]repository.OrderForSync, error)
	UpdateOrderShopStatus(ctx context.Context, number string, status model.OrderStatus) error
}

// Service содержит бизнес-логику сервиса promobox.
type Service struct {
	repo       Repository
	shopClient *shop.Client
	now        func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом витрины.
func NewService(repo Repository, shopClient *shop.Client) *Service {
	return &Service{
		repo:       repo,
		shopClient: shopClient,
		now:        time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// today возвращает текущую календарную дату в UTC.
func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// loadPromotion читает и разбирает настройки акции. Отсутствующие и
// некорректные настройки одинаково означают "акции нет" (nil без ошибки);
// ошибка возвращается только при сбое хранилища.
func (s *Service) loadPromotion(ctx context.Context) (*promo.Promotion, error) {
	settings, err := s.repo.GetPromotionSettings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return nil, nil
		}
		return nil, err
	}

	p, err := promo.ParsePromotion(*settings)
	if err != nil {
		return nil, nil
	}

	return p, nil
}

// GetBanner возвращает состояние промо-баннера витрины на сегодняшнюю дату.
func (s *Service) GetBanner(ctx context.Context) (*model.Banner, error) {
	p, err := s.loadPromotion(ctx)
	if err != nil {
		return nil, err
	}

	if !promo.IsBannerActive(p, s.today()) {
		return &model.Banner{}, nil
	}

	return &model.Banner{
		Active:     true,
		Percentage: p.Percentage,
		Message:    promo.BannerMessage(p.Percentage),
	}, nil
}

// GetPromotionSettings возвращает сохранённые настройки акции.
// Если настройки ещё не сохранялись, возвращаются пустые значения.
func (s *Service) GetPromotionSettings(ctx context.Context) (*model.PromotionSettings, error) {
	settings, err := s.repo.GetPromotionSettings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return &model.PromotionSettings{}, nil
		}
		return nil, err
	}
	return settings, nil
}

// SavePromotionSettings валидирует и сохраняет настройки акции.
// Пустые (отключающие акцию) настройки допустимы; заполненные, но
// некорректные отклоняются с *promo.InvalidPromotionError.
func (s *Service) SavePromotionSettings(ctx context.Context, settings model.PromotionSettings) error {
	if _, err := promo.ParsePromotion(settings); err != nil {
		var invalidErr *promo.InvalidPromotionError
		if errors.As(err, &invalidErr) {
			return err
		}
		// ErrPromotionDisabled: сохранить пустые настройки можно.
	}
	return s.repo.SavePromotionSettings(ctx, settings)
}

// ResetPromotionSettings удаляет настройки акции.
func (s *Service) ResetPromotionSettings(ctx context.Context) error {
	return s.repo.DeletePromotionSettings(ctx)
}

// SetProductFoodBox сохраняет настройку фудбокса для товара.
func (s *Service) SetProductFoodBox(ctx context.Context, cfg model.FoodBoxConfig) error {
	if cfg.PriceCents < 0 {
		return ErrNegativeFoodBoxPrice
	}
	return s.repo.SaveFoodBoxConfig(ctx, cfg)
}

// QuoteCart рассчитывает корректировки корзины: сезонную скидку и наценку
// за фудбоксы. Расчёт каждый раз выполняется заново от исходных данных.
func (s *Service) QuoteCart(ctx context.Context, subtotalCents int64, lines []model.CartLine) (*model.CartQuote, error) {
	quote := &model.CartQuote{
		SubtotalCents: subtotalCents,
		TotalCents:    subtotalCents,
	}

	p, err := s.loadPromotion(ctx)
	if err != nil {
		return nil, err
	}

	if promo.IsDiscountActive(p, s.today()) {
		amount := promo.DiscountAmount(subtotalCents, p.Percentage)
		if amount > 0 {
			quote.Fees = append(quote.Fees, model.Fee{
				Label:       promo.DiscountLabel(p.Scope),
				AmountCents: -amount,
			})
		}
	}

	if len(lines) > 0 {
		ids := make([]int64, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ProductID)
		}

		configs, err := s.repo.GetFoodBoxConfigs(ctx, ids)
		if err != nil {
			return nil, err
		}

		for i := range lines {
			cfg, ok := configs[lines[i].ProductID]
			if !ok {
				continue
			}
			lines[i].FoodBoxEnabled = cfg.Enabled
			lines[i].FoodBoxPriceCents = cfg.PriceCents
		}
	}
	quote.Lines = lines

	if surcharge := promo.FoodBoxSurcharge(lines); surcharge > 0 {
		quote.Fees = append(quote.Fees, model.Fee{
			Label:       promo.FoodBoxChargeLabel,
			AmountCents: surcharge,
		})
	}

	for _, fee := range quote.Fees {
		quote.TotalCents += fee.AmountCents
	}

	return quote, nil
}

// CreateOrder регистрирует заказ для учёта фудбоксов.
func (s *Service) CreateOrder(ctx context.Context, order model.Order, items []model.OrderItem) error {
	if order.ShopStatus == "" {
		order.ShopStatus = model.OrderStatusProcessing
	}
	return s.repo.CreateOrder(ctx, order, items)
}

// ListFoodBoxOrders возвращает строки страницы управления фудбоксами.
// Для завершённых заказов попутно применяется автоматический переход
// PENDING -> RECEIVED, как это делала исходная админ-страница при отрисовке.
func (s *Service) ListFoodBoxOrders(ctx context.Context, limit int) ([]model.FoodBoxOrderRow, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.repo.ListFoodBoxOrders(ctx, limit)
	if err != nil {
		return nil, err
	}

	today := s.today()
	for i := range rows {
		if rows[i].ShopStatus != model.OrderStatusCompleted {
			continue
		}
		if rows[i].Status == model.FulfillmentReceived && rows[i].ReceivedDate != nil {
			continue
		}

		if err := s.repo.MarkFulfillmentReceived(ctx, rows[i].Number, today); err != nil {
			return nil, err
		}

		rows[i].Status = model.FulfillmentReceived
		if rows[i].ReceivedDate == nil {
			d := today
			rows[i].ReceivedDate = &d
		}
	}

	return rows, nil
}

// UpdateFulfillment вручную устанавливает статус выдачи и дату получения
// по заказу. Переход RECEIVED -> PENDING разрешён.
func (s *Service) UpdateFulfillment(ctx context.Context, orderNumber string, status model.FulfillmentStatus, receivedDate *time.Time) error {
	if status != model.FulfillmentPending && status != model.FulfillmentReceived {
		return ErrInvalidFulfillmentStatus
	}
	return s.repo.SetFulfillment(ctx, orderNumber, status, receivedDate)
}

// StartFulfillmentSync запускает фоновый процесс сверки статусов заказов с витриной.
func (s *Service) StartFulfillmentSync(ctx context.Context) {
	if s.shopClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processSyncBatch(ctx)
			}
		}
	}()
}

func (s *Service) processSyncBatch(ctx context.Context) {
	orders, err := s.repo.GetOrdersForSync(ctx, 100)
	if err != nil {
		return
	}

	for _, o := range orders {
		state, statusCode, retryAfter, err := s.fetchOrderState(ctx, o.Number)
		if err != nil {
			continue
		}

		if statusCode == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		if state == nil {
			continue
		}

		newStatus := model.OrderStatus(state.Status)
		if newStatus == "" || newStatus == o.Status {
			continue
		}

		if err := s.repo.UpdateOrderShopStatus(ctx, o.Number, newStatus); err != nil {
			continue
		}

		if newStatus == model.OrderStatusCompleted {
			_ = s.repo.MarkFulfillmentReceived(ctx, o.Number, s.today())
		}
	}
}

// fetchOrderState запрашивает статус заказа у витрины, повторяя запрос
// с фибоначчиевой паузой при временных сбоях.
func (s *Service) fetchOrderState(ctx context.Context, number string) (*shop.OrderState, int, time.Duration, error) {
	var (
		state      *shop.OrderState
		statusCode int
		retryAfter time.Duration
	)

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		state, statusCode, retryAfter, err = s.shopClient.GetOrderState(ctx, number)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	return state, statusCode, retryAfter, err
}
