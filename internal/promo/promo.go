// Package promo содержит чистую логику сезонных скидок и наценки за фудбоксы.
// Функции пакета не обращаются к хранилищу и не читают часы: текущая дата
// передаётся вызывающей стороной.
package promo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wp-deepak/promobox/internal/model"
)

// Метки корректировок корзины.
const (
	CartDiscountLabel    = "Cart Discount Applied"
	ProductDiscountLabel = "Product Discount Applied"
	FoodBoxChargeLabel   = "Food Box Charge"
)

// ErrPromotionDisabled возвращается, когда акция не настроена: это штатное
// состояние, а не ошибка конфигурации.
var ErrPromotionDisabled = errors.New("promotion is not configured")

// InvalidPromotionError описывает заполненную, но некорректную конфигурацию
// акции. Для вычислений она эквивалентна отключённой акции, но админский
// интерфейс отличает её от пустой.
type InvalidPromotionError struct {
	Field  string
	Reason string
}

func (e *InvalidPromotionError) Error() string {
	return fmt.Sprintf("invalid promotion config: %s: %s", e.Field, e.Reason)
}

// Promotion — валидированная конфигурация сезонной акции.
type Promotion struct {
	StartDate  time.Time
	EndDate    time.Time
	HasEndDate bool
	Percentage float64
	Scope      model.PromotionScope
}

// ParsePromotion разбирает сохранённые настройки акции. Возвращает
// ErrPromotionDisabled, если акция не задана (нет даты начала или процента),
// и *InvalidPromotionError, если значения заполнены, но некорректны.
func ParsePromotion(raw model.PromotionSettings) (*Promotion, error) {
	start := strings.TrimSpace(raw.StartDate)
	end := strings.TrimSpace(raw.EndDate)
	percentage := strings.TrimSpace(raw.Percentage)
	scope := strings.TrimSpace(raw.Scope)

	// Отсутствие любого из обязательных полей отключает акцию целиком.
	if start == "" || percentage == "" {
		return nil, ErrPromotionDisabled
	}

	p := &Promotion{Scope: model.ScopeCart}

	startDate, err := time.ParseInLocation(time.DateOnly, start, time.UTC)
	if err != nil {
		return nil, &InvalidPromotionError{Field: "start_date", Reason: "must be a YYYY-MM-DD date"}
	}
	p.StartDate = startDate

	if end != "" {
		endDate, err := time.ParseInLocation(time.DateOnly, end, time.UTC)
		if err != nil {
			return nil, &InvalidPromotionError{Field: "end_date", Reason: "must be a YYYY-MM-DD date"}
		}
		if endDate.Before(startDate) {
			return nil, &InvalidPromotionError{Field: "end_date", Reason: "must not be before start_date"}
		}
		p.EndDate = endDate
		p.HasEndDate = true
	}

	pct, err := strconv.ParseFloat(percentage, 64)
	if err != nil {
		return nil, &InvalidPromotionError{Field: "percentage", Reason: "must be a number"}
	}
	if pct < 0 || pct > 100 {
		return nil, &InvalidPromotionError{Field: "percentage", Reason: "must be within [0,100]"}
	}
	p.Percentage = pct

	switch strings.ToUpper(scope) {
	case "", "CART":
		p.Scope = model.ScopeCart
	case "PRODUCT":
		p.Scope = model.ScopeProduct
	default:
		return nil, &InvalidPromotionError{Field: "scope", Reason: "must be CART or PRODUCT"}
	}

	return p, nil
}

// IsBannerActive сообщает, нужно ли показывать промо-баннер: дата начала
// наступила и процент положителен. Дата окончания здесь не проверяется —
// баннер остаётся видимым и после конца акции. Это поведение исходной
// витрины, оно сохранено намеренно и отдельно от IsDiscountActive.
func IsBannerActive(p *Promotion, today time.Time) bool {
	if p == nil || p.Percentage <= 0 {
		return false
	}
	return !dateOf(today).Before(p.StartDate)
}

// IsDiscountActive сообщает, действует ли скидка на корзину: обе границы
// окна заданы и сегодняшняя дата лежит в [StartDate, EndDate] включительно.
// Без даты окончания скидка не начисляется, даже если баннер уже показан.
func IsDiscountActive(p *Promotion, today time.Time) bool {
	if p == nil || p.Percentage <= 0 || !p.HasEndDate {
		return false
	}
	d := dateOf(today)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// DiscountAmount вычисляет размер скидки в центах: subtotal × percentage / 100
// с округлением до ближайшего цента. Неположительный результат означает,
// что корректировку добавлять не нужно.
func DiscountAmount(subtotalCents int64, percentage float64) int64 {
	return int64(math.Round(float64(subtotalCents) * percentage / 100))
}

// DiscountLabel возвращает метку скидочной корректировки по области действия.
func DiscountLabel(scope model.PromotionScope) string {
	if scope == model.ScopeProduct {
		return ProductDiscountLabel
	}
	return CartDiscountLabel
}

// FoodBoxSurcharge суммирует наценку за фудбоксы по позициям корзины.
// Позиции с выключенным фудбоксом или неположительной ценой не учитываются;
// количество берётся как есть.
func FoodBoxSurcharge(lines []model.CartLine) int64 {
	var total int64
	for _, line := range lines {
		if !line.FoodBoxEnabled || line.FoodBoxPriceCents <= 0 {
			continue
		}
		total += line.FoodBoxPriceCents * int64(line.Quantity)
	}
	return total
}

// BannerMessage возвращает текст промо-баннера для витрины.
func BannerMessage(percentage float64) string {
	return fmt.Sprintf("Hurry up! Festival season %s%% flat discount on each transaction.",
		strconv.FormatFloat(percentage, 'f', -1, 64))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
