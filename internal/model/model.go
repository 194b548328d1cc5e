// Package model содержит доменные сущности сервиса promobox.
package model

import "time"

// PromotionScope определяет, как помечается сезонная скидка в корзине.
type PromotionScope string

const (
	ScopeCart    PromotionScope = "CART"
	ScopeProduct PromotionScope = "PRODUCT"
)

// PromotionSettings содержит настройки акции в том виде, в каком их сохранил
// администратор. Значения хранятся строками и валидируются при чтении,
// поэтому повреждённая конфигурация просто отключает акцию.
type PromotionSettings struct {
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Percentage string `json:"percentage"`
	Scope      string `json:"scope"`
}

// Empty сообщает, что ни одно поле настроек не заполнено.
func (s PromotionSettings) Empty() bool {
	return s.StartDate == "" && s.EndDate == "" && s.Percentage == "" && s.Scope == ""
}

// FoodBoxConfig описывает настройку фудбокса для одного товара.
type FoodBoxConfig struct {
	ProductID  int64
	Enabled    bool
	PriceCents int64
}

// CartLine описывает одну позицию корзины при расчёте наценки за фудбоксы.
type CartLine struct {
	ProductID         int64
	Quantity          int
	FoodBoxEnabled    bool
	FoodBoxPriceCents int64
}

// OrderStatus описывает статус заказа во внешней витрине магазина.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
)

// Order описывает заказ, зарегистрированный для учёта фудбоксов.
type Order struct {
	Number     string
	Customer   string
	ShopStatus OrderStatus
	UploadedAt time.Time
}

// OrderItem описывает позицию заказа с зафиксированной ценой фудбокса.
type OrderItem struct {
	ProductID         int64
	Quantity          int
	FoodBoxPriceCents int64
}

// FulfillmentStatus описывает состояние выдачи фудбокса по заказу.
type FulfillmentStatus string

const (
	FulfillmentPending  FulfillmentStatus = "PENDING"
	FulfillmentReceived FulfillmentStatus = "RECEIVED"
)

// FoodBoxOrderRow — строка страницы управления фудбоксами: заказ,
// агрегаты по позициям с фудбоксами и состояние выдачи.
type FoodBoxOrderRow struct {
	Number          string
	Customer        string
	ShopStatus      OrderStatus
	TotalQuantity   int
	TotalPriceCents int64
	Status          FulfillmentStatus
	ReceivedDate    *time.Time
}

// Fee описывает денежную корректировку корзины с человекочитаемой меткой.
// Отрицательная сумма уменьшает итог.
type Fee struct {
	Label       string
	AmountCents int64
}

// CartQuote — результат расчёта корзины: исходная сумма в центах, список
// корректировок и позиции с ценами фудбоксов.
type CartQuote struct {
	SubtotalCents int64
	Fees          []Fee
	Lines         []CartLine
	TotalCents    int64
}

// Banner описывает состояние промо-баннера витрины.
type Banner struct {
	Active     bool
	Percentage float64
	Message    string
}
