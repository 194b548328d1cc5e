// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/wp-deepak/promobox/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSettingsNotFound возвращается, если настройки акции ещё не сохранялись.
var (
	ErrSettingsNotFound = errors.New("promotion settings not found")
	// ErrOrderExists возвращается при попытке зарегистрировать заказ с уже известным номером.
	ErrOrderExists = errors.New("order already registered")
	// ErrOrderNotFound возвращается, если заказ с указанным номером не найден.
	ErrOrderNotFound = errors.New("order not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Повторяем только сбои сериализации, дедлоки и сетевые обрывы.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetPromotionSettings возвращает сохранённые настройки акции.
func (r *PostgresRepository) GetPromotionSettings(ctx context.Context) (*model.PromotionSettings, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT start_date, end_date, percentage, scope FROM promotion_settings WHERE id = 1`,
	)

	var s model.PromotionSettings
	err := row.Scan(&s.StartDate, &s.EndDate, &s.Percentage, &s.Scope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("get promotion settings: %w", err)
	}

	return &s, nil
}

// SavePromotionSettings сохраняет настройки акции, заменяя предыдущие.
func (r *PostgresRepository) SavePromotionSettings(ctx context.Context, s model.PromotionSettings) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO promotion_settings (id, start_date, end_date, percentage, scope, updated_at)
			 VALUES (1, $1, $2, $3, $4, now())
			 ON CONFLICT (id) DO UPDATE
			 SET start_date = EXCLUDED.start_date,
			     end_date = EXCLUDED.end_date,
			     percentage = EXCLUDED.percentage,
			     scope = EXCLUDED.scope,
			     updated_at = now()`,
			s.StartDate, s.EndDate, s.Percentage, s.Scope,
		)
		if err != nil {
			return fmt.Errorf("save promotion settings: %w", err)
		}
		return nil
	})
}

// DeletePromotionSettings удаляет настройки акции (сброс из админки).
func (r *PostgresRepository) DeletePromotionSettings(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM promotion_settings WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("delete promotion settings: %w", err)
	}
	return nil
}

// SaveFoodBoxConfig сохраняет настройку фудбокса для товара.
func (r *PostgresRepository) SaveFoodBoxConfig(ctx context.Context, cfg model.FoodBoxConfig) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO products (id, food_box_enabled, food_box_price_cents, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (id) DO UPDATE
			 SET food_box_enabled = EXCLUDED.food_box_enabled,
			     food_box_price_cents = EXCLUDED.food_box_price_cents,
			     updated_at = now()`,
			cfg.ProductID, cfg.Enabled, cfg.PriceCents,
		)
		if err != nil {
			return fmt.Errorf("save food box config: %w", err)
		}
		return nil
	})
}

// GetFoodBoxConfigs возвращает настройки фудбоксов для указанных товаров.
// Товары без настройки в результат не попадают.
func (r *PostgresRepository) GetFoodBoxConfigs(ctx context.Context, productIDs []int64) (map[int64]model.FoodBoxConfig, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, food_box_enabled, food_box_price_cents FROM products WHERE id = ANY($1)`,
		productIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select food box configs: %w", err)
	}
	defer rows.Close()

	res := make(map[int64]model.FoodBoxConfig)
	for rows.Next() {
		var cfg model.FoodBoxConfig
		if err := rows.Scan(&cfg.ProductID, &cfg.Enabled, &cfg.PriceCents); err != nil {
			return nil, fmt.Errorf("scan food box config: %w", err)
		}
		res[cfg.ProductID] = cfg
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateOrder регистрирует заказ с позициями, фиксируя цену фудбокса каждой
// позиции по текущей настройке товара.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order model.Order, items []model.OrderItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var orderID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (number, customer, shop_status) VALUES ($1, $2, $3) RETURNING id`,
		order.Number, order.Customer, string(order.ShopStatus),
	).Scan(&orderID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrOrderExists, order.Number)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, food_box_price_cents)
			 VALUES ($1, $2, $3,
			     COALESCE((SELECT p.food_box_price_cents FROM products p
			               WHERE p.id = $2 AND p.food_box_enabled AND p.food_box_price_cents > 0), 0))`,
			orderID, item.ProductID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// ListFoodBoxOrders возвращает строки страницы управления фудбоксами:
// заказы в обработке и завершённые, с агрегатами по позициям с фудбоксами.
func (r *PostgresRepository) ListFoodBoxOrders(ctx context.Context, limit int) ([]model.FoodBoxOrderRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.number, o.customer, o.shop_status,
		        COALESCE(f.status, 'PENDING'),
		        f.received_date,
		        COALESCE(SUM(i.quantity) FILTER (WHERE i.food_box_price_cents > 0), 0),
		        COALESCE(SUM(i.quantity * i.food_box_price_cents), 0)
		 FROM orders o
		 LEFT JOIN fulfillment f ON f.order_id = o.id
		 LEFT JOIN order_items i ON i.order_id = o.id
		 WHERE o.shop_status IN ($1, $2)
		 GROUP BY o.id, o.number, o.customer, o.shop_status, f.status, f.received_date
		 ORDER BY o.uploaded_at DESC
		 LIMIT $3`,
		string(model.OrderStatusProcessing),
		string(model.OrderStatusCompleted),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select food box orders: %w", err)
	}
	defer rows.Close()

	var res []model.FoodBoxOrderRow
	for rows.Next() {
		var (
			row          model.FoodBoxOrderRow
			shopStatus   string
			status       string
			receivedDate *time.Time
		)
		if err := rows.Scan(&row.Number, &row.Customer, &shopStatus, &status,
			&receivedDate, &row.TotalQuantity, &row.TotalPriceCents); err != nil {
			return nil, fmt.Errorf("scan food box order: %w", err)
		}

		row.ShopStatus = model.OrderStatus(shopStatus)
		row.Status = model.FulfillmentStatus(status)
		row.ReceivedDate = receivedDate

		res = append(res, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SetFulfillment безусловно устанавливает статус выдачи и дату получения
// по заказу (ручное обновление из админки). Разрешён и обратный переход
// RECEIVED -> PENDING.
func (r *PostgresRepository) SetFulfillment(ctx context.Context, orderNumber string, status model.FulfillmentStatus, receivedDate *time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`INSERT INTO fulfillment (order_id, status, received_date)
		 SELECT id, $2, $3 FROM orders WHERE number = $1
		 ON CONFLICT (order_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     received_date = EXCLUDED.received_date`,
		orderNumber, string(status), receivedDate,
	)
	if err != nil {
		return fmt.Errorf("set fulfillment: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
	}

	return nil
}

// MarkFulfillmentReceived применяет автоматический переход для завершённого
// заказа: статус становится RECEIVED, а дата получения заполняется переданной
// датой только если ещё не была установлена.
func (r *PostgresRepository) MarkFulfillmentReceived(ctx context.Context, orderNumber string, receivedDate time.Time) error {
	cmdTag, err := r.pool.Exec(ctx,
		`INSERT INTO fulfillment (order_id, status, received_date)
		 SELECT id, $2, $3 FROM orders WHERE number = $1
		 ON CONFLICT (order_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     received_date = COALESCE(fulfillment.received_date, EXCLUDED.received_date)`,
		orderNumber, string(model.FulfillmentReceived), receivedDate,
	)
	if err != nil {
		return fmt.Errorf("mark fulfillment received: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
	}

	return nil
}

// OrderForSync описывает заказ, статус которого нужно сверить с магазином.
type OrderForSync struct {
	Number string
	Status model.OrderStatus
}

// GetOrdersForSync возвращает заказы, ещё не завершённые по данным магазина.
func (r *PostgresRepository) GetOrdersForSync(ctx context.Context, limit int) ([]OrderForSync, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT number, shop_status
		 FROM orders
		 WHERE shop_status <> $1
		 ORDER BY uploaded_at
		 LIMIT $2`,
		string(model.OrderStatusCompleted),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders for sync: %w", err)
	}
	defer rows.Close()

	var res []OrderForSync
	for rows.Next() {
		var number string
		var status string
		if err := rows.Scan(&number, &status); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		res = append(res, OrderForSync{
			Number: number,
			Status: model.OrderStatus(status),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateOrderShopStatus обновляет статус заказа по данным магазина.
func (r *PostgresRepository) UpdateOrderShopStatus(ctx context.Context, number string, status model.OrderStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET shop_status = $2 WHERE number = $1`,
		number, string(status),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}
