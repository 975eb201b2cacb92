package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
	"cafeops/backend/internal/xid"
)

const orderSelect = `
	SELECT id, employee_id, order_date, total_amount, status, updated_at
	FROM orders`

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.EmployeeID, &o.OrderDate, &o.TotalAmount, &o.Status, &o.UpdatedAt)
	return o, err
}

// CreateOrder locks the ingredient rows in id order, so concurrent orders
// sharing ingredients serialize without deadlocking.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order, reservations []domain.StockReservation) (*domain.Order, error) {
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.OrderDate.IsZero() {
		order.OrderDate = time.Now().UTC()
	}
	order.UpdatedAt = order.OrderDate

	sorted := append([]domain.StockReservation(nil), reservations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].IngredientID < sorted[j].IngredientID })

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, reservation := range sorted {
		var name string
		var available decimal.Decimal
		err := tx.QueryRowContext(ctx, `SELECT name, quantity FROM ingredients WHERE id = $1 FOR UPDATE`, reservation.IngredientID).
			Scan(&name, &available)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.Missing("ingredient", reservation.IngredientID)
			}
			return nil, err
		}
		if available.LessThan(reservation.Quantity) {
			return nil, store.OrderShortfall(name, reservation.Quantity, available)
		}
	}
	for _, reservation := range sorted {
		if _, err := tx.ExecContext(ctx, `
			UPDATE ingredients SET quantity = quantity - $2, updated_at = $3 WHERE id = $1
		`, reservation.IngredientID, reservation.Quantity, order.OrderDate); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, employee_id, order_date, total_amount, status, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, order.ID, order.EmployeeID, order.OrderDate, order.TotalAmount, order.Status, order.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.Missing("employee", order.EmployeeID)
		}
		return nil, err
	}
	for position, item := range order.Items {
		if item.ID == "" {
			item.ID = xid.New("oit")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price, subtotal, position)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, order.ID, item.ProductID, item.Quantity, item.Price, item.Subtotal, position)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.Missing("product", item.ProductID)
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, order.ID)
}

func (s *Store) loadItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, 0, len(orders))
	index := make(map[string]int, len(orders))
	for i, order := range orders {
		ids = append(ids, order.ID)
		index[order.ID] = i
		orders[i].Items = []domain.OrderItem{}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.id, oi.product_id, p.name, oi.quantity, oi.price, oi.subtotal
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price, &item.Subtotal); err != nil {
			return err
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := s.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	orders, err := s.queryOrders(ctx, orderSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, store.Missing("order", id)
	}
	return &orders[0], nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int, error) {
	var w where
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.From != nil {
		w.add("order_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("order_date < $%d", *filter.To)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	pageSQL, args := w.page(filter.Offset, filter.Limit)
	orders, err := s.queryOrders(ctx, orderSelect+w.String()+` ORDER BY order_date DESC, id`+pageSQL, args...)
	return orders, total, err
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, expected string, next string, at time.Time) (*domain.Order, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2
	`, id, expected, next, at)
	if err != nil {
		return nil, err
	}
	if ok, err := affectedOne(res); err != nil {
		return nil, err
	} else if !ok {
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Missing("order", id)
		}
		if err != nil {
			return nil, err
		}
		return nil, store.Invalid("order %s is %s, not %s", id, current, expected)
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return store.Missing("order", id)
	}
	return nil
}

func (s *Store) ListPendingOrdersBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error) {
	return s.queryOrders(ctx, orderSelect+` WHERE status = $1 AND order_date < $2 ORDER BY order_date`, domain.OrderPending, cutoff)
}

func (s *Store) CountOrders(ctx context.Context, status string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE $1 = '' OR status = $1`, status).Scan(&count)
	return count, err
}

func (s *Store) SumRevenue(ctx context.Context, from time.Time, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount), 0)
		FROM orders
		WHERE status = $1 AND order_date >= $2 AND order_date < $3
	`, domain.OrderCompleted, from, to).Scan(&total)
	return total, err
}
