package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
)

var orderTransitions = map[string][]string{
	domain.OrderPending:    {domain.OrderProcessing, domain.OrderCompleted, domain.OrderCancelled},
	domain.OrderProcessing: {domain.OrderCompleted, domain.OrderCancelled},
}

func CanTransition(from string, to string) bool {
	return slices.Contains(orderTransitions[from], to)
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	if len(req.Items) == 0 {
		return domain.Order{}, store.Invalid("order must contain at least one item")
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.Order{}, store.Invalid("product_id is required for every item")
		}
		if item.Quantity < 1 {
			return domain.Order{}, store.Invalid("quantity for product %s must be at least 1", item.ProductID)
		}
	}

	employeeID := strings.TrimSpace(req.EmployeeID)
	if employeeID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			employeeID = actor.EmployeeID
		}
	}
	if employeeID == "" {
		return domain.Order{}, store.Invalid("employee_id is required")
	}
	if _, err := s.repo.GetEmployee(ctx, employeeID); err != nil {
		return domain.Order{}, err
	}

	products := make(map[string]*domain.Product, len(req.Items))
	needed := make(map[string]decimal.Decimal)
	ingredientOrder := make([]string, 0)
	items := make([]domain.OrderItem, 0, len(req.Items))
	total := decimal.Zero

	for _, line := range req.Items {
		product, ok := products[line.ProductID]
		if !ok {
			found, err := s.repo.GetProduct(ctx, line.ProductID)
			if err != nil {
				return domain.Order{}, err
			}
			if found.Status != domain.ProductAvailable {
				return domain.Order{}, store.Invalid("product '%s' is not available", found.Name)
			}
			products[line.ProductID] = found
			product = found
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		subtotal := domain.Round2(product.Price.Mul(qty))
		items = append(items, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.Price,
			Subtotal:    subtotal,
		})
		total = total.Add(subtotal)

		for _, recipe := range product.Ingredients {
			if _, seen := needed[recipe.IngredientID]; !seen {
				ingredientOrder = append(ingredientOrder, recipe.IngredientID)
			}
			needed[recipe.IngredientID] = needed[recipe.IngredientID].Add(recipe.QuantityRequired.Mul(qty))
		}
	}

	reservations := make([]domain.StockReservation, 0, len(ingredientOrder))
	for _, id := range ingredientOrder {
		reservations = append(reservations, domain.StockReservation{IngredientID: id, Quantity: needed[id]})
	}

	created, err := s.repo.CreateOrder(ctx, domain.Order{
		EmployeeID:  employeeID,
		OrderDate:   s.now().UTC(),
		TotalAmount: domain.Round2(total),
		Status:      domain.OrderPending,
		Items:       items,
	}, reservations)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("items=%d,total=%s", len(created.Items), created.TotalAmount))
	return *created, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status string) (domain.Order, error) {
	next, ok := normalizeEnum(status, domain.OrderPending, domain.OrderProcessing, domain.OrderCompleted, domain.OrderCancelled)
	if !ok {
		return domain.Order{}, store.Invalid("invalid order status %q", status)
	}
	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !CanTransition(current.Status, next) {
		return domain.Order{}, store.Invalid("cannot change order status from %s to %s", current.Status, next)
	}

	// TODO: restock ingredients on cancellation once the reversal rules for
	// partially prepared orders are settled.
	saved, err := s.repo.UpdateOrderStatus(ctx, id, current.Status, next, s.now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "order_status", "order", saved.ID, fmt.Sprintf("%s->%s", current.Status, next))
	return *saved, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, status string, page int, size int) (domain.Page[domain.Order], error) {
	filter := domain.OrderFilter{}
	if strings.TrimSpace(status) != "" {
		normalized, ok := normalizeEnum(status, domain.OrderPending, domain.OrderProcessing, domain.OrderCompleted, domain.OrderCancelled)
		if !ok {
			return domain.Page[domain.Order]{}, store.Invalid("invalid order status %q", status)
		}
		filter.Status = normalized
	}
	filter.Offset, filter.Limit, page, size = pageWindow(page, size)

	items, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return domain.Page[domain.Order]{Items: items, Total: total, Page: page, Size: size}, nil
}

// DeleteOrder removes the order and its items. Consumed stock is not
// returned.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "order_delete", "order", id, "deleted")
	return nil
}
