package service

import (
	"context"
	"fmt"
	"strings"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
)

func buildRecipe(lines []domain.ProductIngredientRequest) ([]domain.ProductIngredient, error) {
	seen := make(map[string]bool, len(lines))
	recipe := make([]domain.ProductIngredient, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.IngredientID)
		if id == "" {
			return nil, store.Invalid("ingredient_id is required for every recipe line")
		}
		if !line.QuantityRequired.IsPositive() {
			return nil, store.Invalid("quantity_required for ingredient %s must be greater than zero", id)
		}
		if seen[id] {
			return nil, store.Invalid("ingredient %s appears more than once in the recipe", id)
		}
		seen[id] = true
		recipe = append(recipe, domain.ProductIngredient{IngredientID: id, QuantityRequired: line.QuantityRequired})
	}
	return recipe, nil
}

func normalizeProductRequest(req domain.ProductRequest) (domain.ProductRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return req, store.Invalid("name is required")
	}
	if req.Price.IsNegative() {
		return req, store.Invalid("price must not be negative")
	}
	if strings.TrimSpace(req.Status) == "" {
		req.Status = domain.ProductAvailable
	} else {
		status, ok := normalizeEnum(req.Status, domain.ProductAvailable, domain.ProductUnavailable)
		if !ok {
			return req, store.Invalid("status must be Available or Unavailable")
		}
		req.Status = status
	}
	return req, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductRequest) (domain.Product, error) {
	req, err := normalizeProductRequest(req)
	if err != nil {
		return domain.Product{}, err
	}
	recipe, err := buildRecipe(req.Ingredients)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.now().UTC()
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        req.Name,
		Category:    req.Category,
		Price:       req.Price,
		Status:      req.Status,
		Description: req.Description,
		Ingredients: recipe,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Product{}, err
	}
	created.DeriveAvailability()

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%s,ingredients=%d", created.Name, created.Price, len(created.Ingredients)))
	return *created, nil
}

// UpdateProduct replaces the product fields. The recipe is replaced only
// when the request carries an ingredients list.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductRequest) (domain.Product, error) {
	req, err := normalizeProductRequest(req)
	if err != nil {
		return domain.Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	updated.Name = req.Name
	updated.Category = req.Category
	updated.Price = req.Price
	updated.Status = req.Status
	updated.Description = req.Description
	updated.UpdatedAt = s.now().UTC()
	replaceRecipe := req.Ingredients != nil
	if replaceRecipe {
		updated.Ingredients, err = buildRecipe(req.Ingredients)
		if err != nil {
			return domain.Product{}, err
		}
	}

	saved, err := s.repo.UpdateProduct(ctx, updated, replaceRecipe)
	if err != nil {
		return domain.Product{}, err
	}
	saved.DeriveAvailability()

	detail := fmt.Sprintf("status=%s,price=%s", saved.Status, saved.Price)
	if !existing.Price.Equal(saved.Price) {
		detail = fmt.Sprintf("status=%s,price=%s->%s", saved.Status, existing.Price, saved.Price)
	}
	s.logAudit(ctx, "product_update", "product", saved.ID, detail)
	return *saved, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	product.DeriveAvailability()
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter, page int, size int) (domain.Page[domain.Product], error) {
	if strings.TrimSpace(filter.Status) != "" {
		status, ok := normalizeEnum(filter.Status, domain.ProductAvailable, domain.ProductUnavailable)
		if !ok {
			return domain.Page[domain.Product]{}, store.Invalid("status must be Available or Unavailable")
		}
		filter.Status = status
	}
	filter.Offset, filter.Limit, page, size = pageWindow(page, size)

	items, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	for i := range items {
		items[i].DeriveAvailability()
	}
	return domain.Page[domain.Product]{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "deleted")
	return nil
}
