package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
)

func validateIngredientFields(name string, unit string, minimum decimal.Decimal, price decimal.Decimal) error {
	if name == "" {
		return store.Invalid("name is required")
	}
	if unit == "" {
		return store.Invalid("unit is required")
	}
	if minimum.IsNegative() {
		return store.Invalid("minimum_stock must not be negative")
	}
	if price.IsNegative() {
		return store.Invalid("price_per_unit must not be negative")
	}
	return nil
}

func (s *Service) CreateIngredient(ctx context.Context, req domain.IngredientRequest) (domain.Ingredient, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if err := validateIngredientFields(req.Name, req.Unit, req.MinimumStock, req.PricePerUnit); err != nil {
		return domain.Ingredient{}, err
	}
	if req.Quantity.IsNegative() {
		return domain.Ingredient{}, store.Invalid("quantity must not be negative")
	}

	now := s.now().UTC()
	created, err := s.repo.CreateIngredient(ctx, domain.Ingredient{
		Name:         req.Name,
		Unit:         req.Unit,
		Quantity:     req.Quantity,
		MinimumStock: req.MinimumStock,
		PricePerUnit: req.PricePerUnit,
		Supplier:     strings.TrimSpace(req.Supplier),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.logAudit(ctx, "ingredient_create", "ingredient", created.ID, fmt.Sprintf("name=%s,quantity=%s", created.Name, created.Quantity))
	return *created, nil
}

// UpdateIngredient changes the descriptive fields. Stock moves only through
// transactions and orders.
func (s *Service) UpdateIngredient(ctx context.Context, id string, req domain.IngredientUpdateRequest) (domain.Ingredient, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if err := validateIngredientFields(req.Name, req.Unit, req.MinimumStock, req.PricePerUnit); err != nil {
		return domain.Ingredient{}, err
	}

	existing, err := s.repo.GetIngredient(ctx, id)
	if err != nil {
		return domain.Ingredient{}, err
	}
	updated := *existing
	updated.Name = req.Name
	updated.Unit = req.Unit
	updated.MinimumStock = req.MinimumStock
	updated.PricePerUnit = req.PricePerUnit
	updated.Supplier = strings.TrimSpace(req.Supplier)
	updated.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpdateIngredient(ctx, updated)
	if err != nil {
		return domain.Ingredient{}, err
	}

	s.logAudit(ctx, "ingredient_update", "ingredient", saved.ID, fmt.Sprintf("name=%s,price=%s", saved.Name, saved.PricePerUnit))
	return *saved, nil
}

func (s *Service) GetIngredient(ctx context.Context, id string) (domain.Ingredient, error) {
	ingredient, err := s.repo.GetIngredient(ctx, id)
	if err != nil {
		return domain.Ingredient{}, err
	}
	return *ingredient, nil
}

func (s *Service) DeleteIngredient(ctx context.Context, id string) error {
	if err := s.repo.DeleteIngredient(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "ingredient_delete", "ingredient", id, "deleted")
	return nil
}

func (s *Service) ListIngredients(ctx context.Context, search string, page int, size int) (domain.Page[domain.Ingredient], error) {
	offset, limit, page, size := pageWindow(page, size)
	items, total, err := s.repo.ListIngredients(ctx, strings.TrimSpace(search), offset, limit)
	if err != nil {
		return domain.Page[domain.Ingredient]{}, err
	}
	return domain.Page[domain.Ingredient]{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *Service) LowStockIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	return s.repo.ListLowStockIngredients(ctx)
}

// RecordTransaction imports or exports stock for one ingredient. The
// employee defaults to the acting user.
func (s *Service) RecordTransaction(ctx context.Context, req domain.IngredientTransactionRequest) (domain.IngredientTransactionResponse, error) {
	txnType := strings.ToUpper(strings.TrimSpace(req.Type))
	if txnType != domain.TransactionImport && txnType != domain.TransactionExport {
		return domain.IngredientTransactionResponse{}, store.Invalid("transaction type must be either IMPORT or EXPORT")
	}
	if !req.Quantity.IsPositive() {
		return domain.IngredientTransactionResponse{}, store.Invalid("quantity must be greater than zero")
	}
	if strings.TrimSpace(req.IngredientID) == "" {
		return domain.IngredientTransactionResponse{}, store.Invalid("ingredient_id is required")
	}

	employeeID := strings.TrimSpace(req.EmployeeID)
	if employeeID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			employeeID = actor.EmployeeID
		}
	}
	if employeeID == "" {
		return domain.IngredientTransactionResponse{}, store.Invalid("employee_id is required")
	}
	if _, err := s.repo.GetEmployee(ctx, employeeID); err != nil {
		return domain.IngredientTransactionResponse{}, err
	}

	ingredient, txn, err := s.repo.ApplyIngredientTransaction(ctx, domain.IngredientTransaction{
		IngredientID:    req.IngredientID,
		EmployeeID:      employeeID,
		Type:            txnType,
		Quantity:        req.Quantity,
		Notes:           strings.TrimSpace(req.Notes),
		TransactionDate: s.now().UTC(),
	})
	if err != nil {
		return domain.IngredientTransactionResponse{}, err
	}

	if ingredient.LowStock() {
		log.Printf("[inventory] WARN: ingredient %s (%s) is below minimum stock: %s < %s", ingredient.Name, ingredient.ID, ingredient.Quantity, ingredient.MinimumStock)
	}
	s.logAudit(ctx, "ingredient_"+strings.ToLower(txnType), "ingredient", ingredient.ID, fmt.Sprintf("quantity=%s,stock=%s", txn.Quantity, ingredient.Quantity))
	return domain.IngredientTransactionResponse{Transaction: *txn, Ingredient: *ingredient}, nil
}

func (s *Service) ListTransactions(ctx context.Context, ingredientID string, txnType string, page int, size int) (domain.Page[domain.IngredientTransaction], error) {
	txnType = strings.ToUpper(strings.TrimSpace(txnType))
	if txnType != "" && txnType != domain.TransactionImport && txnType != domain.TransactionExport {
		return domain.Page[domain.IngredientTransaction]{}, store.Invalid("transaction type must be either IMPORT or EXPORT")
	}
	offset, limit, page, size := pageWindow(page, size)
	items, total, err := s.repo.ListIngredientTransactions(ctx, domain.TransactionFilter{
		IngredientID: strings.TrimSpace(ingredientID),
		Type:         txnType,
		Offset:       offset,
		Limit:        limit,
	})
	if err != nil {
		return domain.Page[domain.IngredientTransaction]{}, err
	}
	return domain.Page[domain.IngredientTransaction]{Items: items, Total: total, Page: page, Size: size}, nil
}
