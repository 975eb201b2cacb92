package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
	"cafeops/backend/internal/xid"
)

const ingredientSelect = `
	SELECT id, name, unit, quantity, minimum_stock, price_per_unit, supplier, created_at, updated_at
	FROM ingredients`

func scanIngredient(row rowScanner) (domain.Ingredient, error) {
	var i domain.Ingredient
	err := row.Scan(&i.ID, &i.Name, &i.Unit, &i.Quantity, &i.MinimumStock, &i.PricePerUnit, &i.Supplier, &i.CreatedAt, &i.UpdatedAt)
	i.IsLowStock = i.LowStock()
	return i, err
}

func collectIngredients(rows *sql.Rows) ([]domain.Ingredient, error) {
	defer rows.Close()
	result := make([]domain.Ingredient, 0, 32)
	for rows.Next() {
		ingredient, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ingredient)
	}
	return result, rows.Err()
}

func (s *Store) CreateIngredient(ctx context.Context, i domain.Ingredient) (*domain.Ingredient, error) {
	if i.ID == "" {
		i.ID = xid.New("ing")
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	if i.UpdatedAt.IsZero() {
		i.UpdatedAt = i.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, unit, quantity, minimum_stock, price_per_unit, supplier, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, i.ID, i.Name, i.Unit, i.Quantity, i.MinimumStock, i.PricePerUnit, i.Supplier, i.CreatedAt, i.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Duplicate("ingredient with name '%s' already exists", i.Name)
		}
		return nil, err
	}
	return s.GetIngredient(ctx, i.ID)
}

func (s *Store) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	ingredient, err := scanIngredient(s.db.QueryRowContext(ctx, ingredientSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Missing("ingredient", id)
		}
		return nil, err
	}
	return &ingredient, nil
}

func (s *Store) UpdateIngredient(ctx context.Context, i domain.Ingredient) (*domain.Ingredient, error) {
	if i.UpdatedAt.IsZero() {
		i.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingredients
		SET name = $2, unit = $3, minimum_stock = $4, price_per_unit = $5, supplier = $6, updated_at = $7
		WHERE id = $1
	`, i.ID, i.Name, i.Unit, i.MinimumStock, i.PricePerUnit, i.Supplier, i.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Duplicate("ingredient with name '%s' already exists", i.Name)
		}
		return nil, err
	}
	if ok, err := affectedOne(res); err != nil {
		return nil, err
	} else if !ok {
		return nil, store.Missing("ingredient", i.ID)
	}
	return s.GetIngredient(ctx, i.ID)
}

func (s *Store) DeleteIngredient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ingredients WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.Invalid("ingredient is referenced by recipes or transactions")
		}
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return store.Missing("ingredient", id)
	}
	return nil
}

func (s *Store) ListIngredients(ctx context.Context, search string, offset int, limit int) ([]domain.Ingredient, int, error) {
	var w where
	if search != "" {
		w.add("name ILIKE '%%' || $%d || '%%'", search)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingredients`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	pageSQL, args := w.page(offset, limit)
	rows, err := s.db.QueryContext(ctx, ingredientSelect+w.String()+` ORDER BY name`+pageSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	ingredients, err := collectIngredients(rows)
	return ingredients, total, err
}

func (s *Store) ListLowStockIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, ingredientSelect+` WHERE quantity < minimum_stock ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collectIngredients(rows)
}

func (s *Store) ApplyIngredientTransaction(ctx context.Context, txn domain.IngredientTransaction) (*domain.Ingredient, *domain.IngredientTransaction, error) {
	if txn.ID == "" {
		txn.ID = xid.New("itx")
	}
	if txn.TransactionDate.IsZero() {
		txn.TransactionDate = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.Ingredient
	err = tx.QueryRowContext(ctx, `SELECT name, quantity FROM ingredients WHERE id = $1 FOR UPDATE`, txn.IngredientID).
		Scan(&current.Name, &current.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.Missing("ingredient", txn.IngredientID)
		}
		return nil, nil, err
	}

	delta := txn.Quantity
	switch txn.Type {
	case domain.TransactionImport:
	case domain.TransactionExport:
		if txn.Quantity.GreaterThan(current.Quantity) {
			return nil, nil, store.ExportShortfall(current.Name, current.Quantity, txn.Quantity)
		}
		delta = txn.Quantity.Neg()
	default:
		return nil, nil, store.Invalid("transaction type must be either IMPORT or EXPORT")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE ingredients SET quantity = quantity + $2, updated_at = $3 WHERE id = $1
	`, txn.IngredientID, delta, txn.TransactionDate); err != nil {
		return nil, nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ingredient_transactions (id, ingredient_id, employee_id, transaction_type, quantity, notes, transaction_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, txn.ID, txn.IngredientID, txn.EmployeeID, txn.Type, txn.Quantity, txn.Notes, txn.TransactionDate)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, nil, store.Missing("employee", txn.EmployeeID)
		}
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	ingredient, err := s.GetIngredient(ctx, txn.IngredientID)
	if err != nil {
		return nil, nil, err
	}
	txn.IngredientName = ingredient.Name
	return ingredient, &txn, nil
}

func (s *Store) ListIngredientTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.IngredientTransaction, int, error) {
	var w where
	if filter.IngredientID != "" {
		w.add("t.ingredient_id = $%d", filter.IngredientID)
	}
	if filter.Type != "" {
		w.add("t.transaction_type = $%d", filter.Type)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingredient_transactions t`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	pageSQL, args := w.page(filter.Offset, filter.Limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.ingredient_id, i.name, t.employee_id, t.transaction_type, t.quantity, t.notes, t.transaction_date
		FROM ingredient_transactions t
		JOIN ingredients i ON i.id = t.ingredient_id`+w.String()+`
		ORDER BY t.transaction_date DESC, t.id`+pageSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := make([]domain.IngredientTransaction, 0, 32)
	for rows.Next() {
		var t domain.IngredientTransaction
		if err := rows.Scan(&t.ID, &t.IngredientID, &t.IngredientName, &t.EmployeeID, &t.Type, &t.Quantity, &t.Notes, &t.TransactionDate); err != nil {
			return nil, 0, err
		}
		result = append(result, t)
	}
	return result, total, rows.Err()
}

// Products

const productSelect = `
	SELECT id, name, category, price, status, description, created_at, updated_at
	FROM products`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Status, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) loadRecipes(ctx context.Context, q execer, productIDs []string) (map[string][]domain.ProductIngredient, error) {
	recipes := make(map[string][]domain.ProductIngredient, len(productIDs))
	if len(productIDs) == 0 {
		return recipes, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT pi.product_id, pi.ingredient_id, i.name, i.unit, pi.quantity_required,
			i.quantity, i.minimum_stock, i.price_per_unit
		FROM product_ingredients pi
		JOIN ingredients i ON i.id = pi.ingredient_id
		WHERE pi.product_id = ANY($1)
		ORDER BY pi.product_id, pi.position
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var line domain.ProductIngredient
		if err := rows.Scan(&productID, &line.IngredientID, &line.IngredientName, &line.Unit, &line.QuantityRequired,
			&line.CurrentQuantity, &line.MinimumStock, &line.PricePerUnit); err != nil {
			return nil, err
		}
		line.IsLowStock = line.CurrentQuantity.LessThan(line.MinimumStock)
		recipes[productID] = append(recipes[productID], line)
	}
	return recipes, rows.Err()
}

func insertRecipe(ctx context.Context, tx *sql.Tx, productID string, lines []domain.ProductIngredient) error {
	for position, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_ingredients (product_id, ingredient_id, quantity_required, position)
			VALUES ($1,$2,$3,$4)
		`, productID, line.IngredientID, line.QuantityRequired, position)
		if err != nil {
			if isForeignKeyViolation(err) {
				return store.Missing("ingredient", line.IngredientID)
			}
			if isUniqueViolation(err) {
				return store.Invalid("ingredient %s appears twice in the recipe", line.IngredientID)
			}
			return err
		}
	}
	return nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID == "" {
		p.ID = xid.New("prd")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, status, description, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, p.Name, p.Category, p.Price, p.Status, p.Description, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Duplicate("product with name '%s' already exists", p.Name)
		}
		return nil, err
	}
	if err := insertRecipe(ctx, tx, p.ID, p.Ingredients); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, productSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.Missing("product", id)
		}
		return nil, err
	}
	recipes, err := s.loadRecipes(ctx, s.db, []string{id})
	if err != nil {
		return nil, err
	}
	product.Ingredients = recipes[id]
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product, replaceRecipe bool) (*domain.Product, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, status = $5, description = $6, updated_at = $7
		WHERE id = $1
	`, p.ID, p.Name, p.Category, p.Price, p.Status, p.Description, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Duplicate("product with name '%s' already exists", p.Name)
		}
		return nil, err
	}
	if ok, err := affectedOne(res); err != nil {
		return nil, err
	} else if !ok {
		return nil, store.Missing("product", p.ID)
	}
	if replaceRecipe {
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_ingredients WHERE product_id = $1`, p.ID); err != nil {
			return nil, err
		}
		if err := insertRecipe(ctx, tx, p.ID, p.Ingredients); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.Invalid("product has been ordered; mark it Unavailable instead")
		}
		return err
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return store.Missing("product", id)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	var w where
	if filter.Category != "" {
		w.add("lower(category) = lower($%d)", filter.Category)
	}
	if filter.Status != "" {
		w.add("lower(status) = lower($%d)", filter.Status)
	}
	if filter.Search != "" {
		w.add("name ILIKE '%%' || $%d || '%%'", filter.Search)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	pageSQL, args := w.page(filter.Offset, filter.Limit)
	rows, err := s.db.QueryContext(ctx, productSelect+w.String()+` ORDER BY name`+pageSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	products := make([]domain.Product, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, 0, err
		}
		products = append(products, product)
		ids = append(ids, product.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, 0, err
	}
	_ = rows.Close()

	recipes, err := s.loadRecipes(ctx, s.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range products {
		products[i].Ingredients = recipes[products[i].ID]
	}
	return products, total, nil
}
