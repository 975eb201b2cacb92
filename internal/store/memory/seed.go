package memory

import (
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"cafeops/backend/internal/domain"
)

type seedAccount struct {
	username string
	envKey   string
	fallback string
	role     domain.Role
	employee domain.Employee
}

// NewSeeded returns a store with demo staff, stock and menu for dev mode.
// Passwords come from SEED_<ROLE>_PASSWORD and fall back to dev defaults.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	accounts := []seedAccount{
		{"admin", "SEED_ADMIN_PASSWORD", "admin123", domain.RoleAdmin, domain.Employee{
			ID: "emp-admin", FullName: "An Nguyen", Position: "Owner", Email: "owner@cafeops.local",
			Salary: decimal.NewNullDecimal(decimal.NewFromInt(15000000)),
		}},
		{"manager", "SEED_MANAGER_PASSWORD", "manager123", domain.RoleManager, domain.Employee{
			ID: "emp-manager", FullName: "Mai Pham", Position: "Store Manager", Email: "manager@cafeops.local",
			Salary: decimal.NewNullDecimal(decimal.NewFromInt(12000000)),
		}},
		{"barista", "SEED_STAFF_PASSWORD", "staff123", domain.RoleStaff, domain.Employee{
			ID: "emp-barista", FullName: "Huy Le", Position: "Barista", Email: "barista@cafeops.local",
		}},
		{"finance", "SEED_FINANCE_PASSWORD", "finance123", domain.RoleFinance, domain.Employee{
			ID: "emp-finance", FullName: "Thu Vo", Position: "Accountant", Email: "finance@cafeops.local",
			Salary: decimal.NewNullDecimal(decimal.NewFromInt(10000000)),
		}},
	}

	usingDefaults := false
	for _, account := range accounts {
		password := os.Getenv(account.envKey)
		if password == "" {
			password = account.fallback
			usingDefaults = true
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", account.username, err)
		}
		employee := account.employee
		employee.Status = domain.EmployeeActive
		employee.Username = account.username
		employee.CreatedAt = now
		employee.UpdatedAt = now
		s.employees[employee.ID] = employee
		s.usersByName[account.username] = domain.UserAccount{
			Username:   account.username,
			Password:   string(hash),
			EmployeeID: employee.ID,
			Roles:      []domain.Role{account.role},
			Active:     true,
			CreatedAt:  now,
		}
	}
	if usingDefaults {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_*_PASSWORD to override.")
	}

	for _, ingredient := range []domain.Ingredient{
		{ID: "ing-coffee", Name: "Coffee Beans", Unit: "kg", Quantity: decimal.NewFromInt(10), MinimumStock: decimal.NewFromInt(2), PricePerUnit: decimal.NewFromInt(250000), Supplier: "Highland Roasters"},
		{ID: "ing-milk", Name: "Fresh Milk", Unit: "l", Quantity: decimal.NewFromInt(20), MinimumStock: decimal.NewFromInt(5), PricePerUnit: decimal.NewFromInt(32000), Supplier: "Dalat Dairy"},
		{ID: "ing-sugar", Name: "Sugar", Unit: "kg", Quantity: decimal.NewFromInt(8), MinimumStock: decimal.NewFromInt(2), PricePerUnit: decimal.NewFromInt(20000)},
		{ID: "ing-flour", Name: "Flour", Unit: "kg", Quantity: decimal.NewFromInt(5), MinimumStock: decimal.NewFromInt(2), PricePerUnit: decimal.NewFromInt(18000)},
		{ID: "ing-butter", Name: "Butter", Unit: "kg", Quantity: decimal.RequireFromString("1.5"), MinimumStock: decimal.NewFromInt(2), PricePerUnit: decimal.NewFromInt(180000)},
	} {
		ingredient.CreatedAt = now
		ingredient.UpdatedAt = now
		s.ingredients[ingredient.ID] = ingredient
	}

	line := func(ingredientID string, qty string) domain.ProductIngredient {
		return domain.ProductIngredient{IngredientID: ingredientID, QuantityRequired: decimal.RequireFromString(qty)}
	}
	for _, product := range []domain.Product{
		{ID: "prd-espresso", Name: "Espresso", Category: "Coffee", Price: decimal.NewFromInt(35000), Ingredients: []domain.ProductIngredient{
			line("ing-coffee", "0.018"),
		}},
		{ID: "prd-latte", Name: "Latte", Category: "Coffee", Price: decimal.NewFromInt(45000), Ingredients: []domain.ProductIngredient{
			line("ing-coffee", "0.018"), line("ing-milk", "0.2"), line("ing-sugar", "0.01"),
		}},
		{ID: "prd-croissant", Name: "Butter Croissant", Category: "Bakery", Price: decimal.NewFromInt(30000), Ingredients: []domain.ProductIngredient{
			line("ing-flour", "0.08"), line("ing-butter", "0.03"),
		}},
	} {
		product.Status = domain.ProductAvailable
		product.CreatedAt = now
		product.UpdatedAt = now
		s.products[product.ID] = product
	}

	return s
}
