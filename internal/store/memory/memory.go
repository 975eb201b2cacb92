package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
	"cafeops/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	employees     map[string]domain.Employee
	usersByName   map[string]domain.UserAccount
	attendance    map[string]domain.Attendance
	ingredients   map[string]domain.Ingredient
	transactions  []domain.IngredientTransaction
	products      map[string]domain.Product
	orders        map[string]domain.Order
	salaries      map[string]domain.Salary
	salaryHistory []domain.SalaryHistory
	auditLogs     []domain.AuditLog
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		employees:   make(map[string]domain.Employee),
		usersByName: make(map[string]domain.UserAccount),
		attendance:  make(map[string]domain.Attendance),
		ingredients: make(map[string]domain.Ingredient),
		products:    make(map[string]domain.Product),
		orders:      make(map[string]domain.Order),
		salaries:    make(map[string]domain.Salary),
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func paginate[T any](items []T, offset int, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func inRange(t time.Time, from *time.Time, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// Employees

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee, account *domain.UserAccount) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if _, exists := s.employees[employee.ID]; exists {
		return nil, store.Duplicate("employee %s already exists", employee.ID)
	}
	if err := s.checkEmailLocked(employee.Email, ""); err != nil {
		return nil, err
	}
	if account != nil {
		username := normalizeUsername(account.Username)
		if _, exists := s.usersByName[username]; exists {
			return nil, store.Duplicate("username '%s' already exists", username)
		}
		stored := *account
		stored.Username = username
		stored.EmployeeID = employee.ID
		stored.Roles = slices.Clone(account.Roles)
		stored.CreatedAt = stamp(stored.CreatedAt)
		s.usersByName[username] = stored
		employee.Username = username
	}
	employee.CreatedAt = stamp(employee.CreatedAt)
	if employee.UpdatedAt.IsZero() {
		employee.UpdatedAt = employee.CreatedAt
	}
	s.employees[employee.ID] = employee
	created := employee
	return &created, nil
}

func (s *Store) checkEmailLocked(email string, exceptID string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	for id, existing := range s.employees {
		if id != exceptID && strings.EqualFold(existing.Email, email) {
			return store.Duplicate("email '%s' is already in use", email)
		}
	}
	return nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, ok := s.employees[id]
	if !ok {
		return nil, store.Missing("employee", id)
	}
	return &employee, nil
}

func (s *Store) ListEmployees(_ context.Context, status string) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Employee, 0, len(s.employees))
	for _, employee := range s.employees {
		if status != "" && !strings.EqualFold(employee.Status, status) {
			continue
		}
		result = append(result, employee)
	}
	slices.SortFunc(result, func(a, b domain.Employee) int {
		if c := strings.Compare(a.FullName, b.FullName); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) UpdateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.employees[employee.ID]
	if !ok {
		return nil, store.Missing("employee", employee.ID)
	}
	if err := s.checkEmailLocked(employee.Email, employee.ID); err != nil {
		return nil, err
	}
	employee.Username = existing.Username
	employee.CreatedAt = existing.CreatedAt
	employee.UpdatedAt = stamp(employee.UpdatedAt)
	s.employees[employee.ID] = employee
	updated := employee
	return &updated, nil
}

func (s *Store) DeleteEmployee(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[id]; !ok {
		return store.Missing("employee", id)
	}
	for _, order := range s.orders {
		if order.EmployeeID == id {
			return store.Invalid("employee has orders; mark the employee Inactive instead")
		}
	}
	for _, txn := range s.transactions {
		if txn.EmployeeID == id {
			return store.Invalid("employee has ingredient transactions; mark the employee Inactive instead")
		}
	}
	for _, salary := range s.salaries {
		if salary.EmployeeID == id {
			return store.Invalid("employee has salary records; mark the employee Inactive instead")
		}
	}
	for _, entry := range s.salaryHistory {
		if entry.ChangedBy == id {
			return store.Invalid("employee has salary history entries; mark the employee Inactive instead")
		}
	}
	for attendanceID, row := range s.attendance {
		if row.EmployeeID == id {
			delete(s.attendance, attendanceID)
		}
	}
	for username, user := range s.usersByName {
		if user.EmployeeID == id {
			delete(s.usersByName, username)
		}
	}
	delete(s.employees, id)
	return nil
}

// Users

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByName[normalizeUsername(username)]
	if !ok {
		return nil, store.Missing("user", username)
	}
	if employee, ok := s.employees[user.EmployeeID]; ok && employee.Status != domain.EmployeeActive {
		user.Active = false
	}
	user.Roles = slices.Clone(user.Roles)
	return &user, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeUsername(username)
	user, ok := s.usersByName[key]
	if !ok {
		return store.Missing("user", username)
	}
	user.Password = password
	s.usersByName[key] = user
	return nil
}

// Attendance

func (s *Store) withEmployeeName(row domain.Attendance) domain.Attendance {
	if employee, ok := s.employees[row.EmployeeID]; ok {
		row.EmployeeName = employee.FullName
	}
	return row
}

func (s *Store) findAttendanceLocked(employeeID string, date time.Time) (domain.Attendance, bool) {
	for _, row := range s.attendance {
		if row.EmployeeID == employeeID && row.Date.Equal(date) {
			return row, true
		}
	}
	return domain.Attendance{}, false
}

func (s *Store) CreateAttendance(_ context.Context, row domain.Attendance) (*domain.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[row.EmployeeID]; !ok {
		return nil, store.Missing("employee", row.EmployeeID)
	}
	if _, exists := s.findAttendanceLocked(row.EmployeeID, row.Date); exists {
		return nil, store.Duplicate("attendance already recorded for employee %s on %s", row.EmployeeID, row.Date.Format(time.DateOnly))
	}
	if row.ID == "" {
		row.ID = xid.New("att")
	}
	row.CreatedAt = stamp(row.CreatedAt)
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	s.attendance[row.ID] = row
	created := s.withEmployeeName(row)
	return &created, nil
}

func (s *Store) UpdateAttendance(_ context.Context, row domain.Attendance) (*domain.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.attendance[row.ID]
	if !ok {
		return nil, store.Missing("attendance", row.ID)
	}
	if other, exists := s.findAttendanceLocked(row.EmployeeID, row.Date); exists && other.ID != row.ID {
		return nil, store.Duplicate("attendance already recorded for employee %s on %s", row.EmployeeID, row.Date.Format(time.DateOnly))
	}
	row.CreatedAt = existing.CreatedAt
	row.UpdatedAt = stamp(row.UpdatedAt)
	s.attendance[row.ID] = row
	updated := s.withEmployeeName(row)
	return &updated, nil
}

func (s *Store) CloseAttendance(_ context.Context, row domain.Attendance) (*domain.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.attendance[row.ID]
	if !ok {
		return nil, store.Missing("attendance", row.ID)
	}
	if existing.CheckOutTime != nil {
		return nil, store.Invalid("employee has already checked out today")
	}
	existing.CheckOutTime = row.CheckOutTime
	existing.WorkingHours = row.WorkingHours
	existing.OvertimeHours = row.OvertimeHours
	existing.Notes = row.Notes
	existing.UpdatedAt = stamp(row.UpdatedAt)
	s.attendance[row.ID] = existing
	closed := s.withEmployeeName(existing)
	return &closed, nil
}

func (s *Store) GetAttendance(_ context.Context, id string) (*domain.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.attendance[id]
	if !ok {
		return nil, store.Missing("attendance", id)
	}
	found := s.withEmployeeName(row)
	return &found, nil
}

func (s *Store) FindAttendance(_ context.Context, employeeID string, date time.Time) (*domain.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.findAttendanceLocked(employeeID, date)
	if !ok {
		return nil, store.Missing("attendance for employee", employeeID)
	}
	found := s.withEmployeeName(row)
	return &found, nil
}

func (s *Store) ListAttendance(_ context.Context, filter domain.AttendanceFilter) ([]domain.Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Attendance, 0)
	for _, row := range s.attendance {
		if filter.EmployeeID != "" && row.EmployeeID != filter.EmployeeID {
			continue
		}
		if !inRange(row.Date, filter.From, filter.To) {
			continue
		}
		result = append(result, s.withEmployeeName(row))
	}
	slices.SortFunc(result, func(a, b domain.Attendance) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.EmployeeName, b.EmployeeName)
	})
	return result, nil
}

func (s *Store) SumWorkingHours(_ context.Context, employeeID string, from time.Time, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, row := range s.attendance {
		if row.EmployeeID == employeeID && inRange(row.Date, &from, &to) {
			total = total.Add(row.WorkingHours)
		}
	}
	return total, nil
}

func (s *Store) DeleteAttendance(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attendance[id]; !ok {
		return store.Missing("attendance", id)
	}
	delete(s.attendance, id)
	return nil
}

// Ingredients

func withLowStock(ingredient domain.Ingredient) domain.Ingredient {
	ingredient.IsLowStock = ingredient.LowStock()
	return ingredient
}

func (s *Store) checkIngredientNameLocked(name string, exceptID string) error {
	for id, existing := range s.ingredients {
		if id != exceptID && strings.EqualFold(existing.Name, name) {
			return store.Duplicate("ingredient with name '%s' already exists", name)
		}
	}
	return nil
}

func (s *Store) CreateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIngredientNameLocked(ingredient.Name, ""); err != nil {
		return nil, err
	}
	if ingredient.ID == "" {
		ingredient.ID = xid.New("ing")
	}
	ingredient.CreatedAt = stamp(ingredient.CreatedAt)
	if ingredient.UpdatedAt.IsZero() {
		ingredient.UpdatedAt = ingredient.CreatedAt
	}
	s.ingredients[ingredient.ID] = ingredient
	created := withLowStock(ingredient)
	return &created, nil
}

func (s *Store) GetIngredient(_ context.Context, id string) (*domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredient, ok := s.ingredients[id]
	if !ok {
		return nil, store.Missing("ingredient", id)
	}
	found := withLowStock(ingredient)
	return &found, nil
}

func (s *Store) UpdateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ingredients[ingredient.ID]
	if !ok {
		return nil, store.Missing("ingredient", ingredient.ID)
	}
	if err := s.checkIngredientNameLocked(ingredient.Name, ingredient.ID); err != nil {
		return nil, err
	}
	ingredient.Quantity = existing.Quantity
	ingredient.CreatedAt = existing.CreatedAt
	ingredient.UpdatedAt = stamp(ingredient.UpdatedAt)
	s.ingredients[ingredient.ID] = ingredient
	updated := withLowStock(ingredient)
	return &updated, nil
}

func (s *Store) DeleteIngredient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ingredients[id]; !ok {
		return store.Missing("ingredient", id)
	}
	for _, product := range s.products {
		for _, line := range product.Ingredients {
			if line.IngredientID == id {
				return store.Invalid("ingredient is used by product '%s'", product.Name)
			}
		}
	}
	for _, txn := range s.transactions {
		if txn.IngredientID == id {
			return store.Invalid("ingredient has recorded transactions")
		}
	}
	delete(s.ingredients, id)
	return nil
}

func (s *Store) ListIngredients(_ context.Context, search string, offset int, limit int) ([]domain.Ingredient, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	matched := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, ingredient := range s.ingredients {
		if needle != "" && !strings.Contains(strings.ToLower(ingredient.Name), needle) {
			continue
		}
		matched = append(matched, withLowStock(ingredient))
	}
	slices.SortFunc(matched, func(a, b domain.Ingredient) int {
		return strings.Compare(a.Name, b.Name)
	})
	return paginate(matched, offset, limit), len(matched), nil
}

func (s *Store) ListLowStockIngredients(_ context.Context) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Ingredient, 0)
	for _, ingredient := range s.ingredients {
		if ingredient.LowStock() {
			result = append(result, withLowStock(ingredient))
		}
	}
	slices.SortFunc(result, func(a, b domain.Ingredient) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) ApplyIngredientTransaction(_ context.Context, txn domain.IngredientTransaction) (*domain.Ingredient, *domain.IngredientTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ingredient, ok := s.ingredients[txn.IngredientID]
	if !ok {
		return nil, nil, store.Missing("ingredient", txn.IngredientID)
	}
	if _, ok := s.employees[txn.EmployeeID]; !ok {
		return nil, nil, store.Missing("employee", txn.EmployeeID)
	}

	switch txn.Type {
	case domain.TransactionImport:
		ingredient.Quantity = ingredient.Quantity.Add(txn.Quantity)
	case domain.TransactionExport:
		if txn.Quantity.GreaterThan(ingredient.Quantity) {
			return nil, nil, store.ExportShortfall(ingredient.Name, ingredient.Quantity, txn.Quantity)
		}
		ingredient.Quantity = ingredient.Quantity.Sub(txn.Quantity)
	default:
		return nil, nil, store.Invalid("transaction type must be either IMPORT or EXPORT")
	}

	if txn.ID == "" {
		txn.ID = xid.New("itx")
	}
	txn.TransactionDate = stamp(txn.TransactionDate)
	txn.IngredientName = ingredient.Name
	ingredient.UpdatedAt = txn.TransactionDate
	s.ingredients[ingredient.ID] = ingredient
	s.transactions = append(s.transactions, txn)

	updated := withLowStock(ingredient)
	recorded := txn
	return &updated, &recorded, nil
}

func (s *Store) ListIngredientTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.IngredientTransaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.IngredientTransaction, 0, len(s.transactions))
	for _, txn := range s.transactions {
		if filter.IngredientID != "" && txn.IngredientID != filter.IngredientID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		if ingredient, ok := s.ingredients[txn.IngredientID]; ok {
			txn.IngredientName = ingredient.Name
		}
		matched = append(matched, txn)
	}
	slices.SortStableFunc(matched, func(a, b domain.IngredientTransaction) int {
		return b.TransactionDate.Compare(a.TransactionDate)
	})
	return paginate(matched, filter.Offset, filter.Limit), len(matched), nil
}

// Products

func (s *Store) withRecipe(product domain.Product) domain.Product {
	lines := make([]domain.ProductIngredient, 0, len(product.Ingredients))
	for _, line := range product.Ingredients {
		if ingredient, ok := s.ingredients[line.IngredientID]; ok {
			line.IngredientName = ingredient.Name
			line.Unit = ingredient.Unit
			line.CurrentQuantity = ingredient.Quantity
			line.MinimumStock = ingredient.MinimumStock
			line.PricePerUnit = ingredient.PricePerUnit
			line.IsLowStock = ingredient.LowStock()
		}
		lines = append(lines, line)
	}
	product.Ingredients = lines
	return product
}

func (s *Store) checkRecipeLocked(lines []domain.ProductIngredient) error {
	for _, line := range lines {
		if _, ok := s.ingredients[line.IngredientID]; !ok {
			return store.Missing("ingredient", line.IngredientID)
		}
	}
	return nil
}

func (s *Store) checkProductNameLocked(name string, exceptID string) error {
	for id, existing := range s.products {
		if id != exceptID && strings.EqualFold(existing.Name, name) {
			return store.Duplicate("product with name '%s' already exists", name)
		}
	}
	return nil
}

func bareRecipe(lines []domain.ProductIngredient) []domain.ProductIngredient {
	bare := make([]domain.ProductIngredient, 0, len(lines))
	for _, line := range lines {
		bare = append(bare, domain.ProductIngredient{IngredientID: line.IngredientID, QuantityRequired: line.QuantityRequired})
	}
	return bare
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProductNameLocked(product.Name, ""); err != nil {
		return nil, err
	}
	if err := s.checkRecipeLocked(product.Ingredients); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.CreatedAt = stamp(product.CreatedAt)
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}
	product.Ingredients = bareRecipe(product.Ingredients)
	s.products[product.ID] = product
	created := s.withRecipe(product)
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.Missing("product", id)
	}
	found := s.withRecipe(product)
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product, replaceRecipe bool) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.Missing("product", product.ID)
	}
	if err := s.checkProductNameLocked(product.Name, product.ID); err != nil {
		return nil, err
	}
	if replaceRecipe {
		if err := s.checkRecipeLocked(product.Ingredients); err != nil {
			return nil, err
		}
		product.Ingredients = bareRecipe(product.Ingredients)
	} else {
		product.Ingredients = existing.Ingredients
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = stamp(product.UpdatedAt)
	s.products[product.ID] = product
	updated := s.withRecipe(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.Missing("product", id)
	}
	for _, order := range s.orders {
		for _, item := range order.Items {
			if item.ProductID == id {
				return store.Invalid("product has been ordered; mark it Unavailable instead")
			}
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		if filter.Category != "" && !strings.EqualFold(product.Category, filter.Category) {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(product.Status, filter.Status) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(product.Name), needle) {
			continue
		}
		matched = append(matched, s.withRecipe(product))
	}
	slices.SortFunc(matched, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return paginate(matched, filter.Offset, filter.Limit), len(matched), nil
}

// Orders

func cloneOrder(order domain.Order) *domain.Order {
	order.Items = slices.Clone(order.Items)
	return &order
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order, reservations []domain.StockReservation) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[order.EmployeeID]; !ok {
		return nil, store.Missing("employee", order.EmployeeID)
	}
	for _, item := range order.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, store.Missing("product", item.ProductID)
		}
	}
	for _, reservation := range reservations {
		ingredient, ok := s.ingredients[reservation.IngredientID]
		if !ok {
			return nil, store.Missing("ingredient", reservation.IngredientID)
		}
		if ingredient.Quantity.LessThan(reservation.Quantity) {
			return nil, store.OrderShortfall(ingredient.Name, reservation.Quantity, ingredient.Quantity)
		}
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	order.OrderDate = stamp(order.OrderDate)
	order.UpdatedAt = order.OrderDate
	for _, reservation := range reservations {
		ingredient := s.ingredients[reservation.IngredientID]
		ingredient.Quantity = ingredient.Quantity.Sub(reservation.Quantity)
		ingredient.UpdatedAt = order.OrderDate
		s.ingredients[ingredient.ID] = ingredient
	}
	items := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if item.ID == "" {
			item.ID = xid.New("oit")
		}
		items = append(items, item)
	}
	order.Items = items
	s.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.Missing("order", id)
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.From != nil && order.OrderDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !order.OrderDate.Before(*filter.To) {
			continue
		}
		matched = append(matched, *cloneOrder(order))
	}
	slices.SortFunc(matched, func(a, b domain.Order) int {
		if c := b.OrderDate.Compare(a.OrderDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return paginate(matched, filter.Offset, filter.Limit), len(matched), nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, expected string, next string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.Missing("order", id)
	}
	if order.Status != expected {
		return nil, store.Invalid("order %s is %s, not %s", id, order.Status, expected)
	}
	order.Status = next
	order.UpdatedAt = stamp(at)
	s.orders[id] = order
	return cloneOrder(order), nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return store.Missing("order", id)
	}
	delete(s.orders, id)
	return nil
}

func (s *Store) ListPendingOrdersBefore(_ context.Context, cutoff time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.Status == domain.OrderPending && order.OrderDate.Before(cutoff) {
			result = append(result, *cloneOrder(order))
		}
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		return a.OrderDate.Compare(b.OrderDate)
	})
	return result, nil
}

func (s *Store) CountOrders(_ context.Context, status string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status == "" {
		return len(s.orders), nil
	}
	count := 0
	for _, order := range s.orders {
		if order.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *Store) SumRevenue(_ context.Context, from time.Time, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, order := range s.orders {
		if order.Status != domain.OrderCompleted {
			continue
		}
		if order.OrderDate.Before(from) || !order.OrderDate.Before(to) {
			continue
		}
		total = total.Add(order.TotalAmount)
	}
	return total, nil
}

// Salaries

func (s *Store) withSalaryEmployee(salary domain.Salary) domain.Salary {
	if employee, ok := s.employees[salary.EmployeeID]; ok {
		salary.EmployeeName = employee.FullName
	}
	return salary
}

func (s *Store) CreateSalary(_ context.Context, salary domain.Salary) (*domain.Salary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[salary.EmployeeID]; !ok {
		return nil, store.Missing("employee", salary.EmployeeID)
	}
	for _, existing := range s.salaries {
		if existing.EmployeeID == salary.EmployeeID && existing.Month == salary.Month && existing.Year == salary.Year {
			return nil, store.Duplicate("salary already exists for employee %s in %02d/%d", salary.EmployeeID, salary.Month, salary.Year)
		}
	}
	if salary.ID == "" {
		salary.ID = xid.New("sal")
	}
	salary.CreatedAt = stamp(salary.CreatedAt)
	if salary.UpdatedAt.IsZero() {
		salary.UpdatedAt = salary.CreatedAt
	}
	s.salaries[salary.ID] = salary
	created := s.withSalaryEmployee(salary)
	return &created, nil
}

func (s *Store) GetSalary(_ context.Context, id string) (*domain.Salary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	salary, ok := s.salaries[id]
	if !ok {
		return nil, store.Missing("salary", id)
	}
	found := s.withSalaryEmployee(salary)
	return &found, nil
}

func (s *Store) FindSalary(_ context.Context, employeeID string, month int, year int) (*domain.Salary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, salary := range s.salaries {
		if salary.EmployeeID == employeeID && salary.Month == month && salary.Year == year {
			found := s.withSalaryEmployee(salary)
			return &found, nil
		}
	}
	return nil, store.Missing("salary for employee", employeeID)
}

func (s *Store) ListSalaries(_ context.Context, filter domain.SalaryFilter) ([]domain.Salary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Salary, 0)
	for _, salary := range s.salaries {
		if filter.EmployeeID != "" && salary.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Month != 0 && salary.Month != filter.Month {
			continue
		}
		if filter.Year != 0 && salary.Year != filter.Year {
			continue
		}
		if filter.Status != "" && salary.Status != filter.Status {
			continue
		}
		result = append(result, s.withSalaryEmployee(salary))
	}
	slices.SortFunc(result, func(a, b domain.Salary) int {
		if a.Year != b.Year {
			return b.Year - a.Year
		}
		if a.Month != b.Month {
			return b.Month - a.Month
		}
		return strings.Compare(a.EmployeeName, b.EmployeeName)
	})
	return result, nil
}

func (s *Store) UpdateSalary(_ context.Context, salary domain.Salary) (*domain.Salary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, updated, err := s.updateSalaryLocked(salary)
	return updated, err
}

// updateSalaryLocked returns the stored row as it was before the write.
func (s *Store) updateSalaryLocked(salary domain.Salary) (domain.Salary, *domain.Salary, error) {
	existing, ok := s.salaries[salary.ID]
	if !ok {
		return domain.Salary{}, nil, store.Missing("salary", salary.ID)
	}
	if existing.Status == domain.SalaryPaid {
		return domain.Salary{}, nil, store.Invalid("paid salary cannot be modified")
	}
	next := existing
	next.BaseSalary = salary.BaseSalary
	next.Bonus = salary.Bonus
	next.Deduction = salary.Deduction
	next.TotalSalary = salary.TotalSalary
	next.Notes = salary.Notes
	next.UpdatedAt = stamp(salary.UpdatedAt)
	s.salaries[salary.ID] = next
	updated := s.withSalaryEmployee(next)
	return existing, &updated, nil
}

func (s *Store) UpdateSalaryWithHistory(_ context.Context, salary domain.Salary, history domain.SalaryHistory) (*domain.Salary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[history.ChangedBy]; !ok {
		return nil, store.Missing("employee", history.ChangedBy)
	}
	previous, updated, err := s.updateSalaryLocked(salary)
	if err != nil {
		return nil, err
	}
	history.OldBaseSalary = previous.BaseSalary
	history.OldBonus = previous.Bonus
	history.OldDeduction = previous.Deduction
	history.OldTotalSalary = previous.TotalSalary
	if history.ID == "" {
		history.ID = xid.New("shx")
	}
	history.SalaryID = salary.ID
	history.ChangeDate = stamp(history.ChangeDate)
	s.salaryHistory = append(s.salaryHistory, history)
	return updated, nil
}

func (s *Store) MarkSalaryPaid(_ context.Context, id string, at time.Time) (*domain.Salary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	salary, ok := s.salaries[id]
	if !ok {
		return nil, store.Missing("salary", id)
	}
	if salary.Status == domain.SalaryPaid {
		return nil, store.Invalid("salary has already been marked as paid")
	}
	paidAt := stamp(at)
	salary.Status = domain.SalaryPaid
	salary.PaymentDate = &paidAt
	salary.UpdatedAt = paidAt
	s.salaries[id] = salary
	paid := s.withSalaryEmployee(salary)
	return &paid, nil
}

func (s *Store) DeleteSalary(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.salaries[id]; !ok {
		return store.Missing("salary", id)
	}
	delete(s.salaries, id)
	kept := s.salaryHistory[:0]
	for _, entry := range s.salaryHistory {
		if entry.SalaryID != id {
			kept = append(kept, entry)
		}
	}
	s.salaryHistory = kept
	return nil
}

func (s *Store) ListSalaryHistory(_ context.Context, salaryID string) ([]domain.SalaryHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalaryHistory, 0)
	for _, entry := range s.salaryHistory {
		if entry.SalaryID == salaryID {
			result = append(result, entry)
		}
	}
	slices.SortStableFunc(result, func(a, b domain.SalaryHistory) int {
		return b.ChangeDate.Compare(a.ChangeDate)
	})
	return result, nil
}

func (s *Store) SumPaidSalaries(_ context.Context, month int, year int) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, salary := range s.salaries {
		if salary.Month == month && salary.Year == year && salary.Status == domain.SalaryPaid {
			total = total.Add(salary.TotalSalary)
		}
	}
	return total, nil
}

// Audit

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	entry.CreatedAt = stamp(entry.CreatedAt)
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
