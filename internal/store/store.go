package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrDuplicate         = errors.New("duplicate record")
)

type Repository interface {
	EmployeeStore
	UserStore
	AttendanceStore
	IngredientStore
	ProductStore
	OrderStore
	SalaryStore
	AuditStore
}

type EmployeeStore interface {
	// CreateEmployee inserts the employee and, when account is non-nil, its
	// login account in one unit.
	CreateEmployee(ctx context.Context, employee domain.Employee, account *domain.UserAccount) (*domain.Employee, error)
	GetEmployee(ctx context.Context, id string) (*domain.Employee, error)
	ListEmployees(ctx context.Context, status string) ([]domain.Employee, error)
	UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	// DeleteEmployee removes the employee together with its login account.
	DeleteEmployee(ctx context.Context, id string) error
}

type UserStore interface {
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type AttendanceStore interface {
	// CreateAttendance returns ErrDuplicate when the employee already has a
	// row for the date.
	CreateAttendance(ctx context.Context, attendance domain.Attendance) (*domain.Attendance, error)
	UpdateAttendance(ctx context.Context, attendance domain.Attendance) (*domain.Attendance, error)
	// CloseAttendance writes the check-out fields only if the row has no
	// check-out yet, otherwise ErrInvalidRequest.
	CloseAttendance(ctx context.Context, attendance domain.Attendance) (*domain.Attendance, error)
	GetAttendance(ctx context.Context, id string) (*domain.Attendance, error)
	FindAttendance(ctx context.Context, employeeID string, date time.Time) (*domain.Attendance, error)
	ListAttendance(ctx context.Context, filter domain.AttendanceFilter) ([]domain.Attendance, error)
	SumWorkingHours(ctx context.Context, employeeID string, from time.Time, to time.Time) (decimal.Decimal, error)
	DeleteAttendance(ctx context.Context, id string) error
}

type IngredientStore interface {
	CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error)
	// UpdateIngredient never changes the quantity; stock moves only through
	// ApplyIngredientTransaction and CreateOrder.
	UpdateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error)
	DeleteIngredient(ctx context.Context, id string) error
	ListIngredients(ctx context.Context, search string, offset int, limit int) ([]domain.Ingredient, int, error)
	ListLowStockIngredients(ctx context.Context) ([]domain.Ingredient, error)
	// ApplyIngredientTransaction adjusts the stock and records the
	// transaction in one unit. EXPORT beyond the available quantity fails
	// with ErrInsufficientStock and changes nothing.
	ApplyIngredientTransaction(ctx context.Context, txn domain.IngredientTransaction) (*domain.Ingredient, *domain.IngredientTransaction, error)
	ListIngredientTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.IngredientTransaction, int, error)
}

type ProductStore interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// UpdateProduct replaces the recipe only when replaceRecipe is set.
	UpdateProduct(ctx context.Context, product domain.Product, replaceRecipe bool) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
}

type OrderStore interface {
	// CreateOrder checks and decrements every reservation and inserts the
	// order with its items in one unit. Nothing is written on failure.
	CreateOrder(ctx context.Context, order domain.Order, reservations []domain.StockReservation) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int, error)
	// UpdateOrderStatus moves the order from expected to next. It fails with
	// ErrInvalidRequest when the stored status is no longer expected.
	UpdateOrderStatus(ctx context.Context, id string, expected string, next string, at time.Time) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	ListPendingOrdersBefore(ctx context.Context, cutoff time.Time) ([]domain.Order, error)
	CountOrders(ctx context.Context, status string) (int, error)
	SumRevenue(ctx context.Context, from time.Time, to time.Time) (decimal.Decimal, error)
}

type SalaryStore interface {
	// CreateSalary returns ErrDuplicate when the employee already has a row
	// for the period.
	CreateSalary(ctx context.Context, salary domain.Salary) (*domain.Salary, error)
	GetSalary(ctx context.Context, id string) (*domain.Salary, error)
	FindSalary(ctx context.Context, employeeID string, month int, year int) (*domain.Salary, error)
	ListSalaries(ctx context.Context, filter domain.SalaryFilter) ([]domain.Salary, error)
	// UpdateSalary writes the amounts and notes only; status and payment
	// date are owned by MarkSalaryPaid. A Paid row fails with
	// ErrInvalidRequest.
	UpdateSalary(ctx context.Context, salary domain.Salary) (*domain.Salary, error)
	// UpdateSalaryWithHistory is UpdateSalary plus the history row in one
	// unit. The history's old values are taken from the stored row.
	UpdateSalaryWithHistory(ctx context.Context, salary domain.Salary, history domain.SalaryHistory) (*domain.Salary, error)
	// MarkSalaryPaid fails with ErrInvalidRequest if the salary is already
	// paid.
	MarkSalaryPaid(ctx context.Context, id string, at time.Time) (*domain.Salary, error)
	DeleteSalary(ctx context.Context, id string) error
	ListSalaryHistory(ctx context.Context, salaryID string) ([]domain.SalaryHistory, error)
	SumPaidSalaries(ctx context.Context, month int, year int) (decimal.Decimal, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
