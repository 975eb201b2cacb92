package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EmployeeActive   = "Active"
	EmployeeInactive = "Inactive"
)

type Employee struct {
	ID        string              `json:"id"`
	FullName  string              `json:"full_name"`
	Position  string              `json:"position"`
	Phone     string              `json:"phone"`
	Email     string              `json:"email"`
	HireDate  *time.Time          `json:"hire_date,omitempty"`
	Salary    decimal.NullDecimal `json:"salary"`
	Status    string              `json:"status"`
	Username  string              `json:"username,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type EmployeeCreateRequest struct {
	FullName string           `json:"full_name"`
	Position string           `json:"position"`
	Phone    string           `json:"phone"`
	Email    string           `json:"email"`
	HireDate string           `json:"hire_date"`
	Salary   *decimal.Decimal `json:"salary"`
	Status   string           `json:"status"`
	Username string           `json:"username"`
	Password string           `json:"password"`
	Roles    []string         `json:"roles"`
}

type EmployeeUpdateRequest struct {
	FullName *string          `json:"full_name,omitempty"`
	Position *string          `json:"position,omitempty"`
	Phone    *string          `json:"phone,omitempty"`
	Email    *string          `json:"email,omitempty"`
	HireDate *string          `json:"hire_date,omitempty"`
	Salary   *decimal.Decimal `json:"salary,omitempty"`
	Status   *string          `json:"status,omitempty"`
}

type UserAccount struct {
	Username   string
	Password   string
	EmployeeID string
	Roles      []Role
	Active     bool
	CreatedAt  time.Time
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	EmployeeID  string   `json:"employee_id"`
	Roles       []string `json:"roles"`
	ExpiresAt   string   `json:"expires_at"`
}

type Actor struct {
	Username   string
	EmployeeID string
	Roles      []Role
}

func (a Actor) HasRole(roles ...Role) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

const (
	AttendancePresent = "Present"
	AttendanceLate    = "Late"
	AttendanceAbsent  = "Absent"
)

// Attendance is one row per employee per calendar date. Date carries the
// local calendar day at midnight UTC.
type Attendance struct {
	ID            string          `json:"id"`
	EmployeeID    string          `json:"employee_id"`
	EmployeeName  string          `json:"employee_name,omitempty"`
	Date          time.Time       `json:"date"`
	CheckInTime   *time.Time      `json:"check_in_time,omitempty"`
	CheckOutTime  *time.Time      `json:"check_out_time,omitempty"`
	WorkingHours  decimal.Decimal `json:"working_hours"`
	OvertimeHours decimal.Decimal `json:"overtime_hours"`
	Status        string          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type AttendanceUpsertRequest struct {
	EmployeeID   string     `json:"employee_id"`
	CheckInTime  time.Time  `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
	Status       string     `json:"status,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

type AttendanceFilter struct {
	EmployeeID string
	From       *time.Time
	To         *time.Time
}

type Ingredient struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Quantity     decimal.Decimal `json:"quantity"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Supplier     string          `json:"supplier,omitempty"`
	IsLowStock   bool            `json:"is_low_stock"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// LowStock reports whether the quantity is strictly below the minimum.
func (i Ingredient) LowStock() bool {
	return i.Quantity.LessThan(i.MinimumStock)
}

type IngredientRequest struct {
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Quantity     decimal.Decimal `json:"quantity"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Supplier     string          `json:"supplier"`
}

type IngredientUpdateRequest struct {
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	MinimumStock decimal.Decimal `json:"minimum_stock"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Supplier     string          `json:"supplier"`
}

const (
	TransactionImport = "IMPORT"
	TransactionExport = "EXPORT"
)

type IngredientTransaction struct {
	ID              string          `json:"id"`
	IngredientID    string          `json:"ingredient_id"`
	IngredientName  string          `json:"ingredient_name,omitempty"`
	EmployeeID      string          `json:"employee_id"`
	Type            string          `json:"transaction_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	Notes           string          `json:"notes,omitempty"`
	TransactionDate time.Time       `json:"transaction_date"`
}

type IngredientTransactionRequest struct {
	IngredientID string          `json:"ingredient_id"`
	EmployeeID   string          `json:"employee_id"`
	Type         string          `json:"transaction_type"`
	Quantity     decimal.Decimal `json:"quantity"`
	Notes        string          `json:"notes"`
}

type IngredientTransactionResponse struct {
	Transaction IngredientTransaction `json:"transaction"`
	Ingredient  Ingredient            `json:"ingredient"`
}

type TransactionFilter struct {
	IngredientID string
	Type         string
	Offset       int
	Limit        int
}

const (
	ProductAvailable   = "Available"
	ProductUnavailable = "Unavailable"

	StockIn    = "IN_STOCK"
	StockLow   = "LOW_STOCK"
	StockEmpty = "OUT_OF_STOCK"
)

type Product struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Category           string              `json:"category"`
	Price              decimal.Decimal     `json:"price"`
	Status             string              `json:"status"`
	Description        string              `json:"description,omitempty"`
	Ingredients        []ProductIngredient `json:"ingredients"`
	AvailabilityStatus string              `json:"availability_status"`
	IsAvailable        bool                `json:"is_available"`
	IsLowStock         bool                `json:"is_low_stock"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// ProductIngredient is one recipe line. The stock fields are filled from
// the ingredient when the product is read.
type ProductIngredient struct {
	IngredientID     string          `json:"ingredient_id"`
	IngredientName   string          `json:"ingredient_name,omitempty"`
	Unit             string          `json:"unit,omitempty"`
	QuantityRequired decimal.Decimal `json:"quantity_required"`
	CurrentQuantity  decimal.Decimal `json:"current_quantity"`
	MinimumStock     decimal.Decimal `json:"minimum_stock"`
	PricePerUnit     decimal.Decimal `json:"price_per_unit"`
	IsLowStock       bool            `json:"is_low_stock"`
}

// DeriveAvailability fills the derived stock fields from the recipe.
func (p *Product) DeriveAvailability() {
	p.AvailabilityStatus = StockIn
	p.IsAvailable = true
	p.IsLowStock = false
	for i := range p.Ingredients {
		line := &p.Ingredients[i]
		line.IsLowStock = line.CurrentQuantity.LessThan(line.MinimumStock)
		if !line.CurrentQuantity.IsPositive() {
			p.AvailabilityStatus = StockEmpty
			p.IsAvailable = false
		}
		if line.IsLowStock {
			p.IsLowStock = true
		}
	}
	if p.IsAvailable && p.IsLowStock {
		p.AvailabilityStatus = StockLow
	}
}

type ProductRequest struct {
	Name        string                     `json:"name"`
	Category    string                     `json:"category"`
	Price       decimal.Decimal            `json:"price"`
	Status      string                     `json:"status"`
	Description string                     `json:"description"`
	Ingredients []ProductIngredientRequest `json:"ingredients"`
}

type ProductIngredientRequest struct {
	IngredientID     string          `json:"ingredient_id"`
	QuantityRequired decimal.Decimal `json:"quantity_required"`
}

type ProductFilter struct {
	Category string
	Status   string
	Search   string
	Offset   int
	Limit    int
}

const (
	OrderPending    = "PENDING"
	OrderProcessing = "PROCESSING"
	OrderCompleted  = "COMPLETED"
	OrderCancelled  = "CANCELLED"
)

type Order struct {
	ID          string          `json:"id"`
	EmployeeID  string          `json:"employee_id"`
	OrderDate   time.Time       `json:"order_date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	Items       []OrderItem     `json:"items"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderCreateRequest struct {
	EmployeeID string             `json:"employee_id"`
	Items      []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

// StockReservation is the total amount of one ingredient an order consumes.
type StockReservation struct {
	IngredientID string
	Quantity     decimal.Decimal
}

type OrderFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
}

const (
	SalaryPending = "Pending"
	SalaryPaid    = "Paid"
)

type Salary struct {
	ID           string          `json:"id"`
	EmployeeID   string          `json:"employee_id"`
	EmployeeName string          `json:"employee_name,omitempty"`
	Month        int             `json:"month"`
	Year         int             `json:"year"`
	BaseSalary   decimal.Decimal `json:"base_salary"`
	Bonus        decimal.Decimal `json:"bonus"`
	Deduction    decimal.Decimal `json:"deduction"`
	TotalSalary  decimal.Decimal `json:"total_salary"`
	Status       string          `json:"status"`
	PaymentDate  *time.Time      `json:"payment_date,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Recalculate sets TotalSalary from base, bonus and deduction.
func (s *Salary) Recalculate() {
	s.TotalSalary = Round2(s.BaseSalary.Add(s.Bonus).Sub(s.Deduction))
}

type SalaryFilter struct {
	EmployeeID string
	Month      int
	Year       int
	Status     string
}

type SalaryUpsertRequest struct {
	EmployeeID string           `json:"employee_id"`
	Month      int              `json:"month"`
	Year       int              `json:"year"`
	BaseSalary decimal.Decimal  `json:"base_salary"`
	Bonus      *decimal.Decimal `json:"bonus,omitempty"`
	Deduction  *decimal.Decimal `json:"deduction,omitempty"`
	Notes      string           `json:"notes"`
}

type SalaryAdjustmentRequest struct {
	Bonus     *decimal.Decimal `json:"bonus,omitempty"`
	Deduction *decimal.Decimal `json:"deduction,omitempty"`
	ChangedBy string           `json:"changed_by,omitempty"`
	Note      string           `json:"note,omitempty"`
}

type SalaryCalculationRequest struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

type SalaryHistory struct {
	ID             string          `json:"id"`
	SalaryID       string          `json:"salary_id"`
	ChangedBy      string          `json:"changed_by"`
	ChangeDate     time.Time       `json:"change_date"`
	OldBaseSalary  decimal.Decimal `json:"old_base_salary"`
	NewBaseSalary  decimal.Decimal `json:"new_base_salary"`
	OldBonus       decimal.Decimal `json:"old_bonus"`
	NewBonus       decimal.Decimal `json:"new_bonus"`
	OldDeduction   decimal.Decimal `json:"old_deduction"`
	NewDeduction   decimal.Decimal `json:"new_deduction"`
	OldTotalSalary decimal.Decimal `json:"old_total_salary"`
	NewTotalSalary decimal.Decimal `json:"new_total_salary"`
	Note           string          `json:"note,omitempty"`
}

type BulkPayRequest struct {
	IDs []string `json:"ids"`
}

type DailyReport struct {
	Date            string          `json:"date"`
	TotalOrders     int             `json:"total_orders"`
	CompletedOrders int             `json:"completed_orders"`
	CancelledOrders int             `json:"cancelled_orders"`
	PendingOrders   int             `json:"pending_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	IngredientCost  decimal.Decimal `json:"ingredient_cost"`
	LaborCost       decimal.Decimal `json:"labor_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	Profit          decimal.Decimal `json:"profit"`
}

type DashboardStats struct {
	TotalOrders     int             `json:"total_orders"`
	PendingOrders   int             `json:"pending_orders"`
	CompletedOrders int             `json:"completed_orders"`
	TodayRevenue    decimal.Decimal `json:"today_revenue"`
	MonthRevenue    decimal.Decimal `json:"month_revenue"`
	LowStockItems   int             `json:"low_stock_items"`
	ActiveEmployees int             `json:"active_employees"`
	TotalProducts   int             `json:"total_products"`
}

type AuditLog struct {
	ID              string    `json:"id"`
	ActorUsername   string    `json:"actor_username"`
	ActorEmployeeID string    `json:"actor_employee_id,omitempty"`
	Action          string    `json:"action"`
	EntityType      string    `json:"entity_type"`
	EntityID        string    `json:"entity_id"`
	Detail          string    `json:"detail"`
	CreatedAt       time.Time `json:"created_at"`
}

// JobResult summarises one run of a scheduled batch job.
type JobResult struct {
	Job      string    `json:"job"`
	RanAt    time.Time `json:"ran_at"`
	Affected []string  `json:"affected"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
}

type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}
