package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/scheduler"
	"cafeops/backend/internal/service"
	"cafeops/backend/internal/store"
)

// JobRunner runs a named background job on demand.
type JobRunner interface {
	Trigger(ctx context.Context, name string) (domain.JobResult, error)
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	jobs          JobRunner
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, jobs JobRunner, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		jobs:          jobs,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

var (
	anyRole     = []domain.Role{domain.RoleAdmin, domain.RoleManager, domain.RoleStaff, domain.RoleFinance}
	managers    = []domain.Role{domain.RoleAdmin, domain.RoleManager}
	floorStaff  = []domain.Role{domain.RoleAdmin, domain.RoleManager, domain.RoleStaff}
	supervisors = []domain.Role{domain.RoleAdmin, domain.RoleManager, domain.RoleFinance}
	payroll     = []domain.Role{domain.RoleAdmin, domain.RoleFinance}
	adminOnly   = []domain.Role{domain.RoleAdmin}
)

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, handler http.HandlerFunc, roles []domain.Role) {
		mux.HandleFunc(pattern, a.requireAuth(handler, roles...))
	}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)

	route("GET /api/v1/employees", a.handleListEmployees, managers)
	route("POST /api/v1/employees", a.handleCreateEmployee, managers)
	route("GET /api/v1/employees/{id}", a.handleGetEmployee, managers)
	route("PUT /api/v1/employees/{id}", a.handleUpdateEmployee, managers)
	route("DELETE /api/v1/employees/{id}", a.handleDeleteEmployee, adminOnly)

	route("POST /api/v1/attendance/check-in", a.handleCheckIn, anyRole)
	route("POST /api/v1/attendance/check-out", a.handleCheckOut, anyRole)
	route("GET /api/v1/attendance/today", a.handleTodayAttendance, anyRole)
	route("PUT /api/v1/attendance", a.handleUpsertAttendance, managers)
	route("GET /api/v1/attendance", a.handleAttendanceByDate, supervisors)
	route("GET /api/v1/attendance/{id}", a.handleGetAttendance, supervisors)
	route("DELETE /api/v1/attendance/{id}", a.handleDeleteAttendance, managers)
	route("GET /api/v1/attendance/employee/{id}", a.handleEmployeeAttendance, supervisors)
	route("GET /api/v1/attendance/employee/{id}/hours", a.handleWorkingHours, supervisors)

	route("GET /api/v1/ingredients", a.handleListIngredients, anyRole)
	route("POST /api/v1/ingredients", a.handleCreateIngredient, managers)
	route("GET /api/v1/ingredients/low-stock", a.handleLowStock, anyRole)
	route("GET /api/v1/ingredients/transactions", a.handleListTransactions, anyRole)
	route("POST /api/v1/ingredients/transactions", a.handleRecordTransaction, floorStaff)
	route("GET /api/v1/ingredients/{id}", a.handleGetIngredient, anyRole)
	route("PUT /api/v1/ingredients/{id}", a.handleUpdateIngredient, managers)
	route("DELETE /api/v1/ingredients/{id}", a.handleDeleteIngredient, managers)

	route("GET /api/v1/products", a.handleListProducts, anyRole)
	route("POST /api/v1/products", a.handleCreateProduct, managers)
	route("GET /api/v1/products/{id}", a.handleGetProduct, anyRole)
	route("PUT /api/v1/products/{id}", a.handleUpdateProduct, managers)
	route("DELETE /api/v1/products/{id}", a.handleDeleteProduct, managers)

	route("POST /api/v1/orders", a.handleCreateOrder, floorStaff)
	route("GET /api/v1/orders", a.handleListOrders, floorStaff)
	route("GET /api/v1/orders/{id}", a.handleGetOrder, floorStaff)
	route("PATCH /api/v1/orders/{id}/status", a.handleOrderStatus, floorStaff)
	route("DELETE /api/v1/orders/{id}", a.handleDeleteOrder, managers)

	route("POST /api/v1/salaries/calculate", a.handleCalculateSalaries, payroll)
	route("GET /api/v1/salaries", a.handleListSalaries, payroll)
	route("PUT /api/v1/salaries", a.handleUpsertSalary, payroll)
	route("POST /api/v1/salaries/pay", a.handlePaySalaries, payroll)
	route("GET /api/v1/salaries/total-paid", a.handleTotalPaid, payroll)
	route("GET /api/v1/salaries/{id}", a.handleGetSalary, payroll)
	route("GET /api/v1/salaries/{id}/history", a.handleSalaryHistory, payroll)
	route("PATCH /api/v1/salaries/{id}/adjustments", a.handleAdjustSalary, payroll)
	route("POST /api/v1/salaries/{id}/pay", a.handlePaySalary, payroll)
	route("DELETE /api/v1/salaries/{id}", a.handleDeleteSalary, adminOnly)

	route("GET /api/v1/reports/daily", a.handleDailyReports, supervisors)
	route("GET /api/v1/reports/daily/{date}", a.handleDailyReport, supervisors)
	route("GET /api/v1/dashboard/stats", a.handleDashboard, anyRole)
	route("GET /api/v1/audit-logs", a.handleAuditLogs, adminOnly)
	route("POST /api/v1/jobs/{name}/run", a.handleRunJob, adminOnly)

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !actor.HasRole(roles...) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func actorOf(r *http.Request) domain.Actor {
	actor, _ := service.ActorFromContext(r.Context())
	return actor
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Employees

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := a.service.ListEmployees(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (a *API) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !actorOf(r).HasRole(domain.RoleAdmin) {
		for _, name := range req.Roles {
			if role, ok := domain.ParseRole(name); ok && role == domain.RoleAdmin {
				writeError(w, http.StatusForbidden, errors.New("only admins may create admin accounts"))
				return
			}
		}
	}

	employee, err := a.service.CreateEmployee(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"employee": employee})
}

func (a *API) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	employee, err := a.service.GetEmployee(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": employee})
}

func (a *API) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	employee, err := a.service.UpdateEmployee(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee": employee})
}

func (a *API) handleDeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteEmployee(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Attendance

type attendanceSubject struct {
	EmployeeID string `json:"employee_id"`
}

func (a *API) subjectEmployee(r *http.Request) (string, error) {
	var body attendanceSubject
	if err := decodeOptionalJSON(r, &body); err != nil {
		return "", store.Invalid("%v", err)
	}
	requested := body.EmployeeID
	if requested == "" {
		requested = r.URL.Query().Get("employee_id")
	}
	return service.ResolveEmployee(actorOf(r), requested)
}

func (a *API) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	employeeID, err := a.subjectEmployee(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	row, err := a.service.CheckIn(r.Context(), employeeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"attendance": row})
}

func (a *API) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	employeeID, err := a.subjectEmployee(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	row, err := a.service.CheckOut(r.Context(), employeeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": row})
}

func (a *API) handleTodayAttendance(w http.ResponseWriter, r *http.Request) {
	employeeID, err := service.ResolveEmployee(actorOf(r), r.URL.Query().Get("employee_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	row, err := a.service.TodayAttendance(r.Context(), employeeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": row})
}

func (a *API) handleUpsertAttendance(w http.ResponseWriter, r *http.Request) {
	var req domain.AttendanceUpsertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	row, err := a.service.UpsertAttendance(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": row})
}

func (a *API) handleAttendanceByDate(w http.ResponseWriter, r *http.Request) {
	rows, err := a.service.ListAttendanceByDate(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": rows})
}

func (a *API) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	row, err := a.service.GetAttendance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": row})
}

func (a *API) handleDeleteAttendance(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteAttendance(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEmployeeAttendance(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rows, err := a.service.ListEmployeeAttendance(r.Context(), r.PathValue("id"), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendance": rows})
}

func (a *API) handleWorkingHours(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	total, err := a.service.TotalWorkingHours(r.Context(), r.PathValue("id"), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employee_id": r.PathValue("id"), "total_hours": total})
}

// Ingredients

func (a *API) handleListIngredients(w http.ResponseWriter, r *http.Request) {
	page, size := parsePage(r)
	result, err := a.service.ListIngredients(r.Context(), r.URL.Query().Get("search"), page, size)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateIngredient(w http.ResponseWriter, r *http.Request) {
	var req domain.IngredientRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ingredient, err := a.service.CreateIngredient(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ingredient": ingredient})
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	ingredients, err := a.service.LowStockIngredients(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingredients": ingredients})
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, size := parsePage(r)
	result, err := a.service.ListTransactions(r.Context(), query.Get("ingredient_id"), query.Get("type"), page, size)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req domain.IngredientTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.EmployeeID != "" {
		employeeID, err := service.ResolveEmployee(actorOf(r), req.EmployeeID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		req.EmployeeID = employeeID
	}
	resp, err := a.service.RecordTransaction(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGetIngredient(w http.ResponseWriter, r *http.Request) {
	ingredient, err := a.service.GetIngredient(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingredient": ingredient})
}

func (a *API) handleUpdateIngredient(w http.ResponseWriter, r *http.Request) {
	var req domain.IngredientUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ingredient, err := a.service.UpdateIngredient(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingredient": ingredient})
}

func (a *API) handleDeleteIngredient(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteIngredient(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Products

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, size := parsePage(r)
	result, err := a.service.ListProducts(r.Context(), domain.ProductFilter{
		Category: query.Get("category"),
		Status:   query.Get("status"),
		Search:   query.Get("search"),
	}, page, size)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Orders

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.EmployeeID != "" {
		employeeID, err := service.ResolveEmployee(actorOf(r), req.EmployeeID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		req.EmployeeID = employeeID
	}
	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page, size := parsePage(r)
	result, err := a.service.ListOrders(r.Context(), r.URL.Query().Get("status"), page, size)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdateOrderStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteOrder(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Salaries

func (a *API) handleCalculateSalaries(w http.ResponseWriter, r *http.Request) {
	var req domain.SalaryCalculationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	salaries, err := a.service.CalculateMonthlySalaries(r.Context(), req.Month, req.Year)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salaries": salaries, "created": len(salaries)})
}

func (a *API) handleListSalaries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	month, err := parseOptionalInt(query.Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	year, err := parseOptionalInt(query.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	salaries, err := a.service.ListSalaries(r.Context(), domain.SalaryFilter{
		EmployeeID: query.Get("employee_id"),
		Month:      month,
		Year:       year,
		Status:     query.Get("status"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salaries": salaries})
}

func (a *API) handleUpsertSalary(w http.ResponseWriter, r *http.Request) {
	var req domain.SalaryUpsertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	salary, err := a.service.CreateOrUpdateSalary(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salary": salary})
}

func (a *API) handlePaySalaries(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkPayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	paid, err := a.service.MarkMultipleAsPaid(r.Context(), req.IDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salaries": paid, "paid": len(paid), "requested": len(req.IDs)})
}

func (a *API) handleTotalPaid(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	month, err := strconv.Atoi(strings.TrimSpace(query.Get("month")))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("month is required"))
		return
	}
	year, err := strconv.Atoi(strings.TrimSpace(query.Get("year")))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("year is required"))
		return
	}
	total, err := a.service.TotalSalaryPaid(r.Context(), month, year)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month, "year": year, "total_paid": total})
}

func (a *API) handleGetSalary(w http.ResponseWriter, r *http.Request) {
	salary, err := a.service.GetSalary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salary": salary})
}

func (a *API) handleSalaryHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.SalaryHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleAdjustSalary(w http.ResponseWriter, r *http.Request) {
	var req domain.SalaryAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	salary, err := a.service.UpdateSalaryAdjustments(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salary": salary})
}

func (a *API) handlePaySalary(w http.ResponseWriter, r *http.Request) {
	salary, err := a.service.MarkAsPaid(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salary": salary})
}

func (a *API) handleDeleteSalary(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSalary(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reports

func (a *API) handleDailyReports(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	reports, err := a.service.DailyReports(r.Context(), query.Get("start"), query.Get("end"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if strings.EqualFold(strings.TrimSpace(query.Get("format")), "csv") {
		filename := "daily-reports.csv"
		if len(reports) > 0 {
			filename = fmt.Sprintf("daily-reports-%s-%s.csv", reports[0].Date, reports[len(reports)-1].Date)
		}
		writeCSV(w, filename, dailyReportsToCSV(reports))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.DailyReport(r.Context(), r.PathValue("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "csv") {
		writeCSV(w, fmt.Sprintf("daily-report-%s.csv", report.Date), dailyReportsToCSV([]domain.DailyReport{report}))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.DashboardStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), date, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if a.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("scheduler is disabled"))
		return
	}
	result, err := a.jobs.Trigger(r.Context(), r.PathValue("name"))
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrUnknownJob):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, scheduler.ErrSlotTaken):
			writeError(w, http.StatusConflict, err)
		default:
			writeServiceError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func dailyReportsToCSV(reports []domain.DailyReport) string {
	lines := []string{
		"date,total_orders,completed_orders,cancelled_orders,pending_orders,total_revenue,ingredient_cost,labor_cost,total_cost,profit",
	}
	for _, report := range reports {
		lines = append(lines, fmt.Sprintf("%s,%d,%d,%d,%d,%s,%s,%s,%s,%s",
			report.Date, report.TotalOrders, report.CompletedOrders, report.CancelledOrders, report.PendingOrders,
			report.TotalRevenue.StringFixed(2), report.IngredientCost.StringFixed(2), report.LaborCost.StringFixed(2),
			report.TotalCost.StringFixed(2), report.Profit.StringFixed(2)))
	}
	return strings.Join(lines, "\n") + "\n"
}

func writeCSV(w http.ResponseWriter, filename string, body string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	if err := decodeJSON(r, dest); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func parsePage(r *http.Request) (int, int) {
	query := r.URL.Query()
	page, err := strconv.Atoi(strings.TrimSpace(query.Get("page")))
	if err != nil || page < 0 {
		page = 0
	}
	return page, parsePositiveLimit(query.Get("size"), 20, 100)
}

func parseOptionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return value, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidRequest), errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrDuplicate):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
