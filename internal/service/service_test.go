package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/clock"
	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
	"cafeops/backend/internal/store/memory"
)

func newTestService(now time.Time) (*Service, *clock.Manual) {
	clk := clock.NewManual(now)
	return New(memory.NewSeeded(), clk, DefaultPolicy()), clk
}

func at(day int, hour int, minute int) time.Time {
	return time.Date(2026, time.September, day, hour, minute, 0, 0, time.UTC)
}

func dec(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func TestRecordTransactionRejectsExportBeyondStock(t *testing.T) {
	svc, _ := newTestService(at(1, 9, 0))
	ctx := context.Background()

	_, err := svc.RecordTransaction(ctx, domain.IngredientTransactionRequest{
		IngredientID: "ing-milk",
		EmployeeID:   "emp-barista",
		Type:         "export",
		Quantity:     dec("25"),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if !strings.Contains(err.Error(), "Available: 20, Requested: 25") {
		t.Fatalf("unexpected message: %v", err)
	}

	milk, err := svc.GetIngredient(ctx, "ing-milk")
	if err != nil {
		t.Fatalf("get ingredient failed: %v", err)
	}
	if !milk.Quantity.Equal(dec("20")) {
		t.Fatalf("expected milk to stay at 20, got %s", milk.Quantity)
	}
}

func TestRecordTransactionImportAndValidation(t *testing.T) {
	svc, _ := newTestService(at(1, 9, 0))
	ctx := WithActor(context.Background(), domain.Actor{Username: "manager", EmployeeID: "emp-manager", Roles: []domain.Role{domain.RoleManager}})

	resp, err := svc.RecordTransaction(ctx, domain.IngredientTransactionRequest{
		IngredientID: "ing-butter",
		Type:         " Import ",
		Quantity:     dec("2.5"),
		Notes:        "weekly delivery",
	})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !resp.Ingredient.Quantity.Equal(dec("4")) {
		t.Fatalf("expected butter at 4, got %s", resp.Ingredient.Quantity)
	}
	if resp.Transaction.EmployeeID != "emp-manager" || resp.Transaction.Type != domain.TransactionImport {
		t.Fatalf("unexpected transaction: %+v", resp.Transaction)
	}
	if resp.Ingredient.IsLowStock {
		t.Fatalf("expected butter to leave low stock after import")
	}

	if _, err := svc.RecordTransaction(ctx, domain.IngredientTransactionRequest{IngredientID: "ing-milk", Type: "ADJUST", Quantity: dec("1")}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected invalid type to fail, got %v", err)
	}
	if _, err := svc.RecordTransaction(ctx, domain.IngredientTransactionRequest{IngredientID: "ing-milk", Type: "IMPORT", Quantity: dec("0")}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected zero quantity to fail, got %v", err)
	}
	if _, err := svc.RecordTransaction(ctx, domain.IngredientTransactionRequest{IngredientID: "ing-missing", Type: "IMPORT", Quantity: dec("1")}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown ingredient to fail, got %v", err)
	}

	page, err := svc.ListTransactions(ctx, "ing-butter", "", 0, 0)
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if page.Total != 1 || page.Size != defaultPageSize {
		t.Fatalf("expected one transaction with default page size, got %+v", page)
	}
}

func TestLowStockIsStrictlyBelowMinimum(t *testing.T) {
	svc, _ := newTestService(at(1, 9, 0))
	ctx := context.Background()

	created, err := svc.CreateIngredient(ctx, domain.IngredientRequest{
		Name:         "Vanilla Syrup",
		Unit:         "bottle",
		Quantity:     dec("3"),
		MinimumStock: dec("3"),
		PricePerUnit: dec("95000"),
	})
	if err != nil {
		t.Fatalf("create ingredient failed: %v", err)
	}

	low, err := svc.LowStockIngredients(ctx)
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	for _, ingredient := range low {
		if ingredient.ID == created.ID {
			t.Fatalf("ingredient at exactly its minimum must not be low stock")
		}
	}
	if len(low) != 1 || low[0].ID != "ing-butter" {
		t.Fatalf("expected only butter to be low, got %+v", low)
	}
}

func TestCheckInTwiceSameDayFails(t *testing.T) {
	svc, clk := newTestService(at(1, 8, 0))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, "emp-barista"); err != nil {
		t.Fatalf("first check-in failed: %v", err)
	}
	clk.Advance(2 * time.Hour)
	_, err := svc.CheckIn(ctx, "emp-barista")
	if !errors.Is(err, store.ErrInvalidRequest) || !strings.Contains(err.Error(), "already checked in today") {
		t.Fatalf("expected second check-in to fail, got %v", err)
	}

	if _, err := svc.CheckIn(ctx, "emp-nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown employee to fail, got %v", err)
	}
}

func TestCheckInLateThreshold(t *testing.T) {
	svc, clk := newTestService(at(1, 8, 15))
	ctx := context.Background()

	onTime, err := svc.CheckIn(ctx, "emp-barista")
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if onTime.Status != domain.AttendancePresent {
		t.Fatalf("expected 08:15 to be Present, got %s", onTime.Status)
	}

	clk.Set(at(1, 8, 20))
	late, err := svc.CheckIn(ctx, "emp-manager")
	if err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if late.Status != domain.AttendanceLate {
		t.Fatalf("expected 08:20 to be Late, got %s", late.Status)
	}
}

func TestCheckOutComputesHours(t *testing.T) {
	svc, clk := newTestService(at(1, 8, 0))
	ctx := context.Background()

	if _, err := svc.CheckOut(ctx, "emp-barista"); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected check-out without check-in to fail, got %v", err)
	}
	if _, err := svc.CheckIn(ctx, "emp-barista"); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	clk.Advance(9*time.Hour + 30*time.Minute + 40*time.Second)

	row, err := svc.CheckOut(ctx, "emp-barista")
	if err != nil {
		t.Fatalf("check-out failed: %v", err)
	}
	if !row.WorkingHours.Equal(dec("9.5")) || !row.OvertimeHours.Equal(dec("1.5")) {
		t.Fatalf("expected 9.5h with 1.5h overtime, got %s / %s", row.WorkingHours, row.OvertimeHours)
	}

	_, err = svc.CheckOut(ctx, "emp-barista")
	if !errors.Is(err, store.ErrInvalidRequest) || !strings.Contains(err.Error(), "already checked out") {
		t.Fatalf("expected second check-out to fail, got %v", err)
	}

	total, err := svc.TotalWorkingHours(ctx, "emp-barista", "2026-09-01", "2026-09-30")
	if err != nil {
		t.Fatalf("total hours failed: %v", err)
	}
	if !total.Equal(dec("9.5")) {
		t.Fatalf("expected 9.5 total hours, got %s", total)
	}
}

func TestUpsertAttendanceOverridesRecord(t *testing.T) {
	svc, _ := newTestService(at(2, 12, 0))
	ctx := WithActor(context.Background(), domain.Actor{Username: "manager", EmployeeID: "emp-manager", Roles: []domain.Role{domain.RoleManager}})

	checkOut := at(1, 7, 0)
	_, err := svc.UpsertAttendance(ctx, domain.AttendanceUpsertRequest{EmployeeID: "emp-barista", CheckInTime: at(1, 9, 0), CheckOutTime: &checkOut})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected check-out before check-in to fail, got %v", err)
	}

	checkOut = at(1, 17, 0)
	first, err := svc.UpsertAttendance(ctx, domain.AttendanceUpsertRequest{EmployeeID: "emp-barista", CheckInTime: at(1, 9, 0), CheckOutTime: &checkOut, Status: "late", Notes: "traffic"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if first.Status != domain.AttendanceLate || !first.WorkingHours.Equal(dec("8")) {
		t.Fatalf("unexpected record: %+v", first)
	}

	second, err := svc.UpsertAttendance(ctx, domain.AttendanceUpsertRequest{EmployeeID: "emp-barista", CheckInTime: at(1, 8, 0), CheckOutTime: &checkOut})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.ID != first.ID || second.Status != domain.AttendancePresent || second.Notes != "traffic" {
		t.Fatalf("expected same row updated, got %+v", second)
	}

	if _, err := svc.UpsertAttendance(ctx, domain.AttendanceUpsertRequest{EmployeeID: "emp-barista", CheckInTime: at(1, 8, 0), Status: "Holiday"}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected unknown status to fail, got %v", err)
	}
}

func TestUpsertAttendanceKeepsCheckOutWhenOmitted(t *testing.T) {
	svc, clk := newTestService(at(1, 8, 0))
	ctx := WithActor(context.Background(), domain.Actor{Username: "manager", EmployeeID: "emp-manager", Roles: []domain.Role{domain.RoleManager}})

	if _, err := svc.CheckIn(ctx, "emp-barista"); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	clk.Set(at(1, 17, 0))
	if _, err := svc.CheckOut(ctx, "emp-barista"); err != nil {
		t.Fatalf("check-out failed: %v", err)
	}

	row, err := svc.UpsertAttendance(ctx, domain.AttendanceUpsertRequest{EmployeeID: "emp-barista", CheckInTime: at(1, 8, 0), Status: "Late"})
	if err != nil {
		t.Fatalf("status-only upsert failed: %v", err)
	}
	if row.Status != domain.AttendanceLate {
		t.Fatalf("expected Late, got %s", row.Status)
	}
	if row.CheckOutTime == nil || !row.CheckOutTime.Equal(at(1, 17, 0)) {
		t.Fatalf("expected check-out 17:00 kept, got %v", row.CheckOutTime)
	}
	if !row.WorkingHours.Equal(dec("9")) || !row.OvertimeHours.Equal(dec("1")) {
		t.Fatalf("expected 9h / 1h, got %s / %s", row.WorkingHours, row.OvertimeHours)
	}

	moved, err := svc.UpsertAttendance(ctx, domain.AttendanceUpsertRequest{EmployeeID: "emp-barista", CheckInTime: at(1, 9, 30)})
	if err != nil {
		t.Fatalf("check-in correction failed: %v", err)
	}
	if !moved.WorkingHours.Equal(dec("7.5")) || !moved.OvertimeHours.IsZero() {
		t.Fatalf("expected hours recomputed against kept check-out, got %s / %s", moved.WorkingHours, moved.OvertimeHours)
	}

	_, err = svc.UpsertAttendance(ctx, domain.AttendanceUpsertRequest{EmployeeID: "emp-barista", CheckInTime: at(1, 18, 0)})
	if !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected check-in after kept check-out to fail, got %v", err)
	}
}

func TestCreateOrderShortfallLeavesStockUntouched(t *testing.T) {
	svc, _ := newTestService(at(1, 10, 0))
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		EmployeeID: "emp-barista",
		Items: []domain.OrderItemRequest{
			{ProductID: "prd-latte", Quantity: 1},
			{ProductID: "prd-croissant", Quantity: 70},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	for id, want := range map[string]string{"ing-coffee": "10", "ing-milk": "20", "ing-flour": "5", "ing-butter": "1.5"} {
		ingredient, err := svc.GetIngredient(ctx, id)
		if err != nil {
			t.Fatalf("get ingredient failed: %v", err)
		}
		if !ingredient.Quantity.Equal(dec(want)) {
			t.Fatalf("expected %s to stay at %s, got %s", id, want, ingredient.Quantity)
		}
	}

	orders, err := svc.ListOrders(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	if orders.Total != 0 {
		t.Fatalf("expected no order to be stored, got %d", orders.Total)
	}
}

func TestCreateOrderSnapshotsPriceAndReservesStock(t *testing.T) {
	svc, _ := newTestService(at(1, 10, 0))
	ctx := WithActor(context.Background(), domain.Actor{Username: "barista", EmployeeID: "emp-barista", Roles: []domain.Role{domain.RoleStaff}})

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Items: []domain.OrderItemRequest{
			{ProductID: "prd-latte", Quantity: 2},
			{ProductID: "prd-espresso", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.Status != domain.OrderPending || order.EmployeeID != "emp-barista" {
		t.Fatalf("unexpected order: %+v", order)
	}
	if !order.TotalAmount.Equal(dec("125000")) {
		t.Fatalf("expected total 125000, got %s", order.TotalAmount)
	}

	coffee, _ := svc.GetIngredient(ctx, "ing-coffee")
	if !coffee.Quantity.Equal(dec("9.946")) {
		t.Fatalf("expected coffee 9.946 after three cups, got %s", coffee.Quantity)
	}

	if _, err := svc.UpdateProduct(ctx, "prd-latte", domain.ProductRequest{Name: "Latte", Category: "Coffee", Price: dec("50000")}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	stored, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if !stored.Items[0].Price.Equal(dec("45000")) {
		t.Fatalf("expected snapshotted price 45000, got %s", stored.Items[0].Price)
	}
	latte, _ := svc.GetProduct(ctx, "prd-latte")
	if len(latte.Ingredients) != 3 {
		t.Fatalf("expected recipe kept when ingredients omitted, got %d lines", len(latte.Ingredients))
	}
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _ := newTestService(at(1, 10, 0))
	ctx := context.Background()

	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista"}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected empty order to fail, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista", Items: []domain.OrderItemRequest{{ProductID: "prd-latte", Quantity: 0}}}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected zero quantity to fail, got %v", err)
	}
	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista", Items: []domain.OrderItemRequest{{ProductID: "prd-missing", Quantity: 1}}}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown product to fail, got %v", err)
	}

	if _, err := svc.UpdateProduct(ctx, "prd-espresso", domain.ProductRequest{Name: "Espresso", Price: dec("35000"), Status: "unavailable"}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista", Items: []domain.OrderItemRequest{{ProductID: "prd-espresso", Quantity: 1}}})
	if !errors.Is(err, store.ErrInvalidRequest) || !strings.Contains(err.Error(), "not available") {
		t.Fatalf("expected unavailable product to fail, got %v", err)
	}
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	svc, _ := newTestService(at(1, 10, 0))
	ctx := context.Background()

	const attempts = 200
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		failures []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista", Items: []domain.OrderItemRequest{{ProductID: "prd-latte", Quantity: 1}}})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			placed++
		}()
	}
	wg.Wait()

	// 20 l of milk at 0.2 l per latte.
	if placed != 100 || len(failures) != attempts-100 {
		t.Fatalf("expected 100 orders placed, got %d placed and %d failed", placed, len(failures))
	}
	for _, err := range failures {
		if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
	}

	for id, want := range map[string]string{"ing-milk": "0", "ing-coffee": "8.2", "ing-sugar": "7"} {
		ingredient, err := svc.GetIngredient(ctx, id)
		if err != nil {
			t.Fatalf("get ingredient failed: %v", err)
		}
		if ingredient.Quantity.IsNegative() || !ingredient.Quantity.Equal(dec(want)) {
			t.Fatalf("expected %s at %s, got %s", id, want, ingredient.Quantity)
		}
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	svc, _ := newTestService(at(1, 10, 0))
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista", Items: []domain.OrderItemRequest{{ProductID: "prd-espresso", Quantity: 1}}})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	if _, err := svc.UpdateOrderStatus(ctx, order.ID, "shipped"); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected unknown status to fail, got %v", err)
	}
	processing, err := svc.UpdateOrderStatus(ctx, order.ID, "processing")
	if err != nil {
		t.Fatalf("pending to processing failed: %v", err)
	}
	if processing.Status != domain.OrderProcessing {
		t.Fatalf("expected PROCESSING, got %s", processing.Status)
	}
	if _, err := svc.UpdateOrderStatus(ctx, order.ID, "PENDING"); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected processing to pending to fail, got %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, order.ID, "COMPLETED"); err != nil {
		t.Fatalf("processing to completed failed: %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, order.ID, "CANCELLED"); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected completed order to be terminal, got %v", err)
	}

	for _, tc := range []struct {
		from, to string
		ok       bool
	}{
		{domain.OrderPending, domain.OrderCompleted, true},
		{domain.OrderPending, domain.OrderCancelled, true},
		{domain.OrderCancelled, domain.OrderPending, false},
		{domain.OrderCompleted, domain.OrderProcessing, false},
		{domain.OrderPending, domain.OrderPending, false},
	} {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("CanTransition(%s, %s) = %t, want %t", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestMarkAbsentEmployeesIsIdempotent(t *testing.T) {
	svc, clk := newTestService(at(3, 8, 0))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, "emp-barista"); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	inactive := domain.EmployeeInactive
	if _, err := svc.UpdateEmployee(ctx, "emp-finance", domain.EmployeeUpdateRequest{Status: &inactive}); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	clk.Set(at(3, 23, 55))
	first, err := svc.MarkAbsentEmployees(ctx, clk.Now())
	if err != nil {
		t.Fatalf("mark absent failed: %v", err)
	}
	if len(first.Affected) != 2 || first.Skipped != 1 {
		t.Fatalf("expected admin and manager marked, barista skipped, got %+v", first)
	}

	second, err := svc.MarkAbsentEmployees(ctx, clk.Now())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(second.Affected) != 0 {
		t.Fatalf("expected second run to mark nobody, got %+v", second)
	}

	rows, err := svc.ListAttendanceByDate(ctx, "2026-09-03")
	if err != nil {
		t.Fatalf("list by date failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows for the day, got %d", len(rows))
	}
	for _, row := range rows {
		if row.EmployeeID == "emp-admin" && (row.Status != domain.AttendanceAbsent || row.Notes != absentNote) {
			t.Fatalf("unexpected absent row: %+v", row)
		}
	}

	if _, err := svc.CheckIn(ctx, "emp-admin"); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected check-in after absence marking to fail, got %v", err)
	}
}

func TestAutoCheckoutClosesOpenRecords(t *testing.T) {
	svc, clk := newTestService(at(4, 8, 0))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, "emp-barista"); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if _, err := svc.CheckIn(ctx, "emp-manager"); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	clk.Set(at(4, 16, 0))
	if _, err := svc.CheckOut(ctx, "emp-manager"); err != nil {
		t.Fatalf("check-out failed: %v", err)
	}

	clk.Set(at(4, 23, 59))
	result, err := svc.AutoCheckoutEmployees(ctx, clk.Now())
	if err != nil {
		t.Fatalf("auto checkout failed: %v", err)
	}
	if len(result.Affected) != 1 || result.Skipped != 1 {
		t.Fatalf("expected one row closed and one skipped, got %+v", result)
	}

	row, err := svc.TodayAttendance(ctx, "emp-barista")
	if err != nil {
		t.Fatalf("today attendance failed: %v", err)
	}
	if row.CheckOutTime == nil || !row.CheckOutTime.Equal(at(4, 23, 59)) {
		t.Fatalf("expected checkout at 23:59, got %v", row.CheckOutTime)
	}
	if !row.WorkingHours.Equal(dec("15.98")) || !row.OvertimeHours.Equal(dec("7.98")) {
		t.Fatalf("expected 15.98h / 7.98h, got %s / %s", row.WorkingHours, row.OvertimeHours)
	}
	if row.Notes != autoCheckoutNote {
		t.Fatalf("unexpected notes %q", row.Notes)
	}

	again, err := svc.AutoCheckoutEmployees(ctx, clk.Now())
	if err != nil {
		t.Fatalf("second auto checkout failed: %v", err)
	}
	if len(again.Affected) != 0 {
		t.Fatalf("expected idempotent second run, got %+v", again)
	}
	if _, err := svc.CheckOut(ctx, "emp-barista"); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected manual check-out after auto checkout to fail, got %v", err)
	}
}

func TestMarkAbsentAfterShiftSkipsCheckedInEmployees(t *testing.T) {
	svc, clk := newTestService(at(3, 8, 0))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, "emp-barista"); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	clk.Set(at(3, 17, 1))
	first, err := svc.MarkAbsentAfterShift(ctx, clk.Now())
	if err != nil {
		t.Fatalf("mark absent after shift failed: %v", err)
	}
	if first.Job != JobMarkAbsentAfterShift || len(first.Affected) != 3 || first.Skipped != 1 {
		t.Fatalf("expected three employees marked and barista skipped, got %+v", first)
	}

	rows, err := svc.ListAttendanceByDate(ctx, "2026-09-03")
	if err != nil {
		t.Fatalf("list by date failed: %v", err)
	}
	for _, row := range rows {
		switch row.EmployeeID {
		case "emp-barista":
			if row.Status == domain.AttendanceAbsent || row.CheckInTime == nil {
				t.Fatalf("checked-in employee was marked absent: %+v", row)
			}
		default:
			if row.Status != domain.AttendanceAbsent || row.Notes != absentAfterShiftNote {
				t.Fatalf("unexpected absent row: %+v", row)
			}
		}
	}

	clk.Set(at(3, 23, 55))
	second, err := svc.MarkAbsentEmployees(ctx, clk.Now())
	if err != nil {
		t.Fatalf("nightly run failed: %v", err)
	}
	if len(second.Affected) != 0 || second.Skipped != 4 {
		t.Fatalf("expected the nightly run to mark nobody, got %+v", second)
	}
	rows, _ = svc.ListAttendanceByDate(ctx, "2026-09-03")
	if len(rows) != 4 {
		t.Fatalf("expected one row per employee, got %d", len(rows))
	}
}

func TestAttendanceJobsWriteSummaryAudit(t *testing.T) {
	svc, clk := newTestService(at(6, 8, 0))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, "emp-barista"); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	clk.Set(at(6, 23, 55))
	if _, err := svc.MarkAbsentEmployees(ctx, clk.Now()); err != nil {
		t.Fatalf("mark absent failed: %v", err)
	}
	clk.Set(at(6, 23, 59))
	if _, err := svc.AutoCheckoutEmployees(ctx, clk.Now()); err != nil {
		t.Fatalf("auto checkout failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, "2026-09-06", 0)
	if err != nil {
		t.Fatalf("audit logs failed: %v", err)
	}
	want := map[string]string{
		"attendance_mark_absent":   "scheduler:" + JobMarkAbsent,
		"attendance_auto_checkout": "scheduler:" + JobAutoCheckout,
	}
	for _, entry := range logs {
		if actor, ok := want[entry.Action]; ok {
			if entry.ActorUsername != actor || entry.EntityID != "2026-09-06" {
				t.Fatalf("unexpected audit entry: %+v", entry)
			}
			delete(want, entry.Action)
		}
	}
	if len(want) != 0 {
		t.Fatalf("missing audit entries for %v", want)
	}
}

func TestAutoCancelExpiredOrders(t *testing.T) {
	svc, clk := newTestService(at(5, 9, 0))
	ctx := context.Background()

	stale, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista", Items: []domain.OrderItemRequest{{ProductID: "prd-espresso", Quantity: 1}}})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	served, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista", Items: []domain.OrderItemRequest{{ProductID: "prd-latte", Quantity: 1}}})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, served.ID, domain.OrderCompleted); err != nil {
		t.Fatalf("complete order failed: %v", err)
	}

	clk.Advance(30 * time.Minute)
	early, err := svc.AutoCancelExpiredOrders(ctx, clk.Now())
	if err != nil {
		t.Fatalf("auto cancel failed: %v", err)
	}
	if len(early.Affected) != 0 {
		t.Fatalf("expected nothing cancelled before the timeout, got %+v", early)
	}

	clk.Advance(31 * time.Minute)
	result, err := svc.AutoCancelExpiredOrders(ctx, clk.Now())
	if err != nil {
		t.Fatalf("auto cancel failed: %v", err)
	}
	if len(result.Affected) != 1 || result.Affected[0] != stale.ID {
		t.Fatalf("expected stale order cancelled, got %+v", result)
	}

	order, _ := svc.GetOrder(ctx, stale.ID)
	if order.Status != domain.OrderCancelled {
		t.Fatalf("expected CANCELLED, got %s", order.Status)
	}
	kept, _ := svc.GetOrder(ctx, served.ID)
	if kept.Status != domain.OrderCompleted {
		t.Fatalf("expected completed order untouched, got %s", kept.Status)
	}

	logs, err := svc.ListAuditLogs(ctx, "2026-09-05", 0)
	if err != nil {
		t.Fatalf("audit logs failed: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.EntityID == stale.ID && strings.HasPrefix(entry.ActorUsername, "scheduler") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected audit entry for auto-cancel")
	}
}

func TestCalculateMonthlySalaries(t *testing.T) {
	svc, clk := newTestService(at(1, 8, 0))
	ctx := context.Background()

	for _, day := range []int{1, 2} {
		clk.Set(at(day, 8, 0))
		if _, err := svc.CheckIn(ctx, "emp-barista"); err != nil {
			t.Fatalf("check-in failed: %v", err)
		}
		clk.Advance(9*time.Hour + 30*time.Minute)
		if _, err := svc.CheckOut(ctx, "emp-barista"); err != nil {
			t.Fatalf("check-out failed: %v", err)
		}
	}
	clk.Set(at(3, 23, 55))
	if _, err := svc.MarkAbsentEmployees(ctx, clk.Now()); err != nil {
		t.Fatalf("mark absent failed: %v", err)
	}

	if _, err := svc.CalculateMonthlySalaries(ctx, 13, 2026); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected invalid month to fail, got %v", err)
	}

	salaries, err := svc.CalculateMonthlySalaries(ctx, 9, 2026)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if len(salaries) != 4 {
		t.Fatalf("expected 4 salaries, got %d", len(salaries))
	}

	byEmployee := make(map[string]domain.Salary, len(salaries))
	for _, salary := range salaries {
		byEmployee[salary.EmployeeID] = salary
		if salary.Status != domain.SalaryPending || salary.Notes != autoSalaryNote {
			t.Fatalf("unexpected salary: %+v", salary)
		}
		if !salary.TotalSalary.Equal(salary.BaseSalary.Add(salary.Bonus).Sub(salary.Deduction)) {
			t.Fatalf("total does not match components: %+v", salary)
		}
	}

	barista := byEmployee["emp-barista"]
	if !barista.BaseSalary.Equal(dec("950000")) || !barista.Bonus.Equal(dec("225000")) || !barista.Deduction.Equal(dec("43181.82")) {
		t.Fatalf("unexpected barista salary: %+v", barista)
	}
	if !barista.TotalSalary.Equal(dec("1131818.18")) {
		t.Fatalf("expected barista total 1131818.18, got %s", barista.TotalSalary)
	}
	admin := byEmployee["emp-admin"]
	if !admin.Deduction.Equal(dec("681818.18")) || !admin.TotalSalary.Equal(dec("14318181.82")) {
		t.Fatalf("unexpected admin salary: %+v", admin)
	}

	again, err := svc.CalculateMonthlySalaries(ctx, 9, 2026)
	if err != nil {
		t.Fatalf("second calculate failed: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected second run to create nothing, got %d", len(again))
	}
}

func TestMarkAsPaidTwiceFails(t *testing.T) {
	svc, _ := newTestService(at(30, 12, 0))
	ctx := context.Background()

	salaries, err := svc.CalculateMonthlySalaries(ctx, 9, 2026)
	if err != nil || len(salaries) == 0 {
		t.Fatalf("calculate failed: %v", err)
	}
	id := salaries[0].ID

	paid, err := svc.MarkAsPaid(ctx, id)
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if paid.Status != domain.SalaryPaid || paid.PaymentDate == nil {
		t.Fatalf("unexpected paid salary: %+v", paid)
	}
	_, err = svc.MarkAsPaid(ctx, id)
	if !errors.Is(err, store.ErrInvalidRequest) || !strings.Contains(err.Error(), "already been marked as paid") {
		t.Fatalf("expected second payment to fail, got %v", err)
	}

	bulk, err := svc.MarkMultipleAsPaid(ctx, []string{id, salaries[1].ID, "sal-missing"})
	if err != nil {
		t.Fatalf("bulk pay failed: %v", err)
	}
	if len(bulk) != 1 || bulk[0].ID != salaries[1].ID {
		t.Fatalf("expected only the unpaid salary in the result, got %+v", bulk)
	}

	total, err := svc.TotalSalaryPaid(ctx, 9, 2026)
	if err != nil {
		t.Fatalf("total paid failed: %v", err)
	}
	if !total.Equal(salaries[0].TotalSalary.Add(salaries[1].TotalSalary)) {
		t.Fatalf("unexpected total paid %s", total)
	}
}

func TestUpdateSalaryAdjustmentsRecordsHistory(t *testing.T) {
	svc, _ := newTestService(at(30, 12, 0))
	ctx := WithActor(context.Background(), domain.Actor{Username: "finance", EmployeeID: "emp-finance", Roles: []domain.Role{domain.RoleFinance}})

	salaries, err := svc.CalculateMonthlySalaries(ctx, 9, 2026)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	var target domain.Salary
	for _, salary := range salaries {
		if salary.EmployeeID == "emp-manager" {
			target = salary
		}
	}

	bonus := dec("500000")
	negative := dec("-1")
	if _, err := svc.UpdateSalaryAdjustments(ctx, target.ID, domain.SalaryAdjustmentRequest{Deduction: &negative}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected negative deduction to fail, got %v", err)
	}
	if _, err := svc.UpdateSalaryAdjustments(ctx, target.ID, domain.SalaryAdjustmentRequest{Bonus: &bonus, ChangedBy: "emp-ghost"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown changed_by to fail, got %v", err)
	}

	updated, err := svc.UpdateSalaryAdjustments(ctx, target.ID, domain.SalaryAdjustmentRequest{Bonus: &bonus})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if !updated.TotalSalary.Equal(dec("12500000")) || !updated.Deduction.IsZero() {
		t.Fatalf("unexpected adjusted salary: %+v", updated)
	}

	history, err := svc.SalaryHistory(ctx, target.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history row, got %d", len(history))
	}
	entry := history[0]
	if entry.ChangedBy != "emp-finance" || entry.Note != defaultHistoryNote || !entry.OldTotalSalary.Equal(dec("12000000")) || !entry.NewTotalSalary.Equal(dec("12500000")) {
		t.Fatalf("unexpected history entry: %+v", entry)
	}

	if _, err := svc.MarkAsPaid(ctx, target.ID); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if _, err := svc.UpdateSalaryAdjustments(ctx, target.ID, domain.SalaryAdjustmentRequest{Bonus: &bonus}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected paid salary adjustment to fail, got %v", err)
	}
}

// paidAfterRead marks a salary paid right after the service reads it.
type paidAfterRead struct {
	store.Repository
	at time.Time
}

func (r paidAfterRead) GetSalary(ctx context.Context, id string) (*domain.Salary, error) {
	salary, err := r.Repository.GetSalary(ctx, id)
	if err == nil {
		_, _ = r.Repository.MarkSalaryPaid(ctx, id, r.at)
	}
	return salary, err
}

func (r paidAfterRead) FindSalary(ctx context.Context, employeeID string, month int, year int) (*domain.Salary, error) {
	salary, err := r.Repository.FindSalary(ctx, employeeID, month, year)
	if err == nil {
		_, _ = r.Repository.MarkSalaryPaid(ctx, salary.ID, r.at)
	}
	return salary, err
}

func TestSalaryWritesCannotUndoConcurrentPayment(t *testing.T) {
	repo := memory.NewSeeded()
	clk := clock.NewManual(at(30, 12, 0))
	svc := New(repo, clk, DefaultPolicy())
	racing := New(paidAfterRead{Repository: repo, at: at(30, 12, 0)}, clk, DefaultPolicy())
	finance := WithActor(context.Background(), domain.Actor{Username: "finance", EmployeeID: "emp-finance", Roles: []domain.Role{domain.RoleFinance}})

	salaries, err := svc.CalculateMonthlySalaries(finance, 9, 2026)
	if err != nil || len(salaries) < 2 {
		t.Fatalf("calculate failed: %v", err)
	}

	bonus := dec("750000")
	adjusted := salaries[0]
	if _, err := racing.UpdateSalaryAdjustments(finance, adjusted.ID, domain.SalaryAdjustmentRequest{Bonus: &bonus}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected adjustment of a just-paid salary to fail, got %v", err)
	}

	manual := salaries[1]
	if _, err := racing.CreateOrUpdateSalary(context.Background(), domain.SalaryUpsertRequest{
		EmployeeID: manual.EmployeeID,
		Month:      9,
		Year:       2026,
		BaseSalary: dec("1"),
	}); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected manual update of a just-paid salary to fail, got %v", err)
	}

	for _, want := range []domain.Salary{adjusted, manual} {
		stored, err := svc.GetSalary(finance, want.ID)
		if err != nil {
			t.Fatalf("get salary failed: %v", err)
		}
		if stored.Status != domain.SalaryPaid || stored.PaymentDate == nil {
			t.Fatalf("expected payment to survive, got %+v", stored)
		}
		if !stored.TotalSalary.Equal(want.TotalSalary) || !stored.Bonus.Equal(want.Bonus) {
			t.Fatalf("expected amounts untouched, got %+v", stored)
		}
	}
	history, err := svc.SalaryHistory(finance, adjusted.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no history for a rejected change, got %d", len(history))
	}
}

func TestDailyReport(t *testing.T) {
	svc, clk := newTestService(at(10, 9, 0))
	ctx := context.Background()

	completed, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista", Items: []domain.OrderItemRequest{{ProductID: "prd-latte", Quantity: 2}}})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, completed.ID, domain.OrderCompleted); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if _, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{EmployeeID: "emp-barista", Items: []domain.OrderItemRequest{{ProductID: "prd-espresso", Quantity: 1}}}); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	salaries, err := svc.CalculateMonthlySalaries(ctx, 9, 2026)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	for _, salary := range salaries {
		if salary.EmployeeID == "emp-admin" {
			if _, err := svc.MarkAsPaid(ctx, salary.ID); err != nil {
				t.Fatalf("mark paid failed: %v", err)
			}
		}
	}

	clk.Advance(3 * time.Hour)
	report, err := svc.DailyReport(ctx, "2026-09-10")
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if report.TotalOrders != 2 || report.CompletedOrders != 1 || report.PendingOrders != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if !report.TotalRevenue.Equal(dec("90000")) || !report.IngredientCost.Equal(dec("22200")) {
		t.Fatalf("unexpected revenue/cost: %+v", report)
	}
	if !report.LaborCost.Equal(dec("500000")) || !report.Profit.Equal(dec("-432200")) {
		t.Fatalf("unexpected labor/profit: %+v", report)
	}

	reports, err := svc.DailyReports(ctx, "", "")
	if err != nil {
		t.Fatalf("daily reports failed: %v", err)
	}
	if len(reports) != 7 || reports[6].Date != "2026-09-10" || reports[0].Date != "2026-09-04" {
		t.Fatalf("unexpected default range: %d reports", len(reports))
	}
	if _, err := svc.DailyReports(ctx, "2026-09-10", "2026-09-01"); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected reversed range to fail, got %v", err)
	}
	if _, err := svc.DailyReports(ctx, "2025-01-01", "2026-09-01"); !errors.Is(err, store.ErrInvalidRequest) {
		t.Fatalf("expected oversized range to fail, got %v", err)
	}

	stats, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if stats.TotalOrders != 2 || stats.PendingOrders != 1 || stats.CompletedOrders != 1 {
		t.Fatalf("unexpected order stats: %+v", stats)
	}
	if !stats.TodayRevenue.Equal(dec("90000")) || stats.LowStockItems != 1 || stats.ActiveEmployees != 4 || stats.TotalProducts != 3 {
		t.Fatalf("unexpected dashboard stats: %+v", stats)
	}
}

func TestCreateEmployeeWithAccount(t *testing.T) {
	svc, _ := newTestService(at(1, 9, 0))
	ctx := context.Background()

	created, err := svc.CreateEmployee(ctx, domain.EmployeeCreateRequest{
		FullName: "Lan Tran",
		Position: "Shift Lead",
		Email:    "lan@cafeops.local",
		HireDate: "2026-08-15",
		Username: "Lan",
		Password: "secret1",
		Roles:    []string{"ROLE_manager", "staff"},
	})
	if err != nil {
		t.Fatalf("create employee failed: %v", err)
	}
	if created.Status != domain.EmployeeActive || created.Username != "lan" || created.Salary.Valid {
		t.Fatalf("unexpected employee: %+v", created)
	}

	for name, req := range map[string]domain.EmployeeCreateRequest{
		"duplicate username": {FullName: "Other", Username: "lan", Password: "secret1"},
		"duplicate email":    {FullName: "Other", Username: "other", Password: "secret1", Email: "LAN@cafeops.local"},
		"short password":     {FullName: "Other", Username: "other2", Password: "123"},
		"unknown role":       {FullName: "Other", Username: "other3", Password: "secret1", Roles: []string{"ROLE_OWNER"}},
	} {
		_, err := svc.CreateEmployee(ctx, req)
		if !errors.Is(err, store.ErrInvalidRequest) && !errors.Is(err, store.ErrDuplicate) {
			t.Fatalf("%s: expected rejection, got %v", name, err)
		}
	}

	if err := svc.BootstrapAdmin(ctx, "admin", "whatever"); err != nil {
		t.Fatalf("bootstrap with existing admin failed: %v", err)
	}
	if err := svc.BootstrapAdmin(ctx, "root", "rootpass"); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	employees, _ := svc.ListEmployees(ctx, "active")
	if len(employees) != 6 {
		t.Fatalf("expected 6 active employees, got %d", len(employees))
	}
}

func TestResolveEmployee(t *testing.T) {
	staff := domain.Actor{Username: "barista", EmployeeID: "emp-barista", Roles: []domain.Role{domain.RoleStaff}}
	manager := domain.Actor{Username: "manager", EmployeeID: "emp-manager", Roles: []domain.Role{domain.RoleManager}}

	if id, err := ResolveEmployee(staff, ""); err != nil || id != "emp-barista" {
		t.Fatalf("expected staff to resolve to self, got %q %v", id, err)
	}
	if _, err := ResolveEmployee(staff, "emp-admin"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected staff acting for others to be forbidden, got %v", err)
	}
	if id, err := ResolveEmployee(manager, "emp-barista"); err != nil || id != "emp-barista" {
		t.Fatalf("expected manager to act for barista, got %q %v", id, err)
	}
}
