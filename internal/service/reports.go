package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
)

const (
	defaultReportDays = 7
	maxReportDays     = 366
)

// reportCalc caches per-product ingredient cost and per-month labor cost
// across the days of one report run.
type reportCalc struct {
	svc       *Service
	unitCosts map[string]decimal.Decimal
	labor     map[string]decimal.Decimal
}

func (s *Service) newReportCalc() *reportCalc {
	return &reportCalc{
		svc:       s,
		unitCosts: make(map[string]decimal.Decimal),
		labor:     make(map[string]decimal.Decimal),
	}
}

func (c *reportCalc) unitCost(ctx context.Context, productID string) (decimal.Decimal, error) {
	if cost, ok := c.unitCosts[productID]; ok {
		return cost, nil
	}
	product, err := c.svc.repo.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	cost := decimal.Zero
	for _, line := range product.Ingredients {
		cost = cost.Add(line.QuantityRequired.Mul(line.PricePerUnit))
	}
	c.unitCosts[productID] = cost
	return cost, nil
}

func (c *reportCalc) dailyLabor(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	key := day.Format("2006-01")
	if cost, ok := c.labor[key]; ok {
		return cost, nil
	}
	paid, err := c.svc.repo.SumPaidSalaries(ctx, int(day.Month()), day.Year())
	if err != nil {
		return decimal.Zero, err
	}
	cost := domain.Round2(paid.Div(decimal.NewFromInt(int64(c.svc.policy.ReportProrationDays))))
	c.labor[key] = cost
	return cost, nil
}

func (c *reportCalc) report(ctx context.Context, day time.Time) (domain.DailyReport, error) {
	loc := c.svc.policy.Location
	from := domain.AtLocalTime(day, 0, 0, loc)
	to := domain.AtLocalTime(day.AddDate(0, 0, 1), 0, 0, loc)

	orders, _, err := c.svc.repo.ListOrders(ctx, domain.OrderFilter{From: &from, To: &to})
	if err != nil {
		return domain.DailyReport{}, err
	}

	report := domain.DailyReport{Date: day.Format(time.DateOnly), TotalOrders: len(orders)}
	revenue := decimal.Zero
	ingredientCost := decimal.Zero
	for _, order := range orders {
		switch order.Status {
		case domain.OrderCompleted:
			report.CompletedOrders++
		case domain.OrderCancelled:
			report.CancelledOrders++
			continue
		case domain.OrderPending:
			report.PendingOrders++
			continue
		default:
			continue
		}
		revenue = revenue.Add(order.TotalAmount)
		for _, item := range order.Items {
			unit, err := c.unitCost(ctx, item.ProductID)
			if err != nil {
				return domain.DailyReport{}, err
			}
			ingredientCost = ingredientCost.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	labor, err := c.dailyLabor(ctx, day)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.TotalRevenue = domain.Round2(revenue)
	report.IngredientCost = domain.Round2(ingredientCost)
	report.LaborCost = labor
	report.TotalCost = report.IngredientCost.Add(report.LaborCost)
	report.Profit = report.TotalRevenue.Sub(report.TotalCost)
	return report, nil
}

// DailyReport aggregates orders and costs for one local calendar date,
// today when date is empty.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	day := s.today()
	if date != "" {
		parsed, err := parseDate(date)
		if err != nil {
			return domain.DailyReport{}, err
		}
		day = parsed
	}
	return s.newReportCalc().report(ctx, day)
}

// DailyReports returns one report per day in the inclusive range. Both ends
// are optional and default to the last seven days through today.
func (s *Service) DailyReports(ctx context.Context, start string, end string) ([]domain.DailyReport, error) {
	last := s.today()
	if parsed, err := parseOptionalDate(end); err != nil {
		return nil, err
	} else if parsed != nil {
		last = *parsed
	}
	first := last.AddDate(0, 0, -(defaultReportDays - 1))
	if parsed, err := parseOptionalDate(start); err != nil {
		return nil, err
	} else if parsed != nil {
		first = *parsed
	}
	if last.Before(first) {
		return nil, store.Invalid("end date must not be before start date")
	}
	if days := int(last.Sub(first).Hours()/24) + 1; days > maxReportDays {
		return nil, store.Invalid("date range must not exceed %d days", maxReportDays)
	}

	calc := s.newReportCalc()
	reports := make([]domain.DailyReport, 0, defaultReportDays)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		report, err := calc.report(ctx, day)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	var err error

	if stats.TotalOrders, err = s.repo.CountOrders(ctx, ""); err != nil {
		return stats, err
	}
	if stats.PendingOrders, err = s.repo.CountOrders(ctx, domain.OrderPending); err != nil {
		return stats, err
	}
	if stats.CompletedOrders, err = s.repo.CountOrders(ctx, domain.OrderCompleted); err != nil {
		return stats, err
	}

	loc := s.policy.Location
	today := s.today()
	dayStart := domain.AtLocalTime(today, 0, 0, loc)
	dayEnd := domain.AtLocalTime(today.AddDate(0, 0, 1), 0, 0, loc)
	monthStart := domain.AtLocalTime(time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC), 0, 0, loc)

	todayRevenue, err := s.repo.SumRevenue(ctx, dayStart, dayEnd)
	if err != nil {
		return stats, err
	}
	monthRevenue, err := s.repo.SumRevenue(ctx, monthStart, dayEnd)
	if err != nil {
		return stats, err
	}
	stats.TodayRevenue = domain.Round2(todayRevenue)
	stats.MonthRevenue = domain.Round2(monthRevenue)

	lowStock, err := s.repo.ListLowStockIngredients(ctx)
	if err != nil {
		return stats, err
	}
	stats.LowStockItems = len(lowStock)

	active, err := s.repo.ListEmployees(ctx, domain.EmployeeActive)
	if err != nil {
		return stats, err
	}
	stats.ActiveEmployees = len(active)

	_, stats.TotalProducts, err = s.repo.ListProducts(ctx, domain.ProductFilter{Limit: 1})
	if err != nil {
		return stats, err
	}
	return stats, nil
}
