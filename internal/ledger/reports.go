package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"opsledger/backend/internal/domain"
)

type PeriodKind string

const (
	PeriodAll     PeriodKind = "all"
	PeriodDaily   PeriodKind = "daily"
	PeriodWeekly  PeriodKind = "weekly"
	PeriodMonthly PeriodKind = "monthly"
	PeriodYearly  PeriodKind = "yearly"
	PeriodCustom  PeriodKind = "custom"
)

// Period selects entity dates for a report. Daily uses Start; weekly and
// custom use the inclusive Start..End range; monthly uses Month and Year;
// yearly uses Year.
type Period struct {
	Kind  PeriodKind
	Start string
	End   string
	Month int
	Year  int
}

// NewPeriod fills unset fields from today and validates the result.
func NewPeriod(kind PeriodKind, start, end string, month, year int, today time.Time) (Period, error) {
	if kind == "" {
		kind = PeriodAll
	}
	p := Period{Kind: kind, Start: strings.TrimSpace(start), End: strings.TrimSpace(end), Month: month, Year: year}
	todayStr := today.Format(domain.DateLayout)

	switch kind {
	case PeriodAll:
	case PeriodDaily:
		if p.Start == "" {
			p.Start = todayStr
		}
		if _, err := time.Parse(domain.DateLayout, p.Start); err != nil {
			return Period{}, invalid("start %q must be YYYY-MM-DD", p.Start)
		}
	case PeriodWeekly, PeriodCustom:
		if p.End == "" {
			p.End = todayStr
		}
		if p.Start == "" {
			if kind == PeriodWeekly {
				end, err := time.Parse(domain.DateLayout, p.End)
				if err != nil {
					return Period{}, invalid("end %q must be YYYY-MM-DD", p.End)
				}
				p.Start = end.AddDate(0, 0, -6).Format(domain.DateLayout)
			} else {
				p.Start = todayStr
			}
		}
		if _, err := time.Parse(domain.DateLayout, p.Start); err != nil {
			return Period{}, invalid("start %q must be YYYY-MM-DD", p.Start)
		}
		if _, err := time.Parse(domain.DateLayout, p.End); err != nil {
			return Period{}, invalid("end %q must be YYYY-MM-DD", p.End)
		}
		if p.Start > p.End {
			return Period{}, invalid("start %s is after end %s", p.Start, p.End)
		}
	case PeriodMonthly:
		if p.Month == 0 {
			p.Month = int(today.Month())
		}
		if p.Month < 1 || p.Month > 12 {
			return Period{}, invalid("month %d out of range", p.Month)
		}
		if p.Year == 0 {
			p.Year = today.Year()
		}
	case PeriodYearly:
		if p.Year == 0 {
			p.Year = today.Year()
		}
	default:
		return Period{}, invalid("unknown period %q", kind)
	}
	return p, nil
}

// Contains reports whether a YYYY-MM-DD date falls inside the period.
func (p Period) Contains(date string) bool {
	switch p.Kind {
	case PeriodDaily:
		return date == p.Start
	case PeriodWeekly, PeriodCustom:
		return date >= p.Start && date <= p.End
	case PeriodMonthly:
		d, err := time.Parse(domain.DateLayout, date)
		return err == nil && int(d.Month()) == p.Month && d.Year() == p.Year
	case PeriodYearly:
		d, err := time.Parse(domain.DateLayout, date)
		return err == nil && d.Year() == p.Year
	}
	return true
}

func (p Period) String() string {
	switch p.Kind {
	case PeriodDaily:
		return p.Start
	case PeriodWeekly, PeriodCustom:
		return p.Start + " to " + p.End
	case PeriodMonthly:
		return fmt.Sprintf("%d/%d", p.Month, p.Year)
	case PeriodYearly:
		return fmt.Sprintf("%d", p.Year)
	}
	return "all time"
}

// FinancialReport is the cash-basis view of a period: delivered sales minus
// purchases and expenses. An empty workerName covers every worker; the filter
// applies to orders only.
func FinancialReport(s domain.Snapshot, p Period, workerName string) domain.FinancialReport {
	report := domain.FinancialReport{
		Period:         p.String(),
		WorkerName:     workerName,
		TotalSales:     decimal.Zero,
		TotalPurchases: decimal.Zero,
		TotalExpenses:  decimal.Zero,
	}
	for _, order := range s.Orders {
		if !p.Contains(order.Date) || (workerName != "" && order.WorkerName != workerName) {
			continue
		}
		report.OrderCount++
		if order.Status == domain.OrderStatusDelivered {
			report.TotalSales = report.TotalSales.Add(order.Value())
		}
	}
	for _, purchase := range s.Purchases {
		if p.Contains(purchase.Date) {
			report.PurchaseCount++
			report.TotalPurchases = report.TotalPurchases.Add(purchase.Total)
		}
	}
	for _, expense := range s.Expenses {
		if p.Contains(expense.Date) {
			report.ExpenseCount++
			report.TotalExpenses = report.TotalExpenses.Add(expense.Amount)
		}
	}
	report.Profit = report.TotalSales.Sub(report.TotalPurchases).Sub(report.TotalExpenses)
	return report
}

// OrderReport lists the period's orders newest first with their status mix.
func OrderReport(s domain.Snapshot, p Period) domain.OrderReport {
	report := domain.OrderReport{
		Period:          p.String(),
		TotalValue:      decimal.Zero,
		ReturnRate:      decimal.Zero,
		AvgDeliveredVal: decimal.Zero,
		Orders:          []domain.Order{},
	}
	deliveredValue := decimal.Zero
	for i := len(s.Orders) - 1; i >= 0; i-- {
		order := s.Orders[i]
		if !p.Contains(order.Date) {
			continue
		}
		report.Orders = append(report.Orders, order)
		report.TotalValue = report.TotalValue.Add(order.Value())
		switch order.Status {
		case domain.OrderStatusDelivered:
			report.Delivered++
			deliveredValue = deliveredValue.Add(order.Value())
		case domain.OrderStatusReturned:
			report.Returned++
		default:
			report.InTransit++
		}
	}
	report.Count = len(report.Orders)
	if report.Count > 0 {
		report.ReturnRate = decimal.NewFromInt(int64(report.Returned)).
			Div(decimal.NewFromInt(int64(report.Count))).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	if report.Delivered > 0 {
		report.AvgDeliveredVal = deliveredValue.Div(decimal.NewFromInt(int64(report.Delivered))).Round(2)
	}
	return report
}

// WorkerReport matches orders by worker id, falling back to the copied worker
// name for orders booked before ids were recorded. Commission is paid per
// order regardless of outcome.
func WorkerReport(s domain.Snapshot, workerID string, p Period) (domain.WorkerReport, error) {
	idx, ok := s.WorkerByID(workerID)
	if !ok {
		return domain.WorkerReport{}, ErrWorkerNotFound
	}
	worker := s.Workers[idx]
	report := domain.WorkerReport{
		Period:       p.String(),
		WorkerID:     worker.ID,
		WorkerName:   worker.Name,
		PerOrderRate: worker.PerOrderRate,
		Orders:       []domain.Order{},
	}
	for i := len(s.Orders) - 1; i >= 0; i-- {
		order := s.Orders[i]
		if !p.Contains(order.Date) {
			continue
		}
		if order.WorkerID != worker.ID && order.WorkerName != worker.Name {
			continue
		}
		report.Orders = append(report.Orders, order)
		switch order.Status {
		case domain.OrderStatusDelivered:
			report.Delivered++
		case domain.OrderStatusReturned:
			report.Returned++
		}
	}
	report.Total = len(report.Orders)
	report.Commission = worker.PerOrderRate.Mul(decimal.NewFromInt(int64(report.Total)))
	return report, nil
}
