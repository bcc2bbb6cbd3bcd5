package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"restopos/backend/internal/domain"
)

const topItemLimit = 5

// DailySummary computes the day's figures from live orders and the ledger.
// An empty date means today (UTC).
func (s *Service) DailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	from, err := s.businessDay(date)
	if err != nil {
		return domain.DailySummary{}, err
	}
	to := from.Add(24 * time.Hour)

	orders, err := s.repo.ListOrders(ctx, domain.OrderFilter{From: from, To: to})
	if err != nil {
		return domain.DailySummary{}, err
	}
	entries, err := s.repo.ListLedgerEntries(ctx, domain.LedgerFilter{
		Classification: domain.ClassificationSales,
		From:           from,
		To:             to,
	})
	if err != nil {
		return domain.DailySummary{}, err
	}

	summary := domain.DailySummary{
		BusinessDate:       from.Format("2006-01-02"),
		NetSales:           decimal.Zero,
		Refunds:            decimal.Zero,
		PaymentTotals:      map[string]decimal.Decimal{},
		TopItems:           []domain.TopItem{},
		CashierPerformance: []domain.CashierPerformance{},
		CreatedAt:          s.now(),
	}
	for _, e := range entries {
		switch e.Type {
		case domain.LedgerRevenue:
			summary.NetSales = summary.NetSales.Add(e.Amount)
		case domain.LedgerExpense:
			summary.Refunds = summary.Refunds.Add(e.Amount)
		}
	}
	summary.NetSales = summary.NetSales.Sub(summary.Refunds)

	items := map[int64]*domain.TopItem{}
	cashiers := map[string]*domain.CashierPerformance{}
	for _, o := range orders {
		if o.Status == domain.OrderStatusRejected {
			continue
		}
		summary.OrderCount++
		if o.PaymentStatus == domain.PaymentStatusPaid {
			summary.PaymentTotals[o.PaymentMethod] = summary.PaymentTotals[o.PaymentMethod].Add(o.FinalAmount)
		}
		for _, l := range o.Lines {
			item, ok := items[l.ProductID]
			if !ok {
				item = &domain.TopItem{ProductID: l.ProductID, ProductName: l.ProductName, Revenue: decimal.Zero}
				items[l.ProductID] = item
			}
			item.Quantity += l.Quantity
			item.Revenue = item.Revenue.Add(l.Subtotal())
		}
		username := o.CashierUsername
		if username == "" {
			username = "online"
		}
		perf, ok := cashiers[username]
		if !ok {
			perf = &domain.CashierPerformance{Username: username, NetSales: decimal.Zero}
			cashiers[username] = perf
		}
		perf.OrderCount++
		perf.NetSales = perf.NetSales.Add(o.FinalAmount)
	}

	for _, item := range items {
		summary.TopItems = append(summary.TopItems, *item)
	}
	slices.SortFunc(summary.TopItems, func(a, b domain.TopItem) int {
		if a.Quantity != b.Quantity {
			return b.Quantity - a.Quantity
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	if len(summary.TopItems) > topItemLimit {
		summary.TopItems = summary.TopItems[:topItemLimit]
	}

	for _, perf := range cashiers {
		summary.CashierPerformance = append(summary.CashierPerformance, *perf)
	}
	slices.SortFunc(summary.CashierPerformance, func(a, b domain.CashierPerformance) int {
		if c := b.NetSales.Cmp(a.NetSales); c != 0 {
			return c
		}
		return strings.Compare(a.Username, b.Username)
	})
	return summary, nil
}

// SaveDailySummary persists the live summary so it survives ArchiveDay.
func (s *Service) SaveDailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.DailySummary{}, err
	}
	summary, err := s.DailySummary(ctx, date)
	if err != nil {
		return domain.DailySummary{}, err
	}
	// a stale snapshot must not outlive a re-save, even if the refill fails
	if err := s.summaries.Delete(ctx, summary.BusinessDate); err != nil {
		s.logger.Warn("summary cache delete failed", zap.String("business_date", summary.BusinessDate), zap.Error(err))
	}
	if err := s.repo.SaveDailySummary(ctx, summary); err != nil {
		return domain.DailySummary{}, err
	}
	if err := s.summaries.Set(ctx, summary, s.summaryTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.String("business_date", summary.BusinessDate), zap.Error(err))
	}
	s.logAudit(ctx, "daily_summary_save", "daily_summary", summary.BusinessDate, "net_sales="+summary.NetSales.StringFixed(2))
	return summary, nil
}

func (s *Service) GetDailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	day, err := s.businessDay(date)
	if err != nil {
		return domain.DailySummary{}, err
	}
	key := day.Format("2006-01-02")
	if cached, ok, err := s.summaries.Get(ctx, key); err != nil {
		s.logger.Warn("summary cache read failed", zap.String("business_date", key), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	summary, err := s.repo.GetDailySummary(ctx, key)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if err := s.summaries.Set(ctx, *summary, s.summaryTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.String("business_date", key), zap.Error(err))
	}
	return *summary, nil
}

func (s *Service) businessDay(date string) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		now := s.now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, invalidf("date must be YYYY-MM-DD")
	}
	return parsed.UTC(), nil
}
