package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

// ArchiveDay empties the operational tables for a new business day and
// restarts order numbering at 1. Ledger entries, banks, inventory and
// notifications are kept. The audit row is written in the same unit.
func (s *Service) ArchiveDay(ctx context.Context) (domain.ArchiveResult, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.ArchiveResult{}, err
	}

	var result domain.ArchiveResult
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		result, err = tx.ResetDay(ctx)
		if err != nil {
			return err
		}
		detail := fmt.Sprintf("orders=%d,lines=%d,missions=%d", result.ArchivedOrders, result.ArchivedLines, result.ArchivedMissions)
		return tx.CreateAuditLog(ctx, s.auditEntry(ctx, "end_of_day", "business_day", result.ArchivedAt.Format("2006-01-02"), detail))
	})
	if err != nil {
		return domain.ArchiveResult{}, err
	}

	s.logger.Info("business day archived",
		zap.Int("orders", result.ArchivedOrders),
		zap.Int("lines", result.ArchivedLines),
		zap.Int("missions", result.ArchivedMissions),
	)
	return result, nil
}
