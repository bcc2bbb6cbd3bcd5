package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

// bookOrderRevenue records the sale of an order and credits its bank.
// Hospitality orders and zero-value orders book nothing.
func (s *Service) bookOrderRevenue(ctx context.Context, tx store.Tx, order domain.Order) error {
	if order.PaymentMethod == domain.PaymentMethodHospitality || !order.FinalAmount.IsPositive() {
		return nil
	}
	orderID := order.ID
	_, err := s.insertEntry(ctx, tx, domain.LedgerEntry{
		Type:           domain.LedgerRevenue,
		Classification: domain.ClassificationSales,
		Amount:         order.FinalAmount,
		Currency:       s.currency,
		Description:    fmt.Sprintf("order #%d", order.ID),
		RelatedID:      &orderID,
		BankID:         order.BankID,
		CreatedAt:      s.now(),
	})
	return err
}

// bookOrderRefund records the reversal of a rejected order. It is booked for
// the full final amount whether or not revenue was booked before, and never
// touches a bank.
func (s *Service) bookOrderRefund(ctx context.Context, tx store.Tx, order domain.Order) error {
	if !order.FinalAmount.IsPositive() {
		return nil
	}
	orderID := order.ID
	_, err := tx.InsertLedgerEntry(ctx, domain.LedgerEntry{
		Type:           domain.LedgerExpense,
		Classification: domain.ClassificationSales,
		Amount:         order.FinalAmount,
		Currency:       s.currency,
		Description:    fmt.Sprintf("refund order #%d", order.ID),
		RelatedID:      &orderID,
		CreatedAt:      s.now(),
	})
	return err
}

// insertEntry appends a ledger entry and moves the linked bank, if any, by the
// signed amount.
func (s *Service) insertEntry(ctx context.Context, tx store.Tx, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	saved, err := tx.InsertLedgerEntry(ctx, entry)
	if err != nil {
		return nil, err
	}
	if entry.BankID != nil {
		if err := s.moveBank(ctx, tx, *entry.BankID, entry.Signed()); err != nil {
			return nil, err
		}
	}
	return saved, nil
}

func (s *Service) moveBank(ctx context.Context, tx store.Tx, bankID int64, delta decimal.Decimal) error {
	bank, err := tx.GetBankByID(ctx, bankID)
	if err != nil {
		return err
	}
	_, err = tx.AdjustBankBalance(ctx, bank.Name, delta)
	return err
}

// BookEntry records a manual revenue or expense entry.
func (s *Service) BookEntry(ctx context.Context, req domain.LedgerEntryRequest) (domain.LedgerEntry, error) {
	if err := s.validateRequest(req); err != nil {
		return domain.LedgerEntry{}, err
	}
	if !req.Classification.Valid() {
		return domain.LedgerEntry{}, invalidf("unknown classification %q", req.Classification)
	}
	if !req.Amount.IsPositive() {
		return domain.LedgerEntry{}, invalidf("amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}

	var saved *domain.LedgerEntry
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		saved, err = s.insertEntry(ctx, tx, domain.LedgerEntry{
			Type:           req.Type,
			Classification: req.Classification,
			Amount:         req.Amount,
			Currency:       currency,
			Description:    strings.TrimSpace(req.Description),
			RelatedID:      req.RelatedID,
			BankID:         req.BankID,
			CreatedAt:      s.now(),
		})
		return err
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	s.logAudit(ctx, "ledger_entry_create", "ledger_entry", strconv.FormatInt(saved.ID, 10),
		fmt.Sprintf("type=%s,classification=%s,amount=%s", saved.Type, saved.Classification, saved.Amount.StringFixed(2)))
	return *saved, nil
}

// UpdateEntry edits a manual entry before reconciliation. Entries booked by
// the order lifecycle carry a RelatedID and cannot be edited.
func (s *Service) UpdateEntry(ctx context.Context, entryID int64, req domain.LedgerEntryUpdateRequest) (domain.LedgerEntry, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.LedgerEntry{}, err
	}
	if req.Classification == nil && req.Amount == nil && req.Description == nil {
		return domain.LedgerEntry{}, invalidf("nothing to update")
	}

	var updated *domain.LedgerEntry
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetLedgerEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if current.RelatedID != nil {
			return fmt.Errorf("%w: entry %d belongs to order #%d", store.ErrConflict, current.ID, *current.RelatedID)
		}

		next := *current
		if req.Classification != nil {
			if !req.Classification.Valid() {
				return invalidf("unknown classification %q", *req.Classification)
			}
			next.Classification = *req.Classification
		}
		if req.Amount != nil {
			if !req.Amount.IsPositive() {
				return invalidf("amount must be positive")
			}
			next.Amount = *req.Amount
		}
		if req.Description != nil {
			next.Description = strings.TrimSpace(*req.Description)
		}

		if current.BankID != nil && !next.Amount.Equal(current.Amount) {
			if err := s.moveBank(ctx, tx, *current.BankID, next.Signed().Sub(current.Signed())); err != nil {
				return err
			}
		}
		updated, err = tx.UpdateLedgerEntry(ctx, next)
		return err
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	s.logAudit(ctx, "ledger_entry_update", "ledger_entry", strconv.FormatInt(updated.ID, 10),
		fmt.Sprintf("classification=%s,amount=%s", updated.Classification, updated.Amount.StringFixed(2)))
	return *updated, nil
}

func (s *Service) ListLedgerEntries(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error) {
	if filter.Type != "" && filter.Type != domain.LedgerRevenue && filter.Type != domain.LedgerExpense {
		return nil, invalidf("unknown entry type %q", filter.Type)
	}
	if filter.Classification != "" && !filter.Classification.Valid() {
		return nil, invalidf("unknown classification %q", filter.Classification)
	}
	if filter.Limit < 1 {
		filter.Limit = 100
	}
	return s.repo.ListLedgerEntries(ctx, filter)
}

func (s *Service) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	return s.repo.ListBanks(ctx)
}

// AdjustBankBalance moves a bank balance by delta. No floor is enforced.
func (s *Service) AdjustBankBalance(ctx context.Context, bankName string, delta decimal.Decimal) (domain.Bank, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Bank{}, err
	}
	bankName = strings.TrimSpace(bankName)
	if bankName == "" {
		return domain.Bank{}, invalidf("bank name required")
	}
	if delta.IsZero() {
		return domain.Bank{}, invalidf("delta must not be zero")
	}

	var bank *domain.Bank
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		bank, err = tx.AdjustBankBalance(ctx, bankName, delta)
		return err
	})
	if err != nil {
		return domain.Bank{}, err
	}

	s.logger.Info("bank balance adjusted", zap.String("bank", bank.Name), zap.String("delta", delta.StringFixed(2)))
	s.logAudit(ctx, "bank_adjust", "bank", strconv.FormatInt(bank.ID, 10), fmt.Sprintf("delta=%s", delta.StringFixed(2)))
	return *bank, nil
}
