package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/ledger"
	"kiosco/backend/internal/store"
	"kiosco/backend/internal/xid"
)

const dateLayout = "2006-01-02"

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	if req.OpeningCashCents < 0 || req.OpeningDigitalCents < 0 {
		return domain.Shift{}, ErrInvalidAmounts
	}
	period, err := domain.PeriodTag(req.Period)
	if err != nil {
		return domain.Shift{}, invalidInput("period", err)
	}
	businessDate := strings.TrimSpace(req.BusinessDate)
	if businessDate == "" {
		businessDate = time.Now().UTC().Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, businessDate); err != nil {
		return domain.Shift{}, invalidInput("business_date", err)
	}

	shift := domain.Shift{
		ID:                  xid.New("shift"),
		BusinessDate:        businessDate,
		Period:              period,
		OpenedBy:            actor.Username,
		OpenedAt:            time.Now().UTC(),
		OpeningCashCents:    req.OpeningCashCents,
		OpeningDigitalCents: req.OpeningDigitalCents,
		Status:              domain.ShiftStatusOpen,
	}

	var saved *domain.Shift
	err = s.withShiftLock(ctx, "shift_open", func() error {
		var createErr error
		saved, createErr = s.repo.CreateShift(ctx, shift)
		return createErr
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Shift{}, ErrShiftAlreadyOpen
		}
		return domain.Shift{}, err
	}

	s.logAudit(ctx, "shift_open", "shift", saved.ID, fmt.Sprintf("date=%s,period=%s,cash=%d,digital=%d",
		saved.BusinessDate, saved.Period, saved.OpeningCashCents, saved.OpeningDigitalCents))
	return *saved, nil
}

// CloseShift settles the shift against its own transactions. Negative
// balances are persisted as zero; the hidden shortfall is kept on the shift
// and logged.
func (s *Service) CloseShift(ctx context.Context, shiftID string, req domain.ShiftCloseRequest) (domain.Shift, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Shift{}, err
	}
	if (req.FinalCashCents != nil && *req.FinalCashCents < 0) || (req.FinalDigitalCents != nil && *req.FinalDigitalCents < 0) {
		return domain.Shift{}, ErrInvalidAmounts
	}

	var closed *domain.Shift
	err := s.withShiftLock(ctx, "shift_close", func() error {
		var closeErr error
		closed, closeErr = s.repo.CloseShift(ctx, shiftID, req, time.Now().UTC())
		return closeErr
	})
	if err != nil {
		return domain.Shift{}, notFoundAs(err, ErrShiftNotFound)
	}

	if closed.CashShortfallCents > 0 || closed.DigitalShortfallCents > 0 {
		s.logger.WithFields(logrus.Fields{
			"shift_id":                closed.ID,
			"cash_shortfall_cents":    closed.CashShortfallCents,
			"digital_shortfall_cents": closed.DigitalShortfallCents,
		}).Warn("shift closed with negative balance clamped to zero")
	}
	s.logAudit(ctx, "shift_close", "shift", closed.ID, fmt.Sprintf("cash=%d,digital=%d,cash_shortfall=%d,digital_shortfall=%d",
		closed.ClosingCashCents, closed.ClosingDigitalCents, closed.CashShortfallCents, closed.DigitalShortfallCents))
	return *closed, nil
}

// DeleteShift purges a shift and every transaction that belongs to it.
func (s *Service) DeleteShift(ctx context.Context, shiftID string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}

	removed := 0
	err := s.withShiftLock(ctx, "shift_delete", func() error {
		var deleteErr error
		removed, deleteErr = s.repo.DeleteShift(ctx, shiftID)
		return deleteErr
	})
	if err != nil {
		return notFoundAs(err, ErrShiftNotFound)
	}

	s.logAudit(ctx, "shift_delete", "shift", shiftID, fmt.Sprintf("transactions_removed=%d", removed))
	return nil
}

// GetCurrentShift returns the open shift with its running balances.
func (s *Service) GetCurrentShift(ctx context.Context) (domain.CurrentShiftResponse, error) {
	shift, err := s.repo.GetOpenShift(ctx)
	if err != nil {
		return domain.CurrentShiftResponse{}, notFoundAs(err, ErrShiftNotFound)
	}
	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{ShiftID: shift.ID})
	if err != nil {
		return domain.CurrentShiftResponse{}, err
	}
	return domain.CurrentShiftResponse{
		Shift:   *shift,
		Running: ledger.SettleShift(*shift, txs),
	}, nil
}

func (s *Service) ListClosedShifts(ctx context.Context, limit int) ([]domain.Shift, error) {
	if limit < 1 {
		limit = 5
	}
	return s.repo.ListShifts(ctx, domain.ShiftStatusClosed, time.Time{}, time.Time{}, limit)
}

func (s *Service) ListShiftTransactions(ctx context.Context, shiftID string) ([]domain.Transaction, error) {
	if _, err := s.repo.GetShift(ctx, shiftID); err != nil {
		return nil, notFoundAs(err, ErrShiftNotFound)
	}
	return s.repo.ListTransactions(ctx, domain.TransactionFilter{ShiftID: shiftID})
}
