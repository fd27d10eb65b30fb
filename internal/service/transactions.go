package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/ledger"
	"kiosco/backend/internal/xid"
)

// AddTransaction records a manual income or expense against the open shift.
// Sales only come from ProcessSale.
func (s *Service) AddTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if req.AmountCents <= 0 {
		return domain.Transaction{}, ErrInvalidAmount
	}
	if strings.TrimSpace(req.ShiftID) == "" {
		return domain.Transaction{}, invalidInput("shift_id", fmt.Errorf("required"))
	}
	mapped, err := domain.MapTransactionInput(req.Type, req.Category, req.Container)
	if err != nil {
		return domain.Transaction{}, invalidInput("type/category/container", err)
	}
	if mapped.Category == domain.CategorySale {
		return domain.Transaction{}, invalidInput("category", fmt.Errorf("sales are recorded through the sale endpoint"))
	}
	if domain.IsAdminOnlyCategory(mapped.Category) && !actor.IsAdmin() {
		return domain.Transaction{}, ErrAdminRequired
	}

	tx := domain.Transaction{
		ID:          xid.New("tx"),
		ShiftID:     req.ShiftID,
		Type:        mapped.Type,
		Category:    mapped.Category,
		AmountCents: req.AmountCents,
		Source:      mapped.Source,
		Destination: mapped.Destination,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   actor.Username,
		CreatedAt:   time.Now().UTC(),
	}
	created, err := s.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "transaction_create", "transaction", created.ID, fmt.Sprintf("type=%s,category=%s,amount=%d,container=%s",
		created.Type, created.Category, created.AmountCents, created.Container()))
	return *created, nil
}

// AddSafeTransaction deposits into or withdraws from the safe. It does not
// belong to any shift.
func (s *Service) AddSafeTransaction(ctx context.Context, req domain.ContainerMovementRequest) (domain.Transaction, error) {
	return s.addContainerMovement(ctx, domain.ContainerSafe, domain.CategorySafeDeposit, domain.CategorySafeWithdrawal, req)
}

// AddPettyCashTransaction deposits into or withdraws from petty cash. It does
// not belong to any shift.
func (s *Service) AddPettyCashTransaction(ctx context.Context, req domain.ContainerMovementRequest) (domain.Transaction, error) {
	return s.addContainerMovement(ctx, domain.ContainerPettyCash, domain.CategoryPettyCashDeposit, domain.CategoryPettyCashWithdrawal, req)
}

// AddContainerMovement dispatches on the container named in a route.
func (s *Service) AddContainerMovement(ctx context.Context, container string, req domain.ContainerMovementRequest) (domain.Transaction, error) {
	tag, err := domain.ContainerTag(container)
	if err != nil {
		return domain.Transaction{}, invalidInput("container", err)
	}
	switch tag {
	case domain.ContainerSafe:
		return s.AddSafeTransaction(ctx, req)
	case domain.ContainerPettyCash:
		return s.AddPettyCashTransaction(ctx, req)
	default:
		return domain.Transaction{}, invalidInput("container", fmt.Errorf("%s only moves through shift transactions", tag))
	}
}

func (s *Service) addContainerMovement(ctx context.Context, container string, depositCategory string, withdrawalCategory string, req domain.ContainerMovementRequest) (domain.Transaction, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if req.AmountCents <= 0 {
		return domain.Transaction{}, ErrInvalidAmount
	}
	txType, err := domain.TransactionTypeTag(req.Type)
	if err != nil {
		return domain.Transaction{}, invalidInput("type", err)
	}
	category := depositCategory
	if txType == domain.TxTypeExpense {
		category = withdrawalCategory
	}
	mapped, err := domain.MapTransactionInput(txType, category, container)
	if err != nil {
		return domain.Transaction{}, invalidInput("type/category/container", err)
	}

	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		ID:          xid.New("tx"),
		Type:        mapped.Type,
		Category:    mapped.Category,
		AmountCents: req.AmountCents,
		Source:      mapped.Source,
		Destination: mapped.Destination,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   actor.Username,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "container_movement", "transaction", created.ID, fmt.Sprintf("container=%s,category=%s,amount=%d",
		container, created.Category, created.AmountCents))
	return *created, nil
}

// ListContainerTransactions lists the movements whose balance effect lands on
// the container, newest first.
func (s *Service) ListContainerTransactions(ctx context.Context, container string, limit int) ([]domain.Transaction, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	tag, err := domain.ContainerTag(container)
	if err != nil {
		return nil, invalidInput("container", err)
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListTransactions(ctx, domain.TransactionFilter{Container: tag, Limit: limit})
}

// DeleteTransaction voids a transaction. A sale gives its receipt quantities
// back to product stock; its cost lots stay consumed.
func (s *Service) DeleteTransaction(ctx context.Context, txID string) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return notFoundAs(err, ErrTransactionNotFound)
	}

	if !actor.IsAdmin() {
		if tx.Category != domain.CategorySale {
			return ErrSalesOnly
		}
		shift, err := s.repo.GetShift(ctx, tx.ShiftID)
		if err != nil || shift.Status != domain.ShiftStatusOpen || shift.OpenedBy != actor.Username {
			return ErrOwnShiftOnly
		}
	}

	var restock []domain.StockAdjustment
	if tx.Category == domain.CategorySale && len(tx.Receipt) > 0 {
		lines, err := domain.DecodeReceipt(tx.Receipt)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"transaction_id": tx.ID,
				"error":          err.Error(),
			}).Error("unreadable sale receipt; voiding without restoring stock")
		} else {
			restock = domain.RestockFromReceipt(lines)
		}
	}

	if _, err := s.repo.DeleteTransaction(ctx, tx.ID, restock); err != nil {
		return notFoundAs(err, ErrTransactionNotFound)
	}

	s.logAudit(ctx, "transaction_void", "transaction", tx.ID, fmt.Sprintf("category=%s,amount=%d,restocked_products=%d",
		tx.Category, tx.AmountCents, len(restock)))
	return nil
}

// GetBalances folds the whole transaction history plus the opening amounts
// of the open shift. Nothing is cached.
func (s *Service) GetBalances(ctx context.Context) (domain.Balances, error) {
	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{})
	if err != nil {
		return domain.Balances{}, err
	}
	shifts, err := s.repo.ListOpenShifts(ctx)
	if err != nil {
		return domain.Balances{}, err
	}
	return ledger.FoldBalances(txs, shifts), nil
}
