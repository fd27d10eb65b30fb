package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/xid"
)

// ProcessSale settles a cart against the named shift: stock and lots for
// every line and the sale income land together or not at all.
func (s *Service) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.Transaction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if strings.TrimSpace(req.ShiftID) == "" {
		return domain.Transaction{}, invalidInput("shift_id", fmt.Errorf("required"))
	}
	if len(req.Items) == 0 {
		return domain.Transaction{}, invalidInput("items", fmt.Errorf("at least one item is required"))
	}
	container, err := domain.ContainerTag(req.PaymentMethod)
	if err != nil {
		return domain.Transaction{}, invalidInput("payment_method", err)
	}

	lines := make([]domain.SaleLine, 0, len(req.Items))
	total := int64(0)
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return domain.Transaction{}, ErrInvalidQuantity
		}
		if item.UnitPriceCents < 0 {
			return domain.Transaction{}, ErrInvalidAmount
		}
		if item.UnitPriceCents > (math.MaxInt64-total)/int64(item.Quantity) {
			return domain.Transaction{}, ErrInvalidTotal
		}
		lines = append(lines, domain.SaleLine{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
		total += int64(item.Quantity) * item.UnitPriceCents
	}
	if total <= 0 {
		return domain.Transaction{}, ErrInvalidTotal
	}

	// Source is nominal on a sale income; only the destination moves money.
	sale := domain.Transaction{
		ID:          xid.New("tx"),
		ShiftID:     req.ShiftID,
		Type:        domain.TxTypeIncome,
		Category:    domain.CategorySale,
		AmountCents: total,
		Source:      domain.ContainerCash,
		Destination: container,
		Description: fmt.Sprintf("Venta POS: %d productos", len(req.Items)),
		CreatedBy:   actor.Username,
		CreatedAt:   time.Now().UTC(),
	}

	created, err := s.repo.ProcessSale(ctx, sale, lines)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "sale", "transaction", created.ID, fmt.Sprintf("shift=%s,items=%d,total=%d,container=%s,cogs=%d",
		created.ShiftID, len(lines), created.AmountCents, container, domain.ReceiptCOGS(created.Receipt)))
	return *created, nil
}
