package domain

import (
	"encoding/json"
	"errors"
)

var ErrEmptyReceipt = errors.New("empty receipt")

func EncodeReceipt(lines []ReceiptLine) (json.RawMessage, error) {
	payload, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// DecodeReceipt parses a serialized sale receipt.
func DecodeReceipt(raw json.RawMessage) ([]ReceiptLine, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyReceipt
	}
	var lines []ReceiptLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// RestockFromReceipt sums receipt quantities per product, in first-seen order.
func RestockFromReceipt(lines []ReceiptLine) []StockAdjustment {
	index := make(map[string]int, len(lines))
	adjustments := make([]StockAdjustment, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity < 1 {
			continue
		}
		if i, ok := index[line.ProductID]; ok {
			adjustments[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(adjustments)
		adjustments = append(adjustments, StockAdjustment{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return adjustments
}

// ReceiptCOGS sums the cost of goods sold recorded on a receipt. Unreadable
// receipts count as zero.
func ReceiptCOGS(raw json.RawMessage) int64 {
	lines, err := DecodeReceipt(raw)
	if err != nil {
		return 0
	}
	total := int64(0)
	for _, line := range lines {
		total += line.COGSCents
	}
	return total
}

// Container is the container whose balance the transaction moves: the
// destination of an income or the source of an expense.
func (t Transaction) Container() string {
	if t.Type == TxTypeExpense {
		return CanonicalContainer(t.Source)
	}
	return CanonicalContainer(t.Destination)
}
