package service

import (
	"errors"
	"fmt"

	"kiosco/backend/internal/store"
)

// User-facing failures. Handlers surface their text verbatim.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrAdminRequired       = errors.New("admin role required")
	ErrSalesOnly           = errors.New("unauthorized: sales only")
	ErrOwnShiftOnly        = errors.New("unauthorized: only sales of your open shift")
	ErrShiftAlreadyOpen    = errors.New("shift already open")
	ErrShiftNotOpen        = store.ErrShiftNotOpen
	ErrInvalidAmounts      = errors.New("invalid amounts")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidCost         = errors.New("invalid cost")
	ErrMissingReason       = errors.New("missing reason")
	ErrInvalidTotal        = errors.New("invalid total")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidBarcode      = errors.New("invalid barcode")
	ErrOperationInProgress = errors.New("another shift operation is in progress")

	ErrProductNotFound     = fmt.Errorf("product %w", store.ErrNotFound)
	ErrShiftNotFound       = fmt.Errorf("shift %w", store.ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", store.ErrNotFound)
)

var errRangeOrder = errors.New("from must not be after to")

func invalidInput(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidInput, field, err)
}

func notFoundAs(err error, named error) error {
	if errors.Is(err, store.ErrNotFound) {
		return named
	}
	return err
}
