package domain

import (
	"errors"
	"strings"
)

// Storage tags for transaction types, categories, containers and shift periods.
const (
	TxTypeIncome  = "INCOME"
	TxTypeExpense = "EXPENSE"

	CategorySale                = "SALE"
	CategoryProviderPayment     = "PROVIDER_PAYMENT"
	CategorySalaryAdvance       = "SALARY_ADVANCE"
	CategoryToPettyCash         = "TO_PETTY_CASH"
	CategoryPettyCashDeposit    = "PETTY_CASH_DEPOSIT"
	CategoryPettyCashWithdrawal = "PETTY_CASH_WITHDRAWAL"
	CategorySafeDeposit         = "SAFE_DEPOSIT"
	CategorySafeWithdrawal      = "SAFE_WITHDRAWAL"
	CategoryOtherIncome         = "INCOME"
	CategoryOtherExpense        = "EXPENSE"

	ContainerCash        = "CASH"
	ContainerMercadoPago = "MERCADO_PAGO"
	ContainerPettyCash   = "PETTY_CASH"
	ContainerSafe        = "SAFE"

	PeriodMorning   = "MORNING"
	PeriodAfternoon = "AFTERNOON"
	PeriodNight     = "NIGHT"
)

var ErrUnknownTerm = errors.New("unknown term")

type term struct {
	human   string
	tag     string
	aliases []string
}

// The tables below are the single source for translating between the names
// operators use and the tags that are persisted.
var (
	txTypeTerms = []term{
		{human: "ingreso", tag: TxTypeIncome},
		{human: "egreso", tag: TxTypeExpense},
	}

	categoryTerms = []term{
		{human: "venta", tag: CategorySale},
		{human: "proveedor", tag: CategoryProviderPayment},
		{human: "sueldo", tag: CategorySalaryAdvance},
		{human: "retiro_chica", tag: CategoryToPettyCash},
		{human: "deposito_chica", tag: CategoryPettyCashDeposit},
		{human: "otro_ingreso", tag: CategoryOtherIncome},
		{human: "otro_egreso", tag: CategoryOtherExpense},
		{human: "retiro_caja_chica", tag: CategoryPettyCashWithdrawal},
		{human: "deposito_caja_fuerte", tag: CategorySafeDeposit},
		{human: "retiro_caja_fuerte", tag: CategorySafeWithdrawal},
	}

	containerTerms = []term{
		{human: "efectivo", tag: ContainerCash},
		{human: "mercado_pago", tag: ContainerMercadoPago},
		{human: "caja_chica", tag: ContainerPettyCash, aliases: []string{"CAJA_CHICA"}},
		{human: "caja_fuerte", tag: ContainerSafe, aliases: []string{"CAJA_FUERTE"}},
	}

	periodTerms = []term{
		{human: "manana", tag: PeriodMorning, aliases: []string{"mañana"}},
		{human: "tarde", tag: PeriodAfternoon},
		{human: "noche", tag: PeriodNight},
	}

	// Categories only reachable through the admin container movements.
	adminOnlyCategories = map[string]bool{
		CategoryPettyCashWithdrawal: true,
		CategorySafeDeposit:         true,
		CategorySafeWithdrawal:      true,
	}
)

func lookupTag(terms []term, value string) (string, error) {
	needle := strings.TrimSpace(value)
	if needle == "" {
		return "", ErrUnknownTerm
	}
	for _, t := range terms {
		if strings.EqualFold(needle, t.human) || strings.EqualFold(needle, t.tag) {
			return t.tag, nil
		}
		for _, alias := range t.aliases {
			if strings.EqualFold(needle, alias) {
				return t.tag, nil
			}
		}
	}
	return "", ErrUnknownTerm
}

func lookupHuman(terms []term, tag string) string {
	for _, t := range terms {
		if t.tag == tag {
			return t.human
		}
	}
	return strings.ToLower(tag)
}

func TransactionTypeTag(value string) (string, error) { return lookupTag(txTypeTerms, value) }
func CategoryTag(value string) (string, error)        { return lookupTag(categoryTerms, value) }
func ContainerTag(value string) (string, error)       { return lookupTag(containerTerms, value) }
func PeriodTag(value string) (string, error)          { return lookupTag(periodTerms, value) }

func HumanTransactionType(tag string) string { return lookupHuman(txTypeTerms, tag) }
func HumanCategory(tag string) string        { return lookupHuman(categoryTerms, tag) }
func HumanContainer(tag string) string       { return lookupHuman(containerTerms, tag) }
func HumanPeriod(tag string) string          { return lookupHuman(periodTerms, tag) }

// CanonicalContainer resolves stored container values, including legacy
// aliases, to their canonical tag. Unknown values come back unchanged.
func CanonicalContainer(value string) string {
	if tag, err := ContainerTag(value); err == nil {
		return tag
	}
	return value
}

// ContainerValues lists every stored value that folds into the container:
// its tag followed by its legacy aliases.
func ContainerValues(tag string) []string {
	for _, t := range containerTerms {
		if t.tag == tag {
			return append([]string{t.tag}, t.aliases...)
		}
	}
	return []string{tag}
}

func IsAdminOnlyCategory(tag string) bool {
	return adminOnlyCategories[tag]
}

// MappedTransaction is a transaction input resolved to storage tags.
type MappedTransaction struct {
	Type        string
	Category    string
	Source      string
	Destination string
}

// MapTransactionInput resolves a (type, category, container) triple to the
// stored (source, destination) pair. Expenses fill only the source and
// incomes only the destination.
func MapTransactionInput(txType string, category string, container string) (MappedTransaction, error) {
	typeTag, err := TransactionTypeTag(txType)
	if err != nil {
		return MappedTransaction{}, err
	}
	categoryTag, err := CategoryTag(category)
	if err != nil {
		return MappedTransaction{}, err
	}
	containerTag, err := ContainerTag(container)
	if err != nil {
		return MappedTransaction{}, err
	}

	mapped := MappedTransaction{Type: typeTag, Category: categoryTag}
	if typeTag == TxTypeExpense {
		mapped.Source = containerTag
	} else {
		mapped.Destination = containerTag
	}
	return mapped, nil
}
