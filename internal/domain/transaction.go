package domain

import "github.com/shopspring/decimal"

// ClientID identifies a client account.
type ClientID uint16

// TxID identifies a deposit or withdrawal.
type TxID uint32

// TransactionKind is the closed set of record kinds accepted by the engine.
type TransactionKind int

const (
	KindUnrecognized TransactionKind = iota
	KindDeposit
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeback
)

// kind string constants as they appear in the input stream
const (
	kindStringDeposit    = "deposit"
	kindStringWithdrawal = "withdrawal"
	kindStringDispute    = "dispute"
	kindStringResolve    = "resolve"
	kindStringChargeback = "chargeback"
)

// ParseKind maps the textual kind to a TransactionKind.
// Matching is case-sensitive; anything else is KindUnrecognized.
func ParseKind(s string) TransactionKind {
	switch s {
	case kindStringDeposit:
		return KindDeposit
	case kindStringWithdrawal:
		return KindWithdrawal
	case kindStringDispute:
		return KindDispute
	case kindStringResolve:
		return KindResolve
	case kindStringChargeback:
		return KindChargeback
	default:
		return KindUnrecognized
	}
}

// String returns the string representation of the kind
func (k TransactionKind) String() string {
	switch k {
	case KindDeposit:
		return kindStringDeposit
	case KindWithdrawal:
		return kindStringWithdrawal
	case KindDispute:
		return kindStringDispute
	case KindResolve:
		return kindStringResolve
	case KindChargeback:
		return kindStringChargeback
	default:
		return "unrecognized"
	}
}

// Transaction is a single decoded input record. It is passed by value and never mutated.
// Amount is meaningful only for deposits and withdrawals.
type Transaction struct {
	Kind   TransactionKind
	Client ClientID
	Tx     TxID
	Amount decimal.Decimal
}
