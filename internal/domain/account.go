// Package domain defines the transaction records and the per-client account state machine.
package domain

import "github.com/shopspring/decimal"

// Account is the mutable balance state of one client.
// It is owned by exactly one engine and is not safe for concurrent use.
type Account struct {
	Client    ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Locked    bool

	// ledger holds the signed effect of every applied deposit (+) and withdrawal (-).
	ledger   map[TxID]decimal.Decimal
	disputed map[TxID]struct{}
}

// NewAccount creates an empty, unlocked account for the client.
func NewAccount(client ClientID) *Account {
	return &Account{
		Client:    client,
		Available: decimal.Zero,
		Held:      decimal.Zero,
		ledger:    make(map[TxID]decimal.Decimal),
		disputed:  make(map[TxID]struct{}),
	}
}

// Apply runs tx through the state machine and reports whether the account changed.
// Records that fail a precondition are skipped without error.
func (a *Account) Apply(tx Transaction) bool {
	if a == nil || a.Locked || tx.Client != a.Client {
		return false
	}

	switch tx.Kind {
	case KindDeposit:
		return a.deposit(tx.Tx, tx.Amount)
	case KindWithdrawal:
		return a.withdraw(tx.Tx, tx.Amount)
	case KindDispute:
		return a.dispute(tx.Tx)
	case KindResolve:
		return a.resolve(tx.Tx)
	case KindChargeback:
		return a.chargeback(tx.Tx)
	default:
		return false
	}
}

func (a *Account) isDisputed(tx TxID) bool {
	_, ok := a.disputed[tx]
	return ok
}

func (a *Account) effect(tx TxID) (decimal.Decimal, bool) {
	effect, ok := a.ledger[tx]
	return effect, ok
}

// Snapshot returns the immutable view of the account.
func (a *Account) Snapshot() ClientState {
	return ClientState{
		Client:    a.Client,
		Available: a.Available,
		Held:      a.Held,
		Locked:    a.Locked,
	}
}

func (a *Account) deposit(id TxID, amount decimal.Decimal) bool {
	if amount.IsNegative() {
		return false
	}
	if _, seen := a.ledger[id]; seen {
		return false
	}

	a.Available = a.Available.Add(amount)
	a.ledger[id] = amount

	return true
}

func (a *Account) withdraw(id TxID, amount decimal.Decimal) bool {
	if amount.IsNegative() || a.Available.LessThan(amount) {
		return false
	}
	if _, seen := a.ledger[id]; seen {
		return false
	}

	a.Available = a.Available.Sub(amount)
	a.ledger[id] = amount.Neg()

	return true
}

// dispute moves the effect of id from available to held. A dispute whose funds
// have already left the account is erroneous and is dropped. Withdrawals never
// moved funds into the account, so they have nothing to hold and cannot be disputed.
func (a *Account) dispute(id TxID) bool {
	effect, ok := a.ledger[id]
	if !ok || effect.IsNegative() || a.isDisputed(id) {
		return false
	}
	if a.Available.LessThan(effect.Abs()) {
		return false
	}
	if !a.move(effect.Neg(), effect) {
		return false
	}

	a.disputed[id] = struct{}{}

	return true
}

func (a *Account) resolve(id TxID) bool {
	effect, ok := a.ledger[id]
	if !ok || !a.isDisputed(id) {
		return false
	}
	if !a.move(effect, effect.Neg()) {
		return false
	}

	delete(a.disputed, id)

	return true
}

func (a *Account) chargeback(id TxID) bool {
	effect, ok := a.ledger[id]
	if !ok || !a.isDisputed(id) {
		return false
	}
	if !a.move(decimal.Zero, effect.Neg()) {
		return false
	}

	delete(a.disputed, id)
	a.Locked = true

	return true
}

// move applies both deltas only if neither balance ends up negative.
func (a *Account) move(availableDelta, heldDelta decimal.Decimal) bool {
	available := a.Available.Add(availableDelta)
	held := a.Held.Add(heldDelta)
	if available.IsNegative() || held.IsNegative() {
		return false
	}

	a.Available = available
	a.Held = held

	return true
}
