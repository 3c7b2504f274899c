package payment

import (
	"github.com/noah-isme/backend-vending/internal/money"
)

// Ledger tracks the pieces a customer has inserted during one transaction.
type Ledger struct {
	pieces  []money.Piece
	balance money.Money
}

// Insert records pieces and raises the balance.
func (l *Ledger) Insert(pieces ...money.Piece) {
	for _, p := range pieces {
		l.pieces = append(l.pieces, p)
		l.balance += p.Value
	}
}

// Balance returns the running total of inserted pieces.
func (l *Ledger) Balance() money.Money { return l.balance }

// Pieces returns the inserted pieces in insertion order.
func (l *Ledger) Pieces() []money.Piece {
	return append([]money.Piece(nil), l.pieces...)
}

// Empty reports whether nothing has been inserted.
func (l *Ledger) Empty() bool { return len(l.pieces) == 0 }

// Refund drains every inserted piece into a Change and resets the ledger.
func (l *Ledger) Refund() money.Change {
	c := money.NewChange(l.pieces...)
	l.Reset()
	return c
}

// Reset clears the ledger without returning anything.
func (l *Ledger) Reset() {
	l.pieces = nil
	l.balance = 0
}
