package change

import (
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/backend-vending/internal/money"
)

// ErrInsufficientChange indicates the reserve cannot represent the owed amount exactly.
var ErrInsufficientChange = errors.New("not sufficient change")

// ErrNegativeAmount is returned when change is requested for a negative amount.
var ErrNegativeAmount = errors.New("owed amount must not be negative")

// Reserve is the machine's own stock of pieces used to make change.
type Reserve struct {
	counts map[money.Piece]int
}

// NewReserve builds a reserve holding one of each supplied piece.
func NewReserve(pieces ...money.Piece) *Reserve {
	r := &Reserve{counts: map[money.Piece]int{}}
	r.Deposit(pieces...)
	return r
}

// Deposit adds pieces to the reserve.
func (r *Reserve) Deposit(pieces ...money.Piece) {
	if r.counts == nil {
		r.counts = map[money.Piece]int{}
	}
	for _, p := range pieces {
		r.counts[p]++
	}
}

// Count returns how many of p the reserve holds.
func (r *Reserve) Count(p money.Piece) int {
	if r == nil {
		return 0
	}
	return r.counts[p]
}

// Total returns the face value of the whole reserve.
func (r *Reserve) Total() money.Money {
	if r == nil {
		return 0
	}
	var total money.Money
	for p, n := range r.counts {
		total += p.Value * money.Money(n)
	}
	return total
}

// Snapshot returns piece counts keyed by "kind:value".
func (r *Reserve) Snapshot() map[string]int {
	out := map[string]int{}
	if r == nil {
		return out
	}
	for p, n := range r.counts {
		if n > 0 {
			out[p.String()] = n
		}
	}
	return out
}

// Make withdraws pieces worth exactly owed from the reserve, largest
// denomination first. No alternative combination is tried when the greedy
// pass leaves a remainder. The reserve is only debited on success.
func Make(owed money.Money, r *Reserve) (money.Change, error) {
	if owed < 0 {
		return money.Change{}, fmt.Errorf("%w: %d", ErrNegativeAmount, owed)
	}
	if owed == 0 {
		return money.Change{}, nil
	}
	if r == nil {
		return money.Change{}, fmt.Errorf("%w: owed %d, reserve empty", ErrInsufficientChange, owed)
	}
	remaining := owed
	var picked []money.Piece
	for _, p := range r.order() {
		available := r.counts[p]
		for available > 0 && p.Value <= remaining {
			picked = append(picked, p)
			remaining -= p.Value
			available--
		}
		if remaining == 0 {
			break
		}
	}
	if remaining != 0 {
		return money.Change{}, fmt.Errorf("%w: owed %d, short by %d", ErrInsufficientChange, owed, remaining)
	}
	for _, p := range picked {
		r.counts[p]--
	}
	return money.NewChange(picked...), nil
}

// order lists stocked denominations by descending value; coins come before
// notes of equal value.
func (r *Reserve) order() []money.Piece {
	out := make([]money.Piece, 0, len(r.counts))
	for p, n := range r.counts {
		if n > 0 {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].IsCoin() && !out[j].IsCoin()
	})
	return out
}
