package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-vending/internal/money"
)

// ErrUnknownCombo is returned by ParseCombo for unsupported strategy names.
var ErrUnknownCombo = errors.New("unknown combo strategy")

// Line is one priced item within a bundle.
type Line struct {
	Name  string
	Price money.Money
}

// Strategy prices a bundle of items. Implementations must be pure.
type Strategy interface {
	Name() string
	Price(bundle []Line) money.Money
}

// Strategy names accepted by ParseCombo.
const (
	ComboNone            = "none"
	ComboCheapestOneFree = "cheapest-one-free"
)

// ListPrice charges the sum of list prices.
type ListPrice struct{}

// Name implements Strategy.
func (ListPrice) Name() string { return ComboNone }

// Price implements Strategy.
func (ListPrice) Price(bundle []Line) money.Money {
	return Subtotal(bundle)
}

// CheapestOneFree charges the bundle total minus its cheapest line.
type CheapestOneFree struct{}

// Name implements Strategy.
func (CheapestOneFree) Name() string { return ComboCheapestOneFree }

// Price implements Strategy.
func (CheapestOneFree) Price(bundle []Line) money.Money {
	if len(bundle) == 0 {
		return 0
	}
	cheapest := bundle[0].Price
	for _, l := range bundle[1:] {
		if l.Price < cheapest {
			cheapest = l.Price
		}
	}
	total := Subtotal(bundle) - cheapest
	if total < 0 {
		return 0
	}
	return total
}

// Subtotal sums positive line prices.
func Subtotal(bundle []Line) money.Money {
	var total money.Money
	for _, l := range bundle {
		if l.Price <= 0 {
			continue
		}
		total += l.Price
	}
	return total
}

// ParseCombo resolves a strategy from its configured name. An empty name means no combo.
func ParseCombo(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ComboNone:
		return ListPrice{}, nil
	case ComboCheapestOneFree, "cheapest_one_free":
		return CheapestOneFree{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCombo, name)
	}
}

// Special is a named bundle of items sold together.
type Special struct {
	Name  string
	Items []string
}

// SpecialName derives the display name of a bundle from its item names.
func SpecialName(items []string) string {
	return strings.Join(items, " + ")
}
