package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-vending/internal/grid"
	"github.com/noah-isme/backend-vending/internal/money"
	"github.com/noah-isme/backend-vending/internal/pricing"
)

var (
	// ErrSoldOut indicates the item has no stock left.
	ErrSoldOut = errors.New("item sold out")
	// ErrUnknownItem indicates the item is not part of the catalog.
	ErrUnknownItem = errors.New("unknown item")
	// ErrEmptySlot indicates a selection key addressed an empty slot.
	ErrEmptySlot = errors.New("slot is empty")
	// ErrInvalidItem is returned when building a catalog from malformed items.
	ErrInvalidItem = errors.New("invalid item")
)

// Item is a sellable product. Items are equal when their names match.
type Item struct {
	Name  string      `json:"name"`
	Price money.Money `json:"price"`
}

// Equal reports whether two items name the same product.
func (i Item) Equal(other Item) bool { return i.Name == other.Name }

// Catalog is the immutable name -> item table built at machine construction.
type Catalog struct {
	items map[string]Item
	order []string
}

// NewCatalog validates and indexes items. Later duplicates keep the first price.
func NewCatalog(items ...Item) (*Catalog, error) {
	c := &Catalog{items: make(map[string]Item, len(items))}
	for _, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidItem)
		}
		if it.Price <= 0 {
			return nil, fmt.Errorf("%w: %q price must be positive", ErrInvalidItem, it.Name)
		}
		if _, ok := c.items[it.Name]; ok {
			continue
		}
		c.items[it.Name] = it
		c.order = append(c.order, it.Name)
	}
	return c, nil
}

// Get returns the catalog entry for name.
func (c *Catalog) Get(name string) (Item, bool) {
	it, ok := c.items[name]
	return it, ok
}

// Items lists catalog entries in insertion order.
func (c *Catalog) Items() []Item {
	out := make([]Item, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.items[name])
	}
	return out
}

// Inventory tracks which catalog items are stocked in the grid. Every
// occupied slot holds one unit; a special is in stock while all of its
// components are.
type Inventory struct {
	grid     *grid.Grid
	catalog  *Catalog
	strategy pricing.Strategy
	specials map[string]pricing.Special
	order    []string
}

// Config groups the build-time inputs of an Inventory.
type Config struct {
	Grid     *grid.Grid
	Catalog  *Catalog
	Strategy pricing.Strategy
	Specials []pricing.Special
}

// New validates the configuration and returns an Inventory.
func New(cfg Config) (*Inventory, error) {
	if cfg.Grid == nil {
		return nil, errors.New("inventory: grid not configured")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = &Catalog{items: map[string]Item{}}
	}
	if cfg.Strategy == nil {
		cfg.Strategy = pricing.ListPrice{}
	}
	inv := &Inventory{
		grid:     cfg.Grid,
		catalog:  cfg.Catalog,
		strategy: cfg.Strategy,
		specials: make(map[string]pricing.Special, len(cfg.Specials)),
	}
	for _, sp := range cfg.Specials {
		if len(sp.Items) == 0 {
			return nil, fmt.Errorf("%w: special %q has no items", ErrInvalidItem, sp.Name)
		}
		for _, name := range sp.Items {
			if _, ok := cfg.Catalog.Get(name); !ok {
				return nil, fmt.Errorf("special %q: %w: %s", sp.Name, ErrUnknownItem, name)
			}
		}
		if sp.Name == "" {
			sp.Name = pricing.SpecialName(sp.Items)
		}
		if _, clash := cfg.Catalog.Get(sp.Name); clash {
			return nil, fmt.Errorf("%w: special %q shadows a catalog item", ErrInvalidItem, sp.Name)
		}
		if _, ok := inv.specials[sp.Name]; ok {
			continue
		}
		inv.specials[sp.Name] = sp
		inv.order = append(inv.order, sp.Name)
	}
	return inv, nil
}

// Load places items into the grid row-major and reports how many did not fit.
func (inv *Inventory) Load(names []string) (int, error) {
	for _, name := range names {
		if _, ok := inv.catalog.Get(name); !ok {
			return 0, fmt.Errorf("load: %w: %s", ErrUnknownItem, name)
		}
	}
	return inv.grid.Load(names), nil
}

// Strategy returns the active combo strategy.
func (inv *Inventory) Strategy() pricing.Strategy { return inv.strategy }

// ItemPrice returns the price of a catalog item or the combo price of a special.
func (inv *Inventory) ItemPrice(name string) (money.Money, error) {
	if sp, ok := inv.specials[name]; ok {
		lines := make([]pricing.Line, 0, len(sp.Items))
		for _, part := range sp.Items {
			it, _ := inv.catalog.Get(part)
			lines = append(lines, pricing.Line{Name: it.Name, Price: it.Price})
		}
		return inv.strategy.Price(lines), nil
	}
	it, ok := inv.catalog.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownItem, name)
	}
	return it.Price, nil
}

// Stock returns the number of units of a catalog item in the grid.
func (inv *Inventory) Stock(name string) int {
	if name == grid.Empty {
		return 0
	}
	n := 0
	for _, slot := range inv.grid.Slots() {
		if slot.Occupant == name {
			n++
		}
	}
	return n
}

// IsInStock reports whether the item, or every component of a special, is stocked.
func (inv *Inventory) IsInStock(name string) bool {
	if sp, ok := inv.specials[name]; ok {
		for part, need := range componentCounts(sp) {
			if inv.Stock(part) < need {
				return false
			}
		}
		return true
	}
	_, ok := inv.grid.Find(name)
	return ok
}

// InStock lists distinct stocked items in grid order followed by stocked specials.
func (inv *Inventory) InStock() []Item {
	seen := map[string]struct{}{}
	var out []Item
	for _, slot := range inv.grid.Slots() {
		if slot.Occupant == grid.Empty {
			continue
		}
		if _, ok := seen[slot.Occupant]; ok {
			continue
		}
		seen[slot.Occupant] = struct{}{}
		if it, ok := inv.catalog.Get(slot.Occupant); ok {
			out = append(out, it)
		}
	}
	for _, name := range inv.order {
		if !inv.IsInStock(name) {
			continue
		}
		price, _ := inv.ItemPrice(name)
		out = append(out, Item{Name: name, Price: price})
	}
	return out
}

// SelectAndPrice checks availability and returns the priced item. Stock is
// not touched until Dispense.
func (inv *Inventory) SelectAndPrice(name string) (Item, error) {
	if !inv.IsInStock(name) {
		return Item{}, fmt.Errorf("%w: %s", ErrSoldOut, name)
	}
	price, err := inv.ItemPrice(name)
	if err != nil {
		return Item{}, err
	}
	return Item{Name: name, Price: price}, nil
}

// Lookup resolves a selection key to the item in that slot.
func (inv *Inventory) Lookup(key string) (Item, error) {
	name, err := inv.grid.Resolve(key)
	if err != nil {
		return Item{}, err
	}
	if name == grid.Empty {
		return Item{}, fmt.Errorf("%w: %s", ErrEmptySlot, key)
	}
	it, ok := inv.catalog.Get(name)
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrUnknownItem, name)
	}
	return it, nil
}

// Dispense removes one unit of the item, or one of each component of a special.
func (inv *Inventory) Dispense(name string) error {
	if !inv.IsInStock(name) {
		return fmt.Errorf("%w: %s", ErrSoldOut, name)
	}
	parts := []string{name}
	if sp, ok := inv.specials[name]; ok {
		parts = sp.Items
	}
	for _, part := range parts {
		if _, err := inv.grid.Remove(part); err != nil {
			return err
		}
	}
	return nil
}

// Remove clears the first slot holding name.
func (inv *Inventory) Remove(name string) (grid.Position, error) {
	return inv.grid.Remove(name)
}

// Slots returns a snapshot of the underlying grid.
func (inv *Inventory) Slots() []grid.Slot { return inv.grid.Slots() }

// Grid exposes the grid dimensions.
func (inv *Inventory) Grid() (rows, columns int) {
	return inv.grid.Rows(), inv.grid.Columns()
}

func componentCounts(sp pricing.Special) map[string]int {
	out := make(map[string]int, len(sp.Items))
	for _, name := range sp.Items {
		out[name]++
	}
	return out
}
