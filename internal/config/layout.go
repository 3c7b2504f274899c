package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/backend-vending/internal/inventory"
	"github.com/noah-isme/backend-vending/internal/money"
	"github.com/noah-isme/backend-vending/internal/pricing"
	"github.com/noah-isme/backend-vending/internal/vending"
)

// Layout describes what a machine is stocked with at build time.
type Layout struct {
	Grid struct {
		Rows    int `yaml:"rows"`
		Columns int `yaml:"columns"`
	} `yaml:"grid"`
	Items    []LayoutItem    `yaml:"items"`
	Coins    []ReserveEntry  `yaml:"coins"`
	Notes    []ReserveEntry  `yaml:"notes"`
	Combo    string          `yaml:"combo"`
	Specials []LayoutSpecial `yaml:"specials"`
}

// LayoutItem is a product with the number of slots it occupies.
type LayoutItem struct {
	Name     string      `yaml:"name"`
	Price    money.Money `yaml:"price"`
	Quantity int         `yaml:"quantity"`
}

// ReserveEntry is a denomination and how many pieces of it the reserve starts with.
type ReserveEntry struct {
	Value money.Money `yaml:"value"`
	Count int         `yaml:"count"`
}

// LayoutSpecial names a bundle of catalog items.
type LayoutSpecial struct {
	Name  string   `yaml:"name"`
	Items []string `yaml:"items"`
}

// LoadLayout reads and parses a YAML layout file.
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes a YAML layout.
func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	if l.Grid.Rows == 0 && l.Grid.Columns == 0 {
		l.Grid.Rows, l.Grid.Columns = vending.DefaultRows, vending.DefaultColumns
	}
	return &l, nil
}

// Apply configures b from the layout.
func (l *Layout) Apply(b *vending.Builder) (*vending.Builder, error) {
	b.WithGrid(l.Grid.Rows, l.Grid.Columns)

	strategy, err := pricing.ParseCombo(l.Combo)
	if err != nil {
		return nil, err
	}
	b.WithCombo(strategy)

	prices := make(map[string]inventory.Item, len(l.Items))
	for _, it := range l.Items {
		item := inventory.Item{Name: it.Name, Price: it.Price}
		prices[it.Name] = item
		if it.Quantity <= 0 {
			b.WithCatalog(item)
			continue
		}
		for i := 0; i < it.Quantity; i++ {
			b.WithItems(item)
		}
	}

	coins, err := expandReserve(money.KindCoin, l.Coins)
	if err != nil {
		return nil, err
	}
	notes, err := expandReserve(money.KindNote, l.Notes)
	if err != nil {
		return nil, err
	}
	b.WithCoins(coins...).WithNotes(notes...)

	for _, sp := range l.Specials {
		items := make([]inventory.Item, 0, len(sp.Items))
		for _, name := range sp.Items {
			it, ok := prices[name]
			if !ok {
				return nil, fmt.Errorf("special %q: %w: %s", sp.Name, inventory.ErrUnknownItem, name)
			}
			items = append(items, it)
		}
		b = b.WithSpecial(items...).Named(sp.Name).And()
	}
	return b, nil
}

func expandReserve(kind money.Kind, entries []ReserveEntry) ([]money.Piece, error) {
	var out []money.Piece
	for _, e := range entries {
		p := money.Piece{Kind: kind, Value: e.Value}
		if !money.Known(p) {
			return nil, fmt.Errorf("reserve %s: %w", p, money.ErrUnknownPiece)
		}
		if e.Count < 0 {
			return nil, errors.New("reserve count must not be negative")
		}
		for i := 0; i < e.Count; i++ {
			out = append(out, p)
		}
	}
	return out, nil
}
