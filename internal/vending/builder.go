package vending

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-vending/internal/change"
	"github.com/noah-isme/backend-vending/internal/grid"
	"github.com/noah-isme/backend-vending/internal/inventory"
	"github.com/noah-isme/backend-vending/internal/money"
	"github.com/noah-isme/backend-vending/internal/obs"
	"github.com/noah-isme/backend-vending/internal/pricing"
)

// Default grid dimensions.
const (
	DefaultRows    = 10
	DefaultColumns = 10
)

// Builder assembles a Machine. Each WithItems call stocks one unit per item;
// WithCoins and WithNotes fill the change reserve.
type Builder struct {
	id          string
	rows        int
	columns     int
	stock       []inventory.Item
	catalog     []inventory.Item
	reserve     []money.Piece
	specials    []pricing.Special
	combo       pricing.Strategy
	logger      zerolog.Logger
	metrics     *obs.VendingMetrics
	events      Emitter
	idleTimeout time.Duration
	now         func() time.Time
}

// NewBuilder starts an empty machine configuration.
func NewBuilder() *Builder {
	return &Builder{
		id:      "default",
		rows:    DefaultRows,
		columns: DefaultColumns,
		combo:   pricing.ListPrice{},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
}

// WithID sets the identifier used in events.
func (b *Builder) WithID(id string) *Builder {
	if id != "" {
		b.id = id
	}
	return b
}

// WithGrid sets the grid dimensions.
func (b *Builder) WithGrid(rows, columns int) *Builder {
	b.rows, b.columns = rows, columns
	return b
}

// WithItems stocks one unit of each item, in grid order.
func (b *Builder) WithItems(items ...inventory.Item) *Builder {
	b.stock = append(b.stock, items...)
	b.catalog = append(b.catalog, items...)
	return b
}

// WithCatalog registers items that are priced but not stocked.
func (b *Builder) WithCatalog(items ...inventory.Item) *Builder {
	b.catalog = append(b.catalog, items...)
	return b
}

// WithCoins adds coins to the change reserve.
func (b *Builder) WithCoins(coins ...money.Piece) *Builder {
	b.reserve = append(b.reserve, coins...)
	return b
}

// WithNotes adds notes to the change reserve.
func (b *Builder) WithNotes(notes ...money.Piece) *Builder {
	b.reserve = append(b.reserve, notes...)
	return b
}

// WithCombo sets the strategy used to price specials.
func (b *Builder) WithCombo(strategy pricing.Strategy) *Builder {
	if strategy != nil {
		b.combo = strategy
	}
	return b
}

// WithSpecial starts the definition of a bundle priced by the combo strategy.
func (b *Builder) WithSpecial(items ...inventory.Item) *SpecialBuilder {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	b.catalog = append(b.catalog, items...)
	return &SpecialBuilder{parent: b, special: pricing.Special{Name: pricing.SpecialName(names), Items: names}}
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics sets the Prometheus collectors.
func (b *Builder) WithMetrics(metrics *obs.VendingMetrics) *Builder {
	b.metrics = metrics
	return b
}

// WithEvents sets the domain event emitter.
func (b *Builder) WithEvents(emitter Emitter) *Builder {
	b.events = emitter
	return b
}

// WithIdleTimeout enables forced refunds of abandoned transactions.
func (b *Builder) WithIdleTimeout(d time.Duration) *Builder {
	b.idleTimeout = d
	return b
}

// WithClock overrides the time source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// Build validates the configuration and returns a ready machine. Items that
// do not fit in the grid are dropped with a warning.
func (b *Builder) Build() (*Machine, error) {
	g, err := grid.New(b.rows, b.columns)
	if err != nil {
		return nil, err
	}
	catalog, err := inventory.NewCatalog(b.catalog...)
	if err != nil {
		return nil, err
	}
	inv, err := inventory.New(inventory.Config{
		Grid:     g,
		Catalog:  catalog,
		Strategy: b.combo,
		Specials: b.specials,
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(b.stock))
	for _, it := range b.stock {
		names = append(names, it.Name)
	}
	dropped, err := inv.Load(names)
	if err != nil {
		return nil, err
	}
	logger := b.logger.With().Str("machine_id", b.id).Logger()
	if dropped > 0 {
		logger.Warn().Int("dropped", dropped).Int("capacity", b.rows*b.columns).Msg("items exceed grid capacity")
	}
	for _, p := range b.reserve {
		if !money.Known(p) {
			return nil, fmt.Errorf("reserve %s: %w", p, money.ErrUnknownPiece)
		}
	}
	m := &Machine{
		id:          b.id,
		inv:         inv,
		reserve:     change.NewReserve(b.reserve...),
		idleTimeout: b.idleTimeout,
		now:         b.now,
		logger:      logger,
		metrics:     b.metrics,
		events:      b.events,
	}
	m.lastActive = m.now()
	if m.metrics != nil {
		m.metrics.ReserveValue.Set(float64(m.reserve.Total()))
	}
	return m, nil
}

// MustBuild behaves like Build but panics on misconfiguration.
func (b *Builder) MustBuild() *Machine {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}

// SpecialBuilder configures one special before returning to the Builder.
type SpecialBuilder struct {
	parent  *Builder
	special pricing.Special
}

// Named overrides the derived special name.
func (s *SpecialBuilder) Named(name string) *SpecialBuilder {
	if name != "" {
		s.special.Name = name
	}
	return s
}

// OfCombo selects the strategy pricing this and every other special.
func (s *SpecialBuilder) OfCombo(strategy pricing.Strategy) *SpecialBuilder {
	s.parent.WithCombo(strategy)
	return s
}

// And registers the special and returns to the machine builder.
func (s *SpecialBuilder) And() *Builder {
	s.parent.specials = append(s.parent.specials, s.special)
	return s.parent
}
