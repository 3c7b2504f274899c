package vending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-vending/internal/change"
	"github.com/noah-isme/backend-vending/internal/events"
	"github.com/noah-isme/backend-vending/internal/grid"
	"github.com/noah-isme/backend-vending/internal/inventory"
	"github.com/noah-isme/backend-vending/internal/money"
	"github.com/noah-isme/backend-vending/internal/obs"
	"github.com/noah-isme/backend-vending/internal/payment"
)

// State is the phase of the current transaction.
type State string

const (
	StateIdle      State = "idle"
	StateSelected  State = "selected"
	StatePaid      State = "paid"
	StateCollected State = "collected"
	StateRefunded  State = "refunded"
)

// Refund reasons used in metrics and events.
const (
	RefundRequested = "requested"
	RefundIdle      = "idle"
)

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, machineID string, payload any) (events.Event, error)
}

// Order is the result of a successful collection.
type Order struct {
	ID          uuid.UUID      `json:"id"`
	Item        inventory.Item `json:"item"`
	Paid        money.Money    `json:"paid"`
	Change      money.Change   `json:"change"`
	CollectedAt time.Time      `json:"collectedAt"`
}

// Machine runs one customer transaction at a time. Every exported method is
// atomic with respect to the others. Events raised by a method are published
// after the machine is unlocked.
type Machine struct {
	mu sync.Mutex

	id          string
	inv         *inventory.Inventory
	reserve     *change.Reserve
	ledger      payment.Ledger
	selected    *inventory.Item
	owner       string
	last        State
	lastActive  time.Time
	idleTimeout time.Duration

	now     func() time.Time
	logger  zerolog.Logger
	metrics *obs.VendingMetrics
	events  Emitter
	pending []pendingEvent
}

type pendingEvent struct {
	topic   string
	payload any
}

// ID returns the machine identifier.
func (m *Machine) ID() string { return m.id }

// State reports the phase of the current transaction.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	if m.selected != nil {
		if m.ledger.Balance() >= m.selected.Price {
			return StatePaid
		}
		return StateSelected
	}
	if m.ledger.Empty() && m.last != "" {
		return m.last
	}
	return StateIdle
}

// Claim binds the open transaction to caller. While another caller has a
// selection or money in the machine it fails with ErrTransactionOwned; once
// the transaction is collected, refunded or expired anyone may claim it.
func (m *Machine) Claim(caller string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openLocked() && m.owner != "" && m.owner != caller {
		return ErrTransactionOwned
	}
	m.owner = caller
	return nil
}

// Owner returns the caller bound to the open transaction, if any.
func (m *Machine) Owner() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.openLocked() {
		return ""
	}
	return m.owner
}

func (m *Machine) openLocked() bool {
	return m.selected != nil || !m.ledger.Empty()
}

// ListInstockItems returns the items, including specials, that can be selected.
func (m *Machine) ListInstockItems() []inventory.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inv.InStock()
}

// Selection returns the currently selected item, if any.
func (m *Machine) Selection() (inventory.Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selected == nil {
		return inventory.Item{}, false
	}
	return *m.selected, true
}

// SelectItemAndGetPrice selects an item by identity and returns its price
// after any combo adjustment. Stock is not reserved.
func (m *Machine) SelectItemAndGetPrice(ctx context.Context, item inventory.Item) (money.Money, error) {
	m.mu.Lock()
	defer m.unlockAndPublish(ctx)
	selected, err := m.selectLocked(item.Name)
	if err != nil {
		return 0, err
	}
	return selected.Price, nil
}

// SelectByKey selects the item in the slot addressed by key.
func (m *Machine) SelectByKey(ctx context.Context, key string) (inventory.Item, error) {
	m.mu.Lock()
	defer m.unlockAndPublish(ctx)
	it, err := m.inv.Lookup(key)
	if err != nil {
		m.observeSelection("invalid")
		return inventory.Item{}, err
	}
	return m.selectLocked(it.Name)
}

func (m *Machine) selectLocked(name string) (inventory.Item, error) {
	m.touch()
	selected, err := m.inv.SelectAndPrice(name)
	if err != nil {
		m.observeSelection("sold_out")
		m.logger.Info().Str("item", name).Msg("selection sold out")
		m.emit(events.TopicItemSoldOut, map[string]any{"item": name})
		return inventory.Item{}, err
	}
	m.selected = &selected
	m.observeSelection("ok")
	m.logger.Debug().Str("item", selected.Name).Int64("price", selected.Price).Msg("item selected")
	return selected, nil
}

// InsertCoin feeds coins into the machine.
func (m *Machine) InsertCoin(pieces ...money.Piece) error {
	return m.insert(money.KindCoin, pieces)
}

// InsertNote feeds notes into the machine.
func (m *Machine) InsertNote(pieces ...money.Piece) error {
	return m.insert(money.KindNote, pieces)
}

func (m *Machine) insert(kind money.Kind, pieces []money.Piece) error {
	for _, p := range pieces {
		if !money.Known(p) {
			return fmt.Errorf("insert %s: %w", p, money.ErrUnknownPiece)
		}
		if p.Kind != kind {
			return fmt.Errorf("insert %s into %s slot: %w", p, kind, ErrWrongKind)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch()
	m.ledger.Insert(pieces...)
	return nil
}

// CurrentBalance returns the value inserted in the open transaction.
func (m *Machine) CurrentBalance() money.Money {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Balance()
}

// RefundAndReturnChange aborts the transaction and returns every inserted piece.
func (m *Machine) RefundAndReturnChange(ctx context.Context) money.Change {
	m.mu.Lock()
	defer m.unlockAndPublish(ctx)
	return m.refundLocked(RefundRequested)
}

func (m *Machine) refundLocked(reason string) money.Change {
	refunded := m.ledger.Refund()
	m.selected = nil
	m.owner = ""
	m.last = StateRefunded
	m.touch()
	if m.metrics != nil {
		m.metrics.Refunds.WithLabelValues(reason).Inc()
	}
	m.logger.Info().Str("reason", reason).Int64("amount", refunded.Value()).Msg("payment refunded")
	topic := events.TopicPaymentRefunded
	if reason == RefundIdle {
		topic = events.TopicRefundForced
	}
	m.emit(topic, map[string]any{"reason": reason, "change": refunded})
	return refunded
}

// CollectItemOrder completes the purchase of the selected item. On any
// failure the inserted money stays in the ledger.
func (m *Machine) CollectItemOrder(ctx context.Context) (Order, error) {
	m.mu.Lock()
	defer m.unlockAndPublish(ctx)
	m.touch()

	if m.selected == nil {
		return Order{}, ErrNoSelection
	}
	item := *m.selected
	if !m.inv.IsInStock(item.Name) {
		return Order{}, fmt.Errorf("collect %s: %w", item.Name, ErrSoldOut)
	}
	paid := m.ledger.Balance()
	if paid < item.Price {
		return Order{}, fmt.Errorf("collect %s: balance %d below price %d: %w", item.Name, paid, item.Price, ErrNotFullyPaid)
	}
	returned, err := change.Make(paid-item.Price, m.reserve)
	if err != nil {
		if m.metrics != nil {
			m.metrics.ChangeFailures.Inc()
		}
		m.logger.Warn().Err(err).Str("item", item.Name).Int64("owed", paid-item.Price).Msg("cannot make change")
		m.emit(events.TopicChangeInsufficient, map[string]any{"item": item.Name, "owed": paid - item.Price})
		return Order{}, fmt.Errorf("collect %s: %w", item.Name, err)
	}
	if err := m.inv.Dispense(item.Name); err != nil {
		// stock was checked above under the same lock
		m.reserve.Deposit(returned.Pieces()...)
		return Order{}, fmt.Errorf("collect %s: %w", item.Name, err)
	}
	m.reserve.Deposit(m.ledger.Pieces()...)
	m.ledger.Reset()
	m.selected = nil
	m.owner = ""
	m.last = StateCollected

	order := Order{
		ID:          uuid.New(),
		Item:        item,
		Paid:        paid,
		Change:      returned,
		CollectedAt: m.now().UTC(),
	}
	if m.metrics != nil {
		m.metrics.Orders.WithLabelValues(item.Name).Inc()
		m.metrics.Revenue.Add(float64(item.Price))
		m.metrics.ChangeDispensed.Add(float64(returned.Value()))
		m.metrics.ReserveValue.Set(float64(m.reserve.Total()))
	}
	m.logger.Info().
		Str("order_id", order.ID.String()).
		Str("item", item.Name).
		Int64("paid", paid).
		Int64("change", returned.Value()).
		Msg("order collected")
	m.emit(events.TopicOrderCollected, order)
	return order, nil
}

// ExpireIdle refunds the open transaction when it has been idle for longer
// than the configured timeout. It reports whether a refund happened.
func (m *Machine) ExpireIdle(ctx context.Context, now time.Time) (money.Change, bool) {
	m.mu.Lock()
	defer m.unlockAndPublish(ctx)
	if m.idleTimeout <= 0 {
		return money.Change{}, false
	}
	if !m.openLocked() {
		return money.Change{}, false
	}
	if now.Sub(m.lastActive) < m.idleTimeout {
		return money.Change{}, false
	}
	return m.refundLocked(RefundIdle), true
}

// Slots returns the grid layout with the price of each occupant.
func (m *Machine) Slots() []SlotView {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots := m.inv.Slots()
	out := make([]SlotView, 0, len(slots))
	for _, s := range slots {
		view := SlotView{Key: s.Key(), Item: s.Occupant}
		if s.Occupant != grid.Empty {
			view.Price, _ = m.inv.ItemPrice(s.Occupant)
		}
		out = append(out, view)
	}
	return out
}

// SlotView describes one grid slot for display.
type SlotView struct {
	Key   string      `json:"key"`
	Item  string      `json:"item,omitempty"`
	Price money.Money `json:"price,omitempty"`
}

// Reserve returns piece counts held for change.
func (m *Machine) Reserve() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserve.Snapshot()
}

// RemoveItem takes the first unit of name out of the grid.
func (m *Machine) RemoveItem(name string) (grid.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, err := m.inv.Remove(name)
	if err != nil {
		return grid.Position{}, err
	}
	m.logger.Info().Str("item", name).Str("slot", pos.Key()).Msg("item removed")
	return pos, nil
}

func (m *Machine) touch() {
	m.lastActive = m.now()
}

func (m *Machine) observeSelection(result string) {
	if m.metrics != nil {
		m.metrics.Selections.WithLabelValues(result).Inc()
	}
}

// emit queues an event; it is published by unlockAndPublish.
func (m *Machine) emit(topic string, payload any) {
	if m.events == nil {
		return
	}
	m.pending = append(m.pending, pendingEvent{topic: topic, payload: payload})
}

// unlockAndPublish releases m.mu and then hands the queued events to the
// emitter, so a slow event store never holds up other callers.
func (m *Machine) unlockAndPublish(ctx context.Context) {
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for _, e := range pending {
		if _, err := m.events.Emit(ctx, e.topic, m.id, e.payload); err != nil {
			m.logger.Error().Err(err).Str("topic", e.topic).Msg("emit event")
		}
	}
}
