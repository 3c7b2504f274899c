package vending_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-vending/internal/events"
	"github.com/noah-isme/backend-vending/internal/grid"
	"github.com/noah-isme/backend-vending/internal/inventory"
	"github.com/noah-isme/backend-vending/internal/money"
	"github.com/noah-isme/backend-vending/internal/obs"
	"github.com/noah-isme/backend-vending/internal/pricing"
	"github.com/noah-isme/backend-vending/internal/vending"
)

var (
	coke      = inventory.Item{Name: "Coke", Price: 9}
	fanta     = inventory.Item{Name: "Fanta", Price: 9}
	chocolate = inventory.Item{Name: "Chocolate", Price: 9}
	lays      = inventory.Item{Name: "Lays Chips", Price: 5}
)

type recordingEmitter struct {
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic, machineID string, _ any) (events.Event, error) {
	r.topics = append(r.topics, topic)
	return events.Event{Topic: topic, MachineID: machineID}, nil
}

func TestListAvailableItems(t *testing.T) {
	m := vending.NewBuilder().WithItems(coke, chocolate).MustBuild()
	require.ElementsMatch(t, []inventory.Item{coke, chocolate}, m.ListInstockItems())
}

func TestSelectItemAndGetPrice(t *testing.T) {
	m := vending.NewBuilder().WithItems(coke).WithNotes(money.NoteTen).MustBuild()
	price, err := m.SelectItemAndGetPrice(context.Background(), inventory.Item{Name: "Coke"})
	require.NoError(t, err)
	require.Equal(t, money.Money(9), price)
	require.Equal(t, vending.StateSelected, m.State())
}

func TestSelectSoldOut(t *testing.T) {
	emitter := &recordingEmitter{}
	m := vending.NewBuilder().WithEvents(emitter).MustBuild()
	_, err := m.SelectItemAndGetPrice(context.Background(), fanta)
	require.ErrorIs(t, err, vending.ErrSoldOut)
	require.Zero(t, m.CurrentBalance())
	require.Equal(t, []string{events.TopicItemSoldOut}, emitter.topics)
}

func TestInsertMoney(t *testing.T) {
	m := vending.NewBuilder().MustBuild()
	require.NoError(t, m.InsertCoin(money.CoinFive, money.CoinTwo))
	require.NoError(t, m.InsertNote(money.NoteTen))
	require.Equal(t, money.Money(17), m.CurrentBalance())
}

func TestInsertWrongSlot(t *testing.T) {
	m := vending.NewBuilder().MustBuild()
	require.ErrorIs(t, m.InsertCoin(money.NoteTen), vending.ErrWrongKind)
	require.ErrorIs(t, m.InsertNote(money.Piece{Kind: money.KindNote, Value: 3}), money.ErrUnknownPiece)
	require.Zero(t, m.CurrentBalance())
}

func TestInsertMoneyAndGetRefund(t *testing.T) {
	m := vending.NewBuilder().WithItems(coke).MustBuild()
	_, err := m.SelectItemAndGetPrice(context.Background(), coke)
	require.NoError(t, err)
	require.NoError(t, m.InsertCoin(money.CoinFive))
	require.NoError(t, m.InsertNote(money.NoteTen))

	c := m.RefundAndReturnChange(context.Background())
	require.Equal(t, money.Money(15), c.Value())
	require.Zero(t, m.CurrentBalance())
	require.Equal(t, vending.StateRefunded, m.State())
	require.ElementsMatch(t, []inventory.Item{coke}, m.ListInstockItems())
}

func TestCollectItemAndChange(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewVendingMetrics("test", registry)
	emitter := &recordingEmitter{}
	m := vending.NewBuilder().
		WithItems(coke).
		WithCoins(money.CoinOne).
		WithMetrics(metrics).
		WithEvents(emitter).
		MustBuild()
	ctx := context.Background()

	require.NoError(t, m.InsertNote(money.NoteTen))
	_, err := m.SelectItemAndGetPrice(ctx, coke)
	require.NoError(t, err)
	require.Equal(t, vending.StatePaid, m.State())

	order, err := m.CollectItemOrder(ctx)
	require.NoError(t, err)
	require.True(t, order.Item.Equal(coke))
	require.Equal(t, money.Money(1), order.Change.Value())
	require.Equal(t, money.Money(10), order.Paid)
	require.Zero(t, m.CurrentBalance())
	require.Equal(t, vending.StateCollected, m.State())
	require.Empty(t, m.ListInstockItems())
	require.Equal(t, map[string]int{"note:10": 1}, m.Reserve())
	require.Equal(t, []string{events.TopicOrderCollected}, emitter.topics)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Orders.WithLabelValues("Coke")))
	require.Equal(t, float64(10), testutil.ToFloat64(metrics.ReserveValue))
}

func TestCollectWhenNotFullyPaid(t *testing.T) {
	m := vending.NewBuilder().WithItems(coke).MustBuild()
	ctx := context.Background()
	_, err := m.SelectItemAndGetPrice(ctx, coke)
	require.NoError(t, err)
	require.NoError(t, m.InsertCoin(money.CoinFive))

	_, err = m.CollectItemOrder(ctx)
	require.ErrorIs(t, err, vending.ErrNotFullyPaid)
	require.Equal(t, money.Money(5), m.CurrentBalance())

	require.NoError(t, m.InsertCoin(money.CoinTwo, money.CoinTwo))
	order, err := m.CollectItemOrder(ctx)
	require.NoError(t, err)
	require.True(t, order.Change.IsZero())
}

func TestCollectWithoutSelection(t *testing.T) {
	m := vending.NewBuilder().WithItems(coke).MustBuild()
	require.NoError(t, m.InsertNote(money.NoteTen))
	_, err := m.CollectItemOrder(context.Background())
	require.ErrorIs(t, err, vending.ErrNoSelection)
	require.Equal(t, money.Money(10), m.CurrentBalance())
}

func TestCollectNotSufficientChange(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewVendingMetrics("test", registry)
	m := vending.NewBuilder().
		WithItems(chocolate).
		WithNotes(money.NoteTwenty).
		WithCoins(money.CoinFive, money.CoinOne).
		WithMetrics(metrics).
		MustBuild()
	ctx := context.Background()
	require.NoError(t, m.InsertNote(money.NoteOneHundred))
	_, err := m.SelectItemAndGetPrice(ctx, chocolate)
	require.NoError(t, err)

	_, err = m.CollectItemOrder(ctx)
	require.ErrorIs(t, err, vending.ErrInsufficientChange)
	require.Equal(t, money.Money(100), m.CurrentBalance())
	require.ElementsMatch(t, []inventory.Item{chocolate}, m.ListInstockItems())
	require.Equal(t, map[string]int{"note:20": 1, "coin:5": 1, "coin:1": 1}, m.Reserve())
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ChangeFailures))

	c := m.RefundAndReturnChange(ctx)
	require.Equal(t, money.Money(100), c.Value())
}

func TestSelectByKey(t *testing.T) {
	m := vending.NewBuilder().WithGrid(2, 2).WithItems(coke, lays, chocolate).MustBuild()
	ctx := context.Background()

	it, err := m.SelectByKey(ctx, "a2")
	require.NoError(t, err)
	require.Equal(t, lays, it)

	_, err = m.SelectByKey(ctx, "b2")
	require.Error(t, err)
	_, err = m.SelectByKey(ctx, "c1")
	require.ErrorIs(t, err, grid.ErrOutOfBounds)
	_, err = m.SelectByKey(ctx, "a0")
	require.ErrorIs(t, err, grid.ErrInvalidKeyFormat)

	selected, ok := m.Selection()
	require.True(t, ok)
	require.Equal(t, lays, selected)
}

func TestSpecialCheapestOneFree(t *testing.T) {
	m := vending.NewBuilder().
		WithSpecial(coke, lays).
		OfCombo(pricing.CheapestOneFree{}).
		And().
		WithItems(chocolate, coke, lays).
		WithNotes(money.NoteTwenty).
		WithCoins(money.CoinOne).
		MustBuild()
	ctx := context.Background()

	special := inventory.Item{Name: "Coke + Lays Chips"}
	price, err := m.SelectItemAndGetPrice(ctx, special)
	require.NoError(t, err)
	require.Equal(t, money.Money(9), price)

	require.NoError(t, m.InsertNote(money.NoteTen))
	order, err := m.CollectItemOrder(ctx)
	require.NoError(t, err)
	require.Equal(t, money.Money(1), order.Change.Value())
}

func TestSpecialNotStockedIsSoldOut(t *testing.T) {
	m := vending.NewBuilder().
		WithSpecial(coke, lays).
		OfCombo(pricing.CheapestOneFree{}).
		And().
		WithItems(chocolate).
		MustBuild()
	require.ElementsMatch(t, []inventory.Item{chocolate}, m.ListInstockItems())
	_, err := m.SelectItemAndGetPrice(context.Background(), inventory.Item{Name: "Coke + Lays Chips"})
	require.ErrorIs(t, err, vending.ErrSoldOut)
}

func TestRemovedItemCannotBeCollected(t *testing.T) {
	m := vending.NewBuilder().WithItems(coke).MustBuild()
	ctx := context.Background()
	_, err := m.SelectItemAndGetPrice(ctx, coke)
	require.NoError(t, err)
	require.NoError(t, m.InsertCoin(money.CoinFive, money.CoinTwo, money.CoinTwo))

	pos, err := m.RemoveItem("Coke")
	require.NoError(t, err)
	require.Equal(t, "a1", pos.Key())

	_, err = m.CollectItemOrder(ctx)
	require.ErrorIs(t, err, vending.ErrSoldOut)
	require.Equal(t, money.Money(9), m.CurrentBalance())

	_, err = m.RemoveItem("Coke")
	require.ErrorIs(t, err, grid.ErrItemNotFound)
}

func TestExpireIdle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	emitter := &recordingEmitter{}
	m := vending.NewBuilder().
		WithItems(coke).
		WithIdleTimeout(time.Minute).
		WithClock(clock).
		WithEvents(emitter).
		MustBuild()
	ctx := context.Background()

	_, refunded := m.ExpireIdle(ctx, now.Add(time.Hour))
	require.False(t, refunded, "nothing to refund without an open transaction")

	require.NoError(t, m.InsertCoin(money.CoinFive))
	_, refunded = m.ExpireIdle(ctx, now.Add(30*time.Second))
	require.False(t, refunded)

	c, refunded := m.ExpireIdle(ctx, now.Add(2*time.Minute))
	require.True(t, refunded)
	require.Equal(t, money.Money(5), c.Value())
	require.Zero(t, m.CurrentBalance())
	require.Equal(t, []string{events.TopicRefundForced}, emitter.topics)
}

func TestBuildRejectsInvalidGrid(t *testing.T) {
	_, err := vending.NewBuilder().WithGrid(0, 3).Build()
	require.ErrorIs(t, err, grid.ErrInvalidDimensions)
}

func TestBuildDropsExcessItems(t *testing.T) {
	m := vending.NewBuilder().WithGrid(1, 2).WithItems(coke, fanta, chocolate).MustBuild()
	require.ElementsMatch(t, []inventory.Item{coke, fanta}, m.ListInstockItems())
}

func TestClaimBindsTransactionToCaller(t *testing.T) {
	m := vending.NewBuilder().WithItems(coke).MustBuild()
	ctx := context.Background()

	require.NoError(t, m.Claim("terminal:a"))
	_, err := m.SelectItemAndGetPrice(ctx, coke)
	require.NoError(t, err)
	require.Equal(t, "terminal:a", m.Owner())

	require.ErrorIs(t, m.Claim("terminal:b"), vending.ErrTransactionOwned)
	require.NoError(t, m.Claim("terminal:a"))

	m.RefundAndReturnChange(ctx)
	require.Empty(t, m.Owner())
	require.NoError(t, m.Claim("terminal:b"))
}

func TestExpireIdleReleasesOwner(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := vending.NewBuilder().
		WithItems(coke).
		WithIdleTimeout(time.Minute).
		WithClock(func() time.Time { return now }).
		MustBuild()

	require.NoError(t, m.Claim("terminal:a"))
	require.NoError(t, m.InsertCoin(money.CoinTwo))
	require.ErrorIs(t, m.Claim("terminal:b"), vending.ErrTransactionOwned)

	_, expired := m.ExpireIdle(context.Background(), now.Add(2*time.Minute))
	require.True(t, expired)
	require.NoError(t, m.Claim("terminal:b"))
}

type blockingEmitter struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingEmitter) Emit(_ context.Context, topic, machineID string, _ any) (events.Event, error) {
	b.entered <- struct{}{}
	<-b.release
	return events.Event{Topic: topic, MachineID: machineID}, nil
}

func TestSlowEventStoreDoesNotBlockMachine(t *testing.T) {
	emitter := &blockingEmitter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	m := vending.NewBuilder().WithItems(coke).WithEvents(emitter).MustBuild()
	require.NoError(t, m.InsertCoin(money.CoinFive))

	refunded := make(chan money.Change, 1)
	go func() { refunded <- m.RefundAndReturnChange(context.Background()) }()
	<-emitter.entered

	balance := make(chan money.Money, 1)
	go func() { balance <- m.CurrentBalance() }()
	select {
	case b := <-balance:
		require.Zero(t, b)
	case <-time.After(time.Second):
		t.Fatal("balance waited for the event store")
	}

	close(emitter.release)
	require.Equal(t, money.Money(5), (<-refunded).Value())
}
