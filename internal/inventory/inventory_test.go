package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-vending/internal/grid"
	"github.com/noah-isme/backend-vending/internal/inventory"
	"github.com/noah-isme/backend-vending/internal/money"
	"github.com/noah-isme/backend-vending/internal/pricing"
)

func newInventory(t *testing.T, strategy pricing.Strategy, specials ...pricing.Special) *inventory.Inventory {
	t.Helper()
	catalog, err := inventory.NewCatalog(
		inventory.Item{Name: "Coke", Price: 9},
		inventory.Item{Name: "Chocolate", Price: 9},
		inventory.Item{Name: "Lays", Price: 5},
	)
	require.NoError(t, err)
	inv, err := inventory.New(inventory.Config{
		Grid:     grid.MustNew(2, 3),
		Catalog:  catalog,
		Strategy: strategy,
		Specials: specials,
	})
	require.NoError(t, err)
	return inv
}

func TestSelectDoesNotConsumeStock(t *testing.T) {
	inv := newInventory(t, nil)
	_, err := inv.Load([]string{"Coke"})
	require.NoError(t, err)

	it, err := inv.SelectAndPrice("Coke")
	require.NoError(t, err)
	require.Equal(t, money.Money(9), it.Price)
	require.Equal(t, 1, inv.Stock("Coke"))

	require.NoError(t, inv.Dispense("Coke"))
	_, err = inv.SelectAndPrice("Coke")
	require.ErrorIs(t, err, inventory.ErrSoldOut)
}

func TestSelectUnstockedItemIsSoldOut(t *testing.T) {
	inv := newInventory(t, nil)
	_, err := inv.SelectAndPrice("Fanta")
	require.ErrorIs(t, err, inventory.ErrSoldOut)
}

func TestLoadRejectsUnknownItem(t *testing.T) {
	inv := newInventory(t, nil)
	_, err := inv.Load([]string{"Coke", "Fanta"})
	require.ErrorIs(t, err, inventory.ErrUnknownItem)
	require.False(t, inv.IsInStock("Coke"))
}

func TestLoadReportsDropped(t *testing.T) {
	inv := newInventory(t, nil)
	dropped, err := inv.Load([]string{"Coke", "Coke", "Coke", "Lays", "Lays", "Lays", "Chocolate"})
	require.NoError(t, err)
	require.Equal(t, 1, dropped)
	require.False(t, inv.IsInStock("Chocolate"))
}

func TestLookup(t *testing.T) {
	inv := newInventory(t, nil)
	_, err := inv.Load([]string{"Coke", "Lays"})
	require.NoError(t, err)

	it, err := inv.Lookup("a2")
	require.NoError(t, err)
	require.Equal(t, "Lays", it.Name)

	_, err = inv.Lookup("b1")
	require.ErrorIs(t, err, inventory.ErrEmptySlot)
	_, err = inv.Lookup("c1")
	require.ErrorIs(t, err, grid.ErrOutOfBounds)
	_, err = inv.Lookup("C1")
	require.ErrorIs(t, err, grid.ErrInvalidKeyFormat)
}

func TestSpecialPricingAndDispense(t *testing.T) {
	special := pricing.Special{Items: []string{"Coke", "Lays"}}
	inv := newInventory(t, pricing.CheapestOneFree{}, special)
	_, err := inv.Load([]string{"Coke", "Lays", "Chocolate"})
	require.NoError(t, err)

	name := pricing.SpecialName(special.Items)
	it, err := inv.SelectAndPrice(name)
	require.NoError(t, err)
	require.Equal(t, money.Money(9), it.Price)

	listed := inv.InStock()
	require.Equal(t, []inventory.Item{
		{Name: "Coke", Price: 9},
		{Name: "Lays", Price: 5},
		{Name: "Chocolate", Price: 9},
		{Name: name, Price: 9},
	}, listed)

	require.NoError(t, inv.Dispense(name))
	require.False(t, inv.IsInStock("Coke"))
	require.False(t, inv.IsInStock("Lays"))
	require.False(t, inv.IsInStock(name))
	require.True(t, inv.IsInStock("Chocolate"))
}

func TestSpecialRequiresCatalogItems(t *testing.T) {
	catalog, err := inventory.NewCatalog(inventory.Item{Name: "Coke", Price: 9})
	require.NoError(t, err)
	_, err = inventory.New(inventory.Config{
		Grid:     grid.MustNew(1, 1),
		Catalog:  catalog,
		Specials: []pricing.Special{{Items: []string{"Coke", "Fanta"}}},
	})
	require.ErrorIs(t, err, inventory.ErrUnknownItem)
}

func TestSpecialNameMustNotShadowCatalogItem(t *testing.T) {
	catalog, err := inventory.NewCatalog(
		inventory.Item{Name: "Coke", Price: 9},
		inventory.Item{Name: "Lays", Price: 5},
	)
	require.NoError(t, err)
	_, err = inventory.New(inventory.Config{
		Grid:     grid.MustNew(1, 2),
		Catalog:  catalog,
		Specials: []pricing.Special{{Name: "Coke", Items: []string{"Coke", "Lays"}}},
	})
	require.ErrorIs(t, err, inventory.ErrInvalidItem)
}

func TestCatalogValidation(t *testing.T) {
	_, err := inventory.NewCatalog(inventory.Item{Name: "Coke", Price: 0})
	require.ErrorIs(t, err, inventory.ErrInvalidItem)
	_, err = inventory.NewCatalog(inventory.Item{Name: " ", Price: 1})
	require.ErrorIs(t, err, inventory.ErrInvalidItem)
}
