package vending

import (
	"errors"

	"github.com/noah-isme/backend-vending/internal/change"
	"github.com/noah-isme/backend-vending/internal/inventory"
)

var (
	// ErrNotFullyPaid indicates the balance is below the selected item's price.
	ErrNotFullyPaid = errors.New("price not fully paid")
	// ErrNoSelection is returned when collecting without a selected item.
	ErrNoSelection = errors.New("no item selected")
	// ErrWrongKind is returned when a note is fed to the coin slot or vice versa.
	ErrWrongKind = errors.New("money piece inserted into the wrong slot")
	// ErrTransactionOwned is returned when another caller has a transaction open.
	ErrTransactionOwned = errors.New("transaction owned by another caller")

	// ErrSoldOut is returned when selecting or collecting an item with no stock.
	ErrSoldOut = inventory.ErrSoldOut
	// ErrInsufficientChange is returned when the reserve cannot cover the surplus.
	ErrInsufficientChange = change.ErrInsufficientChange
)
