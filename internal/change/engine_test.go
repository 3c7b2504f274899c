package change_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-vending/internal/change"
	"github.com/noah-isme/backend-vending/internal/money"
)

func TestMakeExactChange(t *testing.T) {
	reserve := change.NewReserve(money.CoinOne)
	c, err := change.Make(1, reserve)
	require.NoError(t, err)
	require.Equal(t, money.Money(1), c.Value())
	require.Zero(t, reserve.Count(money.CoinOne))
}

func TestMakeLargestFirst(t *testing.T) {
	reserve := change.NewReserve(
		money.NoteTwenty, money.NoteTen, money.CoinFive, money.NoteFive,
		money.CoinTwo, money.CoinTwo, money.CoinTwo, money.CoinOne,
	)
	c, err := change.Make(18, reserve)
	require.NoError(t, err)
	require.Equal(t, money.Money(18), c.Value())
	require.Equal(t, 1, c.Count(money.NoteTen))
	require.Equal(t, 1, c.Count(money.CoinFive))
	require.Equal(t, 0, c.Count(money.NoteFive))
	require.Equal(t, 1, c.Count(money.CoinTwo))
	require.Equal(t, 1, c.Count(money.CoinOne))
	require.Equal(t, 1, reserve.Count(money.NoteTwenty))
}

func TestMakeInsufficientLeavesReserve(t *testing.T) {
	reserve := change.NewReserve(money.NoteTwenty, money.CoinFive, money.CoinOne)
	_, err := change.Make(91, reserve)
	require.ErrorIs(t, err, change.ErrInsufficientChange)
	require.Equal(t, money.Money(26), reserve.Total())
}

func TestMakeGreedyDoesNotBacktrack(t *testing.T) {
	// 6 = 2+2+2 exists, but greedy takes the 5 first and is left with 1.
	reserve := change.NewReserve(money.CoinFive, money.CoinTwo, money.CoinTwo, money.CoinTwo)
	_, err := change.Make(6, reserve)
	require.ErrorIs(t, err, change.ErrInsufficientChange)
}

func TestMakeZeroAndNegative(t *testing.T) {
	c, err := change.Make(0, nil)
	require.NoError(t, err)
	require.True(t, c.IsZero())

	_, err = change.Make(-1, change.NewReserve())
	require.ErrorIs(t, err, change.ErrNegativeAmount)
}

func TestSnapshot(t *testing.T) {
	reserve := change.NewReserve(money.CoinOne, money.CoinOne, money.NoteTen)
	require.Equal(t, map[string]int{"coin:1": 2, "note:10": 1}, reserve.Snapshot())
}
