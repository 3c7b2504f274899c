package grid_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-vending/internal/grid"
)

func TestResolveLoadedItem(t *testing.T) {
	g := grid.MustNew(10, 10)
	dropped := g.Load([]string{"Classic Coke", "Diary Chocolate", "Lays Original"})
	require.Zero(t, dropped)

	name, err := g.Resolve("a1")
	require.NoError(t, err)
	require.Equal(t, "Classic Coke", name)

	name, err = g.Resolve("a2")
	require.NoError(t, err)
	require.Equal(t, "Diary Chocolate", name)

	name, err = g.Resolve("b1")
	require.NoError(t, err)
	require.Equal(t, grid.Empty, name)
}

func TestLoadFillsRowMajor(t *testing.T) {
	g := grid.MustNew(2, 2)
	dropped := g.Load([]string{"a", "b", "c", "d", "e", "f"})
	require.Equal(t, 2, dropped)

	name, err := g.Resolve("b1")
	require.NoError(t, err)
	require.Equal(t, "c", name)

	g.Load([]string{"x"})
	name, _ = g.Resolve("a1")
	require.Equal(t, "x", name)
	name, _ = g.Resolve("b2")
	require.Equal(t, "d", name)
}

func TestResolveBounds(t *testing.T) {
	g := grid.MustNew(2, 3)
	g.Load([]string{"a", "b", "c", "d", "e", "f"})

	name, err := g.Resolve("b3")
	require.NoError(t, err)
	require.Equal(t, "f", name)

	for _, key := range []string{"c1", "a4", "z9", "b99999999999999999999"} {
		_, err := g.Resolve(key)
		if !errors.Is(err, grid.ErrOutOfBounds) {
			t.Fatalf("expected ErrOutOfBounds for %q, got %v", key, err)
		}
	}
}

func TestResolveInvalidKey(t *testing.T) {
	g := grid.MustNew(2, 2)
	for _, key := range []string{"", "a", "A1", "a0", "1a", "ab1", "a1 "} {
		_, err := g.Resolve(key)
		if !errors.Is(err, grid.ErrInvalidKeyFormat) {
			t.Fatalf("expected ErrInvalidKeyFormat for %q, got %v", key, err)
		}
	}
}

func TestRemove(t *testing.T) {
	g := grid.MustNew(2, 2)
	g.Load([]string{"Coke", "Fanta", "Coke"})

	pos, err := g.Remove("Coke")
	require.NoError(t, err)
	require.Equal(t, "a1", pos.Key())

	name, err := g.Resolve("a1")
	require.NoError(t, err)
	require.Equal(t, grid.Empty, name)

	name, _ = g.Resolve("b1")
	require.Equal(t, "Coke", name)

	before := g.Slots()
	_, err = g.Remove("Pepsi")
	require.ErrorIs(t, err, grid.ErrItemNotFound)
	require.Equal(t, before, g.Slots())
}

func TestNewRejectsInvalidDimensions(t *testing.T) {
	for _, dims := range [][2]int{{0, 1}, {1, 0}, {-1, 5}, {27, 1}} {
		_, err := grid.New(dims[0], dims[1])
		require.ErrorIs(t, err, grid.ErrInvalidDimensions)
	}
	require.Panics(t, func() { grid.MustNew(0, 0) })
}

func TestPositionKeyRoundTrip(t *testing.T) {
	pos, err := grid.ParseKey("c12")
	require.NoError(t, err)
	require.Equal(t, grid.Position{Row: 2, Column: 11}, pos)
	require.Equal(t, "c12", pos.Key())
}
