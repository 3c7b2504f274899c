package money

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHolderTotalIgnoresOrder(t *testing.T) {
	var a, b Holder
	a.AddAll(CoinFive, CoinTwo)
	a.Add(NoteTen)
	b.Add(NoteTen)
	b.AddAll(CoinTwo, CoinFive)

	require.Equal(t, Money(17), a.Total())
	require.Equal(t, a.Total(), b.Total())
	require.Len(t, a.Pieces(), 3)
}

func TestParsePiece(t *testing.T) {
	p, err := ParsePiece(" Note:100 ")
	require.NoError(t, err)
	require.Equal(t, NoteOneHundred, p)
	require.Equal(t, "note:100", p.String())

	for _, bad := range []string{"coin", "coin:3", "note:x", "bill:5", ""} {
		_, err := ParsePiece(bad)
		if !errors.Is(err, ErrUnknownPiece) {
			t.Fatalf("expected ErrUnknownPiece for %q, got %v", bad, err)
		}
	}
}

func TestChangeJSON(t *testing.T) {
	c := NewChange(CoinOne, CoinOne, NoteFive)
	require.Equal(t, Money(7), c.Value())
	require.Equal(t, 2, c.Count(CoinOne))

	data, err := json.Marshal(c)
	require.NoError(t, err)
	require.JSONEq(t, `{"value":7,"pieces":["coin:1","coin:1","note:5"]}`, string(data))

	var empty Change
	data, err = json.Marshal(empty)
	require.NoError(t, err)
	require.JSONEq(t, `{"value":0,"pieces":[]}`, string(data))
}
