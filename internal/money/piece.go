package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money represents a monetary value in whole face units.
type Money = int64

// Kind distinguishes coins from notes.
type Kind string

const (
	KindCoin Kind = "coin"
	KindNote Kind = "note"
)

// ErrUnknownPiece is returned when a denomination is not part of the catalog.
var ErrUnknownPiece = errors.New("unknown money piece")

// Piece is a single coin or note.
type Piece struct {
	Kind  Kind
	Value Money
}

// Legal denominations.
var (
	CoinOne  = Piece{Kind: KindCoin, Value: 1}
	CoinTwo  = Piece{Kind: KindCoin, Value: 2}
	CoinFive = Piece{Kind: KindCoin, Value: 5}
	CoinTen  = Piece{Kind: KindCoin, Value: 10}

	NoteFive       = Piece{Kind: KindNote, Value: 5}
	NoteTen        = Piece{Kind: KindNote, Value: 10}
	NoteTwenty     = Piece{Kind: KindNote, Value: 20}
	NoteFifty      = Piece{Kind: KindNote, Value: 50}
	NoteOneHundred = Piece{Kind: KindNote, Value: 100}
)

var catalog = []Piece{
	CoinOne, CoinTwo, CoinFive, CoinTen,
	NoteFive, NoteTen, NoteTwenty, NoteFifty, NoteOneHundred,
}

// Catalog returns every legal denomination.
func Catalog() []Piece {
	return append([]Piece(nil), catalog...)
}

// Known reports whether p is a legal denomination.
func Known(p Piece) bool {
	for _, c := range catalog {
		if c == p {
			return true
		}
	}
	return false
}

// IsCoin reports whether the piece is a coin.
func (p Piece) IsCoin() bool { return p.Kind == KindCoin }

// IsNote reports whether the piece is a note.
func (p Piece) IsNote() bool { return p.Kind == KindNote }

// String renders the piece as "kind:value", the format accepted by ParsePiece.
func (p Piece) String() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.Value)
}

// MarshalText implements encoding.TextMarshaler.
func (p Piece) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Piece) UnmarshalText(text []byte) error {
	parsed, err := ParsePiece(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePiece decodes "coin:5" or "note:100" into a catalog piece.
func ParsePiece(value string) (Piece, error) {
	kind, amount, ok := strings.Cut(strings.ToLower(strings.TrimSpace(value)), ":")
	if !ok {
		return Piece{}, fmt.Errorf("parse %q: %w", value, ErrUnknownPiece)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(amount), 10, 64)
	if err != nil {
		return Piece{}, fmt.Errorf("parse %q: %w", value, ErrUnknownPiece)
	}
	p := Piece{Kind: Kind(strings.TrimSpace(kind)), Value: v}
	if !Known(p) {
		return Piece{}, fmt.Errorf("parse %q: %w", value, ErrUnknownPiece)
	}
	return p, nil
}

// ParsePieces decodes a list of piece strings, stopping at the first failure.
func ParsePieces(values []string) ([]Piece, error) {
	out := make([]Piece, 0, len(values))
	for _, v := range values {
		p, err := ParsePiece(v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
