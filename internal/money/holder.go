package money

import "encoding/json"

// Holder accumulates pieces. Pieces are never removed once added.
type Holder struct {
	pieces []Piece
	total  Money
}

// Add appends a single piece.
func (h *Holder) Add(p Piece) {
	h.pieces = append(h.pieces, p)
	h.total += p.Value
}

// AddAll is equivalent to calling Add for every piece.
func (h *Holder) AddAll(pieces ...Piece) {
	for _, p := range pieces {
		h.Add(p)
	}
}

// Total returns the summed face value.
func (h *Holder) Total() Money {
	if h == nil {
		return 0
	}
	return h.total
}

// Pieces returns a copy of the held pieces in insertion order.
func (h *Holder) Pieces() []Piece {
	if h == nil {
		return nil
	}
	return append([]Piece(nil), h.pieces...)
}

// Change is the set of pieces handed back to a customer.
type Change struct {
	holder Holder
}

// NewChange builds a Change from pieces.
func NewChange(pieces ...Piece) Change {
	var c Change
	c.holder.AddAll(pieces...)
	return c
}

// Value returns the total face value of the change.
func (c Change) Value() Money { return c.holder.Total() }

// Pieces returns the pieces making up the change.
func (c Change) Pieces() []Piece { return c.holder.Pieces() }

// Count returns how many times p occurs in the change.
func (c Change) Count(p Piece) int {
	n := 0
	for _, held := range c.holder.pieces {
		if held == p {
			n++
		}
	}
	return n
}

// IsZero reports whether no pieces are held.
func (c Change) IsZero() bool { return len(c.holder.pieces) == 0 }

type changeJSON struct {
	Value  Money   `json:"value"`
	Pieces []Piece `json:"pieces"`
}

// MarshalJSON renders the change with its total.
func (c Change) MarshalJSON() ([]byte, error) {
	pieces := c.Pieces()
	if pieces == nil {
		pieces = []Piece{}
	}
	return json.Marshal(changeJSON{Value: c.Value(), Pieces: pieces})
}

// UnmarshalJSON restores change from its JSON form; the total is recomputed.
func (c *Change) UnmarshalJSON(data []byte) error {
	var raw changeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = NewChange(raw.Pieces...)
	return nil
}
