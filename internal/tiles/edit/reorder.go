package edit

import "github.com/mschirtzinger/tileboard/internal/tiles/schema"

// Reorder returns a new sequence with the tile at from moved to to.
//
// The move is extract-then-insert: moving the first of A,B,C,D to index 3
// yields B,C,D,A, shifting every tile in between by one. The input is never
// modified. When from == to or either index is out of range the result is
// an unchanged copy.
func Reorder(tiles []schema.Tile, from, to int) []schema.Tile {
	out := schema.Clone(tiles)
	if from == to || from < 0 || to < 0 || from >= len(out) || to >= len(out) {
		return out
	}

	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]schema.Tile{moved}, out[to:]...)...)
	return out
}
