package edit

import "fmt"

// Phase is the stage of a drag-reorder gesture.
type Phase int

const (
	// Idle means no gesture is in progress.
	Idle Phase = iota
	// Dragging means a tile has been picked up but not moved over another.
	Dragging
	// DraggingOver means the pointer is over a tile other than the source.
	DraggingOver
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case DraggingOver:
		return "dragging_over"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{Idle, Dragging, DraggingOver} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown drag phase %q", text)
}

// DragState tracks a drag-reorder gesture. Transitions return the next
// state and never mutate the receiver.
//
// Source is meaningful in Dragging and DraggingOver; Target only in
// DraggingOver. Both are -1 when Idle.
type DragState struct {
	Phase  Phase `json:"phase"`
	Source int   `json:"source"`
	Target int   `json:"target"`
}

// IdleDrag is the resting state.
var IdleDrag = DragState{Phase: Idle, Source: -1, Target: -1}

// Start picks up the tile at index. A negative index leaves the gesture
// idle. Starting while already dragging restarts from the new index.
func (d DragState) Start(index int) DragState {
	if index < 0 {
		return IdleDrag
	}
	return DragState{Phase: Dragging, Source: index, Target: -1}
}

// Over records the tile currently under the pointer. Hovering the source
// tile itself is ignored so the target does not flicker back and forth.
func (d DragState) Over(index int) DragState {
	if d.Phase == Idle || index < 0 || index == d.Source {
		return d
	}
	return DragState{Phase: DraggingOver, Source: d.Source, Target: index}
}

// Drop ends the gesture at index and reports the move to apply. A negative
// index drops on the last hovered target. The returned state is always
// idle; ok is false when there is nothing to move.
func (d DragState) Drop(index int) (next DragState, from, to int, ok bool) {
	if d.Phase == Idle {
		return IdleDrag, -1, -1, false
	}
	if index < 0 {
		if d.Phase != DraggingOver {
			return IdleDrag, -1, -1, false
		}
		index = d.Target
	}
	if index == d.Source {
		return IdleDrag, -1, -1, false
	}
	return IdleDrag, d.Source, index, true
}

// Cancel abandons the gesture.
func (d DragState) Cancel() DragState {
	return IdleDrag
}
