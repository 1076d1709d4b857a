package cluster

// SelectionWindow remembers the most recent cluster selections so that
// tools from the last few subtasks stay available to the executor. The
// window has a fixed capacity and evicts oldest-first.
type SelectionWindow struct {
	capacity   int
	selections [][]Name
}

const DefaultWindowCapacity = 2

// NewSelectionWindow creates a window with the given capacity. A capacity
// below one falls back to the default.
func NewSelectionWindow(capacity int) *SelectionWindow {
	if capacity < 1 {
		capacity = DefaultWindowCapacity
	}
	return &SelectionWindow{capacity: capacity}
}

// Push records a selection, evicting the oldest one when full.
func (w *SelectionWindow) Push(selection []Name) {
	copied := make([]Name, len(selection))
	copy(copied, selection)
	w.selections = append(w.selections, copied)
	if len(w.selections) > w.capacity {
		w.selections = w.selections[1:]
	}
}

// Merge returns the union of the current selection and the window
// contents, current selection first, deduplicated in order.
func (w *SelectionWindow) Merge(current []Name) []Name {
	seen := make(map[Name]bool)
	var out []Name

	add := func(names []Name) {
		for _, n := range names {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}

	add(current)
	for _, sel := range w.selections {
		add(sel)
	}
	return out
}

// Contents returns the retained selections, oldest first.
func (w *SelectionWindow) Contents() [][]Name {
	out := make([][]Name, len(w.selections))
	for i, sel := range w.selections {
		c := make([]Name, len(sel))
		copy(c, sel)
		out[i] = c
	}
	return out
}

// Reset clears the window.
func (w *SelectionWindow) Reset() {
	w.selections = nil
}
