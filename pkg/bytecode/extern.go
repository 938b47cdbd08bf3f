package bytecode

import (
	"fmt"
	"io"
)

// ExternFunc is a host callback reached through OpExtern. It receives the
// top of the stack, which stays in place.
type ExternFunc func(Value)

// ExternTable maps extern selectors to host callbacks.
type ExternTable struct {
	funcs map[uint64]ExternFunc
}

// PrintSelector is the built-in selector that shows the top of the stack
// to the host.
const PrintSelector uint64 = 0

// NewExternTable creates a table whose selector 0 writes each value on its
// own line to w.
func NewExternTable(w io.Writer) *ExternTable {
	t := &ExternTable{funcs: make(map[uint64]ExternFunc)}
	t.Register(PrintSelector, func(v Value) {
		fmt.Fprintln(w, v)
	})
	return t
}

// Register installs fn for selector, replacing any previous callback.
// A nil fn removes the selector.
func (t *ExternTable) Register(selector uint64, fn ExternFunc) {
	if fn == nil {
		delete(t.funcs, selector)
		return
	}
	t.funcs[selector] = fn
}

// Lookup returns the callback for selector.
func (t *ExternTable) Lookup(selector uint64) (ExternFunc, bool) {
	fn, ok := t.funcs[selector]
	return fn, ok
}
