package domain

import "github.com/puzpuzpuz/xsync/v3"

// Globals is the run-scoped key-value store shared by every node in a run
// (and by a Container's children). Subflow children get their own instance.
// Put/get are lock-free; Snapshot takes a consistent point-in-time copy for
// bulk iteration.
type Globals struct {
	m *xsync.MapOf[string, any]
}

func NewGlobals() *Globals {
	return &Globals{m: xsync.NewMapOf[string, any]()}
}

// NewGlobalsFrom seeds a fresh Globals from an initial map, e.g. a workflow
// definition's DefaultVariables or a Subflow's mapped inputs.
func NewGlobalsFrom(initial map[string]any) *Globals {
	g := NewGlobals()
	for k, v := range initial {
		g.Set(k, v)
	}
	return g
}

func (g *Globals) Get(key string) (any, bool) {
	return g.m.Load(key)
}

func (g *Globals) Set(key string, value any) {
	g.m.Store(key, value)
}

func (g *Globals) Delete(key string) {
	g.m.Delete(key)
}

// Snapshot returns a shallow copy of every key/value pair at the moment of
// the call. Bulk iteration is never a live view.
func (g *Globals) Snapshot() map[string]any {
	out := make(map[string]any, g.m.Size())
	g.m.Range(func(k string, v any) bool {
		out[k] = v
		return true
	})
	return out
}

// Reserved global-key prefix for engine diagnostics, e.g. "__error",
// "__node_errors".
const ReservedPrefix = "__"
