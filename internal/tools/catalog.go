package tools

import (
	"fmt"

	"github.com/jkaninda/toolguard/internal/security"
)

// ArgResolver maps a named argument bag to the positional arguments a
// handler expects.
type ArgResolver func(args map[string]any) []any

// Entry is one registered tool.
type Entry struct {
	Metadata Metadata
	Handler  Handler
	Resolve  ArgResolver

	// Parameters is the JSON-Schema object describing the argument bag.
	Parameters map[string]any
}

// Catalog is the fixed mapping from tool name to entry. It is built once
// at startup and read-only afterwards.
type Catalog struct {
	entries map[string]Entry
	order   []string
}

// NewCatalog builds a catalog. Panics on duplicate or incomplete entries
// (startup config error, not runtime).
func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		name := e.Metadata.Name
		if name == "" || e.Handler == nil || e.Resolve == nil {
			panic(fmt.Sprintf("incomplete tool registration: %q", name))
		}
		if _, exists := c.entries[name]; exists {
			panic("duplicate tool registration: " + name)
		}
		c.entries[name] = e
		c.order = append(c.order, name)
	}
	return c
}

// Get returns the entry for name.
func (c *Catalog) Get(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Names returns tool names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// FunctionDefinition describes one tool to an LLM.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Definition is a function tool in the chat-completions "tools" shape.
type Definition struct {
	Type     string             `json:"type"` // always "function"
	Function FunctionDefinition `json:"function"`
}

// Definitions returns every tool definition in registration order.
func (c *Catalog) Definitions() []Definition {
	defs := make([]Definition, 0, len(c.order))
	for _, name := range c.order {
		e := c.entries[name]
		defs = append(defs, Definition{
			Type: "function",
			Function: FunctionDefinition{
				Name:        name,
				Description: e.Metadata.Description,
				Parameters:  e.Parameters,
			},
		})
	}
	return defs
}

// SelectAllowed keeps the definitions whose tool resolves to allow under
// policy, preserving order.
func SelectAllowed(defs []Definition, policy security.PolicyConfig) []Definition {
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		if policy.Resolve(d.Function.Name) == security.AccessAllow {
			out = append(out, d)
		}
	}
	return out
}
