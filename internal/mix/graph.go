// Package mix builds the declarative signal graphs for the three pipeline
// stages. The builders are pure: they touch no files and invoke no engine,
// so every graph is testable as a value.
package mix

import (
	"strconv"
	"strings"
)

// Param is one typed filter option.
type Param struct {
	Key   string
	Value string
}

// Filter is a named processing node with its options.
type Filter struct {
	Name   string
	Params []Param
}

// Chain connects labelled input streams through a filter sequence to
// labelled outputs.
type Chain struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

// Graph is an ordered list of chains. It serializes to the engine's
// filtergraph syntax; building it from typed parts keeps request values out
// of any command string.
type Graph struct {
	chains []Chain
}

func (g *Graph) Add(c Chain) {
	g.chains = append(g.chains, c)
}

// References reports whether any chain consumes the given stream label.
func (g *Graph) References(label string) bool {
	for _, c := range g.chains {
		for _, in := range c.Inputs {
			if in == label {
				return true
			}
		}
	}
	return false
}

// String serializes the graph: chains joined by ';', filters within a chain
// by ',', params by ':'.
func (g *Graph) String() string {
	var parts []string
	for _, c := range g.chains {
		var sb strings.Builder
		for _, in := range c.Inputs {
			sb.WriteString("[" + in + "]")
		}
		var filters []string
		for _, f := range c.Filters {
			filters = append(filters, f.serialize())
		}
		sb.WriteString(strings.Join(filters, ","))
		for _, out := range c.Outputs {
			sb.WriteString("[" + out + "]")
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, ";")
}

func (f Filter) serialize() string {
	if len(f.Params) == 0 {
		return f.Name
	}
	var opts []string
	for _, p := range f.Params {
		if p.Key == "" {
			opts = append(opts, p.Value)
			continue
		}
		opts = append(opts, p.Key+"="+p.Value)
	}
	return f.Name + "=" + strings.Join(opts, ":")
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
